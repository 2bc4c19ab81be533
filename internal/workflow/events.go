package workflow

import (
	"sync"
	"time"
)

// EventType classifies workflow notifications.
type EventType string

const (
	// EventTransition is emitted after the submission changed status.
	EventTransition EventType = "transition"
	// EventRejected is emitted when an operation failed its precondition.
	EventRejected EventType = "rejected"
	// EventDiscarded is emitted when a late result arrived after a reset.
	EventDiscarded EventType = "discarded"
)

// Event describes one change (or refused change) of the submission.
type Event struct {
	Type         EventType
	Op           string
	SubmissionID string
	From         Status
	To           Status
	Err          error
	At           time.Time
}

// Observer receives workflow events in the order they happened.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

type subscription struct {
	id       int
	observer Observer
}

// publisher queues events in transition order and delivers them outside the
// workflow lock. Only one goroutine drains the queue at a time.
type publisher struct {
	mu       sync.Mutex
	nextID   int
	subs     []subscription
	queue    []Event
	draining bool
}

func (p *publisher) subscribe(o Observer) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.subs = append(p.subs, subscription{id: id, observer: o})
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, sub := range p.subs {
			if sub.id == id {
				p.subs = append(p.subs[:i], p.subs[i+1:]...)
				return
			}
		}
	}
}

// enqueue must be called while the workflow lock is held.
func (p *publisher) enqueue(ev Event) {
	p.mu.Lock()
	p.queue = append(p.queue, ev)
	p.mu.Unlock()
}

// flush must be called after the workflow lock is released.
func (p *publisher) flush() {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}
	p.draining = true
	for len(p.queue) > 0 {
		ev := p.queue[0]
		p.queue = p.queue[1:]
		subs := make([]subscription, len(p.subs))
		copy(subs, p.subs)
		p.mu.Unlock()
		for _, sub := range subs {
			notify(sub.observer, ev)
		}
		p.mu.Lock()
	}
	p.draining = false
	p.mu.Unlock()
}

func notify(o Observer, ev Event) {
	defer func() {
		_ = recover()
	}()
	o.OnEvent(ev)
}
