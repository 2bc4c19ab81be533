// internal/workflow/workflow.go
//
// The submission workflow: one photo moves from selection through upload and
// analysis. Network calls are split into Begin, Run and Complete so callers
// with their own event loop (the TUI) never block while a call is out.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CredentialProvider supplies a bearer token for each network call.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// Uploader sends image bytes to the backend.
type Uploader interface {
	UploadImage(ctx context.Context, img LocalImage, token string) (UploadResult, error)
}

// Analyzer requests reuse advice for a completed upload.
type Analyzer interface {
	Analyze(ctx context.Context, upload UploadResult, token string) (AnalysisResult, error)
}

// tokenInvalidator is implemented by providers that cache tokens. It is
// called when a service rejects the token presented.
type tokenInvalidator interface {
	Invalidate()
}

var errEmptyToken = errors.New("provider returned an empty token")

// Flight is the ticket for one outstanding network call. It captures the
// inputs the call needs so Run never reads the live submission.
type Flight struct {
	ID           string
	SubmissionID string
	Step         Step

	image   LocalImage
	upload  UploadResult
	abandon context.Context
	cancel  context.CancelFunc
}

// Outcome is the result of running a flight. Err is already classified
// into CredentialError, UploadError or AnalysisError.
type Outcome struct {
	Flight   *Flight
	Upload   UploadResult
	Analysis AnalysisResult
	Err      error
}

// Workflow owns a single submission record.
type Workflow struct {
	mu       sync.Mutex
	creds    CredentialProvider
	uploader Uploader
	analyzer Analyzer
	clock    func() time.Time
	newID    func() string
	events   publisher

	sub    Submission
	flight *Flight
}

// Option customizes a workflow.
type Option func(*Workflow)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(w *Workflow) {
		if clock != nil {
			w.clock = clock
		}
	}
}

// WithIDGenerator replaces uuid generation for submissions and flights
// (primarily for tests).
func WithIDGenerator(gen func() string) Option {
	return func(w *Workflow) {
		if gen != nil {
			w.newID = gen
		}
	}
}

// WithObserver subscribes o before the workflow is returned.
func WithObserver(o Observer) Option {
	return func(w *Workflow) {
		if o != nil {
			w.events.subscribe(o)
		}
	}
}

// New wires a workflow to its collaborators. The submission starts idle.
func New(creds CredentialProvider, uploader Uploader, analyzer Analyzer, opts ...Option) (*Workflow, error) {
	if creds == nil {
		return nil, fmt.Errorf("workflow: credential provider is required")
	}
	if uploader == nil {
		return nil, fmt.Errorf("workflow: uploader is required")
	}
	if analyzer == nil {
		return nil, fmt.Errorf("workflow: analyzer is required")
	}
	w := &Workflow{
		creds:    creds,
		uploader: uploader,
		analyzer: analyzer,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.sub = Submission{ID: w.newID(), Status: StatusIdle, UpdatedAt: w.clock()}
	return w, nil
}

// Subscribe registers o for every later event and returns a function that
// removes it again.
func (w *Workflow) Subscribe(o Observer) func() {
	if o == nil {
		return func() {}
	}
	return w.events.subscribe(o)
}

// Snapshot returns a copy of the current submission.
func (w *Workflow) Snapshot() Submission {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sub.clone()
}

// InFlight reports whether a network call is outstanding.
func (w *Workflow) InFlight() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flight != nil
}

// SelectImage stores img and moves to selected, discarding any previous
// upload or analysis. It is refused while a call is in flight.
func (w *Workflow) SelectImage(img LocalImage) (Submission, error) {
	w.mu.Lock()
	var err error
	switch {
	case w.flight != nil || !CanTransition(w.sub.Status, StatusSelected):
		err = &TransitionError{Op: "select image", Status: w.sub.Status}
	case len(img.Data) == 0:
		err = ErrNoImage
	}
	if err != nil {
		w.reject("select image", err)
		snap := w.sub.clone()
		w.mu.Unlock()
		w.events.flush()
		return snap, err
	}

	stored := img.clone()
	from := w.sub.Status
	w.sub = Submission{
		ID:        w.sub.ID,
		Status:    StatusSelected,
		Image:     &stored,
		UpdatedAt: w.clock(),
	}
	w.transitioned("select image", from, nil)
	snap := w.sub.clone()
	w.mu.Unlock()
	w.events.flush()
	return snap, nil
}

// Reset returns the submission to idle from any state. An outstanding call
// is abandoned and its result will be discarded by Complete.
func (w *Workflow) Reset() Submission {
	w.mu.Lock()
	if w.flight != nil {
		w.flight.cancel()
		w.flight = nil
	}
	from := w.sub.Status
	w.sub = Submission{ID: w.newID(), Status: StatusIdle, UpdatedAt: w.clock()}
	w.transitioned("reset", from, nil)
	snap := w.sub.clone()
	w.mu.Unlock()
	w.events.flush()
	return snap
}

// BeginUpload moves a selected (or upload-failed) submission to uploading.
func (w *Workflow) BeginUpload() (*Flight, error) {
	return w.begin(StepUpload)
}

// BeginAnalyze moves an uploaded (or analysis-failed) submission to analyzing.
func (w *Workflow) BeginAnalyze() (*Flight, error) {
	return w.begin(StepAnalyze)
}

func (w *Workflow) begin(step Step) (*Flight, error) {
	w.mu.Lock()
	to := StatusUploading
	if step == StepAnalyze {
		to = StatusAnalyzing
	}
	if !w.canBegin(step) || !CanTransition(w.sub.Status, to) {
		err := &TransitionError{Op: string(step), Status: w.sub.Status}
		w.reject(string(step), err)
		w.mu.Unlock()
		w.events.flush()
		return nil, err
	}

	abandon, cancel := context.WithCancel(context.Background())
	f := &Flight{
		ID:           w.newID(),
		SubmissionID: w.sub.ID,
		Step:         step,
		image:        w.sub.Image.clone(),
		abandon:      abandon,
		cancel:       cancel,
	}
	if step == StepAnalyze {
		f.upload = w.sub.Upload.clone()
	}
	from := w.sub.Status
	w.sub.Status = to
	w.sub.LastError = nil
	w.sub.FailedStep = ""
	w.sub.UpdatedAt = w.clock()
	w.flight = f
	w.transitioned(string(step), from, nil)
	w.mu.Unlock()
	w.events.flush()
	return f, nil
}

func (w *Workflow) canBegin(step Step) bool {
	if w.flight != nil {
		return false
	}
	s := w.sub
	switch step {
	case StepUpload:
		return s.Image != nil && (s.Status == StatusSelected ||
			(s.Status == StatusFailed && s.FailedStep == StepUpload))
	case StepAnalyze:
		return s.Upload != nil && (s.Status == StatusUploaded ||
			(s.Status == StatusFailed && s.FailedStep == StepAnalyze))
	default:
		return false
	}
}

// Run acquires a token and performs the flight's network call. It never
// touches the submission and may run on any goroutine. The call is
// canceled early if the flight is abandoned by Reset.
func (w *Workflow) Run(ctx context.Context, f *Flight) Outcome {
	out := Outcome{Flight: f}
	if f == nil {
		out.Err = fmt.Errorf("workflow: nil flight")
		return out
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(f.abandon, cancel)
	defer stop()

	token, err := w.creds.Token(runCtx)
	if err == nil && token == "" {
		err = errEmptyToken
	}
	if err != nil {
		out.Err = &CredentialError{Err: err}
		return out
	}

	switch f.Step {
	case StepUpload:
		res, err := w.uploader.UploadImage(runCtx, f.image, token)
		if err == nil {
			err = res.Validate()
		}
		if err != nil {
			out.Err = w.classify(StepUpload, err)
			return out
		}
		out.Upload = res
	case StepAnalyze:
		res, err := w.analyzer.Analyze(runCtx, f.upload, token)
		if err == nil {
			err = res.Validate()
		}
		if err != nil {
			out.Err = w.classify(StepAnalyze, err)
			return out
		}
		out.Analysis = res
	default:
		out.Err = fmt.Errorf("workflow: unknown step %q", f.Step)
	}
	return out
}

// classify maps a collaborator error and drops a cached token the service
// refused, so the next attempt fetches a fresh one.
func (w *Workflow) classify(step Step, err error) error {
	if isAuthRejection(err) {
		if inv, ok := w.creds.(tokenInvalidator); ok {
			inv.Invalidate()
		}
	}
	return classify(step, err)
}

// Complete applies an outcome if its flight is still the current one. A
// stale outcome (the submission was reset while the call was out) is
// discarded and Complete reports false.
func (w *Workflow) Complete(o Outcome) (Submission, bool) {
	w.mu.Lock()
	if o.Flight == nil || w.flight != o.Flight {
		ev := Event{Type: EventDiscarded, SubmissionID: w.sub.ID, From: w.sub.Status, To: w.sub.Status, At: w.clock()}
		if o.Flight != nil {
			ev.Op = string(o.Flight.Step)
		}
		w.events.enqueue(ev)
		snap := w.sub.clone()
		w.mu.Unlock()
		w.events.flush()
		return snap, false
	}

	f := o.Flight
	f.cancel()
	w.flight = nil
	from := w.sub.Status
	to := StatusFailed
	switch {
	case o.Err != nil:
	case f.Step == StepUpload:
		to = StatusUploaded
	default:
		to = StatusAnalyzed
	}
	if !CanTransition(from, to) {
		w.reject(string(f.Step), &TransitionError{Op: "complete " + string(f.Step), Status: from})
		snap := w.sub.clone()
		w.mu.Unlock()
		w.events.flush()
		return snap, false
	}
	w.sub.Status = to
	switch to {
	case StatusFailed:
		w.sub.LastError = o.Err
		w.sub.FailedStep = f.Step
	case StatusUploaded:
		res := o.Upload.clone()
		w.sub.Upload = &res
	default:
		res := o.Analysis.clone()
		w.sub.Analysis = &res
	}
	if o.Err == nil {
		w.sub.LastError = nil
		w.sub.FailedStep = ""
	}
	w.sub.UpdatedAt = w.clock()
	w.transitioned(string(f.Step), from, o.Err)
	snap := w.sub.clone()
	w.mu.Unlock()
	w.events.flush()
	return snap, true
}

// Upload runs a whole upload synchronously. Service failures are recorded
// on the returned submission, not returned; the error is only set when the
// upload could not start or its result was discarded.
func (w *Workflow) Upload(ctx context.Context) (Submission, error) {
	return w.runStep(ctx, StepUpload)
}

// Analyze runs a whole analysis synchronously, with the same error
// contract as Upload.
func (w *Workflow) Analyze(ctx context.Context) (Submission, error) {
	return w.runStep(ctx, StepAnalyze)
}

func (w *Workflow) runStep(ctx context.Context, step Step) (Submission, error) {
	f, err := w.begin(step)
	if err != nil {
		return w.Snapshot(), err
	}
	sub, applied := w.Complete(w.Run(ctx, f))
	if !applied {
		return sub, ErrStaleResponse
	}
	return sub, nil
}

// transitioned and reject must be called with w.mu held.
func (w *Workflow) transitioned(op string, from Status, err error) {
	w.events.enqueue(Event{
		Type:         EventTransition,
		Op:           op,
		SubmissionID: w.sub.ID,
		From:         from,
		To:           w.sub.Status,
		Err:          err,
		At:           w.sub.UpdatedAt,
	})
}

func (w *Workflow) reject(op string, err error) {
	w.events.enqueue(Event{
		Type:         EventRejected,
		Op:           op,
		SubmissionID: w.sub.ID,
		From:         w.sub.Status,
		To:           w.sub.Status,
		Err:          err,
		At:           w.clock(),
	})
}
