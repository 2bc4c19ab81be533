// internal/tui/app.go
//
// This is the main TUI (Terminal User Interface) for save-the-trash.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: Your application state
// 2. Update: A function that updates state based on messages
// 3. View: A function that renders state to a string
//
// Uploads and analyses run as tea.Cmds. Their results come back as messages
// and are handed to the workflow, which drops anything that arrives after a
// reset.

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/save-the-trash/internal/imagefile"
	"github.com/kingrea/save-the-trash/internal/logbook"
	"github.com/kingrea/save-the-trash/internal/workflow"
)

// focus decides which part of the screen receives keys.
type focus int

const (
	focusInput   focus = iota // typing a photo path
	focusActions              // single-key actions and result scrolling
)

// ImageLoader reads and validates the file at path.
type ImageLoader func(path string) (workflow.LocalImage, error)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLogbook shows the journey log under the results.
func WithLogbook(book *logbook.Logbook) AppOption {
	return func(a *App) {
		a.logbook = book
	}
}

// WithImageLoader overrides how photo paths are read.
func WithImageLoader(loader ImageLoader) AppOption {
	return func(a *App) {
		if loader != nil {
			a.loadImage = loader
		}
	}
}

// WithMaxImageBytes sets the size limit used by the default loader.
func WithMaxImageBytes(n int64) AppOption {
	return func(a *App) {
		a.maxImageBytes = n
	}
}

// WithInitialPath preselects a photo when the program starts.
func WithInitialPath(path string) AppOption {
	return func(a *App) {
		a.initialPath = strings.TrimSpace(path)
	}
}

// WithContext sets the parent context for network calls.
func WithContext(ctx context.Context) AppOption {
	return func(a *App) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

type imageLoadedMsg struct {
	gen  int
	path string
	img  workflow.LocalImage
	err  error
}

type flightDoneMsg struct {
	outcome workflow.Outcome
}

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	workflow      *workflow.Workflow
	logbook       *logbook.Logbook
	loadImage     ImageLoader
	maxImageBytes int64
	initialPath   string
	ctx           context.Context

	// readGen numbers file reads. Reset and each new read bump it, and a
	// read that finishes with an older number is dropped.
	readGen int

	// UI components
	input   textinput.Model
	spinner spinner.Model
	results viewport.Model
	focus   focus

	statusMsg string
	width     int
	height    int
}

// NewApp builds the model around an existing workflow.
func NewApp(wf *workflow.Workflow, opts ...AppOption) (*App, error) {
	if wf == nil {
		return nil, errors.New("tui: workflow is required")
	}

	input := textinput.New()
	input.Placeholder = "path/to/photo.jpg"
	input.Prompt = "Photo: "
	input.CharLimit = 4096
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF"))

	app := &App{
		workflow: wf,
		ctx:      context.Background(),
		input:    input,
		spinner:  spin,
		results:  viewport.New(80, 12),
		focus:    focusInput,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	if app.loadImage == nil {
		limit := app.maxImageBytes
		app.loadImage = func(path string) (workflow.LocalImage, error) {
			return imagefile.Load(path, limit)
		}
	}
	app.statusMsg = "Type the path of a photo of your trash and press enter."
	app.refreshResults()
	return app, nil
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink}
	if a.initialPath != "" {
		a.input.SetValue(a.initialPath)
		cmds = append(cmds, a.selectPath(a.initialPath))
	}
	return tea.Batch(cmds...)
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.results.Width = max(20, msg.Width-6)
		a.results.Height = max(5, msg.Height-18)
		a.input.Width = max(20, msg.Width-12)
		return a, nil

	case imageLoadedMsg:
		return a, a.applyImage(msg)

	case flightDoneMsg:
		a.applyOutcome(msg.outcome)
		return a, nil

	case spinner.TickMsg:
		if !a.workflow.InFlight() {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return a, tea.Quit
		}
		if a.focus == focusInput {
			return a.updateInput(msg)
		}
		return a.updateActions(msg)
	}

	return a, nil
}

func (a *App) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		path := strings.TrimSpace(a.input.Value())
		if path == "" {
			a.statusMsg = "Enter a file path first."
			return a, nil
		}
		return a, a.selectPath(path)
	case "tab", "esc":
		a.setFocus(focusActions)
		return a, nil
	}
	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) updateActions(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "tab", "i", "/":
		a.setFocus(focusInput)
		return a, nil
	case "u":
		if cmd := a.beginFlight(workflow.StepUpload); cmd != nil {
			return a, tea.Batch(a.spinner.Tick, cmd)
		}
		return a, nil
	case "a":
		if cmd := a.beginFlight(workflow.StepAnalyze); cmd != nil {
			return a, tea.Batch(a.spinner.Tick, cmd)
		}
		return a, nil
	case "r":
		a.workflow.Reset()
		a.readGen++
		a.input.SetValue("")
		a.setFocus(focusInput)
		a.statusMsg = "Started over. Choose another photo."
		a.refreshResults()
		return a, nil
	}
	var cmd tea.Cmd
	a.results, cmd = a.results.Update(msg)
	return a, cmd
}

func (a *App) setFocus(f focus) {
	a.focus = f
	if f == focusInput {
		a.input.Focus()
		return
	}
	a.input.Blur()
}

// selectPath reads the file off the event loop.
func (a *App) selectPath(path string) tea.Cmd {
	a.statusMsg = fmt.Sprintf("Reading %s...", path)
	a.readGen++
	gen, loader := a.readGen, a.loadImage
	return func() tea.Msg {
		img, err := loader(path)
		return imageLoadedMsg{gen: gen, path: path, img: img, err: err}
	}
}

func (a *App) applyImage(msg imageLoadedMsg) tea.Cmd {
	if msg.gen != a.readGen {
		return nil
	}
	if msg.err != nil {
		a.statusMsg = fmt.Sprintf("Could not use %s: %v", msg.path, msg.err)
		return nil
	}
	if _, err := a.workflow.SelectImage(msg.img); err != nil {
		if errors.Is(err, workflow.ErrInvalidTransition) {
			a.statusMsg = "Wait for the current request to finish, or press r to start over."
		} else {
			a.statusMsg = err.Error()
		}
		return nil
	}
	a.setFocus(focusActions)
	a.statusMsg = fmt.Sprintf("Selected %s. Press u to upload.", msg.img.Name)
	a.refreshResults()
	return nil
}

// beginFlight moves the workflow into its in-flight state and returns the
// command that performs the call, or nil when the step is not allowed now.
func (a *App) beginFlight(step workflow.Step) tea.Cmd {
	var (
		flight *workflow.Flight
		err    error
	)
	if step == workflow.StepAnalyze {
		flight, err = a.workflow.BeginAnalyze()
	} else {
		flight, err = a.workflow.BeginUpload()
	}
	if err != nil {
		a.statusMsg = rejectionHint(step, a.workflow.Snapshot())
		return nil
	}
	if step == workflow.StepAnalyze {
		a.statusMsg = "Asking what this could become..."
	} else {
		a.statusMsg = "Uploading photo..."
	}
	a.refreshResults()
	wf, ctx := a.workflow, a.ctx
	return func() tea.Msg {
		return flightDoneMsg{outcome: wf.Run(ctx, flight)}
	}
}

func (a *App) applyOutcome(outcome workflow.Outcome) {
	sub, applied := a.workflow.Complete(outcome)
	switch {
	case !applied:
		a.statusMsg = "Ignored a response for a photo you already cleared."
	case sub.LastError != nil:
		a.statusMsg = workflow.UserMessage(sub.LastError)
	case sub.Status == workflow.StatusUploaded:
		a.statusMsg = "Uploaded. Press a to analyze."
	case sub.Status == workflow.StatusAnalyzed:
		a.statusMsg = "Here is what you can do with it. Press r to upload another."
	}
	a.refreshResults()
}

func rejectionHint(step workflow.Step, sub workflow.Submission) string {
	switch {
	case sub.Status.InFlight():
		return "Already working on it..."
	case step == workflow.StepUpload && sub.Status == workflow.StatusIdle:
		return "Choose a photo before uploading."
	case step == workflow.StepAnalyze && sub.Upload == nil:
		return "Upload the photo before asking for an analysis."
	default:
		return fmt.Sprintf("Cannot %s right now (%s).", step, sub.Status.Label())
	}
}

func (a *App) refreshResults() {
	sub := a.workflow.Snapshot()
	a.results.SetContent(renderAnalysis(sub.Analysis))
	a.results.GotoTop()
}
