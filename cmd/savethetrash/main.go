// cmd/savethetrash/main.go
//
// This is the entry point for the save-the-trash client.
//
// Flow:
// 1. Open a session (config, logs, credentials, backend client)
// 2. With -batch, push one photo through upload and analysis and print JSON
// 3. Otherwise launch the TUI, optionally preselecting a photo

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/save-the-trash/internal/imagefile"
	"github.com/kingrea/save-the-trash/internal/session"
	"github.com/kingrea/save-the-trash/internal/tui"
	"github.com/kingrea/save-the-trash/internal/workflow"
)

func main() {
	home, _ := os.UserHomeDir()
	dir := flag.String("dir", home, "directory that holds .savethetrash")
	batch := flag.Bool("batch", false, "upload and analyze the given photo without the TUI")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: savethetrash [-dir path] [-batch] [photo]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "Error: could not determine a home directory; pass -dir")
		os.Exit(1)
	}

	s, err := session.Open(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error starting save-the-trash: %v\n", err)
		os.Exit(1)
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	path := flag.Arg(0)
	if *batch {
		if path == "" {
			fmt.Fprintln(os.Stderr, "Error: -batch needs a photo path")
			os.Exit(2)
		}
		code := runBatch(ctx, s, path, os.Stdout, os.Stderr)
		stop()
		s.Close()
		os.Exit(code)
	}

	app, err := tui.NewApp(s.Workflow,
		tui.WithLogbook(s.Journal),
		tui.WithMaxImageBytes(s.MaxImageBytes()),
		tui.WithInitialPath(path),
		tui.WithContext(ctx),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building TUI: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		os.Exit(1)
	}
}

type batchReport struct {
	Submission workflow.Submission `json:"submission"`
	Error      string              `json:"error,omitempty"`
}

// runBatch drives a single photo through the workflow and writes the final
// submission to stdout. It returns the process exit code.
func runBatch(ctx context.Context, s *session.Session, path string, stdout, stderr io.Writer) int {
	img, err := imagefile.Load(path, s.MaxImageBytes())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	wf := s.Workflow
	if _, err := wf.SelectImage(img); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	sub, err := wf.Upload(ctx)
	if err == nil && sub.Status == workflow.StatusUploaded {
		sub, err = wf.Analyze(ctx)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	report := batchReport{Submission: sub}
	if sub.LastError != nil {
		report.Error = workflow.UserMessage(sub.LastError)
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "Error encoding result: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	if sub.Status != workflow.StatusAnalyzed {
		return 1
	}
	return 0
}
