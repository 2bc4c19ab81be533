// Package session wires config, logging, credentials and the backend client
// into a ready-to-use workflow. Both the TUI and batch mode start here.
package session

import (
	"errors"
	"fmt"

	"github.com/kingrea/save-the-trash/internal/backend"
	"github.com/kingrea/save-the-trash/internal/config"
	"github.com/kingrea/save-the-trash/internal/credentials"
	"github.com/kingrea/save-the-trash/internal/logbook"
	"github.com/kingrea/save-the-trash/internal/logging"
	"github.com/kingrea/save-the-trash/internal/workflow"
)

// Session owns everything opened for one run of the program.
type Session struct {
	Config   *config.Config
	Logger   *logging.Logger
	Journal  *logbook.Logbook
	Client   *backend.Client
	Workflow *workflow.Workflow
}

// Open prepares baseDir/.savethetrash and builds the workflow. Close must be
// called when the session is no longer needed.
func Open(baseDir string) (*Session, error) {
	if err := config.InitAppDir(baseDir); err != nil {
		return nil, fmt.Errorf("session: init app dir: %w", err)
	}
	cfg, err := config.NewConfig(baseDir)
	if err != nil {
		return nil, err
	}
	settings := cfg.Settings

	logger, err := logging.New(cfg.LogsDir(), settings.Logging.Level)
	if err != nil {
		return nil, err
	}
	journal, err := logbook.New(cfg.JournalPath())
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("session: open journal: %w", err)
	}

	creds, err := credentials.FromConfig(settings.Credentials)
	if err != nil {
		logger.Close()
		return nil, err
	}
	client, err := backend.NewClient(backend.Options{
		BaseURL:          settings.Backend.BaseURL,
		UploadPath:       settings.Backend.UploadPath,
		AnalyzePath:      settings.Backend.AnalyzePath,
		Timeout:          settings.Backend.TimeoutDuration(),
		MaxResponseBytes: settings.Backend.MaxResponseBytes,
		Logger:           &logger.Logger,
	})
	if err != nil {
		logger.Close()
		return nil, err
	}

	wf, err := workflow.New(creds, client, client,
		workflow.WithObserver(logger.Observer()),
		workflow.WithObserver(journal.Observer()),
	)
	if err != nil {
		logger.Close()
		return nil, err
	}

	logger.Info().
		Str("base_url", settings.Backend.BaseURL).
		Str("credentials", settings.Credentials.Source).
		Msg("session opened")

	return &Session{
		Config:   cfg,
		Logger:   logger,
		Journal:  journal,
		Client:   client,
		Workflow: wf,
	}, nil
}

// MaxImageBytes is the configured upload size limit.
func (s *Session) MaxImageBytes() int64 {
	return s.Config.Settings.Images.MaxBytes
}

// Close resets any outstanding call and releases the log file.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	if s.Workflow != nil && s.Workflow.InFlight() {
		s.Workflow.Reset()
	}
	if s.Logger != nil {
		s.Logger.Info().Msg("session closed")
		errs = append(errs, s.Logger.Close())
	}
	return errors.Join(errs...)
}
