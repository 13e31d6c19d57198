package harness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"

	"go.uber.org/zap"

	"github.com/codalotl/docxcompat/internal/config"
	"github.com/codalotl/docxcompat/internal/fileserver"
	"github.com/codalotl/docxcompat/internal/health"
	"github.com/codalotl/docxcompat/internal/render"
)

// Session is the process-level setup shared by test and reference runs: a reachable document
// server, the corpus file server and one browser tab.
type Session struct {
	Files  *fileserver.Server
	Driver *render.Driver
}

// Open checks the document server, starts the file server and launches the browser. Any
// failure here is a setup failure; partially started pieces are shut down.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := health.NewChecker(health.DefaultTimeout).Check(ctx, cfg.ServerBaseURL()); err != nil {
		return nil, err
	}
	log.Info("document server reachable", zap.String("url", cfg.ServerBaseURL()))

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.FileServerPort))
	files, err := fileserver.Start(cfg.CorpusDir, addr, log.Named("fileserver"))
	if err != nil {
		return nil, err
	}
	args, err := cfg.ExtraBrowserArgs()
	if err != nil {
		_ = files.Close()
		return nil, err
	}
	driver, err := render.Launch(ctx, render.Options{
		ServerURL:    cfg.ServerBaseURL(),
		FileBaseURL:  files.URL(),
		Language:     cfg.Language,
		Width:        cfg.ViewportWidth,
		Height:       cfg.ViewportHeight,
		ReadyTimeout: cfg.DocumentReadyTimeout,
		SettleDelay:  cfg.SettleDelay,
		PollInterval: cfg.PollInterval,
		BrowserPath:  cfg.BrowserPath,
		ExtraArgs:    args,
		Headless:     cfg.Headless,
		Logger:       log.Named("render"),
	})
	if err != nil {
		_ = files.Close()
		return nil, err
	}
	return &Session{Files: files, Driver: driver}, nil
}

// Close stops the browser, then the file server.
func (s *Session) Close() error {
	var errs []error
	if s.Driver != nil {
		if err := s.Driver.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if s.Files != nil {
		if err := s.Files.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stop file server: %w", err))
		}
	}
	return errors.Join(errs...)
}
