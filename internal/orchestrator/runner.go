// File: internal/orchestrator/runner.go
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/specter-cli/api/schemas"
	"github.com/xkilldash9x/specter-cli/internal/agentloop"
	"github.com/xkilldash9x/specter-cli/internal/browser/session"
	"github.com/xkilldash9x/specter-cli/internal/channel"
	"github.com/xkilldash9x/specter-cli/internal/config"
	"github.com/xkilldash9x/specter-cli/internal/replay"
)

// Runner owns the one-browser-session-per-file policy: each suite gets a
// fresh session which every test in the file shares, closed at end-of-file.
type Runner struct {
	cfg    *config.Config
	model  schemas.ModelClient
	logger *zap.Logger

	// launchBackend is a seam for tests; the default starts a real browser.
	launchBackend func(ctx context.Context) (schemas.Backend, func(), error)
}

// NewRunner wires a runner from configuration and a model client.
func NewRunner(cfg *config.Config, model schemas.ModelClient, logger *zap.Logger) *Runner {
	r := &Runner{
		cfg:    cfg,
		model:  model,
		logger: logger,
	}
	r.launchBackend = func(ctx context.Context) (schemas.Backend, func(), error) {
		s, err := session.Launch(ctx, cfg.Browser, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return r
}

// RunSuiteFile loads a YAML suite and runs it.
func (r *Runner) RunSuiteFile(ctx context.Context, path string) (schemas.FileResult, error) {
	suite, err := LoadSuiteFile(path)
	if err != nil {
		return schemas.FileResult{File: path}, err
	}
	return r.RunSuite(ctx, suite)
}

// RunSuite executes one suite over one browser session. A launch failure
// aborts only this file; the caller moves on to the next one.
func (r *Runner) RunSuite(ctx context.Context, suite *schemas.TestSuite) (schemas.FileResult, error) {
	backend, closeBackend, err := r.launchBackend(ctx)
	if err != nil {
		return schemas.FileResult{File: suite.Name}, fmt.Errorf("launch browser for %q: %w", suite.Name, err)
	}
	defer closeBackend()

	ch := channel.New(backend, r.logger)

	if suite.BaseURL != "" {
		if err := ch.SetBaseURL(suite.BaseURL); err != nil {
			return schemas.FileResult{File: suite.Name}, err
		}
		if _, err := ch.Execute(ctx, schemas.ActionDescriptor{
			Kind: schemas.ActionNavigate,
			URL:  suite.BaseURL,
		}); err != nil {
			return schemas.FileResult{File: suite.Name}, fmt.Errorf("open base url %q: %w", suite.BaseURL, err)
		}
	}

	var store TraceStore
	if r.cfg.Cache.Enabled {
		s, err := replay.NewStore(r.cfg.Cache, r.logger)
		if err != nil {
			// A broken cache dir degrades to uncached execution.
			r.logger.Warn("Replay cache unavailable, running without it.", zap.Error(err))
		} else {
			store = s
		}
	}

	settle := rate.Inf
	if r.cfg.Cache.SettleDelay > 0 {
		settle = rate.Every(r.cfg.Cache.SettleDelay)
	}

	orch, err := New(
		agentloop.New(r.model, ch, r.logger),
		replay.NewReplayer(ch, settle, r.logger),
		store,
		ch,
		r.cfg.Runner.TurnBudget,
		r.logger,
	)
	if err != nil {
		return schemas.FileResult{File: suite.Name}, err
	}

	return orch.RunSuite(ctx, suite), nil
}
