// Package cli is the eagle command line client. It owns the session
// manager and the task workflow and runs them against the embedded or the
// remote store.
package cli

import (
	"context"
	"fmt"

	"github.com/gartstein/eagle/internal/taskmgr/config"
	"github.com/gartstein/eagle/internal/taskmgr/controller"
	"github.com/gartstein/eagle/internal/taskmgr/db"
	e "github.com/gartstein/eagle/internal/taskmgr/errors"
	"github.com/gartstein/eagle/internal/taskmgr/models"
	"github.com/gartstein/eagle/internal/taskmgr/remote"
	"github.com/gartstein/eagle/internal/taskmgr/session"
	"go.uber.org/zap"
)

// App is the application root: one store, one session manager and one
// workflow per process.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    controller.Store
	sessions *session.Manager
	workflow *controller.Workflow
	closers  []func() error
}

// NewApp opens the configured backend. The embedded database also holds
// the persisted session in remote mode.
func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}

	dbCfg, opts := cfg.DBConfig(), cfg.DBOptions()
	if cfg.Backend == config.BackendRemote {
		// session storage only; the server owns the data
		dbCfg, opts = &db.Config{Driver: db.DriverSQLite, Path: cfg.DBPath}, nil
	}
	repo, err := db.OpenWithRetry(dbCfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, repo.Close)

	switch cfg.Backend {
	case config.BackendRemote:
		client, err := remote.NewClient(cfg.ServerURL, cfg.RequestTimeout, logger)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		app.store = client
	default:
		if cfg.Seed {
			if err := repo.Seed(ctx); err != nil {
				_ = app.Close()
				return nil, err
			}
		}
		app.store = repo
	}

	app.sessions = session.NewManager(app.store, repo, logger)
	app.workflow = controller.NewWorkflow(app.store, logger, cfg.RequestTimeout)
	return app, nil
}

// RequireUser restores the persisted session and loads the user's view.
func (a *App) RequireUser(ctx context.Context) (*models.User, error) {
	user, err := a.sessions.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: not signed in, run 'eagle login' first", e.ErrUnauthorized)
	}
	if err := a.workflow.Initialize(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
