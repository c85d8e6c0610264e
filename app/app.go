// Package app wires configuration, logging and the engine into a process
// that serves until it is signalled.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/searchktools/tinyweb/config"
	"github.com/searchktools/tinyweb/core"
	"github.com/searchktools/tinyweb/core/pools"
)

// App is the application instance.
type App struct {
	cfg    *config.Config
	log    *zap.Logger
	engine *core.Engine
}

// NewLogger builds a JSON production logger, or a console logger in the
// development environment, at the configured level.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development() {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	log, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(err, "app: build logger")
	}
	return log, nil
}

// New creates an application instance serving cfg.Root.
func New(cfg *config.Config) (*App, error) {
	log, err := NewLogger(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithLogger(cfg, log), nil
}

// NewWithLogger creates an application instance that logs to log.
func NewWithLogger(cfg *config.Config, log *zap.Logger) *App {
	return &App{
		cfg:    cfg,
		log:    log,
		engine: core.NewEngine(cfg.Root, log),
	}
}

// Engine returns the underlying engine for route registration
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.log
}

// Run serves until ctx is done or the process receives SIGINT or SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.log.Sync() //nolint:errcheck

	defer pools.ApplyGCConfig(pools.GCConfig{Percent: a.cfg.GCPercent, MemoryLimit: a.cfg.MemoryLimit})()

	a.log.Info("starting", zap.String("addr", a.cfg.Addr), zap.String("env", a.cfg.Env))
	if err := a.engine.ListenAndServe(ctx, a.cfg.Addr); err != nil {
		return errors.Wrap(err, "app: serve")
	}
	a.log.Info("shut down")
	return nil
}
