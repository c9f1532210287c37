// Package app wires the store, services and side-effect sinks from a
// resolved configuration. The server, CLI and seed binaries share it.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/opengov/internal/activity"
	"github.com/jmerrifield20/opengov/internal/config"
	"github.com/jmerrifield20/opengov/internal/email"
	"github.com/jmerrifield20/opengov/internal/events"
	"github.com/jmerrifield20/opengov/internal/health"
	"github.com/jmerrifield20/opengov/internal/lifecycle"
	"github.com/jmerrifield20/opengov/internal/model"
	"github.com/jmerrifield20/opengov/internal/service"
	"github.com/jmerrifield20/opengov/internal/store"
	"github.com/jmerrifield20/opengov/internal/voting"
	"go.uber.org/zap"
)

// App holds the wired components.
type App struct {
	Store     store.Store
	Users     *service.UserService
	Reports   *service.ReportService
	Ledger    activity.Ledger
	Publisher events.Publisher
	Health    *health.Checker

	closers []func()
	logger  *zap.Logger
}

// Build opens every backend named in cfg. On error, whatever was already
// opened is closed again.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{logger: logger, Health: health.New(cfg.Health, logger)}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// ── Store ────────────────────────────────────────────────────────────
	a.Store, err = store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if cerr := a.Store.Close(); cerr != nil {
			logger.Warn("close store", zap.Error(cerr))
		}
	})
	a.Health.Add("store", a.Store)

	// ── Activity ledger ──────────────────────────────────────────────────
	switch cfg.Activity.Driver {
	case "", "memory":
		a.Ledger = activity.NewMemoryLedger()
	case "postgres":
		pool, perr := pgxpool.New(ctx, cfg.Activity.PostgresURL)
		if perr != nil {
			return nil, fmt.Errorf("connect activity postgres: %w", perr)
		}
		a.closers = append(a.closers, pool.Close)
		a.Ledger = activity.NewPostgresLedger(pool, logger)
		a.Health.Add("activity", health.PingFunc(pool.Ping))
	default:
		return nil, fmt.Errorf("unknown activity driver %q", cfg.Activity.Driver)
	}

	// ── Events ───────────────────────────────────────────────────────────
	a.Publisher, err = events.Open(cfg.Events, logger)
	if err != nil {
		return nil, fmt.Errorf("open event publisher: %w", err)
	}
	a.closers = append(a.closers, func() {
		if cerr := a.Publisher.Close(); cerr != nil {
			logger.Warn("close event publisher", zap.Error(cerr))
		}
	})

	// ── E-mail ───────────────────────────────────────────────────────────
	var sender email.Sender
	if cfg.Email.Host != "" {
		sender = email.NewSMTPSender(cfg.Email)
		logger.Info("SMTP email sender configured", zap.String("host", cfg.Email.Host))
	} else {
		sender = email.NewNoopSender(logger)
		logger.Info("email sender: noop (set email.smtp_host to enable SMTP)")
	}

	// ── Services ─────────────────────────────────────────────────────────
	a.Users = service.NewUserService(store.NewCollection[model.User](a.Store, store.UsersKey, logger), logger)
	a.Reports = service.NewReportService(
		store.NewCollection[*model.Report](a.Store, store.ReportsKey, logger),
		a.Users,
		lifecycle.New(cfg.Policy),
		voting.New(cfg.Policy),
		logger,
	)
	a.Reports.SetLedger(a.Ledger)
	a.Reports.SetPublisher(a.Publisher)
	a.Reports.SetNotifier(email.NewNotifier(sender, cfg.Server.BaseURL))
	return a, nil
}

// Close releases backends in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
