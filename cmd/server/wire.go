package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/and161185/plaze/internal/config"
	"github.com/and161185/plaze/internal/migrate"
	"github.com/and161185/plaze/internal/notify"
	"github.com/and161185/plaze/internal/repository"
	"github.com/and161185/plaze/internal/repository/postgres"
	"github.com/and161185/plaze/internal/repository/sqlite"
)

// openStore migrates and opens the configured backend.
func openStore(ctx context.Context, cfg config.DatabaseConfig) (repository.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if err := migrate.Up(ctx, cfg.DSN); err != nil {
			return nil, nil, err
		}
		db, err := postgres.New(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewStore(db), db.Close, nil
	default:
		// sqlite.Open runs its own migrations
		db, err := sqlite.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return sqlite.NewStore(db), func() { _ = db.Close() }, nil
	}
}

// newNotifier mails through SMTP when a host is configured and logs links otherwise.
func newNotifier(cfg *config.Config, log *zap.Logger) (notify.Notifier, error) {
	if !cfg.SMTP.Enabled() {
		log.Warn("smtp host not set, emails will be logged instead of sent")
		return notify.NewLogNotifier(log.Named("mail")), nil
	}
	return notify.NewMailer(cfg.SMTP, cfg.Mail.Timeout)
}
