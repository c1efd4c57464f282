package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/evalops/sales-desk/internal/audit"
	"github.com/evalops/sales-desk/internal/config"
	"github.com/evalops/sales-desk/internal/desk"
	"github.com/evalops/sales-desk/internal/ingest"
	"github.com/evalops/sales-desk/internal/mail"
	"github.com/evalops/sales-desk/internal/notify"
	"github.com/evalops/sales-desk/internal/policy"
	"github.com/evalops/sales-desk/internal/respond"
	"github.com/evalops/sales-desk/internal/state"
)

// app bundles the wired components a command needs.
type app struct {
	cfg      *config.Config
	deskCfg  *config.Desk
	store    state.Store
	auditLog *audit.Logger
	metrics  *audit.Collector
	service  *ingest.Service
}

// buildApp wires the full pipeline on top of the given mailbox client.
// Desk-document problems degrade to defaults inside LoadDesk; persistence
// problems are fatal here.
func buildApp(mailClient mail.Client) (*app, error) {
	cfg := config.Load()
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	deskCfg := config.LoadDesk(cfg.DeskConfig)
	log.Info().Str("desk_config", cfg.DeskConfig).Str("desk", deskCfg.Summary()).Msg("desk_config_loaded")

	persistence := deskCfg.Settings.Persistence
	if persistence.Backend == state.BackendSQLite && persistence.SQLitePath == "" {
		persistence.SQLitePath = cfg.StateDBPath()
	}
	store, err := state.New(persistence)
	if err != nil {
		return nil, fmt.Errorf("initializing state store: %w", err)
	}

	auditLog, err := audit.NewLogger(cfg.AuditLogPath())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("initializing audit log: %w", err)
	}

	var notifier notify.Notifier = notify.Noop{}
	slack := deskCfg.Settings.Notifications.Slack
	if slack.Enabled && slack.WebhookURL != "" {
		notifier = notify.NewSlack(slack.WebhookURL)
	}

	c := deskCfg.Catalog()
	engine := policy.NewEngine(c, deskCfg.EscalationPolicy())
	composer := respond.NewComposer(c, deskCfg.Templates,
		deskCfg.Settings.LinkExpirationDays, deskCfg.Settings.EmailSignature)
	processor := desk.NewProcessor(c, deskCfg.Registry(), engine, composer,
		deskCfg.Settings.LinkExpirationDays)

	metrics := audit.NewCollector()
	service := ingest.NewService(mailClient, processor, store, deskCfg.Settings,
		notifier, auditLog, metrics)

	return &app{
		cfg:      cfg,
		deskCfg:  deskCfg,
		store:    store,
		auditLog: auditLog,
		metrics:  metrics,
		service:  service,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	if err := a.auditLog.Close(); err != nil {
		log.Warn().Err(err).Msg("audit_log_close_failed")
	}
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("state_store_close_failed")
	}
}
