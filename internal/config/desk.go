package config

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/evalops/sales-desk/internal/catalog"
	"github.com/evalops/sales-desk/internal/nda"
	"github.com/evalops/sales-desk/internal/policy"
	"github.com/evalops/sales-desk/internal/respond"
	"github.com/evalops/sales-desk/internal/state"
)

// Desk is the sales-team-owned configuration document: which documents
// exist, who has an NDA, how replies read, and how processing behaves.
type Desk struct {
	Artifacts   *catalog.Catalog  `yaml:"artifacts"`
	NDADatabase []string          `yaml:"nda_database"`
	Templates   respond.Templates `yaml:"templates"`
	Settings    Settings          `yaml:"settings"`
}

// Settings is the `settings:` section of the desk document.
type Settings struct {
	LinkExpirationDays   int           `yaml:"link_expiration_days"`
	EmailSignature       string        `yaml:"email_signature"`
	CompanyName          string        `yaml:"company_name"`
	AutoSendWhenApproved bool          `yaml:"auto_send_when_approved"`
	DryRun               bool          `yaml:"dry_run"`
	Escalation           Escalation    `yaml:"escalation"`
	Monitoring           Monitoring    `yaml:"monitoring"`
	Notifications        Notifications `yaml:"notifications"`
	Persistence          state.Config  `yaml:"persistence"`
}

// Escalation mirrors policy.Escalation in YAML form. The threshold is a
// pointer so an explicit 0 ("escalate on any denial") is distinguishable
// from the field being absent.
type Escalation struct {
	MaxSensitiveWithoutNDA *int     `yaml:"max_sensitive_without_nda"`
	HumanReviewKeywords    []string `yaml:"human_review_keywords"`
}

// Monitoring configures the polling monitor.
type Monitoring struct {
	CheckInterval int      `yaml:"check_interval"` // seconds between cycles
	MaxPerCycle   int      `yaml:"max_per_cycle"`
	SearchQueries []string `yaml:"search_queries"`
}

// Notifications configures escalation fan-out.
type Notifications struct {
	Slack Slack `yaml:"slack"`
}

// Slack is an incoming-webhook destination for escalation notices.
type Slack struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// Default search queries for the polling monitor, used when the document
// does not name its own.
func defaultSearchQueries() []string {
	return []string{
		"is:unread (soc2 OR soc 2 OR security OR compliance OR audit OR questionnaire OR pentest OR iso27001)",
		"is:unread subject:(security documentation OR due diligence OR vendor assessment)",
		"is:unread (DPA OR NDA OR insurance certificate)",
	}
}

// DefaultDesk returns the built-in desk configuration, equivalent to an
// empty document with all defaults applied.
func DefaultDesk() *Desk {
	d := &Desk{}
	d.applyDefaults()
	return d
}

// LoadDesk reads the desk document at path. A missing file, unparsable
// YAML, or a document that fails schema validation degrades to the built-in
// defaults with a warning rather than refusing to start: the desk keeps
// answering with its stock catalog while the operator fixes the document.
// Persistence misconfiguration is NOT forgiven here — it surfaces as a
// fatal error from state.New, because silently losing idempotency is worse
// than not starting.
func LoadDesk(path string) *Desk {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("desk_config_unreadable_using_defaults")
		}
		return DefaultDesk()
	}

	if err := ValidateDeskSchema(data); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("desk_config_invalid_using_defaults")
		return DefaultDesk()
	}

	var d Desk
	if err := yaml.Unmarshal(data, &d); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("desk_config_unparsable_using_defaults")
		return DefaultDesk()
	}

	d.applyDefaults()
	return &d
}

func (d *Desk) applyDefaults() {
	s := &d.Settings
	if s.LinkExpirationDays <= 0 {
		s.LinkExpirationDays = 7
	}
	if s.EmailSignature == "" {
		s.EmailSignature = respond.DefaultSignature
	}
	if s.CompanyName == "" {
		s.CompanyName = "Your Company"
	}
	if s.Monitoring.CheckInterval <= 0 {
		s.Monitoring.CheckInterval = 60
	}
	if s.Monitoring.MaxPerCycle <= 0 {
		s.Monitoring.MaxPerCycle = 10
	}
	if len(s.Monitoring.SearchQueries) == 0 {
		s.Monitoring.SearchQueries = defaultSearchQueries()
	}
}

// Catalog returns the configured artifact catalog, or the built-in one when
// the document defines none.
func (d *Desk) Catalog() *catalog.Catalog {
	if d.Artifacts == nil || d.Artifacts.Len() == 0 {
		return catalog.Default()
	}
	return d.Artifacts
}

// Registry returns the configured NDA registry, or the built-in one when
// the document defines none.
func (d *Desk) Registry() *nda.Registry {
	if len(d.NDADatabase) == 0 {
		return nda.Default()
	}
	return nda.NewRegistry(d.NDADatabase)
}

// EscalationPolicy converts the YAML escalation section into the policy
// engine's thresholds, filling defaults for absent fields.
func (d *Desk) EscalationPolicy() policy.Escalation {
	esc := policy.DefaultEscalation()
	if d.Settings.Escalation.MaxSensitiveWithoutNDA != nil {
		esc.MaxSensitiveWithoutNDA = *d.Settings.Escalation.MaxSensitiveWithoutNDA
	}
	if len(d.Settings.Escalation.HumanReviewKeywords) > 0 {
		esc.HumanReviewKeywords = d.Settings.Escalation.HumanReviewKeywords
	}
	return esc
}

// Summary is a one-line description of the loaded document, for startup
// logging and the status command.
func (d *Desk) Summary() string {
	return fmt.Sprintf("%d artifacts, %d NDA entries, expiration %dd",
		d.Catalog().Len(), d.Registry().Len(), d.Settings.LinkExpirationDays)
}
