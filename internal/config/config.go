// Package config holds OPERATOR-LEVEL configuration for a sales-desk
// installation: listen address, data directory, webhook shared secret, and
// the path of the desk configuration file. Set via env vars (SALESDESK_*)
// or salesdesk.config.yaml.
//
// The desk configuration itself — catalog, NDA registry, reply templates,
// processing settings — is a separate YAML document owned by the sales team,
// loaded by Desk in this package. The split keeps deployment knobs out of
// the document the sales team edits.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the SALESDESK_ prefix
// (e.g. "webhook_secret" → SALESDESK_WEBHOOK_SECRET) and to a YAML field
// in salesdesk.config.yaml.
const (
	KeyListenAddr    = "listen_addr"
	KeyDataDir       = "data_dir"
	KeyWebhookSecret = "webhook_secret"
	KeyDeskConfig    = "desk_config"
)

const (
	DefaultListenAddr = ":8080"
	DefaultDeskConfig = "salesdesk.yaml"
)

// Config holds resolved operator-level configuration for a process.
type Config struct {
	ListenAddr    string // HTTP bind address for the webhook server
	DataDir       string // Base directory for local state (~/.salesdesk)
	WebhookSecret string // Shared secret expected in X-Webhook-Secret
	DeskConfig    string // Path to the desk configuration YAML
}

// StateDBPath returns the default path of the SQLite state database, used
// when the desk config selects the sqlite backend without naming a path.
func (c *Config) StateDBPath() string {
	return filepath.Join(c.DataDir, "state.db")
}

// AuditLogPath returns the path of the JSON-lines audit log.
func (c *Config) AuditLogPath() string {
	return filepath.Join(c.DataDir, "audit.log")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func init() {
	viper.SetEnvPrefix("SALESDESK")
	viper.AutomaticEnv()
	viper.SetDefault(KeyListenAddr, DefaultListenAddr)
	viper.SetDefault(KeyDeskConfig, DefaultDeskConfig)
}

// Load reads configuration from Viper (which merges env vars, config file,
// and defaults) and returns a Config. The webhook secret may legitimately be
// empty for monitor-only deployments; the server refuses webhook traffic
// when it is.
func Load() *Config {
	return &Config{
		ListenAddr:    viper.GetString(KeyListenAddr),
		DataDir:       resolveDataDir(),
		WebhookSecret: viper.GetString(KeyWebhookSecret),
		DeskConfig:    viper.GetString(KeyDeskConfig),
	}
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".salesdesk"
	}
	return filepath.Join(home, ".salesdesk")
}
