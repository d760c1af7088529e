package domain

// ServerConfig holds server-related settings
type ServerConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"base_url"`
}

// PostgresConfig holds PostgreSQL-specific settings
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"username"`
	Pass     string `mapstructure:"password"`
	SslMode  string `mapstructure:"ssl_mode"`
}

// DatabaseConfig holds general database settings and nested specific configs
type DatabaseConfig struct {
	Type     string         `mapstructure:"type"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Path           string `mapstructure:"path"`
	Level          string `mapstructure:"level"`
	MaxFileSize    int    `mapstructure:"max_file_size"`
	MaxBackupCount int    `mapstructure:"max_backup_count"`
}

// OAuthClientConfig holds one provider's OAuth application credentials.
type OAuthClientConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url"`
}

// OAuthConfig groups the per-provider OAuth applications.
type OAuthConfig struct {
	Google    OAuthClientConfig `mapstructure:"google"`
	Microsoft OAuthClientConfig `mapstructure:"microsoft"`
}

// SyncConfig holds sync-engine and webhook settings.
type SyncConfig struct {
	// WebhookBaseURL is the public base URL providers push notifications to,
	// e.g. "https://calsync.example.com". Provider paths are appended.
	WebhookBaseURL string `mapstructure:"webhook_base_url"`
	// RenewalLookaheadHours controls how close to expiry a webhook
	// subscription must be before the renewal sweep picks it up.
	RenewalLookaheadHours int `mapstructure:"renewal_lookahead_hours"`
	// MaxConcurrentSyncs bounds how many webhook-triggered syncs run at once.
	MaxConcurrentSyncs int `mapstructure:"max_concurrent_syncs"`
	// InitialWindowDays is how far back the first Google sync reaches when no
	// sync token exists yet.
	InitialWindowDays int `mapstructure:"initial_window_days"`
}

// Config holds the application's configuration, mapped from config.toml
type Config struct {
	Version         string // not from config file
	ConfigPath      string // internal use
	CheckForUpdates bool   `mapstructure:"check_for_updates"`
	APIToken        string `mapstructure:"api_token"`

	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	OAuth    OAuthConfig    `mapstructure:"oauth"`
	Sync     SyncConfig     `mapstructure:"sync"`
}
