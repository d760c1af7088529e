package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

var configTemplate = `# config.toml

# Check for updates
# Default is: true
check_for_updates = true

# API token
# Bearer token the surrounding application presents on every API call.
# Generated automatically on the first run if not set.
api_token = "{{ .apiToken }}"

[server]
  # Hostname or IP address for the server to listen on.
  # Default: "{{ .host }}" ("0.0.0.0" for all interfaces, especially in Docker)
  host = "{{ .host }}"

  # Port for the server to listen on.
  # Default: 8484
  port = 8484

  # Base URL for serving the API under a subdirectory.
  # Optional.
  # Default: ""
  #base_url = ""

[database]
  # Database type to use.
  # Supported: "sqlite", "postgres"
  # Default: "sqlite"
  type = "sqlite"

  # --- PostgreSQL Settings ---
  # Only used if database.type is set to "postgres".
  [database.postgres]
    host = "localhost"
    port = 5432
    database = "postgres"
    username = "postgres"
    password = "postgres"
    ssl_mode = "disable"

[logging]
  # Log file path. If empty, logs go to standard error only.
  # Default: ""
  path = "log/"

  # Log level.
  # Options: "ERROR", "WARN", "INFO", "DEBUG", "TRACE"
  # Default: "DEBUG"
  level = "DEBUG"

  # Maximum size of a log file in megabytes before rotation.
  # Default: 50
  max_file_size = 50

  # Maximum number of old log files to keep.
  # Default: 3
  max_backup_count = 3

[oauth]
  # OAuth application credentials per provider. Connections cannot be
  # established for a provider left unconfigured.
  [oauth.google]
    client_id = ""
    client_secret = ""
    redirect_url = ""

  [oauth.microsoft]
    client_id = ""
    client_secret = ""
    redirect_url = ""

[sync]
  # Public base URL the calendar providers push webhook notifications to.
  # Provider paths (/api/webhooks/google, /api/webhooks/microsoft) are
  # appended automatically.
  webhook_base_url = ""

  # Renew webhook subscriptions expiring within this many hours.
  # Default: 24
  renewal_lookahead_hours = 24

  # Maximum number of webhook-triggered syncs running at once.
  # Default: 4
  max_concurrent_syncs = 4

  # How many days back the first sync reaches when no cursor exists yet.
  # Default: 30
  initial_window_days = 30
`

var generateRandomString = func(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func writeConfig(configPath string, configFile string) error {
	cfgPath := filepath.Join(configPath, configFile)

	// check if configPath exists, if not create it
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(configPath, os.ModePerm); err != nil {
			log.Println(err)
			return err
		}
	}

	// check if config exists, if not create it
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		// set default host
		host := "127.0.0.1"

		if _, dockerErr := os.Stat("/.dockerenv"); dockerErr == nil {
			host = "0.0.0.0"
		} else if pd, cgroupErr := os.Open("/proc/1/cgroup"); cgroupErr == nil {
			defer pd.Close()
			b := make([]byte, 4096)
			if _, readErr := pd.Read(b); readErr == nil {
				if strings.Contains(string(b), "/docker") || strings.Contains(string(b), "/lxc") {
					host = "0.0.0.0"
				}
			}
		}

		f, createErr := os.Create(cfgPath)
		if createErr != nil {
			log.Printf("error creating file: %q", createErr)
			return createErr
		}
		defer f.Close()

		apiToken, tokenErr := generateRandomString(16)
		if tokenErr != nil {
			log.Printf("Failed to generate api token: %v. Replace the placeholder before use.", tokenErr)
			apiToken = "replace-this-token-immediately"
		}

		tmpl, tmplErr := template.New("config").Parse(configTemplate)
		if tmplErr != nil {
			return errors.Wrap(tmplErr, "could not create config template")
		}

		tmplVars := map[string]string{
			"host":     host,
			"apiToken": apiToken,
		}

		var buffer bytes.Buffer
		if execErr := tmpl.Execute(&buffer, &tmplVars); execErr != nil {
			return errors.Wrap(execErr, "could not write config template output")
		}

		if _, writeErr := f.WriteString(buffer.String()); writeErr != nil {
			log.Printf("error writing contents to file: %v %q", configPath, writeErr)
			return writeErr
		}

		return f.Sync()
	}

	return nil
}

type Config interface {
	DynamicReload(log logger.Logger)
}

type AppConfig struct {
	Config *domain.Config
	m      sync.Mutex
}

func New(configPath string, version string) *AppConfig {
	c := &AppConfig{}
	c.defaults()
	c.Config.Version = version
	c.Config.ConfigPath = configPath

	c.load(configPath)

	return c
}

func (c *AppConfig) defaults() {
	c.Config = &domain.Config{
		Version:         "dev",
		ConfigPath:      "",
		CheckForUpdates: true,
		APIToken:        "",
		Server: domain.ServerConfig{
			Host:    "127.0.0.1",
			Port:    8484,
			BaseURL: "",
		},
		Database: domain.DatabaseConfig{
			Type: "sqlite",
			Postgres: domain.PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "postgres",
				User:     "postgres",
				Pass:     "postgres",
				SslMode:  "disable",
			},
		},
		Logging: domain.LoggingConfig{
			Path:           "",
			Level:          "DEBUG",
			MaxFileSize:    50,
			MaxBackupCount: 3,
		},
		OAuth: domain.OAuthConfig{},
		Sync: domain.SyncConfig{
			WebhookBaseURL:        "",
			RenewalLookaheadHours: 24,
			MaxConcurrentSyncs:    4,
			InitialWindowDays:     30,
		},
	}
}

func (c *AppConfig) load(configPath string) {
	viper.SetConfigType("toml")
	configPath = path.Clean(configPath)

	if configPath != "" {
		if err := writeConfig(configPath, "config.toml"); err != nil {
			log.Printf("writeConfig error during load: %q", err)
		}
		viper.SetConfigFile(path.Join(configPath, "config.toml"))
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/calsync")
		viper.AddConfigPath("$HOME/.calsync")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Config file not found, using defaults: %s", viper.ConfigFileUsed())
		} else {
			log.Printf("Config read error: %q. Using defaults.", err)
		}
	}

	if err := viper.Unmarshal(&c.Config); err != nil {
		log.Fatalf("Could not unmarshal config file into struct: %v. Config file used: %s", err, viper.ConfigFileUsed())
	}
}

func (c *AppConfig) DynamicReload(log logger.Logger) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		c.m.Lock()
		defer c.m.Unlock()

		log.Info().Msgf("Config file changed: %s. Reloading configuration.", e.Name)

		if err := viper.ReadInConfig(); err != nil {
			log.Error().Err(err).Msg("Error reading config file during dynamic reload")
			return
		}

		var newConfig domain.Config
		// Version and ConfigPath are not file-backed
		newConfig.Version = c.Config.Version
		newConfig.ConfigPath = c.Config.ConfigPath

		if err := viper.Unmarshal(&newConfig); err != nil {
			log.Error().Err(err).Msg("Error unmarshalling config during dynamic reload")
			return
		}

		c.Config = &newConfig

		log.SetLogLevel(c.Config.Logging.Level)

		log.Debug().Msg("Configuration reloaded successfully!")
	})
	viper.WatchConfig()
}
