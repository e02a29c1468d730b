// Package config loads the registration service configuration.
//
// Values are layered: built-in defaults, then an optional YAML file (path
// from the --config flag or REGBOT_CONFIG), then environment variable
// overrides. Environment wins so containers can be configured without a
// file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/database"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/invoice"
)

// EnvConfigPath names the variable consulted when no --config flag is given.
const EnvConfigPath = "REGBOT_CONFIG"

// Storage backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig    `yaml:"server"`
	Storage      StorageConfig   `yaml:"storage"`
	Database     database.Config `yaml:"database"`
	Invoice      InvoiceConfig   `yaml:"invoice"`
	Kafka        KafkaConfig     `yaml:"kafka"`
	Email        EmailConfig     `yaml:"email"`
	Session      SessionConfig   `yaml:"session"`
	Log          LogConfig       `yaml:"log"`
	Translations string          `yaml:"translations"`
	DeepLinkBase string          `yaml:"deep_link_base"`
	Timezone     string          `yaml:"timezone"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig selects the store backend and, for the file backend, where
// the tables live.
type StorageConfig struct {
	// Backend is "file" or "postgres".
	Backend string `yaml:"backend"`

	// DataDir is the base directory for relative file paths below.
	DataDir string `yaml:"data_dir"`

	Events     string `yaml:"events"`
	Ledger     string `yaml:"ledger"`
	Counter    string `yaml:"counter"`
	JournalDir string `yaml:"journal_dir"`
}

// InvoiceConfig configures invoice numbering and artifacts.
type InvoiceConfig struct {
	Prefix string         `yaml:"prefix"`
	Dir    string         `yaml:"dir"`
	Issuer invoice.Issuer `yaml:"issuer"`
}

// KafkaConfig configures the operator channel and the message relay. An
// empty broker list disables both.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	OperatorTopic string   `yaml:"operator_topic"`
	InboundTopic  string   `yaml:"inbound_topic"`
	OutboundTopic string   `yaml:"outbound_topic"`
	GroupID       string   `yaml:"group_id"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// RelayEnabled reports whether the inbound/outbound relay should run.
func (k KafkaConfig) RelayEnabled() bool {
	return k.Enabled() && k.InboundTopic != "" && k.OutboundTopic != ""
}

// EmailConfig configures registrant email. An empty API key disables it.
type EmailConfig struct {
	ResendAPIKey string `yaml:"resend_api_key"`
	From         string `yaml:"from"`
	Subject      string `yaml:"subject"`
}

// Enabled reports whether email delivery is configured.
func (e EmailConfig) Enabled() bool {
	return e.ResendAPIKey != "" && e.From != ""
}

// SessionConfig bounds how long an idle dialogue is kept in memory.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing else is specified.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Backend:    BackendFile,
			DataDir:    "data",
			Events:     "games.csv",
			Ledger:     "user_data.json",
			Counter:    "invoice_counter.json",
			JournalDir: "journal",
		},
		Database: database.DefaultConfig(),
		Invoice: InvoiceConfig{
			Prefix: "OG",
			Dir:    "invoice_store",
		},
		Kafka: KafkaConfig{
			OperatorTopic: "registrations",
			InboundTopic:  "dialogue.inbound",
			OutboundTopic: "dialogue.outbound",
			GroupID:       "regbot",
		},
		Email: EmailConfig{
			Subject: "Your registration invoice",
		},
		Session: SessionConfig{
			TTL:           24 * time.Hour,
			PruneInterval: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and the process environment.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path == "" {
		path, _ = lookup(EnvConfigPath)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("PORT", &c.Server.Port)
	str("STORAGE_BACKEND", &c.Storage.Backend)
	str("DATA_DIR", &c.Storage.DataDir)

	str("DB_HOST", &c.Database.Host)
	str("DB_PORT", &c.Database.Port)
	str("DB_USER", &c.Database.User)
	str("DB_PASSWORD", &c.Database.Password)
	str("DB_NAME", &c.Database.DBName)
	str("DB_SSLMODE", &c.Database.SSLMode)
	str("DATABASE_URL", &c.Database.URL)

	str("INVOICE_PREFIX", &c.Invoice.Prefix)
	str("INVOICE_DIR", &c.Invoice.Dir)

	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	str("KAFKA_OPERATOR_TOPIC", &c.Kafka.OperatorTopic)
	str("KAFKA_INBOUND_TOPIC", &c.Kafka.InboundTopic)
	str("KAFKA_OUTBOUND_TOPIC", &c.Kafka.OutboundTopic)
	str("KAFKA_GROUP_ID", &c.Kafka.GroupID)

	str("RESEND_API_KEY", &c.Email.ResendAPIKey)
	str("RESEND_FROM", &c.Email.From)

	str("TRANSLATIONS_PATH", &c.Translations)
	str("DEEP_LINK_BASE", &c.DeepLinkBase)
	str("TZ_NAME", &c.Timezone)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	return errors.Join(
		dur("SESSION_TTL", &c.Session.TTL),
		dur("SESSION_PRUNE_INTERVAL", &c.Session.PruneInterval),
	)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// resolvePaths anchors relative store paths at DataDir.
func (c *Config) resolvePaths() {
	s := &c.Storage
	for _, p := range []*string{&s.Events, &s.Ledger, &s.Counter, &s.JournalDir, &c.Invoice.Dir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(s.DataDir, *p)
		}
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.Events == "" || c.Storage.Ledger == "" || c.Storage.Counter == "" {
			errs = append(errs, errors.New("storage: events, ledger and counter paths are required"))
		}
	case BackendPostgres:
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q: must be %q or %q", c.Storage.Backend, BackendFile, BackendPostgres))
	}
	if c.Invoice.Prefix == "" || strings.Contains(c.Invoice.Prefix, "_") {
		errs = append(errs, fmt.Errorf("invoice.prefix %q: must be non-empty and contain no underscore", c.Invoice.Prefix))
	}
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is required"))
	} else if _, err := strconv.Atoi(c.Server.Port); err != nil {
		errs = append(errs, fmt.Errorf("server.port %q: %w", c.Server.Port, err))
	}
	if c.Session.TTL <= 0 || c.Session.PruneInterval <= 0 {
		errs = append(errs, errors.New("session.ttl and session.prune_interval must be positive"))
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("timezone: %w", err))
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q: must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Location returns the configured time zone, or time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
