// Package config provides application configuration management from config files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfiguration marks every configuration problem. A connector must not start when it is returned.
var ErrConfiguration = errors.New("configuration error")

// keyDelimiter keeps Flume-style dotted keys such as "columns.to.select" flat.
const keyDelimiter = "::"

// Defaults for source options
const (
	DefaultQueryDelay   = 10000 // milliseconds
	DefaultBatchSize    = 100
	DefaultStartFrom    = 0
	DefaultDelimiter    = ","
	DefaultCharset      = "UTF-8"
	DefaultColumns      = "*"
	DefaultCursorColumn = "id"
	DefaultCursorTable  = "flume_meta"
)

// Cursor advance policies
const (
	CursorModeCount = "count"
	CursorModeMax   = "max"
)

// Custom query substitution modes
const (
	SubstitutionToken    = "token"
	SubstitutionTrailing = "trailing"
)

// Sink types
const (
	SinkStdout = "stdout"
	SinkFile   = "file"
	SinkKafka  = "kafka"
	SinkSpool  = "spool"
)

// Config holds application configuration
type Config struct {
	LogLevel      string `mapstructure:"log_level"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb" validate:"gte=0"`
	LogMaxBackups int    `mapstructure:"log_max_backups" validate:"gte=0"`
	LogMaxAgeDays int    `mapstructure:"log_max_age_days" validate:"gte=0"`
	APIHost       string `mapstructure:"api_host"`
	APIPort       string `mapstructure:"api_port"`

	CursorStore CursorStore `mapstructure:"cursor_store"`
	Sink        Sink        `mapstructure:"sink"`
	Sources     []Source    `mapstructure:"-" validate:"dive"`
}

// CursorStore configures where cursors are persisted
type CursorStore struct {
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Table    string `mapstructure:"table" validate:"required"`
}

// Sink configures the downstream consumer of serialized rows
type Sink struct {
	Type      string   `mapstructure:"type" validate:"oneof=stdout file kafka spool"`
	Path      string   `mapstructure:"path" validate:"required_if=Type file"`
	MaxSizeMB int      `mapstructure:"max_size_mb" validate:"gte=0"`
	Brokers   []string `mapstructure:"brokers" validate:"required_if=Type kafka"`
	Topic     string   `mapstructure:"topic" validate:"required_if=Type kafka"`
	SpoolDir  string   `mapstructure:"spool_dir" validate:"required_if=Type spool"`
}

// Source is the per-table (or per-query) configuration. Keys keep the Flume property names.
type Source struct {
	ID                 string `mapstructure:"source.id"`
	Table              string `mapstructure:"table"`
	ColumnsToSelect    string `mapstructure:"columns.to.select"`
	CustomQuery        string `mapstructure:"custom.query"`
	Substitution       string `mapstructure:"custom.query.substitution" validate:"oneof=token trailing"`
	BatchSize          int    `mapstructure:"batch.size" validate:"gt=0"`
	StartFrom          int64  `mapstructure:"start.from" validate:"gte=0"`
	RunQueryDelay      int    `mapstructure:"run.query.delay" validate:"gt=0"`
	ConnectionURL      string `mapstructure:"connection.url"`
	ConnectionUser     string `mapstructure:"connection.user"`
	ConnectionPassword string `mapstructure:"connection.password"`
	Charset            string `mapstructure:"default.charset.resultset"`
	Delimiter          string `mapstructure:"delimiter.entry"`
	CursorMode         string `mapstructure:"cursor.mode" validate:"oneof=count max"`
	CursorColumn       string `mapstructure:"cursor.column" validate:"required"`
}

// Interval returns run.query.delay as a duration
func (s Source) Interval() time.Duration {
	return time.Duration(s.RunQueryDelay) * time.Millisecond
}

// IsCustomQuery reports whether the source runs a custom query instead of a table projection
func (s Source) IsCustomQuery() bool {
	return s.CustomQuery != ""
}

// Load reads configuration from the given file (optional) and environment variables.
// An empty path loads only defaults and the environment.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetDefault("log_level", "info")
	v.SetDefault("log_max_size_mb", 100)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("log_max_age_days", 28)
	v.SetDefault("api_host", "0.0.0.0")
	v.SetDefault("api_port", "8080")
	v.SetDefault("cursor_store::table", DefaultCursorTable)
	v.SetDefault("sink::type", SinkStdout)
	v.SetDefault("sink::max_size_mb", 100)

	for key, env := range map[string]string{
		"log_level":          "LOG_LEVEL",
		"log_file":           "LOG_FILE",
		"api_host":           "API_HOST",
		"api_port":           "API_PORT",
		"cursor_store::url":  "CURSOR_STORE_URL",
		"sink::type":         "SINK_TYPE",
		"sink::spool_dir":    "SPOOL_DIR",
		"cursor_store::user": "CURSOR_STORE_USER",
	} {
		_ = v.BindEnv(key, env)
	}

	if path != "" {
		v.SetConfigFile(path)
		if strings.HasSuffix(path, ".conf") {
			v.SetConfigType("properties")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: failed to read %s: %v", ErrConfiguration, path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	sources, err := loadSources(v)
	if err != nil {
		return nil, err
	}
	cfg.Sources = sources

	if cfg.CursorStore.URL == "" && len(cfg.Sources) > 0 {
		// flume_meta lives next to the polled table by default.
		cfg.CursorStore.URL = cfg.Sources[0].ConnectionURL
		cfg.CursorStore.User = cfg.Sources[0].ConnectionUser
		cfg.CursorStore.Password = cfg.Sources[0].ConnectionPassword
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadSources resolves the "sources" list. Each entry inherits missing keys from "defaults".
// A file without a "sources" list is read as a single Flume-style source.
func loadSources(v *viper.Viper) ([]Source, error) {
	defaults := v.GetStringMap("defaults")

	var raw []map[string]any
	if v.IsSet("sources") {
		if err := v.UnmarshalKey("sources", &raw); err != nil {
			return nil, fmt.Errorf("%w: invalid sources list: %v", ErrConfiguration, err)
		}
	} else if v.IsSet("table") || v.IsSet("custom.query") {
		raw = []map[string]any{v.AllSettings()}
	}

	sources := make([]Source, 0, len(raw))
	for i, entry := range raw {
		src, err := decodeSource(defaults, entry)
		if err != nil {
			return nil, fmt.Errorf("%w: source %d: %v", ErrConfiguration, i, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func decodeSource(defaults, entry map[string]any) (Source, error) {
	sv := newViper()
	sv.SetDefault("columns.to.select", DefaultColumns)
	sv.SetDefault("custom.query.substitution", SubstitutionToken)
	sv.SetDefault("batch.size", DefaultBatchSize)
	sv.SetDefault("start.from", DefaultStartFrom)
	sv.SetDefault("run.query.delay", DefaultQueryDelay)
	sv.SetDefault("default.charset.resultset", DefaultCharset)
	sv.SetDefault("delimiter.entry", DefaultDelimiter)
	sv.SetDefault("cursor.mode", CursorModeCount)
	sv.SetDefault("cursor.column", DefaultCursorColumn)

	if err := sv.MergeConfigMap(defaults); err != nil {
		return Source{}, err
	}
	if err := sv.MergeConfigMap(entry); err != nil {
		return Source{}, err
	}

	var src Source
	if err := sv.Unmarshal(&src); err != nil {
		return Source{}, err
	}
	if src.ID == "" {
		src.ID = src.Table
	}
	return src, nil
}

// Validate checks mandatory properties and value ranges
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("%w: no sources configured", ErrConfiguration)
	}

	seen := make(map[string]struct{}, len(c.Sources))
	for i := range c.Sources {
		if err := c.Sources[i].Validate(); err != nil {
			return err
		}
		if _, dup := seen[c.Sources[i].ID]; dup {
			return fmt.Errorf("%w: duplicate source.id %q", ErrConfiguration, c.Sources[i].ID)
		}
		seen[c.Sources[i].ID] = struct{}{}
	}

	if c.CursorStore.URL == "" {
		return fmt.Errorf("%w: cursor_store.url property not set", ErrConfiguration)
	}

	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return nil
}

// Validate checks the mandatory properties of one source
func (s *Source) Validate() error {
	if s.ConnectionURL == "" {
		return fmt.Errorf("%w: connection.url property not set", ErrConfiguration)
	}
	if s.Table == "" && s.CustomQuery == "" {
		return fmt.Errorf("%w: property table not set", ErrConfiguration)
	}
	if s.ID == "" {
		return fmt.Errorf("%w: source.id property not set for custom query", ErrConfiguration)
	}
	// File-backed SQLite has no credentials.
	if !IsSQLiteURL(s.ConnectionURL) {
		if s.ConnectionUser == "" {
			return fmt.Errorf("%w: connection.user property not set", ErrConfiguration)
		}
		if s.ConnectionPassword == "" {
			return fmt.Errorf("%w: connection.password property not set", ErrConfiguration)
		}
	}
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("%w: source %s: %v", ErrConfiguration, s.ID, err)
	}
	return nil
}

// Source returns the source with the given id
func (c *Config) Source(id string) (Source, bool) {
	for _, s := range c.Sources {
		if s.ID == id {
			return s, true
		}
	}
	return Source{}, false
}

// IsSQLiteURL reports whether a connection url points at a SQLite database
func IsSQLiteURL(url string) bool {
	return strings.HasPrefix(url, "sqlite3://") || strings.HasPrefix(url, "file:") || strings.HasPrefix(url, "jdbc:sqlite:")
}

var validate = validator.New()

func newViper() *viper.Viper {
	return viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// ConfigPath returns the config file path from SQLPOLL_CONFIG, or the fallback
func ConfigPath(fallback string) string {
	return getEnv("SQLPOLL_CONFIG", fallback)
}
