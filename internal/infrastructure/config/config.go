package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Paddy Dryer core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Auth      AuthConfig      `yaml:"auth"`
	Drying    DryingConfig    `yaml:"drying"`
	Features  FeaturesConfig  `yaml:"features"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled    bool                `yaml:"enabled"`
	Broker     MQTTBrokerConfig    `yaml:"broker"`
	Auth       MQTTAuthConfig      `yaml:"auth"`
	QoS        int                 `yaml:"qos"`
	Reconnect  MQTTReconnectConfig `yaml:"reconnect"`
	TerminalID string              `yaml:"terminal_id"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`

	// KioskDir holds the installed kiosk web bundle. Empty serves a
	// placeholder page.
	KioskDir string `yaml:"kiosk_dir"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	// AllowedOrigins lists the cross-origin callers allowed to use the
	// API. Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AuthConfig contains operator session and PIN lockout settings.
// Durations are expressed in seconds, matching the rest of the file.
type AuthConfig struct {
	// SessionTimeout is the absolute session lifetime measured from login.
	SessionTimeout int `yaml:"session_timeout"`

	// InactivityTimeout is the rolling idle limit measured from the last
	// recorded activity.
	InactivityTimeout int `yaml:"inactivity_timeout"`

	// CheckInterval is how often the activity monitor evaluates idleness.
	CheckInterval int `yaml:"check_interval"`

	MaxPINAttempts int `yaml:"max_pin_attempts"`
	LockoutTime    int `yaml:"lockout_time"`
	AttemptWindow  int `yaml:"attempt_window"`

	// SessionStore selects where the session record lives: "memory" or "sqlite".
	SessionStore string `yaml:"session_store"`

	Roles []RoleConfig `yaml:"roles"`
}

// RoleConfig describes one PIN-addressable operator role.
//
// Exactly one of PIN or PINHash must be set. PINHash holds an Argon2id
// PHC string as printed by cmd/pinhash.
type RoleConfig struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Icon        string   `yaml:"icon"`
	Description string   `yaml:"description"`
	PIN         string   `yaml:"pin"`
	PINHash     string   `yaml:"pin_hash"`
	Permissions []string `yaml:"permissions"`
	ReadOnly    bool     `yaml:"read_only"`
}

// DryingConfig contains the physical limits applied to batches and readings.
type DryingConfig struct {
	DryerCount          int     `yaml:"dryer_count"`
	MoistureMin         float64 `yaml:"moisture_min"`
	MoistureMax         float64 `yaml:"moisture_max"`
	TempMin             float64 `yaml:"temp_min"`
	TempMax             float64 `yaml:"temp_max"`
	LowMoistureWarning  float64 `yaml:"low_moisture_warning"`
	HighTempWarning     float64 `yaml:"high_temp_warning"`
	NearTargetTolerance float64 `yaml:"near_target_tolerance"`
	CompletionTolerance float64 `yaml:"completion_tolerance"`
	MinBatchCodeLength  int     `yaml:"min_batch_code_length"`
}

// FeaturesConfig toggles optional batch behaviour.
type FeaturesConfig struct {
	EditHistory bool `yaml:"edit_history"`
	SoftDelete  bool `yaml:"soft_delete"`
}

// validPermissions lists the permission names a role may carry.
var validPermissions = map[string]bool{
	"read":   true,
	"create": true,
	"update": true,
	"delete": true,
	"export": true,
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PADDYDRYER_SECTION_KEY
// For example: PADDYDRYER_DATABASE_PATH, PADDYDRYER_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// A roles list in the file replaces the default roles entirely.
	cfg.Auth.Roles = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if len(cfg.Auth.Roles) == 0 {
		cfg.Auth.Roles = defaultRoles()
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
// It is used when no config file is present.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "dryer-site-001",
			Name:     "Paddy Dryer",
			Timezone: "Asia/Bangkok",
		},
		Database: DatabaseConfig{
			Path:        "./data/paddydryer.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "paddydryer-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			TerminalID: "terminal-1",
		},
		API: APIConfig{
			// The kiosk browser runs on the terminal itself.
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "paddydryer",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Auth: AuthConfig{
			SessionTimeout:    8 * 60 * 60,
			InactivityTimeout: 30 * 60,
			CheckInterval:     60,
			MaxPINAttempts:    5,
			LockoutTime:       60,
			AttemptWindow:     60 * 60,
			SessionStore:      "sqlite",
			Roles:             defaultRoles(),
		},
		Drying: DryingConfig{
			DryerCount:          5,
			MoistureMin:         9,
			MoistureMax:         35,
			TempMin:             0,
			TempMax:             100,
			LowMoistureWarning:  12,
			HighTempWarning:     70,
			NearTargetTolerance: 0.5,
			CompletionTolerance: 1.0,
			MinBatchCodeLength:  5,
		},
		Features: FeaturesConfig{
			EditHistory: true,
			SoftDelete:  true,
		},
	}
}

func defaultRoles() []RoleConfig {
	return []RoleConfig{
		{
			ID:          "staff",
			Name:        "Staff",
			Icon:        "👷",
			Description: "Record and edit drying data",
			PIN:         "1234",
			Permissions: []string{"read", "create", "update", "delete"},
		},
		{
			ID:          "manager",
			Name:        "Manager",
			Icon:        "👔",
			Description: "View reports and export data",
			PIN:         "9999",
			Permissions: []string{"read", "export"},
			ReadOnly:    true,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PADDYDRYER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Site
	if v := os.Getenv("PADDYDRYER_SITE_TIMEZONE"); v != "" {
		cfg.Site.Timezone = v
	}

	// Database
	if v := os.Getenv("PADDYDRYER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("PADDYDRYER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PADDYDRYER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PADDYDRYER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("PADDYDRYER_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("PADDYDRYER_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}
	if v := os.Getenv("PADDYDRYER_KIOSK_DIR"); v != "" {
		cfg.API.KioskDir = v
	}

	// InfluxDB
	if v := os.Getenv("PADDYDRYER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("PADDYDRYER_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}

	// Logging
	if v := os.Getenv("PADDYDRYER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Auth
	if v := os.Getenv("PADDYDRYER_AUTH_SESSION_STORE"); v != "" {
		cfg.Auth.SessionStore = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected and reported together so an operator can fix
// the file in one pass.
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a known location", c.Site.Timezone))
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	errs = append(errs, c.Auth.validate()...)
	errs = append(errs, c.Drying.validate()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (a *AuthConfig) validate() []string {
	var errs []string

	if a.SessionTimeout <= 0 {
		errs = append(errs, "auth.session_timeout must be positive")
	}
	if a.InactivityTimeout <= 0 {
		errs = append(errs, "auth.inactivity_timeout must be positive")
	}
	if a.CheckInterval <= 0 {
		errs = append(errs, "auth.check_interval must be positive")
	}
	if a.MaxPINAttempts < 1 {
		errs = append(errs, "auth.max_pin_attempts must be at least 1")
	}
	if a.LockoutTime <= 0 {
		errs = append(errs, "auth.lockout_time must be positive")
	}
	if a.AttemptWindow <= 0 {
		errs = append(errs, "auth.attempt_window must be positive")
	}
	if a.SessionStore != "memory" && a.SessionStore != "sqlite" {
		errs = append(errs, "auth.session_store must be \"memory\" or \"sqlite\"")
	}

	if len(a.Roles) == 0 {
		errs = append(errs, "auth.roles must define at least one role")
	}

	ids := make(map[string]bool, len(a.Roles))
	pins := make(map[string]string, len(a.Roles))
	for i, r := range a.Roles {
		label := fmt.Sprintf("auth.roles[%d]", i)
		if r.ID == "" {
			errs = append(errs, label+".id is required")
		} else if ids[r.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", label, r.ID))
		}
		ids[r.ID] = true

		switch {
		case r.PIN == "" && r.PINHash == "":
			errs = append(errs, label+" requires pin or pin_hash")
		case r.PIN != "" && r.PINHash != "":
			errs = append(errs, label+" must set only one of pin or pin_hash")
		case r.PIN != "":
			if other, dup := pins[r.PIN]; dup {
				errs = append(errs, fmt.Sprintf("%s.pin duplicates the pin of role %q", label, other))
			}
			pins[r.PIN] = r.ID
		}

		if len(r.Permissions) == 0 {
			errs = append(errs, label+".permissions must not be empty")
		}
		for _, p := range r.Permissions {
			if !validPermissions[p] {
				errs = append(errs, fmt.Sprintf("%s.permissions contains unknown permission %q", label, p))
			}
		}
	}

	return errs
}

func (d *DryingConfig) validate() []string {
	var errs []string

	if d.DryerCount < 1 {
		errs = append(errs, "drying.dryer_count must be at least 1")
	}
	if d.MoistureMin >= d.MoistureMax {
		errs = append(errs, "drying.moisture_min must be below drying.moisture_max")
	}
	if d.TempMin >= d.TempMax {
		errs = append(errs, "drying.temp_min must be below drying.temp_max")
	}
	if d.NearTargetTolerance < 0 || d.CompletionTolerance < 0 {
		errs = append(errs, "drying tolerances must not be negative")
	}
	if d.MinBatchCodeLength < 1 {
		errs = append(errs, "drying.min_batch_code_length must be at least 1")
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// SessionTimeoutDuration returns the absolute session lifetime.
func (a AuthConfig) SessionTimeoutDuration() time.Duration {
	return time.Duration(a.SessionTimeout) * time.Second
}

// InactivityTimeoutDuration returns the rolling idle limit.
func (a AuthConfig) InactivityTimeoutDuration() time.Duration {
	return time.Duration(a.InactivityTimeout) * time.Second
}

// CheckIntervalDuration returns the activity monitor tick interval.
func (a AuthConfig) CheckIntervalDuration() time.Duration {
	return time.Duration(a.CheckInterval) * time.Second
}

// LockoutDuration returns how long PIN entry is blocked after too many failures.
func (a AuthConfig) LockoutDuration() time.Duration {
	return time.Duration(a.LockoutTime) * time.Second
}

// AttemptWindowDuration returns the window over which failed attempts accumulate.
func (a AuthConfig) AttemptWindowDuration() time.Duration {
	return time.Duration(a.AttemptWindow) * time.Second
}

// Location resolves the site timezone, falling back to UTC.
func (s SiteConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
