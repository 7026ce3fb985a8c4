package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmcleod/portcullis/credential"
	"github.com/jmcleod/portcullis/gate"
	"github.com/jmcleod/portcullis/internal/logging"
	"github.com/jmcleod/portcullis/internal/util"
	"github.com/jmcleod/portcullis/login"
	"github.com/jmcleod/portcullis/session"
)

// Environments.
const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// Storage drivers.
const (
	DriverBbolt    = "bbolt"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// SecretEnvVar is read when auth.session_secret is empty.
const SecretEnvVar = "PORTCULLIS_SESSION_SECRET"

// MinSecretLength is the minimum session secret length outside development.
const MinSecretLength = 32

// DevelopmentSecret signs sessions in development when no secret is set.
const DevelopmentSecret = "portcullis-development-secret-do-not-use-in-production"

// ErrMissingSecret is returned when no usable session secret is configured.
var ErrMissingSecret = errors.New("auth.session_secret must be set to at least 32 bytes")

// Config represents the complete portcullis configuration.
type Config struct {
	Environment string        `yaml:"environment"`
	Server      ServerConfig  `yaml:"server"`
	Gate        GateConfig    `yaml:"gate"`
	Storage     StorageConfig `yaml:"storage"`
	Auth        AuthConfig    `yaml:"auth"`
	Logging     LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the full server's listener configuration.
type ServerConfig struct {
	Addr    string `yaml:"addr"`
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// GateConfig holds the edge proxy and route classification configuration.
type GateConfig struct {
	Addr            string   `yaml:"addr"`
	Upstream        string   `yaml:"upstream"`
	BypassPrefixes  []string `yaml:"bypass_prefixes"`
	LoginPath       string   `yaml:"login_path"`
	ProtectedPrefix string   `yaml:"protected_prefix"`
}

// StorageConfig selects the credential store backend.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig holds session and credential configuration.
type AuthConfig struct {
	SessionSecret   string        `yaml:"session_secret"`
	SessionLifetime time.Duration `yaml:"-"`
	DefaultUsername string        `yaml:"default_username"`
	DefaultPassword string        `yaml:"default_password"`
	PasswordHash    string        `yaml:"password_hash"`
	Argon2idProfile string        `yaml:"argon2id_profile"`

	// Raw string value for YAML unmarshaling
	SessionLifetimeRaw string `yaml:"session_lifetime"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	rules := gate.DefaultRules()
	return &Config{
		Environment: EnvProduction,
		Server: ServerConfig{
			Addr: ":8080",
		},
		Gate: GateConfig{
			Addr:            ":8081",
			Upstream:        "http://127.0.0.1:8080",
			BypassPrefixes:  rules.BypassPrefixes,
			LoginPath:       rules.LoginPath,
			ProtectedPrefix: rules.ProtectedPrefix,
		},
		Storage: StorageConfig{
			Driver: DriverBbolt,
			Path:   "./data/portcullis.db",
		},
		Auth: AuthConfig{
			SessionLifetime:    session.DefaultLifetime,
			SessionLifetimeRaw: session.DefaultLifetime.String(),
			DefaultUsername:    login.DefaultUsername,
			DefaultPassword:    login.DefaultPassword,
			PasswordHash:       credential.SchemeSHA256,
			Argon2idProfile:    util.KDFProfileModerate,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: logging.FormatJSON,
		},
	}
}

// Load reads the configuration file at path over the defaults, applies
// overrides in order and validates the result. Environment variables in the
// format ${VAR_NAME} are expanded. An empty path loads the defaults.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := Parse(cfg, data); err != nil {
			return nil, err
		}
	}
	for _, override := range overrides {
		override(cfg)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Parse expands environment variables in data and unmarshals it over cfg.
func Parse(cfg *Config, data []byte) error {
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	if err := parseDurations(cfg); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyEnv() {
	if c.Auth.SessionSecret == "" {
		c.Auth.SessionSecret = os.Getenv(SecretEnvVar)
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Auth.SessionLifetimeRaw != "" {
		d, err := time.ParseDuration(cfg.Auth.SessionLifetimeRaw)
		if err != nil {
			return fmt.Errorf("parsing session_lifetime %q: %w", cfg.Auth.SessionLifetimeRaw, err)
		}
		cfg.Auth.SessionLifetime = d
	}
	return nil
}

// Development reports whether the configuration targets local development.
func (c *Config) Development() bool {
	return c.Environment == EnvDevelopment
}

// SessionSecret returns the secret used to sign sessions, falling back to
// DevelopmentSecret in development.
func (c *Config) SessionSecret() []byte {
	if c.Auth.SessionSecret == "" && c.Development() {
		return []byte(DevelopmentSecret)
	}
	return []byte(c.Auth.SessionSecret)
}

// Argon2idParams returns the cost parameters of the configured profile.
func (c *Config) Argon2idParams() (util.Argon2idParams, error) {
	return util.Argon2idProfile(c.Auth.Argon2idProfile)
}

// GateRules returns the route classification rules.
func (c *Config) GateRules() gate.Rules {
	rules := gate.DefaultRules()
	rules.BypassPrefixes = c.Gate.BypassPrefixes
	rules.LoginPath = c.Gate.LoginPath
	rules.ProtectedPrefix = c.Gate.ProtectedPrefix
	return rules
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Environment != EnvProduction && c.Environment != EnvDevelopment {
		return fmt.Errorf("environment must be %q or %q, got %q", EnvProduction, EnvDevelopment, c.Environment)
	}
	if !c.Development() && len(c.Auth.SessionSecret) < MinSecretLength {
		return ErrMissingSecret
	}
	if c.Auth.SessionLifetime <= 0 {
		return fmt.Errorf("auth.session_lifetime must be positive")
	}
	if strings.TrimSpace(c.Auth.DefaultUsername) != c.Auth.DefaultUsername || c.Auth.DefaultUsername == "" {
		return fmt.Errorf("auth.default_username must be non-empty without surrounding whitespace")
	}
	if c.Auth.DefaultPassword == "" {
		return fmt.Errorf("auth.default_password is required")
	}
	if _, err := credential.NewHasher(c.Auth.PasswordHash, util.Argon2idParams{}); err != nil {
		return fmt.Errorf("auth.password_hash: %w", err)
	}
	if c.Auth.PasswordHash == credential.SchemeArgon2id {
		p, err := c.Argon2idParams()
		if err != nil {
			return fmt.Errorf("auth.argon2id_profile: %w", err)
		}
		if err := util.ValidateArgon2idParams(p); err != nil {
			return fmt.Errorf("auth.argon2id_profile: %w", err)
		}
	}

	switch c.Storage.Driver {
	case DriverBbolt:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the bbolt driver")
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("storage.driver must be one of bbolt, postgres, memory, got %q", c.Storage.Driver)
	}

	if !strings.HasPrefix(c.Gate.LoginPath, "/") {
		return fmt.Errorf("gate.login_path must be an absolute path")
	}
	if !strings.HasPrefix(c.Gate.ProtectedPrefix, "/") {
		return fmt.Errorf("gate.protected_prefix must be an absolute path")
	}
	if slices.Contains(c.Gate.BypassPrefixes, "/") {
		return fmt.Errorf("gate.bypass_prefixes must not contain the root path")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case logging.FormatJSON, logging.FormatText, logging.FormatConsole:
	default:
		return fmt.Errorf("logging.format must be json, text or console, got %q", c.Logging.Format)
	}
	return nil
}
