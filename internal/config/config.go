// Package config loads portal settings from defaults, an optional TOML file and
// PORTAL_* environment variables, in that order.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"danaya.health/portal/internal/store"
)

// Duration decodes TOML strings such as "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Registry RegistryConfig `toml:"registry"`
	Store    StoreConfig    `toml:"store"`
	Limits   LimitsConfig   `toml:"limits"`
}

type ServerConfig struct {
	ListenAddr     string   `toml:"listen_addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type AuthConfig struct {
	URL          string   `toml:"url"`
	LoginTimeout Duration `toml:"login_timeout"`
}

type RegistryConfig struct {
	URL            string   `toml:"url"`
	ContextTimeout Duration `toml:"context_timeout"`
}

type StoreConfig struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

type LimitsConfig struct {
	LoginBurst     int     `toml:"login_burst"`
	LoginPerMinute int     `toml:"login_per_minute"`
	HTTPBurst      int     `toml:"http_burst"`
	HTTPPerSecond  float64 `toml:"http_per_second"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Server: ServerConfig{ListenAddr: ":8080"},
		Auth: AuthConfig{
			URL:          "http://localhost:8001",
			LoginTimeout: Duration{10 * time.Second},
		},
		Registry: RegistryConfig{
			URL:            "http://localhost:8003",
			ContextTimeout: Duration{5 * time.Second},
		},
		Store: StoreConfig{
			Driver: store.DriverSQLite,
			DSN:    "data/portal.db",
		},
		Limits: LimitsConfig{
			LoginBurst:     5,
			LoginPerMinute: 10,
			HTTPBurst:      10,
			HTTPPerSecond:  1,
		},
	}
}

// Load builds the configuration. The TOML file named by PORTAL_CONFIG is optional.
func Load() (*Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("PORTAL_CONFIG")); path != "" {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML overlays the file at path onto cfg.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("decode %s: unknown keys %v", path, undecoded)
	}
	return nil
}

// ApplyEnvOverrides applies PORTAL_* variables on top of cfg.
func (c *Config) ApplyEnvOverrides() error {
	if v := os.Getenv("PORTAL_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("PORTAL_ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("PORTAL_AUTH_URL"); v != "" {
		c.Auth.URL = v
	}
	if v := os.Getenv("PORTAL_REGISTRY_URL"); v != "" {
		c.Registry.URL = v
	}
	if v := os.Getenv("PORTAL_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("PORTAL_STORE_DSN"); v != "" {
		c.Store.DSN = v
	}
	if err := envDuration("PORTAL_LOGIN_TIMEOUT", &c.Auth.LoginTimeout); err != nil {
		return err
	}
	if err := envDuration("PORTAL_CONTEXT_TIMEOUT", &c.Registry.ContextTimeout); err != nil {
		return err
	}
	if err := envInt("PORTAL_LOGIN_BURST", &c.Limits.LoginBurst); err != nil {
		return err
	}
	if err := envInt("PORTAL_LOGIN_PER_MINUTE", &c.Limits.LoginPerMinute); err != nil {
		return err
	}
	return nil
}

// ValidationError names the offending setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every problem found by Validate.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "config: " + strings.Join(msgs, "; ")
}

// Validate checks the settings and reports all problems at once.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		errs = append(errs, ValidationError{Field: "server.listen_addr", Message: "must not be empty"})
	}
	for field, raw := range map[string]string{"auth.url": c.Auth.URL, "registry.url": c.Registry.URL} {
		if raw == "" && field == "registry.url" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid URL %q", raw)})
		}
	}
	switch c.Store.Driver {
	case store.DriverSQLite, store.DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			errs = append(errs, ValidationError{Field: "store.dsn", Message: "must not be empty"})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "store.driver",
			Message: fmt.Sprintf("invalid driver %q, must be one of: %s, %s", c.Store.Driver, store.DriverSQLite, store.DriverPostgres),
		})
	}
	if c.Auth.LoginTimeout.Duration <= 0 {
		errs = append(errs, ValidationError{Field: "auth.login_timeout", Message: "must be positive"})
	}
	if c.Registry.ContextTimeout.Duration <= 0 {
		errs = append(errs, ValidationError{Field: "registry.context_timeout", Message: "must be positive"})
	}
	if c.Limits.LoginPerMinute < 0 {
		errs = append(errs, ValidationError{Field: "limits.login_per_minute", Message: "cannot be negative"})
	}
	if c.Limits.LoginPerMinute > 0 && c.Limits.LoginBurst <= 0 {
		errs = append(errs, ValidationError{Field: "limits.login_burst", Message: "must be positive when login_per_minute is set"})
	}
	if c.Limits.HTTPBurst <= 0 || c.Limits.HTTPPerSecond <= 0 {
		errs = append(errs, ValidationError{Field: "limits.http_burst", Message: "http_burst and http_per_second must be positive"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func envDuration(key string, dst *Duration) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	dst.Duration = d
	return nil
}

func envInt(key string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
