package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Key policies for OAUTH2_KEY_POLICY.
const (
	KeyPolicyService = "service"
	KeyPolicyCaller  = "caller"
)

// TokenDBDefault selects the default token database location.
const TokenDBDefault = "default"

// Config holds all environment-based configuration for credbroker.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`

	// Public URL of the container hosting the gadgets. Its scheme and
	// authority feed the %scheme%, %authority% and %origin% placeholders.
	PublicURL   string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`
	ContextRoot string `env:"CONTEXT_ROOT" envDefault:""`

	// Config documents. Either may be empty, but not both.
	OAuth2ConfigURL string `env:"OAUTH2_CONFIG_URL"`
	OAuth1ConfigURL string `env:"OAUTH1_CONFIG_URL"`

	// KeyPolicy selects whether the caller URI takes part in OAuth2
	// cache keys.
	KeyPolicy string `env:"OAUTH2_KEY_POLICY" envDefault:"service"`

	// TokenDB enables durable OAuth2 token storage in a bbolt file:
	// a path, or TokenDBDefault for ~/.credbroker/tokens.db. Tokens are
	// volatile when empty.
	TokenDB string `env:"OAUTH2_TOKEN_DB"`

	// EncryptionKey protects client secrets and token values at rest.
	EncryptionKey string `env:"OAUTH_ENCRYPTION_KEY"`

	// WatchConfig reloads config documents when their files change.
	WatchConfig bool `env:"WATCH_CONFIG" envDefault:"false"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. The file usually carries the
// encryption key.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.KeyPolicy = strings.ToLower(strings.TrimSpace(cfg.KeyPolicy))

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.OAuth2ConfigURL == "" && c.OAuth1ConfigURL == "" {
		return fmt.Errorf("at least one of OAUTH2_CONFIG_URL or OAUTH1_CONFIG_URL must be set")
	}

	if c.KeyPolicy != KeyPolicyService && c.KeyPolicy != KeyPolicyCaller {
		return fmt.Errorf("OAUTH2_KEY_POLICY must be %q or %q, got %q", KeyPolicyService, KeyPolicyCaller, c.KeyPolicy)
	}

	if _, err := c.Placeholders(); err != nil {
		return err
	}

	if c.WatchConfig && !isLocalPath(c.OAuth2ConfigURL) && !isLocalPath(c.OAuth1ConfigURL) {
		return fmt.Errorf("WATCH_CONFIG requires at least one config document on the local filesystem")
	}

	return nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Placeholders derives the template values from PublicURL and ContextRoot.
func (c *Config) Placeholders() (Placeholders, error) {
	u, err := url.Parse(c.PublicURL)
	if err != nil {
		return Placeholders{}, fmt.Errorf("parsing PUBLIC_URL: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return Placeholders{}, fmt.Errorf("PUBLIC_URL must be absolute, got %q", c.PublicURL)
	}

	return Placeholders{
		Scheme:      u.Scheme,
		Authority:   u.Host,
		ContextRoot: strings.TrimSuffix(c.ContextRoot, "/"),
	}, nil
}

// LocalPath returns the filesystem path of a config document URL, or ""
// when the document is not a local file.
func LocalPath(docURL string) string {
	if docURL == "" {
		return ""
	}

	if strings.HasPrefix(docURL, "file://") {
		return strings.TrimPrefix(docURL, "file://")
	}

	if strings.Contains(docURL, "://") {
		return ""
	}

	return docURL
}

func isLocalPath(docURL string) bool {
	return LocalPath(docURL) != ""
}

// Placeholders holds the values substituted for %scheme%, %authority%,
// %origin% and %contextRoot% in configured URLs.
type Placeholders struct {
	Scheme      string
	Authority   string
	ContextRoot string
}

// Origin is scheme://authority, or "" when either part is missing.
func (p Placeholders) Origin() string {
	if p.Scheme == "" || p.Authority == "" {
		return ""
	}

	return p.Scheme + "://" + p.Authority
}

// Expand replaces every known placeholder in s.
func (p Placeholders) Expand(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}

	return strings.NewReplacer(
		"%origin%", p.Origin(),
		"%contextRoot%", p.ContextRoot,
		"%authority%", p.Authority,
		"%scheme%", p.Scheme,
	).Replace(s)
}
