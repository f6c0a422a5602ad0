package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearConfigEnv unsets all config env vars so tests start clean.
func clearConfigEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"ENVIRONMENT",
		"LOG_LEVEL",
		"PUBLIC_URL",
		"CONTEXT_ROOT",
		"OAUTH2_CONFIG_URL",
		"OAUTH1_CONFIG_URL",
		"OAUTH2_KEY_POLICY",
		"OAUTH2_TOKEN_DB",
		"OAUTH_ENCRYPTION_KEY",
		"WATCH_CONFIG",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OAUTH2_CONFIG_URL", "/etc/credbroker/oauth2.json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "http://localhost:8080", cfg.PublicURL)
	assert.Equal(t, KeyPolicyService, cfg.KeyPolicy)
	assert.Empty(t, cfg.TokenDB)
	assert.False(t, cfg.WatchConfig)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_AllFields(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("PUBLIC_URL", "https://shindig.example.com:8443")
	t.Setenv("CONTEXT_ROOT", "/gadgets/")
	t.Setenv("OAUTH2_CONFIG_URL", "/etc/oauth2.yaml")
	t.Setenv("OAUTH1_CONFIG_URL", "/etc/oauth.json")
	t.Setenv("OAUTH2_KEY_POLICY", " Caller ")
	t.Setenv("OAUTH2_TOKEN_DB", "/var/lib/credbroker/tokens.db")
	t.Setenv("OAUTH_ENCRYPTION_KEY", "0123456789abcdef")
	t.Setenv("WATCH_CONFIG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, KeyPolicyCaller, cfg.KeyPolicy)
	assert.Equal(t, "/var/lib/credbroker/tokens.db", cfg.TokenDB)
	assert.True(t, cfg.WatchConfig)

	p, err := cfg.Placeholders()
	require.NoError(t, err)
	assert.Equal(t, "https", p.Scheme)
	assert.Equal(t, "shindig.example.com:8443", p.Authority)
	assert.Equal(t, "/gadgets", p.ContextRoot)
}

func TestLoad_MissingConfigURLs(t *testing.T) {
	clearConfigEnv(t)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OAUTH2_CONFIG_URL")
}

func TestLoad_InvalidKeyPolicy(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OAUTH1_CONFIG_URL", "/etc/oauth.json")
	t.Setenv("OAUTH2_KEY_POLICY", "gadget")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OAUTH2_KEY_POLICY")
}

func TestLoad_RelativePublicURL(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OAUTH1_CONFIG_URL", "/etc/oauth.json")
	t.Setenv("PUBLIC_URL", "localhost")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PUBLIC_URL")
}

func TestLoad_WatchRequiresLocalDocument(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OAUTH2_CONFIG_URL", "https://config.example.com/oauth2.json")
	t.Setenv("WATCH_CONFIG", "true")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WATCH_CONFIG")
}

// --- Placeholders ---

func TestPlaceholders_Expand(t *testing.T) {
	p := Placeholders{Scheme: "https", Authority: "host.example:8443", ContextRoot: "/ctx"}

	tests := []struct {
		in   string
		want string
	}{
		{"%origin%%contextRoot%/oauth2callback", "https://host.example:8443/ctx/oauth2callback"},
		{"%scheme%://%authority%/cb", "https://host.example:8443/cb"},
		{"https://p.example/auth", "https://p.example/auth"},
		{"%unknown%", "%unknown%"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Expand(tt.in), tt.in)
	}
}

func TestPlaceholders_EmptyOrigin(t *testing.T) {
	p := Placeholders{ContextRoot: "/ctx"}
	assert.Equal(t, "", p.Origin())
	assert.Equal(t, "/ctx/cb", p.Expand("%origin%%contextRoot%/cb"))
}

func TestLocalPath(t *testing.T) {
	assert.Equal(t, "/etc/oauth.json", LocalPath("/etc/oauth.json"))
	assert.Equal(t, "/etc/oauth.json", LocalPath("file:///etc/oauth.json"))
	assert.Equal(t, "", LocalPath("https://example.com/oauth.json"))
	assert.Equal(t, "", LocalPath(""))
}
