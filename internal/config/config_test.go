package config

import (
	"os"
	"path/filepath"
	"testing"

	"calhelper/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"CALENDAR_PROVIDER", "LOG_LEVEL", "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET",
	"GOOGLE_CREDENTIALS_FILE", "TOKEN_STORE", "GOOGLE_TOKEN_FILE", "TOKEN_DB",
	"GOOGLE_CALENDAR_ID", "PRIMARY_TIMEZONE", "CALDAV_URL", "CALDAV_USERNAME",
	"CALDAV_PASSWORD", "CALDAV_CALENDAR_NAME", "MAX_RESULTS", "GOOGLE_API_ENDPOINT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ProviderGoogle, cfg.Provider)
	assert.Equal(t, StoreFile, cfg.TokenStore)
	assert.Equal(t, models.DefaultCalendarID, cfg.CalendarID)
	assert.Equal(t, models.DefaultTimeZone, cfg.TimeZone)
	assert.Equal(t, int64(models.DefaultMaxResults), cfg.MaxResults)
	require.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
provider = "caldav"
timezone = "Europe/Berlin"
max_results = 25
token_store = "sqlite"
token_db = "/tmp/tokens.db"

[caldav]
url = "https://caldav.example.com/"
username = "alice"
calendar_name = "Work"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ProviderCalDAV, cfg.Provider)
	assert.Equal(t, "Europe/Berlin", cfg.TimeZone)
	assert.Equal(t, int64(25), cfg.MaxResults)
	assert.Equal(t, StoreSQLite, cfg.TokenStore)
	assert.Equal(t, "alice", cfg.CalDAV.Username)
	assert.Equal(t, "Work", cfg.CalDAV.CalendarName)
	// untouched keys keep their defaults
	assert.Equal(t, models.DefaultCalendarID, cfg.CalendarID)
	assert.Equal(t, "default", cfg.Account)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
timezone = "Europe/Berlin"
calendar_id = "from-file@example.com"
`)
	t.Setenv("PRIMARY_TIMEZONE", "Asia/Tokyo")
	t.Setenv("GOOGLE_CLIENT_ID", "id.apps.googleusercontent.com")
	t.Setenv("MAX_RESULTS", "3")
	t.Setenv("GOOGLE_API_ENDPOINT", "http://127.0.0.1:8080/")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Asia/Tokyo", cfg.TimeZone)
	assert.Equal(t, "from-file@example.com", cfg.CalendarID)
	assert.Equal(t, "id.apps.googleusercontent.com", cfg.ClientID)
	assert.Equal(t, int64(3), cfg.MaxResults)
	assert.Equal(t, "http://127.0.0.1:8080/", cfg.APIEndpoint)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err, "an explicit path must exist")

	_, err = Load(writeConfig(t, `max_results = "many"`))
	assert.Error(t, err)

	t.Setenv("MAX_RESULTS", "ten")
	_, err = Load(writeConfig(t, ``))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "provider is case insensitive", mutate: func(c *Config) { c.Provider = "Google" }},
		{name: "unknown provider", mutate: func(c *Config) { c.Provider = "outlook" }, wantErr: true},
		{name: "caldav without url", mutate: func(c *Config) {
			c.Provider = ProviderCalDAV
			c.CalDAV.CalendarName = "Home"
		}, wantErr: true},
		{name: "caldav complete", mutate: func(c *Config) {
			c.Provider = ProviderCalDAV
			c.CalDAV.URL = "https://caldav.example.com/"
			c.CalDAV.CalendarName = "Home"
		}},
		{name: "sqlite without path", mutate: func(c *Config) { c.TokenStore = StoreSQLite }, wantErr: true},
		{name: "unknown store", mutate: func(c *Config) { c.TokenStore = "keychain" }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.TimeZone = "Mars/Olympus" }, wantErr: true},
		{name: "zero max results", mutate: func(c *Config) { c.MaxResults = 0 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
