package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"calhelper/internal/models"

	"github.com/BurntSushi/toml"
	"github.com/adrg/xdg"
)

const (
	ProviderGoogle = "google"
	ProviderCalDAV = "caldav"

	StoreFile   = "file"
	StoreSQLite = "sqlite"

	localConfigFile = ".calhelper.toml"
	xdgConfigFile   = "calhelper/config.toml"
)

// Config holds every setting calhelper reads from file or environment.
type Config struct {
	Provider string `toml:"provider"`
	LogLevel string `toml:"log_level"`

	ClientID        string `toml:"client_id"`
	ClientSecret    string `toml:"client_secret"`
	CredentialsFile string `toml:"credentials_file"`

	TokenStore string `toml:"token_store"`
	TokenFile  string `toml:"token_file"`
	TokenDB    string `toml:"token_db"`
	Account    string `toml:"account"`

	// APIEndpoint overrides the Google Calendar API base URL.
	APIEndpoint string `toml:"api_endpoint"`

	CalendarID string `toml:"calendar_id"`
	TimeZone   string `toml:"timezone"`
	MaxResults int64  `toml:"max_results"`

	CalDAV CalDAVConfig `toml:"caldav"`
}

// CalDAVConfig configures the CalDAV provider.
type CalDAVConfig struct {
	URL          string `toml:"url"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	CalendarName string `toml:"calendar_name"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Provider:   ProviderGoogle,
		LogLevel:   "info",
		TokenStore: StoreFile,
		Account:    "default",
		CalendarID: models.DefaultCalendarID,
		TimeZone:   models.DefaultTimeZone,
		MaxResults: models.DefaultMaxResults,
	}
}

// Load builds the configuration from defaults, then the TOML file, then the
// environment. With an empty path, ./.calhelper.toml and the XDG config
// directory are searched and a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = findConfigFile()
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if _, err := os.Stat(localConfigFile); err == nil {
		return localConfigFile
	}
	if p, err := xdg.SearchConfigFile(xdgConfigFile); err == nil {
		return p
	}
	return ""
}

func (c *Config) applyEnv() error {
	setString(&c.Provider, "CALENDAR_PROVIDER")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.CredentialsFile, "GOOGLE_CREDENTIALS_FILE")
	setString(&c.TokenStore, "TOKEN_STORE")
	setString(&c.TokenFile, "GOOGLE_TOKEN_FILE")
	setString(&c.TokenDB, "TOKEN_DB")
	setString(&c.APIEndpoint, "GOOGLE_API_ENDPOINT")
	setString(&c.CalendarID, "GOOGLE_CALENDAR_ID")
	setString(&c.TimeZone, "PRIMARY_TIMEZONE")
	setString(&c.CalDAV.URL, "CALDAV_URL")
	setString(&c.CalDAV.Username, "CALDAV_USERNAME")
	setString(&c.CalDAV.Password, "CALDAV_PASSWORD")
	setString(&c.CalDAV.CalendarName, "CALDAV_CALENDAR_NAME")

	if v := os.Getenv("MAX_RESULTS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid MAX_RESULTS %q: %w", v, err)
		}
		c.MaxResults = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate normalizes provider and store names and checks that the
// configuration is usable.
func (c *Config) Validate() error {
	c.Provider = strings.ToLower(c.Provider)
	c.TokenStore = strings.ToLower(c.TokenStore)

	switch c.Provider {
	case ProviderGoogle:
	case ProviderCalDAV:
		if c.CalDAV.URL == "" || c.CalDAV.CalendarName == "" {
			return fmt.Errorf("caldav provider needs CALDAV_URL and CALDAV_CALENDAR_NAME")
		}
	default:
		return fmt.Errorf("unsupported provider %q (must be %q or %q)", c.Provider, ProviderGoogle, ProviderCalDAV)
	}

	switch c.TokenStore {
	case StoreFile:
	case StoreSQLite:
		if c.TokenDB == "" {
			return fmt.Errorf("sqlite token store needs TOKEN_DB")
		}
	default:
		return fmt.Errorf("unsupported token store %q (must be %q or %q)", c.TokenStore, StoreFile, StoreSQLite)
	}

	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.TimeZone, err)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("max results must be positive, got %d", c.MaxResults)
	}
	return nil
}

// Location returns the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone '%s': %w", c.TimeZone, err)
	}
	return loc, nil
}
