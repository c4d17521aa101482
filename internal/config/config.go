package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"calgrid/internal/source"
)

// EnvPrefix prefixes environment overrides: CALGRID_GOOGLE_API_KEY overrides
// google.api_key.
const EnvPrefix = "CALGRID"

const (
	defaultListen          = "127.0.0.1:8080"
	defaultTimezone        = "America/New_York"
	defaultRefresh         = "*/15 * * * *"
	defaultMaxVisible      = 3
	defaultCacheSizeLimit  = 1000
	defaultMinEventMinutes = 30
	defaultGoogleMax       = 2500
	defaultICSCacheDir     = "./var/ics-cache"
	defaultPreviewPath     = "./var/preview.png"
)

// ICSConfig describes a single ICS subscription.
type ICSConfig struct {
	ID   string `yaml:"id" mapstructure:"id" json:"id"`
	Name string `yaml:"name" mapstructure:"name" json:"name"`
	URL  string `yaml:"url" mapstructure:"url" json:"url"`
}

// GoogleConfig selects one Google calendar. APIKey works for public
// calendars; CredentialsFile is a service-account JSON key.
type GoogleConfig struct {
	APIKey            string  `yaml:"api_key" mapstructure:"api_key" json:"-"`
	CredentialsFile   string  `yaml:"credentials_file" mapstructure:"credentials_file" json:"credentials_file"`
	CalendarID        string  `yaml:"calendar_id" mapstructure:"calendar_id" json:"calendar_id"`
	MaxResults        int     `yaml:"max_results" mapstructure:"max_results" json:"max_results"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" json:"requests_per_second"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the web UI and API.
type BasicAuthConfig struct {
	Username string `yaml:"username" mapstructure:"username" json:"username"`
	Password string `yaml:"password" mapstructure:"password" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" mapstructure:"listen" json:"listen"`

	// DisplayTimezone is the IANA zone every event is normalized into.
	DisplayTimezone string `yaml:"display_timezone" mapstructure:"display_timezone" json:"display_timezone"`
	// TimeFormat is "12h" or "24h".
	TimeFormat       string `yaml:"time_format" mapstructure:"time_format" json:"time_format"`
	MaxVisiblePerDay int    `yaml:"max_visible_per_day" mapstructure:"max_visible_per_day" json:"max_visible_per_day"`
	// WeekStartsOn is "sunday" (default) or "monday".
	WeekStartsOn string `yaml:"week_starts_on" mapstructure:"week_starts_on" json:"week_starts_on"`
	// CacheSizeLimit bounds the timezone conversion cache.
	CacheSizeLimit int `yaml:"cache_size_limit" mapstructure:"cache_size_limit" json:"cache_size_limit"`
	// MinEventMinutes is the drawn height floor for short timed events.
	MinEventMinutes int `yaml:"min_event_minutes" mapstructure:"min_event_minutes" json:"min_event_minutes"`

	// Refresh is a cron spec for the periodic refresh job.
	Refresh     string `yaml:"refresh" mapstructure:"refresh" json:"refresh"`
	LogLevel    string `yaml:"log_level" mapstructure:"log_level" json:"log_level"`
	LogEncoding string `yaml:"log_encoding" mapstructure:"log_encoding" json:"log_encoding"`

	// Source is "google" or "ics".
	Source      string       `yaml:"source" mapstructure:"source" json:"source"`
	Google      GoogleConfig `yaml:"google" mapstructure:"google" json:"google"`
	ICS         []ICSConfig  `yaml:"ics" mapstructure:"ics" json:"ics"`
	ICSCacheDir string       `yaml:"ics_cache_dir" mapstructure:"ics_cache_dir" json:"ics_cache_dir"`

	// Snapshot enables capturing the grid page to PreviewPath on every refresh.
	Snapshot    bool   `yaml:"snapshot" mapstructure:"snapshot" json:"snapshot"`
	PreviewPath string `yaml:"preview_path" mapstructure:"preview_path" json:"preview_path"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" mapstructure:"basic_auth" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           defaultListen,
		DisplayTimezone:  defaultTimezone,
		TimeFormat:       "12h",
		MaxVisiblePerDay: defaultMaxVisible,
		WeekStartsOn:     "sunday",
		CacheSizeLimit:   defaultCacheSizeLimit,
		MinEventMinutes:  defaultMinEventMinutes,
		Refresh:          defaultRefresh,
		LogLevel:         "info",
		LogEncoding:      "console",
		Source:           "google",
		Google: GoogleConfig{
			CalendarID: "primary",
			MaxResults: defaultGoogleMax,
		},
		ICS:         []ICSConfig{},
		ICSCacheDir: defaultICSCacheDir,
		PreviewPath: defaultPreviewPath,
	}
}

// Normalize fills in missing or out-of-range values so that partially filled
// configs still behave.
func (c *Config) Normalize() {
	d := DefaultConfig()

	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.DisplayTimezone == "" {
		c.DisplayTimezone = d.DisplayTimezone
	}

	c.TimeFormat = strings.ToLower(strings.TrimSpace(c.TimeFormat))
	if c.TimeFormat != "12h" && c.TimeFormat != "24h" {
		c.TimeFormat = d.TimeFormat
	}

	c.WeekStartsOn = strings.ToLower(strings.TrimSpace(c.WeekStartsOn))
	switch c.WeekStartsOn {
	case "monday", "sunday":
	default:
		c.WeekStartsOn = d.WeekStartsOn
	}

	if c.MaxVisiblePerDay <= 0 {
		c.MaxVisiblePerDay = d.MaxVisiblePerDay
	}
	if c.CacheSizeLimit <= 0 {
		c.CacheSizeLimit = d.CacheSizeLimit
	}
	if c.MinEventMinutes <= 0 {
		c.MinEventMinutes = d.MinEventMinutes
	}
	if c.Refresh == "" {
		c.Refresh = d.Refresh
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.LogEncoding == "" {
		c.LogEncoding = d.LogEncoding
	}

	c.Source = strings.ToLower(strings.TrimSpace(c.Source))
	if c.Source == "" {
		c.Source = d.Source
	}
	if c.Google.MaxResults <= 0 || c.Google.MaxResults > defaultGoogleMax {
		c.Google.MaxResults = defaultGoogleMax
	}

	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = fmt.Sprintf("ics%d", i)
		}
	}
	if c.ICSCacheDir == "" {
		c.ICSCacheDir = d.ICSCacheDir
	}
	if c.PreviewPath == "" {
		c.PreviewPath = d.PreviewPath
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" && c.BasicAuth.Password == "" {
		c.BasicAuth = nil
	}
}

// Location resolves DisplayTimezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		return nil, &source.ConfigError{Field: "display_timezone", Reason: err.Error()}
	}
	return loc, nil
}

// Validate checks the settings the selected source needs. It never touches
// the network.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Source {
	case "google":
		if c.Google.CalendarID == "" {
			return &source.ConfigError{Field: "google.calendar_id"}
		}
		if c.Google.APIKey == "" && c.Google.CredentialsFile == "" {
			return &source.ConfigError{Field: "google.api_key", Reason: "api_key or credentials_file is required"}
		}
	case "ics":
		if len(c.ICS) == 0 {
			return &source.ConfigError{Field: "ics", Reason: "at least one feed is required"}
		}
		for i, f := range c.ICS {
			if f.URL == "" {
				return &source.ConfigError{Field: fmt.Sprintf("ics[%d].url", i)}
			}
		}
	default:
		return &source.ConfigError{Field: "source", Reason: fmt.Sprintf("unknown kind %q", c.Source)}
	}
	return nil
}

// Load reads the YAML file at path, applying CALGRID_* environment
// overrides. On first run the file does not exist yet: the defaults are
// written there (0600) and loaded.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := Save(path, DefaultConfig()); err != nil {
			return nil, fmt.Errorf("config: write defaults: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override keys
// the file leaves out.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("listen", d.Listen)
	v.SetDefault("display_timezone", d.DisplayTimezone)
	v.SetDefault("time_format", d.TimeFormat)
	v.SetDefault("max_visible_per_day", d.MaxVisiblePerDay)
	v.SetDefault("week_starts_on", d.WeekStartsOn)
	v.SetDefault("cache_size_limit", d.CacheSizeLimit)
	v.SetDefault("min_event_minutes", d.MinEventMinutes)
	v.SetDefault("refresh", d.Refresh)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_encoding", d.LogEncoding)
	v.SetDefault("source", d.Source)
	v.SetDefault("google.api_key", "")
	v.SetDefault("google.credentials_file", "")
	v.SetDefault("google.calendar_id", d.Google.CalendarID)
	v.SetDefault("google.max_results", d.Google.MaxResults)
	v.SetDefault("google.requests_per_second", 0.0)
	v.SetDefault("ics_cache_dir", d.ICSCacheDir)
	v.SetDefault("snapshot", false)
	v.SetDefault("preview_path", d.PreviewPath)
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calgrid-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
