package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Transports accepted in Transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// SubscriptionConfig describes a read-only ICS feed.
type SubscriptionConfig struct {
	// ID is an internal identifier used for the cache and calendar id.
	ID string `yaml:"id" json:"id"`
	// Name is the calendar title shown to callers. Falls back to the feed's
	// X-WR-CALNAME.
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the HTTP transport.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// StoreDir holds one .ics file per writable calendar.
	StoreDir string `yaml:"store_dir" json:"store_dir"`

	// Timezone is the IANA zone naive timestamps are read in. Empty means the
	// system zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// DefaultCalendar receives events created without a calendar_name.
	DefaultCalendar string `yaml:"default_calendar" json:"default_calendar"`

	// Calendars are created on first write.
	Calendars []string `yaml:"calendars" json:"calendars"`

	// ResolveWindow is how far around an occurrence_date the resolver looks
	// for the occurrence, e.g. "24h".
	ResolveWindow string `yaml:"resolve_window" json:"resolve_window"`

	Subscriptions []SubscriptionConfig `yaml:"subscriptions" json:"subscriptions"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *") for
	// refreshing subscriptions and re-reading the store.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Transport is "stdio" or "http".
	Transport string `yaml:"transport" json:"transport"`

	// Listen is the HTTP listen address when Transport is "http".
	Listen string `yaml:"listen" json:"listen"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// JournalPath is the sqlite file for the call journal. Empty disables it.
	JournalPath string `yaml:"journal_path" json:"journal_path"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

const (
	defaultStoreDir      = "./calendars"
	defaultCalendar      = "Calendar"
	defaultResolveWindow = "24h"
	defaultRefreshCron   = "*/15 * * * *"
	defaultCacheDir      = "./cache/ics-cache"
	defaultListen        = "127.0.0.1:8080"
	defaultLogLevel      = "info"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		StoreDir:        defaultStoreDir,
		DefaultCalendar: defaultCalendar,
		Calendars:       []string{defaultCalendar},
		ResolveWindow:   defaultResolveWindow,
		Subscriptions:   []SubscriptionConfig{},
		RefreshCron:     defaultRefreshCron,
		CacheDir:        defaultCacheDir,
		Transport:       TransportStdio,
		Listen:          defaultListen,
		JournalPath:     "",
		LogLevel:        defaultLogLevel,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.StoreDir == "" {
		c.StoreDir = defaultStoreDir
	}
	if c.DefaultCalendar == "" {
		if len(c.Calendars) > 0 {
			c.DefaultCalendar = c.Calendars[0]
		} else {
			c.DefaultCalendar = defaultCalendar
		}
	}
	if c.Calendars == nil {
		c.Calendars = []string{c.DefaultCalendar}
	}
	if d, err := time.ParseDuration(c.ResolveWindow); err != nil || d <= 0 {
		c.ResolveWindow = defaultResolveWindow
	}
	if c.Subscriptions == nil {
		c.Subscriptions = []SubscriptionConfig{}
	}
	for i := range c.Subscriptions {
		s := &c.Subscriptions[i]
		if s.ID == "" {
			if s.Name != "" {
				s.ID = s.Name
			} else {
				s.ID = s.URL
			}
		}
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	switch strings.ToLower(c.Transport) {
	case TransportStdio, TransportHTTP:
		c.Transport = strings.ToLower(c.Transport)
	default:
		c.Transport = TransportStdio
	}
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("timezone %q: %w", c.Timezone, err))
		}
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, fmt.Errorf("refresh %q: %w", c.RefreshCron, err))
	}
	seen := make(map[string]bool)
	for _, s := range c.Subscriptions {
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("subscription %q has no url", s.ID))
		}
		if seen[s.ID] {
			errs = append(errs, fmt.Errorf("duplicate subscription id %q", s.ID))
		}
		seen[s.ID] = true
	}
	return errors.Join(errs...)
}

// Location returns the configured zone, or time.Local when unset or invalid.
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

// Window returns ResolveWindow as a duration.
func (c *Config) Window() time.Duration {
	d, err := time.ParseDuration(c.ResolveWindow)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultResolveWindow)
	}
	return d
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Still usable; the caller decides whether this is fatal.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically with 0600 permissions, creating the
// parent directory (0700) if needed.
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

	tmp, err := os.CreateTemp(dir, ".icalmcp-config-*.tmp")
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

func (c *Config) Save(path string) error {
	return Save(path, c)
}
