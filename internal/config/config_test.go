package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWritesDefaultsOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store_dir: /srv/cal
calendars: [Work, Home]
transport: HTTP
resolve_window: nonsense
subscriptions:
  - name: Holidays
    url: https://example.com/holidays.ics
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/cal", cfg.StoreDir)
	assert.Equal(t, "Work", cfg.DefaultCalendar)
	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, 24*time.Hour, cfg.Window())
	assert.Equal(t, "Holidays", cfg.Subscriptions[0].ID)
	assert.Equal(t, "*/15 * * * *", cfg.RefreshCron)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Mars/Olympus"
	cfg.RefreshCron = "every now and then"
	cfg.Subscriptions = []SubscriptionConfig{{ID: "a"}, {ID: "a", URL: "https://example.com/a.ics"}}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mars/Olympus")
	assert.Contains(t, err.Error(), "every now and then")
	assert.Contains(t, err.Error(), `subscription "a" has no url`)
	assert.Contains(t, err.Error(), `duplicate subscription id "a"`)
}

func TestLocation(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, time.Local, cfg.Location())
	cfg.Timezone = "Australia/Sydney"
	assert.Equal(t, "Australia/Sydney", cfg.Location().String())
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	cfg.JournalPath = "/var/lib/icalmcp/journal.db"
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}
