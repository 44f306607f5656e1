package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govbot/internal/index"
	"github.com/roach88/govbot/internal/kv"
)

func envOf(vars map[string]string) func(string) string {
	return func(name string) string { return vars[name] }
}

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "govbot.cue")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))
	return path
}

func requireLoadError(t *testing.T, err error, code string) *LoadError {
	t.Helper()
	require.Error(t, err)
	var le *LoadError
	require.True(t, errors.As(err, &le), "expected *LoadError, got %T", err)
	assert.Equal(t, code, le.Code, le.Error())
	return le
}

func TestDefaults(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	assert.Equal(t, Storage{Backend: kv.BackendPebble, Path: "./data/govbot", CacheSize: 4096}, cfg.Storage)
	assert.Equal(t, Sockets{
		Query:          "/tmp/govbot_query.sock",
		Notification:   "/tmp/govbot_notification.sock",
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxRequestSize: 1 << 20,
	}, cfg.Sockets)
	assert.Equal(t, index.DefaultPlan(), cfg.Index)
	assert.Equal(t, time.Minute, cfg.RefreshInterval)
	assert.Equal(t, time.Hour, cfg.CompactionInterval)
	assert.Equal(t, "https://govbot.local/login", cfg.LoginURL)
	assert.Equal(t, "", cfg.MetricsAddr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
storage: backend: "sqlite"
storage: path:    "/var/lib/govbot/db"
index: membership: ["origin"]
index: sorted: [{name: "top", field: "order_by.rank"}]
refresh_interval: "30s"
metrics_addr:     "127.0.0.1:9100"
`)

	cfg, err := Load(path, envOf(nil))
	require.NoError(t, err)
	assert.Equal(t, kv.BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/govbot/db", cfg.Storage.Path)
	assert.Equal(t, 4096, cfg.Storage.CacheSize, "unset fields keep their defaults")
	assert.Equal(t, index.Plan{
		Membership: []string{"origin"},
		Sorted:     []index.SortedSpec{{Name: "top", Field: "order_by.rank"}},
	}, cfg.Index)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
}

func TestLoadFileRejected(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"unknown field", `storag: backend: "sqlite"`, ErrCodeSchema},
		{"bad backend", `storage: backend: "postgres"`, ErrCodeSchema},
		{"bad duration", `refresh_interval: "soon"`, ErrCodeSchema},
		{"negative cache", `storage: cache_size: -1`, ErrCodeSchema},
		{"empty sorted name", `index: sorted: [{name: "", field: "timestamp"}]`, ErrCodeSchema},
		{"duplicate sorted name", `index: sorted: [{name: "a", field: "x"}, {name: "a", field: "y"}]`, ErrCodeSchema},
		{"login url scheme", `login_url: "ftp://example.org"`, ErrCodeSchema},
		{"syntax", `storage: {`, ErrCodeSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.src), envOf(nil))
			requireLoadError(t, err, tt.code)
		})
	}
}

func TestSyntaxErrorCarriesPosition(t *testing.T) {
	path := writeConfig(t, "storage: {\n\tbackend: \n")
	_, err := Load(path, envOf(nil))
	le := requireLoadError(t, err, ErrCodeSyntax)
	assert.True(t, le.Pos.IsValid())
	assert.Contains(t, le.Error(), "govbot.cue")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.cue"), envOf(nil))
	requireLoadError(t, err, ErrCodeRead)
}

func TestEnvOverridesWin(t *testing.T) {
	path := writeConfig(t, `storage: backend: "sqlite"`)

	cfg, err := Load(path, envOf(map[string]string{
		"GOVBOT_STORAGE_BACKEND":     "memory",
		"GOVBOT_CACHE_SIZE":          "16",
		"GOVBOT_QUERY_SOCKET":        "/run/govbot/q.sock",
		"GOVBOT_READ_TIMEOUT":        "2s",
		"GOVBOT_MAX_REQUEST_SIZE":    "4096",
		"GOVBOT_INDEX_MEMBERSHIP":    "origin, kind ,status",
		"GOVBOT_INDEX_SORTED":        "recent=timestamp,top=order_by.rank",
		"GOVBOT_LOG_LEVEL":           "DEBUG",
		"GOVBOT_COMPACTION_INTERVAL": "15m",
	}))
	require.NoError(t, err)

	assert.Equal(t, kv.BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 16, cfg.Storage.CacheSize)
	assert.Equal(t, "/run/govbot/q.sock", cfg.Sockets.Query)
	assert.Equal(t, 2*time.Second, cfg.Sockets.ReadTimeout)
	assert.Equal(t, int64(4096), cfg.Sockets.MaxRequestSize)
	assert.Equal(t, []string{"origin", "kind", "status"}, cfg.Index.Membership)
	assert.Equal(t, []index.SortedSpec{
		{Name: "recent", Field: "timestamp"},
		{Name: "top", Field: "order_by.rank"},
	}, cfg.Index.Sorted)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 15*time.Minute, cfg.CompactionInterval)
}

func TestEnvOverridesRejected(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		code string
	}{
		{"log level outside enum", map[string]string{"GOVBOT_LOG_LEVEL": "loud"}, ErrCodeSchema},
		{"backend outside enum", map[string]string{"GOVBOT_STORAGE_BACKEND": "redis"}, ErrCodeSchema},
		{"duration", map[string]string{"GOVBOT_REFRESH_INTERVAL": "5 minutes"}, ErrCodeSchema},
		{"integer", map[string]string{"GOVBOT_CACHE_SIZE": "many"}, ErrCodeEnv},
		{"sorted pair", map[string]string{"GOVBOT_INDEX_SORTED": "timestamp"}, ErrCodeEnv},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("", envOf(tt.vars))
			requireLoadError(t, err, tt.code)
		})
	}
}

func TestEnvNames(t *testing.T) {
	names := EnvNames()
	assert.Contains(t, names, "GOVBOT_STORAGE_BACKEND")
	assert.Contains(t, names, "GOVBOT_LOGIN_URL")
	for _, n := range names {
		assert.True(t, len(n) > len(EnvPrefix) && n[:len(EnvPrefix)] == EnvPrefix, n)
	}
}

func TestSchema(t *testing.T) {
	assert.Contains(t, Schema(), "#Config")
}
