package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/pesantren-billing/billing"
	"github.com/warp/pesantren-billing/config"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := config.LoadFrom(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "pesantren.db", cfg.Database.Path)
	assert.Equal(t, billing.Juli, cfg.Billing.AcademicYearStartMonth)
	assert.Equal(t, billing.DefaultDueLookahead, cfg.Billing.DueLookaheadMonths)
	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, []string{"*"}, cfg.HTTP.CORSAllowOrigins)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.IsProduction())
}

func TestLoadFrom_YAMLThenEnvironment(t *testing.T) {
	// GIVEN: a config file and an environment override
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
app:
  env: production
  port: "9000"
log:
  format: json
billing:
  academic_year_start_month: Januari
http:
  cors_allow_origins: "https://admin.pesantren.id, https://kasir.pesantren.id"
`)
	t.Setenv("PESANTREN_APP_PORT", "9100")

	// WHEN: loading
	cfg, err := config.LoadFrom(dir)

	// THEN: the environment wins over the file
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.App.Port)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, billing.Januari, cfg.Billing.AcademicYearStartMonth)
	assert.Equal(t, []string{"https://admin.pesantren.id", "https://kasir.pesantren.id"}, cfg.HTTP.CORSAllowOrigins)
}

func TestLoadFrom_DotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "PESANTREN_APP_INSTITUTION=Pondok Pesantren Al-Hikmah\n")
	t.Cleanup(func() { os.Unsetenv("PESANTREN_APP_INSTITUTION") })

	cfg, err := config.LoadFrom(dir)

	require.NoError(t, err)
	assert.Equal(t, "Pondok Pesantren Al-Hikmah", cfg.App.Institution)
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"log format", "PESANTREN_LOG_FORMAT", "xml"},
		{"database driver", "PESANTREN_DATABASE_DRIVER", "postgres"},
		{"start month", "PESANTREN_BILLING_ACADEMIC_YEAR_START_MONTH", "Ramadan"},
		{"lookahead", "PESANTREN_BILLING_DUE_LOOKAHEAD_MONTHS", "0"},
		{"metrics path", "PESANTREN_METRICS_PATH", "metrics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := config.LoadFrom(t.TempDir())
			assert.Error(t, err)
		})
	}
}

func TestLoadFrom_MemoryDriverNeedsNoPath(t *testing.T) {
	t.Setenv("PESANTREN_DATABASE_DRIVER", "Memory")
	t.Setenv("PESANTREN_DATABASE_PATH", "")

	cfg, err := config.LoadFrom(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
}

func TestLoadFrom_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "app: [unclosed")

	_, err := config.LoadFrom(dir)
	assert.Error(t, err)
}
