// Package config loads server configuration from config.yaml, .env and
// PESANTREN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/warp/pesantren-billing/billing"
)

// EnvPrefix is prepended to every environment override, e.g.
// PESANTREN_APP_PORT overrides app.port.
const EnvPrefix = "PESANTREN"

// Config holds all application configuration.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Log      LogConfig
	HTTP     HTTPConfig
	Billing  BillingConfig
	Metrics  MetricsConfig
}

type AppConfig struct {
	Env         string
	Port        string
	Institution string // printed on receipts
}

type DatabaseConfig struct {
	Driver string // sqlite, memory
	Path   string // SQLite file, or ":memory:"
}

type LogConfig struct {
	Level  string
	Format string // json, console
	Output string // stdout, stderr, or file path
}

type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	CORSAllowOrigins []string
}

type BillingConfig struct {
	AcademicYearStartMonth billing.Month
	DueLookaheadMonths     int
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from the working directory.
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom reads dir/.env and dir/config.yaml when present, then applies
// environment overrides and defaults.
func LoadFrom(dir string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load(dir + "/.env")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	applyDefaults(v)

	startMonth, err := billing.ParseMonth(v.GetString("billing.academic_year_start_month"))
	if err != nil {
		return nil, fmt.Errorf("billing.academic_year_start_month: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Env:         v.GetString("app.env"),
			Port:        v.GetString("app.port"),
			Institution: v.GetString("app.institution"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(v.GetString("database.driver")),
			Path:   v.GetString("database.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			CORSAllowOrigins: splitList(v.GetString("http.cors_allow_origins")),
		},
		Billing: BillingConfig{
			AcademicYearStartMonth: startMonth,
			DueLookaheadMonths:     v.GetInt("billing.due_lookahead_months"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
			Path:    v.GetString("metrics.path"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.institution", "Pondok Pesantren")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "pesantren.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "30s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.cors_allow_origins", "*")
	v.SetDefault("billing.academic_year_start_month", "7")
	v.SetDefault("billing.due_lookahead_months", billing.DefaultDueLookahead)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.App.Port == "" {
		return errors.New("app.port is required")
	}
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return errors.New("database.path is required")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be sqlite or memory, got %q", c.Database.Driver)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	if c.Billing.DueLookaheadMonths < 1 {
		return fmt.Errorf("billing.due_lookahead_months must be positive, got %d", c.Billing.DueLookaheadMonths)
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}
	return nil
}

// IsProduction reports whether app.env is production.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
