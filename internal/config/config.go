package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"

	ExportFS = "fs"
	ExportS3 = "s3"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	StoreDriver   string `mapstructure:"STORE_DRIVER"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	SQLitePath    string `mapstructure:"SQLITE_PATH"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	Timezone                string `mapstructure:"TIMEZONE"`
	NearExpiryDays          int    `mapstructure:"NEAR_EXPIRY_DAYS"`
	LowStockThreshold       int    `mapstructure:"LOW_STOCK_THRESHOLD"`
	PrescriptionWarningDays int    `mapstructure:"PRESCRIPTION_WARNING_DAYS"`

	AuthSecret  string   `mapstructure:"AUTH_SECRET"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	ExportDriver      string `mapstructure:"EXPORT_DRIVER"`
	ExportDir         string `mapstructure:"EXPORT_DIR"`
	ExportS3Bucket    string `mapstructure:"EXPORT_S3_BUCKET"`
	ExportS3Region    string `mapstructure:"EXPORT_S3_REGION"`
	ExportS3Endpoint  string `mapstructure:"EXPORT_S3_ENDPOINT"`
	ExportS3PathStyle bool   `mapstructure:"EXPORT_S3_PATH_STYLE"`

	// Static credentials are optional; the AWS default chain is used otherwise.
	ExportS3AccessKeyID     string `mapstructure:"EXPORT_S3_ACCESS_KEY_ID"`
	ExportS3SecretAccessKey string `mapstructure:"EXPORT_S3_SECRET_ACCESS_KEY"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"STORE_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "SQLITE_PATH", "MIGRATIONS_DIR",
	"TIMEZONE", "NEAR_EXPIRY_DAYS", "LOW_STOCK_THRESHOLD", "PRESCRIPTION_WARNING_DAYS",
	"AUTH_SECRET", "CORS_ORIGINS",
	"EXPORT_DRIVER", "EXPORT_DIR", "EXPORT_S3_BUCKET", "EXPORT_S3_REGION", "EXPORT_S3_ENDPOINT", "EXPORT_S3_PATH_STYLE",
	"EXPORT_S3_ACCESS_KEY_ID", "EXPORT_S3_SECRET_ACCESS_KEY",
}

// Load reads configuration from the environment and an optional .env file,
// then validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("SQLITE_PATH", "./data/medstock.db")
	v.SetDefault("MIGRATIONS_DIR", "")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("NEAR_EXPIRY_DAYS", 30)
	v.SetDefault("LOW_STOCK_THRESHOLD", 10)
	v.SetDefault("PRESCRIPTION_WARNING_DAYS", 15)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("EXPORT_DRIVER", ExportFS)
	v.SetDefault("EXPORT_DIR", "./exports")
	v.SetDefault("EXPORT_S3_REGION", "us-east-1")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.ExportDriver = strings.ToLower(strings.TrimSpace(cfg.ExportDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Location resolves TIMEZONE. "Local" and "" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", DriverPostgres)
		}
		if c.DBMaxConns < 1 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("invalid pool bounds: DB_MIN_CONNS=%d DB_MAX_CONNS=%d", c.DBMinConns, c.DBMaxConns)
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER is %q", DriverSQLite)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be \"postgres\", \"sqlite\", or \"memory\", got %q", c.StoreDriver)
	}

	if c.NearExpiryDays < 0 {
		return fmt.Errorf("NEAR_EXPIRY_DAYS must not be negative, got %d", c.NearExpiryDays)
	}
	if c.LowStockThreshold < 0 {
		return fmt.Errorf("LOW_STOCK_THRESHOLD must not be negative, got %d", c.LowStockThreshold)
	}
	if c.PrescriptionWarningDays < 0 {
		return fmt.Errorf("PRESCRIPTION_WARNING_DAYS must not be negative, got %d", c.PrescriptionWarningDays)
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.ExportDriver {
	case ExportFS:
		if c.ExportDir == "" {
			return fmt.Errorf("EXPORT_DIR is required when EXPORT_DRIVER is %q", ExportFS)
		}
	case ExportS3:
		if c.ExportS3Bucket == "" {
			return fmt.Errorf("EXPORT_S3_BUCKET is required when EXPORT_DRIVER is %q", ExportS3)
		}
		if (c.ExportS3AccessKeyID == "") != (c.ExportS3SecretAccessKey == "") {
			return fmt.Errorf("EXPORT_S3_ACCESS_KEY_ID and EXPORT_S3_SECRET_ACCESS_KEY must be set together")
		}
	default:
		return fmt.Errorf("EXPORT_DRIVER must be \"fs\" or \"s3\", got %q", c.ExportDriver)
	}

	if c.IsProduction() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required in production")
	}
	return nil
}
