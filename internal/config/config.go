package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	LogLevel string
	// Location defines the calendar day, hour and month of usage buckets.
	Location *time.Location
	MySQLDSN string
	Telegram Telegram
	Plans    Plans
	Admin    Admin
	Redis    Redis
	S3       S3
}

type Telegram struct {
	Token                string
	Username             string
	PaymentProviderToken string
	Currency             string
}

// PaymentsEnabled reports whether invoices can be issued.
func (t Telegram) PaymentsEnabled() bool {
	return t.PaymentProviderToken != ""
}

type Plans struct {
	DurationDays int
	CacheTTL     time.Duration
}

type Admin struct {
	Addr     string
	Username string
	Password string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

func (r Redis) Enabled() bool {
	return r.Addr != ""
}

type S3 struct {
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	Bucket        string
	PublicBaseURL string
	UsePathStyle  bool
	Prefix        string
}

// Enabled reports whether report exports can be uploaded.
func (s S3) Enabled() bool {
	return s.Bucket != ""
}

// Load overlays the optional env file, then reads the environment. All
// missing or malformed variables are reported together.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	var env envReader
	cfg := Config{
		LogLevel: env.str("LOG_LEVEL", "info"),
		MySQLDSN: env.required("MYSQL_DSN"),
		Telegram: Telegram{
			Token:                env.required("TELEGRAM_BOT_TOKEN"),
			Username:             strings.TrimPrefix(env.str("BOT_USERNAME", ""), "@"),
			PaymentProviderToken: env.str("TELEGRAM_PAYMENT_PROVIDER_TOKEN", ""),
			Currency:             strings.ToUpper(env.str("PAYMENT_CURRENCY", "USD")),
		},
		Plans: Plans{
			DurationDays: env.integer("PLAN_DURATION_DAYS", 30),
			CacheTTL:     time.Duration(env.integer("PLAN_CACHE_TTL_SECONDS", 300)) * time.Second,
		},
		Admin: Admin{
			Addr:     env.str("ADMIN_LISTEN_ADDR", ":8080"),
			Username: env.str("ADMIN_USERNAME", "admin"),
			Password: env.str("ADMIN_PASSWORD", "change-me"),
		},
		Redis: Redis{
			Addr:     env.str("REDIS_ADDR", ""),
			Password: env.str("REDIS_PASSWORD", ""),
			DB:       env.integer("REDIS_DB", 0),
		},
		S3: S3{
			Endpoint:      env.str("S3_ENDPOINT", ""),
			Region:        env.str("S3_REGION", ""),
			AccessKey:     env.str("S3_ACCESS_KEY", ""),
			SecretKey:     env.str("S3_SECRET_KEY", ""),
			Bucket:        env.str("S3_BUCKET", ""),
			PublicBaseURL: env.str("S3_PUBLIC_BASE_URL", ""),
			UsePathStyle:  env.boolean("S3_USE_PATH_STYLE", false),
			Prefix:        env.str("S3_PREFIX", "reports"),
		},
	}

	loc, err := time.LoadLocation(env.str("TIMEZONE", "UTC"))
	if err != nil {
		env.errs = append(env.errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	cfg.Location = loc

	if cfg.Plans.DurationDays <= 0 {
		env.errs = append(env.errs, fmt.Errorf("PLAN_DURATION_DAYS must be positive, got %d", cfg.Plans.DurationDays))
	}
	if cfg.Plans.CacheTTL < 0 {
		env.errs = append(env.errs, fmt.Errorf("PLAN_CACHE_TTL_SECONDS must not be negative"))
	}

	if err := env.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envReader collects problems instead of failing on the first one.
type envReader struct {
	missing []string
	errs    []error
}

func (e *envReader) str(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (e *envReader) required(key string) string {
	v := e.str(key, "")
	if v == "" {
		e.missing = append(e.missing, key)
	}
	return v
}

func (e *envReader) integer(key string, fallback int) int {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid integer %q", key, v))
		return fallback
	}
	return i
}

func (e *envReader) boolean(key string, fallback bool) bool {
	v := e.str(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, v))
		return fallback
	}
	return b
}

func (e *envReader) err() error {
	errs := e.errs
	if len(e.missing) > 0 {
		errs = append([]error{fmt.Errorf("missing required environment variables: %v", e.missing)}, errs...)
	}
	return errors.Join(errs...)
}

// loadEnvFile overlays the first env file found. Running without one is fine;
// containers usually pass everything through the environment.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
