package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	defaultCronSpec   = "0 0 * * *"
	defaultLeaseTTL   = time.Hour
	defaultJobTimeout = 10 * time.Minute
)

type Config struct {
	DBDSN         string        `mapstructure:"DB_DSN"`
	Environment   string        `mapstructure:"ENV"`
	EnableCron    bool          `mapstructure:"ENABLE_CRON"`
	CronSpec      string        `mapstructure:"CRON_SPEC"`
	Timezone      string        `mapstructure:"TIMEZONE"`
	Location      *time.Location
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisUsername string        `mapstructure:"REDIS_USERNAME"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	LeaseTTL      time.Duration `mapstructure:"LEASE_TTL"`
	JobTimeout    time.Duration `mapstructure:"JOB_TIMEOUT"`
	RunOnStart    bool          `mapstructure:"RUN_ON_START"`
	MigrationsDir string        `mapstructure:"MIGRATIONS_DIR"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	} else {
		log.Println("Loaded configuration from .env file")
	}

	return FromEnv(os.Getenv)
}

// FromEnv собирает конфигурацию из функции чтения переменных окружения
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DBDSN:         getenv("DB_DSN"),
		Environment:   getenv("ENV"),
		CronSpec:      getenv("CRON_SPEC"),
		Timezone:      getenv("TIMEZONE"),
		RedisAddr:     getenv("REDIS_ADDR"),
		RedisUsername: getenv("REDIS_USERNAME"),
		RedisPassword: getenv("REDIS_PASSWORD"),
		MigrationsDir: getenv("MIGRATIONS_DIR"),
	}

	// Устанавливаем дефолтные значения
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.CronSpec == "" {
		cfg.CronSpec = defaultCronSpec
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}

	var err error
	if cfg.EnableCron, err = parseBool(getenv, "ENABLE_CRON", false); err != nil {
		return nil, err
	}
	if cfg.RunOnStart, err = parseBool(getenv, "RUN_ON_START", false); err != nil {
		return nil, err
	}
	if cfg.LeaseTTL, err = parseDuration(getenv, "LEASE_TTL", defaultLeaseTTL); err != nil {
		return nil, err
	}
	if cfg.JobTimeout, err = parseDuration(getenv, "JOB_TIMEOUT", defaultJobTimeout); err != nil {
		return nil, err
	}

	// Проверяем обязательные поля
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}

	cfg.Location, err = time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", cfg.Timezone, err)
	}

	if _, err := cron.ParseStandard(cfg.CronSpec); err != nil {
		return nil, fmt.Errorf("CRON_SPEC %q: %w", cfg.CronSpec, err)
	}

	return cfg, nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

// UseRedisLease сообщает, нужна ли распределённая аренда задач
func (c *Config) UseRedisLease() bool {
	return c.RedisAddr != ""
}

func parseBool(getenv func(string) string, key string, def bool) (bool, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func parseDuration(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, raw)
	}
	return v, nil
}
