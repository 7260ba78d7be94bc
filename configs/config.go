package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	Quota    QuotaConfig
	Throttle ThrottleConfig
	Admin    AdminConfig
}

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TLSCertFile    string
	TLSKeyFile     string
	AllowedOrigins []string
	Environment    string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	DSN      string
	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

// QuotaConfig seeds the quota settings on first start and tunes the limiter.
// Once settings are saved through the admin API the stored values win over the seed.
type QuotaConfig struct {
	Enabled        bool
	Interval       string
	Limit          int
	CustomerNotice string
	WeekStartDay   int
	Timezone       string

	CachePrefix                 string
	QueryTimeout                time.Duration
	FailOpen                    bool
	ResetOverridesOnLimitChange bool
	SettingsChannel             string
	RolloverEnabled             bool
}

type ThrottleConfig struct {
	AttemptsPerMinute int
	KeyPrefix         string
}

type AdminConfig struct {
	JWTSecret string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TLSCertFile:    getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:     getEnv("TLS_KEY_FILE", ""),
			AllowedOrigins: getListEnv("SERVER_ALLOWED_ORIGINS", []string{"*"}),
			Environment:    getEnv("APP_ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "order_quota"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getDurationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			MigrationsPath:  getEnv("DB_MIGRATIONS_PATH", "./migrations"),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getIntEnv("REDIS_DB", 0),
			PoolSize:     getIntEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: getIntEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDurationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDurationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDurationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  getDurationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:  getDurationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Quota: QuotaConfig{
			Enabled:                     getBoolEnv("QUOTA_ENABLED", false),
			Interval:                    getEnv("QUOTA_INTERVAL", "daily"),
			Limit:                       getIntEnv("QUOTA_LIMIT", 5),
			CustomerNotice:              getEnv("QUOTA_CUSTOMER_NOTICE", "Please try again once the next ordering period begins."),
			WeekStartDay:                getIntEnv("QUOTA_WEEK_START_DAY", 1),
			Timezone:                    getEnv("QUOTA_TIMEZONE", "UTC"),
			CachePrefix:                 getEnv("QUOTA_CACHE_PREFIX", "quota:count"),
			QueryTimeout:                getDurationEnv("QUOTA_QUERY_TIMEOUT", 3*time.Second),
			FailOpen:                    getBoolEnv("QUOTA_FAIL_OPEN", false),
			ResetOverridesOnLimitChange: getBoolEnv("QUOTA_RESET_OVERRIDES_ON_LIMIT_CHANGE", true),
			SettingsChannel:             getEnv("QUOTA_SETTINGS_CHANNEL", "quota:settings:changed"),
			RolloverEnabled:             getBoolEnv("QUOTA_ROLLOVER_ENABLED", true),
		},
		Throttle: ThrottleConfig{
			AttemptsPerMinute: getIntEnv("CHECKOUT_ATTEMPTS_PER_MINUTE", 30),
			KeyPrefix:         getEnv("CHECKOUT_THROTTLE_KEY_PREFIX", "throttle:checkout"),
		},
		Admin: AdminConfig{
			JWTSecret: getEnvRequired("ADMIN_JWT_SECRET"),
		},
	}

	if _, err := time.LoadLocation(cfg.Quota.Timezone); err != nil {
		return nil, fmt.Errorf("invalid QUOTA_TIMEZONE %q: %w", cfg.Quota.Timezone, err)
	}

	// Build database DSN
	cfg.Database.DSN = fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	return cfg, nil
}

// Location returns the time zone used to compute window boundaries.
func (q QuotaConfig) Location() *time.Location {
	loc, err := time.LoadLocation(q.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvRequired(key string) string {
	value := os.Getenv(key)
	if value == "" {
		panic(fmt.Sprintf("Required environment variable %s is not set", key))
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
