package config

import (
	"strings"
	"time"
)

type Database struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func LoadDatabase() Database {
	return Database{
		Host:            GetEnv("DB_HOST", "localhost"),
		Port:            GetEnv("DB_PORT", "5432"),
		User:            GetEnv("DB_USER", "postgres"),
		Password:        GetEnv("DB_PASSWORD", "postgres"),
		Name:            GetEnv("DB_NAME", "campusmarket"),
		SSLMode:         GetEnv("DB_SSLMODE", "disable"),
		MaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
		MaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
		ConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
	}
}

// DSN renders the libpq-style connection string.
func (d Database) DSN() string {
	return "host=" + d.Host +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.Name +
		" port=" + d.Port +
		" sslmode=" + d.SSLMode
}

type Redis struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

func LoadRedis() Redis {
	return Redis{
		Enabled:  GetBoolEnv("REDIS_ENABLED", true),
		Host:     GetEnv("REDIS_HOST", "localhost"),
		Port:     GetEnv("REDIS_PORT", "6379"),
		Password: GetEnv("REDIS_PASSWORD", ""),
		DB:       GetIntEnv("REDIS_DB", 0),
	}
}

type Kafka struct {
	Brokers []string
	Topic   string
}

// Enabled is false when no broker is configured; notifications then go to the log.
func (k Kafka) Enabled() bool { return len(k.Brokers) > 0 }

func LoadKafka() Kafka {
	return Kafka{
		Brokers: splitList(GetEnv("KAFKA_BROKERS", "")),
		Topic:   GetEnv("KAFKA_NOTIFICATIONS_TOPIC", "marketplace.notifications"),
	}
}

type Logging struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func LoadLogging() Logging {
	return Logging{
		Level:      GetEnv("LOG_LEVEL", "info"),
		Format:     GetEnv("LOG_FORMAT", "json"),
		File:       GetEnv("LOG_FILE", ""),
		MaxSizeMB:  GetIntEnv("LOG_MAX_SIZE_MB", 100),
		MaxBackups: GetIntEnv("LOG_MAX_BACKUPS", 5),
		MaxAgeDays: GetIntEnv("LOG_MAX_AGE_DAYS", 28),
	}
}

type Server struct {
	Port          string
	JWTSecret     string
	TokenTTL      time.Duration
	StripeKey     string
	AllowOrigins  string
	RateLimitMax  int
	RateLimitSpan time.Duration
}

func LoadServer() Server {
	return Server{
		Port:          GetEnv("PORT", "8080"),
		JWTSecret:     GetEnv("JWT_SECRET", ""),
		TokenTTL:      GetDurationEnv("JWT_TTL", 15*time.Minute),
		StripeKey:     GetEnv("STRIPE_SECRET_KEY", ""),
		AllowOrigins:  GetEnv("CORS_ALLOW_ORIGINS", "*"),
		RateLimitMax:  GetIntEnv("RATE_LIMIT_MAX", 100),
		RateLimitSpan: GetDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
	}
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
