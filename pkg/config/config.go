package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	JWT           JWTConfig
	Stripe        StripeConfig
	Resend        ResendConfig
	Redis         RedisConfig
	R2            R2Config
	Admin         AdminConfig
	DefaultServer DefaultServerConfig
	Cron          CronConfig
	Log           LogConfig
	Outline       OutlineConfig
}

type ServerConfig struct {
	Port            string
	AllowedOrigins  string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// SQLitePath switches the store to sqlite when set, for local runs.
	SQLitePath string
}

// DSN returns DATABASE_URL when set, otherwise a postgres DSN built from
// the individual settings.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

func (s StripeConfig) Enabled() bool { return s.SecretKey != "" }

type ResendConfig struct {
	APIKey string
	From   string
}

func (r ResendConfig) Enabled() bool { return r.APIKey != "" }

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type R2Config struct {
	AccountID string
	AccessKey string
	SecretKey string
	Bucket    string
	Endpoint  string
	LinkTTL   time.Duration
}

func (r R2Config) Enabled() bool { return r.Bucket != "" && r.AccessKey != "" }

// AdminConfig seeds the first administrator on startup.
type AdminConfig struct {
	Email    string
	Password string
}

type DefaultServerConfig struct {
	Name          string
	Host          string
	Port          int
	ManagementURL string
	MaxClients    int
}

func (d DefaultServerConfig) Enabled() bool { return d.Host != "" }

type CronConfig struct {
	ExpirySweep    string
	Reminders      string
	HealthCheck    string
	ReminderWindow time.Duration
	JobTimeout     time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type OutlineConfig struct {
	Timeout     time.Duration
	InsecureTLS bool
}

func Load() *Config {
	godotenv.Load() // .env dosyasını yükle

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "3000"),
			AllowedOrigins:  getEnv("ALLOWED_ORIGINS", "*"),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			URL:        os.Getenv("DATABASE_URL"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", ""),
			DBName:     getEnv("DB_NAME", "gshvpn"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: os.Getenv("SQLITE_PATH"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key"),
			TTL:    getDuration("JWT_TTL", 24*time.Hour),
		},
		Stripe: StripeConfig{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			SuccessURL:    getEnv("STRIPE_SUCCESS_URL", "http://localhost:5173/dashboard?payment=success"),
			CancelURL:     getEnv("STRIPE_CANCEL_URL", "http://localhost:5173/plans?payment=cancelled"),
		},
		Resend: ResendConfig{
			APIKey: os.Getenv("RESEND_API_KEY"),
			From:   getEnv("EMAIL_FROM", "GSH VPN <no-reply@gshvpn.com>"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		R2: R2Config{
			AccountID: os.Getenv("R2_ACCOUNT_ID"),
			AccessKey: os.Getenv("R2_ACCESS_KEY"),
			SecretKey: os.Getenv("R2_SECRET_KEY"),
			Bucket:    os.Getenv("R2_BUCKET"),
			Endpoint:  os.Getenv("R2_ENDPOINT"),
			LinkTTL:   getDuration("R2_LINK_TTL", 15*time.Minute),
		},
		Admin: AdminConfig{
			Email:    os.Getenv("ADMIN_EMAIL"),
			Password: os.Getenv("ADMIN_PASSWORD"),
		},
		DefaultServer: DefaultServerConfig{
			Name:          getEnv("DEFAULT_SERVER_NAME", "Default"),
			Host:          os.Getenv("DEFAULT_SERVER_HOST"),
			Port:          getInt("DEFAULT_SERVER_PORT", 22),
			ManagementURL: os.Getenv("DEFAULT_SERVER_MANAGEMENT_URL"),
			MaxClients:    getInt("DEFAULT_SERVER_MAX_CLIENTS", 5),
		},
		Cron: CronConfig{
			ExpirySweep:    getEnv("CRON_EXPIRY_SWEEP", "0 * * * *"),
			Reminders:      getEnv("CRON_REMINDERS", "0 9 * * *"),
			HealthCheck:    getEnv("CRON_HEALTH_CHECK", "*/5 * * * *"),
			ReminderWindow: getDuration("REMINDER_WINDOW", 72*time.Hour),
			JobTimeout:     getDuration("CRON_JOB_TIMEOUT", 5*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Outline: OutlineConfig{
			Timeout:     getDuration("OUTLINE_TIMEOUT", 10*time.Second),
			InsecureTLS: getBool("OUTLINE_INSECURE_TLS", true),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key))); err == nil {
		return v
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}
