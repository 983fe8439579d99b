// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// EmailConfig provides settings for the platform default email sender.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetBrevoAPIKey() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// ChatConfig provides settings for the chat platform client.
type ChatConfig interface {
	GetChatAPIBaseURL() string
	IsChatEnabled() bool
}

// PaymentsConfig provides settings for the payment gateway integration.
type PaymentsConfig interface {
	GetGatewayAPIBaseURL() string
	GetWebhookBaseURL() string
}

// SchedulerConfig provides settings for background job processing.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetReminderLeadTime() time.Duration
	IsSchedulerEnabled() bool
}

// BookingConfig provides settings for the availability engine.
type BookingConfig interface {
	GetBookingDayStart() time.Duration
	GetBookingDayEnd() time.Duration
	GetSlotStep() time.Duration
	GetDefaultServiceDuration() time.Duration
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	DatabaseURL            string
	JWTAccessSecret        string
	CORSAllowAll           bool
	CORSOrigins            []string
	CORSAllowCreds         bool
	AppBaseURL             string
	EmailEnabled           bool
	BrevoAPIKey            string
	EmailFromName          string
	EmailFromAddress       string
	ChatAPIBaseURL         string
	GatewayAPIBaseURL      string
	WebhookBaseURL         string
	RedisURL               string
	RedisTLSInsecure       bool
	AsynqQueueName         string
	AsynqConcurrency       int
	ReminderLeadTime       time.Duration
	BookingDayStart        time.Duration
	BookingDayEnd          time.Duration
	SlotStep               time.Duration
	DefaultServiceDuration time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.EmailEnabled }
func (c *Config) GetBrevoAPIKey() string      { return c.BrevoAPIKey }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// ChatConfig implementation
func (c *Config) GetChatAPIBaseURL() string { return c.ChatAPIBaseURL }
func (c *Config) IsChatEnabled() bool       { return c.ChatAPIBaseURL != "" }

// PaymentsConfig implementation
func (c *Config) GetGatewayAPIBaseURL() string { return c.GatewayAPIBaseURL }
func (c *Config) GetWebhookBaseURL() string    { return c.WebhookBaseURL }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool          { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string          { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int           { return c.AsynqConcurrency }
func (c *Config) GetReminderLeadTime() time.Duration { return c.ReminderLeadTime }
func (c *Config) IsSchedulerEnabled() bool           { return c.RedisURL != "" }

// BookingConfig implementation
func (c *Config) GetBookingDayStart() time.Duration        { return c.BookingDayStart }
func (c *Config) GetBookingDayEnd() time.Duration          { return c.BookingDayEnd }
func (c *Config) GetSlotStep() time.Duration               { return c.SlotStep }
func (c *Config) GetDefaultServiceDuration() time.Duration { return c.DefaultServiceDuration }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	brevoAPIKey := getEnv("BREVO_API_KEY", "")
	emailEnabled := strings.EqualFold(getEnv("EMAIL_ENABLED", "true"), "true")

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		JWTAccessSecret:        getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:           corsAllowAll,
		CORSOrigins:            corsOrigins,
		CORSAllowCreds:         strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:             getEnv("APP_BASE_URL", "http://localhost:4200"),
		EmailEnabled:           emailEnabled && brevoAPIKey != "",
		BrevoAPIKey:            brevoAPIKey,
		EmailFromName:          getEnv("EMAIL_FROM_NAME", "Reserva"),
		EmailFromAddress:       getEnv("EMAIL_FROM_ADDRESS", ""),
		ChatAPIBaseURL:         getEnv("CHAT_API_BASE_URL", ""),
		GatewayAPIBaseURL:      getEnv("PAYMENT_GATEWAY_BASE_URL", "https://api.mercadopago.com"),
		WebhookBaseURL:         getEnv("WEBHOOK_BASE_URL", ""),
		RedisURL:               getEnv("REDIS_URL", ""),
		RedisTLSInsecure:       strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:         getEnv("ASYNQ_QUEUE_NAME", "default"),
		AsynqConcurrency:       mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		ReminderLeadTime:       mustDuration(getEnv("REMINDER_LEAD_TIME", "24h")),
		BookingDayStart:        mustDuration(getEnv("BOOKING_DAY_START", "9h")),
		BookingDayEnd:          mustDuration(getEnv("BOOKING_DAY_END", "18h")),
		SlotStep:               mustDuration(getEnv("BOOKING_SLOT_STEP", "30m")),
		DefaultServiceDuration: mustDuration(getEnv("DEFAULT_SERVICE_DURATION", "60m")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if emailEnabled && cfg.BrevoAPIKey == "" {
		return nil, fmt.Errorf("BREVO_API_KEY is required when EMAIL_ENABLED is true")
	}
	if cfg.EmailEnabled && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.BookingDayStart >= cfg.BookingDayEnd {
		return nil, fmt.Errorf("BOOKING_DAY_START must be before BOOKING_DAY_END")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustInt(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
