package environments

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Brevo      BrevoConfig
	Dispatch   DispatchConfig
	Events     EventsConfig
	Report     ReportConfig
	SMSGateway SMSGatewayConfig
	Alert      AlertConfig
	Auth       AuthConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type BrevoConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// DispatchConfig carries the knobs the bulk dispatcher and its retry engine use.
type DispatchConfig struct {
	MaxRetries         int
	InitialRetryDelay  time.Duration
	MaxRetryDelay      time.Duration
	RateLimitDelay     time.Duration
	ChunkDelay         time.Duration
	DefaultChunkSize   int
	MaxAttachmentBytes int64
	FailedSendsLogPath string
}

type EventsConfig struct {
	FetchRetries      int
	ReconcileInterval time.Duration
}

// ReportConfig holds the permanent-bounce phrase list. The phrases are
// provider-observed, not authoritative, so they live in configuration
// rather than in the correlator itself.
type ReportConfig struct {
	PermanentBouncePatterns []string
}

type SMSGatewayConfig struct {
	BaseURL  string
	Login    string
	Password string
	Timeout  time.Duration
	BatchCap int
}

type AlertConfig struct {
	WebhookURL     string
	IterationCount int
}

type AuthConfig struct {
	CampaignsAPIKey string
	SchedulerAPIKey string
}

// defaultPermanentBouncePatterns matches soft-bounce reasons that indicate the
// recipient address will never work, as opposed to a transient delivery issue.
var defaultPermanentBouncePatterns = []string{
	"connection timed out",
	"domain not found",
	"no mail server",
	"invalid recipient",
	"unknown recipient",
	"unrouteable",
	"mailbox not found",
	"address rejected",
	"does not exist",
	"no such user",
	"bad destination mailbox",
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: GetEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     GetEnv("DB_PORT", "3306"),
			User:     GetEnv("DB_USER", "campaigns"),
			Password: GetEnv("DB_PASSWORD", "campaigns123"),
			DBName:   GetEnv("DB_NAME", "campaign_dispatch"),
		},
		Redis: RedisConfig{
			Host:     GetEnv("REDIS_HOST", "localhost"),
			Port:     GetEnv("REDIS_PORT", "6379"),
			Password: GetEnv("REDIS_PASSWORD", ""),
			DB:       GetEnvAsInt("REDIS_DB", 0),
		},
		Brevo: BrevoConfig{
			APIKey:  GetEnv("BREVO_API_KEY", ""),
			BaseURL: GetEnv("BREVO_BASE_URL", "https://api.brevo.com/v3"),
			Timeout: GetEnvAsDuration("BREVO_TIMEOUT", 30*time.Second),
		},
		Dispatch: DispatchConfig{
			MaxRetries:         GetEnvAsInt("DISPATCH_MAX_RETRIES", 3),
			InitialRetryDelay:  GetEnvAsDuration("DISPATCH_INITIAL_RETRY_DELAY", 2*time.Second),
			MaxRetryDelay:      GetEnvAsDuration("DISPATCH_MAX_RETRY_DELAY", 60*time.Second),
			RateLimitDelay:     GetEnvAsDuration("DISPATCH_RATE_LIMIT_DELAY", 500*time.Millisecond),
			ChunkDelay:         GetEnvAsDuration("DISPATCH_CHUNK_DELAY", time.Second),
			DefaultChunkSize:   GetEnvAsInt("DISPATCH_CHUNK_SIZE", 500),
			MaxAttachmentBytes: int64(GetEnvAsInt("DISPATCH_MAX_ATTACHMENT_SIZE_MB", 10)) * 1024 * 1024,
			FailedSendsLogPath: GetEnv("FAILED_SENDS_LOG_PATH", "logs/failed_sends.log"),
		},
		Events: EventsConfig{
			FetchRetries:      GetEnvAsInt("EVENTS_FETCH_RETRIES", 2),
			ReconcileInterval: GetEnvAsDuration("EVENTS_RECONCILE_INTERVAL", 30*time.Minute),
		},
		Report: ReportConfig{
			PermanentBouncePatterns: GetEnvAsSlice("REPORT_PERMANENT_BOUNCE_PATTERNS", defaultPermanentBouncePatterns),
		},
		SMSGateway: SMSGatewayConfig{
			BaseURL:  GetEnv("SMS_GATEWAY_URL", "https://api.sms-gate.app/3rdparty/v1"),
			Login:    GetEnv("SMS_GATEWAY_LOGIN", ""),
			Password: GetEnv("SMS_GATEWAY_PASSWORD", ""),
			Timeout:  GetEnvAsDuration("SMS_GATEWAY_TIMEOUT", 30*time.Second),
			BatchCap: GetEnvAsInt("SMS_BATCH_CAP", 2000),
		},
		Alert: AlertConfig{
			WebhookURL:     GetEnv("ALERT_WEBHOOK_URL", ""),
			IterationCount: GetEnvAsInt("ALERT_ITERATION_COUNT", 0),
		},
		Auth: AuthConfig{
			CampaignsAPIKey: GetEnv("CAMPAIGNS_API_KEY", ""),
			SchedulerAPIKey: GetEnv("SCHEDULER_API_KEY", ""),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetEnvAsSlice reads a comma-separated list; entries are trimmed, empties skipped.
func GetEnvAsSlice(key string, defaultValue []string) []string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}

	if len(out) == 0 {
		return defaultValue
	}
	return out
}
