package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	UseMemoryQueue     bool
	DatabaseURL        string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
	LeadEventsQueueURL  string
	AutomationRunsTable string
	DocumentsBucket     string

	// Lifecycle policy
	DeadLeadAfter          time.Duration
	DeadLeadInactiveAfter  time.Duration
	MaxRecommendedChannels int
	ContactedAfterAttempts int
	SweepInterval          time.Duration
	SweepBatchSize         int

	// Automation execution
	AutomationScheduler string
	WorkflowsFile       string
	StepPollInterval    time.Duration
	StepBatchSize       int
	StepMaxAttempts     int
	StepRetryBaseDelay  time.Duration
	LeadLockTTL         time.Duration
	OutboxInterval      time.Duration

	TemporalAddress   string
	TemporalNamespace string
	TemporalTaskQueue string

	// Outbound providers
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
}

const day = 24 * time.Hour

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue:     getEnvAsBool("USE_MEMORY_QUEUE", false),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),
		RateLimitRPS:       getEnvAsFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst:     getEnvAsInt("RATE_LIMIT_BURST", 20),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		LeadEventsQueueURL:  getEnv("LEAD_EVENTS_QUEUE_URL", ""),
		AutomationRunsTable: getEnv("AUTOMATION_RUNS_TABLE", ""),
		DocumentsBucket:     getEnv("DOCUMENTS_BUCKET", ""),

		DeadLeadAfter:          getEnvAsDuration("DEAD_LEAD_AFTER", 180*day),
		DeadLeadInactiveAfter:  getEnvAsDuration("DEAD_LEAD_INACTIVE_AFTER", 30*day),
		MaxRecommendedChannels: getEnvAsInt("MAX_RECOMMENDED_CHANNELS", 3),
		ContactedAfterAttempts: getEnvAsInt("CONTACTED_AFTER_ATTEMPTS", 1),
		SweepInterval:          getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		SweepBatchSize:         getEnvAsInt("SWEEP_BATCH_SIZE", 200),

		AutomationScheduler: strings.ToLower(strings.TrimSpace(getEnv("AUTOMATION_SCHEDULER", "store"))),
		WorkflowsFile:       getEnv("WORKFLOWS_FILE", ""),
		StepPollInterval:    getEnvAsDuration("STEP_POLL_INTERVAL", 5*time.Second),
		StepBatchSize:       getEnvAsInt("STEP_BATCH_SIZE", 25),
		StepMaxAttempts:     getEnvAsInt("STEP_MAX_ATTEMPTS", 5),
		StepRetryBaseDelay:  getEnvAsDuration("STEP_RETRY_BASE_DELAY", time.Minute),
		LeadLockTTL:         getEnvAsDuration("LEAD_LOCK_TTL", 30*time.Second),
		OutboxInterval:      getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),

		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "127.0.0.1:7233"),
		TemporalNamespace: getEnv("TEMPORAL_NAMESPACE", "default"),
		TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "leadflow-automation"),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Leadflow"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:  getEnv("TWILIO_FROM_NUMBER", ""),
	}
}

// UseTemporal reports whether delayed automation steps run on Temporal.
func (c *Config) UseTemporal() bool {
	return c != nil && c.AutomationScheduler == "temporal"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("45m") and whole days ("180d").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := strings.TrimSpace(getEnv(key, ""))
	if valueStr == "" {
		return defaultValue
	}
	if strings.HasSuffix(valueStr, "d") {
		if days, err := strconv.Atoi(strings.TrimSuffix(valueStr, "d")); err == nil && days >= 0 {
			return time.Duration(days) * day
		}
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
