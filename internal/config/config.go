package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration holds all process-wide settings. It is loaded once at startup
// and passed by value or pointer to the components that need it.
type Configuration struct {
	Service       ServiceConfig
	Webhook       WebhookConfig
	Sheets        SheetsConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// ServiceConfig holds listener and identity settings.
type ServiceConfig struct {
	Principal       string
	HTTPPort        string
	ShutdownTimeout time.Duration
}

// WebhookConfig holds inbound delivery settings.
type WebhookConfig struct {
	Secret               string
	SignatureHeader      string
	RequireSignature     bool
	SurfaceWriteFailures bool
	MaxBodyBytes         int64
}

// SheetsConfig holds the spreadsheet target.
type SheetsConfig struct {
	Provider        string // google, mock
	SpreadsheetID   string
	CredentialsJSON string
	Endpoint        string
}

// KafkaConfig holds the audit stream settings.
type KafkaConfig struct {
	Enabled       bool
	Brokers       []string
	TopicRecorded string
	TopicDropped  string
	Principal     string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load reads the configuration from the environment, falling back to
// defaults for unset or unparseable values.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-call-sheets-webhook")

	return &Configuration{
		Service: ServiceConfig{
			Principal:       principal,
			HTTPPort:        envOrDefault("PORT", "8080"),
			ShutdownTimeout: envOrDefaultDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Webhook: WebhookConfig{
			Secret:               os.Getenv("WEBHOOK_SECRET"),
			SignatureHeader:      envOrDefault("WEBHOOK_SIGNATURE_HEADER", "X-Eleven-Signature"),
			RequireSignature:     envOrDefaultBool("WEBHOOK_REQUIRE_SIGNATURE", false),
			SurfaceWriteFailures: envOrDefaultBool("WEBHOOK_SURFACE_WRITE_FAILURES", false),
			MaxBodyBytes:         envOrDefaultInt64("WEBHOOK_MAX_BODY_BYTES", 5*1024*1024),
		},
		Sheets: SheetsConfig{
			Provider:        strings.ToLower(envOrDefault("SHEETS_PROVIDER", "google")),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_ID"),
			CredentialsJSON: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"),
			Endpoint:        os.Getenv("SHEETS_ENDPOINT"),
		},
		Kafka: KafkaConfig{
			Enabled:       envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:       envList("KAFKA_BROKERS"),
			TopicRecorded: envOrDefault("KAFKA_TOPIC_RECORDED", "call.transcript.recorded"),
			TopicDropped:  envOrDefault("KAFKA_TOPIC_DROPPED", "call.transcript.dropped"),
			Principal:     envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			LogFormat:   strings.ToLower(envOrDefault("LOG_FORMAT", "json")),
			MetricsAddr: envOrDefault("METRICS_ADDR", ":9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// envList splits a comma separated value, dropping empty entries.
func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
