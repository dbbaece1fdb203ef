package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var configEnvVars = []string{
	"SERVICE_PRINCIPAL", "PORT", "SHUTDOWN_TIMEOUT",
	"WEBHOOK_SECRET", "WEBHOOK_SIGNATURE_HEADER", "WEBHOOK_REQUIRE_SIGNATURE",
	"WEBHOOK_SURFACE_WRITE_FAILURES", "WEBHOOK_MAX_BODY_BYTES",
	"SHEETS_PROVIDER", "GOOGLE_SHEET_ID", "GOOGLE_APPLICATION_CREDENTIALS_JSON", "SHEETS_ENDPOINT",
	"KAFKA_ENABLED", "KAFKA_BROKERS", "KAFKA_TOPIC_RECORDED", "KAFKA_TOPIC_DROPPED", "KAFKA_PRINCIPAL",
	"LOG_LEVEL", "LOG_FORMAT", "METRICS_ADDR",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range configEnvVars {
		// t.Setenv registers restoration, then we unset for the test body
		t.Setenv(v, "")
		os.Unsetenv(v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Service.Principal != "svc-call-sheets-webhook" {
		t.Errorf("expected default principal 'svc-call-sheets-webhook', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default port '8080', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Service.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected default shutdown timeout 10s, got %v", cfg.Service.ShutdownTimeout)
	}

	if cfg.Webhook.Secret != "" {
		t.Errorf("expected empty secret, got %q", cfg.Webhook.Secret)
	}
	if cfg.Webhook.SignatureHeader != "X-Eleven-Signature" {
		t.Errorf("expected default header 'X-Eleven-Signature', got %s", cfg.Webhook.SignatureHeader)
	}
	if cfg.Webhook.RequireSignature {
		t.Error("expected unsigned deliveries to be accepted by default")
	}
	if cfg.Webhook.SurfaceWriteFailures {
		t.Error("expected write failures to be absorbed by default")
	}
	if cfg.Webhook.MaxBodyBytes != 5*1024*1024 {
		t.Errorf("expected default max body 5MB, got %d", cfg.Webhook.MaxBodyBytes)
	}

	if cfg.Sheets.Provider != "google" {
		t.Errorf("expected default sheets provider 'google', got %s", cfg.Sheets.Provider)
	}

	if cfg.Kafka.Enabled {
		t.Error("expected kafka disabled by default")
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("expected no brokers, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Kafka.TopicRecorded != "call.transcript.recorded" {
		t.Errorf("unexpected recorded topic %s", cfg.Kafka.TopicRecorded)
	}
	if cfg.Kafka.TopicDropped != "call.transcript.dropped" {
		t.Errorf("unexpected dropped topic %s", cfg.Kafka.TopicDropped)
	}

	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
	if cfg.Observability.LogFormat != "json" {
		t.Errorf("expected default log format 'json', got %s", cfg.Observability.LogFormat)
	}
	if cfg.Observability.MetricsAddr != ":9090" {
		t.Errorf("expected default metrics addr ':9090', got %s", cfg.Observability.MetricsAddr)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	t.Setenv("PORT", "9999")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("WEBHOOK_SECRET", "s3cret")
	t.Setenv("WEBHOOK_SIGNATURE_HEADER", "X-Signature")
	t.Setenv("WEBHOOK_REQUIRE_SIGNATURE", "true")
	t.Setenv("WEBHOOK_SURFACE_WRITE_FAILURES", "1")
	t.Setenv("WEBHOOK_MAX_BODY_BYTES", "1024")
	t.Setenv("SHEETS_PROVIDER", "MOCK")
	t.Setenv("GOOGLE_SHEET_ID", "sheet-123")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", `{"type":"service_account"}`)
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "console")

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Service.ShutdownTimeout != 3*time.Second {
		t.Errorf("expected shutdown timeout 3s, got %v", cfg.Service.ShutdownTimeout)
	}
	if cfg.Webhook.Secret != "s3cret" {
		t.Errorf("expected secret to be loaded")
	}
	if cfg.Webhook.SignatureHeader != "X-Signature" {
		t.Errorf("expected header 'X-Signature', got %s", cfg.Webhook.SignatureHeader)
	}
	if !cfg.Webhook.RequireSignature {
		t.Error("expected RequireSignature true")
	}
	if !cfg.Webhook.SurfaceWriteFailures {
		t.Error("expected SurfaceWriteFailures true")
	}
	if cfg.Webhook.MaxBodyBytes != 1024 {
		t.Errorf("expected max body 1024, got %d", cfg.Webhook.MaxBodyBytes)
	}
	if cfg.Sheets.Provider != "mock" {
		t.Errorf("expected provider to be lowercased 'mock', got %s", cfg.Sheets.Provider)
	}
	if cfg.Sheets.SpreadsheetID != "sheet-123" {
		t.Errorf("expected sheet id 'sheet-123', got %s", cfg.Sheets.SpreadsheetID)
	}
	if cfg.Sheets.CredentialsJSON == "" {
		t.Error("expected credentials json to be loaded")
	}
	if !cfg.Kafka.Enabled {
		t.Error("expected kafka enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "kafka-1:9092" || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
	if cfg.Observability.LogFormat != "console" {
		t.Errorf("expected log format 'console', got %s", cfg.Observability.LogFormat)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEBHOOK_REQUIRE_SIGNATURE", "invalid")
	t.Setenv("WEBHOOK_MAX_BODY_BYTES", "not-a-number")
	t.Setenv("SHUTDOWN_TIMEOUT", "invalid")

	cfg := Load()

	if cfg.Webhook.RequireSignature {
		t.Error("expected default RequireSignature on invalid input")
	}
	if cfg.Webhook.MaxBodyBytes != 5*1024*1024 {
		t.Errorf("expected default max body on invalid input, got %d", cfg.Webhook.MaxBodyBytes)
	}
	if cfg.Service.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected default shutdown timeout on invalid input, got %v", cfg.Service.ShutdownTimeout)
	}
}

func TestLoad_NegativeBodyLimit_FallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("WEBHOOK_MAX_BODY_BYTES", "-5")

	cfg := Load()

	if cfg.Webhook.MaxBodyBytes != 5*1024*1024 {
		t.Errorf("expected default max body for negative input, got %d", cfg.Webhook.MaxBodyBytes)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVICE_PRINCIPAL", "my-service")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			t.Setenv(key, tt.envValue)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "7000")

	path := filepath.Join(t.TempDir(), ".env")
	content := "# local settings\n" +
		"export WEBHOOK_SECRET=\"from-file\"\n" +
		"PORT=1234\n" +
		"GOOGLE_SHEET_ID='sheet-from-file'\n" +
		"not a pair\n" +
		"=novalue\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv returned error: %v", err)
	}

	if got := os.Getenv("WEBHOOK_SECRET"); got != "from-file" {
		t.Errorf("expected WEBHOOK_SECRET from file, got %q", got)
	}
	if got := os.Getenv("PORT"); got != "7000" {
		t.Errorf("expected existing PORT to win, got %q", got)
	}
	if got := os.Getenv("GOOGLE_SHEET_ID"); got != "sheet-from-file" {
		t.Errorf("expected quotes to be stripped, got %q", got)
	}
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Errorf("expected no error for missing file, got %v", err)
	}
}
