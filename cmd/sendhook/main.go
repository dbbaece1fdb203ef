// Command sendhook signs a call-completion event and posts it to a running
// webhook service.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"call-sheets-webhook/internal/service/signature"
)

const sampleEvent = `{
  "type": "post_call_transcription",
  "event_timestamp": %d,
  "data": {
    "agent_id": "agent-sample",
    "conversation_id": "conv-%d",
    "status": "done",
    "transcript": [
      {"role": "agent", "message": "Hello, thanks for calling. How can I help?"},
      {"role": "user", "message": "I'd like to check my order status."},
      {"role": "agent", "message": "Sure, it ships tomorrow."}
    ],
    "analysis": {"transcript_summary": "Caller asked about an order; agent confirmed it ships tomorrow."},
    "metadata": {"call_duration_secs": 37}
  }
}`

func main() {
	url := flag.String("url", "http://localhost:8080/webhook", "Webhook URL")
	secret := flag.String("secret", os.Getenv("WEBHOOK_SECRET"), "Signing secret (defaults to WEBHOOK_SECRET)")
	file := flag.String("file", "", "Event JSON file; a sample event is sent when empty")
	header := flag.String("header", "X-Eleven-Signature", "Signature header name")
	unsigned := flag.Bool("unsigned", false, "Send without a signature header")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	body, err := loadBody(*file, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load event")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *url, bytes.NewReader(body))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if !*unsigned {
		req.Header.Set(*header, signature.Sign(*secret, body))
	}

	log.Info().
		Str("url", *url).
		Int("bytes", len(body)).
		Bool("signed", !*unsigned).
		Msg("Sending event")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal().Err(err).Msg("Request failed")
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	log.Info().
		Int("status", resp.StatusCode).
		Str("body", string(bytes.TrimSpace(respBody))).
		Msg("Received response")

	if resp.StatusCode != http.StatusOK {
		os.Exit(1)
	}
}

// loadBody reads path, or renders the sample event stamped with now.
func loadBody(path string, now time.Time) ([]byte, error) {
	if path == "" {
		return []byte(fmt.Sprintf(sampleEvent, now.Unix(), now.UnixNano())), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}
