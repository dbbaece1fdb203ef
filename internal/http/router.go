package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"call-sheets-webhook/internal/app"
	"call-sheets-webhook/internal/observability"
	"call-sheets-webhook/internal/observability/logging"
	"call-sheets-webhook/internal/observability/metrics"
	"call-sheets-webhook/internal/service/webhook"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Greeting is served on GET /.
const Greeting = "Hello from call-sheets-webhook!"

// Deliverer processes one webhook delivery. Implemented by *webhook.Handler.
type Deliverer interface {
	Handle(ctx context.Context, body []byte, signature string) webhook.Result
}

// StatusResponse is the body returned for accepted deliveries.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the body returned for rejected deliveries.
type ErrorResponse struct {
	Error string `json:"error"`
}

type webhookRoute struct {
	deliverer       Deliverer
	signatureHeader string
	maxBodyBytes    int64
	surfaceFailures bool
	logger          zerolog.Logger
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, deliverer Deliverer, m *metrics.Metrics) http.Handler {
	cfg := application.Cfg.Webhook
	wh := &webhookRoute{
		deliverer:       deliverer,
		signatureHeader: cfg.SignatureHeader,
		maxBodyBytes:    cfg.MaxBodyBytes,
		surfaceFailures: cfg.SurfaceWriteFailures,
		logger:          application.Logger.With().Str("component", "http").Logger(),
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.HTTPMiddleware(wh.logger, m))
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(Greeting))
	})

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Post("/webhook", wh.handle)

	return r
}

func (wh *webhookRoute) handle(w http.ResponseWriter, r *http.Request) {
	logger := logging.WithRequest(wh.logger, r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, wh.maxBodyBytes+1))
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to read request body")
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Failed to read body"})
		return
	}
	if int64(len(body)) > wh.maxBodyBytes {
		logger.Warn().Int64("limit", wh.maxBodyBytes).Msg("Request body too large")
		respondJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Payload too large"})
		return
	}

	res := wh.deliverer.Handle(r.Context(), body, r.Header.Get(wh.signatureHeader))

	switch {
	case res.Outcome == webhook.AuthRejected:
		respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Invalid signature"})
	case res.Outcome == webhook.WriteFailed && wh.surfaceFailures:
		respondJSON(w, http.StatusBadGateway, ErrorResponse{Error: "Write failed"})
	default:
		// WriteFailed is reported as ok unless surfacing is enabled; the sender does not retry.
		respondJSON(w, http.StatusOK, StatusResponse{Status: "ok"})
	}
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
