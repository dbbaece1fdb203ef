// Package webhook verifies call-completion deliveries and writes one sheet
// row per accepted call.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"call-sheets-webhook/internal/models"
	"call-sheets-webhook/internal/observability/logging"
	"call-sheets-webhook/internal/observability/metrics"
	"call-sheets-webhook/internal/service/extract"
	"call-sheets-webhook/internal/service/sheets"
	"call-sheets-webhook/internal/service/signature"
)

// Outcome is the terminal state of one delivery.
type Outcome int

const (
	// Written - the row was appended.
	Written Outcome = iota
	// AuthRejected - signature mismatch, or missing when required. Nothing was parsed.
	AuthRejected
	// WriteFailed - the body could not be parsed or the append failed.
	WriteFailed
)

// String returns the label used in logs, metrics and events.
func (o Outcome) String() string {
	switch o {
	case Written:
		return "written"
	case AuthRejected:
		return "auth_rejected"
	case WriteFailed:
		return "write_failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(o))
	}
}

// Stage names where a WriteFailed delivery stopped.
type Stage string

const (
	StageParse  Stage = "parse"
	StageAppend Stage = "append"
)

// ErrUnsigned is returned when a signature is required but the header is absent.
var ErrUnsigned = errors.New("signature header missing")

// Result describes what happened to a delivery. The transport layer maps it
// to an HTTP status.
type Result struct {
	Outcome Outcome
	Stage   Stage        // set for WriteFailed
	Call    extract.Call // zero unless the body was parsed
	Err     error
}

// Config is the immutable handler configuration.
type Config struct {
	Secret string
	// RequireSignature rejects deliveries without a signature header. When
	// false they are processed unverified.
	RequireSignature bool
}

// EventPublisher receives processed-call events. Implemented by *events.Publisher.
type EventPublisher interface {
	PublishRecorded(ctx context.Context, ev models.CallProcessed) error
	PublishDropped(ctx context.Context, ev models.CallProcessed) error
}

// Handler processes deliveries. It holds no per-request state and is safe for
// concurrent use.
type Handler struct {
	cfg       Config
	sheet     sheets.Appender
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// Option customises a Handler.
type Option func(*Handler)

// WithPublisher sets the audit stream publisher.
func WithPublisher(p EventPublisher) Option {
	return func(h *Handler) { h.publisher = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithLogger sets the base logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// NewHandler creates a handler appending to sheet.
func NewHandler(cfg Config, sheet sheets.Appender, opts ...Option) *Handler {
	h := &Handler{
		cfg:     cfg,
		sheet:   sheet,
		metrics: metrics.DefaultMetrics,
		logger:  logging.WithComponent("webhook"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle verifies body against signature, extracts the call and appends its
// row. Parse and append failures are logged and reported as WriteFailed; they
// never panic or propagate.
func (h *Handler) Handle(ctx context.Context, body []byte, sig string) Result {
	logger := logging.WithRequest(h.logger, ctx)

	res := h.handle(ctx, logger, body, sig)
	h.metrics.RecordDelivery(res.Outcome.String())
	return res
}

func (h *Handler) handle(ctx context.Context, logger zerolog.Logger, body []byte, sig string) Result {
	if res, ok := h.authenticate(logger, body, sig); !ok {
		return res
	}

	call, err := extract.Extract(body)
	if err != nil {
		h.metrics.RecordParseFailure()
		logger.Error().
			Err(err).
			Str("errorType", errorType(err)).
			Int("bodyBytes", len(body)).
			Msg("Failed to parse call event")

		res := Result{Outcome: WriteFailed, Stage: StageParse, Err: err}
		h.publish(ctx, logger, res)
		return res
	}

	logger = logging.WithCall(logger, call.ConversationID, call.AgentID)
	h.metrics.RecordDefaulted(call.Defaulted)

	logger.Debug().
		Str("type", call.Type).
		Int("turns", call.Turns).
		Int("transcriptChars", len(call.Transcript)).
		Int64("callDurationSecs", call.CallDurationSecs).
		Strs("defaulted", call.Defaulted).
		Msg("Call event received")

	start := time.Now()
	err = h.sheet.AppendRow(ctx, call.Row())
	h.metrics.RecordAppend(err, time.Since(start).Seconds())
	if err != nil {
		logger.Error().
			Err(err).
			Str("errorType", errorType(err)).
			Dur("latency", time.Since(start)).
			Msg("Failed to append row")

		res := Result{Outcome: WriteFailed, Stage: StageAppend, Call: call, Err: err}
		h.publish(ctx, logger, res)
		return res
	}

	logger.Info().
		Int("turns", call.Turns).
		Int64("callDurationSecs", call.CallDurationSecs).
		Dur("latency", time.Since(start)).
		Msg("Row appended")

	res := Result{Outcome: Written, Call: call}
	h.publish(ctx, logger, res)
	return res
}

// authenticate reports ok=false with the rejection result when the delivery
// must not be processed.
func (h *Handler) authenticate(logger zerolog.Logger, body []byte, sig string) (Result, bool) {
	if sig == "" {
		if h.cfg.RequireSignature {
			h.metrics.RecordSignatureRejected("missing")
			logger.Warn().Msg("Rejected unsigned delivery")
			return Result{Outcome: AuthRejected, Err: ErrUnsigned}, false
		}
		// Unsigned deliveries are processed unverified unless RequireSignature is set.
		h.metrics.RecordUnsigned()
		logger.Warn().Msg("Delivery has no signature, processing without verification")
		return Result{}, true
	}

	if err := signature.Verify(h.cfg.Secret, body, sig); err != nil {
		h.metrics.RecordSignatureRejected("mismatch")
		logger.Warn().
			Int("bodyBytes", len(body)).
			Msg("Signature verification failed")
		return Result{Outcome: AuthRejected, Err: err}, false
	}
	return Result{}, true
}

// publish reports the delivery to the audit stream. Failures are logged only.
func (h *Handler) publish(ctx context.Context, logger zerolog.Logger, res Result) {
	if h.publisher == nil {
		return
	}

	ev := models.CallProcessed{
		ConversationID:   res.Call.ConversationID,
		AgentID:          res.Call.AgentID,
		EventTimestamp:   res.Call.EventTimestamp,
		Summary:          res.Call.Summary,
		CallDurationSecs: res.Call.CallDurationSecs,
		TranscriptTurns:  res.Call.Turns,
		Outcome:          res.Outcome.String(),
		Stage:            string(res.Stage),
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}

	var err error
	if res.Outcome == Written {
		err = h.publisher.PublishRecorded(ctx, ev)
	} else {
		err = h.publisher.PublishDropped(ctx, ev)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to publish processed-call event")
	}
}

// errorType names the innermost wrapped error type.
func errorType(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return fmt.Sprintf("%T", err)
		}
		err = next
	}
}
