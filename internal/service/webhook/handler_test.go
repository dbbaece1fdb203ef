package webhook

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-sheets-webhook/internal/models"
	"call-sheets-webhook/internal/observability/metrics"
	"call-sheets-webhook/internal/service/extract"
	"call-sheets-webhook/internal/service/sheets/mock"
	"call-sheets-webhook/internal/service/signature"
)

const testSecret = "wsec_test"

const fullBody = `{"type":"post_call_transcription","event_timestamp":1739537297,"data":{"conversation_id":"conv-42","agent_id":"agent-1","transcript":[{"role":"agent","message":"Hi"},{"role":"user","message":"Hello"}],"analysis":{"transcript_summary":"Greeting exchanged."},"metadata":{"call_duration_secs":22}}}`

// recordingPublisher captures audit events.
type recordingPublisher struct {
	mu       sync.Mutex
	recorded []models.CallProcessed
	dropped  []models.CallProcessed
	err      error
}

func (p *recordingPublisher) PublishRecorded(_ context.Context, ev models.CallProcessed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recorded = append(p.recorded, ev)
	return p.err
}

func (p *recordingPublisher) PublishDropped(_ context.Context, ev models.CallProcessed) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropped = append(p.dropped, ev)
	return p.err
}

type fixture struct {
	handler   *Handler
	sheet     *mock.Appender
	publisher *recordingPublisher
	metrics   *metrics.Metrics
	logs      *bytes.Buffer
}

func newFixture(cfg Config) *fixture {
	f := &fixture{
		sheet:     mock.New(),
		publisher: &recordingPublisher{},
		metrics:   metrics.NewMetrics(prometheus.NewRegistry()),
		logs:      &bytes.Buffer{},
	}
	f.handler = NewHandler(cfg, f.sheet,
		WithPublisher(f.publisher),
		WithMetrics(f.metrics),
		WithLogger(zerolog.New(zerolog.SyncWriter(f.logs))),
	)
	return f
}

func (f *fixture) countLevel(level string) int {
	n := 0
	for _, line := range strings.Split(f.logs.String(), "\n") {
		if strings.Contains(line, `"level":"`+level+`"`) {
			n++
		}
	}
	return n
}

func TestHandle_ValidSignature_WritesOneRow(t *testing.T) {
	f := newFixture(Config{Secret: testSecret})
	body := []byte(fullBody)

	res := f.handler.Handle(context.Background(), body, signature.Sign(testSecret, body))

	require.Equal(t, Written, res.Outcome)
	require.NoError(t, res.Err)
	rows := f.sheet.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, []any{int64(1739537297), "agent: Hi\n\nuser: Hello", "Greeting exchanged.", int64(22)}, rows[0])

	require.Len(t, f.publisher.recorded, 1)
	assert.Equal(t, "conv-42", f.publisher.recorded[0].ConversationID)
	assert.Equal(t, "written", f.publisher.recorded[0].Outcome)
	assert.Empty(t, f.publisher.dropped)

	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.Deliveries.WithLabelValues("written")))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.RowsAppended))
}

func TestHandle_InvalidSignature_Rejected(t *testing.T) {
	f := newFixture(Config{Secret: testSecret})
	body := []byte(fullBody)

	res := f.handler.Handle(context.Background(), body, signature.Sign("wrong-secret", body))

	assert.Equal(t, AuthRejected, res.Outcome)
	assert.ErrorIs(t, res.Err, signature.ErrInvalidSignature)
	assert.Empty(t, f.sheet.Rows())
	assert.Equal(t, 0, f.sheet.Calls())
	assert.Empty(t, f.publisher.recorded)
	assert.Empty(t, f.publisher.dropped)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SignatureRejections.WithLabelValues("mismatch")))
}

func TestHandle_TamperedBody_Rejected(t *testing.T) {
	f := newFixture(Config{Secret: testSecret})
	sig := signature.Sign(testSecret, []byte(fullBody))
	tampered := []byte(strings.Replace(fullBody, `"call_duration_secs":22`, `"call_duration_secs":23`, 1))

	res := f.handler.Handle(context.Background(), tampered, sig)

	assert.Equal(t, AuthRejected, res.Outcome)
	assert.Equal(t, 0, f.sheet.Calls())
}

// Unsigned deliveries are currently processed without verification. This
// documents existing behaviour rather than endorsing it; see RequireSignature.
func TestHandle_NoSignature_ProcessedWithoutVerification(t *testing.T) {
	bodies := []string{fullBody, `{}`, `{"data":{"transcript":[{"role":"x","message":"y"}]}}`}

	for _, body := range bodies {
		f := newFixture(Config{Secret: testSecret})

		res := f.handler.Handle(context.Background(), []byte(body), "")

		assert.Equal(t, Written, res.Outcome, body)
		assert.Len(t, f.sheet.Rows(), 1, body)
		assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.UnsignedDeliveries))
		assert.Equal(t, 1, f.countLevel("warn"))
	}
}

func TestHandle_NoSignature_RejectedWhenRequired(t *testing.T) {
	f := newFixture(Config{Secret: testSecret, RequireSignature: true})

	res := f.handler.Handle(context.Background(), []byte(fullBody), "")

	assert.Equal(t, AuthRejected, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUnsigned)
	assert.Equal(t, 0, f.sheet.Calls())
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.SignatureRejections.WithLabelValues("missing")))
}

func TestHandle_AppendFails_OneErrorLogged(t *testing.T) {
	f := newFixture(Config{Secret: testSecret})
	f.sheet.FailWith(errors.New("googleapi: Error 503: The service is currently unavailable"))
	body := []byte(fullBody)

	res := f.handler.Handle(context.Background(), body, signature.Sign(testSecret, body))

	assert.Equal(t, WriteFailed, res.Outcome)
	assert.Equal(t, StageAppend, res.Stage)
	require.Error(t, res.Err)
	assert.Equal(t, 1, f.sheet.Calls())
	assert.Empty(t, f.sheet.Rows())
	assert.Equal(t, 1, f.countLevel("error"))
	assert.Contains(t, f.logs.String(), `"errorType":"*errors.errorString"`)
	assert.Contains(t, f.logs.String(), "The service is currently unavailable")

	require.Len(t, f.publisher.dropped, 1)
	assert.Equal(t, "append", f.publisher.dropped[0].Stage)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.WriteFailures.WithLabelValues("append")))
}

func TestHandle_MalformedBody_WriteFailedAtParse(t *testing.T) {
	f := newFixture(Config{Secret: testSecret})
	body := []byte(`{"data":`)

	res := f.handler.Handle(context.Background(), body, signature.Sign(testSecret, body))

	assert.Equal(t, WriteFailed, res.Outcome)
	assert.Equal(t, StageParse, res.Stage)
	assert.Equal(t, 0, f.sheet.Calls())
	assert.Equal(t, 1, f.countLevel("error"))
	require.Len(t, f.publisher.dropped, 1)
	assert.Equal(t, "parse", f.publisher.dropped[0].Stage)
}

func TestHandle_DefaultsApplied(t *testing.T) {
	f := newFixture(Config{Secret: testSecret})
	body := []byte(`{"data":{"transcript":[{"role":"agent","message":"Hi"}]}}`)

	res := f.handler.Handle(context.Background(), body, signature.Sign(testSecret, body))

	require.Equal(t, Written, res.Outcome)
	assert.Equal(t, []any{"", "agent: Hi", extract.DefaultSummary, int64(0)}, f.sheet.Rows()[0])
	assert.ElementsMatch(t,
		[]string{extract.FieldEventTimestamp, extract.FieldSummary, extract.FieldCallDuration},
		res.Call.Defaulted)
	assert.Equal(t, float64(1), testutil.ToFloat64(f.metrics.DefaultedFields.WithLabelValues(extract.FieldSummary)))
}

func TestHandle_PublishFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(Config{Secret: testSecret})
	f.publisher.err = errors.New("broker unavailable")
	body := []byte(fullBody)

	res := f.handler.Handle(context.Background(), body, signature.Sign(testSecret, body))

	assert.Equal(t, Written, res.Outcome)
	assert.Len(t, f.sheet.Rows(), 1)
	assert.Equal(t, 0, f.countLevel("error"))
}

func TestHandle_SecretNeverLogged(t *testing.T) {
	f := newFixture(Config{Secret: testSecret})
	body := []byte(fullBody)

	f.handler.Handle(context.Background(), body, signature.Sign("nope", body))
	f.handler.Handle(context.Background(), body, "")
	f.sheet.FailWith(errors.New("down"))
	f.handler.Handle(context.Background(), body, signature.Sign(testSecret, body))

	assert.NotContains(t, f.logs.String(), testSecret)
}

func TestHandle_WithoutPublisher(t *testing.T) {
	sheet := mock.New()
	h := NewHandler(Config{Secret: testSecret}, sheet,
		WithMetrics(metrics.NewMetrics(prometheus.NewRegistry())),
		WithLogger(zerolog.Nop()),
	)
	body := []byte(fullBody)

	res := h.Handle(context.Background(), body, signature.Sign(testSecret, body))

	assert.Equal(t, Written, res.Outcome)
	assert.Len(t, sheet.Rows(), 1)
}

func TestHandle_ConcurrentDeliveries(t *testing.T) {
	f := newFixture(Config{Secret: testSecret})
	body := []byte(fullBody)
	sig := signature.Sign(testSecret, body)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.handler.Handle(context.Background(), body, sig)
		}()
	}
	wg.Wait()

	assert.Len(t, f.sheet.Rows(), 20)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "written", Written.String())
	assert.Equal(t, "auth_rejected", AuthRejected.String())
	assert.Equal(t, "write_failed", WriteFailed.String())
	assert.Equal(t, "unknown(7)", Outcome(7).String())
}
