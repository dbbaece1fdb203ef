// Package extract turns a raw call-completion body into the row written to the sheet.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"unicode"

	"call-sheets-webhook/internal/models"
)

// Defaults applied to absent fields.
const (
	DefaultRole     = "unknown"
	DefaultSummary  = "No summary"
	DefaultDuration = int64(0)
)

// Field names reported in Call.Defaulted.
const (
	FieldEventTimestamp = "event_timestamp"
	FieldTranscript     = "transcript"
	FieldSummary        = "transcript_summary"
	FieldCallDuration   = "call_duration_secs"
)

// Call is the flattened view of a call-completion event.
type Call struct {
	Type           string
	ConversationID string
	AgentID        string

	EventTimestamp   *int64 // nil when absent
	Transcript       string
	Turns            int
	Summary          string
	CallDurationSecs int64

	// Defaulted lists the fields that were absent, null or of an unusable
	// type and were replaced by defaults.
	Defaulted []string
}

// Row returns the ordered (timestamp, transcript, summary, duration) tuple.
// An absent timestamp is written as an empty cell.
func (c Call) Row() []any {
	var ts any = ""
	if c.EventTimestamp != nil {
		ts = *c.EventTimestamp
	}
	return []any{ts, c.Transcript, c.Summary, c.CallDurationSecs}
}

// Extract decodes body and applies per-field defaults. It fails only when the
// body is not a JSON object or a container (data, transcript, analysis,
// metadata) has the wrong shape; unusable scalar values are defaulted.
func Extract(body []byte) (Call, error) {
	var ev models.PostCallEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return Call{}, fmt.Errorf("decode call event: %w", err)
	}
	return FromEvent(ev), nil
}

// FromEvent flattens an already decoded event.
func FromEvent(ev models.PostCallEvent) Call {
	c := Call{
		Type:             ev.Type,
		Summary:          DefaultSummary,
		CallDurationSecs: DefaultDuration,
	}
	if ts, ok := wholeNumber(ev.EventTimestamp); ok {
		c.EventTimestamp = &ts
	} else {
		c.Defaulted = append(c.Defaulted, FieldEventTimestamp)
	}

	data := ev.Data
	if data == nil {
		data = &models.CallData{}
	}
	c.ConversationID = data.ConversationID
	c.AgentID = data.AgentID

	if data.Transcript == nil {
		c.Defaulted = append(c.Defaulted, FieldTranscript)
	}
	c.Transcript = JoinTranscript(data.Transcript)
	c.Turns = len(data.Transcript)

	summary, ok := "", false
	if data.Analysis != nil {
		summary, ok = stringValue(data.Analysis.TranscriptSummary)
	}
	if ok {
		c.Summary = summary
	} else {
		c.Defaulted = append(c.Defaulted, FieldSummary)
	}

	duration, ok := int64(0), false
	if data.Metadata != nil {
		duration, ok = wholeNumber(data.Metadata.CallDurationSecs)
	}
	if ok {
		c.CallDurationSecs = duration
	} else {
		c.Defaulted = append(c.Defaulted, FieldCallDuration)
	}

	return c
}

// JoinTranscript renders turns as "role: message" blocks separated by blank
// lines, in order, with trailing whitespace removed.
func JoinTranscript(turns []models.TranscriptTurn) string {
	var b strings.Builder
	for _, turn := range turns {
		role, ok := stringValue(turn.Role)
		if !ok {
			role = DefaultRole
		}
		message, _ := stringValue(turn.Message)
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(message)
		b.WriteString("\n\n")
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace)
}

func absent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// stringValue reports ok=false for absent, null or non-string values.
func stringValue(raw json.RawMessage) (string, bool) {
	if absent(raw) {
		return "", false
	}
	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return v, true
}

// wholeNumber accepts a JSON number with no fractional part, including the
// float form 22.0. Strings, fractions and out-of-range values are rejected.
func wholeNumber(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if absent(raw) || (raw[0] != '-' && (raw[0] < '0' || raw[0] > '9')) {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
