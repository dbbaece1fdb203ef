// Package models defines the inbound call event and the records derived from it.
package models

import "encoding/json"

// PostCallEvent is the body the voice platform POSTs when a call completes.
// Every field is optional. Scalar leaves are kept raw so that a missing or
// wrong-typed value defaults that one field during extraction instead of
// failing the whole body.
type PostCallEvent struct {
	Type           string          `json:"type,omitempty"`
	EventTimestamp json.RawMessage `json:"event_timestamp,omitempty"`
	Data           *CallData       `json:"data,omitempty"`
}

// CallData holds the per-call payload.
type CallData struct {
	ConversationID string           `json:"conversation_id,omitempty"`
	AgentID        string           `json:"agent_id,omitempty"`
	Status         string           `json:"status,omitempty"`
	Transcript     []TranscriptTurn `json:"transcript,omitempty"`
	Analysis       *CallAnalysis    `json:"analysis,omitempty"`
	Metadata       *CallMetadata    `json:"metadata,omitempty"`
}

// TranscriptTurn is one utterance in the call.
type TranscriptTurn struct {
	Role    json.RawMessage `json:"role,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// CallAnalysis holds the platform's post-call analysis.
type CallAnalysis struct {
	TranscriptSummary json.RawMessage `json:"transcript_summary,omitempty"`
}

// CallMetadata holds call bookkeeping.
type CallMetadata struct {
	CallDurationSecs json.RawMessage `json:"call_duration_secs,omitempty"`
}

// CallProcessed is published to the audit stream once a delivery has been handled.
type CallProcessed struct {
	EventID          string `json:"eventId"`
	EventType        string `json:"eventType"`
	ConversationID   string `json:"conversationId,omitempty"`
	AgentID          string `json:"agentId,omitempty"`
	EventTimestamp   *int64 `json:"eventTimestamp,omitempty"`
	Summary          string `json:"summary,omitempty"`
	CallDurationSecs int64  `json:"callDurationSecs"`
	TranscriptTurns  int    `json:"transcriptTurns"`
	Outcome          string `json:"outcome"`
	Stage            string `json:"stage,omitempty"`
	Error            string `json:"error,omitempty"`
	Timestamp        int64  `json:"timestamp"`
}
