package realtime

import (
	"encoding/json"
)

// Message types exchanged with the voice gateway.
const (
	TypeSessionStart   = "session.start"
	TypeSessionStarted = "session.started"
	TypeSessionEnded   = "session.ended"
	TypeToolCall       = "tool_call"
	TypeToolResult     = "tool_result"
	TypeTranscript     = "transcript"
	TypeError          = "error"
)

// NoiseCancellationBVC selects background voice cancellation on inbound audio.
const NoiseCancellationBVC = "bvc"

type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type InputOptions struct {
	NoiseCancellation string `json:"noise_cancellation,omitempty"`
}

type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
}

// SessionConfig describes one duplex speech session bound to a room.
type SessionConfig struct {
	Room          string            `json:"room"`
	Model         string            `json:"model,omitempty"`
	Voice         string            `json:"voice,omitempty"`
	Instructions  string            `json:"instructions"`
	Tools         []ToolSpec        `json:"tools,omitempty"`
	Input         InputOptions      `json:"input"`
	TurnDetection TurnDetection     `json:"turn_detection"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// envelope is the union of every frame on the wire; Type selects which fields are set.
type envelope struct {
	Type      string          `json:"type"`
	Session   *SessionConfig  `json:"session,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	CallID    string          `json:"call_id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Output    string          `json:"output,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Role      string          `json:"role,omitempty"`
	Text      string          `json:"text,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	Message   string          `json:"message,omitempty"`
}
