package websocket

import (
	"encoding/json"
	"time"

	"erp-conflict-engine/internal/domain"
)

type MessageType string

const (
	TypeConflictDetected MessageType = "conflict_detected"
	TypeCriticalConflict MessageType = "critical_conflict"
	TypeHighConflictRate MessageType = "high_conflict_rate"
	TypeAck              MessageType = "ack"
	TypePing             MessageType = "ping"
	TypePong             MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ConflictPayload summarizes a conflict for operator clients; full
// snapshots stay on the history API, not the wire.
type ConflictPayload struct {
	ConflictID       string                    `json:"conflict_id"`
	RecordType       string                    `json:"record_type"`
	RecordID         string                    `json:"record_id"`
	Operation        string                    `json:"operation"`
	Severity         domain.ConflictSeverity   `json:"severity"`
	Score            int                       `json:"score"`
	ConflictedFields []string                  `json:"conflicted_fields"`
	ProposedStrategy domain.ResolutionStrategy `json:"proposed_strategy"`
	DetectedAt       time.Time                 `json:"detected_at"`
}

type HighConflictRatePayload struct {
	RecordType    string `json:"record_type"`
	Count         int    `json:"count"`
	WindowSeconds int    `json:"window_seconds"`
}

type AckPayload struct {
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

func conflictPayload(c *domain.ConflictRecord) ConflictPayload {
	return ConflictPayload{
		ConflictID:       c.ID,
		RecordType:       c.RecordType,
		RecordID:         c.RecordID,
		Operation:        c.Operation,
		Severity:         c.Severity,
		Score:            c.Score,
		ConflictedFields: c.ConflictedFields,
		ProposedStrategy: c.ProposedStrategy,
		DetectedAt:       c.DetectedAt,
	}
}
