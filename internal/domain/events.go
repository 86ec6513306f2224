package domain

import "time"

type EventType string

const (
	EventConflictDetected EventType = "conflict_detected"
	EventCriticalConflict EventType = "critical_conflict"
	EventHighConflictRate EventType = "high_conflict_rate"
)

// Event is published by the detection path instead of calling any
// notification transport directly; subscribers decide how to deliver it.
type Event interface {
	Type() EventType
}

type ConflictDetectedEvent struct {
	Conflict *ConflictRecord
}

func (ConflictDetectedEvent) Type() EventType { return EventConflictDetected }

type CriticalConflictEvent struct {
	Conflict *ConflictRecord
}

func (CriticalConflictEvent) Type() EventType { return EventCriticalConflict }

// HighConflictRateEvent signals a conflict storm: Count conflicts of one
// record type detected within the trailing Window.
type HighConflictRateEvent struct {
	RecordType string
	Count      int
	Window     time.Duration
}

func (HighConflictRateEvent) Type() EventType { return EventHighConflictRate }
