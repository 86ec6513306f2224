package domain

import "time"

type ConflictSeverity string

const (
	SeverityLow      ConflictSeverity = "low"
	SeverityMedium   ConflictSeverity = "medium"
	SeverityHigh     ConflictSeverity = "high"
	SeverityCritical ConflictSeverity = "critical"
)

// Rank orders severities so callers can compare them. Unknown severities
// rank below low.
func (s ConflictSeverity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

type ResolutionStrategy string

const (
	StrategyClientWins     ResolutionStrategy = "client_wins"
	StrategyServerWins     ResolutionStrategy = "server_wins"
	StrategyLastWriterWins ResolutionStrategy = "last_writer_wins"
	StrategyMergeFields    ResolutionStrategy = "merge_fields"
	StrategyVersionBased   ResolutionStrategy = "version_based"
	StrategyManual         ResolutionStrategy = "manual"
)

// ConflictRecord captures one detected divergence between a local and a
// server version of the same record. Both snapshots are embedded in full
// so the audit trail is self-contained and replayable. Detection state is
// immutable; resolution state is written exactly once.
type ConflictRecord struct {
	ID               string             `json:"conflict_id"`
	RecordType       string             `json:"record_type"`
	RecordID         string             `json:"record_id"`
	LocalRecord      *VersionedRecord   `json:"local_record"`
	ServerRecord     *VersionedRecord   `json:"server_record"`
	Operation        string             `json:"operation"`
	DetectedAt       time.Time          `json:"detected_at"`
	ConflictedFields []string           `json:"conflicted_fields"`
	Score            int                `json:"score"`
	Severity         ConflictSeverity   `json:"severity"`
	ProposedStrategy ResolutionStrategy `json:"proposed_strategy"`

	LocalFingerprint  string `json:"local_fingerprint,omitempty"`
	ServerFingerprint string `json:"server_fingerprint,omitempty"`

	ResolvedAt      *time.Time         `json:"resolved_at,omitempty"`
	AppliedStrategy ResolutionStrategy `json:"applied_strategy,omitempty"`
	ResolvedRecord  *VersionedRecord   `json:"resolved_record,omitempty"`
	ResolvedBy      string             `json:"resolved_by,omitempty"`
	ResolutionNotes string             `json:"resolution_notes,omitempty"`
}

func (c *ConflictRecord) IsResolved() bool {
	return c.ResolvedAt != nil
}

type ResolveConflictRequest struct {
	Strategy     ResolutionStrategy `json:"strategy" validate:"required,oneof=client_wins server_wins last_writer_wins merge_fields version_based manual"`
	ManualValues map[string]Value   `json:"manual_values,omitempty"`
	Notes        string             `json:"notes,omitempty"`
}

// ConflictStatistics is the aggregate maintained incrementally by the
// lifecycle manager. ResolutionRate and PendingConflicts are derived on
// read, never stored.
type ConflictStatistics struct {
	TotalConflicts   int64     `json:"total_conflicts"`
	TotalResolved    int64     `json:"total_resolved"`
	LowCount         int64     `json:"low_count"`
	MediumCount      int64     `json:"medium_count"`
	HighCount        int64     `json:"high_count"`
	CriticalCount    int64     `json:"critical_count"`
	ResolutionRate   float64   `json:"resolution_rate"`
	PendingConflicts int64     `json:"pending_conflicts"`
	UpdatedAt        time.Time `json:"updated_at,omitzero"`
}
