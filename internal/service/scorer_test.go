package service

import (
	"testing"
	"time"

	"erp-conflict-engine/internal/config"
	"erp-conflict-engine/internal/domain"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("failed to load default config: %v", err)
	}
	cfg.Persist.Retries = 2
	cfg.Persist.Backoff = time.Millisecond
	return cfg
}

func TestSeverityScorer_CriticalFieldWeight(t *testing.T) {
	scorer := NewSeverityScorer(testConfig(t).Scoring)

	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	local := invoiceRecord(map[string]domain.Value{
		"status": domain.TextValue("open"),
		"amount": domain.NumberValue(100),
	})
	local.ModifiedAt = at
	server := invoiceRecord(map[string]domain.Value{
		"status": domain.TextValue("closed"),
		"amount": domain.NumberValue(100),
	})
	server.ModifiedAt = at

	score, severity := scorer.Score(local, server, []string{"status"})
	if score != 4 {
		t.Errorf("expected score 4 (base 1 + critical 3), got %d", score)
	}
	if severity != domain.SeverityMedium {
		t.Errorf("expected medium severity, got %s", severity)
	}
}

func TestSeverityScorer_TypeMismatch(t *testing.T) {
	scorer := NewSeverityScorer(testConfig(t).Scoring)

	local := &domain.VersionedRecord{ID: "rec-1", RecordType: "Invoice"}
	server := &domain.VersionedRecord{ID: "rec-1", RecordType: "Task"}

	_, severity := scorer.Score(local, server, nil)
	if severity.Rank() < domain.SeverityHigh.Rank() {
		t.Errorf("expected at least high severity for record-type mismatch, got %s", severity)
	}
}

func TestSeverityScorer_RelationshipFieldWeight(t *testing.T) {
	scorer := NewSeverityScorer(testConfig(t).Scoring)

	local := invoiceRecord(map[string]domain.Value{
		"client_id": domain.ReferenceValue("client-1"),
	})
	server := invoiceRecord(map[string]domain.Value{
		"client_id": domain.ReferenceValue("client-2"),
	})

	score, _ := scorer.Score(local, server, []string{"client_id"})
	if score != 3 {
		t.Errorf("expected score 3 (base 1 + relationship 2), got %d", score)
	}
}

func TestSeverityScorer_LongPartitionBonus(t *testing.T) {
	scorer := NewSeverityScorer(testConfig(t).Scoring)

	local := invoiceRecord(map[string]domain.Value{
		"notes": domain.TextValue("a"),
	})
	server := invoiceRecord(map[string]domain.Value{
		"notes": domain.TextValue("b"),
	})
	server.ModifiedAt = local.ModifiedAt.Add(-2 * time.Hour)

	score, _ := scorer.Score(local, server, []string{"notes"})
	if score != 3 {
		t.Errorf("expected score 3 (base 1 + stale gap 2), got %d", score)
	}
}

func TestSeverityScorer_MonotonicThresholds(t *testing.T) {
	scorer := NewSeverityScorer(testConfig(t).Scoring)

	previous := scorer.SeverityFor(0)
	for score := 1; score <= 20; score++ {
		current := scorer.SeverityFor(score)
		if current.Rank() < previous.Rank() {
			t.Fatalf("severity decreased from %s to %s between scores %d and %d",
				previous, current, score-1, score)
		}
		previous = current
	}
}

func TestSeverityScorer_TierBoundaries(t *testing.T) {
	scorer := NewSeverityScorer(testConfig(t).Scoring)

	tests := []struct {
		score    int
		expected domain.ConflictSeverity
	}{
		{0, domain.SeverityLow},
		{1, domain.SeverityLow},
		{2, domain.SeverityMedium},
		{4, domain.SeverityMedium},
		{5, domain.SeverityHigh},
		{7, domain.SeverityHigh},
		{8, domain.SeverityCritical},
		{15, domain.SeverityCritical},
	}

	for _, tt := range tests {
		if got := scorer.SeverityFor(tt.score); got != tt.expected {
			t.Errorf("score %d: expected %s, got %s", tt.score, tt.expected, got)
		}
	}
}
