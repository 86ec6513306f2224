package service

import (
	"testing"
	"time"

	"erp-conflict-engine/internal/domain"
)

func TestStrategySelector_Propose(t *testing.T) {
	selector := NewStrategySelector(60 * time.Second)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		localAt  time.Time
		serverAt time.Time
		expected domain.ResolutionStrategy
	}{
		{
			name:     "near-simultaneous writes propose merge",
			localAt:  base,
			serverAt: base.Add(30 * time.Second),
			expected: domain.StrategyMergeFields,
		},
		{
			name:     "exactly at window edge proposes merge",
			localAt:  base,
			serverAt: base.Add(60 * time.Second),
			expected: domain.StrategyMergeFields,
		},
		{
			name:     "equal timestamps propose merge",
			localAt:  base,
			serverAt: base,
			expected: domain.StrategyMergeFields,
		},
		{
			name:     "both timestamps absent propose merge",
			expected: domain.StrategyMergeFields,
		},
		{
			name:     "local clearly newer proposes client wins",
			localAt:  base.Add(5 * time.Minute),
			serverAt: base,
			expected: domain.StrategyClientWins,
		},
		{
			name:     "server clearly newer proposes server wins",
			localAt:  base,
			serverAt: base.Add(5 * time.Minute),
			expected: domain.StrategyServerWins,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local := &domain.VersionedRecord{ID: "rec-1", RecordType: "Invoice", ModifiedAt: tt.localAt}
			server := &domain.VersionedRecord{ID: "rec-1", RecordType: "Invoice", ModifiedAt: tt.serverAt}

			if got := selector.Propose(local, server); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}
