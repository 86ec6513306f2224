package service

import (
	"time"

	"erp-conflict-engine/internal/domain"
)

// StrategySelector proposes a default resolution strategy from the two
// sides' modification timestamps. The proposal pre-populates the audit
// record and drives automatic resolution pipelines; callers may resolve
// with any strategy regardless.
type StrategySelector struct {
	mergeWindow time.Duration
}

func NewStrategySelector(mergeWindow time.Duration) *StrategySelector {
	return &StrategySelector{mergeWindow: mergeWindow}
}

// Propose treats writes within the merge window of each other as
// intended-concurrent edits worth merging. Outside the window the newer
// side wins. Equal timestamps (including both absent) fall inside the
// window and propose a merge.
func (s *StrategySelector) Propose(local, server *domain.VersionedRecord) domain.ResolutionStrategy {
	var localAt, serverAt time.Time
	if local != nil {
		localAt = local.ModifiedAt
	}
	if server != nil {
		serverAt = server.ModifiedAt
	}

	delta := localAt.Sub(serverAt)
	if delta < 0 {
		delta = -delta
	}
	if delta <= s.mergeWindow {
		return domain.StrategyMergeFields
	}

	if localAt.After(serverAt) {
		return domain.StrategyClientWins
	}
	return domain.StrategyServerWins
}
