package service

import (
	"erp-conflict-engine/internal/config"
	"erp-conflict-engine/internal/domain"
)

// SeverityScorer turns a field diff into a numeric conflict score and a
// severity tier. Weights favor business-impact fields over incidental
// ones; all numbers come from configuration.
type SeverityScorer struct {
	cfg                config.ScoringConfig
	criticalFields     map[string]bool
	relationshipFields map[string]bool
}

func NewSeverityScorer(cfg config.ScoringConfig) *SeverityScorer {
	critical := make(map[string]bool, len(cfg.CriticalFields))
	for _, f := range cfg.CriticalFields {
		critical[f] = true
	}
	relationship := make(map[string]bool, len(cfg.RelationshipFields))
	for _, f := range cfg.RelationshipFields {
		relationship[f] = true
	}
	return &SeverityScorer{
		cfg:                cfg,
		criticalFields:     critical,
		relationshipFields: relationship,
	}
}

// Score computes the conflict score for two record versions given the
// fields the differ flagged. The base score reflects that a conflict
// exists at all; a record-type mismatch is a structural anomaly; a large
// modification-time gap suggests a long-lived partition rather than a
// race.
func (s *SeverityScorer) Score(local, server *domain.VersionedRecord, conflictedFields []string) (int, domain.ConflictSeverity) {
	score := s.cfg.BaseScore

	for _, field := range conflictedFields {
		if s.criticalFields[field] {
			score += s.cfg.CriticalFieldWeight
		}
		if s.relationshipFields[field] {
			score += s.cfg.RelationshipFieldWeight
		}
	}

	if local != nil && server != nil && local.RecordType != server.RecordType {
		score += s.cfg.TypeMismatchWeight
	}

	if local != nil && server != nil &&
		!local.ModifiedAt.IsZero() && !server.ModifiedAt.IsZero() {
		gap := local.ModifiedAt.Sub(server.ModifiedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap > s.cfg.StaleTimestampGap {
			score += s.cfg.StaleTimestampWeight
		}
	}

	return score, s.SeverityFor(score)
}

// SeverityFor maps a score to its tier. Thresholds are validated to be
// strictly increasing at config load, so the mapping is monotonic.
func (s *SeverityScorer) SeverityFor(score int) domain.ConflictSeverity {
	switch {
	case score >= s.cfg.CriticalThreshold:
		return domain.SeverityCritical
	case score >= s.cfg.HighThreshold:
		return domain.SeverityHigh
	case score >= s.cfg.MediumThreshold:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}
