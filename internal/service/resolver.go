package service

import (
	"fmt"

	"erp-conflict-engine/internal/config"
	"erp-conflict-engine/internal/domain"
)

// MergedMarker joins both sides of a diverged free-text field so neither
// edit is silently dropped. Stored content depends on it; do not change.
const MergedMarker = " [MERGED]: "

// ResolutionEngine applies a resolution strategy to a conflict and
// produces the winning record version. It is a pure function over its
// inputs; persisting the result and updating the conflict record is the
// caller's job.
type ResolutionEngine struct {
	systemFields     map[string]bool
	auditOwnerFields map[string]bool
	freeTextFields   map[string]bool
	workflowFields   map[string]bool
	versionField     string
}

func NewResolutionEngine(cfg config.ResolutionConfig) *ResolutionEngine {
	return &ResolutionEngine{
		systemFields:     toSet(cfg.SystemFields),
		auditOwnerFields: toSet(cfg.AuditOwnerFields),
		freeTextFields:   toSet(cfg.FreeTextFields),
		workflowFields:   toSet(cfg.WorkflowFields),
		versionField:     cfg.VersionField,
	}
}

func toSet(fields []string) map[string]bool {
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func (e *ResolutionEngine) Resolve(conflict *domain.ConflictRecord, strategy domain.ResolutionStrategy, manualValues map[string]domain.Value) (*domain.VersionedRecord, error) {
	local := conflict.LocalRecord
	server := conflict.ServerRecord

	// A side can be absent: a delete that lost its race carries no local
	// snapshot. Treat the missing side as an empty version of the record.
	if local == nil {
		local = &domain.VersionedRecord{ID: conflict.RecordID, RecordType: conflict.RecordType}
	}
	if server == nil {
		server = &domain.VersionedRecord{ID: conflict.RecordID, RecordType: conflict.RecordType}
	}

	switch strategy {
	case domain.StrategyClientWins:
		return local.Clone(), nil

	case domain.StrategyServerWins:
		return server.Clone(), nil

	case domain.StrategyLastWriterWins:
		// Ties (equal or both-absent timestamps) resolve to local.
		if server.ModifiedAt.After(local.ModifiedAt) {
			return server.Clone(), nil
		}
		return local.Clone(), nil

	case domain.StrategyMergeFields:
		return e.mergeFields(local, server), nil

	case domain.StrategyVersionBased:
		return e.resolveByVersion(local, server), nil

	case domain.StrategyManual:
		return e.resolveManually(local, manualValues)

	default:
		return nil, fmt.Errorf("unknown resolution strategy: %s", strategy)
	}
}

// mergeFields starts from the local record and folds in the server side
// field by field. The rule order encodes business priority: the server
// owns audit identity, textual content is preserved from both sides, and
// freshness wins for workflow-state fields. Everything else defaults to
// local-if-present.
func (e *ResolutionEngine) mergeFields(local, server *domain.VersionedRecord) *domain.VersionedRecord {
	merged := local.Clone()
	if merged == nil {
		merged = server.Clone()
		if merged != nil {
			merged.Fields = make(map[string]domain.Value)
		}
	}

	serverNewer := server != nil && local != nil && server.ModifiedAt.After(local.ModifiedAt)

	names := make(map[string]bool)
	if local != nil {
		for name := range local.Fields {
			names[name] = true
		}
	}
	if server != nil {
		for name := range server.Fields {
			names[name] = true
		}
	}

	for name := range names {
		if e.systemFields[name] {
			continue
		}

		lv, lok := local.Field(name)
		sv, sok := server.Field(name)

		switch {
		case e.auditOwnerFields[name]:
			// Preserve the server-side audit trail over local claims.
			if sok {
				merged.SetField(name, sv)
			}

		case e.freeTextFields[name] && lok && sok &&
			lv.Kind == domain.KindText && sv.Kind == domain.KindText:
			if lv.Text != sv.Text {
				merged.SetField(name, domain.TextValue(lv.Text+MergedMarker+sv.Text))
			}

		case e.workflowFields[name]:
			if sok && (serverNewer || !lok) {
				merged.SetField(name, sv)
			}

		default:
			if !lok && sok {
				merged.SetField(name, sv)
			}
		}
	}

	if server != nil && server.ModifiedAt.After(merged.ModifiedAt) {
		merged.ModifiedAt = server.ModifiedAt
	}

	return merged
}

// resolveByVersion picks the side with the higher version counter
// (absent counts as 1) and bumps the winner's version past its original
// value, so repeated conflicts always progress.
func (e *ResolutionEngine) resolveByVersion(local, server *domain.VersionedRecord) *domain.VersionedRecord {
	localVersion := int64(1)
	if v, ok := local.IntField(e.versionField); ok {
		localVersion = v
	}
	serverVersion := int64(1)
	if v, ok := server.IntField(e.versionField); ok {
		serverVersion = v
	}

	winner, winnerVersion := local, localVersion
	if serverVersion > localVersion {
		winner, winnerVersion = server, serverVersion
	}

	resolved := winner.Clone()
	resolved.SetField(e.versionField, domain.NumberValue(float64(winnerVersion+1)))
	return resolved
}

func (e *ResolutionEngine) resolveManually(local *domain.VersionedRecord, manualValues map[string]domain.Value) (*domain.VersionedRecord, error) {
	if len(manualValues) == 0 {
		return nil, &InvalidResolutionError{Reason: "manual resolution requires field values"}
	}

	for field, value := range manualValues {
		if !value.Kind.ManualAssignable() {
			return nil, &UnsupportedValueTypeError{Field: field, Kind: value.Kind}
		}
	}

	resolved := local.Clone()
	for field, value := range manualValues {
		resolved.SetField(field, value)
	}
	return resolved, nil
}
