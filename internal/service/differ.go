package service

import (
	"sort"

	"erp-conflict-engine/internal/domain"
)

// FieldDiffer computes the set of field names on which two versions of a
// record disagree. System-managed fields always differ trivially and are
// excluded up front.
type FieldDiffer struct {
	systemFields map[string]bool
}

func NewFieldDiffer(systemFields []string) *FieldDiffer {
	excluded := make(map[string]bool, len(systemFields))
	for _, f := range systemFields {
		excluded[f] = true
	}
	return &FieldDiffer{systemFields: excluded}
}

// Diff returns the sorted names of fields present in either record where
// the two sides disagree. A field present on only one side is itself a
// conflict. Nil records are treated as empty. Deterministic and symmetric.
func (d *FieldDiffer) Diff(local, server *domain.VersionedRecord) []string {
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

	conflicted := make([]string, 0, len(names))
	for name := range names {
		if d.systemFields[name] {
			continue
		}

		lv, lok := local.Field(name)
		sv, sok := server.Field(name)

		if lok != sok || !lv.Equal(sv) {
			conflicted = append(conflicted, name)
		}
	}

	sort.Strings(conflicted)
	return conflicted
}
