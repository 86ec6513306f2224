package domain

import "time"

// VersionedRecord is one version of a replicated record as held by either
// side of a conflict. Revision is the store's opaque concurrency token;
// it never travels inside audit snapshots.
type VersionedRecord struct {
	ID         string           `json:"id"`
	RecordType string           `json:"record_type"`
	Fields     map[string]Value `json:"fields"`
	ModifiedAt time.Time        `json:"modified_at,omitzero"`
	Revision   string           `json:"-"`
}

func (r *VersionedRecord) Field(name string) (Value, bool) {
	if r == nil || r.Fields == nil {
		return Value{}, false
	}
	v, ok := r.Fields[name]
	return v, ok
}

func (r *VersionedRecord) SetField(name string, v Value) {
	if r.Fields == nil {
		r.Fields = make(map[string]Value)
	}
	r.Fields[name] = v
}

// IntField reads a numeric field truncated to an integer, for counters
// like the record's version number.
func (r *VersionedRecord) IntField(name string) (int64, bool) {
	v, ok := r.Field(name)
	if !ok || v.Kind != KindNumber {
		return 0, false
	}
	return int64(v.Number), true
}

// Clone returns a copy safe to mutate field by field. Values are copied
// by assignment; resolution code replaces whole values, never their
// backing slices.
func (r *VersionedRecord) Clone() *VersionedRecord {
	if r == nil {
		return nil
	}
	fields := make(map[string]Value, len(r.Fields))
	for name, v := range r.Fields {
		fields[name] = v
	}
	return &VersionedRecord{
		ID:         r.ID,
		RecordType: r.RecordType,
		Fields:     fields,
		ModifiedAt: r.ModifiedAt,
		Revision:   r.Revision,
	}
}
