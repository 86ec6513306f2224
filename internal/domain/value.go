package domain

import (
	"bytes"
	"time"
)

type ValueKind string

const (
	KindText      ValueKind = "text"
	KindNumber    ValueKind = "number"
	KindTimestamp ValueKind = "timestamp"
	KindReference ValueKind = "reference"
	KindBytes     ValueKind = "bytes"
	KindList      ValueKind = "list"
)

// TimestampTolerance absorbs clock skew and serialization precision loss
// when comparing timestamp fields across replicas.
const TimestampTolerance = time.Second

// Value is a tagged union over the field types a replicated record can
// carry. Exactly the field matching Kind is meaningful.
type Value struct {
	Kind      ValueKind `json:"kind"`
	Text      string    `json:"text,omitempty"`
	Number    float64   `json:"number,omitempty"`
	Timestamp time.Time `json:"timestamp,omitzero"`
	Reference string    `json:"reference,omitempty"`
	Bytes     []byte    `json:"bytes,omitempty"`
	List      []Value   `json:"list,omitempty"`
}

func TextValue(s string) Value {
	return Value{Kind: KindText, Text: s}
}

func NumberValue(n float64) Value {
	return Value{Kind: KindNumber, Number: n}
}

func TimestampValue(t time.Time) Value {
	return Value{Kind: KindTimestamp, Timestamp: t}
}

func ReferenceValue(recordID string) Value {
	return Value{Kind: KindReference, Reference: recordID}
}

func BytesValue(b []byte) Value {
	return Value{Kind: KindBytes, Bytes: b}
}

func ListValue(items ...Value) Value {
	return Value{Kind: KindList, List: items}
}

// Equal compares two values kind by kind. Mismatched kinds are never
// equal; timestamps compare within TimestampTolerance; references
// compare by the identity of the referenced record.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}

	switch v.Kind {
	case KindText:
		return v.Text == other.Text
	case KindNumber:
		return v.Number == other.Number
	case KindTimestamp:
		delta := v.Timestamp.Sub(other.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		return delta <= TimestampTolerance
	case KindReference:
		return v.Reference == other.Reference
	case KindBytes:
		return bytes.Equal(v.Bytes, other.Bytes)
	case KindList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(other.List[i]) {
				return false
			}
		}
		return true
	}

	return false
}

// ManualAssignable reports whether a kind may be supplied as a manual
// resolution value. Blobs and lists cannot be entered by hand.
func (k ValueKind) ManualAssignable() bool {
	switch k {
	case KindText, KindNumber, KindTimestamp, KindReference:
		return true
	}
	return false
}
