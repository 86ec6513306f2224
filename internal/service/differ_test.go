package service

import (
	"reflect"
	"testing"
	"time"

	"erp-conflict-engine/internal/domain"
)

func testSystemFields() []string {
	return []string{"created_at", "updated_at", "modified_at", "change_tag"}
}

func invoiceRecord(fields map[string]domain.Value) *domain.VersionedRecord {
	return &domain.VersionedRecord{
		ID:         "rec-1",
		RecordType: "Invoice",
		Fields:     fields,
		ModifiedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFieldDiffer_ChangedField(t *testing.T) {
	differ := NewFieldDiffer(testSystemFields())

	local := invoiceRecord(map[string]domain.Value{
		"status": domain.TextValue("open"),
		"amount": domain.NumberValue(100),
	})
	server := invoiceRecord(map[string]domain.Value{
		"status": domain.TextValue("closed"),
		"amount": domain.NumberValue(100),
	})

	diff := differ.Diff(local, server)
	if !reflect.DeepEqual(diff, []string{"status"}) {
		t.Errorf("expected diff [status], got %v", diff)
	}
}

func TestFieldDiffer_Symmetry(t *testing.T) {
	differ := NewFieldDiffer(testSystemFields())

	local := invoiceRecord(map[string]domain.Value{
		"status":    domain.TextValue("open"),
		"client_id": domain.ReferenceValue("client-1"),
		"notes":     domain.TextValue("call back"),
	})
	server := invoiceRecord(map[string]domain.Value{
		"status":   domain.TextValue("closed"),
		"due_date": domain.TimestampValue(time.Now()),
	})

	forward := differ.Diff(local, server)
	backward := differ.Diff(server, local)

	if !reflect.DeepEqual(forward, backward) {
		t.Errorf("diff is not symmetric: %v vs %v", forward, backward)
	}
	if !reflect.DeepEqual(forward, differ.Diff(local, server)) {
		t.Error("repeated diff calls returned different results")
	}
}

func TestFieldDiffer_AsymmetricPresence(t *testing.T) {
	differ := NewFieldDiffer(testSystemFields())

	local := invoiceRecord(map[string]domain.Value{
		"status": domain.TextValue("open"),
	})
	server := invoiceRecord(map[string]domain.Value{
		"status":   domain.TextValue("open"),
		"priority": domain.TextValue("high"),
	})

	diff := differ.Diff(local, server)
	if !reflect.DeepEqual(diff, []string{"priority"}) {
		t.Errorf("expected one-sided field to conflict, got %v", diff)
	}
}

func TestFieldDiffer_ExcludesSystemFields(t *testing.T) {
	differ := NewFieldDiffer(testSystemFields())

	local := invoiceRecord(map[string]domain.Value{
		"updated_at": domain.TimestampValue(time.Now()),
		"change_tag": domain.TextValue("aaa"),
	})
	server := invoiceRecord(map[string]domain.Value{
		"updated_at": domain.TimestampValue(time.Now().Add(time.Hour)),
		"change_tag": domain.TextValue("bbb"),
	})

	if diff := differ.Diff(local, server); len(diff) != 0 {
		t.Errorf("expected system fields to be excluded, got %v", diff)
	}
}

func TestFieldDiffer_TimestampTolerance(t *testing.T) {
	differ := NewFieldDiffer(testSystemFields())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	local := invoiceRecord(map[string]domain.Value{
		"due_date": domain.TimestampValue(base),
	})
	server := invoiceRecord(map[string]domain.Value{
		"due_date": domain.TimestampValue(base.Add(700 * time.Millisecond)),
	})

	if diff := differ.Diff(local, server); len(diff) != 0 {
		t.Errorf("expected sub-second timestamp skew to be tolerated, got %v", diff)
	}
}

func TestFieldDiffer_NilRecords(t *testing.T) {
	differ := NewFieldDiffer(testSystemFields())

	server := invoiceRecord(map[string]domain.Value{
		"status": domain.TextValue("open"),
	})

	diff := differ.Diff(nil, server)
	if !reflect.DeepEqual(diff, []string{"status"}) {
		t.Errorf("expected nil local to diff against all server fields, got %v", diff)
	}
	if diff := differ.Diff(nil, nil); len(diff) != 0 {
		t.Errorf("expected empty diff for two nil records, got %v", diff)
	}
}
