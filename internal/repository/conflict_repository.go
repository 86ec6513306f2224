package repository

import (
	"context"
	"fmt"

	"erp-conflict-engine/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// ConflictFilter narrows history queries. Zero values mean "any"; a
// non-positive limit falls back to a server-side default.
type ConflictFilter struct {
	RecordType string
	Severity   domain.ConflictSeverity
	Limit      int
}

// ConflictRepository is the durable audit trail. Conflict documents are
// append-mostly: created at detection, updated once at resolution, never
// deleted.
type ConflictRepository interface {
	Create(ctx context.Context, conflict *domain.ConflictRecord) error
	Get(ctx context.Context, conflictID string) (*domain.ConflictRecord, error)
	Update(ctx context.Context, conflict *domain.ConflictRecord) error
	Query(ctx context.Context, filter ConflictFilter) ([]*domain.ConflictRecord, error)
}

const conflictDocKind = "conflict"

// conflictDoc wraps the domain record with CouchDB bookkeeping fields.
type conflictDoc struct {
	DocID string `json:"_id"`
	Rev   string `json:"_rev,omitempty"`
	Kind  string `json:"doc_kind"`
	*domain.ConflictRecord
}

type conflictRepository struct {
	client *kivik.Client
	dbName string
}

func NewConflictRepository(client *kivik.Client, dbName string) ConflictRepository {
	return &conflictRepository{
		client: client,
		dbName: dbName,
	}
}

func conflictDocID(conflictID string) string {
	return fmt.Sprintf("conflict:%s", conflictID)
}

// EnsureIndexes creates the Mango index backing detection-time sorted
// history queries. Safe to call on every startup.
func EnsureIndexes(ctx context.Context, client *kivik.Client, dbName string) error {
	db := client.DB(dbName)

	index := map[string]interface{}{
		"fields": []string{"doc_kind", "detected_at"},
	}
	if err := db.CreateIndex(ctx, "conflict-history", "by-detected-at", index); err != nil {
		return fmt.Errorf("failed to create conflict index: %w", err)
	}

	return nil
}

func (r *conflictRepository) Create(ctx context.Context, conflict *domain.ConflictRecord) error {
	db := r.client.DB(r.dbName)

	doc := conflictDoc{
		DocID:          conflictDocID(conflict.ID),
		Kind:           conflictDocKind,
		ConflictRecord: conflict,
	}

	if _, err := db.Put(ctx, doc.DocID, doc); err != nil {
		return fmt.Errorf("failed to create conflict document: %w", err)
	}

	return nil
}

func (r *conflictRepository) Get(ctx context.Context, conflictID string) (*domain.ConflictRecord, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(ctx, conflictDocID(conflictID))

	doc := conflictDoc{ConflictRecord: &domain.ConflictRecord{}}
	if err := row.ScanDoc(&doc); err != nil {
		return nil, fmt.Errorf("failed to find conflict %s: %w", conflictID, err)
	}

	return doc.ConflictRecord, nil
}

func (r *conflictRepository) Update(ctx context.Context, conflict *domain.ConflictRecord) error {
	db := r.client.DB(r.dbName)
	docID := conflictDocID(conflict.ID)

	// Fetch the current revision; conflict docs have a single writer so
	// a rev race here only happens on operator error.
	row := db.Get(ctx, docID)
	existing := conflictDoc{ConflictRecord: &domain.ConflictRecord{}}
	if err := row.ScanDoc(&existing); err != nil {
		return fmt.Errorf("failed to load conflict %s for update: %w", conflict.ID, err)
	}

	doc := conflictDoc{
		DocID:          docID,
		Rev:            existing.Rev,
		Kind:           conflictDocKind,
		ConflictRecord: conflict,
	}

	if _, err := db.Put(ctx, docID, doc); err != nil {
		return fmt.Errorf("failed to update conflict document: %w", err)
	}

	return nil
}

// maxQueryLimit caps unbounded history scans. CouchDB _find silently
// applies a default limit of 25, so full-log reads (the statistics
// rebuild) must request an explicit ceiling.
const maxQueryLimit = 10000

// buildConflictQuery assembles the Mango query: selector from the
// filter, detection-time descending through the by-detected-at index,
// and always an explicit limit.
func buildConflictQuery(filter ConflictFilter) map[string]interface{} {
	selector := map[string]interface{}{
		"doc_kind": conflictDocKind,
	}
	if filter.RecordType != "" {
		selector["record_type"] = filter.RecordType
	}
	if filter.Severity != "" {
		selector["severity"] = filter.Severity
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = maxQueryLimit
	}

	return map[string]interface{}{
		"selector": selector,
		"sort": []map[string]string{
			{"doc_kind": "desc"},
			{"detected_at": "desc"},
		},
		"limit": limit,
	}
}

func (r *conflictRepository) Query(ctx context.Context, filter ConflictFilter) ([]*domain.ConflictRecord, error) {
	db := r.client.DB(r.dbName)

	rows := db.Find(ctx, buildConflictQuery(filter))
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*domain.ConflictRecord
	for rows.Next() {
		doc := conflictDoc{ConflictRecord: &domain.ConflictRecord{}}
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		conflicts = append(conflicts, doc.ConflictRecord)
	}

	return conflicts, nil
}
