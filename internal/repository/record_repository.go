package repository

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"erp-conflict-engine/internal/domain"

	"github.com/go-kivik/kivik/v4"
)

// RecordRepository adapts the replicated record store. Saves are
// optimistic: a stale revision loses the race and surfaces the server's
// current version through ConcurrencyConflictError.
type RecordRepository interface {
	Save(ctx context.Context, record *domain.VersionedRecord) (*domain.VersionedRecord, error)
	Fetch(ctx context.Context, recordID string) (*domain.VersionedRecord, error)
	Query(ctx context.Context, recordType string, limit int) ([]*domain.VersionedRecord, error)
	Delete(ctx context.Context, recordID string) error
}

const recordDocKind = "record"

type recordDoc struct {
	DocID   string `json:"_id"`
	Rev     string `json:"_rev,omitempty"`
	Kind    string `json:"doc_kind"`
	Deleted bool   `json:"_deleted,omitempty"`
	*domain.VersionedRecord
}

type recordRepository struct {
	client *kivik.Client
	dbName string
}

func NewRecordRepository(client *kivik.Client, dbName string) RecordRepository {
	return &recordRepository{
		client: client,
		dbName: dbName,
	}
}

func recordDocID(recordID string) string {
	return fmt.Sprintf("record:%s", recordID)
}

func (r *recordRepository) Save(ctx context.Context, record *domain.VersionedRecord) (*domain.VersionedRecord, error) {
	db := r.client.DB(r.dbName)
	docID := recordDocID(record.ID)

	doc := recordDoc{
		DocID:           docID,
		Rev:             record.Revision,
		Kind:            recordDocKind,
		VersionedRecord: record,
	}

	rev, err := db.Put(ctx, docID, doc)
	if err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			server, fetchErr := r.Fetch(ctx, record.ID)
			if fetchErr != nil {
				return nil, fmt.Errorf("failed to load server version after write conflict: %w", fetchErr)
			}
			return nil, &domain.ConcurrencyConflictError{ServerRecord: server}
		}
		return nil, fmt.Errorf("failed to save record %s: %w", record.ID, err)
	}

	saved := record.Clone()
	saved.Revision = rev
	return saved, nil
}

func (r *recordRepository) Fetch(ctx context.Context, recordID string) (*domain.VersionedRecord, error) {
	db := r.client.DB(r.dbName)

	row := db.Get(ctx, recordDocID(recordID))

	doc := recordDoc{VersionedRecord: &domain.VersionedRecord{}}
	if err := row.ScanDoc(&doc); err != nil {
		return nil, fmt.Errorf("failed to find record %s: %w", recordID, err)
	}

	doc.VersionedRecord.Revision = doc.Rev
	return doc.VersionedRecord, nil
}

func (r *recordRepository) Query(ctx context.Context, recordType string, limit int) ([]*domain.VersionedRecord, error) {
	db := r.client.DB(r.dbName)

	selector := map[string]interface{}{
		"doc_kind": recordDocKind,
	}
	if recordType != "" {
		selector["record_type"] = recordType
	}

	query := map[string]interface{}{
		"selector": selector,
	}
	if limit > 0 {
		query["limit"] = limit
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*domain.VersionedRecord
	for rows.Next() {
		doc := recordDoc{VersionedRecord: &domain.VersionedRecord{}}
		if err := rows.ScanDoc(&doc); err != nil {
			continue
		}
		doc.VersionedRecord.Revision = doc.Rev
		records = append(records, doc.VersionedRecord)
	}

	return records, nil
}

// Delete tombstones the document through a _deleted put so the same
// optimistic-concurrency path applies as for saves.
func (r *recordRepository) Delete(ctx context.Context, recordID string) error {
	record, err := r.Fetch(ctx, recordID)
	if err != nil {
		return err
	}

	db := r.client.DB(r.dbName)
	docID := recordDocID(recordID)

	doc := recordDoc{
		DocID:           docID,
		Rev:             record.Revision,
		Kind:            recordDocKind,
		Deleted:         true,
		VersionedRecord: record,
	}

	if _, err := db.Put(ctx, docID, doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusConflict {
			server, fetchErr := r.Fetch(ctx, recordID)
			if fetchErr == nil {
				return &domain.ConcurrencyConflictError{ServerRecord: server}
			}
		}
		return fmt.Errorf("failed to delete record %s: %w", recordID, err)
	}

	return nil
}

// IsNotFound reports whether an error from the store means the document
// does not exist.
func IsNotFound(err error) bool {
	return err != nil && (kivik.HTTPStatus(err) == http.StatusNotFound ||
		kivik.HTTPStatus(errors.Unwrap(err)) == http.StatusNotFound)
}
