package service

import (
	"context"
	"errors"

	"erp-conflict-engine/internal/domain"
	"erp-conflict-engine/internal/repository"
)

// RecordService fronts the replicated record store and feeds the
// conflict engine. Both of the spec's detection triggers live here: a
// save that loses an optimistic-concurrency race, and a fetch whose
// server version disagrees with a caller-held local copy.
type RecordService struct {
	records   repository.RecordRepository
	conflicts *ConflictService
}

func NewRecordService(records repository.RecordRepository, conflicts *ConflictService) *RecordService {
	return &RecordService{
		records:   records,
		conflicts: conflicts,
	}
}

// Save writes a record. On a concurrency conflict the divergence is
// handed to the conflict engine and the detected conflict is returned
// alongside the original error; the write itself did not happen.
func (s *RecordService) Save(ctx context.Context, record *domain.VersionedRecord) (*domain.VersionedRecord, *domain.ConflictRecord, error) {
	saved, err := s.records.Save(ctx, record)
	if err == nil {
		return saved, nil, nil
	}

	var cc *domain.ConcurrencyConflictError
	if errors.As(err, &cc) {
		conflict := s.conflicts.Detect(ctx, record, cc.ServerRecord, "save")
		return nil, conflict, err
	}

	return nil, nil, err
}

func (s *RecordService) Fetch(ctx context.Context, recordID string) (*domain.VersionedRecord, error) {
	return s.records.Fetch(ctx, recordID)
}

func (s *RecordService) List(ctx context.Context, recordType string, limit int) ([]*domain.VersionedRecord, error) {
	return s.records.Query(ctx, recordType, limit)
}

// FetchAndCompare fetches the server version and, when it disagrees with
// the caller's local copy on any business field, registers a conflict.
// The server version is returned either way.
func (s *RecordService) FetchAndCompare(ctx context.Context, recordID string, local *domain.VersionedRecord) (*domain.VersionedRecord, *domain.ConflictRecord, error) {
	server, err := s.records.Fetch(ctx, recordID)
	if err != nil {
		return nil, nil, err
	}

	if s.conflicts.Diverged(local, server) {
		conflict := s.conflicts.Detect(ctx, local, server, "fetch")
		return server, conflict, nil
	}

	return server, nil, nil
}

// Delete removes a record; a concurrency race on delete is a conflict
// like any other.
func (s *RecordService) Delete(ctx context.Context, recordID string, local *domain.VersionedRecord) (*domain.ConflictRecord, error) {
	err := s.records.Delete(ctx, recordID)
	if err == nil {
		return nil, nil
	}

	var cc *domain.ConcurrencyConflictError
	if errors.As(err, &cc) {
		conflict := s.conflicts.Detect(ctx, local, cc.ServerRecord, "delete")
		return conflict, err
	}

	return nil, err
}
