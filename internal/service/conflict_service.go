package service

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"erp-conflict-engine/internal/config"
	"erp-conflict-engine/internal/domain"
	"erp-conflict-engine/internal/repository"
	"erp-conflict-engine/pkg/fingerprint"

	"github.com/google/uuid"
)

// EventSink receives domain events emitted by the detection path.
// Implementations must not block; delivery is best-effort.
type EventSink interface {
	Publish(event domain.Event)
}

// ConflictService owns the active-conflict table and the statistics
// aggregate. All mutations of those two structures are serialized under
// one mutex; resolutions of different conflicts only contend for the
// short bookkeeping sections, never for each other's engine or store
// work.
type ConflictService struct {
	repo     repository.ConflictRepository
	differ   *FieldDiffer
	scorer   *SeverityScorer
	selector *StrategySelector
	engine   *ResolutionEngine
	events   EventSink

	patternWindow    time.Duration
	patternThreshold int
	persistRetries   int
	persistBackoff   time.Duration

	mu       sync.Mutex
	pending  map[string]*domain.ConflictRecord
	resolved map[string]*domain.ConflictRecord
	recent   map[string][]time.Time
	stats    domain.ConflictStatistics
}

func NewConflictService(
	repo repository.ConflictRepository,
	cfg *config.Config,
	events EventSink,
) *ConflictService {
	return &ConflictService{
		repo:             repo,
		differ:           NewFieldDiffer(cfg.Resolution.SystemFields),
		scorer:           NewSeverityScorer(cfg.Scoring),
		selector:         NewStrategySelector(cfg.Resolution.MergeWindow),
		engine:           NewResolutionEngine(cfg.Resolution),
		events:           events,
		patternWindow:    cfg.Pattern.Window,
		patternThreshold: cfg.Pattern.Threshold,
		persistRetries:   cfg.Persist.Retries,
		persistBackoff:   cfg.Persist.Backoff,
		pending:          make(map[string]*domain.ConflictRecord),
		resolved:         make(map[string]*domain.ConflictRecord),
		recent:           make(map[string][]time.Time),
	}
}

// Detect builds a conflict record from two diverging versions and tracks
// it. It never fails: audit persistence is retried and then logged and
// swallowed, so the caller's original operation is never blocked by the
// conflict machinery.
func (s *ConflictService) Detect(ctx context.Context, local, server *domain.VersionedRecord, operation string) *domain.ConflictRecord {
	// Snapshots belong to the conflict record; callers keep mutating
	// their own copies.
	local = local.Clone()
	server = server.Clone()

	conflictedFields := s.differ.Diff(local, server)
	score, severity := s.scorer.Score(local, server, conflictedFields)
	proposed := s.selector.Propose(local, server)

	conflict := &domain.ConflictRecord{
		ID:                uuid.New().String(),
		RecordType:        recordType(local, server),
		RecordID:          recordID(local, server),
		LocalRecord:       local,
		ServerRecord:      server,
		Operation:         operation,
		DetectedAt:        time.Now(),
		ConflictedFields:  conflictedFields,
		Score:             score,
		Severity:          severity,
		ProposedStrategy:  proposed,
		LocalFingerprint:  snapshotFingerprint(local),
		ServerFingerprint: snapshotFingerprint(server),
	}

	s.mu.Lock()
	s.pending[conflict.ID] = conflict
	s.stats.TotalConflicts++
	s.bumpSeverityCount(severity, 1)
	s.stats.UpdatedAt = conflict.DetectedAt
	sameTypeCount := s.trackDetection(conflict.RecordType, conflict.DetectedAt)
	s.mu.Unlock()

	if err := s.persistWithRetry(ctx, "create conflict", func() error {
		return s.repo.Create(ctx, conflict)
	}); err != nil {
		log.Printf("conflict %s: audit save failed, conflict kept in memory: %v", conflict.ID, err)
	}

	s.publish(domain.ConflictDetectedEvent{Conflict: conflict})
	if severity == domain.SeverityCritical {
		s.publish(domain.CriticalConflictEvent{Conflict: conflict})
	}
	if sameTypeCount > s.patternThreshold {
		s.publish(domain.HighConflictRateEvent{
			RecordType: conflict.RecordType,
			Count:      sameTypeCount,
			Window:     s.patternWindow,
		})
	}

	return conflict
}

// Resolve applies a strategy to an active conflict. The conflict leaves
// the active set before any other side effect, so at most one resolution
// per ID can ever proceed; persistence of the outcome is fail-closed.
func (s *ConflictService) Resolve(ctx context.Context, conflictID string, strategy domain.ResolutionStrategy, manualValues map[string]domain.Value, resolvedBy, notes string) (*domain.VersionedRecord, error) {
	s.mu.Lock()
	conflict, ok := s.pending[conflictID]
	if !ok {
		s.mu.Unlock()
		return nil, &ConflictNotFoundError{ConflictID: conflictID}
	}
	delete(s.pending, conflictID)
	s.mu.Unlock()

	winner, err := s.engine.Resolve(conflict, strategy, manualValues)
	if err != nil {
		// Nothing was mutated; the conflict stays resolvable.
		s.mu.Lock()
		s.pending[conflictID] = conflict
		s.mu.Unlock()
		return nil, err
	}

	now := time.Now()
	conflict.ResolvedAt = &now
	conflict.AppliedStrategy = strategy
	conflict.ResolvedRecord = winner
	conflict.ResolvedBy = resolvedBy
	conflict.ResolutionNotes = notes

	if err := s.persistWithRetry(ctx, "update conflict", func() error {
		return s.repo.Update(ctx, conflict)
	}); err != nil {
		// Losing the outcome is recoverable: revert the resolution fields
		// and put the conflict back so the caller can retry.
		conflict.ResolvedAt = nil
		conflict.AppliedStrategy = ""
		conflict.ResolvedRecord = nil
		conflict.ResolvedBy = ""
		conflict.ResolutionNotes = ""
		s.mu.Lock()
		s.pending[conflictID] = conflict
		s.mu.Unlock()
		return nil, &PersistenceError{Op: "resolution update", Err: err}
	}

	s.mu.Lock()
	s.resolved[conflictID] = conflict
	s.stats.TotalResolved++
	s.stats.UpdatedAt = now
	s.mu.Unlock()

	return winner, nil
}

// Get returns a conflict by ID, preferring the in-memory copies and
// falling back to the audit store.
func (s *ConflictService) Get(ctx context.Context, conflictID string) (*domain.ConflictRecord, error) {
	s.mu.Lock()
	if c, ok := s.pending[conflictID]; ok {
		s.mu.Unlock()
		return c, nil
	}
	if c, ok := s.resolved[conflictID]; ok {
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	conflict, err := s.repo.Get(ctx, conflictID)
	if err != nil {
		return nil, &ConflictNotFoundError{ConflictID: conflictID}
	}
	return conflict, nil
}

// Active lists unresolved conflicts, newest first.
func (s *ConflictService) Active() []*domain.ConflictRecord {
	s.mu.Lock()
	conflicts := make([]*domain.ConflictRecord, 0, len(s.pending))
	for _, c := range s.pending {
		conflicts = append(conflicts, c)
	}
	s.mu.Unlock()

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].DetectedAt.After(conflicts[j].DetectedAt)
	})
	return conflicts
}

// History queries the durable audit trail, detection time descending.
func (s *ConflictService) History(ctx context.Context, recordType string, severity domain.ConflictSeverity, limit int) ([]*domain.ConflictRecord, error) {
	return s.repo.Query(ctx, repository.ConflictFilter{
		RecordType: recordType,
		Severity:   severity,
		Limit:      limit,
	})
}

// Statistics returns a snapshot of the aggregate with derived values
// filled in.
func (s *ConflictService) Statistics() domain.ConflictStatistics {
	s.mu.Lock()
	snapshot := s.stats
	s.mu.Unlock()

	if snapshot.TotalConflicts > 0 {
		snapshot.ResolutionRate = float64(snapshot.TotalResolved) / float64(snapshot.TotalConflicts)
	}
	snapshot.PendingConflicts = snapshot.TotalConflicts - snapshot.TotalResolved
	return snapshot
}

// RebuildStatistics recomputes the aggregate from the full audit trail,
// for recovery after a restart.
func (s *ConflictService) RebuildStatistics(ctx context.Context) error {
	conflicts, err := s.repo.Query(ctx, repository.ConflictFilter{})
	if err != nil {
		return &PersistenceError{Op: "statistics rebuild", Err: err}
	}

	var stats domain.ConflictStatistics
	for _, c := range conflicts {
		stats.TotalConflicts++
		if c.IsResolved() {
			stats.TotalResolved++
		}
		switch c.Severity {
		case domain.SeverityLow:
			stats.LowCount++
		case domain.SeverityMedium:
			stats.MediumCount++
		case domain.SeverityHigh:
			stats.HighCount++
		case domain.SeverityCritical:
			stats.CriticalCount++
		}
	}
	stats.UpdatedAt = time.Now()

	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
	return nil
}

// ExpireOld drops resolved conflicts older than the cutoff from memory.
// The durable audit trail is never touched. Returns the number removed.
func (s *ConflictService) ExpireOld(olderThanDays int) int {
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, c := range s.resolved {
		if c.ResolvedAt != nil && c.ResolvedAt.Before(cutoff) {
			delete(s.resolved, id)
			removed++
		}
	}
	return removed
}

// Diverged reports whether two versions of a record disagree on any
// business field, for fetch-time conflict checks.
func (s *ConflictService) Diverged(local, server *domain.VersionedRecord) bool {
	return len(s.differ.Diff(local, server)) > 0
}

func (s *ConflictService) publish(event domain.Event) {
	if s.events != nil {
		s.events.Publish(event)
	}
}

// trackDetection records a detection time and returns how many conflicts
// of this record type fall within the trailing pattern window. Caller
// holds the mutex.
func (s *ConflictService) trackDetection(recordType string, at time.Time) int {
	windowStart := at.Add(-s.patternWindow)
	times := append(s.recent[recordType], at)

	kept := times[:0]
	for _, t := range times {
		if t.After(windowStart) {
			kept = append(kept, t)
		}
	}
	s.recent[recordType] = kept
	return len(kept)
}

func (s *ConflictService) bumpSeverityCount(severity domain.ConflictSeverity, delta int64) {
	switch severity {
	case domain.SeverityLow:
		s.stats.LowCount += delta
	case domain.SeverityMedium:
		s.stats.MediumCount += delta
	case domain.SeverityHigh:
		s.stats.HighCount += delta
	case domain.SeverityCritical:
		s.stats.CriticalCount += delta
	}
}

// persistWithRetry retries transient store failures with a fixed
// backoff. Only the durable-persistence step retries; scoring and merge
// logic is deterministic and runs once.
func (s *ConflictService) persistWithRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	attempts := s.persistRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		log.Printf("%s attempt %d/%d failed: %v", op, attempt, attempts, err)
		select {
		case <-time.After(s.persistBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func recordType(local, server *domain.VersionedRecord) string {
	if local != nil && local.RecordType != "" {
		return local.RecordType
	}
	if server != nil {
		return server.RecordType
	}
	return ""
}

func recordID(local, server *domain.VersionedRecord) string {
	if local != nil && local.ID != "" {
		return local.ID
	}
	if server != nil {
		return server.ID
	}
	return ""
}

func snapshotFingerprint(record *domain.VersionedRecord) string {
	if record == nil {
		return ""
	}
	data, err := json.Marshal(record)
	if err != nil {
		return ""
	}
	return fingerprint.Sum(data)
}
