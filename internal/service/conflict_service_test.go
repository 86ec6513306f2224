package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"erp-conflict-engine/internal/domain"
	"erp-conflict-engine/internal/repository"
)

type mockConflictRepo struct {
	docs        map[string]*domain.ConflictRecord
	createCalls int
	updateCalls int
	failCreate  bool
	failUpdate  bool
}

func newMockConflictRepo() *mockConflictRepo {
	return &mockConflictRepo{docs: make(map[string]*domain.ConflictRecord)}
}

func (m *mockConflictRepo) Create(ctx context.Context, c *domain.ConflictRecord) error {
	m.createCalls++
	if m.failCreate {
		return errors.New("store unavailable")
	}
	m.docs[c.ID] = c
	return nil
}

func (m *mockConflictRepo) Get(ctx context.Context, id string) (*domain.ConflictRecord, error) {
	if c, ok := m.docs[id]; ok {
		return c, nil
	}
	return nil, errors.New("not found")
}

func (m *mockConflictRepo) Update(ctx context.Context, c *domain.ConflictRecord) error {
	m.updateCalls++
	if m.failUpdate {
		return errors.New("store unavailable")
	}
	m.docs[c.ID] = c
	return nil
}

func (m *mockConflictRepo) Query(ctx context.Context, filter repository.ConflictFilter) ([]*domain.ConflictRecord, error) {
	var out []*domain.ConflictRecord
	for _, c := range m.docs {
		if filter.RecordType != "" && c.RecordType != filter.RecordType {
			continue
		}
		if filter.Severity != "" && c.Severity != filter.Severity {
			continue
		}
		out = append(out, c)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

type mockEventSink struct {
	events []domain.Event
}

func (m *mockEventSink) Publish(e domain.Event) {
	m.events = append(m.events, e)
}

func (m *mockEventSink) countByType(t domain.EventType) int {
	n := 0
	for _, e := range m.events {
		if e.Type() == t {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T) (*ConflictService, *mockConflictRepo, *mockEventSink) {
	t.Helper()
	repo := newMockConflictRepo()
	sink := &mockEventSink{}
	return NewConflictService(repo, testConfig(t), sink), repo, sink
}

// mediumPair builds two versions whose only divergence is one critical
// field: score 4, medium severity.
func mediumPair() (*domain.VersionedRecord, *domain.VersionedRecord) {
	local := invoiceRecord(map[string]domain.Value{
		"status": domain.TextValue("open"),
		"amount": domain.NumberValue(100),
	})
	server := invoiceRecord(map[string]domain.Value{
		"status": domain.TextValue("closed"),
		"amount": domain.NumberValue(100),
	})
	return local, server
}

// criticalPair diverges on three critical fields: score 10, critical
// severity.
func criticalPair() (*domain.VersionedRecord, *domain.VersionedRecord) {
	local := invoiceRecord(map[string]domain.Value{
		"status":   domain.TextValue("open"),
		"amount":   domain.NumberValue(100),
		"priority": domain.TextValue("low"),
	})
	server := invoiceRecord(map[string]domain.Value{
		"status":   domain.TextValue("closed"),
		"amount":   domain.NumberValue(900),
		"priority": domain.TextValue("high"),
	})
	return local, server
}

func TestConflictService_Detect(t *testing.T) {
	svc, repo, sink := newTestService(t)

	local, server := mediumPair()
	conflict := svc.Detect(context.Background(), local, server, "save")

	if conflict.ID == "" {
		t.Error("expected a generated conflict ID")
	}
	if conflict.Severity != domain.SeverityMedium {
		t.Errorf("expected medium severity, got %s", conflict.Severity)
	}
	if conflict.Operation != "save" {
		t.Errorf("expected operation save, got %q", conflict.Operation)
	}
	if conflict.LocalFingerprint == "" || conflict.ServerFingerprint == "" {
		t.Error("expected snapshot fingerprints to be recorded")
	}
	if len(svc.Active()) != 1 {
		t.Errorf("expected one active conflict, got %d", len(svc.Active()))
	}
	if repo.createCalls != 1 {
		t.Errorf("expected one audit save, got %d", repo.createCalls)
	}
	if sink.countByType(domain.EventConflictDetected) != 1 {
		t.Error("expected a conflict-detected event")
	}
	if sink.countByType(domain.EventCriticalConflict) != 0 {
		t.Error("did not expect a critical event for a medium conflict")
	}
}

func TestConflictService_Detect_CriticalEmitsEvent(t *testing.T) {
	svc, _, sink := newTestService(t)

	local, server := criticalPair()
	conflict := svc.Detect(context.Background(), local, server, "save")

	if conflict.Severity != domain.SeverityCritical {
		t.Fatalf("expected critical severity, got %s (score %d)", conflict.Severity, conflict.Score)
	}
	if sink.countByType(domain.EventCriticalConflict) != 1 {
		t.Error("expected a critical-conflict event")
	}
}

func TestConflictService_Detect_SurvivesPersistenceFailure(t *testing.T) {
	svc, repo, sink := newTestService(t)
	repo.failCreate = true

	local, server := mediumPair()
	conflict := svc.Detect(context.Background(), local, server, "save")

	if conflict == nil {
		t.Fatal("expected detection to succeed despite store failure")
	}
	if len(svc.Active()) != 1 {
		t.Error("expected conflict to stay tracked in memory")
	}
	if repo.createCalls < 2 {
		t.Errorf("expected persistence retries, got %d attempts", repo.createCalls)
	}
	if sink.countByType(domain.EventConflictDetected) != 1 {
		t.Error("expected detection event despite store failure")
	}
}

func TestConflictService_Detect_SnapshotsAreIsolated(t *testing.T) {
	svc, _, _ := newTestService(t)

	local, server := mediumPair()
	conflict := svc.Detect(context.Background(), local, server, "save")

	local.SetField("status", domain.TextValue("mutated"))
	server.SetField("amount", domain.NumberValue(999))

	if got, _ := conflict.LocalRecord.Field("status"); got.Text != "open" {
		t.Errorf("caller mutation leaked into the local snapshot: %q", got.Text)
	}
	if got, _ := conflict.ServerRecord.Field("amount"); got.Number != 100 {
		t.Errorf("caller mutation leaked into the server snapshot: %v", got.Number)
	}
}

func TestConflictService_Detect_HighRatePattern(t *testing.T) {
	svc, _, sink := newTestService(t)

	for i := 0; i < 6; i++ {
		local, server := mediumPair()
		svc.Detect(context.Background(), local, server, "save")
	}

	if got := sink.countByType(domain.EventHighConflictRate); got != 1 {
		t.Errorf("expected exactly one high-rate event after exceeding the threshold, got %d", got)
	}
}

func TestConflictService_Resolve(t *testing.T) {
	svc, repo, _ := newTestService(t)

	local, server := mediumPair()
	conflict := svc.Detect(context.Background(), local, server, "save")

	winner, err := svc.Resolve(context.Background(), conflict.ID, domain.StrategyServerWins, nil, "operator-1", "took server copy")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got, _ := winner.Field("status"); got.Text != "closed" {
		t.Errorf("expected server version to win, got %q", got.Text)
	}

	if len(svc.Active()) != 0 {
		t.Error("expected conflict removed from active set")
	}
	if repo.updateCalls != 1 {
		t.Errorf("expected one audit update, got %d", repo.updateCalls)
	}

	stored := repo.docs[conflict.ID]
	if !stored.IsResolved() {
		t.Fatal("expected stored conflict marked resolved")
	}
	if stored.ResolvedAt.Before(stored.DetectedAt) {
		t.Error("resolution timestamp precedes detection timestamp")
	}
	if stored.AppliedStrategy != domain.StrategyServerWins {
		t.Errorf("expected applied strategy recorded, got %s", stored.AppliedStrategy)
	}
	if stored.ResolvedBy != "operator-1" {
		t.Errorf("expected resolver identity recorded, got %q", stored.ResolvedBy)
	}
}

func TestConflictService_Resolve_TerminalState(t *testing.T) {
	svc, _, _ := newTestService(t)

	local, server := mediumPair()
	conflict := svc.Detect(context.Background(), local, server, "save")

	if _, err := svc.Resolve(context.Background(), conflict.ID, domain.StrategyClientWins, nil, "", ""); err != nil {
		t.Fatalf("first resolution failed: %v", err)
	}

	_, err := svc.Resolve(context.Background(), conflict.ID, domain.StrategyClientWins, nil, "", "")
	var notFound *ConflictNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ConflictNotFoundError on second resolution, got %v", err)
	}
}

func TestConflictService_Resolve_UnknownID(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Resolve(context.Background(), "no-such-conflict", domain.StrategyClientWins, nil, "", "")
	var notFound *ConflictNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ConflictNotFoundError, got %v", err)
	}
}

func TestConflictService_Resolve_InvalidManualKeepsConflictActive(t *testing.T) {
	svc, _, _ := newTestService(t)

	local, server := mediumPair()
	conflict := svc.Detect(context.Background(), local, server, "save")

	_, err := svc.Resolve(context.Background(), conflict.ID, domain.StrategyManual, nil, "", "")
	var invalid *InvalidResolutionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidResolutionError, got %v", err)
	}

	// The rejected attempt must not consume the conflict.
	if _, err := svc.Resolve(context.Background(), conflict.ID, domain.StrategyClientWins, nil, "", ""); err != nil {
		t.Fatalf("expected conflict to remain resolvable, got %v", err)
	}
}

func TestConflictService_Resolve_PersistenceFailurePropagates(t *testing.T) {
	svc, repo, _ := newTestService(t)

	local, server := mediumPair()
	conflict := svc.Detect(context.Background(), local, server, "save")
	repo.failUpdate = true

	_, err := svc.Resolve(context.Background(), conflict.ID, domain.StrategyClientWins, nil, "", "")
	var persistence *PersistenceError
	if !errors.As(err, &persistence) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
}

func TestConflictService_Resolve_RetryAfterPersistenceFailure(t *testing.T) {
	svc, repo, _ := newTestService(t)

	local, server := mediumPair()
	conflict := svc.Detect(context.Background(), local, server, "save")
	repo.failUpdate = true

	var persistence *PersistenceError
	if _, err := svc.Resolve(context.Background(), conflict.ID, domain.StrategyClientWins, nil, "", ""); !errors.As(err, &persistence) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}

	// The failed attempt must leave the conflict active and unresolved.
	if len(svc.Active()) != 1 {
		t.Fatalf("expected conflict back in the active set, got %d", len(svc.Active()))
	}
	if conflict.IsResolved() {
		t.Error("expected resolution fields reverted after store failure")
	}
	if stats := svc.Statistics(); stats.TotalResolved != 0 {
		t.Errorf("expected no resolutions counted, got %d", stats.TotalResolved)
	}

	repo.failUpdate = false
	winner, err := svc.Resolve(context.Background(), conflict.ID, domain.StrategyClientWins, nil, "operator-1", "")
	if err != nil {
		t.Fatalf("expected retry to succeed once the store recovered, got %v", err)
	}
	if got, _ := winner.Field("status"); got.Text != "open" {
		t.Errorf("expected local version to win on retry, got %q", got.Text)
	}
	if len(svc.Active()) != 0 {
		t.Error("expected conflict removed from active set after successful retry")
	}
}

func TestConflictService_Statistics(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	localA, serverA := criticalPair()
	svc.Detect(ctx, localA, serverA, "save")

	localB, serverB := mediumPair()
	first := svc.Detect(ctx, localB, serverB, "save")

	localC, serverC := mediumPair()
	svc.Detect(ctx, localC, serverC, "fetch")

	if _, err := svc.Resolve(ctx, first.ID, domain.StrategyServerWins, nil, "", ""); err != nil {
		t.Fatalf("resolution failed: %v", err)
	}

	stats := svc.Statistics()
	if stats.TotalConflicts != 3 {
		t.Errorf("expected 3 total conflicts, got %d", stats.TotalConflicts)
	}
	if stats.TotalResolved != 1 {
		t.Errorf("expected 1 resolved, got %d", stats.TotalResolved)
	}
	if stats.CriticalCount != 1 || stats.MediumCount != 2 {
		t.Errorf("expected 1 critical and 2 medium, got %d and %d", stats.CriticalCount, stats.MediumCount)
	}
	if stats.PendingConflicts != 2 {
		t.Errorf("expected 2 pending, got %d", stats.PendingConflicts)
	}
	if stats.ResolutionRate < 0.33 || stats.ResolutionRate > 0.34 {
		t.Errorf("expected resolution rate near 1/3, got %f", stats.ResolutionRate)
	}
}

func TestConflictService_Statistics_EmptyRate(t *testing.T) {
	svc, _, _ := newTestService(t)

	stats := svc.Statistics()
	if stats.ResolutionRate != 0 {
		t.Errorf("expected zero rate with no conflicts, got %f", stats.ResolutionRate)
	}
}

func TestConflictService_RebuildStatistics(t *testing.T) {
	svc, repo, _ := newTestService(t)
	resolvedAt := time.Now()

	repo.docs["a"] = &domain.ConflictRecord{ID: "a", Severity: domain.SeverityCritical}
	repo.docs["b"] = &domain.ConflictRecord{ID: "b", Severity: domain.SeverityMedium, ResolvedAt: &resolvedAt}

	if err := svc.RebuildStatistics(context.Background()); err != nil {
		t.Fatalf("rebuild failed: %v", err)
	}

	stats := svc.Statistics()
	if stats.TotalConflicts != 2 || stats.TotalResolved != 1 {
		t.Errorf("expected 2 total / 1 resolved, got %d / %d", stats.TotalConflicts, stats.TotalResolved)
	}
	if stats.CriticalCount != 1 || stats.MediumCount != 1 {
		t.Errorf("unexpected severity counts: %+v", stats)
	}
}

func TestConflictService_ExpireOld(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	local, server := mediumPair()
	conflict := svc.Detect(ctx, local, server, "save")
	if _, err := svc.Resolve(ctx, conflict.ID, domain.StrategyClientWins, nil, "", ""); err != nil {
		t.Fatalf("resolution failed: %v", err)
	}

	// Fresh resolution is kept.
	if removed := svc.ExpireOld(30); removed != 0 {
		t.Errorf("expected nothing expired, got %d", removed)
	}

	// Backdate the resolution beyond the cutoff.
	stored, err := svc.Get(ctx, conflict.ID)
	if err != nil {
		t.Fatalf("expected resolved conflict to be retrievable: %v", err)
	}
	old := time.Now().AddDate(0, 0, -40)
	stored.ResolvedAt = &old

	if removed := svc.ExpireOld(30); removed != 1 {
		t.Errorf("expected one expired conflict, got %d", removed)
	}
}

func TestConflictService_History(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	local, server := mediumPair()
	svc.Detect(ctx, local, server, "save")

	history, err := svc.History(ctx, "Invoice", "", 10)
	if err != nil {
		t.Fatalf("history query failed: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("expected one history entry, got %d", len(history))
	}

	history, err = svc.History(ctx, "Task", "", 10)
	if err != nil {
		t.Fatalf("history query failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected no Task conflicts, got %d", len(history))
	}
}

var _ EventSink = (*mockEventSink)(nil)
var _ repository.ConflictRepository = (*mockConflictRepo)(nil)
