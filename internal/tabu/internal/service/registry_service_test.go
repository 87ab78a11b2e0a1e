// Package service tests the tabu list registry.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/SebastienMelki/tabu/internal/events"
	"github.com/SebastienMelki/tabu/internal/observability"
	"github.com/SebastienMelki/tabu/internal/tabu/internal/domain"
)

// createTestMetrics creates a metrics instance for testing using noop meter.
func createTestMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	meter := noop.NewMeterProvider().Meter("test")
	m, err := observability.NewMetrics(meter)
	if err != nil {
		t.Fatalf("failed to create test metrics: %v", err)
	}
	return m
}

// mockMetricCounter implements a simple counter for testing.
type mockMetricCounter struct {
	metric.Int64Counter
	count atomic.Int64
}

func (m *mockMetricCounter) Add(_ context.Context, incr int64, _ ...metric.AddOption) {
	m.count.Add(incr)
}

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ListEvent
	err    error
}

func (p *recordingPublisher) PublishListEvent(_ context.Context, e events.ListEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func newTestService(t *testing.T, opts Options) *RegistryService {
	t.Helper()
	return NewRegistryService(opts, nil, nil, nil)
}

func mustCreate(t *testing.T, s *RegistryService, capacity int) domain.ListInfo {
	t.Helper()
	info, err := s.CreateList(context.Background(), "test", capacity)
	if err != nil {
		t.Fatalf("CreateList(%d) error = %v", capacity, err)
	}
	return info
}

func TestRegistryService_CreateList(t *testing.T) {
	s := newTestService(t, Options{})

	info := mustCreate(t, s, 4)
	if info.ID == "" {
		t.Error("CreateList() returned an empty id")
	}
	if info.Capacity != 4 || info.Size != 0 {
		t.Errorf("CreateList() = capacity %d size %d, want 4 and 0", info.Capacity, info.Size)
	}
	if info.Name != "test" {
		t.Errorf("Name = %q, want %q", info.Name, "test")
	}
}

func TestRegistryService_CreateListDefaultsNameToID(t *testing.T) {
	s := newTestService(t, Options{})

	info, err := s.CreateList(context.Background(), "", 1)
	if err != nil {
		t.Fatalf("CreateList() error = %v", err)
	}
	if info.Name != info.ID {
		t.Errorf("Name = %q, want id %q", info.Name, info.ID)
	}
}

func TestRegistryService_CreateListValidation(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		capacity int
		wantErr  error
	}{
		{name: "negative capacity", capacity: -1, wantErr: domain.ErrInvalidCapacity},
		{name: "over max capacity", opts: Options{MaxCapacity: 10}, capacity: 11, wantErr: ErrCapacityTooLarge},
		{name: "at max capacity", opts: Options{MaxCapacity: 10}, capacity: 10},
		{name: "zero capacity", capacity: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestService(t, tt.opts)
			_, err := s.CreateList(context.Background(), "x", tt.capacity)
			if tt.wantErr == nil && err != nil {
				t.Errorf("CreateList() error = %v, want nil", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateList() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistryService_MaxLists(t *testing.T) {
	s := newTestService(t, Options{MaxLists: 2})

	mustCreate(t, s, 1)
	second := mustCreate(t, s, 1)

	if _, err := s.CreateList(context.Background(), "third", 1); !errors.Is(err, ErrTooManyLists) {
		t.Errorf("third CreateList() error = %v, want ErrTooManyLists", err)
	}

	// Deleting frees a slot.
	if err := s.DeleteList(context.Background(), second.ID); err != nil {
		t.Fatalf("DeleteList() error = %v", err)
	}
	if _, err := s.CreateList(context.Background(), "third", 1); err != nil {
		t.Errorf("CreateList() after delete error = %v", err)
	}
}

func TestRegistryService_UnknownList(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()

	if _, err := s.GetList(ctx, "missing"); !errors.Is(err, ErrListNotFound) {
		t.Errorf("GetList() error = %v, want ErrListNotFound", err)
	}
	if _, err := s.Find(ctx, "missing", domain.Move{1, 1}); !errors.Is(err, ErrListNotFound) {
		t.Errorf("Find() error = %v, want ErrListNotFound", err)
	}
	if _, err := s.Insert(ctx, "missing", domain.Move{1, 1}); !errors.Is(err, ErrListNotFound) {
		t.Errorf("Insert() error = %v, want ErrListNotFound", err)
	}
	if _, err := s.FilterAllowed(ctx, "missing", nil); !errors.Is(err, ErrListNotFound) {
		t.Errorf("FilterAllowed() error = %v, want ErrListNotFound", err)
	}
	if _, err := s.ResetList(ctx, "missing", nil); !errors.Is(err, ErrListNotFound) {
		t.Errorf("ResetList() error = %v, want ErrListNotFound", err)
	}
	if _, err := s.Items(ctx, "missing"); !errors.Is(err, ErrListNotFound) {
		t.Errorf("Items() error = %v, want ErrListNotFound", err)
	}
	if _, _, err := s.Snapshot(ctx, "missing"); !errors.Is(err, ErrListNotFound) {
		t.Errorf("Snapshot() error = %v, want ErrListNotFound", err)
	}
	if err := s.DeleteList(ctx, "missing"); !errors.Is(err, ErrListNotFound) {
		t.Errorf("DeleteList() error = %v, want ErrListNotFound", err)
	}
}

func TestRegistryService_InsertAndFind(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()
	info := mustCreate(t, s, 2)

	r, err := s.Insert(ctx, info.ID, domain.Move{1, 1})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if !r.Inserted || r.Evicted != nil {
		t.Errorf("Insert((1,1)) = %+v, want inserted without eviction", r)
	}

	s.Insert(ctx, info.ID, domain.Move{2, 2})
	r, _ = s.Insert(ctx, info.ID, domain.Move{3, 3})
	if r.Evicted == nil || *r.Evicted != (domain.Move{1, 1}) {
		t.Errorf("Insert((3,3)) evicted = %v, want (1,1)", r.Evicted)
	}

	for move, want := range map[domain.Move]bool{
		{1, 1}: false,
		{2, 2}: true,
		{3, 3}: true,
	} {
		got, err := s.Find(ctx, info.ID, move)
		if err != nil {
			t.Fatalf("Find(%v) error = %v", move, err)
		}
		if got != want {
			t.Errorf("Find(%v) = %v, want %v", move, got, want)
		}
	}
}

func TestRegistryService_DuplicateInsert(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()
	info := mustCreate(t, s, 1)

	s.Insert(ctx, info.ID, domain.Move{1, 1})
	r, _ := s.Insert(ctx, info.ID, domain.Move{1, 1})
	if r.Inserted || r.Evicted != nil {
		t.Errorf("duplicate Insert() = %+v, want not inserted and no eviction", r)
	}

	got, _ := s.GetList(ctx, info.ID)
	if got.Size != 1 {
		t.Errorf("Size = %d, want 1", got.Size)
	}
}

func TestRegistryService_ZeroCapacityList(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()
	info := mustCreate(t, s, 0)

	r, _ := s.Insert(ctx, info.ID, domain.Move{1, 1})
	if !r.Inserted || r.Evicted == nil || *r.Evicted != (domain.Move{1, 1}) {
		t.Errorf("Insert() on zero capacity = %+v, want self eviction", r)
	}
	if found, _ := s.Find(ctx, info.ID, domain.Move{1, 1}); found {
		t.Error("Find() = true on zero capacity list, want false")
	}
}

func TestRegistryService_InsertBatchPreservesOrder(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()
	info := mustCreate(t, s, 3)

	moves := []domain.Move{{1, 0}, {2, 0}, {1, 0}, {3, 0}, {4, 0}}
	results, err := s.InsertBatch(ctx, info.ID, moves)
	if err != nil {
		t.Fatalf("InsertBatch() error = %v", err)
	}
	if len(results) != len(moves) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(moves))
	}
	if results[2].Inserted {
		t.Error("repeated (1,0) within the batch should be a duplicate")
	}
	if results[4].Evicted == nil || *results[4].Evicted != (domain.Move{1, 0}) {
		t.Errorf("results[4].Evicted = %v, want (1,0)", results[4].Evicted)
	}

	items, _ := s.Items(ctx, info.ID)
	want := []domain.Move{{2, 0}, {3, 0}, {4, 0}}
	if !slices.Equal(items, want) {
		t.Errorf("Items() = %v, want %v", items, want)
	}
}

func TestRegistryService_FilterAllowed(t *testing.T) {
	s := newTestService(t, Options{})
	ctx := context.Background()
	info := mustCreate(t, s, 4)

	s.InsertBatch(ctx, info.ID, []domain.Move{{0, 1}, {0, 3}})

	candidates := []domain.Move{{0, 1}, {0, 2}, {0, 3}, {0, 4}}
	allowed, err := s.FilterAllowed(ctx, info.ID, candidates)
	if err != nil {
		t.Fatalf("FilterAllowed() error = %v", err)
	}

	want := []domain.Move{{0, 2}, {0, 4}}
	if !slices.Equal(allowed, want) {
		t.Errorf("FilterAllowed() = %v, want %v", allowed, want)
	}

	// Filtering is a query and must not change eviction order.
	items, _ := s.Items(ctx, info.ID)
	if !slices.Equal(items, []domain.Move{{0, 1}, {0, 3}}) {
		t.Errorf("Items() = %v after filter, want unchanged", items)
	}
}

func TestRegistryService_ResetList(t *testing.T) {
	s := newTestService(t, Options{MaxCapacity: 8})
	ctx := context.Background()
	info := mustCreate(t, s, 2)

	s.InsertBatch(ctx, info.ID, []domain.Move{{1, 1}, {2, 2}})

	got, err := s.ResetList(ctx, info.ID, nil)
	if err != nil {
		t.Fatalf("ResetList() error = %v", err)
	}
	if got.Size != 0 || got.Capacity != 2 {
		t.Errorf("ResetList(nil) = size %d capacity %d, want 0 and 2", got.Size, got.Capacity)
	}
	if found, _ := s.Find(ctx, info.ID, domain.Move{1, 1}); found {
		t.Error("Find() = true after reset, want false")
	}

	capacity := 5
	got, err = s.ResetList(ctx, info.ID, &capacity)
	if err != nil {
		t.Fatalf("ResetList(5) error = %v", err)
	}
	if got.Capacity != 5 {
		t.Errorf("Capacity = %d, want 5", got.Capacity)
	}

	tooBig := 9
	if _, err := s.ResetList(ctx, info.ID, &tooBig); !errors.Is(err, ErrCapacityTooLarge) {
		t.Errorf("ResetList(9) error = %v, want ErrCapacityTooLarge", err)
	}
	// A rejected reset leaves the list untouched.
	got, _ = s.GetList(ctx, info.ID)
	if got.Capacity != 5 {
		t.Errorf("Capacity = %d after rejected reset, want 5", got.Capacity)
	}
}

func TestRegistryService_ListsOrderedByCreation(t *testing.T) {
	s := newTestService(t, Options{})
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	var ids []string
	for i := range 3 {
		info, err := s.CreateList(context.Background(), fmt.Sprintf("list-%d", i), 1)
		if err != nil {
			t.Fatalf("CreateList() error = %v", err)
		}
		ids = append(ids, info.ID)
	}

	lists := s.Lists(context.Background())
	if len(lists) != 3 {
		t.Fatalf("len(Lists()) = %d, want 3", len(lists))
	}
	for i, info := range lists {
		if info.ID != ids[i] {
			t.Errorf("Lists()[%d].ID = %s, want %s", i, info.ID, ids[i])
		}
	}
}

func TestRegistryService_SweepIdle(t *testing.T) {
	publisher := &recordingPublisher{}
	s := NewRegistryService(Options{IdleTTL: time.Minute}, nil, publisher, nil)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	idle := mustCreate(t, s, 1)
	active := mustCreate(t, s, 1)

	now = now.Add(50 * time.Second)
	s.Find(ctx, active.ID, domain.Move{0, 0})

	now = now.Add(20 * time.Second)
	if n := s.SweepIdle(ctx); n != 1 {
		t.Errorf("SweepIdle() = %d, want 1", n)
	}

	if _, err := s.GetList(ctx, idle.ID); !errors.Is(err, ErrListNotFound) {
		t.Errorf("idle list should be expired, GetList() error = %v", err)
	}
	if _, err := s.GetList(ctx, active.ID); err != nil {
		t.Errorf("active list should survive, GetList() error = %v", err)
	}

	want := []events.Type{events.TypeCreated, events.TypeCreated, events.TypeExpired}
	if got := publisher.types(); !slices.Equal(got, want) {
		t.Errorf("published = %v, want %v", got, want)
	}
}

func TestRegistryService_SweepDisabled(t *testing.T) {
	s := newTestService(t, Options{})
	mustCreate(t, s, 1)

	s.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	if n := s.SweepIdle(context.Background()); n != 0 {
		t.Errorf("SweepIdle() = %d with expiry disabled, want 0", n)
	}
}

func TestRegistryService_LifecycleEvents(t *testing.T) {
	publisher := &recordingPublisher{}
	s := NewRegistryService(Options{}, nil, publisher, nil)
	ctx := context.Background()

	info := mustCreate(t, s, 3)
	s.ResetList(ctx, info.ID, nil)
	s.DeleteList(ctx, info.ID)

	want := []events.Type{events.TypeCreated, events.TypeReset, events.TypeDeleted}
	if got := publisher.types(); !slices.Equal(got, want) {
		t.Errorf("published = %v, want %v", got, want)
	}
	for _, e := range publisher.events {
		if e.ListID != info.ID || e.Capacity != 3 {
			t.Errorf("event %+v does not describe list %s", e, info.ID)
		}
	}
}

func TestRegistryService_PublishFailureDoesNotFail(t *testing.T) {
	publisher := &recordingPublisher{err: errors.New("nats down")}
	metrics := createTestMetrics(t)
	failures := &mockMetricCounter{}
	metrics.EventPublishFailure = failures

	s := NewRegistryService(Options{}, metrics, publisher, nil)

	if _, err := s.CreateList(context.Background(), "x", 1); err != nil {
		t.Errorf("CreateList() error = %v, want nil when publishing fails", err)
	}
	if failures.count.Load() != 1 {
		t.Errorf("publish failure counter = %d, want 1", failures.count.Load())
	}
}

func TestRegistryService_MetricsIncremented(t *testing.T) {
	metrics := createTestMetrics(t)
	inserts := &mockMetricCounter{}
	duplicates := &mockMetricCounter{}
	evictions := &mockMetricCounter{}
	hits := &mockMetricCounter{}
	misses := &mockMetricCounter{}
	metrics.TabuInserts = inserts
	metrics.TabuDuplicates = duplicates
	metrics.TabuEvictions = evictions
	metrics.TabuHits = hits
	metrics.TabuMisses = misses

	s := NewRegistryService(Options{}, metrics, nil, nil)
	ctx := context.Background()
	info := mustCreate(t, s, 1)

	s.Insert(ctx, info.ID, domain.Move{1, 1})
	s.Insert(ctx, info.ID, domain.Move{1, 1})
	s.Insert(ctx, info.ID, domain.Move{2, 2})
	s.Find(ctx, info.ID, domain.Move{2, 2})
	s.Find(ctx, info.ID, domain.Move{1, 1})
	s.FilterAllowed(ctx, info.ID, []domain.Move{{2, 2}, {3, 3}, {4, 4}})

	checks := []struct {
		name    string
		counter *mockMetricCounter
		want    int64
	}{
		{"inserts", inserts, 2},
		{"duplicates", duplicates, 1},
		{"evictions", evictions, 1},
		{"hits", hits, 2},
		{"misses", misses, 3},
	}
	for _, c := range checks {
		if got := c.counter.count.Load(); got != c.want {
			t.Errorf("%s counter = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestRegistryService_NilMetrics(t *testing.T) {
	// Service should work fine with nil metrics
	s := newTestService(t, Options{})
	ctx := context.Background()
	info := mustCreate(t, s, 1)

	s.Insert(ctx, info.ID, domain.Move{1, 1})
	s.Insert(ctx, info.ID, domain.Move{2, 2})
	s.Find(ctx, info.ID, domain.Move{1, 1})
	s.DeleteList(ctx, info.ID)
}

func TestRegistryService_ConcurrentAccess(t *testing.T) {
	const capacity = 16
	s := newTestService(t, Options{})
	ctx := context.Background()
	info := mustCreate(t, s, capacity)

	const goroutines = 50
	const movesPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := range goroutines {
		go func(id int) {
			defer wg.Done()
			for j := range movesPerGoroutine {
				m := domain.Move{int64(id), int64(j % 20)}
				s.Insert(ctx, info.ID, m)
				s.Find(ctx, info.ID, m)
			}
		}(i)
	}
	wg.Wait()

	got, _ := s.GetList(ctx, info.ID)
	if got.Size != capacity {
		t.Errorf("Size = %d, want %d", got.Size, capacity)
	}
}

func TestRegistryService_SnapshotConsistentUnderInserts(t *testing.T) {
	const capacity = 64
	s := newTestService(t, Options{})
	ctx := context.Background()
	info := mustCreate(t, s, capacity)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := int64(0); ; i++ {
			select {
			case <-done:
				return
			default:
				s.Insert(ctx, info.ID, domain.Move{i, 0})
			}
		}
	}()

	for range 500 {
		got, items, err := s.Snapshot(ctx, info.ID)
		if err != nil {
			close(done)
			wg.Wait()
			t.Fatalf("Snapshot() error = %v", err)
		}
		if got.Size != len(items) {
			close(done)
			wg.Wait()
			t.Fatalf("Snapshot() Size = %d, len(items) = %d", got.Size, len(items))
		}
	}
	close(done)
	wg.Wait()
}

func TestRegistryService_StartStop(t *testing.T) {
	s := newTestService(t, Options{IdleTTL: 20 * time.Millisecond, SweepInterval: 10 * time.Millisecond})
	info := mustCreate(t, s, 1)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	// Give the sweeper time to expire the untouched list.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := s.GetList(ctx, info.ID); errors.Is(err, ErrListNotFound) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := s.GetList(ctx, info.ID); !errors.Is(err, ErrListNotFound) {
		t.Error("idle list was not expired by the background sweep")
	}

	// Stop should work without hanging
	done := make(chan struct{})
	go func() {
		cancel()
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
		// Success
	case <-time.After(2 * time.Second):
		t.Error("Stop() took too long, may be hanging")
	}
}

func TestRegistryService_StopWithoutStart(t *testing.T) {
	s := newTestService(t, Options{})

	done := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Stop() without Start() blocked")
	}
}
