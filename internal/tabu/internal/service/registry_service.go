// Package service implements the tabu list registry. It owns many bounded
// tabu queues, serializes access to each of them, expires idle lists and
// reports metrics and lifecycle events.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/SebastienMelki/tabu/internal/events"
	"github.com/SebastienMelki/tabu/internal/observability"
	"github.com/SebastienMelki/tabu/internal/tabu/internal/domain"
)

// Sentinel errors for the registry service.
var (
	ErrListNotFound     = errors.New("tabu list not found")
	ErrCapacityTooLarge = errors.New("capacity exceeds maximum")
	ErrTooManyLists     = errors.New("too many tabu lists")
)

// EventPublisher receives list lifecycle events.
type EventPublisher interface {
	PublishListEvent(ctx context.Context, event events.ListEvent) error
}

// Options bounds the registry. Zero MaxCapacity or MaxLists means no limit,
// zero IdleTTL disables expiry.
type Options struct {
	MaxCapacity   int
	MaxLists      int
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// InsertResult describes the outcome of inserting one move.
type InsertResult struct {
	Move     domain.Move  `json:"move"`
	Inserted bool         `json:"inserted"`
	Evicted  *domain.Move `json:"evicted,omitempty"`
}

// list is one registry entry. mu guards queue and lastUsed.
type list struct {
	id        string
	name      string
	createdAt time.Time

	mu       sync.Mutex
	queue    *domain.BoundedDedupQueue[domain.Move]
	lastUsed time.Time
}

func (l *list) info() domain.ListInfo {
	return domain.ListInfo{
		ID:         l.id,
		Name:       l.name,
		Capacity:   l.queue.Cap(),
		Size:       l.queue.Len(),
		CreatedAt:  l.createdAt,
		LastUsedAt: l.lastUsed,
	}
}

// RegistryService manages named tabu lists.
type RegistryService struct {
	opts      Options
	metrics   *observability.Metrics
	publisher EventPublisher
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.RWMutex
	lists map[string]*list

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewRegistryService creates an empty registry. The metrics and publisher
// parameters are optional (nil disables them).
func NewRegistryService(
	opts Options,
	metrics *observability.Metrics,
	publisher EventPublisher,
	logger *slog.Logger,
) *RegistryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RegistryService{
		opts:      opts,
		metrics:   metrics,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		lists:     make(map[string]*list),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (s *RegistryService) newQueue(capacity int) (*domain.BoundedDedupQueue[domain.Move], error) {
	if s.opts.MaxCapacity > 0 && capacity > s.opts.MaxCapacity {
		return nil, fmt.Errorf("%w: %d > %d", ErrCapacityTooLarge, capacity, s.opts.MaxCapacity)
	}
	return domain.NewBoundedDedupQueue[domain.Move](capacity)
}

// CreateList registers a new empty tabu list. An empty name defaults to the
// generated id.
func (s *RegistryService) CreateList(ctx context.Context, name string, capacity int) (domain.ListInfo, error) {
	queue, err := s.newQueue(capacity)
	if err != nil {
		return domain.ListInfo{}, err
	}

	id := uuid.Must(uuid.NewV7()).String()
	if name == "" {
		name = id
	}
	now := s.now()
	l := &list{
		id:        id,
		name:      name,
		createdAt: now,
		queue:     queue,
		lastUsed:  now,
	}

	s.mu.Lock()
	if s.opts.MaxLists > 0 && len(s.lists) >= s.opts.MaxLists {
		s.mu.Unlock()
		return domain.ListInfo{}, fmt.Errorf("%w: limit is %d", ErrTooManyLists, s.opts.MaxLists)
	}
	s.lists[id] = l
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.TabuLists.Add(ctx, 1)
	}
	s.logger.Info("tabu list created", "list_id", id, "name", name, "capacity", capacity)

	info := l.info()
	s.publish(ctx, events.TypeCreated, info)

	return info, nil
}

func (s *RegistryService) lookup(id string) (*list, error) {
	s.mu.RLock()
	l, ok := s.lists[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrListNotFound, id)
	}
	return l, nil
}

// GetList returns the current state of a list.
func (s *RegistryService) GetList(_ context.Context, id string) (domain.ListInfo, error) {
	l, err := s.lookup(id)
	if err != nil {
		return domain.ListInfo{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info(), nil
}

// Items returns the moves currently held by a list, oldest first.
func (s *RegistryService) Items(_ context.Context, id string) ([]domain.Move, error) {
	l, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Items(), nil
}

// Snapshot returns a list's state together with its moves, oldest first,
// read under a single lock so Size always matches len(items).
func (s *RegistryService) Snapshot(_ context.Context, id string) (domain.ListInfo, []domain.Move, error) {
	l, err := s.lookup(id)
	if err != nil {
		return domain.ListInfo{}, nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.info(), l.queue.Items(), nil
}

// Lists returns every registered list ordered by creation time.
func (s *RegistryService) Lists(_ context.Context) []domain.ListInfo {
	s.mu.RLock()
	entries := make([]*list, 0, len(s.lists))
	for _, l := range s.lists {
		entries = append(entries, l)
	}
	s.mu.RUnlock()

	infos := make([]domain.ListInfo, 0, len(entries))
	for _, l := range entries {
		l.mu.Lock()
		infos = append(infos, l.info())
		l.mu.Unlock()
	}

	slices.SortFunc(infos, func(a, b domain.ListInfo) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		// UUIDv7 ids sort by creation time as well.
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	return infos
}

// DeleteList removes a list from the registry.
func (s *RegistryService) DeleteList(ctx context.Context, id string) error {
	s.mu.Lock()
	l, ok := s.lists[id]
	if ok {
		delete(s.lists, id)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrListNotFound, id)
	}

	if s.metrics != nil {
		s.metrics.TabuLists.Add(ctx, -1)
	}
	s.logger.Info("tabu list deleted", "list_id", id)

	l.mu.Lock()
	info := l.info()
	l.mu.Unlock()
	s.publish(ctx, events.TypeDeleted, info)

	return nil
}

// ResetList replaces the list's contents with a fresh empty queue. A nil
// capacity keeps the current capacity.
func (s *RegistryService) ResetList(ctx context.Context, id string, capacity *int) (domain.ListInfo, error) {
	l, err := s.lookup(id)
	if err != nil {
		return domain.ListInfo{}, err
	}

	l.mu.Lock()
	newCapacity := l.queue.Cap()
	if capacity != nil {
		newCapacity = *capacity
	}
	queue, err := s.newQueue(newCapacity)
	if err != nil {
		l.mu.Unlock()
		return domain.ListInfo{}, err
	}
	l.queue = queue
	l.lastUsed = s.now()
	info := l.info()
	l.mu.Unlock()

	s.logger.Debug("tabu list reset", "list_id", id, "capacity", newCapacity)
	s.publish(ctx, events.TypeReset, info)

	return info, nil
}

// Find reports whether move is currently tabu in the list.
func (s *RegistryService) Find(ctx context.Context, id string, move domain.Move) (bool, error) {
	l, err := s.lookup(id)
	if err != nil {
		return false, err
	}

	l.mu.Lock()
	found := l.queue.Find(move)
	l.lastUsed = s.now()
	l.mu.Unlock()

	s.recordFind(ctx, found)
	return found, nil
}

// FilterAllowed returns the candidates that are not tabu, in their
// original order.
func (s *RegistryService) FilterAllowed(ctx context.Context, id string, candidates []domain.Move) ([]domain.Move, error) {
	l, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	allowed := make([]domain.Move, 0, len(candidates))

	l.mu.Lock()
	for _, m := range candidates {
		if !l.queue.Find(m) {
			allowed = append(allowed, m)
		}
	}
	l.lastUsed = s.now()
	l.mu.Unlock()

	if s.metrics != nil {
		s.metrics.TabuHits.Add(ctx, int64(len(candidates)-len(allowed)))
		s.metrics.TabuMisses.Add(ctx, int64(len(allowed)))
	}

	return allowed, nil
}

// Insert marks move as tabu, evicting the oldest move if the list is full.
func (s *RegistryService) Insert(ctx context.Context, id string, move domain.Move) (InsertResult, error) {
	results, err := s.InsertBatch(ctx, id, []domain.Move{move})
	if err != nil {
		return InsertResult{}, err
	}
	return results[0], nil
}

// InsertBatch inserts moves in order while holding the list lock once.
func (s *RegistryService) InsertBatch(ctx context.Context, id string, moves []domain.Move) ([]InsertResult, error) {
	l, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	results := make([]InsertResult, len(moves))

	l.mu.Lock()
	for i, m := range moves {
		results[i] = insertOne(l.queue, m)
	}
	l.lastUsed = s.now()
	l.mu.Unlock()

	for _, r := range results {
		s.recordInsert(ctx, id, r)
	}

	return results, nil
}

func insertOne(q *domain.BoundedDedupQueue[domain.Move], m domain.Move) InsertResult {
	if q.Find(m) {
		return InsertResult{Move: m}
	}
	result := InsertResult{Move: m, Inserted: true}
	if evicted, ok := q.Insert(m); ok {
		result.Evicted = &evicted
	}
	return result
}

func (s *RegistryService) recordFind(ctx context.Context, found bool) {
	if s.metrics == nil {
		return
	}
	if found {
		s.metrics.TabuHits.Add(ctx, 1)
	} else {
		s.metrics.TabuMisses.Add(ctx, 1)
	}
}

func (s *RegistryService) recordInsert(ctx context.Context, id string, r InsertResult) {
	if !r.Inserted {
		if s.metrics != nil {
			s.metrics.TabuDuplicates.Add(ctx, 1)
		}
		return
	}

	if s.metrics != nil {
		s.metrics.TabuInserts.Add(ctx, 1)
		if r.Evicted != nil {
			s.metrics.TabuEvictions.Add(ctx, 1)
		}
	}
	if r.Evicted != nil {
		s.logger.Debug("tabu move evicted", "list_id", id, "move", r.Move, "evicted", *r.Evicted)
	}
}

func (s *RegistryService) publish(ctx context.Context, typ events.Type, info domain.ListInfo) {
	if s.publisher == nil {
		return
	}

	event := events.ListEvent{
		Type:       typ,
		ListID:     info.ID,
		Name:       info.Name,
		Capacity:   info.Capacity,
		OccurredAt: s.now().UTC(),
	}

	if err := s.publisher.PublishListEvent(ctx, event); err != nil {
		if s.metrics != nil {
			s.metrics.EventPublishFailure.Add(ctx, 1)
		}
		s.logger.Warn("failed to publish list event",
			"list_id", info.ID,
			"type", typ,
			"error", err,
		)
		return
	}

	if s.metrics != nil {
		s.metrics.EventsPublished.Add(ctx, 1)
	}
}

// SweepIdle removes every list whose last use is older than the idle TTL
// and returns how many were removed.
func (s *RegistryService) SweepIdle(ctx context.Context) int {
	if s.opts.IdleTTL <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.opts.IdleTTL)

	var expired []domain.ListInfo

	s.mu.Lock()
	for id, l := range s.lists {
		l.mu.Lock()
		if l.lastUsed.Before(cutoff) {
			expired = append(expired, l.info())
			delete(s.lists, id)
		}
		l.mu.Unlock()
	}
	s.mu.Unlock()

	for _, info := range expired {
		if s.metrics != nil {
			s.metrics.TabuLists.Add(ctx, -1)
		}
		s.logger.Info("tabu list expired", "list_id", info.ID, "idle_since", info.LastUsedAt)
		s.publish(ctx, events.TypeExpired, info)
	}

	return len(expired)
}

// Start launches the background goroutine that expires idle lists every
// sweep interval. It does nothing when expiry is disabled. The goroutine
// stops when ctx is cancelled or Stop is called.
func (s *RegistryService) Start(ctx context.Context) {
	if s.opts.IdleTTL <= 0 || s.opts.SweepInterval <= 0 {
		s.logger.Info("tabu registry started, idle expiry disabled")
		return
	}

	s.startOnce.Do(func() {
		s.started.Store(true)
		s.logger.Info("tabu registry started",
			"idle_ttl", s.opts.IdleTTL,
			"sweep_interval", s.opts.SweepInterval,
		)

		go func() {
			defer close(s.doneCh)
			ticker := time.NewTicker(s.opts.SweepInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					if n := s.SweepIdle(ctx); n > 0 {
						s.logger.Debug("idle sweep finished", "expired", n)
					}
				case <-ctx.Done():
					s.logger.Info("tabu registry stopping (context cancelled)")
					return
				case <-s.stopCh:
					s.logger.Info("tabu registry stopping (stop requested)")
					return
				}
			}
		}()
	})
}

// Stop signals the sweep goroutine to stop and waits for it to finish.
// It is safe to call more than once and without a prior Start.
func (s *RegistryService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	if s.started.Load() {
		<-s.doneCh
	}
}
