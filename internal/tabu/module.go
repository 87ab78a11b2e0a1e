package tabu

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/SebastienMelki/tabu/internal/observability"
	"github.com/SebastienMelki/tabu/internal/tabu/internal/domain"
	"github.com/SebastienMelki/tabu/internal/tabu/internal/handler"
	"github.com/SebastienMelki/tabu/internal/tabu/internal/service"
)

// Move is a forbidden move, a pair of int64 coordinates.
type Move = domain.Move

// ListInfo describes a registered tabu list.
type ListInfo = domain.ListInfo

// InsertResult reports whether a move was accepted and what it evicted.
type InsertResult = service.InsertResult

// EventPublisher receives list lifecycle events. *nats.Publisher satisfies it.
type EventPublisher = service.EventPublisher

// Config holds the tabu module configuration.
//
// Environment variable overrides:
//   - TABU_DEFAULT_CAPACITY: capacity used when a create request omits one (default: 16)
//   - TABU_MAX_CAPACITY:     largest capacity a list may have (default: 1000000)
//   - TABU_MAX_LISTS:        maximum number of live lists (default: 10000)
//   - TABU_IDLE_TTL:         lists unused this long are dropped, 0 disables (default: 30m)
//   - TABU_SWEEP_INTERVAL:   how often idle lists are looked for (default: 1m)
type Config struct {
	DefaultCapacity int           `env:"TABU_DEFAULT_CAPACITY" envDefault:"16"`
	MaxCapacity     int           `env:"TABU_MAX_CAPACITY"     envDefault:"1000000"`
	MaxLists        int           `env:"TABU_MAX_LISTS"        envDefault:"10000"`
	IdleTTL         time.Duration `env:"TABU_IDLE_TTL"         envDefault:"30m"`
	SweepInterval   time.Duration `env:"TABU_SWEEP_INTERVAL"   envDefault:"1m"`
}

// DefaultConfig returns the default tabu configuration.
func DefaultConfig() Config {
	return Config{
		DefaultCapacity: 16,
		MaxCapacity:     1_000_000,
		MaxLists:        10_000,
		IdleTTL:         30 * time.Minute,
		SweepInterval:   time.Minute,
	}
}

// Module is the tabu module facade. It wires the registry service to its
// HTTP handler and exposes the public API to the rest of the system.
type Module struct {
	svc     *service.RegistryService
	handler *handler.ListHandler
}

var _ Registry = (*Module)(nil)

// New creates a new tabu Module. The metrics and publisher parameters are
// optional (pass nil to disable them).
func New(cfg Config, metrics *observability.Metrics, publisher EventPublisher, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("module", "tabu")

	svc := service.NewRegistryService(service.Options{
		MaxCapacity:   cfg.MaxCapacity,
		MaxLists:      cfg.MaxLists,
		IdleTTL:       cfg.IdleTTL,
		SweepInterval: cfg.SweepInterval,
	}, metrics, publisher, logger)

	return &Module{
		svc:     svc,
		handler: handler.NewListHandler(svc, cfg.DefaultCapacity, logger),
	}
}

// Start begins the background idle list sweep.
func (m *Module) Start(ctx context.Context) {
	m.svc.Start(ctx)
}

// Stop signals the sweep goroutine to stop and waits for completion.
func (m *Module) Stop() {
	m.svc.Stop()
}

// CreateList registers a new empty list.
func (m *Module) CreateList(ctx context.Context, name string, capacity int) (ListInfo, error) {
	return m.svc.CreateList(ctx, name, capacity)
}

// GetList returns the current state of a list.
func (m *Module) GetList(ctx context.Context, id string) (ListInfo, error) {
	return m.svc.GetList(ctx, id)
}

// Lists returns every registered list, oldest first.
func (m *Module) Lists(ctx context.Context) []ListInfo {
	return m.svc.Lists(ctx)
}

// DeleteList removes a list.
func (m *Module) DeleteList(ctx context.Context, id string) error {
	return m.svc.DeleteList(ctx, id)
}

// ResetList empties a list. A nil capacity keeps the current one.
func (m *Module) ResetList(ctx context.Context, id string, capacity *int) (ListInfo, error) {
	return m.svc.ResetList(ctx, id, capacity)
}

// IsTabu reports whether move is currently forbidden in the list.
func (m *Module) IsTabu(ctx context.Context, id string, move Move) (bool, error) {
	return m.svc.Find(ctx, id, move)
}

// Insert marks move as tabu.
func (m *Module) Insert(ctx context.Context, id string, move Move) (InsertResult, error) {
	return m.svc.Insert(ctx, id, move)
}

// FilterAllowed returns the candidates that are not tabu, order preserved.
func (m *Module) FilterAllowed(ctx context.Context, id string, candidates []Move) ([]Move, error) {
	return m.svc.FilterAllowed(ctx, id, candidates)
}

// RegisterRoutes mounts the tabu list HTTP API on mux.
func (m *Module) RegisterRoutes(mux *http.ServeMux) {
	m.handler.RegisterRoutes(mux)
}
