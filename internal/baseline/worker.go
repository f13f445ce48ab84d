package baseline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Worker periodically recomputes baselines for entities with recent
// activity and serves them from an in-memory cache. It is the only writer
// of baselines; agents only read through the Provider interface.
type Worker struct {
	store    Store
	logger   *slog.Logger
	interval time.Duration
	stop     chan struct{}
	running  atomic.Bool

	mu    sync.RWMutex
	cache map[string]*EntityBaseline
}

// NewWorker creates an hourly baseline recomputation worker.
func NewWorker(store Store, logger *slog.Logger) *Worker {
	return &Worker{
		store:    store,
		logger:   logger,
		interval: 1 * time.Hour,
		stop:     make(chan struct{}),
		cache:    make(map[string]*EntityBaseline),
	}
}

// WithInterval overrides the recomputation interval (used in tests).
func (w *Worker) WithInterval(d time.Duration) *Worker {
	w.interval = d
	return w
}

// Get implements Provider. Returns nil when the entity has no baseline.
func (w *Worker) Get(entityID string) *EntityBaseline {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cache[entityID]
}

// Record appends an observation. Best-effort: a store failure is logged
// and must never affect the analysis that produced the observation.
func (w *Worker) Record(ctx context.Context, obs *Observation) {
	if err := w.store.AppendObservation(ctx, obs); err != nil {
		w.logger.Warn("failed to record baseline observation",
			"entity_id", obs.EntityID, "error", err)
	}
}

// Running reports whether the worker loop is active.
func (w *Worker) Running() bool {
	return w.running.Load()
}

// Start loads persisted baselines into the cache, then recomputes on the
// configured interval until ctx is done or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)

	w.safeDo(ctx, w.load)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			w.safeDo(ctx, w.recompute)
		}
	}
}

// Stop signals the worker to stop.
func (w *Worker) Stop() {
	select {
	case w.stop <- struct{}{}:
	default:
	}
}

func (w *Worker) safeDo(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic in baseline worker", "panic", fmt.Sprint(r))
		}
	}()
	fn(ctx)
}

func (w *Worker) load(ctx context.Context) {
	baselines, err := w.store.AllBaselines(ctx)
	if err != nil {
		w.logger.Error("failed to load baselines", "error", err)
		return
	}

	cache := make(map[string]*EntityBaseline, len(baselines))
	for _, b := range baselines {
		cache[b.EntityID] = b
	}

	w.mu.Lock()
	w.cache = cache
	w.mu.Unlock()
	w.logger.Info("baselines loaded", "count", len(cache))
}

// recompute rebuilds baselines for entities active inside the history
// window, then prunes observations that aged out of it.
func (w *Worker) recompute(ctx context.Context) {
	since := time.Now().Add(-historyDays * 24 * time.Hour)

	entities, err := w.store.EntitiesWithObservations(ctx, since)
	if err != nil {
		w.logger.Error("failed to list active entities", "error", err)
		return
	}

	updated := make([]*EntityBaseline, 0, len(entities))
	for _, id := range entities {
		observations, err := w.store.ObservationsSince(ctx, id, since)
		if err != nil {
			w.logger.Warn("failed to load observations", "entity_id", id, "error", err)
			continue
		}
		if b := Compute(id, observations); b != nil {
			updated = append(updated, b)
		}
	}

	if len(updated) > 0 {
		if err := w.store.SaveBaselines(ctx, updated); err != nil {
			w.logger.Error("failed to persist baselines", "error", err)
		}
		w.mu.Lock()
		for _, b := range updated {
			w.cache[b.EntityID] = b
		}
		w.mu.Unlock()
	}

	if err := w.store.PruneObservations(ctx, since.Add(-24*time.Hour)); err != nil {
		w.logger.Warn("failed to prune observations", "error", err)
	}

	w.logger.Info("baselines recomputed", "entities", len(updated))
}
