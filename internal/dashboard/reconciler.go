package dashboard

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campusport/achievement-api/internal/models"
)

// Fetcher returns the claim set currently visible to the dashboard's actor.
type Fetcher interface {
	FetchClaims(ctx context.Context) ([]models.AchievementClaim, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context) ([]models.AchievementClaim, error)

// FetchClaims implements Fetcher.
func (f FetcherFunc) FetchClaims(ctx context.Context) ([]models.AchievementClaim, error) {
	return f(ctx)
}

// Subscriber receives the change events derived from each successful fetch.
// It is called from the reconciler goroutine; implementations must not block.
type Subscriber func(events []ChangeEvent)

// Config tunes the reconciliation loop.
type Config struct {
	Interval           time.Duration
	TickTimeout        time.Duration
	IncludeSubmissions bool
	Logger             *zap.Logger
}

// Reconciler keeps a dashboard snapshot converged with the server by polling
// on a fixed interval. Ticks are serialized on a single goroutine; a slow
// fetch delays the next tick rather than overlapping it. Failed fetches keep
// the last good snapshot, and local review results can be applied
// optimistically until a fetch confirms them.
type Reconciler struct {
	fetcher    Fetcher
	subscriber Subscriber
	interval   time.Duration
	timeout    time.Duration
	submission bool
	logger     *zap.Logger

	mu          sync.Mutex
	snapshot    map[string]models.AchievementClaim
	overlay     map[string]models.AchievementClaim
	fetchedAt   time.Time
	hasBaseline bool

	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReconciler constructs a stopped reconciler.
func NewReconciler(fetcher Fetcher, subscriber Subscriber, cfg Config) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Second
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		fetcher:    fetcher,
		subscriber: subscriber,
		interval:   cfg.Interval,
		timeout:    cfg.TickTimeout,
		submission: cfg.IncludeSubmissions,
		logger:     logger,
		overlay:    make(map[string]models.AchievementClaim),
	}
}

// Start launches the polling goroutine. The first tick runs immediately and
// establishes the baseline snapshot without emitting events.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run()
	r.logger.Info("dashboard reconciler started",
		zap.Duration("interval", r.interval),
		zap.Duration("tick_timeout", r.timeout))
}

// Stop cancels the loop and waits for the in-flight tick to finish. A fetch
// result that lands after cancellation is discarded, never applied.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	cancel := r.cancel
	r.mu.Unlock()

	cancel()
	r.wg.Wait()
	r.logger.Info("dashboard reconciler stopped")
}

func (r *Reconciler) run() {
	defer r.wg.Done()

	r.tick()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Reconciler) tick() {
	tickCtx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()

	claims, err := r.fetcher.FetchClaims(tickCtx)
	if err != nil {
		r.logger.Debug("reconciliation fetch failed, keeping last snapshot", zap.Error(err))
		return
	}
	if r.ctx.Err() != nil {
		return
	}
	r.apply(claims)
}

// RunOnce performs a single foreground fetch-and-apply, outside the polling
// schedule. Used for pull-to-refresh style requests.
func (r *Reconciler) RunOnce(ctx context.Context) error {
	claims, err := r.fetcher.FetchClaims(ctx)
	if err != nil {
		return err
	}
	r.apply(claims)
	return nil
}

func (r *Reconciler) apply(claims []models.AchievementClaim) {
	next := Keyed(claims)

	r.mu.Lock()
	var events []ChangeEvent
	if r.hasBaseline {
		events = DeriveEvents(r.snapshot, next, DiffOptions{IncludeSubmissions: r.submission})
	}
	r.snapshot = next
	r.hasBaseline = true
	r.fetchedAt = time.Now().UTC()

	// Server data confirms or supersedes optimistic entries. A fetch that
	// does not contain the id yet raced the write; the entry stays until a
	// fetch actually reports the claim.
	for id, local := range r.overlay {
		current, ok := next[id]
		if !ok {
			continue
		}
		if local.Status.Terminal() && !current.Status.Terminal() {
			// Server is behind the local review result; keep the overlay.
			continue
		}
		delete(r.overlay, id)
	}
	subscriber := r.subscriber
	r.mu.Unlock()

	if subscriber != nil && len(events) > 0 {
		subscriber(events)
	}
}

// ApplyOptimistic overlays a locally known result, a fresh submission or a
// review decision, on top of the snapshot so the dashboard reflects it before
// the next poll confirms it.
func (r *Reconciler) ApplyOptimistic(claim models.AchievementClaim) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overlay[claim.ID] = claim
}

// Snapshot returns the current claim view, optimistic overlay included,
// ordered by submission time descending.
func (r *Reconciler) Snapshot() []models.AchievementClaim {
	r.mu.Lock()
	merged := make([]models.AchievementClaim, 0, len(r.snapshot)+len(r.overlay))
	for id, claim := range r.snapshot {
		if local, ok := r.overlay[id]; ok {
			claim = local
		}
		merged = append(merged, claim)
	}
	// Optimistic entries the server has not returned yet, such as a claim
	// submitted moments ago, still belong in the view.
	for id, local := range r.overlay {
		if _, ok := r.snapshot[id]; !ok {
			merged = append(merged, local)
		}
	}
	r.mu.Unlock()

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].SubmittedAt.After(merged[j].SubmittedAt)
	})
	return merged
}

// LastFetched reports when the baseline snapshot was last refreshed. The zero
// time means no fetch has succeeded yet.
func (r *Reconciler) LastFetched() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetchedAt
}
