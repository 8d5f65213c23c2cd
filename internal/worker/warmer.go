package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/rickandmorty-sync/internal/core/domain"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driven"
	"github.com/custodia-labs/rickandmorty-sync/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.Warmer = (*Warmer)(nil)

const (
	warmLockName       = "warm"
	defaultWarmLockTTL = 5 * time.Minute
)

// Target refreshes a domain when its cache has gone stale.
type Target interface {
	Warm(ctx context.Context, d domain.Domain) (domain.InitializeAction, *domain.LoadResult, error)
}

// Warmer runs the launch-time staleness check of every domain on a timer so
// the offline cache stays within its timeout while nobody is reading it.
type Warmer struct {
	target  Target
	states  driven.WarmStateStore
	lock    driven.DistributedLock
	runtime *domain.RuntimeConfig
	logger  *slog.Logger

	domains    []domain.Domain
	interval   time.Duration
	lockTTL    time.Duration
	runOnStart bool
	now        func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WarmerConfig holds configuration for the warmer.
type WarmerConfig struct {
	Target  Target
	States  driven.WarmStateStore
	Lock    driven.DistributedLock // Optional: skips a cycle while another instance warms
	Runtime *domain.RuntimeConfig  // Optional: receives remote reachability
	Logger  *slog.Logger

	Domains    []domain.Domain // Defaults to every domain
	Interval   time.Duration   // Time between warm cycles; zero disables the loop
	LockTTL    time.Duration
	RunOnStart bool
	Now        func() time.Time
}

// NewWarmer creates a new warmer.
func NewWarmer(cfg WarmerConfig) (*Warmer, error) {
	if cfg.Target == nil || cfg.States == nil {
		return nil, fmt.Errorf("%w: warmer needs a target and a state store", domain.ErrInvalidInput)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	domains := cfg.Domains
	if len(domains) == 0 {
		domains = domain.AllDomains()
	}
	lockTTL := cfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultWarmLockTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Warmer{
		target:     cfg.Target,
		states:     cfg.States,
		lock:       cfg.Lock,
		runtime:    cfg.Runtime,
		logger:     logger.With("component", "warmer"),
		domains:    domains,
		interval:   cfg.Interval,
		lockTTL:    lockTTL,
		runOnStart: cfg.RunOnStart,
		now:        now,
	}, nil
}

// Start begins the warm loop. It runs until Stop is called or ctx is
// cancelled. Calling Start on a running warmer is a no-op.
func (w *Warmer) Start(ctx context.Context) error {
	if w.interval <= 0 {
		return fmt.Errorf("%w: warm interval must be positive", domain.ErrInvalidInput)
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("warmer starting", "interval", w.interval, "domains", len(w.domains), "run_on_start", w.runOnStart)

	go w.run(ctx)
	return nil
}

// Stop signals the loop to exit and waits for the cycle in flight.
func (w *Warmer) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	close(w.stopCh)
	doneCh := w.doneCh
	w.mu.Unlock()

	select {
	case <-doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("warmer stopped")
	return nil
}

// Running reports whether the loop is active.
func (w *Warmer) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Warmer) run(ctx context.Context) {
	defer close(w.doneCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if w.runOnStart {
		w.cycle(ctx)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

// cycle runs one scheduled pass, skipping it when another instance holds
// the warm lock.
func (w *Warmer) cycle(ctx context.Context) {
	if w.lock != nil {
		acquired, err := w.lock.Acquire(ctx, warmLockName, w.lockTTL)
		if err != nil {
			w.logger.Error("failed to acquire warm lock", "error", err)
			return
		}
		if !acquired {
			w.logger.Debug("warm lock held by another instance, skipping cycle")
			return
		}
		defer func() {
			if err := w.lock.Release(context.WithoutCancel(ctx), warmLockName); err != nil {
				w.logger.Warn("failed to release warm lock", "error", err)
			}
		}()
	}

	if _, err := w.WarmAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("warm cycle failed", "error", err)
	}
}

// WarmAll warms every domain concurrently. A failing domain is reported in
// its result and never aborts the others.
func (w *Warmer) WarmAll(ctx context.Context) ([]domain.WarmResult, error) {
	results := make([]domain.WarmResult, len(w.domains))

	// domains never cancel each other; only the caller's ctx ends the pass
	var g errgroup.Group
	for i, d := range w.domains {
		g.Go(func() error {
			results[i] = w.warm(ctx, d)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if w.runtime != nil {
		w.runtime.SetRemoteReachable(failed == 0)
	}
	w.logger.Info("warm pass completed", "domains", len(results), "failed", failed)
	return results, nil
}

func (w *Warmer) warm(ctx context.Context, d domain.Domain) domain.WarmResult {
	logger := w.logger.With("domain", string(d))
	start := w.now()

	state := w.loadState(ctx, d)
	state.Status = domain.WarmStatusRunning
	state.StartedAt = &start
	state.CompletedAt = nil
	state.Error = ""
	w.saveState(ctx, state)

	action, res, err := w.target.Warm(ctx, d)

	end := w.now()
	result := domain.WarmResult{
		Domain:    d,
		Action:    action,
		Refreshed: res != nil,
		Duration:  end.Sub(start).Seconds(),
	}
	if res != nil {
		result.Fetched = res.Fetched
	}

	state.CompletedAt = &end
	if w.interval > 0 {
		next := end.Add(w.interval)
		state.NextWarmAt = &next
	}
	if err != nil {
		logger.Warn("warm failed", "action", action, "error", err)
		result.Error = err.Error()
		state.Status = domain.WarmStatusFailed
		state.Error = err.Error()
	} else {
		logger.Debug("warm succeeded", "action", action, "fetched", result.Fetched)
		result.Success = true
		state.Status = domain.WarmStatusCompleted
		state.LastWarmAt = &end
	}
	w.saveState(context.WithoutCancel(ctx), state)
	return result
}

func (w *Warmer) loadState(ctx context.Context, d domain.Domain) *domain.WarmState {
	state, err := w.states.Get(ctx, d)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			w.logger.Warn("failed to read warm state", "domain", string(d), "error", err)
		}
		return &domain.WarmState{Domain: d, Status: domain.WarmStatusIdle}
	}
	return state
}

func (w *Warmer) saveState(ctx context.Context, state *domain.WarmState) {
	if err := w.states.Save(ctx, state); err != nil {
		w.logger.Warn("failed to save warm state", "domain", string(state.Domain), "error", err)
	}
}

// States returns the stored state of every configured domain. Domains that
// were never warmed are reported idle.
func (w *Warmer) States(ctx context.Context) ([]*domain.WarmState, error) {
	stored, err := w.states.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list warm states: %w", err)
	}
	byDomain := make(map[domain.Domain]*domain.WarmState, len(stored))
	for _, s := range stored {
		byDomain[s.Domain] = s
	}

	states := make([]*domain.WarmState, 0, len(w.domains))
	for _, d := range w.domains {
		if s, ok := byDomain[d]; ok {
			states = append(states, s)
			continue
		}
		states = append(states, &domain.WarmState{Domain: d, Status: domain.WarmStatusIdle})
	}
	return states, nil
}
