package cart

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Flusher is a write-behind persister for cart snapshots. Every accepted
// mutation marks its owner dirty with the latest snapshot and restarts that
// owner's quiet-period deadline; a background loop flushes the snapshot once
// the owner has been quiet for the full period. Only the final snapshot after
// a quiet window is durable. Persist failures are logged and dropped: cart
// durability is best effort, stock is untouched until checkout regardless.
type Flusher struct {
	repo  Repository
	quiet time.Duration
	lg    *zap.Logger

	mu      sync.Mutex
	pending map[string]*pendingFlush
}

type pendingFlush struct {
	snap     Snapshot
	deadline time.Time
}

// NewFlusher creates a Flusher persisting through repo after quiet periods of
// the given duration.
func NewFlusher(repo Repository, quiet time.Duration, lg *zap.Logger) *Flusher {
	return &Flusher{
		repo:    repo,
		quiet:   quiet,
		lg:      lg,
		pending: make(map[string]*pendingFlush),
	}
}

// Mark records the owner's latest snapshot and restarts its quiet-period
// deadline. Earlier unflushed snapshots for the same owner are superseded.
func (f *Flusher) Mark(userID string, snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[userID] = &pendingFlush{
		snap:     snap,
		deadline: time.Now().Add(f.quiet),
	}
}

// Flush persists the owner's pending snapshot immediately, if any.
func (f *Flusher) Flush(ctx context.Context, userID string) {
	f.mu.Lock()
	p, ok := f.pending[userID]
	if ok {
		delete(f.pending, userID)
	}
	f.mu.Unlock()
	if ok {
		f.persist(ctx, userID, p.snap)
	}
}

// Run drives the background flush loop until ctx is canceled, then flushes
// everything still pending.
func (f *Flusher) Run(ctx context.Context) {
	tick := f.quiet / 4
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.FlushAll(context.WithoutCancel(ctx))
			return
		case now := <-ticker.C:
			f.flushDue(ctx, now)
		}
	}
}

// FlushAll persists every pending snapshot, regardless of deadline. Called on
// shutdown so a burst of edits right before exit is not lost.
func (f *Flusher) FlushAll(ctx context.Context) {
	f.mu.Lock()
	due := f.pending
	f.pending = make(map[string]*pendingFlush)
	f.mu.Unlock()

	for userID, p := range due {
		f.persist(ctx, userID, p.snap)
	}
}

func (f *Flusher) flushDue(ctx context.Context, now time.Time) {
	f.mu.Lock()
	var due map[string]Snapshot
	for userID, p := range f.pending {
		if !now.Before(p.deadline) {
			if due == nil {
				due = make(map[string]Snapshot)
			}
			due[userID] = p.snap
			delete(f.pending, userID)
		}
	}
	f.mu.Unlock()

	for userID, snap := range due {
		f.persist(ctx, userID, snap)
	}
}

func (f *Flusher) persist(ctx context.Context, userID string, snap Snapshot) {
	if err := f.repo.Save(ctx, userID, snap); err != nil {
		// Logged only: not surfaced to the shopper, not retried.
		f.lg.Warn("cart flush failed",
			zap.String("user_id", userID),
			zap.Int("lines", len(snap.Lines)),
			zap.Error(err))
	}
}
