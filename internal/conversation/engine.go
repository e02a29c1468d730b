package conversation

import (
	"context"
	"log/slog"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/clock"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/guard"
)

// Engine runs many conversations at once. Messages of one user are handled
// strictly one after another; different users proceed in parallel.
type Engine struct {
	machine *Machine
	store   *MemoryStore
	guard   *guard.Guard
	clock   clock.Clock
	logger  *slog.Logger
}

// NewEngine returns an Engine around machine.
func NewEngine(machine *Machine, store *MemoryStore, g *guard.Guard, clk clock.Clock, logger *slog.Logger) *Engine {
	return &Engine{machine: machine, store: store, guard: g, clock: clk, logger: logger}
}

// Handle processes one inbound message for userID.
func (e *Engine) Handle(ctx context.Context, userID, text string) Result {
	unlock := e.guard.Lock(guard.SessionKey(userID))
	defer unlock()

	before, ok := e.store.Lookup(userID)
	if !ok {
		before = e.machine.Resume(ctx, userID)
	}
	after, res := e.machine.Handle(ctx, before, text)
	after.UpdatedAt = e.clock.Now()
	e.store.Put(after)

	if before.State != after.State {
		e.logger.Debug("session transition",
			"user_id", userID, "from", before.State.String(), "to", after.State.String())
	}
	return res
}

// Session returns a copy of the user's current session.
func (e *Engine) Session(userID string) Session {
	unlock := e.guard.RLock(guard.SessionKey(userID))
	defer unlock()
	return e.store.Get(userID)
}

// Prune drops sessions idle for longer than ttl.
func (e *Engine) Prune(ttl time.Duration) int {
	n := e.store.Prune(e.clock.Now().Add(-ttl))
	if n > 0 {
		e.logger.Info("pruned idle sessions", "count", n, "ttl", ttl.String())
	}
	return n
}

// RunPruner prunes every interval until ctx is done.
func (e *Engine) RunPruner(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Prune(ttl)
		}
	}
}
