package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/guard"
)

// Drift is the outcome of reconciling one event.
type Drift struct {
	EventID string
	Before  int
	After   int
}

// Changed reports whether the counter had to be corrected.
func (d Drift) Changed() bool {
	return d.Before != d.After
}

// Reconciler sets each event's reserved counter to the seats held by its
// active ledger entries. It repairs interrupted commits and cancellations.
type Reconciler struct {
	inventory Inventory
	ledger    Ledger
	guard     *guard.Guard
	logger    *slog.Logger
}

// NewReconciler constructs a Reconciler.
func NewReconciler(inventory Inventory, ledger Ledger, g *guard.Guard, logger *slog.Logger) *Reconciler {
	return &Reconciler{inventory: inventory, ledger: ledger, guard: g, logger: logger}
}

// Reconcile repairs one event under its exclusive lock.
func (r *Reconciler) Reconcile(ctx context.Context, eventID string) (Drift, error) {
	unlock := r.guard.Lock(guard.EventKey(eventID))
	defer unlock()
	return r.reconcile(ctx, eventID)
}

// ReconcileHeld repairs one event for a caller that already holds its lock.
func (r *Reconciler) ReconcileHeld(ctx context.Context, eventID string) error {
	_, err := r.reconcile(ctx, eventID)
	return err
}

// ReconcileAll repairs every event and returns the drift of each. Failures
// on single events are collected and do not stop the pass.
func (r *Reconciler) ReconcileAll(ctx context.Context) ([]Drift, error) {
	events, err := r.inventory.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	var (
		drifts []Drift
		errs   []error
	)
	for _, ev := range events {
		d, err := r.Reconcile(ctx, ev.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", ev.ID, err))
			continue
		}
		drifts = append(drifts, d)
	}
	return drifts, errors.Join(errs...)
}

func (r *Reconciler) reconcile(ctx context.Context, eventID string) (Drift, error) {
	ev, err := r.inventory.GetEvent(ctx, eventID)
	if err != nil {
		return Drift{}, err
	}
	seats, err := r.ledger.ActiveSeats(ctx, eventID)
	if err != nil {
		return Drift{}, fmt.Errorf("active seats: %w", err)
	}
	d := Drift{EventID: eventID, Before: ev.Reserved, After: seats}
	if !d.Changed() {
		return d, nil
	}

	updated, err := r.inventory.SetReserved(ctx, eventID, seats)
	if err != nil {
		return Drift{}, fmt.Errorf("set reserved: %w", err)
	}
	d.After = updated.Reserved
	if updated.Reserved != seats {
		r.logger.Error("ledger holds more seats than capacity",
			"event_id", eventID, "active_seats", seats, "capacity", updated.Capacity)
	}
	r.logger.Warn("reserved counter corrected", "event_id", eventID, "before", d.Before, "after", d.After)
	return d, nil
}
