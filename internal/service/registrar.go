package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/clock"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/guard"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

// CommitRequest is the validated dialogue input for one registration.
type CommitRequest struct {
	UserID    string
	EventID   string
	FullName  string
	Email     string
	Attendees int
	Lang      string
}

// CommitResult is a committed registration together with the event state
// right after its seats were reserved.
type CommitResult struct {
	Registration model.Registration
	Event        model.Event
}

// Registrar commits and cancels registrations.
type Registrar struct {
	inventory Inventory
	ledger    Ledger
	numbers   Numberer
	tx        Transactor
	guard     *guard.Guard
	clock     clock.Clock
	logger    *slog.Logger
}

// NewRegistrar constructs a Registrar with its dependencies.
func NewRegistrar(
	inventory Inventory,
	ledger Ledger,
	numbers Numberer,
	tx Transactor,
	g *guard.Guard,
	clk clock.Clock,
	logger *slog.Logger,
) *Registrar {
	return &Registrar{
		inventory: inventory,
		ledger:    ledger,
		numbers:   numbers,
		tx:        tx,
		guard:     g,
		clock:     clk,
		logger:    logger,
	}
}

// Commit reserves seats, takes the next invoice id and appends the ledger
// entry as one unit under the event's exclusive lock. On any failure no
// ledger entry exists and no seats are held.
func (r *Registrar) Commit(ctx context.Context, req CommitRequest) (*CommitResult, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.TrimSpace(req.Email)
	switch {
	case req.UserID == "", req.EventID == "":
		return nil, fmt.Errorf("user and event are required: %w", model.ErrValidation)
	case req.Attendees <= 0:
		return nil, fmt.Errorf("attendee count must be positive: %w", model.ErrValidation)
	case !ValidEmail(req.Email):
		return nil, fmt.Errorf("email %q: %w", req.Email, model.ErrValidation)
	}

	unlock := r.guard.Lock(guard.EventKey(req.EventID))
	defer unlock()

	var res CommitResult
	err := r.tx.WithTx(ctx, req.EventID, func(ctx context.Context) error {
		ev, err := r.inventory.ReserveSeats(ctx, req.EventID, req.Attendees)
		if err != nil {
			return model.Unapplied(err)
		}
		invoiceID, err := r.numbers.Next(ctx)
		if err != nil {
			return r.unreserve(ctx, req, fmt.Errorf("next invoice id: %w", err))
		}
		reg := model.Registration{
			UserID:     req.UserID,
			InvoiceID:  invoiceID,
			EventID:    ev.ID,
			FullName:   req.FullName,
			Email:      req.Email,
			Attendees:  req.Attendees,
			TotalPrice: ev.PricePerPerson.Mul(req.Attendees),
			Status:     model.StatusActive,
			Lang:       req.Lang,
			CreatedAt:  r.clock.Now(),
			Event:      ev.Snapshot(),
		}
		if _, err := r.ledger.Append(ctx, reg); err != nil {
			return r.unreserve(ctx, req, fmt.Errorf("append registration: %w", err))
		}
		res = CommitResult{Registration: reg, Event: *ev}
		return nil
	})
	if err != nil {
		r.logger.Info("registration rejected",
			"user_id", req.UserID, "event_id", req.EventID, "attendees", req.Attendees, "error", err)
		return nil, fmt.Errorf("commit registration: %w", err)
	}

	r.logger.Info("registration committed",
		"user_id", req.UserID,
		"event_id", req.EventID,
		"invoice", res.Registration.InvoiceID,
		"attendees", req.Attendees,
		"available", res.Event.Available(),
	)
	return &res, nil
}

// unreserve gives back the seats a failed commit reserved. When that works
// the stores are as they were and cause is marked unapplied; otherwise cause
// is returned as is and the transactor repairs the counters.
func (r *Registrar) unreserve(ctx context.Context, req CommitRequest, cause error) error {
	if _, err := r.inventory.ReleaseSeats(ctx, req.EventID, req.Attendees); err != nil {
		r.logger.Warn("release after failed commit", "event_id", req.EventID, "attendees", req.Attendees, "error", err)
		return cause
	}
	return model.Unapplied(cause)
}

// Cancel cancels the user's registration by invoice id and then releases its
// seats. An invoice owned by another user is reported as not found. A
// registration that is already canceled is returned unchanged.
func (r *Registrar) Cancel(ctx context.Context, userID, invoiceID string) (model.CancelResult, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return model.CancelResult{}, fmt.Errorf("invoice id is required: %w", model.ErrValidation)
	}
	reg, err := r.ledger.FindByInvoice(ctx, invoiceID)
	if err != nil {
		return model.CancelResult{}, err
	}
	if reg.UserID != userID {
		return model.CancelResult{}, fmt.Errorf("invoice %s: %w", invoiceID, model.ErrNotFound)
	}

	unlock := r.guard.Lock(guard.EventKey(reg.EventID))
	defer unlock()

	var res model.CancelResult
	err = r.tx.WithTx(ctx, reg.EventID, func(ctx context.Context) error {
		var err error
		res, err = r.ledger.Cancel(ctx, invoiceID)
		if err != nil {
			return model.Unapplied(err)
		}
		if res.AlreadyCanceled {
			return nil
		}
		if _, err := r.inventory.ReleaseSeats(ctx, res.EventID, res.Attendees); err != nil {
			return fmt.Errorf("release seats: %w", err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("cancellation failed", "user_id", userID, "invoice", invoiceID, "error", err)
		return model.CancelResult{}, fmt.Errorf("cancel registration: %w", err)
	}

	if res.AlreadyCanceled {
		r.logger.Info("registration already canceled", "user_id", userID, "invoice", invoiceID)
	} else {
		r.logger.Info("registration canceled",
			"user_id", userID, "invoice", invoiceID, "event_id", res.EventID, "released", res.Attendees)
	}
	return res, nil
}

// ── Reads ─────────────────────────────────────────────────────

// Registrations returns the user's registrations in creation order.
func (r *Registrar) Registrations(ctx context.Context, userID string) ([]model.Registration, error) {
	return r.ledger.Find(ctx, userID)
}

// Event returns one event with fresh counters.
func (r *Registrar) Event(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("event id is required: %w", model.ErrValidation)
	}
	return r.inventory.GetEvent(ctx, id)
}

// Events returns every event.
func (r *Registrar) Events(ctx context.Context) ([]model.Event, error) {
	return r.inventory.ListEvents(ctx)
}
