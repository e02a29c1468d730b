// Package service implements registration commit and cancel orchestration
// across the inventory, the ledger and invoice numbering, plus the repair
// procedure that realigns seat counters with the ledger.
//
// Stores are reached only through the interfaces below so the file and
// Postgres backends are interchangeable and every read sees current state.
package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

// Inventory is the event table with its seat counters.
type Inventory interface {
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	ReserveSeats(ctx context.Context, id string, count int) (*model.Event, error)
	ReleaseSeats(ctx context.Context, id string, count int) (*model.Event, error)
	SetReserved(ctx context.Context, id string, reserved int) (*model.Event, error)
}

// Ledger is the durable collection of registrations.
type Ledger interface {
	Append(ctx context.Context, reg model.Registration) (string, error)
	Find(ctx context.Context, userID string) ([]model.Registration, error)
	FindByInvoice(ctx context.Context, invoiceID string) (*model.Registration, error)
	Cancel(ctx context.Context, invoiceID string) (model.CancelResult, error)
	ActiveSeats(ctx context.Context, eventID string) (int, error)
}

// Numberer issues unique invoice ids.
type Numberer interface {
	Next(ctx context.Context) (string, error)
}

// Transactor runs fn as one logical unit touching eventID. Either all store
// changes made by fn take effect or the event is left consistent with the
// ledger.
type Transactor interface {
	WithTx(ctx context.Context, eventID string, fn func(ctx context.Context) error) error
}

// ── Validation ────────────────────────────────────────────────

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+$`)

// ValidEmail reports whether s has the shape of an email address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(strings.TrimSpace(s))
}
