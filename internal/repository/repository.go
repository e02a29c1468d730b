// Package repository implements the Postgres storage backend: the event
// inventory, the registration ledger and the invoice counter.
// It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

// ── Events ────────────────────────────────────────────────────

// EventRepository handles persistence for events and their seat counters.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

const eventColumns = `id, name, description, place, event_date, event_time, price_cents, capacity, reserved`

func scanEvent(row pgx.Row) (*model.Event, error) {
	var e model.Event
	err := row.Scan(&e.ID, &e.Name, &e.Description, &e.Place, &e.Date, &e.Time,
		&e.PricePerPerson, &e.Capacity, &e.Reserved)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetEvent returns a single event or model.ErrNotFound.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("get event: %w", unavailable(err))
	}
	return e, nil
}

// ListEvents returns all events ordered by date, then id.
func (r *EventRepository) ListEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY event_date, id`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", unavailable(err))
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

// ReserveSeats adds count seats to the reservation counter.
//
// The naive read-then-write approach lets two transactions read the same
// counter and both book the last seat. The row is therefore read with
// SELECT … FOR UPDATE, which blocks any other locking read of the event
// until this transaction ends, so the capacity check and the increment
// happen as one step.
func (r *EventRepository) ReserveSeats(ctx context.Context, id string, count int) (*model.Event, error) {
	if count <= 0 {
		return nil, fmt.Errorf("reserve %d seats: %w", count, model.ErrValidation)
	}
	return r.mutate(ctx, id, func(ev *model.Event) error {
		if count > ev.Available() {
			return fmt.Errorf("event %s: %d seats requested, %d available: %w",
				ev.ID, count, ev.Available(), model.ErrCapacityExceeded)
		}
		ev.Reserved += count
		return nil
	})
}

// ReleaseSeats returns count seats, clamping the counter at zero.
func (r *EventRepository) ReleaseSeats(ctx context.Context, id string, count int) (*model.Event, error) {
	if count < 0 {
		return nil, fmt.Errorf("release %d seats: %w", count, model.ErrValidation)
	}
	return r.mutate(ctx, id, func(ev *model.Event) error {
		ev.Reserved = clamp(ev.Reserved-count, ev.Capacity)
		return nil
	})
}

// SetReserved overwrites the counter, clamped to [0, capacity].
func (r *EventRepository) SetReserved(ctx context.Context, id string, reserved int) (*model.Event, error) {
	return r.mutate(ctx, id, func(ev *model.Event) error {
		ev.Reserved = clamp(reserved, ev.Capacity)
		return nil
	})
}

// Import upserts events by id in one transaction.
func (r *EventRepository) Import(ctx context.Context, events []model.Event) error {
	return r.inTx(ctx, func(ctx context.Context, q querier) error {
		for _, ev := range events {
			_, err := q.Exec(ctx, `
INSERT INTO events (`+eventColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	place = EXCLUDED.place,
	event_date = EXCLUDED.event_date,
	event_time = EXCLUDED.event_time,
	price_cents = EXCLUDED.price_cents,
	capacity = EXCLUDED.capacity,
	reserved = EXCLUDED.reserved`,
				ev.ID, ev.Name, ev.Description, ev.Place, ev.Date, ev.Time,
				ev.PricePerPerson, ev.Capacity, clamp(ev.Reserved, ev.Capacity),
			)
			if err != nil {
				return fmt.Errorf("upsert event %s: %w", ev.ID, unavailable(err))
			}
		}
		return nil
	})
}

// mutate locks the event row, applies fn and writes the counter back.
func (r *EventRepository) mutate(ctx context.Context, id string, fn func(*model.Event) error) (*model.Event, error) {
	var out *model.Event
	err := r.inTx(ctx, func(ctx context.Context, q querier) error {
		ev, err := scanEvent(q.QueryRow(ctx,
			`SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("event %s: %w", id, model.ErrNotFound)
			}
			return fmt.Errorf("lock event row: %w", unavailable(err))
		}
		if err := fn(ev); err != nil {
			return err
		}
		if _, err := q.Exec(ctx, `UPDATE events SET reserved = $2 WHERE id = $1`, id, ev.Reserved); err != nil {
			return fmt.Errorf("update reserved: %w", unavailable(err))
		}
		out = ev
		return nil
	})
	return out, err
}

// inTx runs fn in the transaction carried by ctx, or in a new one.
func (r *EventRepository) inTx(ctx context.Context, fn func(context.Context, querier) error) error {
	if tx := txFromContext(ctx); tx != nil {
		return fn(ctx, tx)
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", unavailable(err))
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", unavailable(err))
	}
	return nil
}

func clamp(n, capacity int) int {
	return max(0, min(n, capacity))
}

// ── Registrations ─────────────────────────────────────────────

// RegistrationRepository is the Postgres registration ledger.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

const registrationColumns = `invoice_id, user_id, event_id, full_name, email, attendees, total_cents,
	status, lang, event_name, event_place, event_date, event_time, event_price, created_at`

func scanRegistration(row pgx.Row) (*model.Registration, error) {
	var reg model.Registration
	err := row.Scan(&reg.InvoiceID, &reg.UserID, &reg.EventID, &reg.FullName, &reg.Email,
		&reg.Attendees, &reg.TotalPrice, &reg.Status, &reg.Lang,
		&reg.Event.Name, &reg.Event.Place, &reg.Event.Date, &reg.Event.Time, &reg.Event.PricePerPerson,
		&reg.CreatedAt)
	if err != nil {
		return nil, err
	}
	reg.Event.EventID = reg.EventID
	return &reg, nil
}

// Append inserts a registration and returns its invoice id.
func (r *RegistrationRepository) Append(ctx context.Context, reg model.Registration) (string, error) {
	if reg.UserID == "" || reg.InvoiceID == "" || reg.Attendees <= 0 {
		return "", fmt.Errorf("append registration: %w", model.ErrValidation)
	}
	status := reg.Status
	if status == "" {
		status = model.StatusActive
	}
	_, err := conn(ctx, r.db).Exec(ctx, `
INSERT INTO registrations (`+registrationColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		reg.InvoiceID, reg.UserID, reg.EventID, reg.FullName, reg.Email, reg.Attendees, reg.TotalPrice,
		status, reg.Lang, reg.Event.Name, reg.Event.Place, reg.Event.Date, reg.Event.Time,
		reg.Event.PricePerPerson, reg.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("invoice %s: %w", reg.InvoiceID, model.ErrDuplicateInvoice)
		}
		return "", fmt.Errorf("insert registration: %w", unavailable(err))
	}
	return reg.InvoiceID, nil
}

// Find returns the user's registrations in creation order.
func (r *RegistrationRepository) Find(ctx context.Context, userID string) ([]model.Registration, error) {
	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", unavailable(err))
	}
	defer rows.Close()

	regs := []model.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// FindByInvoice returns the registration with the invoice id.
func (r *RegistrationRepository) FindByInvoice(ctx context.Context, invoiceID string) (*model.Registration, error) {
	reg, err := scanRegistration(conn(ctx, r.db).QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE invoice_id = $1`, invoiceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invoice %s: %w", invoiceID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("get registration: %w", unavailable(err))
	}
	return reg, nil
}

// Cancel marks the registration canceled. A second cancel reports
// AlreadyCanceled and changes nothing.
func (r *RegistrationRepository) Cancel(ctx context.Context, invoiceID string) (model.CancelResult, error) {
	var (
		res    = model.CancelResult{InvoiceID: invoiceID}
		status model.Status
	)
	err := conn(ctx, r.db).QueryRow(ctx, `
WITH prev AS (
	SELECT invoice_id, status FROM registrations WHERE invoice_id = $1 FOR UPDATE
)
UPDATE registrations reg SET status = 'canceled'
FROM prev
WHERE reg.invoice_id = prev.invoice_id
RETURNING reg.event_id, reg.attendees, prev.status`, invoiceID,
	).Scan(&res.EventID, &res.Attendees, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CancelResult{}, fmt.Errorf("invoice %s: %w", invoiceID, model.ErrNotFound)
		}
		return model.CancelResult{}, fmt.Errorf("cancel registration: %w", unavailable(err))
	}
	res.AlreadyCanceled = status == model.StatusCanceled
	return res, nil
}

// ActiveSeats sums attendees over the event's active registrations.
func (r *RegistrationRepository) ActiveSeats(ctx context.Context, eventID string) (int, error) {
	var total int
	err := conn(ctx, r.db).QueryRow(ctx, `
SELECT COALESCE(SUM(attendees), 0)
FROM registrations
WHERE event_id = $1 AND status = 'active'`, eventID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum active seats: %w", unavailable(err))
	}
	return total, nil
}

// MaxSequence returns the highest sequence of invoice ids issued with prefix
// on day.
func (r *RegistrationRepository) MaxSequence(ctx context.Context, prefix, day string) (int, error) {
	stem := prefix + "_" + day + "_"
	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT invoice_id FROM registrations WHERE starts_with(invoice_id, $1)`, stem)
	if err != nil {
		return 0, fmt.Errorf("scan invoice ids: %w", unavailable(err))
	}
	defer rows.Close()

	highest := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("scan invoice id: %w", err)
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(id, stem)); err == nil && n > highest {
			highest = n
		}
	}
	return highest, rows.Err()
}
