package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/clock"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/invoice"
)

// Seeder reports the highest sequence already used for prefix on day.
type Seeder func(ctx context.Context, prefix, day string) (int, error)

// Counter issues invoice ids from the invoice_counters table. Inside a
// commit transaction the increment rolls back with the commit, so an
// aborted registration does not consume a number.
type Counter struct {
	db      *pgxpool.Pool
	prefix  string
	clock   clock.Clock
	seeders []Seeder
}

// NewCounter constructs a Counter. Seeders are consulted once per day, when
// the day's row is first created.
func NewCounter(db *pgxpool.Pool, prefix string, clk clock.Clock, seeders ...Seeder) *Counter {
	return &Counter{db: db, prefix: prefix, clock: clk, seeders: seeders}
}

// Next returns the next invoice id for today.
func (c *Counter) Next(ctx context.Context) (string, error) {
	day := invoice.Day(c.clock.Now())
	q := conn(ctx, c.db)

	var seq int
	err := q.QueryRow(ctx, `
UPDATE invoice_counters SET seq = seq + 1
WHERE prefix = $1 AND day = $2
RETURNING seq`, c.prefix, day).Scan(&seq)
	if err == nil {
		return invoice.FormatID(c.prefix, day, seq), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("advance invoice counter: %w", unavailable(err))
	}

	seed, err := c.seed(ctx, day)
	if err != nil {
		return "", err
	}
	// A concurrent first call may have created the row meanwhile.
	err = q.QueryRow(ctx, `
INSERT INTO invoice_counters (prefix, day, seq) VALUES ($1, $2, $3)
ON CONFLICT (prefix, day) DO UPDATE SET seq = invoice_counters.seq + 1
RETURNING seq`, c.prefix, day, seed+1).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("create invoice counter: %w", unavailable(err))
	}
	return invoice.FormatID(c.prefix, day, seq), nil
}

func (c *Counter) seed(ctx context.Context, day string) (int, error) {
	highest := 0
	for _, s := range c.seeders {
		n, err := s(ctx, c.prefix, day)
		if err != nil {
			return 0, fmt.Errorf("seed invoice counter: %w", err)
		}
		highest = max(highest, n)
	}
	return highest, nil
}
