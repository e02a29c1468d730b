package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

type txKey struct{}

// TxManager runs commit and cancel steps in one Postgres transaction.
type TxManager struct {
	db *pgxpool.Pool
}

// NewTxManager constructs a TxManager.
func NewTxManager(db *pgxpool.Pool) *TxManager {
	return &TxManager{db: db}
}

// WithTx begins a transaction, locks the event row with SELECT … FOR UPDATE
// so concurrent bookings for the same event are serialized by Postgres, and
// runs fn with the transaction carried in ctx. Any error rolls everything
// back. A transaction already in ctx is reused.
func (m *TxManager) WithTx(ctx context.Context, eventID string, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := m.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin transaction: %v: %w", err, model.ErrStorageUnavailable)
	}
	txCtx := context.WithValue(ctx, txKey{}, tx)

	var found bool
	err = tx.QueryRow(ctx, `SELECT true FROM events WHERE id = $1 FOR UPDATE`, eventID).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		err = fmt.Errorf("event %s: %w", eventID, model.ErrNotFound)
	} else if err != nil {
		err = fmt.Errorf("lock event row: %w", unavailable(err))
	}
	if err == nil {
		err = fn(txCtx)
	}
	if err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", unavailable(err))
	}
	return nil
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// querier is the subset of pgx shared by the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// conn returns the transaction in ctx, or the pool.
func conn(ctx context.Context, db *pgxpool.Pool) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return db
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// unavailable marks connection-level failures so callers can tell them from
// domain errors. Server-side errors from a reachable database pass through.
func unavailable(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%v: %w", err, model.ErrStorageUnavailable)
}
