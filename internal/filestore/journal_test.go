package filestore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/guard"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

func reconcileFrom(inv *Inventory, l *Ledger) ReconcileFunc {
	return func(ctx context.Context, eventID string) error {
		seats, err := l.ActiveSeats(ctx, eventID)
		if err != nil {
			return err
		}
		_, err = inv.SetReserved(ctx, eventID, seats)
		return err
	}
}

func TestJournal_CommitRemovesIntent(t *testing.T) {
	ctx := context.Background()
	inv := newInventory(t, testEvent("E1", 10))
	l := newLedger(t)
	j := NewJournal(filepath.Join(t.TempDir(), "journal"), guard.New(), reconcileFrom(inv, l), testLogger())

	err := j.WithTx(ctx, "E1", func(ctx context.Context) error {
		pending, err := j.Pending()
		require.NoError(t, err)
		assert.Equal(t, 1, pending, "intent is durable while the steps run")

		if _, err := inv.ReserveSeats(ctx, "E1", 4); err != nil {
			return err
		}
		_, err = l.Append(ctx, testRegistration("42", "OG_141026_1", "E1", 4))
		return err
	})
	require.NoError(t, err)

	pending, err := j.Pending()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
	ev, err := inv.GetEvent(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 4, ev.Reserved)
}

func TestJournal_FailedStepsAreReconciled(t *testing.T) {
	ctx := context.Background()
	inv := newInventory(t, testEvent("E1", 10))
	l := newLedger(t)
	j := NewJournal(filepath.Join(t.TempDir(), "journal"), guard.New(), reconcileFrom(inv, l), testLogger())

	_, err := l.Append(ctx, testRegistration("42", "OG_141026_1", "E1", 2))
	require.NoError(t, err)
	_, err = inv.SetReserved(ctx, "E1", 2)
	require.NoError(t, err)

	boom := errors.New("append failed")
	err = j.WithTx(ctx, "E1", func(ctx context.Context) error {
		if _, err := inv.ReserveSeats(ctx, "E1", 5); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	ev, err := inv.GetEvent(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 2, ev.Reserved, "seats of the half-done commit are released")
	pending, err := j.Pending()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestJournal_UnappliedFailureSkipsRepair(t *testing.T) {
	ctx := context.Background()
	inv := newInventory(t, testEvent("E1", 10))
	l := newLedger(t)
	repairs := 0
	repair := func(ctx context.Context, eventID string) error {
		repairs++
		return reconcileFrom(inv, l)(ctx, eventID)
	}
	j := NewJournal(filepath.Join(t.TempDir(), "journal"), guard.New(), repair, testLogger())

	// Seats held with no ledger rows behind them, as after an import.
	_, err := inv.SetReserved(ctx, "E1", 9)
	require.NoError(t, err)

	err = j.WithTx(ctx, "E1", func(ctx context.Context) error {
		_, err := inv.ReserveSeats(ctx, "E1", 5)
		return model.Unapplied(err)
	})
	assert.ErrorIs(t, err, model.ErrCapacityExceeded)
	assert.True(t, model.IsUnapplied(err))
	assert.Zero(t, repairs)

	ev, err := inv.GetEvent(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 9, ev.Reserved)
	pending, err := j.Pending()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestJournal_RecoverRepairsLeftoverIntent(t *testing.T) {
	ctx := context.Background()
	inv := newInventory(t, testEvent("E1", 10))
	l := newLedger(t)
	dir := filepath.Join(t.TempDir(), "journal")

	failing := NewJournal(dir, guard.New(), func(context.Context, string) error {
		return model.ErrStorageUnavailable
	}, testLogger())
	err := failing.WithTx(ctx, "E1", func(ctx context.Context) error {
		if _, err := inv.ReserveSeats(ctx, "E1", 6); err != nil {
			return err
		}
		return errors.New("crash")
	})
	require.Error(t, err)
	pending, err := failing.Pending()
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "an unrepaired intent stays for the next start")

	j := NewJournal(dir, guard.New(), reconcileFrom(inv, l), testLogger())
	n, err := j.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ev, err := inv.GetEvent(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 0, ev.Reserved)
	pending, err = j.Pending()
	require.NoError(t, err)
	assert.Equal(t, 0, pending)
}

func TestJournal_RecoverWithoutDir(t *testing.T) {
	j := NewJournal(filepath.Join(t.TempDir(), "missing"), guard.New(), nil, testLogger())
	n, err := j.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
