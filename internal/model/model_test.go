package model

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCents(t *testing.T) {
	tests := map[string]Cents{"12": 1200, "12.5": 1250, "12.50": 1250, ".75": 75, "0": 0}
	for in, want := range tests {
		got, err := ParseCents(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "-1", "1.234", "abc", "1."} {
		_, err := ParseCents(bad)
		assert.ErrorIs(t, err, ErrValidation, bad)
	}
	assert.Equal(t, Cents(1999), CentsFromFloat(19.99))
}

func TestEvent_Available(t *testing.T) {
	ev := Event{Capacity: 10, Reserved: 4}
	assert.Equal(t, 6, ev.Available())
	ev.Reserved = 12
	assert.Equal(t, 0, ev.Available())
	assert.True(t, ev.IsFull())
}

func TestSplitName(t *testing.T) {
	first, last := SplitName("  Jane  van Doe ")
	assert.Equal(t, "Jane", first)
	assert.Equal(t, "van Doe", last)
	assert.Equal(t, "Jane van Doe", JoinName(" Jane", "van Doe "))

	first, last = SplitName("")
	assert.Empty(t, first)
	assert.Empty(t, last)
}

func TestUnapplied(t *testing.T) {
	assert.NoError(t, Unapplied(nil))

	err := fmt.Errorf("commit registration: %w", Unapplied(ErrCapacityExceeded))
	assert.True(t, IsUnapplied(err))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, "commit registration: capacity exceeded", err.Error())

	assert.False(t, IsUnapplied(fmt.Errorf("wrapped: %w", ErrCapacityExceeded)))
}
