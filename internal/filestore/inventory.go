package filestore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/atomicfile"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/guard"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

// Inventory is the event table kept as a CSV file in the import layout.
type Inventory struct {
	path   string
	guard  *guard.Guard
	lock   *guard.FileLock
	logger *slog.Logger
}

// NewInventory returns a store backed by the CSV file at path. A missing file
// is an empty table.
func NewInventory(path string, g *guard.Guard, logger *slog.Logger) *Inventory {
	return &Inventory{
		path:   path,
		guard:  g,
		lock:   guard.NewFileLock(lockPath(path)),
		logger: logger,
	}
}

// Path returns the table location.
func (s *Inventory) Path() string {
	return s.path
}

// GetEvent returns one event or model.ErrNotFound.
func (s *Inventory) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	events, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	for i := range events {
		if events[i].ID == id {
			return &events[i], nil
		}
	}
	return nil, fmt.Errorf("event %s: %w", id, model.ErrNotFound)
}

// ListEvents returns all events in table order.
func (s *Inventory) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.read(ctx)
}

// ReserveSeats adds count seats to the event's reservation counter.
func (s *Inventory) ReserveSeats(ctx context.Context, id string, count int) (*model.Event, error) {
	if count <= 0 {
		return nil, fmt.Errorf("reserve %d seats: %w", count, model.ErrValidation)
	}
	return s.mutate(ctx, id, func(ev *model.Event) error {
		if count > ev.Available() {
			return fmt.Errorf("event %s: %d seats requested, %d available: %w",
				ev.ID, count, ev.Available(), model.ErrCapacityExceeded)
		}
		ev.Reserved += count
		return nil
	})
}

// ReleaseSeats returns count seats. The counter is clamped to [0, capacity]
// so repeated releases cannot drive it negative.
func (s *Inventory) ReleaseSeats(ctx context.Context, id string, count int) (*model.Event, error) {
	if count < 0 {
		return nil, fmt.Errorf("release %d seats: %w", count, model.ErrValidation)
	}
	return s.mutate(ctx, id, func(ev *model.Event) error {
		ev.Reserved = clamp(ev.Reserved-count, ev.Capacity)
		return nil
	})
}

// SetReserved overwrites the reservation counter, clamped to [0, capacity].
func (s *Inventory) SetReserved(ctx context.Context, id string, reserved int) (*model.Event, error) {
	return s.mutate(ctx, id, func(ev *model.Event) error {
		ev.Reserved = clamp(reserved, ev.Capacity)
		return nil
	})
}

// Import merges events into the table: rows with a known id are replaced,
// new ids are appended.
func (s *Inventory) Import(ctx context.Context, events []model.Event) error {
	return s.write(ctx, func(current []model.Event) ([]model.Event, error) {
		pos := make(map[string]int, len(current))
		for i, ev := range current {
			pos[ev.ID] = i
		}
		for _, ev := range events {
			ev.Reserved = clamp(ev.Reserved, ev.Capacity)
			if i, ok := pos[ev.ID]; ok {
				current[i] = ev
				continue
			}
			pos[ev.ID] = len(current)
			current = append(current, ev)
		}
		return current, nil
	})
}

func clamp(n, capacity int) int {
	if n < 0 {
		return 0
	}
	if n > capacity {
		return capacity
	}
	return n
}

// ── Internal helpers ──────────────────────────────────────────

// read loads the table under the shared locks. An unreadable table is logged
// and served as empty.
func (s *Inventory) read(ctx context.Context) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := s.guard.RLock(guardKey(s.path))
	defer unlock()
	funlock, err := s.lock.RLock()
	if err != nil {
		s.logger.Warn("inventory lock unavailable, serving empty table", "path", s.path, "error", err)
		return nil, nil
	}
	defer funlock()

	events, err := s.load()
	if err != nil {
		s.logger.Warn("inventory unreadable, serving empty table", "path", s.path, "error", err)
		return nil, nil
	}
	return events, nil
}

func (s *Inventory) mutate(ctx context.Context, id string, fn func(*model.Event) error) (*model.Event, error) {
	var updated model.Event
	err := s.write(ctx, func(events []model.Event) ([]model.Event, error) {
		for i := range events {
			if events[i].ID != id {
				continue
			}
			if err := fn(&events[i]); err != nil {
				return nil, err
			}
			updated = events[i]
			return events, nil
		}
		return nil, fmt.Errorf("event %s: %w", id, model.ErrNotFound)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// write runs one read-modify-write cycle under the exclusive locks. A table
// that cannot be read aborts the cycle instead of overwriting it.
func (s *Inventory) write(ctx context.Context, fn func([]model.Event) ([]model.Event, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.guard.Lock(guardKey(s.path))
	defer unlock()
	funlock, err := s.lock.Lock()
	if err != nil {
		return fmt.Errorf("lock inventory: %v: %w", err, model.ErrStorageUnavailable)
	}
	defer funlock()

	events, err := s.load()
	if err != nil {
		return err
	}
	events, err = fn(events)
	if err != nil {
		return err
	}
	data, err := encodeEvents(events)
	if err != nil {
		return err
	}
	if err := atomicfile.Write(s.path, data); err != nil {
		return fmt.Errorf("save inventory: %v: %w", err, model.ErrStorageUnavailable)
	}
	return nil
}

func (s *Inventory) load() ([]model.Event, error) {
	data, err := readOptional(s.path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %v: %w", err, model.ErrStorageUnavailable)
	}
	if data == nil {
		return nil, nil
	}
	events, warnings, err := DecodeEvents(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode inventory: %w", err)
	}
	for _, w := range warnings {
		s.logger.Warn("inventory row corrected", "path", s.path, "detail", w)
	}
	return events, nil
}
