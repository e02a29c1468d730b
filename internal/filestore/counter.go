package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/atomicfile"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/clock"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/guard"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/invoice"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

// Seeder reports the highest sequence already used for prefix on day by some
// earlier source of invoice ids.
type Seeder func(ctx context.Context, prefix, day string) (int, error)

// ArtifactSeeder scans invoice artifact file names in dir.
func ArtifactSeeder(dir string) Seeder {
	return func(_ context.Context, prefix, day string) (int, error) {
		return invoice.ScanMaxSequence(dir, prefix, day)
	}
}

type counterState struct {
	Prefix string `json:"prefix"`
	Day    string `json:"day"`
	Seq    int    `json:"seq"`
}

// Counter hands out "<prefix>_<DDMMYY>_<seq>" ids from a durable per-day
// counter file. The first id of a day continues after the highest sequence
// any seeder reports, so ids issued before the counter existed are not reused.
type Counter struct {
	path    string
	prefix  string
	clock   clock.Clock
	guard   *guard.Guard
	lock    *guard.FileLock
	seeders []Seeder
}

// NewCounter returns a counter persisted at path.
func NewCounter(path, prefix string, clk clock.Clock, g *guard.Guard, seeders ...Seeder) *Counter {
	return &Counter{
		path:    path,
		prefix:  prefix,
		clock:   clk,
		guard:   g,
		lock:    guard.NewFileLock(lockPath(path)),
		seeders: seeders,
	}
}

// Next reserves and returns the next invoice id for today. The counter file
// is synced before the id is returned.
func (c *Counter) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	unlock := c.guard.Lock(guardKey(c.path))
	defer unlock()
	funlock, err := c.lock.Lock()
	if err != nil {
		return "", fmt.Errorf("lock invoice counter: %v: %w", err, model.ErrStorageUnavailable)
	}
	defer funlock()

	state, err := c.load()
	if err != nil {
		return "", err
	}

	day := invoice.Day(c.clock.Now())
	if state.Day != day || state.Prefix != c.prefix {
		seq, err := c.seed(ctx, day)
		if err != nil {
			return "", err
		}
		state = counterState{Prefix: c.prefix, Day: day, Seq: seq}
	}
	state.Seq++

	data, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("encode invoice counter: %w", err)
	}
	if err := atomicfile.Write(c.path, append(data, '\n')); err != nil {
		return "", fmt.Errorf("save invoice counter: %v: %w", err, model.ErrStorageUnavailable)
	}
	return invoice.FormatID(c.prefix, day, state.Seq), nil
}

func (c *Counter) seed(ctx context.Context, day string) (int, error) {
	max := 0
	for _, s := range c.seeders {
		n, err := s(ctx, c.prefix, day)
		if err != nil {
			return 0, fmt.Errorf("seed invoice counter: %w", err)
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}

func (c *Counter) load() (counterState, error) {
	data, err := readOptional(c.path)
	if err != nil {
		return counterState{}, fmt.Errorf("read invoice counter: %v: %w", err, model.ErrStorageUnavailable)
	}
	var state counterState
	if len(bytes.TrimSpace(data)) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return counterState{}, fmt.Errorf("decode invoice counter: %v: %w", err, model.ErrStorageUnavailable)
	}
	return state, nil
}
