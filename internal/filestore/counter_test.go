package filestore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/guard"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func today() *manualClock {
	return &manualClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
}

func TestCounter_Sequential(t *testing.T) {
	ctx := context.Background()
	c := NewCounter(filepath.Join(t.TempDir(), "counter.json"), "OG", today(), guard.New())

	for _, want := range []string{"OG_141026_1", "OG_141026_2", "OG_141026_3"} {
		id, err := c.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
}

func TestCounter_DayRollover(t *testing.T) {
	ctx := context.Background()
	clk := today()
	c := NewCounter(filepath.Join(t.TempDir(), "counter.json"), "OG", clk, guard.New())

	_, err := c.Next(ctx)
	require.NoError(t, err)
	_, err = c.Next(ctx)
	require.NoError(t, err)

	clk.Set(clk.Now().Add(24 * time.Hour))
	id, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OG_151026_1", id)
}

func TestCounter_ConcurrentNextIsUnique(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "counter.json")
	clk := today()
	// Two handles with separate guards behave like two processes.
	counters := []*Counter{
		NewCounter(path, "OG", clk, guard.New()),
		NewCounter(path, "OG", clk, guard.New()),
	}

	const perCounter = 25
	var (
		mu  sync.Mutex
		ids = make(map[string]int)
		wg  sync.WaitGroup
	)
	for _, c := range counters {
		for i := 0; i < perCounter; i++ {
			wg.Add(1)
			go func(c *Counter) {
				defer wg.Done()
				id, err := c.Next(ctx)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				ids[id]++
				mu.Unlock()
			}(c)
		}
	}
	wg.Wait()

	assert.Len(t, ids, 2*perCounter)
	for id, n := range ids {
		assert.Equal(t, 1, n, "invoice id %s issued more than once", id)
	}
	assert.Contains(t, ids, "OG_141026_50")
}

func TestCounter_SeedsFromArtifactsOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	invoices := filepath.Join(dir, "invoices")
	require.NoError(t, os.MkdirAll(invoices, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(invoices, "OG_141026_7_Jane_Doe.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(invoices, "OG_131026_30_Old_Day.pdf"), []byte("%PDF"), 0o644))

	c := NewCounter(filepath.Join(dir, "counter.json"), "OG", today(), guard.New(), ArtifactSeeder(invoices))
	id, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OG_141026_8", id)

	// Later artifacts do not move an already seeded counter.
	require.NoError(t, os.WriteFile(filepath.Join(invoices, "OG_141026_20_Late_Copy.pdf"), []byte("%PDF"), 0o644))
	id, err = c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OG_141026_9", id)
}

func TestCounter_SeedsFromLedger(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)
	_, err := l.Append(ctx, testRegistration("42", "OG_141026_4", "E1", 1))
	require.NoError(t, err)

	c := NewCounter(filepath.Join(t.TempDir(), "counter.json"), "OG", today(), guard.New(),
		ArtifactSeeder(filepath.Join(t.TempDir(), "none")), l.MaxSequence)
	id, err := c.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "OG_141026_5", id)
}

func TestCounter_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counter.json")
	require.NoError(t, os.WriteFile(path, []byte("seq=3"), 0o644))

	c := NewCounter(path, "OG", today(), guard.New())
	_, err := c.Next(context.Background())
	assert.ErrorIs(t, err, model.ErrStorageUnavailable)
}
