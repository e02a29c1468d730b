package guard

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_ExclusiveSerializesWriters(t *testing.T) {
	g := New()
	var inside, maxInside int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := g.Lock(EventKey("E1"))
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(100 * time.Microsecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, g.Len(), "entries must be dropped after release")
}

func TestGuard_SharedReadersOverlap(t *testing.T) {
	g := New()
	first := g.RLock("ledger")
	acquired := make(chan struct{})

	go func() {
		second := g.RLock("ledger")
		close(acquired)
		second()
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second reader blocked behind first reader")
	}
	first()
}

func TestGuard_WriterWaitsForReader(t *testing.T) {
	g := New()
	reader := g.RLock("ledger")
	acquired := make(chan struct{})

	go func() {
		unlock := g.Lock("ledger")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("writer acquired lock while reader held it")
	case <-time.After(20 * time.Millisecond):
	}
	reader()
	<-acquired
}

func TestGuard_DistinctKeysIndependent(t *testing.T) {
	g := New()
	unlockA := g.Lock(EventKey("A"))
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := g.Lock(EventKey("B"))
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on B blocked by lock on A")
	}
}

func TestFileLock_LockUnlock(t *testing.T) {
	l := NewFileLock(filepath.Join(t.TempDir(), "store.lock"))

	unlock, err := l.Lock()
	require.NoError(t, err)
	unlock()

	unlock, err = l.RLock()
	require.NoError(t, err)
	unlock()
	assert.FileExists(t, l.Path())
}
