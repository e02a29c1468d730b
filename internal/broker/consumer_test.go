package broker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedReader returns its steps in order, then io.EOF.
type scriptedReader struct {
	mu    sync.Mutex
	steps []step
	reads int
}

type step struct {
	msg kafka.Message
	err error
}

func (r *scriptedReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if len(r.steps) == 0 {
		return kafka.Message{}, io.EOF
	}
	s := r.steps[0]
	r.steps = r.steps[1:]
	return s.msg, s.err
}

func (r *scriptedReader) Close() error { return nil }

// brokenReader fails every read.
type brokenReader struct {
	mu    sync.Mutex
	reads int
}

func (r *brokenReader) ReadMessage(context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	return kafka.Message{}, errors.New("connection refused")
}

func (r *brokenReader) Close() error { return nil }

func (r *brokenReader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConsumer_BacksOffOnReadErrors(t *testing.T) {
	down := errors.New("leader not available")
	reader := &scriptedReader{steps: []step{
		{err: down},
		{err: down},
		{err: down},
		{msg: kafka.Message{Key: []byte("42"), Value: []byte("hello")}},
	}}
	c := newConsumer(reader, "dialogue.inbound", quietLogger())
	c.minBackoff = 10 * time.Millisecond
	c.maxBackoff = 25 * time.Millisecond

	var got []string
	start := time.Now()
	err := c.Consume(context.Background(), func(_ context.Context, key, value []byte) error {
		got = append(got, string(key)+":"+string(value))
		return nil
	})
	require.NoError(t, err, "a closed reader ends consumption")

	assert.Equal(t, []string{"42:hello"}, got)
	assert.Equal(t, 5, reader.reads)
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond, "waits 10, 20 and then the 25ms cap")
}

func TestConsumer_PersistentErrorsDoNotSpin(t *testing.T) {
	reader := &brokenReader{}
	c := newConsumer(reader, "dialogue.inbound", quietLogger())
	c.minBackoff = 20 * time.Millisecond
	c.maxBackoff = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := c.Consume(ctx, func(context.Context, []byte, []byte) error {
		t.Error("handler must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.LessOrEqual(t, reader.count(), 10)
}

func TestConsumer_HandlerErrorsAreSkipped(t *testing.T) {
	reader := &scriptedReader{steps: []step{
		{msg: kafka.Message{Value: []byte("a")}},
		{msg: kafka.Message{Value: []byte("b")}},
	}}
	c := newConsumer(reader, "dialogue.inbound", quietLogger())

	var seen []string
	err := c.Consume(context.Background(), func(_ context.Context, _, value []byte) error {
		seen = append(seen, string(value))
		return errors.New("bad payload")
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)
}
