package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/atomicfile"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/guard"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

// ReconcileFunc repairs one event's reservation counter from the ledger. It
// is called with the event's guard lock already held.
type ReconcileFunc func(ctx context.Context, eventID string) error

type intent struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	StartedAt time.Time `json:"started_at"`
}

// Journal makes the reserve, number and append steps of a commit behave as
// one unit over the separate files. An intent record is written before the
// steps run and removed after. If the steps fail with an error not marked
// model.Unapplied, or the process dies while they run, the event is
// reconciled from the ledger.
type Journal struct {
	dir       string
	guard     *guard.Guard
	reconcile ReconcileFunc
	logger    *slog.Logger
}

// NewJournal returns a journal that keeps intent records in dir.
func NewJournal(dir string, g *guard.Guard, reconcile ReconcileFunc, logger *slog.Logger) *Journal {
	return &Journal{dir: dir, guard: g, reconcile: reconcile, logger: logger}
}

// WithTx runs fn under an intent for eventID. The caller holds the event's
// guard lock.
func (j *Journal) WithTx(ctx context.Context, eventID string, fn func(ctx context.Context) error) error {
	in := intent{ID: uuid.NewString(), EventID: eventID, StartedAt: time.Now().UTC()}
	path, err := j.writeIntent(in)
	if err != nil {
		return fmt.Errorf("%v: %w", err, model.ErrStorageUnavailable)
	}

	if err := fn(ctx); err != nil {
		if model.IsUnapplied(err) {
			j.remove(path)
			return err
		}
		// Repair with a fresh context; the request's may already be done.
		if rerr := j.reconcile(context.WithoutCancel(ctx), eventID); rerr != nil {
			j.logger.Error("reconcile after failed commit", "event_id", eventID, "intent", in.ID, "error", rerr)
			return err
		}
		j.remove(path)
		return err
	}
	j.remove(path)
	return nil
}

// Recover reconciles the event of every intent left behind by an earlier
// process and returns how many were repaired. Intents whose repair fails stay
// in place for the next run.
func (j *Journal) Recover(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read journal: %w", err)
	}

	var (
		recovered int
		errs      []error
	)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(j.dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var in intent
		if err := json.Unmarshal(data, &in); err != nil || in.EventID == "" {
			j.logger.Warn("discarding unreadable intent", "path", path, "error", err)
			j.remove(path)
			continue
		}

		unlock := j.guard.Lock(guard.EventKey(in.EventID))
		err = j.reconcile(ctx, in.EventID)
		unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("event %s: %w", in.EventID, err))
			continue
		}
		j.logger.Info("recovered interrupted commit", "event_id", in.EventID, "intent", in.ID, "started_at", in.StartedAt)
		j.remove(path)
		recovered++
	}
	return recovered, errors.Join(errs...)
}

// Pending returns the number of intents on disk.
func (j *Journal) Pending() (int, error) {
	matches, err := filepath.Glob(filepath.Join(j.dir, "*.json"))
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}

func (j *Journal) writeIntent(in intent) (string, error) {
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return "", fmt.Errorf("create journal dir: %w", err)
	}
	data, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encode intent: %w", err)
	}
	path := filepath.Join(j.dir, in.ID+".json")
	if err := atomicfile.Write(path, data); err != nil {
		return "", fmt.Errorf("write intent: %w", err)
	}
	return path, nil
}

func (j *Journal) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		j.logger.Warn("remove intent", "path", path, "error", err)
	}
}
