package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/config"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/service"
)

func fileConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DataDir = dir
	cfg.Storage.Events = filepath.Join(dir, "games.csv")
	cfg.Storage.Ledger = filepath.Join(dir, "user_data.json")
	cfg.Storage.Counter = filepath.Join(dir, "counter.json")
	cfg.Storage.JournalDir = filepath.Join(dir, "journal")
	cfg.Invoice.Dir = filepath.Join(dir, "invoices")
	return cfg
}

func TestOpen_FileBackend(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	s, err := Open(ctx, fileConfig(t), NewLogger(config.LogConfig{Level: "debug", Format: "json"}, &logs))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Importer.Import(ctx, []model.Event{{
		ID: "E1", Name: "Quiz", Date: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		PricePerPerson: 1000, Capacity: 5,
	}}))
	res, err := s.Registrar.Commit(ctx, service.CommitRequest{
		UserID: "42", EventID: "E1", FullName: "Jane Doe", Email: "jane@example.com", Attendees: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Event.Available())

	n, err := s.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Contains(t, logs.String(), `"msg":"storage ready"`)
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := fileConfig(t)
	cfg.Storage.Backend = "tape"
	_, err := Open(context.Background(), cfg, NewLogger(config.LogConfig{}, &bytes.Buffer{}))
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "warn", Format: "text"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
