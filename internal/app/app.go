// Package app assembles the storage backend and the registration services
// from configuration. The server and the admin CLI share it.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/clock"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/config"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/database"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/filestore"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/guard"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/repository"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/service"
)

// Importer loads events into the inventory.
type Importer interface {
	Import(ctx context.Context, events []model.Event) error
}

// Stack is the wired storage backend and the services on top of it.
type Stack struct {
	Backend    string
	Guard      *guard.Guard
	Clock      clock.Clock
	Inventory  service.Inventory
	Ledger     service.Ledger
	Importer   Importer
	Registrar  *service.Registrar
	Reconciler *service.Reconciler

	// Journal is set only for the file backend.
	Journal *filestore.Journal

	closers []func()
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Open connects the configured backend and constructs the services.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	s := &Stack{
		Backend: cfg.Storage.Backend,
		Guard:   guard.New(),
		Clock:   clock.NewSystem(cfg.Location()),
	}
	var (
		numbers service.Numberer
		tx      service.Transactor
	)
	artifacts := filestore.ArtifactSeeder(cfg.Invoice.Dir)

	switch cfg.Storage.Backend {
	case config.BackendFile:
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		for _, p := range []string{cfg.Storage.Events, cfg.Storage.Ledger, cfg.Storage.Counter} {
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return nil, fmt.Errorf("create store dir: %w", err)
			}
		}
		inv := filestore.NewInventory(cfg.Storage.Events, s.Guard, logger)
		led := filestore.NewLedger(cfg.Storage.Ledger, s.Guard, logger)
		s.Inventory, s.Ledger, s.Importer = inv, led, inv
		s.Reconciler = service.NewReconciler(inv, led, s.Guard, logger)
		s.Journal = filestore.NewJournal(cfg.Storage.JournalDir, s.Guard, s.Reconciler.ReconcileHeld, logger)
		numbers = filestore.NewCounter(cfg.Storage.Counter, cfg.Invoice.Prefix, s.Clock, s.Guard, artifacts, led.MaxSequence)
		tx = s.Journal

	case config.BackendPostgres:
		pool, err := database.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		if err := database.Migrate(ctx, pool); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		events := repository.NewEventRepository(pool)
		regs := repository.NewRegistrationRepository(pool)
		s.Inventory, s.Ledger, s.Importer = events, regs, events
		s.Reconciler = service.NewReconciler(events, regs, s.Guard, logger)
		numbers = repository.NewCounter(pool, cfg.Invoice.Prefix, s.Clock, repository.Seeder(artifacts), regs.MaxSequence)
		tx = repository.NewTxManager(pool)

	default:
		return nil, fmt.Errorf("storage backend %q: %w", cfg.Storage.Backend, model.ErrValidation)
	}

	s.Registrar = service.NewRegistrar(s.Inventory, s.Ledger, numbers, tx, s.Guard, s.Clock, logger)
	logger.Info("storage ready", "backend", s.Backend)
	return s, nil
}

// Recover repairs events left mid-transaction by a crash. Only the file
// backend can leave such events; Postgres rolls them back itself.
func (s *Stack) Recover(ctx context.Context) (int, error) {
	if s.Journal == nil {
		return 0, nil
	}
	return s.Journal.Recover(ctx)
}

// Close releases backend resources.
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
