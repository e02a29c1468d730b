// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server, the session
// pruner and, when Kafka is configured, the message relay.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/pflag"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/app"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/broker"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/config"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/conversation"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/handler"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/invoice"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/notify"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/relay"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to YAML config (default $"+config.EnvConfigPath+")")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Storage ───────────────────────────────────────────────────────
	stack, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer stack.Close()

	if n, err := stack.Recover(ctx); err != nil {
		logger.Error("journal recovery incomplete", "repaired", n, "error", err)
	} else if n > 0 {
		logger.Warn("journal recovery repaired events", "count", n)
	}

	// ── 2. Notifications ─────────────────────────────────────────────────
	fanout := notify.NewFanout(logger).Add("log", notify.NewLogSink(logger))
	var producers []*broker.Producer
	defer func() {
		for _, p := range producers {
			if err := p.Close(); err != nil {
				logger.Warn("close producer", "topic", p.Topic(), "error", err)
			}
		}
	}()
	if cfg.Kafka.Enabled() && cfg.Kafka.OperatorTopic != "" {
		operator := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OperatorTopic)
		producers = append(producers, operator)
		fanout.Add("kafka", notify.NewKafkaSink(operator))
	}
	if cfg.Email.Enabled() {
		sender := notify.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From)
		fanout.Add("email", notify.NewEmailSink(sender, cfg.Email.Subject))
	}
	logger.Info("notification sinks ready", "count", fanout.Len())

	// ── 3. Dialogue ──────────────────────────────────────────────────────
	catalog, err := conversation.LoadCatalog(cfg.Translations)
	if err != nil {
		return err
	}
	renderer := invoice.NewRenderer(cfg.Invoice.Dir, cfg.Invoice.Issuer)
	machine := conversation.NewMachine(stack.Registrar, renderer, fanout, catalog, logger)
	engine := conversation.NewEngine(machine, conversation.NewMemoryStore(), stack.Guard, stack.Clock, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		engine.RunPruner(ctx, cfg.Session.PruneInterval, cfg.Session.TTL)
	}()

	if cfg.Kafka.RelayEnabled() {
		in := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.InboundTopic, cfg.Kafka.GroupID, logger)
		defer in.Close()
		out := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OutboundTopic)
		producers = append(producers, out)
		rl := relay.New(engine, out, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rl.Run(ctx, in); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("relay stopped", "error", err)
			}
		}()
	}

	// ── 4. Build the router ──────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger(logger))  // structured access log
	r.Use(handler.CORS)
	handler.NewAPI(stack.Registrar, engine, cfg.DeepLinkBase, logger).Routes(r)

	// ── 5. Start server with graceful shutdown ───────────────────────────
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr, "backend", stack.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("server: %w", err)
		}
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	wg.Wait()
	logger.Info("server stopped")
	return nil
}
