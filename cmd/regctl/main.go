// regctl is the operator CLI for the registration service: it imports the
// event table, prints registration deep links, repairs seat counters and
// lists a user's registrations.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/app"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/config"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/deeplink"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/filestore"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/service"
)

const usage = `regctl: operator tool for the registration service.

Usage:
  regctl [--config FILE] <command> [args]

Commands:
  import FILE            merge events from a CSV table into the inventory
  events                 print the inventory as CSV
  link EVENT_ID          print the registration deep link for an event
  reconcile [EVENT_ID…]  realign seat counters with the ledger
  registrations USER_ID  list a user's registrations
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, argv []string, stdout, stderr io.Writer) error {
	var configPath, linkBase string
	flagSet := pflag.NewFlagSet("regctl", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to YAML config (default $"+config.EnvConfigPath+")")
	flagSet.StringVar(&linkBase, "base", "", "deep link base URL (overrides deep_link_base)")
	flagSet.Usage = func() { fmt.Fprint(stderr, usage) }
	if err := flagSet.Parse(argv); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	args := flagSet.Args()
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return errors.New("missing command")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cmd, args := args[0], args[1:]

	// link needs no storage.
	if cmd == "link" {
		if len(args) != 1 {
			return errors.New("usage: regctl link EVENT_ID")
		}
		if linkBase == "" {
			linkBase = cfg.DeepLinkBase
		}
		fmt.Fprintln(stdout, deeplink.Link(linkBase, args[0]))
		return nil
	}

	logger := app.NewLogger(cfg.Log, stderr)
	stack, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stack.Close()

	switch cmd {
	case "import":
		if len(args) != 1 {
			return errors.New("usage: regctl import FILE")
		}
		return importEvents(ctx, stack, args[0], logger, stdout)
	case "events":
		events, err := stack.Inventory.ListEvents(ctx)
		if err != nil {
			return err
		}
		return filestore.EncodeEvents(stdout, events)
	case "reconcile":
		return reconcile(ctx, stack.Reconciler, args, stdout)
	case "registrations":
		if len(args) != 1 {
			return errors.New("usage: regctl registrations USER_ID")
		}
		return listRegistrations(ctx, stack.Registrar, args[0], stdout)
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func importEvents(ctx context.Context, stack *app.Stack, path string, logger *slog.Logger, stdout io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	events, warnings, err := filestore.DecodeEvents(f)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	for _, w := range warnings {
		logger.Warn("import", "warning", w)
	}
	if err := stack.Importer.Import(ctx, events); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "imported %d events\n", len(events))
	return nil
}

func reconcile(ctx context.Context, rec *service.Reconciler, ids []string, stdout io.Writer) error {
	var (
		drifts []service.Drift
		err    error
	)
	if len(ids) == 0 {
		drifts, err = rec.ReconcileAll(ctx)
	} else {
		var errs []error
		for _, id := range ids {
			d, derr := rec.Reconcile(ctx, id)
			if derr != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, derr))
				continue
			}
			drifts = append(drifts, d)
		}
		err = errors.Join(errs...)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "EVENT\tBEFORE\tAFTER\tCHANGED")
	for _, d := range drifts {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%t\n", d.EventID, d.Before, d.After, d.Changed())
	}
	if ferr := tw.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func listRegistrations(ctx context.Context, reg *service.Registrar, userID string, stdout io.Writer) error {
	regs, err := reg.Registrations(ctx, userID)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INVOICE\tEVENT\tNAME\tATTENDEES\tTOTAL\tSTATUS")
	for _, r := range regs {
		status := "active"
		if !r.Active() {
			status = "canceled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.InvoiceID, r.EventID, r.FullName, r.Attendees, r.TotalPrice, status)
	}
	return tw.Flush()
}
