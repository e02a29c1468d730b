package filestore

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

// EventColumns is the column order of the event import table.
var EventColumns = []string{
	"game_id", "game_name", "description", "place", "date", "time",
	"price_per_person", "spots_all", "spots_registered", "spots_left",
}

// DecodeEvents parses an event table. Columns are matched by header name and
// spots_left is optional. A spots_left value that disagrees with
// spots_all - spots_registered is corrected and reported in warnings. Malformed
// rows, duplicate ids and out-of-range counters fail the whole table with
// model.ErrStorageUnavailable.
func DecodeEvents(r io.Reader) ([]model.Event, []string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read header: %v: %w", err, model.ErrStorageUnavailable)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range EventColumns[:len(EventColumns)-1] {
		if _, ok := index[col]; !ok {
			return nil, nil, fmt.Errorf("missing column %q: %w", col, model.ErrStorageUnavailable)
		}
	}

	var (
		events   []model.Event
		warnings []string
		seen     = make(map[string]bool)
	)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %v: %w", line, err, model.ErrStorageUnavailable)
		}
		field := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		ev, warn, err := decodeRow(field)
		if err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		if seen[ev.ID] {
			return nil, nil, fmt.Errorf("line %d: duplicate game_id %q: %w", line, ev.ID, model.ErrStorageUnavailable)
		}
		seen[ev.ID] = true
		if warn != "" {
			warnings = append(warnings, fmt.Sprintf("line %d: %s", line, warn))
		}
		events = append(events, ev)
	}
	return events, warnings, nil
}

func decodeRow(field func(string) string) (model.Event, string, error) {
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf(format+": %w", append(args, model.ErrStorageUnavailable)...)
	}

	ev := model.Event{
		ID:          field("game_id"),
		Name:        field("game_name"),
		Description: field("description"),
		Place:       field("place"),
		Time:        field("time"),
	}
	if ev.ID == "" {
		return ev, "", corrupt("empty game_id")
	}

	date, err := time.Parse(model.DateLayout, field("date"))
	if err != nil {
		return ev, "", corrupt("event %s: date %q", ev.ID, field("date"))
	}
	ev.Date = date

	price, err := model.ParseCents(field("price_per_person"))
	if err != nil {
		return ev, "", corrupt("event %s: price_per_person %q", ev.ID, field("price_per_person"))
	}
	ev.PricePerPerson = price

	if ev.Capacity, err = parseCount(field("spots_all")); err != nil {
		return ev, "", corrupt("event %s: spots_all %q", ev.ID, field("spots_all"))
	}
	if ev.Reserved, err = parseCount(field("spots_registered")); err != nil {
		return ev, "", corrupt("event %s: spots_registered %q", ev.ID, field("spots_registered"))
	}
	if ev.Reserved > ev.Capacity {
		return ev, "", corrupt("event %s: spots_registered %d exceeds spots_all %d", ev.ID, ev.Reserved, ev.Capacity)
	}

	var warn string
	if raw := field("spots_left"); raw != "" {
		left, err := parseCount(raw)
		if err != nil || left != ev.Available() {
			warn = fmt.Sprintf("event %s: spots_left %q corrected to %d", ev.ID, raw, ev.Available())
		}
	}
	return ev, warn, nil
}

// parseCount accepts a non-negative integer, also in the "10.0" form some
// spreadsheet exports produce.
func parseCount(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	s = strings.TrimSuffix(s, ".0")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return n, nil
}

// EncodeEvents writes events in the import table layout, deriving spots_left.
func EncodeEvents(w io.Writer, events []model.Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(EventColumns); err != nil {
		return err
	}
	for _, ev := range events {
		rec := []string{
			ev.ID,
			ev.Name,
			ev.Description,
			ev.Place,
			ev.Date.Format(model.DateLayout),
			ev.Time,
			ev.PricePerPerson.String(),
			strconv.Itoa(ev.Capacity),
			strconv.Itoa(ev.Reserved),
			strconv.Itoa(ev.Available()),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func encodeEvents(events []model.Event) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeEvents(&buf, events); err != nil {
		return nil, fmt.Errorf("encode events: %w", err)
	}
	return buf.Bytes(), nil
}
