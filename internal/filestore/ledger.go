package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/atomicfile"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/guard"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

const canceledMarker = "canceled"

// ledgerDocument is the persisted layout: registrations per user in creation
// order.
type ledgerDocument map[string][]ledgerRecord

type ledgerRecord struct {
	Lang          string      `json:"lang"`
	FullName      string      `json:"full_name"`
	FirstName     string      `json:"first_name"`
	LastName      string      `json:"last_name"`
	Email         string      `json:"email"`
	CustAmount    int         `json:"cust_amount"`
	TotalPrice    float64     `json:"total_price"`
	InvoiceNumber string      `json:"invoice_number"`
	GameDetails   gameDetails `json:"game_details"`
	Canceled      string      `json:"canceled,omitempty"`
	CreatedAt     string      `json:"created_at,omitempty"`
}

type gameDetails struct {
	GameID         string  `json:"game_id"`
	GameName       string  `json:"game_name"`
	Place          string  `json:"place"`
	Date           string  `json:"date"`
	Time           string  `json:"time"`
	PricePerPerson float64 `json:"price_per_person"`
}

func recordFrom(reg model.Registration) ledgerRecord {
	rec := ledgerRecord{
		Lang:          reg.Lang,
		FullName:      reg.FullName,
		FirstName:     reg.FirstName(),
		LastName:      reg.LastName(),
		Email:         reg.Email,
		CustAmount:    reg.Attendees,
		TotalPrice:    reg.TotalPrice.Float(),
		InvoiceNumber: reg.InvoiceID,
		GameDetails: gameDetails{
			GameID:         reg.EventID,
			GameName:       reg.Event.Name,
			Place:          reg.Event.Place,
			Date:           reg.Event.Date,
			Time:           reg.Event.Time,
			PricePerPerson: reg.Event.PricePerPerson.Float(),
		},
	}
	if !reg.Active() {
		rec.Canceled = canceledMarker
	}
	if !reg.CreatedAt.IsZero() {
		rec.CreatedAt = reg.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return rec
}

func (rec ledgerRecord) registration(userID string) model.Registration {
	name := rec.FullName
	if name == "" {
		name = model.JoinName(rec.FirstName, rec.LastName)
	}
	reg := model.Registration{
		UserID:     userID,
		InvoiceID:  rec.InvoiceNumber,
		EventID:    rec.GameDetails.GameID,
		FullName:   name,
		Email:      rec.Email,
		Attendees:  rec.CustAmount,
		TotalPrice: model.CentsFromFloat(rec.TotalPrice),
		Status:     model.StatusActive,
		Lang:       rec.Lang,
		Event: model.EventSnapshot{
			EventID:        rec.GameDetails.GameID,
			Name:           rec.GameDetails.GameName,
			Place:          rec.GameDetails.Place,
			Date:           rec.GameDetails.Date,
			Time:           rec.GameDetails.Time,
			PricePerPerson: model.CentsFromFloat(rec.GameDetails.PricePerPerson),
		},
	}
	if rec.Canceled != "" {
		reg.Status = model.StatusCanceled
	}
	if t, err := time.Parse(time.RFC3339Nano, rec.CreatedAt); err == nil {
		reg.CreatedAt = t
	}
	return reg
}

// Ledger is the registration ledger kept as one JSON document keyed by user.
type Ledger struct {
	path   string
	guard  *guard.Guard
	lock   *guard.FileLock
	logger *slog.Logger
}

// NewLedger returns a ledger backed by the JSON file at path. A missing file
// is an empty ledger.
func NewLedger(path string, g *guard.Guard, logger *slog.Logger) *Ledger {
	return &Ledger{
		path:   path,
		guard:  g,
		lock:   guard.NewFileLock(lockPath(path)),
		logger: logger,
	}
}

// Append stores a new registration and returns its invoice id.
func (l *Ledger) Append(ctx context.Context, reg model.Registration) (string, error) {
	if reg.UserID == "" || reg.InvoiceID == "" || reg.Attendees <= 0 {
		return "", fmt.Errorf("append registration: %w", model.ErrValidation)
	}
	err := l.write(ctx, func(doc ledgerDocument) error {
		for _, recs := range doc {
			for _, rec := range recs {
				if rec.InvoiceNumber == reg.InvoiceID {
					return fmt.Errorf("invoice %s: %w", reg.InvoiceID, model.ErrDuplicateInvoice)
				}
			}
		}
		doc[reg.UserID] = append(doc[reg.UserID], recordFrom(reg))
		return nil
	})
	if err != nil {
		return "", err
	}
	return reg.InvoiceID, nil
}

// Find returns the user's registrations in creation order.
func (l *Ledger) Find(ctx context.Context, userID string) ([]model.Registration, error) {
	doc, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	recs := doc[userID]
	regs := make([]model.Registration, 0, len(recs))
	for _, rec := range recs {
		regs = append(regs, rec.registration(userID))
	}
	return regs, nil
}

// FindByInvoice scans every user for the invoice.
func (l *Ledger) FindByInvoice(ctx context.Context, invoiceID string) (*model.Registration, error) {
	doc, err := l.read(ctx)
	if err != nil {
		return nil, err
	}
	for userID, recs := range doc {
		for _, rec := range recs {
			if rec.InvoiceNumber == invoiceID {
				reg := rec.registration(userID)
				return &reg, nil
			}
		}
	}
	return nil, fmt.Errorf("invoice %s: %w", invoiceID, model.ErrNotFound)
}

// Cancel marks the registration canceled. Canceling twice is a no-op that
// reports AlreadyCanceled.
func (l *Ledger) Cancel(ctx context.Context, invoiceID string) (model.CancelResult, error) {
	var res model.CancelResult
	err := l.write(ctx, func(doc ledgerDocument) error {
		for _, recs := range doc {
			for i := range recs {
				if recs[i].InvoiceNumber != invoiceID {
					continue
				}
				res = model.CancelResult{
					InvoiceID:       invoiceID,
					EventID:         recs[i].GameDetails.GameID,
					Attendees:       recs[i].CustAmount,
					AlreadyCanceled: recs[i].Canceled != "",
				}
				if res.AlreadyCanceled {
					return errUnchanged
				}
				recs[i].Canceled = canceledMarker
				return nil
			}
		}
		return fmt.Errorf("invoice %s: %w", invoiceID, model.ErrNotFound)
	})
	if err != nil {
		return model.CancelResult{}, err
	}
	return res, nil
}

// ActiveSeats sums attendees over active registrations for the event. It
// feeds a mutation, so an unreadable ledger is an error here, not an empty
// result.
func (l *Ledger) ActiveSeats(ctx context.Context, eventID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	unlock := l.guard.RLock(guardKey(l.path))
	defer unlock()
	funlock, err := l.lock.RLock()
	if err != nil {
		return 0, fmt.Errorf("lock ledger: %v: %w", err, model.ErrStorageUnavailable)
	}
	defer funlock()

	doc, err := l.load()
	if err != nil {
		return 0, err
	}
	total := 0
	for _, recs := range doc {
		for _, rec := range recs {
			if rec.GameDetails.GameID == eventID && rec.Canceled == "" {
				total += rec.CustAmount
			}
		}
	}
	return total, nil
}

// MaxSequence returns the highest sequence among ledger invoice ids issued
// with prefix on day. It seeds the invoice counter.
func (l *Ledger) MaxSequence(ctx context.Context, prefix, day string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	unlock := l.guard.RLock(guardKey(l.path))
	defer unlock()
	funlock, err := l.lock.RLock()
	if err != nil {
		return 0, fmt.Errorf("lock ledger: %v: %w", err, model.ErrStorageUnavailable)
	}
	defer funlock()

	doc, err := l.load()
	if err != nil {
		return 0, err
	}
	pattern := regexp.MustCompile("^" + regexp.QuoteMeta(prefix+"_"+day+"_") + `(\d+)$`)
	max := 0
	for _, recs := range doc {
		for _, rec := range recs {
			m := pattern.FindStringSubmatch(rec.InvoiceNumber)
			if m == nil {
				continue
			}
			if n, err := strconv.Atoi(m[1]); err == nil && n > max {
				max = n
			}
		}
	}
	return max, nil
}

// ── Internal helpers ──────────────────────────────────────────

func (l *Ledger) read(ctx context.Context) (ledgerDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	unlock := l.guard.RLock(guardKey(l.path))
	defer unlock()
	funlock, err := l.lock.RLock()
	if err != nil {
		l.logger.Warn("ledger lock unavailable, serving empty ledger", "path", l.path, "error", err)
		return ledgerDocument{}, nil
	}
	defer funlock()

	doc, err := l.load()
	if err != nil {
		l.logger.Warn("ledger unreadable, serving empty ledger", "path", l.path, "error", err)
		return ledgerDocument{}, nil
	}
	return doc, nil
}

func (l *Ledger) write(ctx context.Context, fn func(ledgerDocument) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := l.guard.Lock(guardKey(l.path))
	defer unlock()
	funlock, err := l.lock.Lock()
	if err != nil {
		return fmt.Errorf("lock ledger: %v: %w", err, model.ErrStorageUnavailable)
	}
	defer funlock()

	doc, err := l.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		if err == errUnchanged {
			return nil
		}
		return err
	}
	data, err := encodeLedger(doc)
	if err != nil {
		return err
	}
	if err := atomicfile.Write(l.path, data); err != nil {
		return fmt.Errorf("save ledger: %v: %w", err, model.ErrStorageUnavailable)
	}
	return nil
}

func (l *Ledger) load() (ledgerDocument, error) {
	data, err := readOptional(l.path)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %v: %w", err, model.ErrStorageUnavailable)
	}
	doc := ledgerDocument{}
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode ledger: %v: %w", err, model.ErrStorageUnavailable)
	}
	return doc, nil
}

// encodeLedger keeps non-ASCII names readable and sorts users by id, so the
// same document always encodes to the same bytes.
func encodeLedger(doc ledgerDocument) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	return buf.Bytes(), nil
}
