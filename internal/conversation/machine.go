package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/deeplink"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/notify"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/service"
)

// Registrar is the store-facing side of the dialogue. service.Registrar
// satisfies it.
type Registrar interface {
	Event(ctx context.Context, id string) (*model.Event, error)
	Registrations(ctx context.Context, userID string) ([]model.Registration, error)
	Commit(ctx context.Context, req service.CommitRequest) (*service.CommitResult, error)
	Cancel(ctx context.Context, userID, invoiceID string) (model.CancelResult, error)
}

// ArtifactRenderer produces the invoice document for a registration.
// invoice.Renderer satisfies it.
type ArtifactRenderer interface {
	Render(reg model.Registration, ev model.EventSnapshot) (string, error)
	PathFor(reg model.Registration) string
}

// Reply is one outbound message.
type Reply struct {
	Text string `json:"text,omitempty"`
	// Document is the path of a file to send.
	Document string     `json:"document,omitempty"`
	Keyboard [][]string `json:"keyboard,omitempty"`
}

// Result is the outcome of handling one inbound message.
type Result struct {
	Replies []Reply
	// Path lists every state entered while handling the message, including
	// transient ones, ending with the resulting state.
	Path []State
}

// State returns the state the session ended in.
func (r Result) State() State {
	if len(r.Path) == 0 {
		return StateStart
	}
	return r.Path[len(r.Path)-1]
}

// Machine is the registration dialogue.
type Machine struct {
	registrar Registrar
	artifacts ArtifactRenderer
	notifier  notify.Sink
	catalog   Catalog
	logger    *slog.Logger
}

// NewMachine constructs a Machine. notifier may be nil.
func NewMachine(registrar Registrar, artifacts ArtifactRenderer, notifier notify.Sink, catalog Catalog, logger *slog.Logger) *Machine {
	if notifier == nil {
		notifier = notify.NewFanout(logger)
	}
	return &Machine{
		registrar: registrar,
		artifacts: artifacts,
		notifier:  notifier,
		catalog:   catalog,
		logger:    logger,
	}
}

// turn accumulates the effects of one message.
type turn struct {
	m    *Machine
	sess Session
	res  Result
}

func (t *turn) say(key string, args ...any) {
	t.res.Replies = append(t.res.Replies, Reply{Text: t.m.catalog.Text(t.sess.Lang, key, args...)})
}

func (t *turn) reply(r Reply) {
	t.res.Replies = append(t.res.Replies, r)
}

func (t *turn) enter(s State) {
	t.sess.State = s
	t.res.Path = append(t.res.Path, s)
}

// Resume returns a fresh session for a user with no dialogue in memory. The
// language is taken from the user's most recent registration, if any.
func (m *Machine) Resume(ctx context.Context, userID string) Session {
	sess := NewSession(userID)
	regs, err := m.registrar.Registrations(ctx, userID)
	if err != nil {
		m.logger.Warn("load registrations for language", "user_id", userID, "error", err)
		return sess
	}
	if len(regs) == 0 {
		return sess
	}
	if lang := regs[len(regs)-1].Lang; slices.Contains(Languages, lang) {
		sess.Lang = lang
	}
	return sess
}

// Handle advances sess by one inbound message.
func (m *Machine) Handle(ctx context.Context, sess Session, text string) (Session, Result) {
	t := &turn{m: m, sess: sess}
	text = strings.TrimSpace(text)

	cmd, arg, isCmd := parseCommand(text)
	switch {
	case isCmd && cmd == "/start":
		m.start(ctx, t, arg)
	case isCmd && (sess.State != StateMainMenu || m.choice(text) == choiceNone):
		// Commands are never dialogue input; anything the menu does not
		// handle restarts the dialogue.
		m.start(ctx, t, "")
	default:
		switch sess.State {
		case StateStart:
			m.start(ctx, t, "")
		case StateLanguageSelect:
			m.selectLanguage(ctx, t, text)
		case StateMainMenu:
			m.mainMenu(ctx, t, text)
		case StateCollectName:
			m.collectName(t, text)
		case StateCollectEmail:
			m.collectEmail(t, text)
		case StateCollectAttendeeCount, StateCommit:
			m.collectAttendeeCount(ctx, t, text)
		case StateCancelFlow:
			m.cancel(ctx, t, text)
		default:
			t.enter(StateMainMenu)
			m.showMenu(t)
		}
	}

	if len(t.res.Path) == 0 {
		t.res.Path = []State{t.sess.State}
	}
	return t.sess, t.res
}

// parseCommand splits "/cmd arg". A "@botname" suffix on the command is
// dropped.
func parseCommand(text string) (cmd, arg string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	cmd, arg, _ = strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(arg), true
}

// ── Start and language ────────────────────────────────────────

func (m *Machine) start(ctx context.Context, t *turn, token string) {
	if token != "" {
		id, err := deeplink.Decode(token)
		if err != nil {
			t.say("invalid_link")
			return
		}
		if _, err := m.registrar.Event(ctx, id); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				t.say("event_not_found")
			} else {
				m.logger.Error("load event for deep link", "user_id", t.sess.UserID, "event_id", id, "error", err)
				t.say("storage_error")
			}
			return
		}
		t.sess.EventID = id
	}

	t.sess.Draft = Draft{}
	t.enter(StateLanguageSelect)
	t.reply(Reply{Text: m.multilingual("start")})
	if t.sess.EventID == "" {
		t.say("no_event_selected")
	}
	t.reply(Reply{Text: m.multilingual("select_language"), Keyboard: [][]string{languageButtons}})
}

// multilingual joins one message in every supported language.
func (m *Machine) multilingual(key string) string {
	parts := make([]string, 0, len(Languages))
	seen := make(map[string]bool)
	for _, lang := range Languages {
		s := m.catalog.Text(lang, key)
		if !seen[s] {
			seen[s] = true
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (m *Machine) selectLanguage(ctx context.Context, t *turn, text string) {
	t.sess.Lang = DetectLanguage(text)
	t.enter(StateMainMenu)
	if t.sess.EventID != "" {
		ev, err := m.registrar.Event(ctx, t.sess.EventID)
		if err == nil {
			t.reply(Reply{Text: m.eventSummary(t.sess.Lang, ev)})
		}
	}
	m.showMenu(t)
}

// ── Main menu ─────────────────────────────────────────────────

type menuChoice int

const (
	choiceNone menuChoice = iota
	choiceRegister
	choiceRetrieve
	choiceCancel
	choiceLanguage
)

var menuKeys = []struct {
	key     string
	command string
	choice  menuChoice
}{
	{"register", "/register", choiceRegister},
	{"retrieve", "/registrations", choiceRetrieve},
	{"cancel_registration", "/cancel", choiceCancel},
	{"change_language", "/language", choiceLanguage},
}

// choice matches a menu button in any language or its command.
func (m *Machine) choice(text string) menuChoice {
	if cmd, _, ok := parseCommand(text); ok {
		for _, k := range menuKeys {
			if cmd == k.command {
				return k.choice
			}
		}
		return choiceNone
	}
	for _, k := range menuKeys {
		for _, lang := range Languages {
			if strings.EqualFold(text, m.catalog.Text(lang, k.key)) {
				return k.choice
			}
		}
	}
	return choiceNone
}

func (m *Machine) showMenu(t *turn) {
	lang := t.sess.Lang
	t.reply(Reply{
		Text: m.catalog.Text(lang, "main_menu"),
		Keyboard: [][]string{
			{m.catalog.Text(lang, "register"), m.catalog.Text(lang, "retrieve")},
			{m.catalog.Text(lang, "change_language")},
			{m.catalog.Text(lang, "cancel_registration")},
		},
	})
}

func (m *Machine) mainMenu(ctx context.Context, t *turn, text string) {
	switch m.choice(text) {
	case choiceRegister:
		if t.sess.EventID == "" {
			t.say("no_event_selected")
			m.showMenu(t)
			return
		}
		ev, ok := m.loadEvent(ctx, t)
		if !ok {
			m.showMenu(t)
			return
		}
		if ev.IsFull() {
			t.say("event_full")
			m.showMenu(t)
			return
		}
		t.sess.Draft = Draft{}
		t.enter(StateCollectName)
		t.say("ask_name")
	case choiceRetrieve:
		m.listRegistrations(ctx, t)
		m.showMenu(t)
	case choiceCancel:
		t.enter(StateCancelFlow)
		t.say("provide_invoice")
	case choiceLanguage:
		t.enter(StateLanguageSelect)
		t.reply(Reply{Text: m.multilingual("select_language"), Keyboard: [][]string{languageButtons}})
	default:
		t.say("invalid_option")
		m.showMenu(t)
	}
}

// loadEvent fetches the session's event fresh from the inventory and reports
// lookup failures to the user.
func (m *Machine) loadEvent(ctx context.Context, t *turn) (*model.Event, bool) {
	ev, err := m.registrar.Event(ctx, t.sess.EventID)
	switch {
	case err == nil:
		return ev, true
	case errors.Is(err, model.ErrNotFound):
		t.say("event_not_found")
	default:
		m.logger.Error("load event", "user_id", t.sess.UserID, "event_id", t.sess.EventID, "error", err)
		t.say("storage_error")
	}
	return nil, false
}

func (m *Machine) listRegistrations(ctx context.Context, t *turn) {
	regs, err := m.registrar.Registrations(ctx, t.sess.UserID)
	if err != nil {
		m.logger.Error("list registrations", "user_id", t.sess.UserID, "error", err)
		t.say("storage_error")
		return
	}
	if len(regs) == 0 {
		t.say("no_registrations")
		return
	}
	for _, reg := range regs {
		t.reply(Reply{Text: m.registrationSummary(t.sess.Lang, reg, true)})
		if path := m.existingArtifact(reg); path != "" {
			t.reply(Reply{Document: path})
		} else {
			t.say("pdf_not_found")
		}
	}
}

func (m *Machine) existingArtifact(reg model.Registration) string {
	if m.artifacts == nil {
		return ""
	}
	path := m.artifacts.PathFor(reg)
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		return path
	}
	return ""
}

// ── Data collection ───────────────────────────────────────────

func (m *Machine) collectName(t *turn, text string) {
	if text == "" {
		t.say("ask_name")
		return
	}
	t.sess.Draft.Name = text
	t.enter(StateCollectEmail)
	t.say("ask_email")
}

func (m *Machine) collectEmail(t *turn, text string) {
	if !service.ValidEmail(text) {
		t.say("invalid_email")
		return
	}
	t.sess.Draft.Email = text
	t.enter(StateCollectAttendeeCount)
	t.say("ask_cust_amount")
}

// ParseAttendees parses a positive attendee count.
func ParseAttendees(text string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("attendee count %q: %w", text, model.ErrValidation)
	}
	return n, nil
}

func (m *Machine) collectAttendeeCount(ctx context.Context, t *turn, text string) {
	n, err := ParseAttendees(text)
	if err != nil {
		t.say("invalid_number")
		return
	}
	ev, ok := m.loadEvent(ctx, t)
	if !ok {
		t.enter(StateMainMenu)
		m.showMenu(t)
		return
	}
	if n > ev.Available() {
		t.say("not_enough_spots", ev.Available())
		return
	}
	t.sess.Draft.Attendees = n
	t.enter(StateCommit)
	m.commit(ctx, t)
}

// ── Commit ────────────────────────────────────────────────────

func (m *Machine) commit(ctx context.Context, t *turn) {
	res, err := m.registrar.Commit(ctx, service.CommitRequest{
		UserID:    t.sess.UserID,
		EventID:   t.sess.EventID,
		FullName:  t.sess.Draft.Name,
		Email:     t.sess.Draft.Email,
		Attendees: t.sess.Draft.Attendees,
		Lang:      t.sess.Lang,
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrCapacityExceeded):
			// Seats went to another session since the count was checked.
			available := 0
			if ev, lerr := m.registrar.Event(ctx, t.sess.EventID); lerr == nil {
				available = ev.Available()
			}
			t.enter(StateCollectAttendeeCount)
			t.say("spots_taken", available)
			t.say("ask_cust_amount")
		case errors.Is(err, model.ErrNotFound):
			t.enter(StateMainMenu)
			t.say("event_not_found")
			m.showMenu(t)
		default:
			m.logger.Error("commit registration", "user_id", t.sess.UserID, "event_id", t.sess.EventID, "error", err)
			t.enter(StateMainMenu)
			t.say("registration_failed")
			m.showMenu(t)
		}
		return
	}

	reg := res.Registration
	summary := m.registrationSummary(t.sess.Lang, reg, false)
	t.reply(Reply{Text: summary})

	attachment := m.renderArtifact(t, reg)
	if attachment != "" {
		t.reply(Reply{Document: attachment})
	} else {
		t.say("invoice_failed")
	}

	n := notify.Notification{
		Kind:         notify.KindRegistered,
		Registration: reg,
		Summary:      m.catalog.Text(t.sess.Lang, "new_registration") + ":\n\n" + summary,
		Attachment:   attachment,
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.logger.Warn("registration notification failed", "invoice", reg.InvoiceID, "error", err)
	}

	t.sess.Draft = Draft{}
	t.enter(StateMainMenu)
	t.say("registration_complete", reg.InvoiceID)
	m.showMenu(t)
}

// renderArtifact returns the artifact path, or "" when rendering failed or
// produced an empty file. The commit stands either way.
func (m *Machine) renderArtifact(t *turn, reg model.Registration) string {
	if m.artifacts == nil {
		return ""
	}
	path, err := m.artifacts.Render(reg, reg.Event)
	if err != nil {
		m.logger.Error("render invoice", "invoice", reg.InvoiceID, "error", err)
		return ""
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		m.logger.Error("invoice artifact missing or empty", "invoice", reg.InvoiceID, "path", path, "error", err)
		return ""
	}
	return path
}

// ── Cancellation ──────────────────────────────────────────────

func (m *Machine) cancel(ctx context.Context, t *turn, text string) {
	res, err := m.registrar.Cancel(ctx, t.sess.UserID, text)
	switch {
	case err == nil && res.AlreadyCanceled:
		t.say("already_canceled")
	case err == nil:
		t.say("cancellation_successful")
		n := notify.Notification{
			Kind: notify.KindCanceled,
			Registration: model.Registration{
				UserID:    t.sess.UserID,
				InvoiceID: res.InvoiceID,
				EventID:   res.EventID,
				Attendees: res.Attendees,
				Status:    model.StatusCanceled,
			},
			Summary: fmt.Sprintf("%s: %s", m.catalog.Text(t.sess.Lang, "registration_canceled"), res.InvoiceID),
		}
		if err := m.notifier.Notify(ctx, n); err != nil {
			m.logger.Warn("cancellation notification failed", "invoice", res.InvoiceID, "error", err)
		}
	case errors.Is(err, model.ErrNotFound), errors.Is(err, model.ErrValidation):
		t.say("invalid_invoice")
	default:
		t.say("cancellation_failed")
	}
	t.enter(StateMainMenu)
	m.showMenu(t)
}

// ── Summaries ─────────────────────────────────────────────────

func (m *Machine) eventSummary(lang string, ev *model.Event) string {
	c := m.catalog
	lines := []string{
		c.Text(lang, "event_summary"),
		c.Text(lang, "game") + ": " + ev.Name,
		c.Text(lang, "place") + ": " + ev.Place,
		c.Text(lang, "date") + ": " + ev.Date.Format(model.DateLayout),
		c.Text(lang, "time") + ": " + ev.Time,
		c.Text(lang, "price_per_person") + ": €" + ev.PricePerPerson.String(),
		c.Text(lang, "spots_left") + ": " + strconv.Itoa(ev.Available()),
	}
	return strings.Join(lines, "\n")
}

func (m *Machine) registrationSummary(lang string, reg model.Registration, withStatus bool) string {
	c := m.catalog
	lines := []string{
		c.Text(lang, "summary"),
		c.Text(lang, "game") + ": " + reg.Event.Name,
		c.Text(lang, "place") + ": " + reg.Event.Place,
		c.Text(lang, "date") + ": " + reg.Event.Date,
		c.Text(lang, "time") + ": " + reg.Event.Time,
		c.Text(lang, "price_per_person") + ": €" + reg.Event.PricePerPerson.String(),
		c.Text(lang, "name") + ": " + reg.FullName,
		c.Text(lang, "email") + ": " + reg.Email,
		c.Text(lang, "attendees") + ": " + strconv.Itoa(reg.Attendees),
		c.Text(lang, "total_price") + ": €" + reg.TotalPrice.String(),
		c.Text(lang, "invoice_number") + ": " + reg.InvoiceID,
	}
	if withStatus && !reg.Active() {
		lines = append(lines, "⚠️ "+c.Text(lang, "canceled"))
	}
	return strings.Join(lines, "\n")
}
