package conversation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/clock"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/deeplink"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/filestore"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/guard"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/invoice"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/service"
)

type stack struct {
	engine    *Engine
	inventory *filestore.Inventory
	ledger    *filestore.Ledger
	sink      *recordingSink
}

// newStack wires the dialogue to the file-backed stores, the way the server
// does.
func newStack(t *testing.T, events ...model.Event) *stack {
	t.Helper()
	dir := t.TempDir()
	logger := discardLogger()
	g := guard.New()
	clk := clock.NewFixed(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))

	inv := filestore.NewInventory(filepath.Join(dir, "games.csv"), g, logger)
	led := filestore.NewLedger(filepath.Join(dir, "user_data.json"), g, logger)
	require.NoError(t, inv.Import(context.Background(), events))
	invoices := filepath.Join(dir, "invoices")
	counter := filestore.NewCounter(filepath.Join(dir, "counter.json"), "OG", clk, g,
		filestore.ArtifactSeeder(invoices), led.MaxSequence)
	rec := service.NewReconciler(inv, led, g, logger)
	journal := filestore.NewJournal(filepath.Join(dir, "journal"), g, rec.ReconcileHeld, logger)
	registrar := service.NewRegistrar(inv, led, counter, journal, g, clk, logger)

	sink := &recordingSink{}
	renderer := invoice.NewRenderer(invoices, invoice.Issuer{Name: "Open Games"})
	machine := NewMachine(registrar, renderer, sink, DefaultCatalog(), logger)
	return &stack{
		engine:    NewEngine(machine, NewMemoryStore(), g, clk, logger),
		inventory: inv,
		ledger:    led,
		sink:      sink,
	}
}

func TestEngine_FullDialogue(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, event("E1", 10, 0))
	say := func(text string) Result { return s.engine.Handle(ctx, "42", text) }

	assert.Equal(t, StateLanguageSelect, say("/start "+deeplink.Encode("E1")).State())
	assert.Equal(t, StateMainMenu, say("English").State())
	assert.Equal(t, StateCollectName, say("Register").State())
	assert.Equal(t, StateCollectEmail, say("Jane Doe").State())
	assert.Equal(t, StateCollectEmail, say("jane@").State())
	assert.Equal(t, StateCollectAttendeeCount, say("jane@example.com").State())
	assert.Equal(t, StateCollectAttendeeCount, say("11").State())

	res := say("3")
	assert.Equal(t, StateMainMenu, res.State())
	docs := documents(res)
	require.Len(t, docs, 1)
	assert.Equal(t, "OG_141026_1_Jane_Doe.html", filepath.Base(docs[0]))
	info, err := os.Stat(docs[0])
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	ev, err := s.inventory.GetEvent(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 7, ev.Available())
	regs, err := s.ledger.Find(ctx, "42")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, model.Cents(3750), regs[0].TotalPrice)
	assert.Equal(t, "en", regs[0].Lang)

	res = say("My registrations")
	assert.Equal(t, StateMainMenu, res.State())
	assert.Equal(t, docs, documents(res))

	assert.Equal(t, StateCancelFlow, say("Cancel registration").State())
	res = say("OG_141026_1")
	assert.Equal(t, StateMainMenu, res.State())
	assert.Contains(t, texts(res), cat.Text("en", "cancellation_successful"))

	ev, err = s.inventory.GetEvent(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 10, ev.Available())
	assert.Len(t, s.sink.all(), 2)
}

func TestEngine_NewSessionRestoresLanguage(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, event("E1", 10, 0))
	_, err := s.ledger.Append(ctx, model.Registration{
		UserID:    "7",
		InvoiceID: "OG_131026_1",
		EventID:   "E1",
		Attendees: 1,
		Status:    model.StatusActive,
		Lang:      "ru",
	})
	require.NoError(t, err)

	s.engine.Handle(ctx, "7", "/start")
	assert.Equal(t, "ru", s.engine.Session("7").Lang)

	s.engine.Handle(ctx, "8", "/start")
	assert.Equal(t, DefaultLanguage, s.engine.Session("8").Lang)
}

func TestEngine_ConcurrentUsersLastSeat(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, event("E1", 1, 0))

	users := []string{"a", "b"}
	for _, u := range users {
		s.engine.Handle(ctx, u, "/start "+deeplink.Encode("E1"))
		s.engine.Handle(ctx, u, "English")
		s.engine.Handle(ctx, u, "Register")
		s.engine.Handle(ctx, u, "Jane Doe")
		require.Equal(t, StateCollectAttendeeCount, s.engine.Handle(ctx, u, "jane@example.com").State())
	}

	var wg sync.WaitGroup
	results := make([]Result, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			results[i] = s.engine.Handle(ctx, u, "1")
		}(i, u)
	}
	wg.Wait()

	var committed, bounced int
	for _, res := range results {
		switch res.State() {
		case StateMainMenu:
			committed++
		case StateCollectAttendeeCount:
			bounced++
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, bounced)

	ev, err := s.inventory.GetEvent(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 0, ev.Available())
	seats, err := s.ledger.ActiveSeats(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, 1, seats)
}

func TestEngine_SerializesOneUser(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, event("E1", 100, 0))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.engine.Handle(ctx, fmt.Sprintf("user-%d", i), "/start "+deeplink.Encode("E1"))
			s.engine.Handle(ctx, fmt.Sprintf("user-%d", i), "English")
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		sess := s.engine.Session(fmt.Sprintf("user-%d", i))
		assert.Equal(t, StateMainMenu, sess.State)
		assert.Equal(t, "E1", sess.EventID)
	}
}

func TestEngine_Prune(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, event("E1", 10, 0))
	s.engine.Handle(ctx, "42", "/start")
	require.Equal(t, 1, s.engine.store.Len())

	assert.Equal(t, 0, s.engine.Prune(time.Hour))
	assert.Equal(t, 1, s.engine.Prune(-time.Minute))
	assert.Equal(t, 0, s.engine.store.Len())
	assert.Equal(t, StateStart, s.engine.Session("42").State)
}
