package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/clock"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/conversation"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/deeplink"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/filestore"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/guard"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/invoice"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/service"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newServer wires the API to the file-backed stack behind the same
// middleware the binary uses.
func newServer(t *testing.T, events ...model.Event) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	logger := discardLogger()
	g := guard.New()
	clk := clock.NewFixed(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC))

	inv := filestore.NewInventory(filepath.Join(dir, "games.csv"), g, logger)
	require.NoError(t, inv.Import(context.Background(), events))
	led := filestore.NewLedger(filepath.Join(dir, "user_data.json"), g, logger)
	counter := filestore.NewCounter(filepath.Join(dir, "counter.json"), "OG", clk, g, led.MaxSequence)
	rec := service.NewReconciler(inv, led, g, logger)
	journal := filestore.NewJournal(filepath.Join(dir, "journal"), g, rec.ReconcileHeld, logger)
	registrar := service.NewRegistrar(inv, led, counter, journal, g, clk, logger)

	renderer := invoice.NewRenderer(filepath.Join(dir, "invoices"), invoice.Issuer{Name: "Open Games"})
	machine := conversation.NewMachine(registrar, renderer, nil, conversation.DefaultCatalog(), logger)
	engine := conversation.NewEngine(machine, conversation.NewMemoryStore(), g, clk, logger)

	r := chi.NewRouter()
	r.Use(Logger(logger))
	r.Use(CORS)
	NewAPI(registrar, engine, "https://t.me/regbot", logger).Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func quiz(id string, capacity int) model.Event {
	return model.Event{
		ID:             id,
		Name:           "Quiz night",
		Place:          "Riga",
		Date:           time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		Time:           "19:00",
		PricePerPerson: 1250,
		Capacity:       capacity,
	}
}

func getJSON(t *testing.T, url string, dst any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

func say(t *testing.T, srv *httptest.Server, userID, text string) MessageResponse {
	t.Helper()
	body, err := json.Marshal(MessageRequest{Text: text})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/sessions/"+userID+"/messages", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out MessageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	srv := newServer(t)
	var body map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestEvents(t *testing.T) {
	srv := newServer(t, quiz("E1", 10), quiz("E2", 4))

	var list []EventResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/events", &list))
	require.Len(t, list, 2)
	assert.Equal(t, 10, list[0].Available)

	var one EventResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/events/E2", &one))
	assert.Equal(t, "E2", one.ID)
	assert.Equal(t, model.Cents(1250), one.PricePerPerson)

	var errBody ErrorResponse
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/events/nope", &errBody))
	assert.NotEmpty(t, errBody.Error)
}

func TestEventLink(t *testing.T) {
	srv := newServer(t, quiz("E1", 10))

	var link LinkResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/events/E1/link", &link))
	assert.Equal(t, "https://t.me/regbot?start="+link.Token, link.Link)
	id, err := deeplink.Decode(link.Token)
	require.NoError(t, err)
	assert.Equal(t, "E1", id)
}

func TestDialogueOverHTTP(t *testing.T) {
	srv := newServer(t, quiz("E1", 10))

	assert.Equal(t, "language_select", say(t, srv, "42", "/start "+deeplink.Encode("E1")).State)
	assert.Equal(t, "main_menu", say(t, srv, "42", "English").State)
	assert.Equal(t, "collect_name", say(t, srv, "42", "Register").State)
	assert.Equal(t, "collect_email", say(t, srv, "42", "Jane Doe").State)
	assert.Equal(t, "collect_attendee_count", say(t, srv, "42", "jane@example.com").State)

	res := say(t, srv, "42", "2")
	assert.Equal(t, "main_menu", res.State)
	var docs []string
	for _, r := range res.Replies {
		if r.Document != "" {
			docs = append(docs, filepath.Base(r.Document))
		}
	}
	assert.Equal(t, []string{"OG_141026_1_Jane_Doe.html"}, docs)

	var regs []RegistrationResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/users/42/registrations", &regs))
	require.Len(t, regs, 1)
	assert.Equal(t, "OG_141026_1", regs[0].InvoiceID)
	assert.Equal(t, model.Cents(2500), regs[0].TotalPrice)
	assert.Equal(t, "active", regs[0].Status)

	var ev EventResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/events/E1", &ev))
	assert.Equal(t, 8, ev.Available)
}

func TestPostMessage_BadBody(t *testing.T) {
	srv := newServer(t)
	resp, err := http.Post(srv.URL+"/sessions/42/messages", "application/json", strings.NewReader(`{"txt":1}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(t)
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", model.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", model.ErrCapacityExceeded), http.StatusConflict},
		{model.ErrDuplicateInvoice, http.StatusConflict},
		{model.ErrValidation, http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", model.ErrStorageUnavailable), http.StatusServiceUnavailable},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
