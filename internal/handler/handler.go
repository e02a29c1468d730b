// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the registration service and the dialogue
// engine.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/conversation"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/deeplink"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

// Catalog serves events and registrations.
type Catalog interface {
	Events(ctx context.Context) ([]model.Event, error)
	Event(ctx context.Context, id string) (*model.Event, error)
	Registrations(ctx context.Context, userID string) ([]model.Registration, error)
}

// Dialogue handles one inbound chat message.
type Dialogue interface {
	Handle(ctx context.Context, userID, text string) conversation.Result
}

// API holds all HTTP handlers for the registration API.
type API struct {
	catalog  Catalog
	dialogue Dialogue
	linkBase string
	logger   *slog.Logger
}

// NewAPI constructs an API. linkBase prefixes generated deep links.
func NewAPI(catalog Catalog, dialogue Dialogue, linkBase string, logger *slog.Logger) *API {
	return &API{catalog: catalog, dialogue: dialogue, linkBase: linkBase, logger: logger}
}

// Routes mounts the API on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/health", HealthCheck)
	r.Route("/events", func(r chi.Router) {
		r.Get("/", a.ListEvents)
		r.Get("/{id}", a.GetEvent)
		r.Get("/{id}/link", a.EventLink)
	})
	r.Post("/sessions/{userID}/messages", a.PostMessage)
	r.Get("/users/{userID}/registrations", a.ListRegistrations)
}

// ─── Payloads ─────────────────────────────────────────────────────────────────

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// EventResponse is an event with its derived seat count.
type EventResponse struct {
	model.Event
	Available int `json:"available"`
}

func eventResponse(ev model.Event) EventResponse {
	return EventResponse{Event: ev, Available: ev.Available()}
}

// LinkResponse carries a registration deep link.
type LinkResponse struct {
	EventID string `json:"event_id"`
	Token   string `json:"token"`
	Link    string `json:"link"`
}

// MessageRequest is one inbound chat message.
type MessageRequest struct {
	Text string `json:"text"`
}

// MessageResponse is the dialogue's answer to a message.
type MessageResponse struct {
	State   string               `json:"state"`
	Replies []conversation.Reply `json:"replies"`
}

// RegistrationResponse is the public view of a registration.
type RegistrationResponse struct {
	InvoiceID  string      `json:"invoice_id"`
	EventID    string      `json:"event_id"`
	EventName  string      `json:"event_name"`
	FullName   string      `json:"full_name"`
	Email      string      `json:"email"`
	Attendees  int         `json:"attendees"`
	TotalPrice model.Cents `json:"total_price"`
	Status     string      `json:"status"`
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrCapacityExceeded), errors.Is(err, model.ErrDuplicateInvoice):
		return http.StatusConflict
	case errors.Is(err, model.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "path", r.URL.Path, "status", status, "error", err)
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// ListEvents handles GET /events
func (a *API) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := a.catalog.Events(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, eventResponse(ev))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetEvent handles GET /events/{id}
func (a *API) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := a.catalog.Event(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventResponse(*ev))
}

// EventLink handles GET /events/{id}/link
// Returns the deep link that starts a registration for the event.
func (a *API) EventLink(w http.ResponseWriter, r *http.Request) {
	ev, err := a.catalog.Event(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LinkResponse{
		EventID: ev.ID,
		Token:   deeplink.Encode(ev.ID),
		Link:    deeplink.Link(a.linkBase, ev.ID),
	})
}

// PostMessage handles POST /sessions/{userID}/messages
// Feeds one chat message into the user's dialogue.
func (a *API) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}
	var req MessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	res := a.dialogue.Handle(r.Context(), userID, req.Text)
	replies := res.Replies
	if replies == nil {
		replies = []conversation.Reply{}
	}
	writeJSON(w, http.StatusOK, MessageResponse{State: res.State().String(), Replies: replies})
}

// ListRegistrations handles GET /users/{userID}/registrations
func (a *API) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := a.catalog.Registrations(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	out := make([]RegistrationResponse, 0, len(regs))
	for _, reg := range regs {
		status := model.StatusActive
		if !reg.Active() {
			status = model.StatusCanceled
		}
		out = append(out, RegistrationResponse{
			InvoiceID:  reg.InvoiceID,
			EventID:    reg.EventID,
			EventName:  reg.Event.Name,
			FullName:   reg.FullName,
			Email:      reg.Email,
			Attendees:  reg.Attendees,
			TotalPrice: reg.TotalPrice,
			Status:     string(status),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
