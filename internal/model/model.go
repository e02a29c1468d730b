// Package model defines the core domain types for the seat reservation system.
package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used by the event import table.
const DateLayout = "2006-01-02"

// Event is a scheduled event with a fixed number of sellable seats.
type Event struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Place          string    `json:"place"`
	Date           time.Time `json:"date"`
	Time           string    `json:"time"`
	PricePerPerson Cents     `json:"price_per_person"`
	Capacity       int       `json:"capacity"`
	Reserved       int       `json:"reserved"`
}

// Available returns the number of seats that can still be offered.
func (e *Event) Available() int {
	if e.Reserved >= e.Capacity {
		return 0
	}
	return e.Capacity - e.Reserved
}

// IsFull returns true when no seats remain.
func (e *Event) IsFull() bool {
	return e.Available() == 0
}

// Snapshot captures the event details a registration keeps at commit time.
func (e *Event) Snapshot() EventSnapshot {
	return EventSnapshot{
		EventID:        e.ID,
		Name:           e.Name,
		Place:          e.Place,
		Date:           e.Date.Format(DateLayout),
		Time:           e.Time,
		PricePerPerson: e.PricePerPerson,
	}
}

// Status is the lifecycle state of a registration.
type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
)

// EventSnapshot is the copy of event details stored with a registration.
type EventSnapshot struct {
	EventID        string `json:"game_id"`
	Name           string `json:"game_name"`
	Place          string `json:"place"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	PricePerPerson Cents  `json:"price_per_person"`
}

// Registration is one committed seat reservation owned by a user.
type Registration struct {
	UserID     string
	InvoiceID  string
	EventID    string
	FullName   string
	Email      string
	Attendees  int
	TotalPrice Cents
	Status     Status
	Lang       string
	CreatedAt  time.Time
	Event      EventSnapshot
}

// Active reports whether the registration still holds seats.
func (r *Registration) Active() bool {
	return r.Status != StatusCanceled
}

// FirstName returns the first word of the full name.
func (r *Registration) FirstName() string {
	first, _ := SplitName(r.FullName)
	return first
}

// LastName returns everything after the first word of the full name.
func (r *Registration) LastName() string {
	_, last := SplitName(r.FullName)
	return last
}

// SplitName splits a free-text name into a first word and the remainder.
func SplitName(full string) (first, last string) {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return "", ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// JoinName is the inverse of SplitName for stored first/last pairs.
func JoinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

// CancelResult describes the outcome of a ledger cancellation.
type CancelResult struct {
	InvoiceID       string
	EventID         string
	Attendees       int
	AlreadyCanceled bool
}

// Cents is a non-negative money amount in hundredths of the currency unit.
type Cents int64

// Mul returns the amount multiplied by n.
func (c Cents) Mul(n int) Cents {
	return c * Cents(n)
}

// Euros returns the whole-unit part.
func (c Cents) Euros() int64 {
	return int64(c) / 100
}

// Fraction returns the hundredths part.
func (c Cents) Fraction() int64 {
	return int64(c) % 100
}

// Float returns the amount as a decimal number, as stored in the ledger layout.
func (c Cents) Float() float64 {
	return float64(c) / 100
}

// String formats the amount with two decimals, e.g. "12.50".
func (c Cents) String() string {
	return fmt.Sprintf("%d.%02d", c.Euros(), c.Fraction())
}
