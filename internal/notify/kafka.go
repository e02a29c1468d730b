package notify

import (
	"context"
	"path/filepath"
	"time"
)

// Publisher writes a keyed JSON message. broker.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// OperatorMessage is the payload published to the operator topic.
type OperatorMessage struct {
	Kind       Kind      `json:"kind"`
	UserID     string    `json:"user_id"`
	InvoiceID  string    `json:"invoice_number"`
	EventID    string    `json:"game_id"`
	EventName  string    `json:"game_name,omitempty"`
	Attendees  int       `json:"cust_amount"`
	TotalPrice float64   `json:"total_price"`
	Summary    string    `json:"summary"`
	Attachment string    `json:"attachment,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// KafkaSink publishes notifications to the operator channel topic, keyed by
// invoice id.
type KafkaSink struct {
	pub Publisher
}

// NewKafkaSink returns a sink publishing through pub.
func NewKafkaSink(pub Publisher) *KafkaSink {
	return &KafkaSink{pub: pub}
}

// Notify implements Sink.
func (s *KafkaSink) Notify(ctx context.Context, n Notification) error {
	msg := OperatorMessage{
		Kind:       n.Kind,
		UserID:     n.Registration.UserID,
		InvoiceID:  n.Registration.InvoiceID,
		EventID:    n.Registration.EventID,
		EventName:  n.Registration.Event.Name,
		Attendees:  n.Registration.Attendees,
		TotalPrice: n.Registration.TotalPrice.Float(),
		Summary:    n.Summary,
		SentAt:     time.Now().UTC(),
	}
	if n.Attachment != "" {
		msg.Attachment = filepath.Base(n.Attachment)
	}
	return s.pub.Publish(ctx, n.Registration.InvoiceID, msg)
}
