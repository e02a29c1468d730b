// Package relay carries the dialogue over Kafka: chat messages arrive on an
// inbound topic and the replies are published to an outbound topic for the
// chat gateway to deliver.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/broker"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/conversation"
	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

// Inbound is one chat message.
type Inbound struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// Outbound carries the replies to one inbound message.
type Outbound struct {
	UserID  string               `json:"user_id"`
	State   string               `json:"state"`
	Replies []conversation.Reply `json:"replies"`
}

// Dialogue handles one message for a user. conversation.Engine satisfies it.
type Dialogue interface {
	Handle(ctx context.Context, userID, text string) conversation.Result
}

// Publisher writes a keyed JSON message. broker.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Relay connects the inbound topic, the dialogue and the outbound topic.
type Relay struct {
	dialogue Dialogue
	out      Publisher
	logger   *slog.Logger
}

// New returns a Relay.
func New(dialogue Dialogue, out Publisher, logger *slog.Logger) *Relay {
	return &Relay{dialogue: dialogue, out: out, logger: logger}
}

// HandleMessage is a broker.MessageHandler. The message key is used as the
// user id when the payload has none.
func (r *Relay) HandleMessage(ctx context.Context, key, value []byte) error {
	var in Inbound
	if err := json.Unmarshal(value, &in); err != nil {
		return fmt.Errorf("decode inbound message: %v: %w", err, model.ErrValidation)
	}
	if in.UserID == "" {
		in.UserID = string(key)
	}
	in.UserID = strings.TrimSpace(in.UserID)
	if in.UserID == "" {
		return fmt.Errorf("inbound message without user: %w", model.ErrValidation)
	}

	res := r.dialogue.Handle(ctx, in.UserID, in.Text)
	out := Outbound{UserID: in.UserID, State: res.State().String(), Replies: res.Replies}
	if err := r.out.Publish(ctx, in.UserID, out); err != nil {
		return fmt.Errorf("publish replies for %s: %w", in.UserID, err)
	}
	r.logger.Debug("relayed message", "user_id", in.UserID, "state", out.State, "replies", len(out.Replies))
	return nil
}

// Run consumes until ctx is canceled.
func (r *Relay) Run(ctx context.Context, in *broker.Consumer) error {
	r.logger.Info("relay started")
	err := in.Consume(ctx, r.HandleMessage)
	r.logger.Info("relay stopped")
	return err
}
