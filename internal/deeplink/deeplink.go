// Package deeplink encodes an event id into the opaque start token of a chat
// deep link and decodes it back.
//
// The token is the unpadded base64url form of the query string
// "game_id=<id>". Tokens from older links may carry "=" padding.
package deeplink

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/Shivanand-hulikatti/event-reg-bot/internal/model"
)

// ErrInvalid is returned for a token that does not name an event.
var ErrInvalid = fmt.Errorf("invalid link: %w", model.ErrValidation)

const param = "game_id"

// Encode returns the start token for eventID.
func Encode(eventID string) string {
	q := url.Values{param: {eventID}}.Encode()
	return base64.RawURLEncoding.EncodeToString([]byte(q))
}

// Decode returns the event id carried by token.
func Decode(token string) (string, error) {
	token = strings.TrimRight(strings.TrimSpace(token), "=")
	if token == "" {
		return "", ErrInvalid
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || !utf8.Valid(raw) {
		return "", ErrInvalid
	}
	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return "", ErrInvalid
	}
	id := strings.TrimSpace(values.Get(param))
	if id == "" {
		return "", ErrInvalid
	}
	return id, nil
}

// Link appends the start token for eventID to base, e.g.
// "https://t.me/some_bot" becomes "https://t.me/some_bot?start=Z2FtZV9pZD1FMQ".
func Link(base, eventID string) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "start=" + Encode(eventID)
}
