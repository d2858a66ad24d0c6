// Package protocol defines the chat payloads shared by the HTTP and websocket
// transports.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is returned for payloads that cannot be turned into a turn.
var ErrInvalidRequest = errors.New("invalid chat request")

// ChatRequest is one client utterance. UserID is optional; an absent id starts a
// new session.
type ChatRequest struct {
	UserID  *string `json:"user_id,omitempty"`
	Message string  `json:"message"`
}

// User returns the trimmed user id, or "" when none was sent.
func (r ChatRequest) User() string {
	if r.UserID == nil {
		return ""
	}
	return strings.TrimSpace(*r.UserID)
}

// ErrorFrame is written to a websocket client in place of a response when a turn
// cannot be served.
type ErrorFrame struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	UserID string `json:"user_id,omitempty"`
}

const (
	CodeInvalidRequest = "invalid_request"
	CodeRateLimited    = "rate_limited"
	CodeInternal       = "internal_error"
)

// ParseChatRequest decodes a chat payload. The message field must be present; it
// may be empty.
func ParseChatRequest(raw []byte) (ChatRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return ChatRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if _, ok := fields["message"]; !ok {
		return ChatRequest{}, fmt.Errorf("%w: missing message", ErrInvalidRequest)
	}

	var req ChatRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return ChatRequest{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return req, nil
}
