package litbuddy

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// ============================================================================
// Chat Types
// ============================================================================

// ConversationState is the pause/resume state of a 1:1 conversation.
type ConversationState string

const (
	StateActive ConversationState = "active"
	StatePaused ConversationState = "paused"
)

// Participant is a user taking part in a chat.
type Participant struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Message is a single chat message, local or server-delivered.
//
// Optimistic marks a locally created copy that has not been confirmed by the
// server yet; its ID carries the "temp-" prefix until the durable copy for
// the same send replaces it.
type Message struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chatId,omitempty"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
	Optimistic bool      `json:"-"`
}

// ConversationStatus is the pause state attached to a chat.
type ConversationStatus struct {
	State    ConversationState `json:"state"`
	PausedBy string            `json:"pausedBy,omitempty"`
	PausedAt *time.Time        `json:"pausedAt,omitempty"`
}

// StatusEvent is a server-pushed pause/resume change for a chat. At is the
// server timestamp of the change and drives stale-echo arbitration.
type StatusEvent struct {
	ChatID   string            `json:"chatId"`
	State    ConversationState `json:"state"`
	PausedBy string            `json:"pausedBy,omitempty"`
	At       time.Time         `json:"at"`
}

// Chat is a 1:1 conversation summary.
type Chat struct {
	ID           string             `json:"id"`
	Participants []Participant      `json:"participants,omitempty"`
	Status       ConversationStatus `json:"status"`
	LastMessage  *Message           `json:"lastMessage,omitempty"`
	UnreadCount  int                `json:"unreadCount,omitempty"`
	CreatedAt    time.Time          `json:"createdAt"`
}

// GroupChat is a book-club group conversation summary.
type GroupChat struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	ClubID      string        `json:"clubId,omitempty"`
	Members     []Participant `json:"members,omitempty"`
	LastMessage *Message      `json:"lastMessage,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// ChatHistory is the combined history+status snapshot loaded when a
// conversation opens.
type ChatHistory struct {
	ChatID       string             `json:"chatId,omitempty"`
	Messages     []Message          `json:"messages"`
	Status       ConversationStatus `json:"status"`
	Participants []Participant      `json:"participants,omitempty"`
}

// ============================================================================
// Notification Types
// ============================================================================

// Notification is a server-generated alert for the current user.
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Read      bool      `json:"read"`
}

// ============================================================================
// API Result Envelope
// ============================================================================

// Result is the generic API response envelope.
type Result struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Meta  map[string]any  `json:"meta,omitempty"`
	Error *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into the provided type.
func (r *Result) Decode(v interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// ============================================================================
// Tagged-result decoding
// ============================================================================
//
// The backend is not consistent about response shapes: a history endpoint may
// return a bare message array, an object with a "messages" field, or (for a
// fresh send) an object with a single "message" field. The decoders below fix
// one fallback order per payload kind instead of sniffing shapes at every
// call site. The order is part of the contract; callers rely on it.

// DecodeMessages decodes a history payload. Fallback order:
//  1. object with a "messages" array (plus optional status/participants)
//  2. bare array of messages
//  3. object with a single "message"
func DecodeMessages(data json.RawMessage) (*ChatHistory, error) {
	if len(data) == 0 {
		return &ChatHistory{}, nil
	}

	var wrapped ChatHistory
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Messages != nil {
		return &wrapped, nil
	}

	var list []Message
	if err := json.Unmarshal(data, &list); err == nil {
		return &ChatHistory{Messages: list}, nil
	}

	var single struct {
		Message *Message `json:"message"`
	}
	if err := json.Unmarshal(data, &single); err == nil && single.Message != nil {
		return &ChatHistory{Messages: []Message{*single.Message}}, nil
	}

	return nil, &APIError{Code: "BAD_SHAPE", Message: "unrecognized message payload shape"}
}

// DecodeMessage decodes a single-message payload. Fallback order:
//  1. object with a "message" field
//  2. bare message object
func DecodeMessage(data json.RawMessage) (*Message, error) {
	if len(data) == 0 {
		return nil, &APIError{Code: "BAD_SHAPE", Message: "empty message payload"}
	}

	var wrapped struct {
		Message *Message `json:"message"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Message != nil {
		return wrapped.Message, nil
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err == nil && msg.ID != "" {
		return &msg, nil
	}

	return nil, &APIError{Code: "BAD_SHAPE", Message: "unrecognized message payload shape"}
}

// DecodeChats decodes a chat-list payload. Fallback order:
//  1. object with a "chats" array
//  2. bare array of chats
func DecodeChats(data json.RawMessage) ([]Chat, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var wrapped struct {
		Chats []Chat `json:"chats"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Chats != nil {
		return wrapped.Chats, nil
	}

	var list []Chat
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	return nil, &APIError{Code: "BAD_SHAPE", Message: "unrecognized chat list shape"}
}

// DecodeGroupChats decodes a group-chat-list payload with the same fallback
// order as DecodeChats.
func DecodeGroupChats(data json.RawMessage) ([]GroupChat, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var wrapped struct {
		Chats []GroupChat `json:"chats"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Chats != nil {
		return wrapped.Chats, nil
	}

	var list []GroupChat
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	return nil, &APIError{Code: "BAD_SHAPE", Message: "unrecognized group chat list shape"}
}
