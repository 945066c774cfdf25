package litbuddy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// openTimeout bounds the initial history+status fetch when a conversation
// opens.
const openTimeout = 10 * time.Second

// ErrConversationPaused is returned by Send while the conversation is paused.
var ErrConversationPaused = errors.New("litbuddy: conversation is paused")

// ============================================================================
// Conversation Session
// ============================================================================

// Conversation is a live view over one 1:1 chat: the loaded history, the
// reconciled pause status, and the realtime subscriptions that keep both
// current. Sends are optimistic: the message appears in the local transcript
// immediately and is rolled back if the server rejects it.
type Conversation struct {
	client *Client
	rt     *Realtime
	chatID string
	logger zerolog.Logger

	mu       sync.Mutex
	messages []Message
	partner  *Participant
	status   *statusSynchronizer
	closed   bool

	onMessage func(Message)
	onStatus  func(ConversationStatus)
}

// OpenConversation loads a chat's history and pause status and wires the
// realtime subscriptions for it. The initial fetch is bounded by a 10 second
// timeout on top of ctx. Subscriptions made while the realtime client is
// still connecting take effect once it connects; the returned conversation
// is usable either way.
func (c *Client) OpenConversation(ctx context.Context, rt *Realtime, chatID string) (*Conversation, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	hist, err := c.Chats().History(fetchCtx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversation: %w", err)
	}

	conv := &Conversation{
		client:   c,
		rt:       rt,
		chatID:   chatID,
		logger:   c.logger.With().Str("component", "conversation").Str("chatId", chatID).Logger(),
		messages: hist.Messages,
		status:   newStatusSynchronizer(hist.Status),
	}
	conv.partner = derivePartner(c.userID, hist)

	// A chat's traffic can arrive on its topic or on the user's personal
	// queue depending on how the backend routes it, so both are watched.
	conv.subscribeAll(ctx)

	return conv, nil
}

// derivePartner finds the other participant. Falls back to scanning message
// senders when the history payload carries no participant list.
func derivePartner(selfID string, hist *ChatHistory) *Participant {
	for i := range hist.Participants {
		if hist.Participants[i].ID != selfID {
			return &hist.Participants[i]
		}
	}
	for i := range hist.Messages {
		m := &hist.Messages[i]
		if m.SenderID != "" && m.SenderID != selfID {
			return &Participant{ID: m.SenderID, Username: m.SenderName}
		}
	}
	return nil
}

func (cv *Conversation) subscribeAll(ctx context.Context) {
	subs := []struct {
		destination string
		handler     FrameHandler
	}{
		{ChatMessagesTopic(cv.chatID), cv.handleMessageFrame},
		{ChatStatusTopic(cv.chatID), cv.handleStatusFrame},
		{UserMessagesQueue(cv.client.userID), cv.handleMessageFrame},
		{UserStatusQueue(cv.client.userID), cv.handleStatusFrame},
	}
	for _, s := range subs {
		if err := cv.rt.Subscribe(ctx, s.destination, s.handler); err != nil && err != ErrNotConnected {
			cv.logger.Warn().Err(err).Str("destination", s.destination).Msg("subscribe failed")
		}
	}
}

// ChatID returns the chat this conversation is bound to.
func (cv *Conversation) ChatID() string {
	return cv.chatID
}

// Partner returns the other participant, or nil when it cannot be derived
// from an empty chat.
func (cv *Conversation) Partner() *Participant {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	return cv.partner
}

// Messages returns a snapshot of the transcript in delivery order.
func (cv *Conversation) Messages() []Message {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	out := make([]Message, len(cv.messages))
	copy(out, cv.messages)
	return out
}

// Status returns the currently shown pause status.
func (cv *Conversation) Status() ConversationStatus {
	return cv.status.snapshot()
}

// Paused reports whether the conversation is currently paused.
func (cv *Conversation) Paused() bool {
	return cv.status.snapshot().State == StatePaused
}

// OnMessage sets the callback invoked for every message appended to the
// transcript, local or remote. Called on the delivery goroutine; must not
// block.
func (cv *Conversation) OnMessage(h func(Message)) {
	cv.mu.Lock()
	cv.onMessage = h
	cv.mu.Unlock()
}

// OnStatus sets the callback invoked when the shown pause status changes.
func (cv *Conversation) OnStatus(h func(ConversationStatus)) {
	cv.mu.Lock()
	cv.onStatus = h
	cv.mu.Unlock()
}

// Send sends a message. A temporary copy appears in the transcript
// immediately; when the server confirms, the durable copy replaces it in
// place, and when the send fails the temporary copy is removed and the error
// returned. Send fails with ErrConversationPaused while the conversation is
// paused.
func (cv *Conversation) Send(ctx context.Context, text string) (*Message, error) {
	if cv.Paused() {
		return nil, ErrConversationPaused
	}

	temp := Message{
		ID:         "temp-" + uuid.NewString(),
		ChatID:     cv.chatID,
		SenderID:   cv.client.userID,
		Text:       text,
		CreatedAt:  time.Now(),
		Optimistic: true,
	}

	cv.appendMessage(temp)

	sent, err := cv.client.Chats().SendMessage(ctx, cv.chatID, text)
	if err != nil {
		cv.removeMessage(temp.ID)
		return nil, err
	}

	cv.confirmMessage(temp.ID, *sent)
	return sent, nil
}

// SetPaused pauses or resumes the conversation. The shown status flips
// immediately and is rolled back if the server rejects the change.
func (cv *Conversation) SetPaused(ctx context.Context, paused bool) error {
	now := time.Now()
	next := ConversationStatus{State: StateActive}
	if paused {
		next = ConversationStatus{State: StatePaused, PausedBy: cv.client.userID, PausedAt: &now}
	}
	prev := cv.status.applyLocal(next, now)
	cv.notifyStatus(next)

	var err error
	if paused {
		_, err = cv.client.Chats().Pause(ctx, cv.chatID)
	} else {
		_, err = cv.client.Chats().Resume(ctx, cv.chatID)
	}
	if err != nil {
		cv.status.rollback(prev)
		cv.notifyStatus(prev)
		return err
	}
	return nil
}

// Close tears down the conversation's subscriptions. The realtime connection
// itself stays up for other consumers.
func (cv *Conversation) Close(ctx context.Context) {
	cv.mu.Lock()
	if cv.closed {
		cv.mu.Unlock()
		return
	}
	cv.closed = true
	cv.mu.Unlock()

	for _, d := range []string{
		ChatMessagesTopic(cv.chatID),
		ChatStatusTopic(cv.chatID),
		UserMessagesQueue(cv.client.userID),
		UserStatusQueue(cv.client.userID),
	} {
		if err := cv.rt.Unsubscribe(ctx, d); err != nil {
			cv.logger.Debug().Err(err).Str("destination", d).Msg("unsubscribe failed")
		}
	}
}

// ----------------------------------------------------------------------------
// Frame handlers
// ----------------------------------------------------------------------------

func (cv *Conversation) handleMessageFrame(f Frame) {
	var msg Message
	if err := json.Unmarshal(f.Body, &msg); err != nil {
		cv.logger.Debug().Err(err).Str("destination", f.Destination).Msg("undecodable message body")
		return
	}
	// The user queue carries traffic for every chat.
	if msg.ChatID != "" && msg.ChatID != cv.chatID {
		return
	}
	cv.applyRemoteMessage(msg)
}

func (cv *Conversation) handleStatusFrame(f Frame) {
	var ev StatusEvent
	if err := json.Unmarshal(f.Body, &ev); err != nil {
		cv.logger.Debug().Err(err).Str("destination", f.Destination).Msg("undecodable status body")
		return
	}
	if ev.ChatID != "" && ev.ChatID != cv.chatID {
		return
	}
	if cv.status.applyRemote(ev) {
		cv.notifyStatus(cv.status.snapshot())
	} else {
		cv.logger.Debug().Time("at", ev.At).Msg("stale status echo discarded")
	}
}

// applyRemoteMessage merges a server-delivered message into the transcript.
// A copy of a message already shown (matched by id, or by being the durable
// twin of a pending optimistic send) never produces a second entry.
func (cv *Conversation) applyRemoteMessage(msg Message) {
	cv.mu.Lock()
	for i := range cv.messages {
		if cv.messages[i].ID == msg.ID {
			cv.mu.Unlock()
			return
		}
	}
	if msg.SenderID == cv.client.userID {
		// Likely the broadcast echo of our own send racing the REST
		// response. Confirm the oldest matching optimistic copy in place.
		for i := range cv.messages {
			if cv.messages[i].Optimistic && cv.messages[i].Text == msg.Text {
				cv.messages[i] = msg
				handler := cv.onMessage
				cv.mu.Unlock()
				if handler != nil {
					handler(msg)
				}
				return
			}
		}
	}
	cv.messages = append(cv.messages, msg)
	handler := cv.onMessage
	cv.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

// ----------------------------------------------------------------------------
// Transcript bookkeeping
// ----------------------------------------------------------------------------

func (cv *Conversation) appendMessage(msg Message) {
	cv.mu.Lock()
	cv.messages = append(cv.messages, msg)
	handler := cv.onMessage
	cv.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}

func (cv *Conversation) removeMessage(id string) {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	for i := range cv.messages {
		if cv.messages[i].ID == id {
			cv.messages = append(cv.messages[:i], cv.messages[i+1:]...)
			return
		}
	}
}

// confirmMessage swaps a temporary copy for its durable twin without moving
// it in the transcript. If the broadcast echo already confirmed it, the
// durable copy is deduped instead.
func (cv *Conversation) confirmMessage(tempID string, durable Message) {
	cv.mu.Lock()
	defer cv.mu.Unlock()
	for i := range cv.messages {
		if cv.messages[i].ID == tempID {
			cv.messages[i] = durable
			return
		}
		if cv.messages[i].ID == durable.ID {
			return
		}
	}
}

func (cv *Conversation) notifyStatus(status ConversationStatus) {
	cv.mu.Lock()
	handler := cv.onStatus
	cv.mu.Unlock()
	if handler != nil {
		handler(status)
	}
}
