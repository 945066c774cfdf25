package litbuddy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ============================================================================
// Group Conversation Session
// ============================================================================

// GroupConversation is a live view over a book-club group chat. It behaves
// like Conversation minus the pause machinery: group chats cannot be paused,
// and messages carry the sender's name so members can be told apart.
type GroupConversation struct {
	client *Client
	rt     *Realtime
	chatID string
	logger zerolog.Logger

	mu       sync.Mutex
	name     string
	members  []Participant
	messages []Message
	closed   bool

	onMessage func(Message)
}

// OpenGroupConversation loads a group chat's history and wires its realtime
// subscriptions. Shares the 10 second initial-fetch bound with
// OpenConversation.
func (c *Client) OpenGroupConversation(ctx context.Context, rt *Realtime, chatID string) (*GroupConversation, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	hist, err := c.Groups().History(fetchCtx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to open group conversation: %w", err)
	}

	gc := &GroupConversation{
		client:   c,
		rt:       rt,
		chatID:   chatID,
		logger:   c.logger.With().Str("component", "group-conversation").Str("chatId", chatID).Logger(),
		members:  hist.Participants,
		messages: hist.Messages,
	}

	for _, s := range []struct {
		destination string
		handler     FrameHandler
	}{
		{GroupMessagesTopic(chatID), gc.handleMessageFrame},
		{UserGroupMessagesQueue(c.userID), gc.handleMessageFrame},
	} {
		if err := rt.Subscribe(ctx, s.destination, s.handler); err != nil && err != ErrNotConnected {
			gc.logger.Warn().Err(err).Str("destination", s.destination).Msg("subscribe failed")
		}
	}

	return gc, nil
}

// ChatID returns the group chat this session is bound to.
func (gc *GroupConversation) ChatID() string {
	return gc.chatID
}

// Members returns the known group members.
func (gc *GroupConversation) Members() []Participant {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	out := make([]Participant, len(gc.members))
	copy(out, gc.members)
	return out
}

// Messages returns a snapshot of the transcript in delivery order.
func (gc *GroupConversation) Messages() []Message {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	out := make([]Message, len(gc.messages))
	copy(out, gc.messages)
	return out
}

// OnMessage sets the callback invoked for every appended message. Called on
// the delivery goroutine; must not block.
func (gc *GroupConversation) OnMessage(h func(Message)) {
	gc.mu.Lock()
	gc.onMessage = h
	gc.mu.Unlock()
}

// SenderName resolves a sender id to a display name, preferring the member
// list over whatever name rode along on the message.
func (gc *GroupConversation) SenderName(msg Message) string {
	gc.mu.Lock()
	defer gc.mu.Unlock()
	for i := range gc.members {
		if gc.members[i].ID == msg.SenderID {
			if gc.members[i].DisplayName != "" {
				return gc.members[i].DisplayName
			}
			return gc.members[i].Username
		}
	}
	if msg.SenderName != "" {
		return msg.SenderName
	}
	return msg.SenderID
}

// Send sends a message to the group with the same optimistic lifecycle as
// Conversation.Send.
func (gc *GroupConversation) Send(ctx context.Context, text string) (*Message, error) {
	temp := Message{
		ID:         "temp-" + uuid.NewString(),
		ChatID:     gc.chatID,
		SenderID:   gc.client.userID,
		Text:       text,
		CreatedAt:  time.Now(),
		Optimistic: true,
	}

	gc.mu.Lock()
	gc.messages = append(gc.messages, temp)
	handler := gc.onMessage
	gc.mu.Unlock()
	if handler != nil {
		handler(temp)
	}

	sent, err := gc.client.Groups().SendMessage(ctx, gc.chatID, text)
	if err != nil {
		gc.mu.Lock()
		for i := range gc.messages {
			if gc.messages[i].ID == temp.ID {
				gc.messages = append(gc.messages[:i], gc.messages[i+1:]...)
				break
			}
		}
		gc.mu.Unlock()
		return nil, err
	}

	gc.mu.Lock()
	for i := range gc.messages {
		if gc.messages[i].ID == temp.ID {
			gc.messages[i] = *sent
			break
		}
		if gc.messages[i].ID == sent.ID {
			break
		}
	}
	gc.mu.Unlock()
	return sent, nil
}

// Close tears down the group's subscriptions.
func (gc *GroupConversation) Close(ctx context.Context) {
	gc.mu.Lock()
	if gc.closed {
		gc.mu.Unlock()
		return
	}
	gc.closed = true
	gc.mu.Unlock()

	for _, d := range []string{
		GroupMessagesTopic(gc.chatID),
		UserGroupMessagesQueue(gc.client.userID),
	} {
		if err := gc.rt.Unsubscribe(ctx, d); err != nil {
			gc.logger.Debug().Err(err).Str("destination", d).Msg("unsubscribe failed")
		}
	}
}

func (gc *GroupConversation) handleMessageFrame(f Frame) {
	var msg Message
	if err := json.Unmarshal(f.Body, &msg); err != nil {
		gc.logger.Debug().Err(err).Str("destination", f.Destination).Msg("undecodable message body")
		return
	}
	if msg.ChatID != "" && msg.ChatID != gc.chatID {
		return
	}

	gc.mu.Lock()
	for i := range gc.messages {
		if gc.messages[i].ID == msg.ID {
			gc.mu.Unlock()
			return
		}
	}
	if msg.SenderID == gc.client.userID {
		for i := range gc.messages {
			if gc.messages[i].Optimistic && gc.messages[i].Text == msg.Text {
				gc.messages[i] = msg
				handler := gc.onMessage
				gc.mu.Unlock()
				if handler != nil {
					handler(msg)
				}
				return
			}
		}
	}
	gc.messages = append(gc.messages, msg)
	handler := gc.onMessage
	gc.mu.Unlock()
	if handler != nil {
		handler(msg)
	}
}
