package litbuddy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The backend answers history and send requests with three different shapes
// depending on the endpoint and version. The decoders pin the fallback order
// so every caller sees the same result regardless of shape.

func TestDecodeMessagesShapes(t *testing.T) {
	t.Run("wrapped object wins", func(t *testing.T) {
		data := json.RawMessage(`{
			"chatId": "chat-1",
			"messages": [{"id":"m1","senderId":"u1","text":"hi","createdAt":"2026-03-01T12:00:00Z"}],
			"status": {"state":"paused","pausedBy":"u2"},
			"participants": [{"id":"u1","username":"a"},{"id":"u2","username":"b"}]
		}`)
		hist, err := DecodeMessages(data)
		require.NoError(t, err)
		assert.Len(t, hist.Messages, 1)
		assert.Equal(t, StatePaused, hist.Status.State)
		assert.Len(t, hist.Participants, 2)
	})

	t.Run("bare array", func(t *testing.T) {
		data := json.RawMessage(`[{"id":"m1","senderId":"u1","text":"hi","createdAt":"2026-03-01T12:00:00Z"}]`)
		hist, err := DecodeMessages(data)
		require.NoError(t, err)
		assert.Len(t, hist.Messages, 1)
		assert.Equal(t, "m1", hist.Messages[0].ID)
	})

	t.Run("single message object", func(t *testing.T) {
		data := json.RawMessage(`{"message": {"id":"m1","senderId":"u1","text":"hi","createdAt":"2026-03-01T12:00:00Z"}}`)
		hist, err := DecodeMessages(data)
		require.NoError(t, err)
		assert.Len(t, hist.Messages, 1)
	})

	t.Run("empty payload", func(t *testing.T) {
		hist, err := DecodeMessages(nil)
		require.NoError(t, err)
		assert.Empty(t, hist.Messages)
	})

	t.Run("unrecognized shape", func(t *testing.T) {
		_, err := DecodeMessages(json.RawMessage(`42`))
		assert.Error(t, err)
	})
}

func TestDecodeMessageShapes(t *testing.T) {
	t.Run("wrapped", func(t *testing.T) {
		msg, err := DecodeMessage(json.RawMessage(`{"message":{"id":"m1","senderId":"u1","text":"hi","createdAt":"2026-03-01T12:00:00Z"}}`))
		require.NoError(t, err)
		assert.Equal(t, "m1", msg.ID)
	})

	t.Run("bare", func(t *testing.T) {
		msg, err := DecodeMessage(json.RawMessage(`{"id":"m1","senderId":"u1","text":"hi","createdAt":"2026-03-01T12:00:00Z"}`))
		require.NoError(t, err)
		assert.Equal(t, "m1", msg.ID)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := DecodeMessage(nil)
		assert.Error(t, err)
	})
}

func TestDecodeChatsShapes(t *testing.T) {
	t.Run("wrapped", func(t *testing.T) {
		chats, err := DecodeChats(json.RawMessage(`{"chats":[{"id":"c1","createdAt":"2026-03-01T12:00:00Z"}]}`))
		require.NoError(t, err)
		assert.Len(t, chats, 1)
	})

	t.Run("bare array", func(t *testing.T) {
		chats, err := DecodeChats(json.RawMessage(`[{"id":"c1","createdAt":"2026-03-01T12:00:00Z"}]`))
		require.NoError(t, err)
		assert.Len(t, chats, 1)
	})

	t.Run("empty", func(t *testing.T) {
		chats, err := DecodeChats(nil)
		require.NoError(t, err)
		assert.Nil(t, chats)
	})
}

func TestResultDecode(t *testing.T) {
	r := Result{OK: true, Data: json.RawMessage(`{"id":"c1"}`)}
	var chat Chat
	require.NoError(t, r.Decode(&chat))
	assert.Equal(t, "c1", chat.ID)

	empty := Result{OK: true}
	require.NoError(t, empty.Decode(&chat), "nil data decodes to nothing")
}
