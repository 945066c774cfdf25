package litbuddy

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

type groupFixture struct {
	mu       sync.Mutex
	history  ChatHistory
	failSend bool
}

func newGroupFixture() *groupFixture {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &groupFixture{
		history: ChatHistory{
			ChatID: "group-1",
			Messages: []Message{
				{ID: "gm-1", ChatID: "group-1", SenderID: "user-a", Text: "Next book?", CreatedAt: base},
			},
			Participants: []Participant{
				{ID: "user-self", Username: "me"},
				{ID: "user-a", Username: "ada", DisplayName: "Ada"},
				{ID: "user-b", Username: "brontefan"},
			},
		},
	}
}

func (fx *groupFixture) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fx.mu.Lock()
		defer fx.mu.Unlock()

		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/group-chat/group-1":
			writeOK(w, fx.history)

		case r.Method == http.MethodPost && r.URL.Path == "/group-chat/message/group-1":
			if fx.failSend {
				writeErr(w, "NOT_A_MEMBER", "not in this group")
				return
			}
			var body struct {
				Text string `json:"text"`
			}
			json.NewDecoder(r.Body).Decode(&body)
			writeOK(w, map[string]any{"message": Message{
				ID: "gm-100", ChatID: "group-1", SenderID: "user-self",
				Text: body.Text, CreatedAt: time.Now().UTC(),
			}})

		default:
			http.NotFound(w, r)
		}
	})
}

func openTestGroup(t *testing.T, fx *groupFixture) (*testBroker, *GroupConversation) {
	t.Helper()
	broker := newTestBroker(t)
	broker.rest = fx.handler()

	client := broker.client()
	rt := client.Realtime(nil)
	ctx := testCtx(t)
	if err := rt.Connect(ctx); err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	t.Cleanup(func() { rt.Disconnect() })

	gc, err := client.OpenGroupConversation(ctx, rt, "group-1")
	if err != nil {
		t.Fatalf("OpenGroupConversation returned error: %v", err)
	}
	return broker, gc
}

func TestOpenGroupConversation(t *testing.T) {
	broker, gc := openTestGroup(t, newGroupFixture())

	if len(gc.Messages()) != 1 {
		t.Fatalf("expected 1 history message, got %d", len(gc.Messages()))
	}
	if len(gc.Members()) != 3 {
		t.Fatalf("expected 3 members, got %d", len(gc.Members()))
	}

	want := map[string]bool{
		GroupMessagesTopic("group-1"):        false,
		UserGroupMessagesQueue("user-self"): false,
	}
	for i := 0; i < len(want); i++ {
		f := broker.awaitFrame(5 * time.Second)
		if f.Command != CommandSubscribe {
			t.Fatalf("expected subscribe frame, got %+v", f)
		}
		want[f.Destination] = true
	}
	for d, seen := range want {
		if !seen {
			t.Fatalf("destination %q was never subscribed", d)
		}
	}
}

func TestGroupSenderName(t *testing.T) {
	_, gc := openTestGroup(t, newGroupFixture())

	tests := []struct {
		msg  Message
		want string
	}{
		{Message{SenderID: "user-a"}, "Ada"},                                // display name preferred
		{Message{SenderID: "user-b"}, "brontefan"},                          // username fallback
		{Message{SenderID: "user-x", SenderName: "ghost"}, "ghost"},         // not a member, message name
		{Message{SenderID: "user-y"}, "user-y"},                             // nothing known, id
	}
	for _, tt := range tests {
		if got := gc.SenderName(tt.msg); got != tt.want {
			t.Fatalf("SenderName(%s) = %q, want %q", tt.msg.SenderID, got, tt.want)
		}
	}
}

func TestGroupSend(t *testing.T) {
	_, gc := openTestGroup(t, newGroupFixture())

	sent, err := gc.Send(testCtx(t), "Frankenstein?")
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if sent.ID != "gm-100" {
		t.Fatalf("unexpected durable id: %s", sent.ID)
	}

	msgs := gc.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	for _, m := range msgs {
		if strings.HasPrefix(m.ID, "temp-") {
			t.Fatalf("temp message survived confirmation: %+v", m)
		}
	}
}

func TestGroupSendRollback(t *testing.T) {
	fx := newGroupFixture()
	fx.failSend = true
	_, gc := openTestGroup(t, fx)

	if _, err := gc.Send(testCtx(t), "bounced"); err == nil {
		t.Fatal("expected error from rejected send")
	}
	if len(gc.Messages()) != 1 {
		t.Fatalf("transcript not restored: %d messages", len(gc.Messages()))
	}
}

func TestGroupRemoteMessage(t *testing.T) {
	broker, gc := openTestGroup(t, newGroupFixture())

	got := make(chan Message, 1)
	gc.OnMessage(func(m Message) { got <- m })

	body, _ := json.Marshal(Message{
		ID: "gm-50", ChatID: "group-1", SenderID: "user-b",
		Text: "Seconded.", CreatedAt: time.Now().UTC(),
	})
	broker.push(Frame{Command: CommandMessage, Destination: GroupMessagesTopic("group-1"), Body: body})

	select {
	case m := <-got:
		if m.ID != "gm-50" {
			t.Fatalf("unexpected message: %+v", m)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for remote message")
	}

	// Duplicate delivery from the user queue is deduped by id.
	broker.push(Frame{Command: CommandMessage, Destination: UserGroupMessagesQueue("user-self"), Body: body})
	time.Sleep(200 * time.Millisecond)
	count := 0
	for _, m := range gc.Messages() {
		if m.ID == "gm-50" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("message gm-50 appears %d times", count)
	}
}
