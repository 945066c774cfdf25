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
	"nhooyr.io/websocket"
)

// ============================================================================
// Wire Format
// ============================================================================

// Frame is the wire format for all realtime traffic, both directions.
type Frame struct {
	Command     string          `json:"command"`
	Destination string          `json:"destination,omitempty"`
	ID          string          `json:"id,omitempty"`
	Body        json.RawMessage `json:"body,omitempty"`
}

// Client-to-server commands.
const (
	CommandSubscribe   = "subscribe"
	CommandUnsubscribe = "unsubscribe"
	CommandSend        = "send"
)

// Server-to-client commands.
const (
	CommandConnected = "connected"
	CommandMessage   = "message"
	CommandError     = "error"
)

// Destination builders for the topics and queues the backend exposes.

func ChatMessagesTopic(chatID string) string {
	return "topic/chat/" + chatID + "/messages"
}

func ChatStatusTopic(chatID string) string {
	return "topic/chat/" + chatID + "/status"
}

func UserMessagesQueue(userID string) string {
	return "user/" + userID + "/queue/messages"
}

func UserStatusQueue(userID string) string {
	return "user/" + userID + "/queue/conversation-status"
}

func GroupMessagesTopic(chatID string) string {
	return "topic/group-chat/" + chatID + "/messages"
}

func UserGroupMessagesQueue(userID string) string {
	return "user/" + userID + "/queue/group-messages"
}

func UserNotificationsTopic(userID string) string {
	return "topic/user." + userID + ".notifications"
}

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the realtime client.
type RealtimeConfig struct {
	// DisableReconnect turns off the automatic re-dial after an unexpected
	// drop.
	DisableReconnect bool
	// ReconnectInterval is the fixed delay between reconnect attempts.
	// Attempts continue indefinitely.
	ReconnectInterval time.Duration
	// HeartbeatInterval is the protocol-level ping cadence used to detect
	// dead connections.
	HeartbeatInterval time.Duration
	// QueuePublishes buffers publishes made while disconnected and flushes
	// them after reconnect. When false (default) such publishes fail with
	// ErrNotConnected.
	QueuePublishes bool
	// PublishQueueLimit bounds the publish buffer. Oldest entries are
	// dropped when full.
	PublishQueueLimit int
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectInterval == 0 {
		c.ReconnectInterval = 5 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.PublishQueueLimit == 0 {
		c.PublishQueueLimit = 100
	}
}

// RealtimeState represents the connection state.
type RealtimeState string

const (
	StateDisconnected RealtimeState = "disconnected"
	StateConnecting   RealtimeState = "connecting"
	StateConnected    RealtimeState = "connected"
	StateReconnecting RealtimeState = "reconnecting"
)

// ErrNotConnected is returned by operations that need a live connection.
// Subscriptions made while disconnected are still registered and take effect
// on the next connect; use WaitReady to block until then.
var ErrNotConnected = errors.New("litbuddy: not connected")

// ============================================================================
// Subscription Registry
// ============================================================================

// FrameHandler receives server frames for a subscribed destination. Handlers
// run on the read loop so deliveries for one destination keep arrival order;
// they must not block.
type FrameHandler func(f Frame)

type subscription struct {
	id          string
	destination string
	handler     FrameHandler
}

// subscriptionRegistry keeps at most one subscription per destination.
// Subscribing to a destination that already has one replaces the handler in
// place and keeps the wire subscription.
type subscriptionRegistry struct {
	mu   sync.RWMutex
	subs map[string]*subscription
}

func newSubscriptionRegistry() *subscriptionRegistry {
	return &subscriptionRegistry{subs: make(map[string]*subscription)}
}

// add registers or replaces a subscription. Returns the subscription and
// whether it already existed on the wire.
func (r *subscriptionRegistry) add(destination string, h FrameHandler) (*subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.subs[destination]; ok {
		existing.handler = h
		return existing, true
	}
	sub := &subscription{
		id:          "sub-" + uuid.NewString(),
		destination: destination,
		handler:     h,
	}
	r.subs[destination] = sub
	return sub, false
}

func (r *subscriptionRegistry) remove(destination string) *subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub := r.subs[destination]
	delete(r.subs, destination)
	return sub
}

func (r *subscriptionRegistry) lookup(destination string) *subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subs[destination]
}

func (r *subscriptionRegistry) all() []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*subscription, 0, len(r.subs))
	for _, s := range r.subs {
		out = append(out, s)
	}
	return out
}

// ============================================================================
// Event Dispatcher (connection meta-events)
// ============================================================================

type eventDispatcher struct {
	mu             sync.RWMutex
	onConnected    []func()
	onDisconnected []func(reason string)
	onReconnecting []func(attempt int, delay time.Duration)
	onError        []func(Frame)
	onRaw          []func(data []byte)
}

func newEventDispatcher() *eventDispatcher {
	return &eventDispatcher{}
}

func (d *eventDispatcher) emitConnected() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h()
	}
}

func (d *eventDispatcher) emitDisconnected(reason string) {
	d.mu.RLock()
	handlers := append([]func(string){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(reason)
	}
}

func (d *eventDispatcher) emitReconnecting(attempt int, delay time.Duration) {
	d.mu.RLock()
	handlers := append([]func(int, time.Duration){}, d.onReconnecting...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(attempt, delay)
	}
}

func (d *eventDispatcher) emitError(f Frame) {
	d.mu.RLock()
	handlers := append([]func(Frame){}, d.onError...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(f)
	}
}

func (d *eventDispatcher) emitRaw(data []byte) {
	d.mu.RLock()
	handlers := append([]func([]byte){}, d.onRaw...)
	d.mu.RUnlock()
	for _, h := range handlers {
		go h(data)
	}
}

// ============================================================================
// Realtime Client
// ============================================================================

// Realtime is the websocket transport with auto-reconnect, heartbeat, and a
// destination-keyed subscription registry. Subscriptions survive reconnects:
// after a successful re-dial every registered destination is re-subscribed
// before queued publishes are flushed.
type Realtime struct {
	client *Client
	config *RealtimeConfig
	logger zerolog.Logger

	mu               sync.Mutex
	conn             *websocket.Conn
	state            RealtimeState
	intentionalClose bool
	reconnecting     bool
	cancelFn         context.CancelFunc
	ready            chan struct{}
	attempt          int

	subs       *subscriptionRegistry
	dispatcher *eventDispatcher
	outbox     *publishOutbox
}

func newRealtime(c *Client, cfg *RealtimeConfig) *Realtime {
	rt := &Realtime{
		client:     c,
		config:     cfg,
		logger:     c.logger.With().Str("component", "realtime").Logger(),
		state:      StateDisconnected,
		ready:      make(chan struct{}),
		subs:       newSubscriptionRegistry(),
		dispatcher: newEventDispatcher(),
	}
	if cfg.QueuePublishes {
		rt.outbox = newPublishOutbox(cfg.PublishQueueLimit)
	}
	return rt
}

// OnConnected registers a handler for the connected meta-event.
func (rt *Realtime) OnConnected(h func()) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onConnected = append(rt.dispatcher.onConnected, h)
	rt.dispatcher.mu.Unlock()
}

// OnDisconnected registers a handler for the disconnected meta-event.
func (rt *Realtime) OnDisconnected(h func(reason string)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onDisconnected = append(rt.dispatcher.onDisconnected, h)
	rt.dispatcher.mu.Unlock()
}

// OnReconnecting registers a handler for the reconnecting meta-event.
func (rt *Realtime) OnReconnecting(h func(attempt int, delay time.Duration)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onReconnecting = append(rt.dispatcher.onReconnecting, h)
	rt.dispatcher.mu.Unlock()
}

// OnError registers a handler for server error frames.
func (rt *Realtime) OnError(h func(Frame)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onError = append(rt.dispatcher.onError, h)
	rt.dispatcher.mu.Unlock()
}

// OnRaw registers a handler for payloads that do not parse as frames.
func (rt *Realtime) OnRaw(h func(data []byte)) {
	rt.dispatcher.mu.Lock()
	rt.dispatcher.onRaw = append(rt.dispatcher.onRaw, h)
	rt.dispatcher.mu.Unlock()
}

// PendingPublishes returns the number of queued publishes waiting for a
// connection. Always zero unless QueuePublishes is set.
func (rt *Realtime) PendingPublishes() int {
	if rt.outbox == nil {
		return 0
	}
	return rt.outbox.pendingCount()
}

// State returns the current connection state.
func (rt *Realtime) State() RealtimeState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// Ready reports whether the connection is established.
func (rt *Realtime) Ready() bool {
	return rt.State() == StateConnected
}

// WaitReady blocks until the connection is established or ctx is done.
func (rt *Realtime) WaitReady(ctx context.Context) error {
	rt.mu.Lock()
	ch := rt.ready
	rt.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connect establishes the websocket connection. Calling it while connected
// or connecting is a no-op. When reconnects are enabled a failed dial or
// handshake still schedules the retry loop, so a returned error means this
// attempt failed, not that the transport gave up.
func (rt *Realtime) Connect(ctx context.Context) error {
	rt.mu.Lock()
	if rt.state == StateConnected || rt.state == StateConnecting {
		rt.mu.Unlock()
		return nil
	}
	rt.state = StateConnecting
	rt.intentionalClose = false
	rt.mu.Unlock()

	err := rt.dial(ctx)
	if err != nil && !rt.config.DisableReconnect {
		rt.scheduleReconnect()
	}
	return err
}

// dial performs one connection attempt: websocket dial, handshake frame,
// then re-subscribe, outbox flush, and the read and heartbeat loops.
func (rt *Realtime) dial(ctx context.Context) error {
	wsURL := rt.client.wsURL()
	rt.logger.Debug().Str("url", wsURL).Msg("dialing")

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		rt.setDisconnected()
		return fmt.Errorf("websocket dial: %w", err)
	}

	// First frame must be "connected"; anything else is a handshake failure.
	_, data, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		rt.setDisconnected()
		return fmt.Errorf("read handshake frame: %w", err)
	}

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil || f.Command != CommandConnected {
		conn.Close(websocket.StatusNormalClosure, "")
		rt.setDisconnected()
		return fmt.Errorf("expected 'connected' frame, got %q", f.Command)
	}

	rt.mu.Lock()
	rt.conn = conn
	rt.state = StateConnected
	rt.attempt = 0
	close(rt.ready)
	rt.mu.Unlock()

	rt.logger.Info().Msg("connected")
	rt.dispatcher.emitConnected()

	connCtx, cancel := context.WithCancel(context.Background())
	rt.mu.Lock()
	if rt.cancelFn != nil {
		// Stop the previous connection's loops before the new ones start.
		rt.cancelFn()
	}
	rt.cancelFn = cancel
	rt.mu.Unlock()

	rt.resubscribe(connCtx, conn)
	rt.flushOutbox(connCtx, conn)

	go rt.readLoop(connCtx, conn)
	go rt.heartbeatLoop(connCtx, conn)

	return nil
}

// Disconnect gracefully closes the connection. Registered subscriptions are
// kept and re-established on the next Connect.
func (rt *Realtime) Disconnect() error {
	rt.mu.Lock()
	rt.intentionalClose = true
	if rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	conn := rt.conn
	rt.conn = nil
	if rt.state == StateConnected {
		rt.ready = make(chan struct{})
	}
	rt.state = StateDisconnected
	rt.mu.Unlock()

	rt.logger.Info().Msg("disconnected by client")
	rt.dispatcher.emitDisconnected("client disconnect")

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// Subscribe registers a handler for a destination. At most one subscription
// exists per destination; subscribing again replaces the handler silently.
// While disconnected the registration is kept and activated on the next
// connect, and ErrNotConnected is returned so callers can WaitReady.
func (rt *Realtime) Subscribe(ctx context.Context, destination string, h FrameHandler) error {
	sub, replaced := rt.subs.add(destination, h)

	rt.mu.Lock()
	conn := rt.conn
	rt.mu.Unlock()

	if replaced {
		rt.logger.Debug().Str("destination", destination).Msg("subscription handler replaced")
		if conn == nil {
			return ErrNotConnected
		}
		return nil
	}
	if conn == nil {
		rt.logger.Debug().Str("destination", destination).Msg("subscription deferred until connect")
		return ErrNotConnected
	}

	return rt.writeFrame(ctx, conn, Frame{
		Command:     CommandSubscribe,
		Destination: destination,
		ID:          sub.id,
	})
}

// Unsubscribe removes a destination's subscription. Unsubscribing a
// destination that has none is a no-op.
func (rt *Realtime) Unsubscribe(ctx context.Context, destination string) error {
	sub := rt.subs.remove(destination)
	if sub == nil {
		return nil
	}

	rt.mu.Lock()
	conn := rt.conn
	rt.mu.Unlock()
	if conn == nil {
		return nil
	}

	return rt.writeFrame(ctx, conn, Frame{
		Command:     CommandUnsubscribe,
		Destination: destination,
		ID:          sub.id,
	})
}

// Publish sends a body to a destination. While disconnected the publish is
// queued when QueuePublishes is set, otherwise it fails with ErrNotConnected.
func (rt *Realtime) Publish(ctx context.Context, destination string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal body: %w", err)
	}

	rt.mu.Lock()
	conn := rt.conn
	rt.mu.Unlock()
	if conn == nil {
		if rt.outbox != nil {
			if dropped := rt.outbox.enqueue(destination, data); dropped {
				rt.logger.Warn().Str("destination", destination).Msg("publish queue full, oldest entry dropped")
			}
			return nil
		}
		return ErrNotConnected
	}

	return rt.writeFrame(ctx, conn, Frame{
		Command:     CommandSend,
		Destination: destination,
		Body:        data,
	})
}

func (rt *Realtime) writeFrame(ctx context.Context, conn *websocket.Conn, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (rt *Realtime) resubscribe(ctx context.Context, conn *websocket.Conn) {
	for _, sub := range rt.subs.all() {
		if err := rt.writeFrame(ctx, conn, Frame{
			Command:     CommandSubscribe,
			Destination: sub.destination,
			ID:          sub.id,
		}); err != nil {
			rt.logger.Warn().Err(err).Str("destination", sub.destination).Msg("resubscribe failed")
			return
		}
	}
}

func (rt *Realtime) flushOutbox(ctx context.Context, conn *websocket.Conn) {
	if rt.outbox == nil {
		return
	}
	for _, entry := range rt.outbox.drain() {
		if err := rt.writeFrame(ctx, conn, Frame{
			Command:     CommandSend,
			Destination: entry.destination,
			Body:        entry.body,
		}); err != nil {
			rt.logger.Warn().Err(err).Str("destination", entry.destination).Msg("outbox flush failed")
			rt.outbox.requeue(entry)
			return
		}
	}
}

func (rt *Realtime) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			rt.mu.Lock()
			intentional := rt.intentionalClose
			rt.mu.Unlock()
			if intentional {
				return
			}

			rt.mu.Lock()
			if rt.conn == conn {
				rt.conn = nil
				rt.ready = make(chan struct{})
				rt.state = StateDisconnected
			}
			rt.mu.Unlock()

			rt.logger.Warn().Err(err).Msg("connection lost")
			rt.dispatcher.emitDisconnected(err.Error())

			if !rt.config.DisableReconnect {
				rt.scheduleReconnect()
			}
			return
		}

		var f Frame
		if json.Unmarshal(data, &f) != nil || f.Command == "" {
			// Not a frame. Surface the raw payload instead of dropping it.
			rt.logger.Debug().Int("bytes", len(data)).Msg("unparseable payload")
			rt.dispatcher.emitRaw(data)
			continue
		}

		switch f.Command {
		case CommandMessage:
			// Synchronous dispatch keeps per-destination arrival order.
			if sub := rt.subs.lookup(f.Destination); sub != nil {
				sub.handler(f)
			} else {
				rt.logger.Debug().Str("destination", f.Destination).Msg("frame for unknown destination")
			}
		case CommandError:
			rt.logger.Warn().RawJSON("body", nonEmptyJSON(f.Body)).Msg("server error frame")
			rt.dispatcher.emitError(f)
		case CommandConnected:
			// Duplicate handshake frame, ignore.
		default:
			rt.logger.Debug().Str("command", f.Command).Msg("unknown command")
		}
	}
}

func (rt *Realtime) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(rt.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

// scheduleReconnect starts the retry loop unless one is already running or
// the disconnect was intentional.
func (rt *Realtime) scheduleReconnect() {
	rt.mu.Lock()
	if rt.reconnecting || rt.intentionalClose {
		rt.mu.Unlock()
		return
	}
	rt.reconnecting = true
	rt.mu.Unlock()
	go rt.reconnectLoop()
}

// reconnectLoop re-dials at a fixed interval until it succeeds or Disconnect
// is called. Attempts are unbounded; a chat client should never give up on
// its own.
func (rt *Realtime) reconnectLoop() {
	defer func() {
		rt.mu.Lock()
		rt.reconnecting = false
		rt.mu.Unlock()
	}()

	for {
		rt.mu.Lock()
		if rt.intentionalClose || rt.state == StateConnected {
			rt.mu.Unlock()
			return
		}
		rt.state = StateReconnecting
		rt.attempt++
		attempt := rt.attempt
		rt.mu.Unlock()

		delay := rt.config.ReconnectInterval
		rt.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting")
		rt.dispatcher.emitReconnecting(attempt, delay)

		time.Sleep(delay)

		rt.mu.Lock()
		// A Connect raced in while the loop was sleeping; stand down.
		if rt.intentionalClose || rt.state == StateConnected || rt.state == StateConnecting {
			rt.mu.Unlock()
			return
		}
		rt.state = StateConnecting
		rt.mu.Unlock()

		if err := rt.dial(context.Background()); err == nil {
			return
		}
	}
}

func (rt *Realtime) setDisconnected() {
	rt.mu.Lock()
	rt.state = StateDisconnected
	rt.mu.Unlock()
}

func nonEmptyJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
