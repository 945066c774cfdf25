package litbuddy

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ============================================================================
// Notification Feed
// ============================================================================

// NotificationFeed merges the REST notification list with server-pushed
// notifications into one newest-first view, and tracks an unread counter.
type NotificationFeed struct {
	client *Client
	rt     *Realtime
	logger zerolog.Logger

	mu     sync.Mutex
	items  []Notification
	unread int
	closed bool

	onNotification func(Notification)
	onUnread       func(count int)
}

// OpenNotifications loads the current notifications and subscribes to pushed
// ones. Pushed notifications are prepended so the feed stays newest-first.
func (c *Client) OpenNotifications(ctx context.Context, rt *Realtime) (*NotificationFeed, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	items, err := c.Notifications().List(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to load notifications: %w", err)
	}

	feed := &NotificationFeed{
		client: c,
		rt:     rt,
		logger: c.logger.With().Str("component", "notifications").Logger(),
		items:  items,
	}
	for _, n := range items {
		if !n.Read {
			feed.unread++
		}
	}

	if err := rt.Subscribe(ctx, UserNotificationsTopic(c.userID), feed.handleFrame); err != nil && err != ErrNotConnected {
		feed.logger.Warn().Err(err).Msg("subscribe failed")
	}

	return feed, nil
}

// Items returns a snapshot of the feed, newest first.
func (f *NotificationFeed) Items() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notification, len(f.items))
	copy(out, f.items)
	return out
}

// Unread returns the current unread count. Never negative.
func (f *NotificationFeed) Unread() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

// OnNotification sets the callback invoked for every pushed notification.
// Called on the delivery goroutine; must not block.
func (f *NotificationFeed) OnNotification(h func(Notification)) {
	f.mu.Lock()
	f.onNotification = h
	f.mu.Unlock()
}

// OnUnread sets the callback invoked whenever the unread count changes.
func (f *NotificationFeed) OnUnread(h func(count int)) {
	f.mu.Lock()
	f.onUnread = h
	f.mu.Unlock()
}

// MarkRead marks a notification read. The feed updates immediately and rolls
// back if the server rejects the change. Marking an already-read or unknown
// notification is a no-op.
func (f *NotificationFeed) MarkRead(ctx context.Context, notificationID string) error {
	f.mu.Lock()
	idx := -1
	for i := range f.items {
		if f.items[i].ID == notificationID {
			idx = i
			break
		}
	}
	if idx < 0 || f.items[idx].Read {
		f.mu.Unlock()
		return nil
	}
	f.items[idx].Read = true
	f.decUnreadLocked()
	unreadHandler := f.onUnread
	unread := f.unread
	f.mu.Unlock()
	if unreadHandler != nil {
		unreadHandler(unread)
	}

	if err := f.client.Notifications().MarkRead(ctx, notificationID); err != nil {
		f.mu.Lock()
		for i := range f.items {
			if f.items[i].ID == notificationID {
				f.items[i].Read = false
				f.unread++
				break
			}
		}
		unreadHandler = f.onUnread
		unread = f.unread
		f.mu.Unlock()
		if unreadHandler != nil {
			unreadHandler(unread)
		}
		return err
	}
	return nil
}

// Close drops the subscription and clears the feed.
func (f *NotificationFeed) Close(ctx context.Context) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.items = nil
	f.unread = 0
	f.mu.Unlock()

	if err := f.rt.Unsubscribe(ctx, UserNotificationsTopic(f.client.userID)); err != nil {
		f.logger.Debug().Err(err).Msg("unsubscribe failed")
	}
}

func (f *NotificationFeed) handleFrame(fr Frame) {
	var n Notification
	if err := json.Unmarshal(fr.Body, &n); err != nil {
		f.logger.Debug().Err(err).Msg("undecodable notification body")
		return
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	for i := range f.items {
		if f.items[i].ID == n.ID {
			f.mu.Unlock()
			return
		}
	}
	f.items = append([]Notification{n}, f.items...)
	if !n.Read {
		f.unread++
	}
	notifHandler := f.onNotification
	unreadHandler := f.onUnread
	unread := f.unread
	f.mu.Unlock()

	if notifHandler != nil {
		notifHandler(n)
	}
	if unreadHandler != nil && !n.Read {
		unreadHandler(unread)
	}
}

// decUnreadLocked lowers the unread count, flooring at zero. A double-read
// race with a server push must never drive the badge negative.
func (f *NotificationFeed) decUnreadLocked() {
	if f.unread > 0 {
		f.unread--
	}
}
