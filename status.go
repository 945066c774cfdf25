package litbuddy

import (
	"sync"
	"time"
)

// ============================================================================
// Status Synchronizer
// ============================================================================

// statusSynchronizer reconciles the locally shown pause state of one chat
// with server-pushed status events.
//
// When the user pauses or resumes, the new state is applied locally before
// the REST call resolves. The server then echoes the change on the status
// topic, usually carrying a timestamp taken before the local apply. Applying
// that echo verbatim would briefly revert a newer local action, so remote
// events are arbitrated by timestamp: an event not strictly newer than the
// last local change is treated as a stale echo and discarded. Ties resolve
// in favor of the local state since the local action is the user's intent.
type statusSynchronizer struct {
	mu          sync.Mutex
	current     ConversationStatus
	lastLocalAt time.Time
}

func newStatusSynchronizer(initial ConversationStatus) *statusSynchronizer {
	if initial.State == "" {
		initial.State = StateActive
	}
	return &statusSynchronizer{current: initial}
}

// snapshot returns the currently shown status.
func (s *statusSynchronizer) snapshot() ConversationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// applyLocal records a user-initiated change and returns the previous status
// so the caller can roll back if the backing call fails.
func (s *statusSynchronizer) applyLocal(status ConversationStatus, at time.Time) ConversationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current
	s.current = status
	s.lastLocalAt = at
	return prev
}

// rollback restores a previous status after a failed local change. The
// local timestamp is cleared so the server's next event wins again.
func (s *statusSynchronizer) rollback(prev ConversationStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = prev
	s.lastLocalAt = time.Time{}
}

// applyRemote arbitrates a server-pushed status event. Reports whether the
// event was applied; false means it was discarded as a stale echo of a
// newer local change.
func (s *statusSynchronizer) applyRemote(ev StatusEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastLocalAt.IsZero() && !ev.At.After(s.lastLocalAt) {
		return false
	}

	status := ConversationStatus{State: ev.State}
	if ev.State == StatePaused {
		status.PausedBy = ev.PausedBy
		at := ev.At
		status.PausedAt = &at
	}
	s.current = status
	return true
}
