package domain

import "time"

// ActivityEntry records one authentication-related action against an account.
type ActivityEntry struct {
	Action     string
	SourceAddr string
	UserAgent  string
	At         time.Time
	Success    bool
}

// Well-known activity actions.
const (
	ActivityRegistration   = "registration"
	ActivityLogin          = "login"
	ActivityFailedLogin    = "failed_login"
	ActivityRefresh        = "token_refresh"
	ActivityLogout         = "logout"
	ActivityLogoutAll      = "logout_all"
	ActivityPasswordChange = "password_change"
	ActivityPasswordReset  = "password_reset"
	ActivityResetRequest   = "reset_request"
	ActivityUnlockRequest  = "unlock_request"
)

// ActivityLog is a fixed-capacity ring of activity entries with FIFO eviction.
type ActivityLog struct {
	capacity int
	entries  []ActivityEntry
	start    int
	size     int
}

// NewActivityLog constructs a log retaining at most capacity entries.
func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = 1
	}
	return &ActivityLog{
		capacity: capacity,
		entries:  make([]ActivityEntry, capacity),
	}
}

// Append records an entry, evicting the oldest when the ring is full.
func (l *ActivityLog) Append(entry ActivityEntry) {
	idx := (l.start + l.size) % l.capacity
	l.entries[idx] = entry
	if l.size < l.capacity {
		l.size++
		return
	}
	l.start = (l.start + 1) % l.capacity
}

// Len returns the number of retained entries.
func (l *ActivityLog) Len() int {
	return l.size
}

// Entries returns the retained entries ordered oldest first.
func (l *ActivityLog) Entries() []ActivityEntry {
	out := make([]ActivityEntry, 0, l.size)
	for i := 0; i < l.size; i++ {
		out = append(out, l.entries[(l.start+i)%l.capacity])
	}
	return out
}
