// Package activity keeps the admin activity feed shown to the super admin.
package activity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tatkal-desk/tatkal/internal/access"
)

// Status classifies an entry for colouring and filtering.
type Status string

// Entry statuses.
const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusInfo    Status = "info"
)

// Recorded actions.
const (
	ActionLogin              = "Admin Login"
	ActionLogout             = "Admin Logout"
	ActionFailedLogin        = "Failed Login Attempt"
	ActionOpenedRegistration = "Opened Registration"
	ActionClosedRegistration = "Closed Registration"
	ActionGeneratedList      = "Generated Token List"
	ActionManualToken        = "Manual Token Issued"
	ActionCancelledToken     = "Token Cancelled"
	ActionServedToken        = "Token Served"
	ActionDailyReset         = "Daily Reset"
)

// Entry is one line of the activity feed.
type Entry struct {
	ID        string      `json:"id"`
	Admin     string      `json:"admin"`
	Role      access.Role `json:"role"`
	RoleLabel string      `json:"role_label"`
	Action    string      `json:"action"`
	Timestamp time.Time   `json:"timestamp"`
	Details   string      `json:"details"`
	Status    Status      `json:"status"`
}

// Filter narrows List results. Empty fields match everything.
type Filter struct {
	Search string
	Role   access.Role
	Status Status
}

// Stats counts entries per status.
type Stats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Warning int `json:"warning"`
	Error   int `json:"error"`
	Info    int `json:"info"`
}

// Log is an in-memory, append-only activity feed.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	now     func() time.Time
}

// NewLog constructs an empty Log.
func NewLog() *Log {
	return &Log{now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (l *Log) WithNow(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// Seed appends fixture entries.
func (l *Log) Seed(entries []Entry) {
	for _, e := range entries {
		l.Record(context.Background(), e)
	}
}

// Record appends e, filling ID, timestamp and role label when missing.
func (l *Log) Record(_ context.Context, e Entry) Entry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	if e.RoleLabel == "" {
		e.RoleLabel = e.Role.DisplayName()
	}
	if e.Status == "" {
		e.Status = StatusInfo
	}
	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()
	return e
}

// List returns matching entries, newest first.
func (l *Log) List(f Filter) []Entry {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	l.mu.RLock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if f.Role != "" && e.Role != f.Role {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if search != "" && !matches(e, search) {
			continue
		}
		out = append(out, e)
	}
	l.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

// Summarize counts entries per status.
func Summarize(entries []Entry) Stats {
	stats := Stats{Total: len(entries)}
	for _, e := range entries {
		switch e.Status {
		case StatusSuccess:
			stats.Success++
		case StatusWarning:
			stats.Warning++
		case StatusError:
			stats.Error++
		case StatusInfo:
			stats.Info++
		}
	}
	return stats
}

func matches(e Entry, search string) bool {
	return strings.Contains(strings.ToLower(e.Admin), search) ||
		strings.Contains(strings.ToLower(e.Action), search) ||
		strings.Contains(strings.ToLower(e.Details), search)
}
