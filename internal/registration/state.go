// Package registration owns the desk's mutable day state: whether
// registration is accepting entries and whether today's token list has
// been generated.
package registration

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tatkal-desk/tatkal/internal/clock"
	"github.com/tatkal-desk/tatkal/internal/platform/httpx"
)

var (
	// ErrCutoffPassed blocks registration changes after 09:00.
	ErrCutoffPassed = fmt.Errorf("registration: cutoff passed: %w", httpx.ErrConflict)
	// ErrListTooEarly blocks list generation before the cutoff.
	ErrListTooEarly = fmt.Errorf("registration: token list can only be generated after 9:00 AM: %w", httpx.ErrConflict)
	// ErrListAlreadyGenerated blocks a second generation on the same day.
	ErrListAlreadyGenerated = fmt.Errorf("registration: token list already generated: %w", httpx.ErrConflict)
	// ErrRegistrationClosed rejects passenger registrations outside the window.
	ErrRegistrationClosed = fmt.Errorf("registration: closed: %w", httpx.ErrConflict)
	// ErrListNotAvailable hides the list until it is generated and released.
	ErrListNotAvailable = fmt.Errorf("registration: token list not available: %w", httpx.ErrConflict)
)

var errNilState = errors.New("registration: state not initialised")

// Snapshot is a copy of the state flags.
type Snapshot struct {
	Open          bool       `json:"registration_open"`
	ListGenerated bool       `json:"token_list_generated"`
	GeneratedAt   *time.Time `json:"generated_at,omitempty"`
	GeneratedBy   string     `json:"generated_by,omitempty"`
}

// State is the single shared mutable object. All mutation goes through its
// named actions.
type State struct {
	mu            sync.RWMutex
	open          bool
	listGenerated bool
	generatedAt   time.Time
	generatedBy   string
}

// NewState returns the start-of-day state: open, nothing generated.
func NewState() *State {
	return &State{open: true}
}

// Snapshot returns the current flags.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Open: s.open, ListGenerated: s.listGenerated, GeneratedBy: s.generatedBy}
	if s.listGenerated {
		at := s.generatedAt
		snap.GeneratedAt = &at
	}
	return snap
}

// ToggleRegistration flips the registration flag and returns the new value.
func (s *State) ToggleRegistration(now time.Time) (bool, error) {
	if s == nil {
		return false, errNilState
	}
	if clock.CutoffPassed(now) {
		return false, ErrCutoffPassed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = !s.open
	return s.open, nil
}

// GenerateTokenList marks today's list as generated.
func (s *State) GenerateTokenList(now time.Time, by string) error {
	if s == nil {
		return errNilState
	}
	if !clock.CutoffPassed(now) {
		return ErrListTooEarly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listGenerated {
		return ErrListAlreadyGenerated
	}
	s.listGenerated = true
	s.generatedAt = now
	s.generatedBy = by
	return nil
}

// ResetForNewDay reopens registration and clears the generated list.
func (s *State) ResetForNewDay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.listGenerated = false
	s.generatedAt = time.Time{}
	s.generatedBy = ""
}

// Accepting reports whether passengers may register at now.
func (s *State) Accepting(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open && clock.PhaseAt(now) == clock.RegistrationOpen
}

// CheckAccepting returns ErrRegistrationClosed when Accepting is false.
func (s *State) CheckAccepting(now time.Time) error {
	if !s.Accepting(now) {
		return ErrRegistrationClosed
	}
	return nil
}

// ListVisible reports whether passengers may see today's list at now.
func (s *State) ListVisible(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listGenerated && clock.InListWindow(now)
}
