// Package dashboard assembles the passenger and admin landing views from
// the clock, the registration state and the token store.
package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/clock"
	"github.com/tatkal-desk/tatkal/internal/registration"
	"github.com/tatkal-desk/tatkal/internal/tokens"
)

const dateLayout = "Monday, January 2, 2006"

// Notices shown above the dashboards.
const (
	NoticePreOpen       = "Registration window is currently closed. Registration opens at 12:30 AM."
	NoticeCutoff        = "Registration window closed at 9:00 AM. Next registration opens at 12:30 AM tomorrow."
	NoticeClosedByAdmin = "Registration has been closed by the station."
)

// Reasons an admin action is disabled.
const (
	ReasonCutoffPassed  = "registration window closed at 9:00 AM"
	ReasonBeforeCutoff  = "token list can be generated after 9:00 AM"
	ReasonListGenerated = "token list already generated"
	ReasonNotPermitted  = "not permitted for this role"
)

// TokenSource is the part of the token service the dashboards read.
type TokenSource interface {
	List(ctx context.Context, f tokens.ListFilter) ([]tokens.Token, tokens.Stats, error)
	Registrations(ctx context.Context) ([]tokens.Registration, error)
}

// Notice is a banner with an optional headline.
type Notice struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

// Passenger is the passenger landing view.
type Passenger struct {
	Mobile        string                `json:"mobile"`
	Clock         clock.Snapshot        `json:"clock"`
	State         registration.Snapshot `json:"state"`
	Accepting     bool                  `json:"accepting"`
	ListVisible   bool                  `json:"list_visible"`
	Notice        *Notice               `json:"notice,omitempty"`
	Registrations []tokens.Registration `json:"registrations"`
}

// Action says whether a dashboard button is usable.
type Action struct {
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
}

// Actions are the admin dashboard controls.
type Actions struct {
	ToggleRegistration Action `json:"toggle_registration"`
	IssueManual        Action `json:"issue_manual"`
	GenerateList       Action `json:"generate_list"`
}

// Admin is the admin landing view.
type Admin struct {
	Role         access.Role           `json:"role"`
	RoleLabel    string                `json:"role_label"`
	Name         string                `json:"name,omitempty"`
	Capabilities []access.Capability   `json:"capabilities"`
	Clock        clock.Snapshot        `json:"clock"`
	State        registration.Snapshot `json:"state"`
	Stats        tokens.Stats          `json:"stats"`
	Actions      Actions               `json:"actions"`
	Notice       *Notice               `json:"notice,omitempty"`
}

// Service builds dashboard views.
type Service struct {
	clock  *clock.Clock
	state  *registration.State
	tokens TokenSource
}

// NewService constructs a Service.
func NewService(clk *clock.Clock, state *registration.State, src TokenSource) *Service {
	return &Service{clock: clk, state: state, tokens: src}
}

// Passenger returns the view for the passenger logged in with mobile. Only
// that passenger's registrations are included.
func (s *Service) Passenger(ctx context.Context, mobile string) (Passenger, error) {
	now := s.clock.Now()
	regs, err := s.tokens.Registrations(ctx)
	if err != nil {
		return Passenger{}, fmt.Errorf("dashboard: registrations: %w", err)
	}
	own := make([]tokens.Registration, 0)
	for _, reg := range regs {
		if reg.Mobile == mobile {
			own = append(own, reg)
		}
	}
	snap := s.state.Snapshot()
	return Passenger{
		Mobile:        mobile,
		Clock:         clock.SnapshotAt(now),
		State:         snap,
		Accepting:     s.state.Accepting(now),
		ListVisible:   s.state.ListVisible(now),
		Notice:        noticeFor(now, snap),
		Registrations: own,
	}, nil
}

// Admin returns the view for an admin of role.
func (s *Service) Admin(ctx context.Context, role access.Role, name string) (Admin, error) {
	now := s.clock.Now()
	_, stats, err := s.tokens.List(ctx, tokens.ListFilter{})
	if err != nil {
		return Admin{}, fmt.Errorf("dashboard: token stats: %w", err)
	}
	snap := s.state.Snapshot()
	return Admin{
		Role:         role,
		RoleLabel:    role.DisplayName(),
		Name:         name,
		Capabilities: access.CapabilitiesFor(role).Sorted(),
		Clock:        clock.SnapshotAt(now),
		State:        snap,
		Stats:        stats,
		Actions:      ActionsFor(role, snap, now),
		Notice:       noticeFor(now, snap),
	}, nil
}

// ActionsFor decides which admin controls are usable. Toggling and manual
// issue stop at the 09:00 cutoff; list generation starts there and
// happens once.
func ActionsFor(role access.Role, snap registration.Snapshot, now time.Time) Actions {
	caps := access.CapabilitiesFor(role)
	cutoff := clock.CutoffPassed(now)

	gate := func(c access.Capability, open bool, closedReason string) Action {
		switch {
		case !caps.Has(c):
			return Action{Reason: ReasonNotPermitted}
		case !open:
			return Action{Reason: closedReason}
		}
		return Action{Enabled: true}
	}

	generate := gate(access.GenerateTokenList, cutoff, ReasonBeforeCutoff)
	if generate.Enabled && snap.ListGenerated {
		generate = Action{Reason: ReasonListGenerated}
	}
	return Actions{
		ToggleRegistration: gate(access.ManageRegistration, !cutoff, ReasonCutoffPassed),
		IssueManual:        gate(access.IssueManualTokens, !cutoff, ReasonCutoffPassed),
		GenerateList:       generate,
	}
}

func noticeFor(now time.Time, snap registration.Snapshot) *Notice {
	switch {
	case clock.CutoffPassed(now):
		return &Notice{Title: "Registration Closed for " + now.Format(dateLayout), Message: NoticeCutoff}
	case clock.InPreOpenGap(now):
		return &Notice{Message: NoticePreOpen}
	case !snap.Open:
		return &Notice{Message: NoticeClosedByAdmin}
	}
	return nil
}
