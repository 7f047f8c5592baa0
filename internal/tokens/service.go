package tokens

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/activity"
	"github.com/tatkal-desk/tatkal/internal/clock"
	"github.com/tatkal-desk/tatkal/internal/platform/httpx"
	"github.com/tatkal-desk/tatkal/internal/registration"
)

// ErrSameAadhaar rejects a representative registering with the passenger's Aadhaar.
var ErrSameAadhaar = fmt.Errorf("tokens: representative aadhaar must differ from passenger: %w", httpx.ErrValidation)

// OTP purposes passed to the notifier.
const (
	PurposeSelf           = "self_registration"
	PurposeRepresentative = "representative_registration"
)

// Live event kinds.
const (
	EventIssued       = "issued"
	EventRegistered   = "registered"
	EventCancelled    = "cancelled"
	EventServed       = "served"
	EventListReady    = "list_generated"
	EventRegistration = "registration_toggled"
)

// OTPVerifier checks a one-time password.
type OTPVerifier interface {
	VerifyOTP(code string) bool
}

// Notifier sends passenger-facing messages out of band.
type Notifier interface {
	SendOTP(ctx context.Context, mobile, purpose string) error
	NotifyConfirmation(ctx context.Context, reference, mobile, slip string) error
}

// Publisher pushes events to live listeners.
type Publisher interface {
	Publish(kind string, data any)
}

// ActivityRecorder appends admin activity.
type ActivityRecorder interface {
	Record(ctx context.Context, e activity.Entry) activity.Entry
}

// Metrics counts registrations and token events.
type Metrics interface {
	RecordRegistration(kind, class string)
	RecordTokenEvent(event string)
}

// Actor is the admin performing an action.
type Actor struct {
	Name string
	Role access.Role
}

// Event is the payload published for token changes.
type Event struct {
	Kind   string    `json:"kind"`
	Number string    `json:"number,omitempty"`
	Class  Class     `json:"class,omitempty"`
	Type   Kind      `json:"type,omitempty"`
	Status Status    `json:"status,omitempty"`
	By     string    `json:"by,omitempty"`
	At     time.Time `json:"at"`
}

// Deps wires the service's collaborators. Repo, State and Clock are
// required; the rest may be nil.
type Deps struct {
	Repo     Repository
	State    *registration.State
	Clock    *clock.Clock
	OTP      OTPVerifier
	Notifier Notifier
	Events   Publisher
	Activity ActivityRecorder
	Metrics  Metrics
	Logger   *slog.Logger
}

// Service implements registration and token monitoring.
type Service struct {
	repo     Repository
	state    *registration.State
	clock    *clock.Clock
	otp      OTPVerifier
	notifier Notifier
	events   Publisher
	activity ActivityRecorder
	metrics  Metrics
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     d.Repo,
		state:    d.State,
		clock:    d.Clock,
		otp:      d.OTP,
		notifier: d.Notifier,
		events:   d.Events,
		activity: d.Activity,
		metrics:  d.Metrics,
		logger:   logger,
	}
}

// SelfInput is a passenger registering for themselves.
type SelfInput struct {
	Mobile     string
	Aadhaar    string
	Name       string
	OTP        string
	Class      Class
	Passengers int
}

// RepresentativeInput is a representative registering for a passenger.
type RepresentativeInput struct {
	Mobile           string
	PassengerAadhaar string
	PassengerName    string
	PassengerOTP     string
	RepAadhaar       string
	RepName          string
	RepOTP           string
	Class            Class
	Passengers       int
}

// ManualInput is a token issued at the counter.
type ManualInput struct {
	PassengerName string
	Class         Class
	Passengers    int
	Reason        string
	CustomReason  string
	Actor         Actor
}

// CancelInput identifies the token to cancel and why.
type CancelInput struct {
	Number       string
	Reason       string
	CustomReason string
	Actor        Actor
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// State exposes the registration state flags.
func (s *Service) State() registration.Snapshot {
	return s.state.Snapshot()
}

// SendRegistrationOTP asks the notifier to deliver an OTP while
// registration is accepting entries.
func (s *Service) SendRegistrationOTP(ctx context.Context, mobile, purpose string) error {
	if err := s.state.CheckAccepting(s.clock.Now()); err != nil {
		return err
	}
	if s.notifier == nil {
		return nil
	}
	return s.notifier.SendOTP(ctx, mobile, purpose)
}

// RegisterSelf records a self registration and returns it with its slip.
func (s *Service) RegisterSelf(ctx context.Context, in SelfInput) (Registration, string, error) {
	if s == nil || s.repo == nil {
		return Registration{}, "", errNilService
	}
	now := s.clock.Now()
	if err := s.state.CheckAccepting(now); err != nil {
		return Registration{}, "", err
	}
	if !s.verify(in.OTP) {
		return Registration{}, "", ErrOTPMismatch
	}
	reg := Registration{
		Reference:    uuid.NewString(),
		Class:        in.Class,
		Type:         KindSelf,
		Passengers:   in.Passengers,
		Mobile:       in.Mobile,
		Name:         strings.TrimSpace(in.Name),
		Aadhaar:      MaskAadhaar(in.Aadhaar),
		RegisteredAt: now,
	}
	return s.store(ctx, reg, in.Aadhaar)
}

// RegisterRepresentative records a registration made on a passenger's behalf.
// Both OTPs must verify.
func (s *Service) RegisterRepresentative(ctx context.Context, in RepresentativeInput) (Registration, string, error) {
	if s == nil || s.repo == nil {
		return Registration{}, "", errNilService
	}
	now := s.clock.Now()
	if err := s.state.CheckAccepting(now); err != nil {
		return Registration{}, "", err
	}
	if in.PassengerAadhaar == in.RepAadhaar {
		return Registration{}, "", ErrSameAadhaar
	}
	if !s.verify(in.PassengerOTP) || !s.verify(in.RepOTP) {
		return Registration{}, "", ErrOTPMismatch
	}
	reg := Registration{
		Reference:     uuid.NewString(),
		Class:         in.Class,
		Type:          KindRepresentative,
		Passengers:    in.Passengers,
		Mobile:        in.Mobile,
		PassengerName: strings.TrimSpace(in.PassengerName),
		RepName:       strings.TrimSpace(in.RepName),
		Aadhaar:       MaskAadhaar(in.PassengerAadhaar),
		RegisteredAt:  now,
	}
	return s.store(ctx, reg, in.PassengerAadhaar)
}

// IssueManual records a counter-issued token. Blocked after the cutoff.
func (s *Service) IssueManual(ctx context.Context, in ManualInput) (Registration, error) {
	if s == nil || s.repo == nil {
		return Registration{}, errNilService
	}
	now := s.clock.Now()
	if clock.CutoffPassed(now) {
		return Registration{}, ErrManualAfterCutoff
	}
	if err := checkReason(in.Reason, in.CustomReason, ManualReasons); err != nil {
		return Registration{}, err
	}
	reason := in.Reason
	if reason == ReasonOther {
		reason = strings.TrimSpace(in.CustomReason)
	}
	reg := Registration{
		Reference:     uuid.NewString(),
		Class:         in.Class,
		Type:          KindManual,
		Passengers:    in.Passengers,
		PassengerName: strings.TrimSpace(in.PassengerName),
		Reason:        reason,
		IssuedBy:      in.Actor.Name,
		RegisteredAt:  now,
	}
	if err := s.repo.InsertRegistration(ctx, reg); err != nil {
		return Registration{}, err
	}
	s.countRegistration(reg)
	s.record(ctx, in.Actor, activity.ActionManualToken, activity.StatusSuccess,
		fmt.Sprintf("Manual token issued for %s - %s class (%s)", reg.PassengerName, reg.Class, reason))
	s.publish(Event{Kind: EventIssued, Class: reg.Class, Type: reg.Type, By: in.Actor.Name, At: now})
	return reg, nil
}

// Confirmation returns a registration and its slip, visible only to the
// mobile that made it.
func (s *Service) Confirmation(ctx context.Context, reference, mobile string) (Registration, string, error) {
	reg, err := s.repo.GetRegistration(ctx, reference)
	if err != nil {
		return Registration{}, "", err
	}
	if reg.Mobile != mobile {
		return Registration{}, "", ErrRegistrationNotFound
	}
	slip, err := RenderSlip(reg)
	if err != nil {
		return Registration{}, "", err
	}
	return reg, slip, nil
}

// Registrations returns today's pending registrations.
func (s *Service) Registrations(ctx context.Context) ([]Registration, error) {
	return s.repo.ListRegistrations(ctx)
}

// ToggleRegistration flips the registration flag for actor.
func (s *Service) ToggleRegistration(ctx context.Context, actor Actor) (bool, error) {
	now := s.clock.Now()
	open, err := s.state.ToggleRegistration(now)
	if err != nil {
		return false, err
	}
	action, details := activity.ActionClosedRegistration, "Registration window closed"
	if open {
		action, details = activity.ActionOpenedRegistration, "Registration window opened"
	}
	s.record(ctx, actor, action, activity.StatusInfo, details)
	s.publish(Event{Kind: EventRegistration, By: actor.Name, At: now})
	return open, nil
}

// GenerateList marks today's token list as generated.
func (s *Service) GenerateList(ctx context.Context, actor Actor) error {
	now := s.clock.Now()
	if err := s.state.GenerateTokenList(now, actor.Name); err != nil {
		return err
	}
	tokens, err := s.repo.ListTokens(ctx)
	if err != nil {
		return err
	}
	s.record(ctx, actor, activity.ActionGeneratedList, activity.StatusSuccess,
		fmt.Sprintf("Token list generated with %d tokens", len(tokens)))
	s.publish(Event{Kind: EventListReady, By: actor.Name, At: now})
	return nil
}

// ResetForNewDay reopens registration and drops the previous day's
// registrations.
func (s *Service) ResetForNewDay(ctx context.Context) error {
	s.state.ResetForNewDay()
	if err := s.repo.ClearRegistrations(ctx); err != nil {
		return err
	}
	s.record(ctx, Actor{Name: "system"}, activity.ActionDailyReset, activity.StatusInfo, "Registration reopened for a new day")
	return nil
}

// List returns the token list filtered by class, type and status, with
// stats over the filtered set. Search matches number, class or type.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Token, Stats, error) {
	return s.filter(ctx, f, matchesListSearch)
}

// Live returns the live-monitoring view. Search matches number or any of
// the passenger names.
func (s *Service) Live(ctx context.Context, f ListFilter) ([]Token, Stats, error) {
	return s.filter(ctx, f, matchesNameSearch)
}

func (s *Service) filter(ctx context.Context, f ListFilter, match func(Token, string) bool) ([]Token, Stats, error) {
	all, err := s.repo.ListTokens(ctx)
	if err != nil {
		return nil, Stats{}, err
	}
	search := normalizeSearch(f.Search)
	out := make([]Token, 0, len(all))
	for _, t := range all {
		if f.Class != "" && t.Class != f.Class {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if search != "" && !match(t, search) {
			continue
		}
		out = append(out, t)
	}
	return out, Summarize(out), nil
}

// PassengerList returns the list once it is generated and released.
func (s *Service) PassengerList(ctx context.Context, search string) ([]Token, error) {
	if !s.state.ListVisible(s.clock.Now()) {
		return nil, registration.ErrListNotAvailable
	}
	list, _, err := s.List(ctx, ListFilter{Search: search})
	return list, err
}

// Cancel cancels an active token.
func (s *Service) Cancel(ctx context.Context, in CancelInput) (Token, error) {
	if err := checkReason(in.Reason, in.CustomReason, CancellationReasons); err != nil {
		return Token{}, err
	}
	now := s.clock.Now()
	t, err := s.repo.UpdateToken(ctx, in.Number, func(t *Token) error {
		if t.Status != StatusActive {
			return ErrTokenNotActive
		}
		t.Status = StatusCancelled
		t.Cancellation = &Cancellation{
			By:           in.Actor.Name,
			ByRole:       in.Actor.Role,
			ByRoleLabel:  in.Actor.Role.DisplayName(),
			Reason:       in.Reason,
			CustomReason: strings.TrimSpace(in.CustomReason),
			Time:         now.Format("15:04"),
			Date:         now.Format(time.DateOnly),
		}
		return nil
	})
	if err != nil {
		return Token{}, err
	}
	if err := s.repo.AddCancelled(ctx, t); err != nil {
		return Token{}, err
	}
	s.countEvent(EventCancelled)
	s.record(ctx, in.Actor, activity.ActionCancelledToken, activity.StatusWarning,
		fmt.Sprintf("Token %s cancelled: %s", t.Number, t.Cancellation.EffectiveReason()))
	s.publish(Event{Kind: EventCancelled, Number: t.Number, Class: t.Class, Type: t.Type, Status: t.Status, By: in.Actor.Name, At: now})
	return t, nil
}

// MarkServed marks an active token as served.
func (s *Service) MarkServed(ctx context.Context, number string, actor Actor) (Token, error) {
	t, err := s.repo.UpdateToken(ctx, number, func(t *Token) error {
		if t.Status != StatusActive {
			return ErrTokenNotActive
		}
		t.Status = StatusServed
		return nil
	})
	if err != nil {
		return Token{}, err
	}
	now := s.clock.Now()
	s.countEvent(EventServed)
	s.record(ctx, actor, activity.ActionServedToken, activity.StatusSuccess, fmt.Sprintf("Token %s marked as served", t.Number))
	s.publish(Event{Kind: EventServed, Number: t.Number, Class: t.Class, Type: t.Type, Status: t.Status, By: actor.Name, At: now})
	return t, nil
}

// Cancelled returns the filtered cancelled monitor with stats over the
// filtered set.
func (s *Service) Cancelled(ctx context.Context, f CancelledFilter) ([]Token, CancelledStats, error) {
	all, err := s.repo.ListCancelled(ctx)
	if err != nil {
		return nil, CancelledStats{}, err
	}
	search := normalizeSearch(f.Search)
	out := make([]Token, 0, len(all))
	for _, t := range all {
		c := t.Cancellation
		if c == nil {
			c = &Cancellation{}
		}
		if f.Class != "" && t.Class != f.Class {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.ByRole != "" && c.ByRole != f.ByRole {
			continue
		}
		if f.Reason != "" && c.Reason != f.Reason {
			continue
		}
		if f.Date != "" && c.Date != f.Date {
			continue
		}
		if search != "" && !matchesCancelledSearch(t, *c, search) {
			continue
		}
		if c.ByRoleLabel == "" && c.ByRole != "" {
			withLabel := *c
			withLabel.ByRoleLabel = c.ByRole.DisplayName()
			t.Cancellation = &withLabel
		}
		out = append(out, t)
	}
	return out, summarizeCancelled(out, s.clock.Now()), nil
}

// Summarize counts tokens by status, class and kind.
func Summarize(list []Token) Stats {
	stats := Stats{Total: len(list)}
	for _, t := range list {
		switch t.Status {
		case StatusActive:
			stats.Active++
		case StatusServed:
			stats.Served++
		case StatusCancelled:
			stats.Cancelled++
		}
		switch t.Class {
		case ClassAC:
			stats.AC++
		case ClassSleeper:
			stats.Sleeper++
		}
		if t.Type == KindManual {
			stats.Manual++
		}
	}
	return stats
}

func summarizeCancelled(list []Token, now time.Time) CancelledStats {
	today := now.Format(time.DateOnly)
	yesterday := now.AddDate(0, 0, -1).Format(time.DateOnly)
	stats := CancelledStats{Total: len(list)}
	for _, t := range list {
		if t.Cancellation == nil {
			continue
		}
		switch t.Cancellation.Date {
		case today:
			stats.Today++
		case yesterday:
			stats.Yesterday++
		}
		switch t.Cancellation.ByRole {
		case access.RoleSuperAdmin:
			stats.BySuperAdmin++
		case access.RoleStationAdmin:
			stats.ByStationAdmin++
		case access.RoleClerk:
			stats.ByClerk++
		}
	}
	return stats
}

func normalizeSearch(search string) string {
	return strings.ToLower(strings.TrimSpace(search))
}

func containsAny(search string, fields ...string) bool {
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

// matchesListSearch is the token list search: number, class or type.
func matchesListSearch(t Token, search string) bool {
	return containsAny(search, t.Number, string(t.Class), string(t.Type))
}

// matchesNameSearch is the live monitoring search: number or a name.
func matchesNameSearch(t Token, search string) bool {
	return containsAny(search, t.Number, t.Name, t.PassengerName, t.RepName)
}

// matchesCancelledSearch also looks at who cancelled and why.
func matchesCancelledSearch(t Token, c Cancellation, search string) bool {
	return matchesNameSearch(t, search) || containsAny(search, c.By, c.Reason, c.CustomReason)
}

func (s *Service) store(ctx context.Context, reg Registration, aadhaar string) (Registration, string, error) {
	if err := s.repo.InsertRegistration(ctx, reg, aadhaar); err != nil {
		return Registration{}, "", err
	}
	slip, err := RenderSlip(reg)
	if err != nil {
		return Registration{}, "", err
	}
	s.countRegistration(reg)
	if s.notifier != nil && reg.Mobile != "" {
		if err := s.notifier.NotifyConfirmation(ctx, reg.Reference, reg.Mobile, slip); err != nil {
			s.logger.WarnContext(ctx, "enqueue confirmation", slog.String("reference", reg.Reference), slog.Any("error", err))
		}
	}
	s.publish(Event{Kind: EventRegistered, Class: reg.Class, Type: reg.Type, At: reg.RegisteredAt})
	return reg, slip, nil
}

func (s *Service) verify(code string) bool {
	if s.otp == nil {
		return false
	}
	return s.otp.VerifyOTP(code)
}

func (s *Service) countRegistration(reg Registration) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordRegistration(strings.ToLower(string(reg.Type)), string(reg.Class))
	s.metrics.RecordTokenEvent(EventRegistered)
}

func (s *Service) countEvent(event string) {
	if s.metrics != nil {
		s.metrics.RecordTokenEvent(event)
	}
}

func (s *Service) record(ctx context.Context, actor Actor, action string, status activity.Status, details string) {
	if s.activity == nil {
		return
	}
	s.activity.Record(ctx, activity.Entry{
		Admin:   actor.Name,
		Role:    actor.Role,
		Action:  action,
		Details: details,
		Status:  status,
	})
}

func (s *Service) publish(ev Event) {
	if s.events != nil {
		s.events.Publish("token", ev)
	}
}

