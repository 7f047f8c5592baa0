package tokens

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/activity"
	"github.com/tatkal-desk/tatkal/internal/clock"
	"github.com/tatkal-desk/tatkal/internal/platform/httpx"
	"github.com/tatkal-desk/tatkal/internal/registration"
)

type fixedOTP string

func (f fixedOTP) VerifyOTP(code string) bool { return string(f) == code }

type notifierStub struct {
	mu            sync.Mutex
	otps          []string
	confirmations []string
	err           error
}

func (n *notifierStub) SendOTP(_ context.Context, mobile, purpose string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.otps = append(n.otps, mobile+":"+purpose)
	return n.err
}

func (n *notifierStub) NotifyConfirmation(_ context.Context, reference, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations = append(n.confirmations, reference)
	return n.err
}

type publisherStub struct {
	events []Event
}

func (p *publisherStub) Publish(_ string, data any) {
	if ev, ok := data.(Event); ok {
		p.events = append(p.events, ev)
	}
}

type metricsStub struct {
	registrations map[string]int
	events        map[string]int
}

func (m *metricsStub) RecordRegistration(kind, class string) {
	m.registrations[kind+"/"+class]++
}

func (m *metricsStub) RecordTokenEvent(event string) {
	m.events[event]++
}

type fixture struct {
	svc      *Service
	state    *registration.State
	log      *activity.Log
	notifier *notifierStub
	events   *publisherStub
	metrics  *metricsStub
	now      *time.Time
}

func seedTokens() []Token {
	return []Token{
		{Number: "AC001", Class: ClassAC, Type: KindSelf, Passengers: 2, Status: StatusActive, Time: "00:45", Name: "Rajesh Kumar", Aadhaar: "****-****-1234"},
		{Number: "SL001", Class: ClassSleeper, Type: KindRepresentative, Passengers: 3, Status: StatusActive, Time: "01:30", PassengerName: "Priya Sharma", RepName: "Amit Sharma", Aadhaar: "****-****-5678"},
		{Number: "M001", Class: ClassAC, Type: KindManual, Passengers: 1, Status: StatusActive, Time: "02:00", Name: "Lakshmi Devi", Reason: "Elderly"},
		{Number: "AC003", Class: ClassAC, Type: KindSelf, Passengers: 1, Status: StatusServed, Time: "03:10", Name: "Suresh Patel"},
	}
}

func seedCancelled() []Token {
	return []Token{
		{Number: "AC004", Class: ClassAC, Type: KindSelf, Passengers: 2, Name: "Ravi", Cancellation: &Cancellation{By: "stationadmin", ByRole: access.RoleStationAdmin, Reason: "Passenger Request", Time: "08:30", Date: "2024-01-15"}},
		{Number: "SL003", Class: ClassSleeper, Type: KindRepresentative, Passengers: 3, PassengerName: "Priya", Cancellation: &Cancellation{By: "clerk", ByRole: access.RoleClerk, Reason: "Invalid Documents", Time: "07:45", Date: "2024-01-14"}},
		{Number: "M003", Class: ClassAC, Type: KindManual, Passengers: 1, Name: "Anil", Cancellation: &Cancellation{By: "superadmin", ByRole: access.RoleSuperAdmin, Reason: ReasonOther, CustomReason: "Counter closed", Time: "06:00", Date: "2024-01-10"}},
	}
}

func newFixture(t *testing.T, at time.Time) *fixture {
	t.Helper()
	now := at
	f := &fixture{
		state:    registration.NewState(),
		log:      activity.NewLog(),
		notifier: &notifierStub{},
		events:   &publisherStub{},
		metrics:  &metricsStub{registrations: map[string]int{}, events: map[string]int{}},
		now:      &now,
	}
	clk := clock.New(time.UTC).WithNow(func() time.Time { return *f.now })
	f.svc = NewService(Deps{
		Repo:     NewMemoryRepository(seedTokens(), seedCancelled()),
		State:    f.state,
		Clock:    clk,
		OTP:      fixedOTP("123456"),
		Notifier: f.notifier,
		Events:   f.events,
		Activity: f.log,
		Metrics:  f.metrics,
	})
	return f
}

func at(hour, minute int) time.Time {
	return time.Date(2024, time.January, 15, hour, minute, 0, 0, time.UTC)
}

var clerk = Actor{Name: "clerk", Role: access.RoleClerk}

func TestRegisterSelf(t *testing.T) {
	f := newFixture(t, at(1, 0))
	ctx := context.Background()

	reg, slip, err := f.svc.RegisterSelf(ctx, SelfInput{
		Mobile: "9876543210", Aadhaar: "123456789012", Name: " Rajesh ", OTP: "123456", Class: ClassAC, Passengers: 2,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Reference)
	assert.Equal(t, "Rajesh", reg.Name)
	assert.Equal(t, "****-****-9012", reg.Aadhaar)
	assert.Equal(t, KindSelf, reg.Type)
	assert.Equal(t, "Registration Successful\nClass: AC\nPassengers: 2\nType: self\nToken will be generated at 9:15 AM", slip)
	assert.Equal(t, []string{reg.Reference}, f.notifier.confirmations)
	assert.Equal(t, 1, f.metrics.registrations["self/AC"])
	require.Len(t, f.events.events, 1)
	assert.Equal(t, EventRegistered, f.events.events[0].Kind)

	_, _, err = f.svc.RegisterSelf(ctx, SelfInput{Mobile: "9876543210", Aadhaar: "123456789012", Name: "Again", OTP: "123456", Class: ClassAC, Passengers: 1})
	assert.ErrorIs(t, err, ErrDuplicateRegistration)
	assert.ErrorIs(t, err, httpx.ErrConflict)
}

func TestRegisterSelfRejectsWrongOTP(t *testing.T) {
	f := newFixture(t, at(1, 0))
	_, _, err := f.svc.RegisterSelf(context.Background(), SelfInput{Aadhaar: "123456789012", Name: "A", OTP: "000000", Class: ClassAC, Passengers: 1})
	assert.ErrorIs(t, err, ErrOTPMismatch)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestRegistrationGates(t *testing.T) {
	in := SelfInput{Aadhaar: "123456789012", Name: "A", OTP: "123456", Class: ClassSleeper, Passengers: 1}

	cases := map[string]struct {
		at     time.Time
		closed bool
	}{
		"pre-open gap":    {at: at(0, 15)},
		"pending list":    {at: at(9, 5)},
		"list available":  {at: at(14, 0)},
		"closed by admin": {at: at(2, 0), closed: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, tc.at)
			if tc.closed {
				_, err := f.state.ToggleRegistration(tc.at)
				require.NoError(t, err)
			}
			_, _, err := f.svc.RegisterSelf(context.Background(), in)
			assert.ErrorIs(t, err, registration.ErrRegistrationClosed)
			assert.ErrorIs(t, f.svc.SendRegistrationOTP(context.Background(), "9876543210", PurposeSelf), registration.ErrRegistrationClosed)
		})
	}
}

func TestRegisterRepresentative(t *testing.T) {
	f := newFixture(t, at(4, 0))
	ctx := context.Background()
	in := RepresentativeInput{
		Mobile:           "9876543210",
		PassengerAadhaar: "111122223333",
		PassengerName:    "Priya",
		PassengerOTP:     "123456",
		RepAadhaar:       "444455556666",
		RepName:          "Amit",
		RepOTP:           "123456",
		Class:            ClassSleeper,
		Passengers:       3,
	}

	bad := in
	bad.RepOTP = "999999"
	_, _, err := f.svc.RegisterRepresentative(ctx, bad)
	assert.ErrorIs(t, err, ErrOTPMismatch)

	same := in
	same.RepAadhaar = same.PassengerAadhaar
	_, _, err = f.svc.RegisterRepresentative(ctx, same)
	assert.ErrorIs(t, err, ErrSameAadhaar)

	reg, slip, err := f.svc.RegisterRepresentative(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, KindRepresentative, reg.Type)
	assert.Equal(t, "Amit", reg.RepName)
	assert.Contains(t, slip, "Type: representative")

	got, gotSlip, err := f.svc.Confirmation(ctx, reg.Reference, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, reg, got)
	assert.Equal(t, slip, gotSlip)

	_, _, err = f.svc.Confirmation(ctx, reg.Reference, "1111111111")
	assert.ErrorIs(t, err, ErrRegistrationNotFound)
}

func TestIssueManual(t *testing.T) {
	f := newFixture(t, at(8, 59))
	ctx := context.Background()

	_, err := f.svc.IssueManual(ctx, ManualInput{PassengerName: "Kamla", Class: ClassAC, Passengers: 1, Reason: "Unknown", Actor: clerk})
	assert.ErrorIs(t, err, ErrUnknownReason)

	_, err = f.svc.IssueManual(ctx, ManualInput{PassengerName: "Kamla", Class: ClassAC, Passengers: 1, Reason: ReasonOther, Actor: clerk})
	assert.ErrorIs(t, err, ErrCustomReasonRequired)

	reg, err := f.svc.IssueManual(ctx, ManualInput{PassengerName: "Kamla", Class: ClassAC, Passengers: 1, Reason: ReasonOther, CustomReason: "Lost phone", Actor: clerk})
	require.NoError(t, err)
	assert.Equal(t, KindManual, reg.Type)
	assert.Equal(t, "Lost phone", reg.Reason)
	assert.Equal(t, "clerk", reg.IssuedBy)

	entries := f.log.List(activity.Filter{})
	require.Len(t, entries, 1)
	assert.Equal(t, activity.ActionManualToken, entries[0].Action)
	assert.Equal(t, access.RoleClerk, entries[0].Role)

	*f.now = at(9, 0)
	_, err = f.svc.IssueManual(ctx, ManualInput{PassengerName: "Late", Class: ClassAC, Passengers: 1, Reason: "Elderly", Actor: clerk})
	assert.ErrorIs(t, err, ErrManualAfterCutoff)
}

func TestToggleAndGenerate(t *testing.T) {
	f := newFixture(t, at(3, 0))
	ctx := context.Background()
	admin := Actor{Name: "stationadmin", Role: access.RoleStationAdmin}

	open, err := f.svc.ToggleRegistration(ctx, admin)
	require.NoError(t, err)
	assert.False(t, open)
	open, err = f.svc.ToggleRegistration(ctx, admin)
	require.NoError(t, err)
	assert.True(t, open)

	assert.ErrorIs(t, f.svc.GenerateList(ctx, admin), registration.ErrListTooEarly)

	*f.now = at(9, 5)
	_, err = f.svc.ToggleRegistration(ctx, admin)
	assert.ErrorIs(t, err, registration.ErrCutoffPassed)

	require.NoError(t, f.svc.GenerateList(ctx, admin))
	assert.ErrorIs(t, f.svc.GenerateList(ctx, admin), registration.ErrListAlreadyGenerated)
	assert.True(t, f.svc.State().ListGenerated)

	_, err = f.svc.PassengerList(ctx, "")
	assert.ErrorIs(t, err, registration.ErrListNotAvailable)

	*f.now = at(9, 15)
	list, err := f.svc.PassengerList(ctx, "priya")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "SL001", list[0].Number)

	actions := []string{}
	for _, e := range f.log.List(activity.Filter{}) {
		actions = append(actions, e.Action)
	}
	assert.ElementsMatch(t, []string{activity.ActionClosedRegistration, activity.ActionOpenedRegistration, activity.ActionGeneratedList}, actions)
}

func TestResetForNewDay(t *testing.T) {
	f := newFixture(t, at(2, 0))
	ctx := context.Background()
	_, _, err := f.svc.RegisterSelf(ctx, SelfInput{Aadhaar: "123456789012", Name: "A", OTP: "123456", Class: ClassAC, Passengers: 1})
	require.NoError(t, err)

	*f.now = at(9, 30)
	require.NoError(t, f.svc.GenerateList(ctx, clerk))
	require.NoError(t, f.svc.ResetForNewDay(ctx))

	snap := f.svc.State()
	assert.True(t, snap.Open)
	assert.False(t, snap.ListGenerated)
	regs, err := f.svc.Registrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, regs)

	*f.now = at(2, 0).AddDate(0, 0, 1)
	_, _, err = f.svc.RegisterSelf(ctx, SelfInput{Aadhaar: "123456789012", Name: "A", OTP: "123456", Class: ClassAC, Passengers: 1})
	assert.NoError(t, err)
}

func TestListFiltersAndStats(t *testing.T) {
	f := newFixture(t, at(10, 0))
	ctx := context.Background()

	all, stats, err := f.svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, Stats{Total: 4, Active: 3, Served: 1, AC: 3, Sleeper: 1, Manual: 1}, stats)

	ac, _, err := f.svc.List(ctx, ListFilter{Class: ClassAC, Status: StatusActive})
	require.NoError(t, err)
	assert.Len(t, ac, 2)

	byClass, _, err := f.svc.List(ctx, ListFilter{Search: "sleeper"})
	require.NoError(t, err)
	require.Len(t, byClass, 1)
	assert.Equal(t, "SL001", byClass[0].Number)

	byType, _, err := f.svc.List(ctx, ListFilter{Search: " MANUAL "})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "M001", byType[0].Number)

	byName, _, err := f.svc.List(ctx, ListFilter{Search: "amit"})
	require.NoError(t, err)
	assert.Empty(t, byName)

	manual, _, err := f.svc.List(ctx, ListFilter{Type: KindManual})
	require.NoError(t, err)
	require.Len(t, manual, 1)
	assert.Equal(t, "M001", manual[0].Number)
}

func TestLiveSearchesNames(t *testing.T) {
	f := newFixture(t, at(10, 0))
	ctx := context.Background()

	byRep, stats, err := f.svc.Live(ctx, ListFilter{Search: "amit"})
	require.NoError(t, err)
	require.Len(t, byRep, 1)
	assert.Equal(t, "SL001", byRep[0].Number)
	assert.Equal(t, 1, stats.Total)

	byNumber, _, err := f.svc.Live(ctx, ListFilter{Search: "ac00", Status: StatusActive})
	require.NoError(t, err)
	require.Len(t, byNumber, 1)
	assert.Equal(t, "AC001", byNumber[0].Number)

	byClass, _, err := f.svc.Live(ctx, ListFilter{Search: "sleeper"})
	require.NoError(t, err)
	assert.Empty(t, byClass)
}

func TestPassengerListSearchesClassAndType(t *testing.T) {
	f := newFixture(t, at(9, 5))
	ctx := context.Background()
	require.NoError(t, f.svc.GenerateList(ctx, clerk))
	*f.now = at(9, 20)

	sleeper, err := f.svc.PassengerList(ctx, "sleeper")
	require.NoError(t, err)
	require.Len(t, sleeper, 1)
	assert.Equal(t, "SL001", sleeper[0].Number)

	self, err := f.svc.PassengerList(ctx, "self")
	require.NoError(t, err)
	assert.Len(t, self, 2)
}

func TestCancelAndServe(t *testing.T) {
	f := newFixture(t, at(10, 30))
	ctx := context.Background()

	_, err := f.svc.Cancel(ctx, CancelInput{Number: "ac001", Reason: "Bad", Actor: clerk})
	assert.ErrorIs(t, err, ErrUnknownReason)

	tok, err := f.svc.Cancel(ctx, CancelInput{Number: "ac001", Reason: "No Show", Actor: clerk})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, tok.Status)
	require.NotNil(t, tok.Cancellation)
	assert.Equal(t, "10:30", tok.Cancellation.Time)
	assert.Equal(t, "2024-01-15", tok.Cancellation.Date)
	assert.Equal(t, "Clerk", tok.Cancellation.ByRoleLabel)

	_, err = f.svc.Cancel(ctx, CancelInput{Number: "AC001", Reason: "No Show", Actor: clerk})
	assert.ErrorIs(t, err, ErrTokenNotActive)

	_, err = f.svc.MarkServed(ctx, "AC001", clerk)
	assert.ErrorIs(t, err, ErrTokenNotActive)
	_, err = f.svc.MarkServed(ctx, "ZZ999", clerk)
	assert.ErrorIs(t, err, ErrTokenNotFound)

	served, err := f.svc.MarkServed(ctx, "SL001", clerk)
	require.NoError(t, err)
	assert.Equal(t, StatusServed, served.Status)

	cancelled, stats, err := f.svc.Cancelled(ctx, CancelledFilter{})
	require.NoError(t, err)
	require.Len(t, cancelled, 4)
	assert.Equal(t, "AC001", cancelled[0].Number)
	assert.Equal(t, CancelledStats{Total: 4, Today: 2, Yesterday: 1, BySuperAdmin: 1, ByStationAdmin: 1, ByClerk: 2}, stats)

	assert.Equal(t, 1, f.metrics.events[EventCancelled])
	assert.Equal(t, 1, f.metrics.events[EventServed])
	require.Len(t, f.events.events, 2)
	assert.Equal(t, EventServed, f.events.events[1].Kind)
}

func TestCancelledFilters(t *testing.T) {
	f := newFixture(t, at(10, 0))
	ctx := context.Background()

	byRole, _, err := f.svc.Cancelled(ctx, CancelledFilter{ByRole: access.RoleClerk})
	require.NoError(t, err)
	require.Len(t, byRole, 1)
	assert.Equal(t, "SL003", byRole[0].Number)
	assert.Equal(t, "Clerk", byRole[0].Cancellation.ByRoleLabel)

	byDate, _, err := f.svc.Cancelled(ctx, CancelledFilter{Date: "2024-01-15"})
	require.NoError(t, err)
	assert.Len(t, byDate, 1)

	byAdmin, _, err := f.svc.Cancelled(ctx, CancelledFilter{Search: "superadmin"})
	require.NoError(t, err)
	require.Len(t, byAdmin, 1)
	assert.Equal(t, "Counter closed", byAdmin[0].Cancellation.EffectiveReason())

	byReason, _, err := f.svc.Cancelled(ctx, CancelledFilter{Reason: "Invalid Documents", Class: ClassSleeper, Type: KindRepresentative})
	require.NoError(t, err)
	assert.Len(t, byReason, 1)

	searchReason, _, err := f.svc.Cancelled(ctx, CancelledFilter{Search: "invalid documents"})
	require.NoError(t, err)
	require.Len(t, searchReason, 1)
	assert.Equal(t, "SL003", searchReason[0].Number)

	searchCustom, _, err := f.svc.Cancelled(ctx, CancelledFilter{Search: "counter"})
	require.NoError(t, err)
	require.Len(t, searchCustom, 1)
	assert.Equal(t, "M003", searchCustom[0].Number)
}

func TestCancelledStatsFollowFilters(t *testing.T) {
	f := newFixture(t, at(10, 0))
	ctx := context.Background()

	_, all, err := f.svc.Cancelled(ctx, CancelledFilter{})
	require.NoError(t, err)
	assert.Equal(t, CancelledStats{Total: 3, Today: 1, Yesterday: 1, BySuperAdmin: 1, ByStationAdmin: 1, ByClerk: 1}, all)

	_, byClerk, err := f.svc.Cancelled(ctx, CancelledFilter{ByRole: access.RoleClerk})
	require.NoError(t, err)
	assert.Equal(t, CancelledStats{Total: 1, Yesterday: 1, ByClerk: 1}, byClerk)

	_, today, err := f.svc.Cancelled(ctx, CancelledFilter{Date: "2024-01-15"})
	require.NoError(t, err)
	assert.Equal(t, CancelledStats{Total: 1, Today: 1, ByStationAdmin: 1}, today)

	_, none, err := f.svc.Cancelled(ctx, CancelledFilter{Search: "nobody"})
	require.NoError(t, err)
	assert.Equal(t, CancelledStats{}, none)
}

func TestNotifierFailureDoesNotFailRegistration(t *testing.T) {
	f := newFixture(t, at(5, 0))
	f.notifier.err = errors.New("redis down")
	_, _, err := f.svc.RegisterSelf(context.Background(), SelfInput{Aadhaar: "123456789012", Name: "A", OTP: "123456", Class: ClassAC, Passengers: 1, Mobile: "9876543210"})
	assert.NoError(t, err)
}

func TestWriteTokensCSV(t *testing.T) {
	list := seedTokens()[:3]
	list = append(list, Token{Number: "SL009", Class: ClassSleeper, Type: KindSelf, Passengers: 1, Status: StatusActive})

	var passenger bytes.Buffer
	require.NoError(t, WriteTokensCSV(&passenger, list, false))
	assert.Equal(t, "Token Number,Class,Type,Passengers,Status\n"+
		"AC001,AC,Self,2,Active\n"+
		"SL001,Sleeper,Representative,3,Active\n"+
		"M001,AC,Manual,1,Active\n"+
		"SL009,Sleeper,Self,1,Active\n", passenger.String())

	var admin bytes.Buffer
	require.NoError(t, WriteTokensCSV(&admin, list, true))
	assert.Equal(t, "Token Number,Class,Type,Passengers,Status,Aadhaar/Reason\n"+
		"AC001,AC,Self,2,Active,****-****-1234\n"+
		"SL001,Sleeper,Representative,3,Active,****-****-5678\n"+
		"M001,AC,Manual,1,Active,Elderly\n"+
		"SL009,Sleeper,Self,1,Active,N/A\n", admin.String())
}

func TestMaskAadhaar(t *testing.T) {
	assert.Equal(t, "****-****-9012", MaskAadhaar("123456789012"))
	assert.Equal(t, "****-****-****", MaskAadhaar("12"))
}
