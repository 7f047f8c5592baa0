package tokenshttp

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/activity"
	"github.com/tatkal-desk/tatkal/internal/clock"
	"github.com/tatkal-desk/tatkal/internal/platform/httpx"
	"github.com/tatkal-desk/tatkal/internal/registration"
	"github.com/tatkal-desk/tatkal/internal/shared"
	"github.com/tatkal-desk/tatkal/internal/testing/sessiontest"
	"github.com/tatkal-desk/tatkal/internal/tokens"
)

type otpStub struct{}

func (otpStub) VerifyOTP(code string) bool { return code == "123456" }

type harness struct {
	router   http.Handler
	sessions *shared.SessionManager
	state    *registration.State
	now      *time.Time
}

func newHarness(t *testing.T, at time.Time) *harness {
	t.Helper()
	now := at
	h := &harness{state: registration.NewState(), now: &now}
	clk := clock.New(time.UTC).WithNow(func() time.Time { return *h.now })
	live := []tokens.Token{
		{Number: "AC001", Class: tokens.ClassAC, Type: tokens.KindSelf, Passengers: 2, Status: tokens.StatusActive, Name: "Rajesh Kumar", Aadhaar: "****-****-1234"},
		{Number: "M001", Class: tokens.ClassAC, Type: tokens.KindManual, Passengers: 1, Status: tokens.StatusActive, Name: "Lakshmi Devi", Reason: "Elderly"},
		{Number: "SL001", Class: tokens.ClassSleeper, Type: tokens.KindSelf, Passengers: 4, Status: tokens.StatusActive, Name: "Mohammed Ali"},
	}
	svc := tokens.NewService(tokens.Deps{
		Repo:     tokens.NewMemoryRepository(live, nil),
		State:    h.state,
		Clock:    clk,
		OTP:      otpStub{},
		Activity: activity.NewLog(),
	})
	client := sessiontest.Client(t)
	h.sessions = shared.NewSessionManager(client, "tatkal_session", time.Hour, false)
	handler := NewHandler(nil, svc, shared.NewIdempotencyStore(client, time.Hour), access.Middleware{})

	r := chi.NewRouter()
	r.Route("/passenger", handler.MountPassengerRoutes)
	r.Route("/admin", handler.MountAdminRoutes)
	h.router = r
	return h
}

func at(hour, minute int) time.Time {
	return time.Date(2024, time.January, 15, hour, minute, 0, 0, time.UTC)
}

func (h *harness) do(t *testing.T, method, target, body string, p shared.Principal, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req, _ := sessiontest.Request(t, h.sessions, method, target, body, p)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

var passenger = sessiontest.Passenger("9876543210")

func TestRegisterSelfFlow(t *testing.T) {
	h := newHarness(t, at(2, 0))

	rec := h.do(t, http.MethodPost, "/passenger/register/self/otp", `{"aadhaar":"123456789012","name":"Rajesh"}`, passenger)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	body := `{"aadhaar":"123456789012","name":"Rajesh","otp":"123456","class":"AC","passengers":2}`
	rec = h.do(t, http.MethodPost, "/passenger/register/self", body, passenger, shared.IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp registrationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Registration Successful\nClass: AC\nPassengers: 2\nType: self\nToken will be generated at 9:15 AM", resp.Slip)
	assert.Equal(t, "/passenger/registrations/"+resp.Registration.Reference+"/confirmation", rec.Header().Get("Location"))

	rec = h.do(t, http.MethodPost, "/passenger/register/self", body, passenger, shared.IdempotencyHeader, "k-1")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodGet, "/passenger/registrations/"+resp.Registration.Reference+"/confirmation?format=txt", "", passenger)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, resp.Slip, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "registration-confirmation.txt")

	rec = h.do(t, http.MethodGet, "/passenger/registrations/"+resp.Registration.Reference+"/confirmation", "", sessiontest.Passenger("1111111111"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterSelfValidation(t *testing.T) {
	h := newHarness(t, at(2, 0))

	rec := h.do(t, http.MethodPost, "/passenger/register/self", `{"aadhaar":"12ab","name":"","otp":"1","class":"First","passengers":9}`, passenger)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	assert.Equal(t, "must be exactly 12 characters", problem.Fields["aadhaar"])
	assert.Equal(t, "is required", problem.Fields["name"])
	assert.Equal(t, "must be one of: AC Sleeper", problem.Fields["class"])
	assert.Equal(t, "must be at most 4", problem.Fields["passengers"])
}

func TestRegisterOutsideWindowConflicts(t *testing.T) {
	h := newHarness(t, at(9, 5))
	rec := h.do(t, http.MethodPost, "/passenger/register/self", `{"aadhaar":"123456789012","name":"R","otp":"123456","class":"AC","passengers":1}`, passenger)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRepresentativeRejectsSameAadhaar(t *testing.T) {
	h := newHarness(t, at(3, 0))
	rec := h.do(t, http.MethodPost, "/passenger/register/representative/otp",
		`{"passenger_aadhaar":"111122223333","passenger_name":"P","rep_aadhaar":"111122223333","rep_name":"R"}`, passenger)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "rep_aadhaar")
}

func TestPassengerRoutesRequirePassengerRole(t *testing.T) {
	h := newHarness(t, at(10, 0))
	rec := h.do(t, http.MethodGet, "/passenger/token-list", "", shared.Principal{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(t, http.MethodGet, "/passenger/token-list", "", sessiontest.Admin("superadmin"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminCapabilityGates(t *testing.T) {
	h := newHarness(t, at(3, 0))
	clerk := sessiontest.Admin("clerk")

	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodPost, "/admin/registration/toggle", "", clerk).Code)
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/admin/cancelled", "", clerk).Code)
	assert.Equal(t, http.StatusForbidden, h.do(t, http.MethodGet, "/admin/live", "", passenger).Code)

	rec := h.do(t, http.MethodPost, "/admin/registration/toggle", "", sessiontest.Admin("stationadmin"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"registration_open":false}`, rec.Body.String())
}

func TestManualTokenAndCutoff(t *testing.T) {
	h := newHarness(t, at(8, 30))
	clerk := sessiontest.Admin("clerk")

	rec := h.do(t, http.MethodPost, "/admin/manual-tokens", `{"passenger_name":"Kamla","class":"AC","passengers":1,"reason":"Other"}`, clerk)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "custom_reason")

	rec = h.do(t, http.MethodPost, "/admin/manual-tokens", `{"passenger_name":"Kamla","class":"AC","passengers":1,"reason":"Elderly"}`, clerk)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	*h.now = at(9, 1)
	rec = h.do(t, http.MethodPost, "/admin/manual-tokens", `{"passenger_name":"Kamla","class":"AC","passengers":1,"reason":"Elderly"}`, clerk)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGenerateAndPassengerList(t *testing.T) {
	h := newHarness(t, at(8, 0))
	clerk := sessiontest.Admin("clerk")

	assert.Equal(t, http.StatusConflict, h.do(t, http.MethodPost, "/admin/token-list/generate", "", clerk).Code)

	*h.now = at(9, 10)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/admin/token-list/generate", "", clerk).Code)
	assert.Equal(t, http.StatusConflict, h.do(t, http.MethodPost, "/admin/token-list/generate", "", clerk).Code)
	assert.Equal(t, http.StatusConflict, h.do(t, http.MethodGet, "/passenger/token-list", "", passenger).Code)

	*h.now = at(9, 15)
	rec := h.do(t, http.MethodGet, "/passenger/token-list?search=sleeper", "", passenger)
	require.Equal(t, http.StatusOK, rec.Code)
	var list listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Tokens, 1)
	assert.Equal(t, "SL001", list.Tokens[0].Number)
	assert.True(t, list.State.ListGenerated)

	rec = h.do(t, http.MethodGet, "/passenger/token-list.csv", "", passenger)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	records, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []string{"Token Number", "Class", "Type", "Passengers", "Status"}, records[0])

	rec = h.do(t, http.MethodGet, "/admin/token-list.csv?class=AC", "", clerk)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "token-list-2024-01-15.csv")
	assert.Equal(t, "Token Number,Class,Type,Passengers,Status,Aadhaar/Reason\n"+
		"AC001,AC,Self,2,Active,****-****-1234\n"+
		"M001,AC,Manual,1,Active,Elderly\n", rec.Body.String())
}

func TestLiveCancelServeAndCancelledMonitor(t *testing.T) {
	h := newHarness(t, at(11, 0))
	clerk := sessiontest.Admin("clerk")

	rec := h.do(t, http.MethodGet, "/admin/live?status=Active&type=all", "", clerk)
	require.Equal(t, http.StatusOK, rec.Code)
	var live listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &live))
	assert.Equal(t, 3, live.Stats.Active)

	rec = h.do(t, http.MethodPost, "/admin/live/AC001/cancel", `{"reason":"No Show"}`, clerk)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cancelled tokens.Token
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cancelled))
	assert.Equal(t, tokens.StatusCancelled, cancelled.Status)

	assert.Equal(t, http.StatusConflict, h.do(t, http.MethodPost, "/admin/live/AC001/serve", "", clerk).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/admin/live/XX1/serve", "", clerk).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/admin/live/SL001/serve", "", clerk).Code)

	rec = h.do(t, http.MethodGet, "/admin/cancelled?role=clerk&reason=all", "", sessiontest.Admin("superadmin"))
	require.Equal(t, http.StatusOK, rec.Code)
	var monitor cancelledResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &monitor))
	require.Len(t, monitor.Tokens, 1)
	assert.Equal(t, "AC001", monitor.Tokens[0].Number)
	assert.Equal(t, 1, monitor.Stats.Today)
	assert.Contains(t, monitor.Reasons, "Administrative")
}
