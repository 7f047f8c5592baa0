package access

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatkal-desk/tatkal/internal/shared"
)

func TestCapabilitiesForMatchesPolicyTable(t *testing.T) {
	expected := map[Role][]Capability{
		RoleSuperAdmin: {
			ManageRegistration, IssueManualTokens, GenerateTokenList, ViewReports,
			ViewAdminActivity, ViewLiveMonitoring, ViewCancelledTokens,
		},
		RoleStationAdmin: {
			ManageRegistration, IssueManualTokens, GenerateTokenList, ViewReports, ViewLiveMonitoring,
		},
		RoleClerk:           {IssueManualTokens, GenerateTokenList, ViewLiveMonitoring},
		RolePassenger:       nil,
		RoleUnauthenticated: nil,
		Role("stationmaster"): nil,
	}

	for role, want := range expected {
		got := CapabilitiesFor(role)
		assert.Len(t, got, len(want), "role %q", role)
		for _, c := range AllCapabilities {
			assert.Equal(t, contains(want, c), got.Has(c), "role %q capability %q", role, c)
			assert.Equal(t, contains(want, c), Can(role, c), "role %q capability %q", role, c)
		}
	}
}

func TestCapabilitiesForReturnsCopy(t *testing.T) {
	set := CapabilitiesFor(RoleClerk)
	set[ViewAdminActivity] = struct{}{}
	delete(set, IssueManualTokens)

	assert.False(t, Can(RoleClerk, ViewAdminActivity))
	assert.True(t, CapabilitiesFor(RoleClerk).Has(IssueManualTokens))
}

func TestSortedIsDeterministic(t *testing.T) {
	got := CapabilitiesFor(RoleClerk).Sorted()
	assert.Equal(t, []Capability{ViewLiveMonitoring, GenerateTokenList, IssueManualTokens}, got)
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" SuperAdmin ")
	assert.True(t, ok)
	assert.Equal(t, RoleSuperAdmin, role)

	role, ok = ParseRole("")
	assert.True(t, ok)
	assert.Equal(t, RoleUnauthenticated, role)

	_, ok = ParseRole("root")
	assert.False(t, ok)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Super Admin", RoleSuperAdmin.DisplayName())
	assert.Equal(t, "Station Admin", RoleStationAdmin.DisplayName())
	assert.Equal(t, "Clerk", RoleClerk.DisplayName())
	assert.Empty(t, RoleUnauthenticated.DisplayName())
	assert.True(t, RoleClerk.IsAdmin())
	assert.False(t, RolePassenger.IsAdmin())
}

func TestMiddlewareStatuses(t *testing.T) {
	mw := Middleware{}
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	cases := []struct {
		name    string
		role    Role
		handler http.Handler
		want    int
	}{
		{"anonymous", RoleUnauthenticated, mw.RequireCapability(ViewReports)(ok), http.StatusUnauthorized},
		{"clerk reports", RoleClerk, mw.RequireCapability(ViewReports)(ok), http.StatusForbidden},
		{"station reports", RoleStationAdmin, mw.RequireCapability(ViewReports)(ok), http.StatusNoContent},
		{"any of", RoleClerk, mw.RequireCapability(ViewReports, ViewLiveMonitoring)(ok), http.StatusNoContent},
		{"all of", RoleClerk, mw.RequireAll(ViewReports, ViewLiveMonitoring)(ok), http.StatusForbidden},
		{"passenger admin route", RolePassenger, mw.RequireRole(AdminRoles...)(ok), http.StatusForbidden},
		{"passenger route", RolePassenger, mw.RequireRole(RolePassenger)(ok), http.StatusNoContent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := requestWithRole(t, tc.role)
			rec := httptest.NewRecorder()
			tc.handler.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func requestWithRole(t *testing.T, role Role) *http.Request {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sm := shared.NewSessionManager(client, "tatkal_session", time.Hour, false)

	req := httptest.NewRequest(http.MethodGet, "/admin/reports", nil)
	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)
	if role != RoleUnauthenticated {
		require.NoError(t, sess.SetPrincipal(shared.Principal{Role: string(role), Identity: string(role)}))
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess))
}

func contains(list []Capability, c Capability) bool {
	for _, item := range list {
		if item == c {
			return true
		}
	}
	return false
}
