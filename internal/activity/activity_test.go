package activity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatkal-desk/tatkal/internal/access"
	"github.com/tatkal-desk/tatkal/internal/testing/sessiontest"
)

func seededLog() *Log {
	base := time.Date(2024, time.January, 15, 0, 30, 15, 0, time.UTC)
	l := NewLog()
	l.Seed([]Entry{
		{Admin: "stationadmin", Role: access.RoleStationAdmin, Action: ActionOpenedRegistration, Timestamp: base, Details: "Registration window opened for today", Status: StatusSuccess},
		{Admin: "clerk", Role: access.RoleClerk, Action: ActionManualToken, Timestamp: base.Add(time.Hour), Details: "Manual token issued for elderly passenger - AC class", Status: StatusSuccess},
		{Admin: "clerk", Role: access.RoleClerk, Action: ActionFailedLogin, Timestamp: base.Add(8 * time.Hour), Details: "Invalid credentials entered", Status: StatusWarning},
		{Admin: "stationadmin", Role: access.RoleStationAdmin, Action: ActionClosedRegistration, Timestamp: base.Add(8*time.Hour + 30*time.Minute), Details: "Registration window closed for token generation", Status: StatusInfo},
	})
	return l
}

func TestRecordFillsDefaults(t *testing.T) {
	l := NewLog()
	now := time.Date(2025, time.March, 1, 4, 0, 0, 0, time.UTC)
	l.WithNow(func() time.Time { return now })

	e := l.Record(context.Background(), Entry{Admin: "clerk", Role: access.RoleClerk, Action: ActionLogin})
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, now, e.Timestamp)
	assert.Equal(t, "Clerk", e.RoleLabel)
	assert.Equal(t, StatusInfo, e.Status)
}

func TestListFiltersAndOrders(t *testing.T) {
	l := seededLog()

	all := l.List(Filter{})
	require.Len(t, all, 4)
	assert.Equal(t, ActionClosedRegistration, all[0].Action)

	clerk := l.List(Filter{Role: access.RoleClerk})
	assert.Len(t, clerk, 2)

	warnings := l.List(Filter{Status: StatusWarning})
	require.Len(t, warnings, 1)
	assert.Equal(t, ActionFailedLogin, warnings[0].Action)

	search := l.List(Filter{Search: "ELDERLY"})
	require.Len(t, search, 1)
	assert.Equal(t, ActionManualToken, search[0].Action)
}

func TestSummarize(t *testing.T) {
	stats := Summarize(seededLog().List(Filter{}))
	assert.Equal(t, Stats{Total: 4, Success: 2, Warning: 1, Info: 1}, stats)
}

func TestHandlerRequiresSuperAdmin(t *testing.T) {
	h := NewHandler(nil, seededLog(), access.Middleware{})
	router := chi.NewRouter()
	h.MountRoutes(router)
	sm := sessiontest.Manager(t)

	req, _ := sessiontest.Request(t, sm, http.MethodGet, "/activity", "", sessiontest.Admin("stationadmin"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req, _ = sessiontest.Request(t, sm, http.MethodGet, "/activity?status=success&per_page=1", "", sessiontest.Admin("superadmin"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body listResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Entries, 1)
	assert.Equal(t, 2, body.Stats.Total)
	assert.Equal(t, 2, body.Pagination.TotalPages)
}
