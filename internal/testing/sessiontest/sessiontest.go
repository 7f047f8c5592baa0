// Package sessiontest builds session-backed requests for handler tests.
package sessiontest

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tatkal-desk/tatkal/internal/shared"
)

// Manager returns a SessionManager backed by a per-test miniredis.
func Manager(t *testing.T) *shared.SessionManager {
	t.Helper()
	return shared.NewSessionManager(Client(t), "tatkal_session", time.Hour, false)
}

// Client returns a Redis client backed by a per-test miniredis.
func Client(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// Request builds a request whose context carries a session logged in as p.
// A zero p leaves the session anonymous.
func Request(t *testing.T, sm *shared.SessionManager, method, target, body string, p shared.Principal) (*http.Request, *shared.Session) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	sess, err := sm.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if !p.IsZero() {
		if err := sess.SetPrincipal(p); err != nil {
			t.Fatalf("set principal: %v", err)
		}
	}
	return req.WithContext(shared.ContextWithSession(req.Context(), sess)), sess
}

// Admin is a principal for the named admin role.
func Admin(role string) shared.Principal {
	return shared.Principal{Role: role, Identity: role}
}

// Passenger is a principal for a passenger mobile.
func Passenger(mobile string) shared.Principal {
	return shared.Principal{Role: "passenger", Identity: mobile}
}
