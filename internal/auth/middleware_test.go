package auth

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"rollcall/internal/attendance"
	"rollcall/internal/metrics"
)

type fakeLookup struct {
	devices map[string]attendance.Device
	err     error
	calls   int
}

func (f *fakeLookup) DeviceByToken(_ context.Context, token string) (attendance.Device, error) {
	f.calls++
	if f.err != nil {
		return attendance.Device{}, f.err
	}
	d, ok := f.devices[token]
	if !ok {
		return attendance.Device{}, &attendance.NotFoundError{Resource: "device"}
	}
	return d, nil
}

var testDevice = attendance.Device{
	ID:        "dev-1",
	DeviceID:  "GATE-A",
	Name:      "Main gate",
	Token:     "t0k3n",
	CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
}

// newDeviceRouter mounts DeviceAuth in front of a handler that echoes the
// resolved device from both the gin and the request context.
func newDeviceRouter(t *testing.T, lookup DeviceLookup) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	m := metrics.New(prometheus.NewRegistry())
	r.POST("/mark", DeviceAuth(lookup, log.New(io.Discard, "", 0), m), func(c *gin.Context) {
		fromGin, ok1 := CurrentDevice(c)
		fromCtx, ok2 := DeviceFromContext(c.Request.Context())
		if !ok1 || !ok2 || fromGin != fromCtx {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, fromGin)
	})
	return r
}

func doAuth(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mark", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDeviceAuth(t *testing.T) {
	lookup := &fakeLookup{devices: map[string]attendance.Device{testDevice.Token: testDevice}}
	r := newDeviceRouter(t, lookup)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"bearer without token", "Bearer ", http.StatusUnauthorized},
		{"unknown token", "Bearer nope", http.StatusUnauthorized},
		{"known token", "Bearer " + testDevice.Token, http.StatusOK},
		{"lowercase scheme", "bearer " + testDevice.Token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doAuth(r, tt.header)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d (%s)", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestDeviceAuth_MissingHeaderSkipsLookup(t *testing.T) {
	lookup := &fakeLookup{}
	r := newDeviceRouter(t, lookup)

	doAuth(r, "")
	doAuth(r, "Token abc")
	if lookup.calls != 0 {
		t.Errorf("expected no lookups for malformed headers, got %d", lookup.calls)
	}
}

func TestDeviceAuth_LookupFailureIsServerError(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("connection refused")}
	r := newDeviceRouter(t, lookup)

	w := doAuth(r, "Bearer anything")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func newAdminRouter(a Admin) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", AdminAuth(a), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func TestAdminAuth(t *testing.T) {
	a := Admin{Password: "s3cret", SigningKey: "k", Issuer: "rollcall", SessionTTL: time.Hour}
	session, err := a.Login("s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	foreign, err := Issue("admin", RoleAdmin, "rollcall", "other-key", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	notAdmin, err := Issue("device", "device", "rollcall", "k", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	r := newAdminRouter(a)
	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong password", "Bearer nope", http.StatusUnauthorized},
		{"password", "Bearer s3cret", http.StatusNoContent},
		{"session token", "Bearer " + session.Token, http.StatusNoContent},
		{"token signed elsewhere", "Bearer " + foreign.Token, http.StatusUnauthorized},
		{"non-admin role", "Bearer " + notAdmin.Token, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestAdminLogin_Rejects(t *testing.T) {
	a := Admin{Password: "s3cret", SigningKey: "k", SessionTTL: time.Hour}
	if _, err := a.Login("wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}

	unset := Admin{SigningKey: "k"}
	if _, err := unset.Login(""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials with no password configured, got %v", err)
	}
	if unset.Allows("") {
		t.Error("empty credential must never be allowed")
	}
}

func TestAdmin_NoSigningKeyDisablesSessions(t *testing.T) {
	a := Admin{Password: "s3cret", Issuer: "rollcall", SessionTTL: time.Hour}
	if _, err := a.Login("s3cret"); !errors.Is(err, ErrSessionsDisabled) {
		t.Fatalf("expected ErrSessionsDisabled, got %v", err)
	}
	if _, err := a.Login("wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password must still be rejected as such, got %v", err)
	}

	minted, err := Issue("admin", RoleAdmin, "rollcall", "dev-signing-secret-change", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if a.Allows(minted.Token) {
		t.Error("session tokens must be refused without a signing key")
	}
	if !a.Allows("s3cret") {
		t.Error("password must still be accepted")
	}
}
