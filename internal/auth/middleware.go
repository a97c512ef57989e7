package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/metrics"
)

const bearerPrefix = "bearer "

// gin context key under which DeviceAuth stores the resolved device.
const deviceKey = "device"

type deviceCtxKey struct{}

var (
	// ErrInvalidCredentials is returned by Login for a wrong or unset password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionsDisabled is returned by Login when no signing key is set.
	ErrSessionsDisabled = errors.New("admin sessions disabled")
)

// DeviceLookup resolves a bearer token to a device. A token bound to no
// device yields an error matching attendance.ErrNotFound.
type DeviceLookup interface {
	DeviceByToken(ctx context.Context, token string) (attendance.Device, error)
}

// WithDevice returns ctx carrying d.
func WithDevice(ctx context.Context, d attendance.Device) context.Context {
	return context.WithValue(ctx, deviceCtxKey{}, d)
}

// DeviceFromContext returns the device attached by DeviceAuth.
func DeviceFromContext(ctx context.Context) (attendance.Device, bool) {
	d, ok := ctx.Value(deviceCtxKey{}).(attendance.Device)
	return d, ok
}

// CurrentDevice returns the device DeviceAuth resolved for this request.
func CurrentDevice(c *gin.Context) (attendance.Device, bool) {
	v, ok := c.Get(deviceKey)
	if !ok {
		return attendance.Device{}, false
	}
	d, ok := v.(attendance.Device)
	return d, ok
}

// bearerToken extracts the credential from the Authorization header. The
// scheme is matched case-insensitively.
func bearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if len(authz) < len(bearerPrefix) || !strings.EqualFold(authz[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(authz[len(bearerPrefix):])
	return token, token != ""
}

// DeviceAuth resolves the bearer token to a device before any handler runs.
// Unknown tokens are rejected with 401; a failing lookup is a server error,
// not a rejection.
func DeviceAuth(lookup DeviceLookup, logger *log.Logger, m *metrics.Metrics) gin.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			m.DeviceAuth(metrics.AuthMissing)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Missing token"})
			return
		}
		device, err := lookup.DeviceByToken(c.Request.Context(), token)
		switch {
		case errors.Is(err, attendance.ErrNotFound):
			m.DeviceAuth(metrics.AuthInvalid)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid device token"})
			return
		case err != nil:
			m.DeviceAuth(metrics.AuthError)
			logger.Printf("device auth error: %v", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Authentication failed"})
			return
		}
		m.DeviceAuth(metrics.AuthOK)
		c.Set(deviceKey, device)
		c.Request = c.Request.WithContext(WithDevice(c.Request.Context(), device))
		c.Next()
	}
}

// Admin holds the shared admin secret and the session-token parameters. An
// empty SigningKey disables session tokens; only the password is accepted.
type Admin struct {
	Password   string
	SigningKey string
	Issuer     string
	SessionTTL time.Duration
}

// Allows reports whether credential is the admin password or a valid admin
// session token.
func (a Admin) Allows(credential string) bool {
	if a.Password != "" && subtle.ConstantTimeCompare([]byte(credential), []byte(a.Password)) == 1 {
		return true
	}
	if a.SigningKey == "" {
		return false
	}
	claims, err := Parse(credential, a.SigningKey, a.Issuer)
	return err == nil && claims.Role == RoleAdmin
}

// Login exchanges the admin password for a session token.
func (a Admin) Login(password string) (Session, error) {
	if a.Password == "" || subtle.ConstantTimeCompare([]byte(password), []byte(a.Password)) != 1 {
		return Session{}, ErrInvalidCredentials
	}
	if a.SigningKey == "" {
		return Session{}, ErrSessionsDisabled
	}
	return Issue(RoleAdmin, RoleAdmin, a.Issuer, a.SigningKey, a.SessionTTL)
}

// AdminAuth gates administrative routes on Admin.Allows.
func AdminAuth(a Admin) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Missing admin token"})
			return
		}
		if !a.Allows(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid admin credentials"})
			return
		}
		c.Next()
	}
}
