// Package handler exposes the attendance service over HTTP.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
	"rollcall/internal/metrics"
)

// Deps are the collaborators a Handler needs.
type Deps struct {
	Service *attendance.Service
	// Devices resolves device bearer tokens: the store, or its Redis cache.
	Devices auth.DeviceLookup
	Admin   auth.Admin
	Metrics *metrics.Metrics
	Logger  *log.Logger
	// CacheHealthy probes the optional token cache. Nil means no cache is
	// configured.
	CacheHealthy func(ctx context.Context) bool
}

// Handler serves the device and admin routes.
type Handler struct {
	svc          *attendance.Service
	devices      auth.DeviceLookup
	admin        auth.Admin
	metrics      *metrics.Metrics
	logger       *log.Logger
	cacheHealthy func(ctx context.Context) bool
}

// New creates a Handler.
func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		svc:          d.Service,
		devices:      d.Devices,
		admin:        d.Admin,
		metrics:      d.Metrics,
		logger:       logger,
		cacheHealthy: d.CacheHealthy,
	}
}

// Routes mounts every route on r.
func (h *Handler) Routes(r gin.IRouter) {
	r.GET("/health", h.health)
	r.GET("/healthz", h.ready)

	r.POST("/auth/login", h.login)
	r.POST("/attendance/mark", auth.DeviceAuth(h.devices, h.logger, h.metrics), h.mark)

	admin := r.Group("", auth.AdminAuth(h.admin))
	admin.GET("/attendance", h.listAttendance)

	admin.GET("/users", h.listUsers)
	admin.POST("/users", h.createUser)
	admin.GET("/users/:id", h.getUser)
	admin.PUT("/users/:id", h.updateUser)
	admin.DELETE("/users/:id", h.deleteUser)

	admin.GET("/devices", h.listDevices)
	admin.POST("/devices", h.createDevice)
	admin.GET("/devices/:id", h.getDevice)
	admin.POST("/devices/:id/regenerate-token", h.regenerateToken)
	admin.DELETE("/devices/:id", h.deleteDevice)
}

var conflictMessages = map[string]string{
	attendance.FieldDeviceID:        "Device ID already exists",
	attendance.FieldAdmissionNumber: "Admission number already exists",
}

// fail writes the response for err. Server-side failures are logged under op
// and answered with failMsg; the cause never reaches the client.
func (h *Handler) fail(c *gin.Context, op, failMsg string, err error) {
	var (
		nf       *attendance.NotFoundError
		conflict *attendance.ConflictError
	)
	switch {
	case errors.Is(err, attendance.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"message": attendance.Message(err)})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"message": notFoundMessage(nf.Resource)})
	case errors.As(err, &conflict) && conflictMessages[conflict.Field] != "":
		c.JSON(http.StatusConflict, gin.H{"message": conflictMessages[conflict.Field]})
	case errors.Is(err, attendance.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthorized"})
	default:
		h.logger.Printf("%s failed: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": failMsg})
	}
}

func notFoundMessage(resource string) string {
	switch resource {
	case "user":
		return "User not found"
	case "device":
		return "Device not found"
	}
	return "Not found"
}

// badBody answers a request whose JSON body could not be decoded.
func badBody(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
}
