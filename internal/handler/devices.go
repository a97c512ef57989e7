package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listDevices(c *gin.Context) {
	devices, err := h.svc.ListDevices(c.Request.Context())
	if err != nil {
		h.fail(c, "list devices", "Failed to fetch devices", err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (h *Handler) getDevice(c *gin.Context) {
	detail, err := h.svc.DeviceDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get device", "Failed to fetch device", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) createDevice(c *gin.Context) {
	var req struct {
		DeviceID string `json:"deviceId"`
		Name     string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}
	d, err := h.svc.CreateDevice(c.Request.Context(), req.DeviceID, req.Name)
	if err != nil {
		h.fail(c, "create device", "Failed to create device", err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// regenerateToken issues a new bearer token; the old one stops working at once.
func (h *Handler) regenerateToken(c *gin.Context) {
	d, err := h.svc.RotateDeviceToken(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "regenerate token", "Failed to regenerate token", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) deleteDevice(c *gin.Context) {
	if err := h.svc.DeleteDevice(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete device", "Failed to delete device", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
