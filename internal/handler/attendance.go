package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
	"rollcall/internal/auth"
)

type markRequest struct {
	UserID     string   `json:"userId"`
	Event      string   `json:"event"`
	Confidence *float64 `json:"confidence"`
}

// mark records one event for the device DeviceAuth resolved.
func (h *Handler) mark(c *gin.Context) {
	device, ok := auth.CurrentDevice(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Missing token"})
		return
	}
	var req markRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}

	a, err := h.svc.Mark(c.Request.Context(), device, attendance.MarkInput{
		UserID:     req.UserID,
		Event:      req.Event,
		Confidence: req.Confidence,
	})
	if err != nil {
		h.fail(c, "mark attendance", "Failed to mark attendance", err)
		return
	}
	h.metrics.Marked(a.Event)
	c.JSON(http.StatusOK, gin.H{"success": true, "attendance": a})
}

func (h *Handler) listAttendance(c *gin.Context) {
	q, err := h.svc.ParseQuery(attendance.QueryParams{
		UserID:    c.Query("userId"),
		DeviceID:  c.Query("deviceId"),
		StartDate: c.Query("startDate"),
		EndDate:   c.Query("endDate"),
		Page:      c.Query("page"),
		Limit:     c.Query("limit"),
	})
	if err != nil {
		h.fail(c, "attendance query", "Failed to fetch attendance", err)
		return
	}
	page, err := h.svc.Query(c.Request.Context(), q)
	if err != nil {
		h.fail(c, "attendance query", "Failed to fetch attendance", err)
		return
	}
	c.JSON(http.StatusOK, page)
}
