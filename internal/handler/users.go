package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rollcall/internal/attendance"
)

type userRequest struct {
	AdmissionNumber string `json:"admissionNumber"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	RollNumber      string `json:"rollNumber"`
	ClassName       string `json:"className"`
	Section         string `json:"section"`
	Batch           string `json:"batch"`
}

func (r userRequest) input() attendance.UserInput {
	return attendance.UserInput{
		AdmissionNumber: r.AdmissionNumber,
		Name:            r.Name,
		Email:           r.Email,
		Phone:           r.Phone,
		RollNumber:      r.RollNumber,
		ClassName:       r.ClassName,
		Section:         r.Section,
		Batch:           r.Batch,
	}
}

func (h *Handler) listUsers(c *gin.Context) {
	page, err := h.svc.ListUsers(c.Request.Context(), c.Query("search"), c.Query("page"), c.Query("limit"))
	if err != nil {
		h.fail(c, "list users", "Failed to fetch users", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) getUser(c *gin.Context) {
	detail, err := h.svc.UserDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get user", "Failed to fetch user", err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) createUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}
	u, err := h.svc.CreateUser(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, "create user", "Failed to create user", err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *Handler) updateUser(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badBody(c)
		return
	}
	u, err := h.svc.UpdateUser(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		h.fail(c, "update user", "Failed to update user", err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) deleteUser(c *gin.Context) {
	if err := h.svc.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete user", "Failed to delete user", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
