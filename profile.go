package main

import (
	"net/http"
	"reflect"

	"github.com/gin-gonic/gin"
)

// getProfile returns the authenticated user's profile with the computed BMR
// and reported-activity TDEE filled in when the body stats allow.
// GET /api/profile.
func (h *Handler) getProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	p, err := h.svc.profileView(c, userID, today())
	if err != nil {
		budgetErrorResponse(c, err, "failed to fetch profile")
		return
	}
	c.JSON(http.StatusOK, p)
}

// patchProfile updates only the onboarding fields present in the body.
// PATCH /api/profile. Pointer fields tell "not provided" apart from zero.
func (h *Handler) patchProfile(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body patchProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if reflect.ValueOf(body).IsZero() {
		apiError(c, http.StatusBadRequest, "no fields to update")
		return
	}
	if err := validateProfilePatch(body); err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.svc.updateOnboarding(c, userID, body, today())
	if err != nil {
		budgetErrorResponse(c, err, "failed to update profile")
		return
	}
	c.JSON(http.StatusOK, p)
}
