package main

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

/* ─── Baseline ───────────────────────────────────────────────────────── */

// bindOptionalJSON binds a body whose fields are all optional. A missing body
// leaves obj at its zero value; malformed JSON writes a 400 and returns false.
func bindOptionalJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// completeBaseline finalizes the baseline week and bootstraps the first period.
// POST /api/baseline/complete. Body, optional: { "mode": "measured"|"estimated", "date"? }.
// insufficient_data (422) tells the client to offer estimated completion instead.
func (h *Handler) completeBaseline(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body struct {
		Mode string `json:"mode"`
		Date string `json:"date"`
	}
	if !bindOptionalJSON(c, &body) {
		return
	}
	if body.Mode == "" {
		body.Mode = baselineMeasured
	}
	if body.Mode != baselineMeasured && body.Mode != baselineEstimated {
		apiError(c, http.StatusBadRequest, "mode must be one of: measured, estimated")
		return
	}
	date := today()
	if body.Date != "" {
		d, err := parseDate(body.Date)
		if err != nil {
			apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
			return
		}
		date = d
	}

	result, err := h.svc.completeBaseline(c, userID, date, body.Mode)
	if err != nil {
		budgetErrorResponse(c, err, "failed to complete baseline")
		return
	}
	c.JSON(http.StatusOK, result)
}

// restartBaseline starts a new baseline week. POST /api/baseline/restart.
// Body, optional: { "start_date"? } (defaults to today).
func (h *Handler) restartBaseline(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body struct {
		StartDate string `json:"start_date"`
	}
	if !bindOptionalJSON(c, &body) {
		return
	}
	start := today()
	if body.StartDate != "" {
		d, err := parseDate(body.StartDate)
		if err != nil {
			apiError(c, http.StatusBadRequest, "invalid start_date, expected YYYY-MM-DD")
			return
		}
		start = d
	}

	p, err := h.svc.restartBaseline(c, userID, start)
	if err != nil {
		budgetErrorResponse(c, err, "failed to restart baseline")
		return
	}
	c.JSON(http.StatusOK, p)
}

/* ─── Periods ────────────────────────────────────────────────────────── */

// createPeriod is the idempotent period-creation trigger for the caller's
// current week. POST /api/periods?date=YYYY-MM-DD.
// Returns { "reason": "created"|"already_exists"|"no_baseline_data", "period_id"? }.
func (h *Handler) createPeriod(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}

	result, err := h.svc.createPeriod(c, userID, date)
	if err != nil {
		if result.Reason == reasonNoBaselineData {
			c.JSON(http.StatusConflict, result)
			return
		}
		budgetErrorResponse(c, err, "failed to create period")
		return
	}
	status := http.StatusOK
	if result.Reason == reasonCreated {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

// listPeriods returns periods overlapping [start, end].
// GET /api/periods?start=YYYY-MM-DD&end=YYYY-MM-DD (defaults to the last 12 weeks).
func (h *Handler) listPeriods(c *gin.Context) {
	userID := c.GetInt("user_id")
	end, ok := dateParam(c, "end")
	if !ok {
		return
	}
	start := end.AddDate(0, 0, -12*7)
	if c.Query("start") != "" {
		if start, ok = dateParam(c, "start"); !ok {
			return
		}
	}
	if start.After(end) {
		apiError(c, http.StatusBadRequest, "start must not be after end")
		return
	}

	periods, err := h.svc.listPeriods(c, userID, start, end)
	if err != nil {
		budgetErrorResponse(c, err, "failed to fetch periods")
		return
	}
	if periods == nil {
		periods = []weeklyPeriod{}
	}
	c.JSON(http.StatusOK, periods)
}

// getPeriodForDate returns the period containing date, 404 if none.
// GET /api/periods/for-date?date=YYYY-MM-DD.
func (h *Handler) getPeriodForDate(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}

	p, err := h.svc.findPeriodForDate(c, userID, date)
	if err != nil {
		budgetErrorResponse(c, err, "failed to fetch period")
		return
	}
	if p == nil {
		budgetErrorResponse(c, errNotFound, "")
		return
	}
	c.JSON(http.StatusOK, p)
}

/* ─── Treat days ─────────────────────────────────────────────────────── */

// listTreatDays returns treat days in [start, end].
// GET /api/treat-days?start=YYYY-MM-DD&end=YYYY-MM-DD (defaults to the current week).
func (h *Handler) listTreatDays(c *gin.Context) {
	userID := c.GetInt("user_id")
	start, end := weekBounds(today())
	var ok bool
	if c.Query("start") != "" {
		if start, ok = dateParam(c, "start"); !ok {
			return
		}
	}
	if c.Query("end") != "" {
		if end, ok = dateParam(c, "end"); !ok {
			return
		}
	}
	if start.After(end) {
		apiError(c, http.StatusBadRequest, "start must not be after end")
		return
	}

	days, err := h.svc.listTreatDays(c, userID, start, end)
	if err != nil {
		budgetErrorResponse(c, err, "failed to fetch treat days")
		return
	}
	if days == nil {
		days = []plannedTreatDay{}
	}
	c.JSON(http.StatusOK, days)
}

// optionalIDParam reads an optional positive integer query param.
func optionalIDParam(c *gin.Context, key string) (int, bool) {
	s := c.Query(key)
	if s == "" {
		return 0, true
	}
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		apiError(c, http.StatusBadRequest, "invalid "+key)
		return 0, false
	}
	return id, true
}

// recommendTreatDay returns light/moderate/celebration amounts for a date.
// GET /api/treat-days/recommend?date=YYYY-MM-DD&editing_id=N.
func (h *Handler) recommendTreatDay(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}
	editingID, ok := optionalIDParam(c, "editing_id")
	if !ok {
		return
	}

	rec, err := h.svc.recommendTreatDayFor(c, userID, date, today(), editingID)
	if err != nil {
		budgetErrorResponse(c, err, "failed to recommend treat day")
		return
	}
	c.JSON(http.StatusOK, rec)
}

// validateTreatDay previews the safety classification of an amount.
// POST /api/treat-days/validate. Body: { "date", "planned_calories", "editing_id"? }.
func (h *Handler) validateTreatDay(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body struct {
		Date      string `json:"date"`
		Calories  int    `json:"planned_calories"`
		EditingID int    `json:"editing_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	date, err := parseDate(body.Date)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return
	}
	if body.Calories <= 0 {
		apiError(c, http.StatusBadRequest, "planned_calories must be positive")
		return
	}

	v, err := h.svc.validateTreatDayFor(c, userID, date, body.Calories, body.EditingID)
	if err != nil {
		budgetErrorResponse(c, err, "failed to validate treat day")
		return
	}
	c.JSON(http.StatusOK, v)
}

// bindTreatDay parses and checks a treatDayRequest body.
func bindTreatDay(c *gin.Context) (treatDayInput, bool) {
	var body treatDayRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return treatDayInput{}, false
	}
	date, err := parseDate(body.Date)
	if err != nil {
		apiError(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
		return treatDayInput{}, false
	}
	if body.Calories <= 0 {
		apiError(c, http.StatusBadRequest, "planned_calories must be positive")
		return treatDayInput{}, false
	}
	if body.Note != nil {
		trimmed := strings.TrimSpace(*body.Note)
		if trimmed == "" {
			body.Note = nil
		} else {
			body.Note = &trimmed
		}
	}
	return treatDayInput{Date: date, Calories: body.Calories, Note: body.Note, Completed: body.Completed}, true
}

// createTreatDay reserves calories on a present or future date.
// POST /api/treat-days. Unsafe amounts get 422 with suggested_max.
func (h *Handler) createTreatDay(c *gin.Context) {
	userID := c.GetInt("user_id")
	in, ok := bindTreatDay(c)
	if !ok {
		return
	}

	result, err := h.svc.saveTreatDay(c, userID, in, today())
	if err != nil {
		budgetErrorResponse(c, err, "failed to save treat day")
		return
	}
	c.JSON(http.StatusCreated, result)
}

// updateTreatDay edits a treat day, including moving it to another date.
// PUT /api/treat-days/:id. Moving onto a date with another treat day is 409.
func (h *Handler) updateTreatDay(c *gin.Context) {
	userID := c.GetInt("user_id")
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		apiError(c, http.StatusBadRequest, "invalid id")
		return
	}
	in, ok := bindTreatDay(c)
	if !ok {
		return
	}
	in.ID = id

	result, err := h.svc.saveTreatDay(c, userID, in, today())
	if err != nil {
		budgetErrorResponse(c, err, "failed to save treat day")
		return
	}
	c.JSON(http.StatusOK, result)
}

// deleteTreatDay removes a treat day. DELETE /api/treat-days/:id. Returns 204.
func (h *Handler) deleteTreatDay(c *gin.Context) {
	userID := c.GetInt("user_id")
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		apiError(c, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.svc.deleteTreatDay(c, userID, id); err != nil {
		budgetErrorResponse(c, err, "failed to delete treat day")
		return
	}
	c.Status(http.StatusNoContent)
}

/* ─── Budget ─────────────────────────────────────────────────────────── */

// reconcileBudget recomputes the cumulative overage of the period containing
// date, through date. POST /api/budget/reconcile?date=YYYY-MM-DD.
func (h *Handler) reconcileBudget(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}

	period, err := h.svc.findPeriodForDate(c, userID, date)
	if err != nil {
		budgetErrorResponse(c, err, "failed to fetch period")
		return
	}
	if period == nil {
		budgetErrorResponse(c, errNotFound, "")
		return
	}
	updated, err := h.svc.reconcile(c, userID, period.ID, date)
	if err != nil {
		budgetErrorResponse(c, err, "failed to reconcile period")
		return
	}
	c.JSON(http.StatusOK, updated)
}

// getTodaysBudget returns the adjusted budget for date. Always 200: without a
// period the static fallback is served with fallback=true.
// GET /api/budget/today?date=YYYY-MM-DD.
func (h *Handler) getTodaysBudget(c *gin.Context) {
	userID := c.GetInt("user_id")
	date, ok := dateParam(c, "date")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.todaysBudget(c, userID, date, today()))
}
