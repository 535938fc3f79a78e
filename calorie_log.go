package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// logItemTypes mirrors the calorie_log_item_type enum. Checked up front so a
// bad type is a 400 and not a constraint error.
var logItemTypes = []string{"breakfast", "lunch", "dinner", "snack", "exercise"}

func validLogItemType(t string) bool {
	for _, v := range logItemTypes {
		if v == t {
			return true
		}
	}
	return false
}

/* ─── Aggregation ────────────────────────────────────────────────────── */

// sumItems totals one date's items. Exercise calories are stored positive and
// subtract from the net; macros count from every item that has them.
func sumItems(date time.Time, items []calorieLogItem) dayTotals {
	t := dayTotals{Date: DateOnly{date}}
	for _, item := range items {
		if item.Type == "exercise" {
			t.CaloriesExercise += item.Calories
		} else {
			t.CaloriesFood += item.Calories
		}
		if item.ProteinG != nil {
			t.ProteinG += *item.ProteinG
		}
		if item.CarbsG != nil {
			t.CarbsG += *item.CarbsG
		}
		if item.FatG != nil {
			t.FatG += *item.FatG
		}
	}
	return t
}

// summarizeDay combines a date's totals with its allowance.
func summarizeDay(t dayTotals, idx allowanceIndex, hasData bool) weekDaySummary {
	budget, isTreat := idx.allowance(t.Date.Time)
	return weekDaySummary{
		Date:             t.Date,
		CalorieBudget:    budget,
		CaloriesFood:     t.CaloriesFood,
		CaloriesExercise: t.CaloriesExercise,
		NetCalories:      t.net(),
		CaloriesLeft:     budget - t.net(),
		ProteinG:         t.ProteinG,
		CarbsG:           t.CarbsG,
		FatG:             t.FatG,
		HasData:          hasData,
		IsTreatDay:       isTreat,
	}
}

// buildWeek returns seven days starting at monday, zero-filled where nothing
// was logged.
func buildWeek(monday time.Time, rows []dayTotals, idx allowanceIndex) []weekDaySummary {
	byDate := make(map[string]dayTotals, len(rows))
	for _, r := range rows {
		byDate[r.Date.Format(dateLayout)] = r
	}
	week := make([]weekDaySummary, 7)
	for i := range week {
		d := monday.AddDate(0, 0, i)
		row, ok := byDate[d.Format(dateLayout)]
		if !ok {
			row = dayTotals{Date: DateOnly{d}}
		}
		week[i] = summarizeDay(row, idx, ok)
	}
	return week
}

// buildProgress summarizes logged days only. A day is on budget when its net
// does not exceed its allowance.
func buildProgress(rows []dayTotals, idx allowanceIndex) progressResponse {
	resp := progressResponse{Days: make([]weekDaySummary, 0, len(rows))}
	stats := &resp.Stats
	for _, row := range rows {
		day := summarizeDay(row, idx, true)
		resp.Days = append(resp.Days, day)

		stats.DaysTracked++
		if day.NetCalories <= day.CalorieBudget {
			stats.DaysOnBudget++
		}
		stats.AvgCaloriesFood += day.CaloriesFood
		stats.AvgCaloriesExercise += day.CaloriesExercise
		stats.AvgNetCalories += day.NetCalories
		stats.TotalCaloriesLeft += day.CaloriesLeft
	}
	if stats.DaysTracked > 0 {
		stats.AvgCaloriesFood /= stats.DaysTracked
		stats.AvgCaloriesExercise /= stats.DaysTracked
		stats.AvgNetCalories /= stats.DaysTracked
	}
	return resp
}

/* ─── Read handlers ──────────────────────────────────────────────────── */

// getDailySummary returns the date's items, totals and adjusted budget.
// GET /api/calorie-log/daily?date=YYYY-MM-DD (defaults to today).
func (h *Handler) getDailySummary(c *gin.Context) {
	userID := c.GetInt("user_id")
	day, ok := dateParam(c, "date")
	if !ok {
		return
	}

	items, err := h.logs.listLogItems(c, userID, day)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to fetch items")
		return
	}
	if items == nil {
		items = []calorieLogItem{}
	}
	totals := sumItems(day, items)

	// Reconciles first, so the budget already reflects the items above.
	budget := h.svc.todaysBudget(c, userID, day, today())

	c.JSON(http.StatusOK, dailyLogSummary{
		Date:             day.Format(dateLayout),
		CalorieBudget:    budget.AdjustedBudget,
		CaloriesFood:     totals.CaloriesFood,
		CaloriesExercise: totals.CaloriesExercise,
		NetCalories:      totals.net(),
		CaloriesLeft:     budget.AdjustedBudget - totals.net(),
		ProteinG:         totals.ProteinG,
		CarbsG:           totals.CarbsG,
		FatG:             totals.FatG,
		Items:            items,
		Budget:           budget,
	})
}

// getWeekSummary returns the Monday to Sunday week containing week_start
// (any day of it works). Each day's budget is its base allowance, or the
// planned calories on a treat day.
// GET /api/calorie-log/week-summary?week_start=YYYY-MM-DD (defaults to this week).
func (h *Handler) getWeekSummary(c *gin.Context) {
	userID := c.GetInt("user_id")
	anchor, ok := dateParam(c, "week_start")
	if !ok {
		return
	}
	monday, sunday := weekBounds(anchor)

	rows, err := h.logs.listDayTotals(c, userID, monday, sunday)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to fetch week data")
		return
	}
	idx := h.svc.allowances(c, userID, monday, sunday)

	c.JSON(http.StatusOK, buildWeek(monday, rows, idx))
}

// getProgress returns logged days and aggregate stats for a date range.
// GET /api/calorie-log/progress?start=YYYY-MM-DD&end=YYYY-MM-DD, both required.
// Unlogged days are omitted; the client fills gaps.
func (h *Handler) getProgress(c *gin.Context) {
	userID := c.GetInt("user_id")
	if c.Query("start") == "" || c.Query("end") == "" {
		apiError(c, http.StatusBadRequest, "start and end query params are required")
		return
	}
	start, ok := dateParam(c, "start")
	if !ok {
		return
	}
	end, ok := dateParam(c, "end")
	if !ok {
		return
	}
	if start.After(end) {
		apiError(c, http.StatusBadRequest, "start must not be after end")
		return
	}

	rows, err := h.logs.listDayTotals(c, userID, start, end)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to fetch progress data")
		return
	}
	idx := h.svc.allowances(c, userID, start, end)

	c.JSON(http.StatusOK, buildProgress(rows, idx))
}

// getEarliestLogDate returns {"date": "YYYY-MM-DD"}, or {"date": null} before
// anything is logged. GET /api/calorie-log/earliest-date.
func (h *Handler) getEarliestLogDate(c *gin.Context) {
	userID := c.GetInt("user_id")
	d, err := h.logs.earliestLogDate(c, userID)
	if err != nil {
		apiError(c, http.StatusInternalServerError, "failed to fetch earliest date")
		return
	}
	if d == nil {
		c.JSON(http.StatusOK, gin.H{"date": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": d.Format(dateLayout)})
}

/* ─── Write handlers ─────────────────────────────────────────────────── */

// Every write reconciles the periods covering the dates it touched, so stored
// overage follows the log without waiting for the next budget read.

// createCalorieLogItem inserts a log entry. POST /api/calorie-log/items.
// Date defaults to today.
func (h *Handler) createCalorieLogItem(c *gin.Context) {
	userID := c.GetInt("user_id")

	var body createCalorieLogItemRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	body.ItemName = strings.TrimSpace(body.ItemName)
	switch {
	case body.ItemName == "":
		apiError(c, http.StatusBadRequest, "item_name is required")
		return
	case body.Type == "":
		apiError(c, http.StatusBadRequest, "type is required")
		return
	case !validLogItemType(body.Type):
		apiError(c, http.StatusBadRequest, "type must be one of: "+strings.Join(logItemTypes, ", "))
		return
	case body.Calories < 0:
		apiError(c, http.StatusBadRequest, "calories must not be negative")
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

	item, err := h.logs.insertLogItem(c, calorieLogItem{
		UserID: userID, Date: DateOnly{date}, ItemName: body.ItemName, Type: body.Type,
		Qty: body.Qty, Uom: body.Uom, Calories: body.Calories,
		ProteinG: body.ProteinG, CarbsG: body.CarbsG, FatG: body.FatG,
	})
	if err != nil {
		log.Printf("[createCalorieLogItem] user %d: %v", userID, err)
		apiError(c, http.StatusInternalServerError, "failed to create item")
		return
	}
	h.svc.reconcileLoggedDates(c, userID, today(), date)

	c.JSON(http.StatusCreated, item)
}

// validateLogItemPatch checks the fields a PUT supplies.
func validateLogItemPatch(p updateCalorieLogItemRequest) error {
	if p.Date != nil {
		if _, err := parseDate(*p.Date); err != nil {
			return errors.New("invalid date, expected YYYY-MM-DD")
		}
	}
	if p.ItemName != nil && strings.TrimSpace(*p.ItemName) == "" {
		return errors.New("item_name must not be empty")
	}
	if p.Type != nil && !validLogItemType(*p.Type) {
		return fmt.Errorf("type must be one of: %s", strings.Join(logItemTypes, ", "))
	}
	if p.Calories != nil && *p.Calories < 0 {
		return errors.New("calories must not be negative")
	}
	return nil
}

// updateCalorieLogItem patches a log entry; omitted fields are kept.
// PUT /api/calorie-log/items/:id. Moving the item reconciles both dates.
func (h *Handler) updateCalorieLogItem(c *gin.Context) {
	userID := c.GetInt("user_id")
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		apiError(c, http.StatusBadRequest, "invalid id")
		return
	}

	var body updateCalorieLogItemRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		apiError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateLogItemPatch(body); err != nil {
		apiError(c, http.StatusBadRequest, err.Error())
		return
	}

	item, oldDate, err := h.logs.updateLogItem(c, userID, id, body)
	if errors.Is(err, errNotFound) {
		apiError(c, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		log.Printf("[updateCalorieLogItem] user %d item %d: %v", userID, id, err)
		apiError(c, http.StatusInternalServerError, "failed to update item")
		return
	}
	h.svc.reconcileLoggedDates(c, userID, today(), oldDate, item.Date.Time)

	c.JSON(http.StatusOK, item)
}

// deleteCalorieLogItem removes a log entry. DELETE /api/calorie-log/items/:id.
// Returns 204.
func (h *Handler) deleteCalorieLogItem(c *gin.Context) {
	userID := c.GetInt("user_id")
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		apiError(c, http.StatusBadRequest, "invalid id")
		return
	}

	item, err := h.logs.deleteLogItem(c, userID, id)
	if errors.Is(err, errNotFound) {
		apiError(c, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		log.Printf("[deleteCalorieLogItem] user %d item %d: %v", userID, id, err)
		apiError(c, http.StatusInternalServerError, "failed to delete item")
		return
	}
	h.svc.reconcileLoggedDates(c, userID, today(), item.Date.Time)

	c.Status(http.StatusNoContent)
}
