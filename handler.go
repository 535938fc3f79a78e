package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Handler holds shared dependencies for all route handlers.
type Handler struct {
	svc   *budgetService
	users userStore
	logs  logStore
}

/* ─── Database helpers ────────────────────────────────────────────────── */

// queryOne runs a query and scans the first row into T using RowToStructByName.
// Logs query and scan errors for debugging (e.g. struct/column mismatches).
// No-row results are expected lookups and are not logged.
func queryOne[T any](pool *pgxpool.Pool, ctx context.Context, sql string, args pgx.NamedArgs) (T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		log.Printf("[queryOne] Query error: %v", err)
		var zero T
		return zero, err
	}
	result, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("[queryOne] Scan error: %v", err)
	}
	return result, err
}

// queryMany runs a query and scans all rows into []T using RowToStructByName.
func queryMany[T any](pool *pgxpool.Pool, ctx context.Context, sql string, args pgx.NamedArgs) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args)
	if err != nil {
		log.Printf("[queryMany] Query error: %v", err)
		return nil, err
	}
	results, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		log.Printf("[queryMany] Scan error: %v", err)
	}
	return results, err
}

/* ─── Response helpers ────────────────────────────────────────────────── */

// apiError returns a consistent JSON error response: {"error": "message"}.
func apiError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

// budgetErrorResponse renders domain errors as {"error", "kind", "suggested_max"?}
// with the kind's status, and anything else as a logged 500 with message.
func budgetErrorResponse(c *gin.Context, err error, message string) {
	be, ok := asBudgetError(err)
	if !ok {
		log.Printf("[%s %s] %s: %v", c.Request.Method, c.FullPath(), message, err)
		apiError(c, http.StatusInternalServerError, message)
		return
	}
	body := gin.H{"error": be.Message, "kind": be.Kind}
	if be.SuggestedMax != nil {
		body["suggested_max"] = *be.SuggestedMax
	}
	c.JSON(statusForKind[be.Kind], body)
}

// today returns the current calendar date in UTC.
func today() time.Time {
	return truncateDay(time.Now().UTC())
}

// dateParam reads a YYYY-MM-DD query param, defaulting to today. Writes a 400
// and returns ok=false on a malformed value.
func dateParam(c *gin.Context, key string) (time.Time, bool) {
	s := c.Query(key)
	if s == "" {
		return today(), true
	}
	d, err := parseDate(s)
	if err != nil {
		apiError(c, http.StatusBadRequest, fmt.Sprintf("invalid %s, expected YYYY-MM-DD", key))
		return time.Time{}, false
	}
	return d, true
}

/* ─── Server setup ────────────────────────────────────────────────────── */

// getDBPool creates a connection pool. We use a pool (not a single conn) because
// Neon closes idle connections after ~5 minutes.
func getDBPool(dbURL string) *pgxpool.Pool {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to parse DB URL: %v\n", err)
		os.Exit(1)
	}
	// Use simple query protocol to avoid "cached plan must not change result type"
	// errors from Neon's server-side prepared statement cache after schema changes.
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("DB pool ready!")
	return pool
}

// registerRoutes registers all API routes on the router.
func (h *Handler) registerRoutes(router *gin.Engine) {
	// Public routes
	router.POST("/api/login", h.login)

	// Authenticated routes
	api := router.Group("/api", h.authMiddleware())
	api.GET("/profile", h.getProfile)
	api.PATCH("/profile", h.patchProfile)
	h.registerCalorieLogRoutes(api)
	h.registerBudgetRoutes(api)
}

func (h *Handler) registerCalorieLogRoutes(api *gin.RouterGroup) {
	api.GET("/calorie-log/daily", h.getDailySummary)
	api.GET("/calorie-log/week-summary", h.getWeekSummary)
	api.GET("/calorie-log/progress", h.getProgress)
	api.GET("/calorie-log/earliest-date", h.getEarliestLogDate)
	api.POST("/calorie-log/items", h.createCalorieLogItem)
	api.PUT("/calorie-log/items/:id", h.updateCalorieLogItem)
	api.DELETE("/calorie-log/items/:id", h.deleteCalorieLogItem)
}

// registerBudgetRoutes registers the budget engine routes. The route groups are
// split out so tests can mount them without the DB-backed auth middleware.
func (h *Handler) registerBudgetRoutes(api *gin.RouterGroup) {
	api.POST("/baseline/complete", h.completeBaseline)
	api.POST("/baseline/restart", h.restartBaseline)
	api.POST("/periods", h.createPeriod)
	api.GET("/periods", h.listPeriods)
	api.GET("/periods/for-date", h.getPeriodForDate)
	api.GET("/treat-days", h.listTreatDays)
	api.GET("/treat-days/recommend", h.recommendTreatDay)
	api.POST("/treat-days/validate", h.validateTreatDay)
	api.POST("/treat-days", h.createTreatDay)
	api.PUT("/treat-days/:id", h.updateTreatDay)
	api.DELETE("/treat-days/:id", h.deleteTreatDay)
	api.POST("/budget/reconcile", h.reconcileBudget)
	api.GET("/budget/today", h.getTodaysBudget)
}
