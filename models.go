package main

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const dateLayout = "2006-01-02"

// DateOnly wraps time.Time to serialize as "YYYY-MM-DD" in JSON.
type DateOnly struct{ time.Time }

func (d DateOnly) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Time.Format(dateLayout) + `"`), nil
}

func (d *DateOnly) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"2006-01-02"`, string(b))
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ScanDate implements pgtype.DateScanner so pgx can scan PostgreSQL date
// columns (OID 1082) into DateOnly. NULL values zero the time and return nil
// so that *DateOnly pointer fields can be set to nil by pgx's NULL handling.
func (d *DateOnly) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		d.Time = time.Time{}
		return nil
	}
	d.Time = v.Time
	return nil
}

// parseDate parses a calendar date string as midnight UTC. All engine date math
// runs on these values so "today" is whatever calendar day the caller says it is.
func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// truncateDay drops the clock portion of t, keeping its calendar date.
func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

/* ─── Domain structs ─────────────────────────────────────────────────── */

// user maps to the users table. AuthToken and Password are hidden from JSON responses.
type user struct {
	ID        int        `json:"id" db:"id"`
	Username  string     `json:"username" db:"username"`
	Email     string     `json:"email" db:"email"`
	AuthToken string     `json:"-" db:"auth_token"`
	Password  string     `json:"-" db:"password"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
}

// calorieLogItem maps to calorie_log_items. Nullable numeric fields use pointers
// so pgx can scan NULLs and JSON omits them naturally.
type calorieLogItem struct {
	ID        int        `json:"id" db:"id"`
	UserID    int        `json:"user_id" db:"user_id"`
	Date      DateOnly   `json:"date" db:"date"`
	ItemName  string     `json:"item_name" db:"item_name"`
	Type      string     `json:"type" db:"type"`
	Qty       *float64   `json:"qty" db:"qty"`
	Uom       *string    `json:"uom" db:"uom"`
	Calories  int        `json:"calories" db:"calories"`
	ProteinG  *float64   `json:"protein_g" db:"protein_g"`
	CarbsG    *float64   `json:"carbs_g" db:"carbs_g"`
	FatG      *float64   `json:"fat_g" db:"fat_g"`
	CreatedAt *time.Time `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at" db:"updated_at"`
}

// profile maps to user_profiles. Onboarding fields are seeded by PATCH /profile;
// the baseline block is written once by baseline completion.
type profile struct {
	UserID        int       `json:"user_id"        db:"user_id"`
	Gender        *string   `json:"gender"         db:"gender"`
	Goal          *string   `json:"goal"           db:"goal"`
	ActivityLevel *string   `json:"activity_level" db:"activity_level"`
	BMR           *int      `json:"bmr"            db:"bmr"`
	DeficitTarget *int      `json:"deficit_target" db:"deficit_target"`
	DateOfBirth   *DateOnly `json:"date_of_birth"  db:"date_of_birth"`
	HeightCM      *float64  `json:"height_cm"      db:"height_cm"`
	WeightLBS     *float64  `json:"weight_lbs"     db:"weight_lbs"`

	// Baseline outputs, NULL until completion.
	BaselineStartDate     *DateOnly  `json:"baseline_start_date"     db:"baseline_start_date"`
	BaselineAvgIntake     *int       `json:"baseline_avg_intake"     db:"baseline_avg_intake"`
	BaselineTotalExercise *int       `json:"baseline_total_exercise" db:"baseline_total_exercise"`
	ActualActivityLevel   *string    `json:"actual_activity_level"   db:"actual_activity_level"`
	ActivityFactor        *float64   `json:"activity_factor"         db:"activity_factor"`
	FormulaTDEE           *int       `json:"formula_tdee"            db:"formula_tdee"`
	FinalTDEE             *int       `json:"final_tdee"              db:"final_tdee"`
	DailyTarget           *int       `json:"daily_target"            db:"daily_target"`
	WeeklyBudget          *int       `json:"weekly_budget"           db:"weekly_budget"`
	BaselineMode          *string    `json:"baseline_mode"           db:"baseline_mode"`
	BaselineCompletedAt   *time.Time `json:"baseline_completed_at"   db:"baseline_completed_at"`
	UpdatedAt             *time.Time `json:"updated_at"              db:"updated_at"`

	// Computed server-side from body stats; not stored.
	ComputedBMR  *int `json:"computed_bmr,omitempty"  db:"-"`
	ReportedTDEE *int `json:"reported_tdee,omitempty" db:"-"`
}

// daySummary is one row of the per-date calorie aggregate: consumed is food,
// burned is exercise. Days without logged items have no row.
type daySummary struct {
	Date     DateOnly `json:"date"              db:"date"`
	Consumed int      `json:"calories_consumed" db:"calories_consumed"`
	Burned   int      `json:"calories_burned"   db:"calories_burned"`
}

// weeklyPeriod maps to weekly_periods: one Monday–Sunday budget window.
type weeklyPeriod struct {
	ID                   int        `json:"id"                     db:"id"`
	UserID               int        `json:"user_id"                db:"user_id"`
	StartDate            DateOnly   `json:"start_date"             db:"start_date"`
	EndDate              DateOnly   `json:"end_date"               db:"end_date"`
	WeeklyBudget         int        `json:"weekly_budget"          db:"weekly_budget"`
	BaselineAverageDaily int        `json:"baseline_average_daily" db:"baseline_average_daily"`
	CumulativeOverage    int        `json:"cumulative_overage"     db:"cumulative_overage"`
	CreatedAt            *time.Time `json:"created_at"             db:"created_at"`
	UpdatedAt            *time.Time `json:"updated_at"             db:"updated_at"`
}

// plannedTreatDay maps to planned_treat_days. (user_id, date) is unique.
type plannedTreatDay struct {
	ID              int        `json:"id"               db:"id"`
	UserID          int        `json:"user_id"          db:"user_id"`
	Date            DateOnly   `json:"date"             db:"date"`
	PlannedCalories int        `json:"planned_calories" db:"planned_calories"`
	Note            *string    `json:"note"             db:"note"`
	Completed       bool       `json:"completed"        db:"completed"`
	CreatedAt       *time.Time `json:"created_at"       db:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"       db:"updated_at"`
}

/* ─── Logging-screen shapes ──────────────────────────────────────────── */

// dayTotals is one date's aggregate of calorie_log_items: food and exercise
// calories plus macros. Scanned from the per-date GROUP BY query and also
// computed in memory for the daily view.
type dayTotals struct {
	Date             DateOnly `db:"date"`
	CaloriesFood     int      `db:"calories_food"`
	CaloriesExercise int      `db:"calories_exercise"`
	ProteinG         float64  `db:"protein_g"`
	CarbsG           float64  `db:"carbs_g"`
	FatG             float64  `db:"fat_g"`
}

// net is food minus exercise.
func (t dayTotals) net() int {
	return t.CaloriesFood - t.CaloriesExercise
}

// weekDaySummary is one day's entry in the GET /calorie-log/week-summary response.
// Days with no logged items have HasData=false and zero calorie fields.
// CalorieBudget is the day's allowance: the planned amount on a treat day,
// otherwise the period's daily base.
type weekDaySummary struct {
	Date             DateOnly `json:"date"`
	CalorieBudget    int      `json:"calorie_budget"`
	CaloriesFood     int      `json:"calories_food"`
	CaloriesExercise int      `json:"calories_exercise"`
	NetCalories      int      `json:"net_calories"`
	CaloriesLeft     int      `json:"calories_left"`
	ProteinG         float64  `json:"protein_g"`
	CarbsG           float64  `json:"carbs_g"`
	FatG             float64  `json:"fat_g"`
	HasData          bool     `json:"has_data"`
	IsTreatDay       bool     `json:"is_treat_day"`
}

// dailyLogSummary is the response shape for GET /calorie-log/daily.
// CalorieBudget is the live adjusted budget for the date.
type dailyLogSummary struct {
	Date             string           `json:"date"`
	CalorieBudget    int              `json:"calorie_budget"`
	CaloriesFood     int              `json:"calories_food"`
	CaloriesExercise int              `json:"calories_exercise"`
	NetCalories      int              `json:"net_calories"`
	CaloriesLeft     int              `json:"calories_left"`
	ProteinG         float64          `json:"protein_g"`
	CarbsG           float64          `json:"carbs_g"`
	FatG             float64          `json:"fat_g"`
	Items            []calorieLogItem `json:"items"`
	Budget           adjustedBudget   `json:"budget"`
}

// progressStats aggregates a progress range. Avg fields hold totals until the
// handler divides by DaysTracked.
type progressStats struct {
	DaysTracked         int `json:"days_tracked"`
	DaysOnBudget        int `json:"days_on_budget"`
	AvgCaloriesFood     int `json:"avg_calories_food"`
	AvgCaloriesExercise int `json:"avg_calories_exercise"`
	AvgNetCalories      int `json:"avg_net_calories"`
	TotalCaloriesLeft   int `json:"total_calories_left"`
}

// progressResponse is the response shape for GET /calorie-log/progress.
type progressResponse struct {
	Days  []weekDaySummary `json:"days"`
	Stats progressStats    `json:"stats"`
}

/* ─── Request bodies ─────────────────────────────────────────────────── */

// createCalorieLogItemRequest is the request body for POST /api/calorie-log/items.
type createCalorieLogItemRequest struct {
	Date     string   `json:"date"`
	ItemName string   `json:"item_name"`
	Type     string   `json:"type"`
	Qty      *float64 `json:"qty"`
	Uom      *string  `json:"uom"`
	Calories int      `json:"calories"`
	ProteinG *float64 `json:"protein_g"`
	CarbsG   *float64 `json:"carbs_g"`
	FatG     *float64 `json:"fat_g"`
}

// updateCalorieLogItemRequest is the request body for PUT /api/calorie-log/items/:id.
// Nil fields keep their stored value.
type updateCalorieLogItemRequest struct {
	Date     *string  `json:"date"`
	ItemName *string  `json:"item_name"`
	Type     *string  `json:"type"`
	Qty      *float64 `json:"qty"`
	Uom      *string  `json:"uom"`
	Calories *int     `json:"calories"`
	ProteinG *float64 `json:"protein_g"`
	CarbsG   *float64 `json:"carbs_g"`
	FatG     *float64 `json:"fat_g"`
}

// patchProfileRequest is the request body for PATCH /api/profile.
// Only non-nil fields are written.
type patchProfileRequest struct {
	Gender            *string  `json:"gender"`
	Goal              *string  `json:"goal"`
	ActivityLevel     *string  `json:"activity_level"`
	BMR               *int     `json:"bmr"`
	DeficitTarget     *int     `json:"deficit_target"`
	DateOfBirth       *string  `json:"date_of_birth"` // YYYY-MM-DD string, stored as date
	HeightCM          *float64 `json:"height_cm"`
	WeightLBS         *float64 `json:"weight_lbs"`
	BaselineStartDate *string  `json:"baseline_start_date"` // YYYY-MM-DD string, stored as date
}

// treatDayRequest is the request body for POST /api/treat-days and PUT /api/treat-days/:id.
type treatDayRequest struct {
	Date      string  `json:"date"`
	Calories  int     `json:"planned_calories"`
	Note      *string `json:"note"`
	Completed *bool   `json:"completed"`
}
