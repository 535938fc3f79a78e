package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// budgetStore is the data the budget engine reads and writes. Lookups that find
// nothing return errNotFound, except the find*/get*ByDate helpers which return
// nil. Dates are calendar days at midnight UTC; ranges are inclusive.
type budgetStore interface {
	getProfile(ctx context.Context, userID int) (profile, error)
	// updateProfile writes the non-nil onboarding fields of patch.
	updateProfile(ctx context.Context, userID int, patch patchProfileRequest) (profile, error)
	// saveBaseline writes the baseline block and completion stamp. Returns
	// errBaselineAlreadyComplete if the profile was completed meanwhile.
	saveBaseline(ctx context.Context, userID int, r baselineResult, completedAt time.Time) (profile, error)
	restartBaseline(ctx context.Context, userID int, start time.Time) (profile, error)
	listBudgetedUserIDs(ctx context.Context) ([]int, error)

	listDaySummaries(ctx context.Context, userID int, start, end time.Time) ([]daySummary, error)

	findOverlappingPeriod(ctx context.Context, userID int, start, end time.Time) (*weeklyPeriod, error)
	// insertPeriod inserts p unless an overlapping period exists, in which case
	// it returns that period and created=false.
	insertPeriod(ctx context.Context, p weeklyPeriod) (saved weeklyPeriod, created bool, err error)
	getPeriod(ctx context.Context, userID, periodID int) (weeklyPeriod, error)
	listPeriods(ctx context.Context, userID int, start, end time.Time) ([]weeklyPeriod, error)
	setCumulativeOverage(ctx context.Context, periodID, overage int) error

	listTreatDays(ctx context.Context, userID int, start, end time.Time) ([]plannedTreatDay, error)
	getTreatDay(ctx context.Context, userID, id int) (plannedTreatDay, error)
	getTreatDayByDate(ctx context.Context, userID int, date time.Time) (*plannedTreatDay, error)
	// upsertTreatDay creates or replaces the treat day on t.Date.
	upsertTreatDay(ctx context.Context, t plannedTreatDay) (plannedTreatDay, error)
	// updateTreatDay rewrites treat day t.ID; errDateConflict if t.Date is taken.
	updateTreatDay(ctx context.Context, t plannedTreatDay) (plannedTreatDay, error)
	deleteTreatDay(ctx context.Context, userID, id int) error
}

/* ─── Postgres implementation ────────────────────────────────────────── */

// Postgres error codes the store translates.
const (
	pgUniqueViolation    = "23505"
	pgExclusionViolation = "23P01"
)

// pgStore implements budgetStore on the shared pgx pool.
type pgStore struct {
	db *pgxpool.Pool
}

func newPGStore(db *pgxpool.Pool) *pgStore {
	return &pgStore{db: db}
}

func isPgError(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// notFound maps pgx.ErrNoRows onto errNotFound and passes other errors through.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return errNotFound
	}
	return err
}

// optional turns a no-rows lookup into (nil, nil).
func optional[T any](v T, err error) (*T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *pgStore) getProfile(ctx context.Context, userID int) (profile, error) {
	p, err := queryOne[profile](s.db, ctx,
		"SELECT * FROM user_profiles WHERE user_id = @userID",
		pgx.NamedArgs{"userID": userID})
	return p, notFound(err)
}

// profileColumns pairs each patchable column with its request field.
func profileColumns(p patchProfileRequest) []struct {
	column string
	value  any
	set    bool
} {
	return []struct {
		column string
		value  any
		set    bool
	}{
		{"gender", p.Gender, p.Gender != nil},
		{"goal", p.Goal, p.Goal != nil},
		{"activity_level", p.ActivityLevel, p.ActivityLevel != nil},
		{"bmr", p.BMR, p.BMR != nil},
		{"deficit_target", p.DeficitTarget, p.DeficitTarget != nil},
		{"date_of_birth", p.DateOfBirth, p.DateOfBirth != nil},
		{"height_cm", p.HeightCM, p.HeightCM != nil},
		{"weight_lbs", p.WeightLBS, p.WeightLBS != nil},
		{"baseline_start_date", p.BaselineStartDate, p.BaselineStartDate != nil},
	}
}

// updateProfile builds the SET clause from the fields the client sent. Column
// names come from profileColumns, never from input.
func (s *pgStore) updateProfile(ctx context.Context, userID int, patch patchProfileRequest) (profile, error) {
	var sets []string
	args := pgx.NamedArgs{"userID": userID}
	for _, col := range profileColumns(patch) {
		if !col.set {
			continue
		}
		sets = append(sets, col.column+" = @"+col.column)
		args[col.column] = col.value
	}
	if len(sets) == 0 {
		return s.getProfile(ctx, userID)
	}
	p, err := queryOne[profile](s.db, ctx,
		"UPDATE user_profiles SET "+strings.Join(sets, ", ")+
			", updated_at = now() WHERE user_id = @userID RETURNING *",
		args)
	return p, notFound(err)
}

func (s *pgStore) saveBaseline(ctx context.Context, userID int, r baselineResult, completedAt time.Time) (profile, error) {
	// Estimated completions have no measured intake or exercise; store NULLs.
	var avg, exercise *int
	if r.Mode == baselineMeasured {
		avg, exercise = &r.AvgDailyIntake, &r.TotalExercise
	}
	p, err := queryOne[profile](s.db, ctx,
		`UPDATE user_profiles SET
			baseline_avg_intake     = @avg,
			baseline_total_exercise = @exercise,
			actual_activity_level   = @level,
			activity_factor         = @factor,
			formula_tdee            = @formulaTDEE,
			final_tdee              = @finalTDEE,
			daily_target            = @dailyTarget,
			weekly_budget           = @weeklyBudget,
			baseline_mode           = @mode,
			baseline_completed_at   = @completedAt,
			updated_at              = now()
		 WHERE user_id = @userID AND baseline_completed_at IS NULL
		 RETURNING *`,
		pgx.NamedArgs{
			"userID": userID, "avg": avg, "exercise": exercise,
			"level": r.ActivityLevel, "factor": r.ActivityFactor,
			"formulaTDEE": r.FormulaTDEE, "finalTDEE": r.FinalTDEE,
			"dailyTarget": r.DailyTarget, "weeklyBudget": r.WeeklyBudget,
			"mode": r.Mode, "completedAt": completedAt,
		})
	if errors.Is(err, pgx.ErrNoRows) {
		return p, errBaselineAlreadyComplete
	}
	return p, err
}

func (s *pgStore) restartBaseline(ctx context.Context, userID int, start time.Time) (profile, error) {
	p, err := queryOne[profile](s.db, ctx,
		`UPDATE user_profiles SET
			baseline_completed_at = NULL,
			baseline_mode         = NULL,
			baseline_start_date   = @start,
			updated_at            = now()
		 WHERE user_id = @userID
		 RETURNING *`,
		pgx.NamedArgs{"userID": userID, "start": start.Format(dateLayout)})
	return p, notFound(err)
}

func (s *pgStore) listBudgetedUserIDs(ctx context.Context) ([]int, error) {
	rows, err := s.db.Query(ctx,
		"SELECT user_id FROM user_profiles WHERE weekly_budget IS NOT NULL ORDER BY user_id")
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

// listDaySummaries aggregates calorie_log_items per date. Exercise calories are
// stored positive; the type column decides direction.
func (s *pgStore) listDaySummaries(ctx context.Context, userID int, start, end time.Time) ([]daySummary, error) {
	return queryMany[daySummary](s.db, ctx,
		`SELECT
			date,
			SUM(CASE WHEN type != 'exercise' THEN calories ELSE 0 END) AS calories_consumed,
			SUM(CASE WHEN type  = 'exercise' THEN calories ELSE 0 END) AS calories_burned
		 FROM calorie_log_items
		 WHERE user_id = @userID AND date >= @start AND date <= @end
		 GROUP BY date
		 ORDER BY date ASC`,
		pgx.NamedArgs{"userID": userID, "start": start.Format(dateLayout), "end": end.Format(dateLayout)})
}

func (s *pgStore) findOverlappingPeriod(ctx context.Context, userID int, start, end time.Time) (*weeklyPeriod, error) {
	p, err := queryOne[weeklyPeriod](s.db, ctx,
		`SELECT * FROM weekly_periods
		 WHERE user_id = @userID AND start_date <= @end AND end_date >= @start
		 ORDER BY start_date
		 LIMIT 1`,
		pgx.NamedArgs{"userID": userID, "start": start.Format(dateLayout), "end": end.Format(dateLayout)})
	return optional(p, err)
}

// insertPeriod relies on UNIQUE(user_id, start_date) and the overlap EXCLUDE
// constraint: ON CONFLICT DO NOTHING returns no row for the loser of a race,
// which then reads back the winner.
func (s *pgStore) insertPeriod(ctx context.Context, p weeklyPeriod) (weeklyPeriod, bool, error) {
	saved, err := queryOne[weeklyPeriod](s.db, ctx,
		`INSERT INTO weekly_periods (user_id, start_date, end_date, weekly_budget, baseline_average_daily)
		 VALUES (@userID, @start, @end, @weeklyBudget, @baselineAverageDaily)
		 ON CONFLICT DO NOTHING
		 RETURNING *`,
		pgx.NamedArgs{
			"userID": p.UserID, "start": p.StartDate.Format(dateLayout), "end": p.EndDate.Format(dateLayout),
			"weeklyBudget": p.WeeklyBudget, "baselineAverageDaily": p.BaselineAverageDaily,
		})
	if err == nil {
		return saved, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) && !isPgError(err, pgExclusionViolation) {
		return weeklyPeriod{}, false, err
	}
	winner, err := s.findOverlappingPeriod(ctx, p.UserID, p.StartDate.Time, p.EndDate.Time)
	if err != nil {
		return weeklyPeriod{}, false, err
	}
	if winner == nil {
		return weeklyPeriod{}, false, errors.New("period insert conflicted but no overlapping period found")
	}
	return *winner, false, nil
}

func (s *pgStore) getPeriod(ctx context.Context, userID, periodID int) (weeklyPeriod, error) {
	p, err := queryOne[weeklyPeriod](s.db, ctx,
		"SELECT * FROM weekly_periods WHERE id = @id AND user_id = @userID",
		pgx.NamedArgs{"id": periodID, "userID": userID})
	return p, notFound(err)
}

func (s *pgStore) listPeriods(ctx context.Context, userID int, start, end time.Time) ([]weeklyPeriod, error) {
	return queryMany[weeklyPeriod](s.db, ctx,
		`SELECT * FROM weekly_periods
		 WHERE user_id = @userID AND start_date <= @end AND end_date >= @start
		 ORDER BY start_date ASC`,
		pgx.NamedArgs{"userID": userID, "start": start.Format(dateLayout), "end": end.Format(dateLayout)})
}

func (s *pgStore) setCumulativeOverage(ctx context.Context, periodID, overage int) error {
	result, err := s.db.Exec(ctx,
		"UPDATE weekly_periods SET cumulative_overage = @overage, updated_at = now() WHERE id = @id",
		pgx.NamedArgs{"id": periodID, "overage": overage})
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

func (s *pgStore) listTreatDays(ctx context.Context, userID int, start, end time.Time) ([]plannedTreatDay, error) {
	return queryMany[plannedTreatDay](s.db, ctx,
		`SELECT * FROM planned_treat_days
		 WHERE user_id = @userID AND date >= @start AND date <= @end
		 ORDER BY date ASC`,
		pgx.NamedArgs{"userID": userID, "start": start.Format(dateLayout), "end": end.Format(dateLayout)})
}

func (s *pgStore) getTreatDay(ctx context.Context, userID, id int) (plannedTreatDay, error) {
	t, err := queryOne[plannedTreatDay](s.db, ctx,
		"SELECT * FROM planned_treat_days WHERE id = @id AND user_id = @userID",
		pgx.NamedArgs{"id": id, "userID": userID})
	return t, notFound(err)
}

func (s *pgStore) getTreatDayByDate(ctx context.Context, userID int, date time.Time) (*plannedTreatDay, error) {
	t, err := queryOne[plannedTreatDay](s.db, ctx,
		"SELECT * FROM planned_treat_days WHERE user_id = @userID AND date = @date",
		pgx.NamedArgs{"userID": userID, "date": date.Format(dateLayout)})
	return optional(t, err)
}

// upsertTreatDay uses the UNIQUE(user_id, date) constraint so a create racing
// another create for the same date converges on one row.
func (s *pgStore) upsertTreatDay(ctx context.Context, t plannedTreatDay) (plannedTreatDay, error) {
	return queryOne[plannedTreatDay](s.db, ctx,
		`INSERT INTO planned_treat_days (user_id, date, planned_calories, note, completed)
		 VALUES (@userID, @date, @calories, @note, @completed)
		 ON CONFLICT (user_id, date) DO UPDATE SET
			planned_calories = EXCLUDED.planned_calories,
			note             = EXCLUDED.note,
			completed        = EXCLUDED.completed,
			updated_at       = now()
		 RETURNING *`,
		pgx.NamedArgs{
			"userID": t.UserID, "date": t.Date.Format(dateLayout),
			"calories": t.PlannedCalories, "note": t.Note, "completed": t.Completed,
		})
}

func (s *pgStore) updateTreatDay(ctx context.Context, t plannedTreatDay) (plannedTreatDay, error) {
	saved, err := queryOne[plannedTreatDay](s.db, ctx,
		`UPDATE planned_treat_days SET
			date             = @date,
			planned_calories = @calories,
			note             = @note,
			completed        = @completed,
			updated_at       = now()
		 WHERE id = @id AND user_id = @userID
		 RETURNING *`,
		pgx.NamedArgs{
			"id": t.ID, "userID": t.UserID, "date": t.Date.Format(dateLayout),
			"calories": t.PlannedCalories, "note": t.Note, "completed": t.Completed,
		})
	if isPgError(err, pgUniqueViolation) {
		return saved, errDateConflict
	}
	return saved, notFound(err)
}

// deleteTreatDay enforces ownership by requiring both id and user_id to match.
func (s *pgStore) deleteTreatDay(ctx context.Context, userID, id int) error {
	result, err := s.db.Exec(ctx,
		"DELETE FROM planned_treat_days WHERE id = @id AND user_id = @userID",
		pgx.NamedArgs{"id": id, "userID": userID})
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errNotFound
	}
	return nil
}

/* ─── Calorie log ────────────────────────────────────────────────────── */

// logStore persists calorie_log_items. Writes return enough of the prior row
// for the caller to reconcile every period the change touched.
type logStore interface {
	listLogItems(ctx context.Context, userID int, date time.Time) ([]calorieLogItem, error)
	listDayTotals(ctx context.Context, userID int, start, end time.Time) ([]dayTotals, error)
	// earliestLogDate is nil when the user has logged nothing.
	earliestLogDate(ctx context.Context, userID int) (*time.Time, error)
	insertLogItem(ctx context.Context, item calorieLogItem) (calorieLogItem, error)
	// updateLogItem applies the non-nil fields of patch and also returns the
	// date the item held before the update.
	updateLogItem(ctx context.Context, userID, id int, patch updateCalorieLogItemRequest) (saved calorieLogItem, oldDate time.Time, err error)
	deleteLogItem(ctx context.Context, userID, id int) (calorieLogItem, error)
}

func (s *pgStore) listLogItems(ctx context.Context, userID int, date time.Time) ([]calorieLogItem, error) {
	return queryMany[calorieLogItem](s.db, ctx,
		`SELECT * FROM calorie_log_items
		 WHERE user_id = @userID AND date = @date
		 ORDER BY created_at, id`,
		pgx.NamedArgs{"userID": userID, "date": date.Format(dateLayout)})
}

func (s *pgStore) listDayTotals(ctx context.Context, userID int, start, end time.Time) ([]dayTotals, error) {
	return queryMany[dayTotals](s.db, ctx,
		`SELECT
			date,
			SUM(CASE WHEN type != 'exercise' THEN calories ELSE 0 END) AS calories_food,
			SUM(CASE WHEN type  = 'exercise' THEN calories ELSE 0 END) AS calories_exercise,
			COALESCE(SUM(protein_g), 0) AS protein_g,
			COALESCE(SUM(carbs_g),   0) AS carbs_g,
			COALESCE(SUM(fat_g),     0) AS fat_g
		 FROM calorie_log_items
		 WHERE user_id = @userID AND date >= @start AND date <= @end
		 GROUP BY date
		 ORDER BY date ASC`,
		pgx.NamedArgs{"userID": userID, "start": start.Format(dateLayout), "end": end.Format(dateLayout)})
}

func (s *pgStore) earliestLogDate(ctx context.Context, userID int) (*time.Time, error) {
	var d pgtype.Date
	err := s.db.QueryRow(ctx,
		"SELECT MIN(date) FROM calorie_log_items WHERE user_id = @userID",
		pgx.NamedArgs{"userID": userID}).Scan(&d)
	if err != nil || !d.Valid {
		return nil, err
	}
	return &d.Time, nil
}

func (s *pgStore) insertLogItem(ctx context.Context, item calorieLogItem) (calorieLogItem, error) {
	return queryOne[calorieLogItem](s.db, ctx,
		`INSERT INTO calorie_log_items (user_id, date, item_name, type, qty, uom, calories, protein_g, carbs_g, fat_g)
		 VALUES (@userID, @date, @itemName, @type, @qty, @uom, @calories, @proteinG, @carbsG, @fatG)
		 RETURNING *`,
		pgx.NamedArgs{
			"userID": item.UserID, "date": item.Date.Format(dateLayout), "itemName": item.ItemName,
			"type": item.Type, "qty": item.Qty, "uom": item.Uom,
			"calories": item.Calories, "proteinG": item.ProteinG,
			"carbsG": item.CarbsG, "fatG": item.FatG,
		})
}

// updatedLogItem is the updated row plus its pre-update date, read through a
// self-join because RETURNING only sees new values.
type updatedLogItem struct {
	calorieLogItem
	OldDate DateOnly `db:"old_date"`
}

func (s *pgStore) updateLogItem(ctx context.Context, userID, id int, patch updateCalorieLogItemRequest) (calorieLogItem, time.Time, error) {
	row, err := queryOne[updatedLogItem](s.db, ctx,
		`UPDATE calorie_log_items AS i SET
			date = COALESCE(@date::date, i.date),
			item_name = COALESCE(@itemName, i.item_name),
			type = COALESCE(@type::calorie_log_item_type, i.type),
			qty = COALESCE(@qty, i.qty),
			uom = COALESCE(@uom, i.uom),
			calories = COALESCE(@calories, i.calories),
			protein_g = COALESCE(@proteinG, i.protein_g),
			carbs_g = COALESCE(@carbsG, i.carbs_g),
			fat_g = COALESCE(@fatG, i.fat_g),
			updated_at = now()
		 FROM calorie_log_items AS old
		 WHERE old.id = i.id AND i.id = @id AND i.user_id = @userID
		 RETURNING i.*, old.date AS old_date`,
		pgx.NamedArgs{
			"id": id, "userID": userID,
			"date": patch.Date, "itemName": patch.ItemName, "type": patch.Type,
			"qty": patch.Qty, "uom": patch.Uom, "calories": patch.Calories,
			"proteinG": patch.ProteinG, "carbsG": patch.CarbsG, "fatG": patch.FatG,
		})
	if err != nil {
		return calorieLogItem{}, time.Time{}, notFound(err)
	}
	return row.calorieLogItem, row.OldDate.Time, nil
}

func (s *pgStore) deleteLogItem(ctx context.Context, userID, id int) (calorieLogItem, error) {
	item, err := queryOne[calorieLogItem](s.db, ctx,
		"DELETE FROM calorie_log_items WHERE id = @id AND user_id = @userID RETURNING *",
		pgx.NamedArgs{"id": id, "userID": userID})
	return item, notFound(err)
}
