package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// Treat-day validation outcomes.
const (
	treatSafe        = "safe"
	treatChallenging = "challenging"
	treatUnsafe      = "unsafe"
)

const (
	// minTierGap is the minimum spacing between adjacent recommendation tiers.
	minTierGap = 200
	// challengingMargin: other days averaging within this much of the floor
	// are accepted with a warning.
	challengingMargin = 200
)

// Tier multipliers on the daily base, and the scale used once the top tier
// hits the safe maximum.
var (
	tierMultipliers  = [3]float64{1.3, 1.5, 1.75}
	cappedTierShares = [3]float64{0.70, 0.85, 1}
)

// treatDayRecommendation holds the three suggested amounts for a treat day.
type treatDayRecommendation struct {
	DailyBase      int `json:"daily_base"`
	MaxSafe        int `json:"max_safe"`
	ComfortFloor   int `json:"comfort_floor"`
	OtherTreatDays int `json:"other_treat_days"`
	Light          int `json:"light"`
	Moderate       int `json:"moderate"`
	Celebration    int `json:"celebration"`
}

// treatDayValidation classifies a planned amount by what it leaves for the
// week's regular days.
type treatDayValidation struct {
	Status           string  `json:"status"`
	PlannedCalories  int     `json:"planned_calories"`
	TotalReserved    int     `json:"total_reserved"`
	RegularDaysCount int     `json:"regular_days_count"`
	OtherDaysAverage float64 `json:"other_days_average"`
	ComfortFloor     int     `json:"comfort_floor"`
	SuggestedMax     *int    `json:"suggested_max,omitempty"`
}

func sumPlanned(days []plannedTreatDay) int {
	total := 0
	for _, d := range days {
		total += d.PlannedCalories
	}
	return total
}

// regularDays is how many days of the week stay on the base budget once the
// candidate and the other treat days are set aside.
func regularDays(others []plannedTreatDay) int {
	return max(7-len(others)-1, 0)
}

// recommendTreatDay suggests light/moderate/celebration amounts for one more
// treat day in a week with the given budget and other treat days. Returns
// errTooManyTreatDays (with the partial recommendation) when even a treat day
// at the daily base would push the regular days below floor.
func recommendTreatDay(weeklyBudget int, others []plannedTreatDay, floor int) (treatDayRecommendation, error) {
	dailyBase := float64(weeklyBudget) / 7
	remaining := weeklyBudget - sumPlanned(others)
	maxSafe := remaining - regularDays(others)*floor

	rec := treatDayRecommendation{
		DailyBase:      roundInt(dailyBase),
		MaxSafe:        maxSafe,
		ComfortFloor:   floor,
		OtherTreatDays: len(others),
	}
	if float64(maxSafe) <= dailyBase {
		return rec, errTooManyTreatDays
	}

	var tiers [3]int
	for i, m := range tierMultipliers {
		tiers[i] = roundInt(dailyBase * m)
	}
	if tiers[2] > maxSafe {
		for i, share := range cappedTierShares {
			tiers[i] = roundInt(float64(maxSafe) * share)
		}
	}
	// Pull lower tiers down until neighbours are at least minTierGap apart.
	for i := len(tiers) - 2; i >= 0; i-- {
		if tiers[i+1]-tiers[i] < minTierGap {
			tiers[i] = tiers[i+1] - minTierGap
		}
	}

	rec.Light, rec.Moderate, rec.Celebration = tiers[0], tiers[1], tiers[2]
	return rec, nil
}

// validateTreatDay classifies planned against the average it leaves for the
// remaining regular days. With no regular days left the average is zero and
// the amount is unsafe.
func validateTreatDay(planned, weeklyBudget int, others []plannedTreatDay, floor int) treatDayValidation {
	reserved := sumPlanned(others) + planned
	regular := regularDays(others)

	var avg float64
	if regular > 0 {
		avg = float64(weeklyBudget-reserved) / float64(regular)
	}

	v := treatDayValidation{
		PlannedCalories:  planned,
		TotalReserved:    reserved,
		RegularDaysCount: regular,
		OtherDaysAverage: avg,
		ComfortFloor:     floor,
	}
	switch {
	case avg < float64(floor):
		v.Status = treatUnsafe
		suggested := weeklyBudget - regular*floor
		v.SuggestedMax = &suggested
	case avg < float64(floor+challengingMargin):
		v.Status = treatChallenging
	default:
		v.Status = treatSafe
	}
	return v
}

/* ─── Service ────────────────────────────────────────────────────────── */

// treatWeek is what a candidate treat day is judged against.
type treatWeek struct {
	WeeklyBudget int
	Others       []plannedTreatDay
	Floor        int
}

// loadTreatWeek resolves the weekly budget, floor and sibling treat days for a
// candidate date. The budget comes from the period covering the date, or the
// profile's weekly budget when that week's period does not exist yet. Treat
// days on the candidate date itself or with ID editingID are excluded.
func (s *budgetService) loadTreatWeek(ctx context.Context, userID int, date time.Time, editingID int) (treatWeek, error) {
	monday, sunday := weekBounds(date)

	var (
		p      profile
		period *weeklyPeriod
		all    []plannedTreatDay
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		p, err = s.store.getProfile(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		period, err = s.findPeriodForDate(gctx, userID, date)
		return err
	})
	g.Go(func() error {
		var err error
		all, err = s.store.listTreatDays(gctx, userID, monday, sunday)
		return err
	})
	if err := g.Wait(); err != nil {
		return treatWeek{}, err
	}

	w := treatWeek{Floor: profileFloor(p)}
	switch {
	case period != nil:
		w.WeeklyBudget = period.WeeklyBudget
	case p.WeeklyBudget != nil:
		w.WeeklyBudget = *p.WeeklyBudget
	default:
		return treatWeek{}, errNoBaselineData
	}

	day := truncateDay(date)
	for _, t := range all {
		if t.ID == editingID || truncateDay(t.Date.Time).Equal(day) {
			continue
		}
		w.Others = append(w.Others, t)
	}
	return w, nil
}

// recommendTreatDayFor returns tiered suggestions for a present or future date.
func (s *budgetService) recommendTreatDayFor(ctx context.Context, userID int, date, today time.Time, editingID int) (treatDayRecommendation, error) {
	if truncateDay(date).Before(truncateDay(today)) {
		return treatDayRecommendation{}, errPastDate
	}
	w, err := s.loadTreatWeek(ctx, userID, date, editingID)
	if err != nil {
		return treatDayRecommendation{}, err
	}
	return recommendTreatDay(w.WeeklyBudget, w.Others, w.Floor)
}

// validateTreatDayFor previews validation of calories on date without saving.
func (s *budgetService) validateTreatDayFor(ctx context.Context, userID int, date time.Time, calories, editingID int) (treatDayValidation, error) {
	w, err := s.loadTreatWeek(ctx, userID, date, editingID)
	if err != nil {
		return treatDayValidation{}, err
	}
	if calories < w.Floor {
		return treatDayValidation{}, errBelowFloor
	}
	return validateTreatDay(calories, w.WeeklyBudget, w.Others, w.Floor), nil
}

// treatDayInput is a create (ID 0) or edit of a planned treat day.
type treatDayInput struct {
	ID        int
	Date      time.Time
	Calories  int
	Note      *string
	Completed *bool
}

// treatDaySave is the result of saveTreatDay. TreatDay is nil when the amount
// was rejected.
type treatDaySave struct {
	TreatDay   *plannedTreatDay   `json:"treat_day,omitempty"`
	Validation treatDayValidation `json:"validation"`
}

// saveTreatDay validates and writes a treat day. Amounts below the comfort
// floor return errBelowFloor; unsafe amounts return errUnsafe carrying the
// suggested maximum. Neither writes anything. Creating on
// a date that already has a treat day replaces it; editing onto a date held by
// a different treat day returns errDateConflict.
func (s *budgetService) saveTreatDay(ctx context.Context, userID int, in treatDayInput, today time.Time) (treatDaySave, error) {
	date := truncateDay(in.Date)
	if date.Before(truncateDay(today)) {
		return treatDaySave{}, errPastDate
	}

	completed := false
	if in.ID != 0 {
		existing, err := s.store.getTreatDay(ctx, userID, in.ID)
		if err != nil {
			return treatDaySave{}, err
		}
		completed = existing.Completed
		onDate, err := s.store.getTreatDayByDate(ctx, userID, date)
		if err != nil {
			return treatDaySave{}, err
		}
		if onDate != nil && onDate.ID != in.ID {
			return treatDaySave{}, errDateConflict
		}
	}
	if in.Completed != nil {
		completed = *in.Completed
	}

	w, err := s.loadTreatWeek(ctx, userID, date, in.ID)
	if err != nil {
		return treatDaySave{}, err
	}
	// A treat day is served as the day's budget unadjusted, so it may not
	// undercut the floor every other day is held to.
	if in.Calories < w.Floor {
		return treatDaySave{}, errBelowFloor
	}
	v := validateTreatDay(in.Calories, w.WeeklyBudget, w.Others, w.Floor)
	if v.Status == treatUnsafe {
		return treatDaySave{Validation: v}, unsafeError(*v.SuggestedMax)
	}

	row := plannedTreatDay{
		ID:              in.ID,
		UserID:          userID,
		Date:            DateOnly{date},
		PlannedCalories: in.Calories,
		Note:            in.Note,
		Completed:       completed,
	}
	var saved plannedTreatDay
	if in.ID == 0 {
		saved, err = s.store.upsertTreatDay(ctx, row)
	} else {
		saved, err = s.store.updateTreatDay(ctx, row)
	}
	if err != nil {
		return treatDaySave{Validation: v}, err
	}
	if v.Status == treatChallenging {
		log.Printf("[saveTreatDay] user %d saved challenging treat day %s (%d kcal, others avg %.0f)",
			userID, date.Format(dateLayout), in.Calories, v.OtherDaysAverage)
	}
	return treatDaySave{TreatDay: &saved, Validation: v}, nil
}

// deleteTreatDay removes an owned treat day regardless of its date.
func (s *budgetService) deleteTreatDay(ctx context.Context, userID, id int) error {
	if err := s.store.deleteTreatDay(ctx, userID, id); err != nil {
		return fmt.Errorf("delete treat day %d: %w", id, err)
	}
	return nil
}

// listTreatDays returns the user's treat days within [start, end].
func (s *budgetService) listTreatDays(ctx context.Context, userID int, start, end time.Time) ([]plannedTreatDay, error) {
	return s.store.listTreatDays(ctx, userID, truncateDay(start), truncateDay(end))
}
