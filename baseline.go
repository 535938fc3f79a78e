package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"
)

// Baseline completion modes.
const (
	baselineMeasured  = "measured"
	baselineEstimated = "estimated"
)

const (
	// naturalDeficitShare: when the user's own eating already achieves this share
	// of the configured deficit, their observed intake becomes the target as-is.
	naturalDeficitShare = 0.8
	// maxTargetAboveTDEE caps how far the daily target may sit above final TDEE.
	maxTargetAboveTDEE = 1000
)

// baselineInput is the onboarding data both completion modes start from.
// Deficit is a signed offset from maintenance (negative for a surplus).
type baselineInput struct {
	BMR              int
	Deficit          int
	Gender           string
	ReportedActivity string
}

// baselineResult is the output contract shared by both completion modes.
// AvgDailyIntake and TotalExercise are zero for estimated completion.
type baselineResult struct {
	Mode           string  `json:"mode"`
	DaysUsed       int     `json:"days_used"`
	AvgDailyIntake int     `json:"avg_daily_intake"`
	TotalExercise  int     `json:"total_exercise"`
	ActivityLevel  string  `json:"activity_level"`
	ActivityFactor float64 `json:"activity_factor"`
	FormulaTDEE    int     `json:"formula_tdee"`
	FinalTDEE      int     `json:"final_tdee"`
	DailyTarget    int     `json:"daily_target"`
	WeeklyBudget   int     `json:"weekly_budget"`
}

func roundInt(x float64) int {
	return int(math.Round(x))
}

// minDailyCalories is the hard floor for a baseline-derived target.
func minDailyCalories(gender string) int {
	if gender == genderFemale {
		return 1200
	}
	return 1500
}

// clampTarget bounds target to [minDailyCalories, finalTDEE+1000]. The lower
// bound wins if the two cross.
func clampTarget(target, finalTDEE int, gender string) int {
	if upper := finalTDEE + maxTargetAboveTDEE; target > upper {
		target = upper
	}
	if lower := minDailyCalories(gender); target < lower {
		target = lower
	}
	return target
}

// computeMeasuredBaseline derives a daily target from a logged baseline week.
// Only days with consumed > 0 count towards the intake average; exercise is
// summed over every day in days. Returns errInsufficientData when fewer than
// t.MinBaselineDays days have food logged.
func computeMeasuredBaseline(t tuning, in baselineInput, days []daySummary) (baselineResult, error) {
	var consumed, exercise, used int
	for _, d := range days {
		exercise += d.Burned
		if d.Consumed > 0 {
			consumed += d.Consumed
			used++
		}
	}
	if used < t.MinBaselineDays {
		return baselineResult{Mode: baselineMeasured, DaysUsed: used}, errInsufficientData
	}

	avg := roundInt(float64(consumed) / float64(used))
	level, factor := classifyActivity(t.ActivityThresholds, exercise)
	formula := roundInt(float64(in.BMR) * factor)
	final := roundInt(float64(formula)*(1-t.IntakeBlendWeight) + float64(avg)*t.IntakeBlendWeight)

	// Don't add restriction on top of a deficit the user already eats at, and
	// never set a target below what they demonstrated eating.
	var target int
	if implied := formula - avg; float64(implied) >= naturalDeficitShare*float64(in.Deficit) {
		target = avg
	} else {
		target = max(final-in.Deficit, avg)
	}
	target = clampTarget(target, final, in.Gender)

	return baselineResult{
		Mode:           baselineMeasured,
		DaysUsed:       used,
		AvgDailyIntake: avg,
		TotalExercise:  exercise,
		ActivityLevel:  level,
		ActivityFactor: factor,
		FormulaTDEE:    formula,
		FinalTDEE:      final,
		DailyTarget:    target,
		WeeklyBudget:   target * 7,
	}, nil
}

// computeEstimatedBaseline derives a daily target from onboarding data alone,
// using the reported activity level in place of measured exercise.
func computeEstimatedBaseline(in baselineInput) (baselineResult, error) {
	factor, ok := activityMultipliers[in.ReportedActivity]
	if !ok {
		return baselineResult{}, errMissingOnboardingData
	}
	tdee := roundInt(float64(in.BMR) * factor)
	target := clampTarget(tdee-in.Deficit, tdee, in.Gender)
	return baselineResult{
		Mode:           baselineEstimated,
		ActivityLevel:  in.ReportedActivity,
		ActivityFactor: factor,
		FormulaTDEE:    tdee,
		FinalTDEE:      tdee,
		DailyTarget:    target,
		WeeklyBudget:   target * 7,
	}, nil
}

// baselineWindow returns the 7-day window a measured baseline reads: the week
// starting at the recorded baseline start date, or the 7 days before today.
func baselineWindow(p profile, today time.Time) (start, end time.Time) {
	if p.BaselineStartDate != nil && !p.BaselineStartDate.IsZero() {
		start = truncateDay(p.BaselineStartDate.Time)
		return start, start.AddDate(0, 0, 6)
	}
	today = truncateDay(today)
	return today.AddDate(0, 0, -7), today.AddDate(0, 0, -1)
}

/* ─── Service ────────────────────────────────────────────────────────── */

// baselineCompletion is the response for POST /api/baseline/complete. Period is
// nil and PeriodError set when the follow-up period creation failed; the saved
// baseline stands regardless.
type baselineCompletion struct {
	Baseline    baselineResult  `json:"baseline"`
	Profile     profile         `json:"profile"`
	Period      *periodCreation `json:"period,omitempty"`
	PeriodError string          `json:"period_error,omitempty"`
}

// completeBaseline finalizes the user's baseline in the given mode, persists the
// derived numbers onto the profile and bootstraps the current weekly period.
func (s *budgetService) completeBaseline(ctx context.Context, userID int, today time.Time, mode string) (baselineCompletion, error) {
	p, err := s.store.getProfile(ctx, userID)
	if err != nil {
		return baselineCompletion{}, err
	}
	if p.BaselineCompletedAt != nil {
		return baselineCompletion{}, errBaselineAlreadyComplete
	}
	if p.BMR == nil || p.DeficitTarget == nil || p.Gender == nil {
		return baselineCompletion{}, errMissingOnboardingData
	}
	in := baselineInput{
		BMR:              *p.BMR,
		Deficit:          *p.DeficitTarget,
		Gender:           *p.Gender,
		ReportedActivity: deref(p.ActivityLevel),
	}

	var result baselineResult
	switch mode {
	case baselineMeasured:
		start, end := baselineWindow(p, today)
		days, err := s.store.listDaySummaries(ctx, userID, start, end)
		if err != nil {
			return baselineCompletion{}, fmt.Errorf("load baseline days: %w", err)
		}
		result, err = computeMeasuredBaseline(s.tuning, in, days)
		if err != nil {
			return baselineCompletion{Baseline: result}, err
		}
	case baselineEstimated:
		result, err = computeEstimatedBaseline(in)
		if err != nil {
			return baselineCompletion{}, err
		}
	default:
		return baselineCompletion{}, fmt.Errorf("unknown baseline mode %q", mode)
	}

	saved, err := s.store.saveBaseline(ctx, userID, result, s.now())
	if err != nil {
		return baselineCompletion{}, err
	}
	log.Printf("[completeBaseline] user %d completed %s baseline: daily target %d, weekly budget %d",
		userID, mode, result.DailyTarget, result.WeeklyBudget)

	out := baselineCompletion{Baseline: result, Profile: saved}
	creation, err := s.createPeriod(ctx, userID, today)
	if err != nil {
		// The scheduler or the next app open will retry; creation is idempotent.
		log.Printf("[completeBaseline] period creation failed for user %d: %v", userID, err)
		out.PeriodError = err.Error()
		return out, nil
	}
	out.Period = &creation
	return out, nil
}

// restartBaseline clears the completion stamp so the user can run a new
// baseline week from start. The previous target stays live until the new
// completion replaces it.
func (s *budgetService) restartBaseline(ctx context.Context, userID int, start time.Time) (profile, error) {
	p, err := s.store.restartBaseline(ctx, userID, truncateDay(start))
	if err != nil {
		return profile{}, err
	}
	log.Printf("[restartBaseline] user %d restarted baseline from %s", userID, start.Format(dateLayout))
	return p, nil
}
