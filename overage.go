package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// adjustedBudget is today's live calorie goal. Adjustment is zero or negative.
// Fallback is set when no period covers the date and a static default is used.
type adjustedBudget struct {
	Date                 DateOnly `json:"date"`
	PeriodID             *int     `json:"period_id"`
	BaseBudget           int      `json:"base_budget"`
	Adjustment           int      `json:"adjustment"`
	AdjustedBudget       int      `json:"adjusted_budget"`
	CumulativeOverage    int      `json:"cumulative_overage"`
	ComfortFloor         int      `json:"comfort_floor"`
	IsTreatDay           bool     `json:"is_treat_day"`
	RemainingRegularDays int      `json:"remaining_regular_days"`
	Fallback             bool     `json:"fallback"`
}

func dailyBase(p weeklyPeriod) float64 {
	return float64(p.WeeklyBudget) / 7
}

// computeOverage sums, for every day from the period start through the
// earlier of through and the period end, how far net intake exceeded that
// day's allowance: the planned calories on a treat day, else the daily base.
// Days under their allowance contribute nothing.
func computeOverage(p weeklyPeriod, treatDays []plannedTreatDay, days []daySummary, through time.Time) int {
	planned := make(map[string]int, len(treatDays))
	for _, t := range treatDays {
		planned[t.Date.Format(dateLayout)] = t.PlannedCalories
	}
	net := make(map[string]int, len(days))
	for _, d := range days {
		net[d.Date.Format(dateLayout)] = d.Consumed - d.Burned
	}

	start, end := truncateDay(p.StartDate.Time), truncateDay(p.EndDate.Time)
	last := truncateDay(through)
	if last.After(end) {
		last = end
	}

	base := dailyBase(p)
	var overage float64
	for d := start; !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(dateLayout)
		allowance := base
		if c, ok := planned[key]; ok {
			allowance = float64(c)
		}
		if excess := float64(net[key]) - allowance; excess > 0 {
			overage += excess
		}
	}
	return roundInt(overage)
}

// daysBetween counts whole calendar days from a to b.
func daysBetween(a, b time.Time) int {
	return roundInt(truncateDay(b).Sub(truncateDay(a)).Hours() / 24)
}

// computeAdjustedBudget spreads the period's cumulative overage over today and
// the remaining regular days, never going below floor. A treat day returns its
// planned calories unadjusted.
func computeAdjustedBudget(p weeklyPeriod, treatDays []plannedTreatDay, date time.Time, floor int) adjustedBudget {
	day := truncateDay(date)
	start, end := truncateDay(p.StartDate.Time), truncateDay(p.EndDate.Time)

	var today *plannedTreatDay
	future := 0
	for i := range treatDays {
		td := truncateDay(treatDays[i].Date.Time)
		switch {
		case td.Before(start) || td.After(end):
		case td.Equal(day):
			today = &treatDays[i]
		case td.After(day):
			future++
		}
	}

	remaining := max(daysBetween(day, end), 0)
	periodID := p.ID
	out := adjustedBudget{
		Date:                 DateOnly{day},
		PeriodID:             &periodID,
		BaseBudget:           roundInt(dailyBase(p)),
		CumulativeOverage:    p.CumulativeOverage,
		ComfortFloor:         floor,
		RemainingRegularDays: max(1, remaining-future),
	}
	if today != nil {
		out.IsTreatDay = true
		out.BaseBudget = today.PlannedCalories
		out.AdjustedBudget = today.PlannedCalories
		return out
	}

	// +1 puts today in the pool alongside the remaining regular days.
	adjustment := roundInt(float64(p.CumulativeOverage) / float64(out.RemainingRegularDays+1))
	out.Adjustment = -adjustment
	out.AdjustedBudget = max(out.BaseBudget-adjustment, floor)
	return out
}

// allowanceIndex answers "what was the budget on this date" across periods,
// for the logging summaries.
type allowanceIndex struct {
	periods  []weeklyPeriod
	treat    map[string]int
	fallback int
}

// allowance returns the day's budget and whether it is a treat day. Dates
// outside every period get the fallback budget.
func (a allowanceIndex) allowance(date time.Time) (int, bool) {
	key := date.Format(dateLayout)
	if c, ok := a.treat[key]; ok {
		return c, true
	}
	day := truncateDay(date)
	for _, p := range a.periods {
		if !day.Before(truncateDay(p.StartDate.Time)) && !day.After(truncateDay(p.EndDate.Time)) {
			return roundInt(dailyBase(p)), false
		}
	}
	return a.fallback, false
}

/* ─── Service ────────────────────────────────────────────────────────── */

// reconcilePeriod recomputes the overage of p through the given date,
// returning the updated period and its treat days. The result is stored only
// when persist is set.
func (s *budgetService) reconcilePeriod(ctx context.Context, p weeklyPeriod, through time.Time, persist bool) (weeklyPeriod, []plannedTreatDay, error) {
	start, end := truncateDay(p.StartDate.Time), truncateDay(p.EndDate.Time)
	last := truncateDay(through)
	if last.After(end) {
		last = end
	}

	var (
		treatDays []plannedTreatDay
		days      []daySummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		treatDays, err = s.store.listTreatDays(gctx, p.UserID, start, end)
		return err
	})
	g.Go(func() error {
		if last.Before(start) {
			return nil
		}
		var err error
		days, err = s.store.listDaySummaries(gctx, p.UserID, start, last)
		return err
	})
	if err := g.Wait(); err != nil {
		return p, nil, fmt.Errorf("load period %d inputs: %w", p.ID, err)
	}

	p.CumulativeOverage = computeOverage(p, treatDays, days, through)
	if !persist {
		return p, treatDays, nil
	}
	if err := s.store.setCumulativeOverage(ctx, p.ID, p.CumulativeOverage); err != nil {
		return p, treatDays, fmt.Errorf("persist overage for period %d: %w", p.ID, err)
	}
	return p, treatDays, nil
}

// reconcile recomputes a period's cumulative overage from scratch through the
// given date. Idempotent: repeated calls with unchanged logs give the same value.
func (s *budgetService) reconcile(ctx context.Context, userID, periodID int, through time.Time) (weeklyPeriod, error) {
	p, err := s.store.getPeriod(ctx, userID, periodID)
	if err != nil {
		return weeklyPeriod{}, err
	}
	p, _, err = s.reconcilePeriod(ctx, p, through, true)
	return p, err
}

// fallbackBudget is the static budget served when no period covers a date.
func (s *budgetService) fallbackBudget(date time.Time) adjustedBudget {
	return adjustedBudget{
		Date:           DateOnly{truncateDay(date)},
		BaseBudget:     s.tuning.FallbackDailyBudget,
		AdjustedBudget: s.tuning.FallbackDailyBudget,
		Fallback:       true,
	}
}

// todaysBudget reconciles the period covering date and returns the adjusted
// budget for it. A date before today is computed as of that day but not
// stored, so viewing history never rolls back the period's overage. Never
// fails: without a period, or on store errors, it serves the static fallback
// so logging screens keep working.
func (s *budgetService) todaysBudget(ctx context.Context, userID int, date, today time.Time) adjustedBudget {
	period, err := s.findPeriodForDate(ctx, userID, date)
	if err != nil {
		log.Printf("[todaysBudget] period lookup failed for user %d: %v", userID, err)
		return s.fallbackBudget(date)
	}
	if period == nil {
		return s.fallbackBudget(date)
	}

	persist := !truncateDay(date).Before(truncateDay(today))
	p, treatDays, err := s.reconcilePeriod(ctx, *period, date, persist)
	if err != nil {
		log.Printf("[todaysBudget] reconcile failed for user %d: %v", userID, err)
		if treatDays == nil {
			treatDays, err = s.store.listTreatDays(ctx, userID, truncateDay(period.StartDate.Time), truncateDay(period.EndDate.Time))
			if err != nil {
				log.Printf("[todaysBudget] treat days unavailable for user %d: %v", userID, err)
				return s.fallbackBudget(date)
			}
		}
		// The recomputed value was not persisted; use the last stored one.
		p = *period
	}

	prof, err := s.store.getProfile(ctx, userID)
	if err != nil {
		log.Printf("[todaysBudget] profile lookup failed for user %d: %v", userID, err)
		return s.fallbackBudget(date)
	}
	return computeAdjustedBudget(p, treatDays, date, profileFloor(prof))
}

// allowances builds the per-day budget index for [start, end]. Store failures
// degrade to an index that answers the fallback budget for every day.
func (s *budgetService) allowances(ctx context.Context, userID int, start, end time.Time) allowanceIndex {
	idx := allowanceIndex{treat: map[string]int{}, fallback: s.tuning.FallbackDailyBudget}

	var (
		periods   []weeklyPeriod
		treatDays []plannedTreatDay
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		periods, err = s.store.listPeriods(gctx, userID, truncateDay(start), truncateDay(end))
		return err
	})
	g.Go(func() error {
		var err error
		treatDays, err = s.store.listTreatDays(gctx, userID, truncateDay(start), truncateDay(end))
		return err
	})
	if err := g.Wait(); err != nil {
		log.Printf("[allowances] falling back for user %d: %v", userID, err)
		return idx
	}

	idx.periods = periods
	for _, t := range treatDays {
		idx.treat[t.Date.Format(dateLayout)] = t.PlannedCalories
	}
	return idx
}

// reconcileLoggedDates refreshes the stored overage of every period covering
// one of dates, through the given day. Called after calorie log writes; a
// failure is logged and left for the next reconcile to repair.
func (s *budgetService) reconcileLoggedDates(ctx context.Context, userID int, through time.Time, dates ...time.Time) {
	seen := map[int]bool{}
	for _, d := range dates {
		period, err := s.findPeriodForDate(ctx, userID, d)
		if err != nil {
			log.Printf("[reconcileLoggedDates] period lookup failed for user %d: %v", userID, err)
			continue
		}
		if period == nil || seen[period.ID] {
			continue
		}
		seen[period.ID] = true
		if truncateDay(through).Before(truncateDay(period.StartDate.Time)) {
			continue
		}
		if _, _, err := s.reconcilePeriod(ctx, *period, through, true); err != nil {
			log.Printf("[reconcileLoggedDates] user %d: %v", userID, err)
		}
	}
}
