package main

import (
	"context"
	"log"
	"time"
)

// Outcomes of createPeriod.
const (
	reasonCreated        = "created"
	reasonAlreadyExists  = "already_exists"
	reasonNoBaselineData = "no_baseline_data"
)

// periodCreation is the createPeriod contract shared by the HTTP trigger, the
// rollover job and baseline completion.
type periodCreation struct {
	Reason   string `json:"reason"`
	PeriodID int    `json:"period_id,omitempty"`
}

// weekBounds returns the Monday and Sunday of the week containing date.
// Uses AddDate to safely handle month/year boundaries.
func weekBounds(date time.Time) (monday, sunday time.Time) {
	d := truncateDay(date)
	weekday := int(d.Weekday()) // 0=Sun
	if weekday == 0 {
		weekday = 7 // treat Sunday as day 7 so Mon=1..Sun=7
	}
	monday = d.AddDate(0, 0, -(weekday - 1))
	return monday, monday.AddDate(0, 0, 6)
}

// newPeriod builds the period row for the week starting at monday from the
// profile's baseline numbers. The informational baseline average falls back to
// the daily share of the weekly budget when no intake was measured.
func newPeriod(userID int, p profile, monday time.Time) (weeklyPeriod, error) {
	if p.WeeklyBudget == nil {
		return weeklyPeriod{}, errNoBaselineData
	}
	avg := *p.WeeklyBudget / 7
	if p.BaselineAvgIntake != nil {
		avg = *p.BaselineAvgIntake
	}
	return weeklyPeriod{
		UserID:               userID,
		StartDate:            DateOnly{monday},
		EndDate:              DateOnly{monday.AddDate(0, 0, 6)},
		WeeklyBudget:         *p.WeeklyBudget,
		BaselineAverageDaily: avg,
	}, nil
}

// createPeriod ensures a period exists for the week containing today. Safe to
// call repeatedly and concurrently: the store's uniqueness constraint decides
// the winner and losers read it back.
func (s *budgetService) createPeriod(ctx context.Context, userID int, today time.Time) (periodCreation, error) {
	monday, sunday := weekBounds(today)

	existing, err := s.store.findOverlappingPeriod(ctx, userID, monday, sunday)
	if err != nil {
		return periodCreation{}, err
	}
	if existing != nil {
		return periodCreation{Reason: reasonAlreadyExists, PeriodID: existing.ID}, nil
	}

	p, err := s.store.getProfile(ctx, userID)
	if err != nil {
		return periodCreation{}, err
	}
	row, err := newPeriod(userID, p, monday)
	if err != nil {
		return periodCreation{Reason: reasonNoBaselineData}, err
	}

	saved, created, err := s.store.insertPeriod(ctx, row)
	if err != nil {
		return periodCreation{}, err
	}
	if !created {
		return periodCreation{Reason: reasonAlreadyExists, PeriodID: saved.ID}, nil
	}
	log.Printf("[createPeriod] created period %d for user %d (%s to %s, budget %d)",
		saved.ID, userID, monday.Format(dateLayout), sunday.Format(dateLayout), saved.WeeklyBudget)
	return periodCreation{Reason: reasonCreated, PeriodID: saved.ID}, nil
}

// findPeriodForDate returns the period whose range contains date, or nil.
func (s *budgetService) findPeriodForDate(ctx context.Context, userID int, date time.Time) (*weeklyPeriod, error) {
	d := truncateDay(date)
	return s.store.findOverlappingPeriod(ctx, userID, d, d)
}

// listPeriods returns the periods overlapping [start, end], oldest first.
func (s *budgetService) listPeriods(ctx context.Context, userID int, start, end time.Time) ([]weeklyPeriod, error) {
	return s.store.listPeriods(ctx, userID, truncateDay(start), truncateDay(end))
}
