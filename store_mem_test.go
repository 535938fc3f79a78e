package main

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory budgetStore for service tests. It enforces the same
// uniqueness rules as the SQL schema: one period per overlapping range and one
// treat day per (user, date).
type memStore struct {
	mu        sync.Mutex
	profiles  map[int]profile
	items     []calorieLogItem
	periods   []weeklyPeriod
	treatDays []plannedTreatDay
	nextID    int

	// Injected failures.
	errDaySummaries error
	errTreatDays    error
	errSetOverage   error
	errFindPeriod   error

	periodInserts int
	overageWrites int
}

func newMemStore() *memStore {
	return &memStore{profiles: map[int]profile{}}
}

// mustDate parses a YYYY-MM-DD literal; test inputs are constants.
func mustDate(s string) time.Time {
	d, err := parseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func within(d, start, end time.Time) bool {
	d = truncateDay(d)
	return !d.Before(start) && !d.After(end)
}

func (m *memStore) id() int {
	m.nextID++
	return m.nextID
}

/* ─── Seeding helpers ────────────────────────────────────────────────── */

func (m *memStore) putProfile(p profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p
}

// logDay logs one food item of consumed calories on date, plus an exercise
// item when burned is positive. Returns the food item.
func (m *memStore) logDay(userID int, date string, consumed, burned int) calorieLogItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := DateOnly{mustDate(date)}
	food := calorieLogItem{ID: m.id(), UserID: userID, Date: d, ItemName: "meal", Type: "dinner", Calories: consumed}
	m.items = append(m.items, food)
	if burned > 0 {
		m.items = append(m.items, calorieLogItem{ID: m.id(), UserID: userID, Date: d, ItemName: "workout", Type: "exercise", Calories: burned})
	}
	return food
}

func (m *memStore) putPeriod(p weeklyPeriod) weeklyPeriod {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.id()
	m.periods = append(m.periods, p)
	return p
}

func (m *memStore) putTreatDay(userID int, date string, calories int) plannedTreatDay {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := plannedTreatDay{ID: m.id(), UserID: userID, Date: DateOnly{mustDate(date)}, PlannedCalories: calories}
	m.treatDays = append(m.treatDays, t)
	return t
}

/* ─── budgetStore ────────────────────────────────────────────────────── */

func (m *memStore) getProfile(_ context.Context, userID int) (profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return profile{}, errNotFound
	}
	return p, nil
}

func (m *memStore) updateProfile(_ context.Context, userID int, patch patchProfileRequest) (profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return profile{}, errNotFound
	}
	if patch.Gender != nil {
		p.Gender = patch.Gender
	}
	if patch.Goal != nil {
		p.Goal = patch.Goal
	}
	if patch.ActivityLevel != nil {
		p.ActivityLevel = patch.ActivityLevel
	}
	if patch.BMR != nil {
		p.BMR = patch.BMR
	}
	if patch.DeficitTarget != nil {
		p.DeficitTarget = patch.DeficitTarget
	}
	if patch.DateOfBirth != nil {
		p.DateOfBirth = &DateOnly{mustDate(*patch.DateOfBirth)}
	}
	if patch.HeightCM != nil {
		p.HeightCM = patch.HeightCM
	}
	if patch.WeightLBS != nil {
		p.WeightLBS = patch.WeightLBS
	}
	if patch.BaselineStartDate != nil {
		p.BaselineStartDate = &DateOnly{mustDate(*patch.BaselineStartDate)}
	}
	m.profiles[userID] = p
	return p, nil
}

func (m *memStore) saveBaseline(_ context.Context, userID int, r baselineResult, completedAt time.Time) (profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return profile{}, errNotFound
	}
	if p.BaselineCompletedAt != nil {
		return profile{}, errBaselineAlreadyComplete
	}
	if r.Mode == baselineMeasured {
		avg, ex := r.AvgDailyIntake, r.TotalExercise
		p.BaselineAvgIntake, p.BaselineTotalExercise = &avg, &ex
	} else {
		p.BaselineAvgIntake, p.BaselineTotalExercise = nil, nil
	}
	level, factor, formula, final := r.ActivityLevel, r.ActivityFactor, r.FormulaTDEE, r.FinalTDEE
	target, weekly, mode := r.DailyTarget, r.WeeklyBudget, r.Mode
	p.ActualActivityLevel, p.ActivityFactor = &level, &factor
	p.FormulaTDEE, p.FinalTDEE = &formula, &final
	p.DailyTarget, p.WeeklyBudget, p.BaselineMode = &target, &weekly, &mode
	p.BaselineCompletedAt = &completedAt
	m.profiles[userID] = p
	return p, nil
}

func (m *memStore) restartBaseline(_ context.Context, userID int, start time.Time) (profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[userID]
	if !ok {
		return profile{}, errNotFound
	}
	p.BaselineCompletedAt, p.BaselineMode = nil, nil
	p.BaselineStartDate = &DateOnly{start}
	m.profiles[userID] = p
	return p, nil
}

func (m *memStore) listBudgetedUserIDs(_ context.Context) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int
	for id, p := range m.profiles {
		if p.WeeklyBudget != nil {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// totals groups the user's items in [start, end] by date, oldest first.
func (m *memStore) totals(userID int, start, end time.Time) []dayTotals {
	byDate := map[string][]calorieLogItem{}
	for _, it := range m.items {
		if it.UserID == userID && within(it.Date.Time, start, end) {
			key := it.Date.Format(dateLayout)
			byDate[key] = append(byDate[key], it)
		}
	}
	out := make([]dayTotals, 0, len(byDate))
	for key, items := range byDate {
		out = append(out, sumItems(mustDate(key), items))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}

func (m *memStore) listDaySummaries(_ context.Context, userID int, start, end time.Time) ([]daySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errDaySummaries != nil {
		return nil, m.errDaySummaries
	}
	var out []daySummary
	for _, t := range m.totals(userID, start, end) {
		out = append(out, daySummary{Date: t.Date, Consumed: t.CaloriesFood, Burned: t.CaloriesExercise})
	}
	return out, nil
}

func (m *memStore) overlapping(userID int, start, end time.Time) *weeklyPeriod {
	var found *weeklyPeriod
	for i := range m.periods {
		p := m.periods[i]
		if p.UserID != userID || p.StartDate.After(end) || p.EndDate.Before(start) {
			continue
		}
		if found == nil || p.StartDate.Before(found.StartDate.Time) {
			found = &p
		}
	}
	return found
}

func (m *memStore) findOverlappingPeriod(_ context.Context, userID int, start, end time.Time) (*weeklyPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errFindPeriod != nil {
		return nil, m.errFindPeriod
	}
	return m.overlapping(userID, start, end), nil
}

func (m *memStore) insertPeriod(_ context.Context, p weeklyPeriod) (weeklyPeriod, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing := m.overlapping(p.UserID, p.StartDate.Time, p.EndDate.Time); existing != nil {
		return *existing, false, nil
	}
	p.ID = m.id()
	m.periods = append(m.periods, p)
	m.periodInserts++
	return p, true, nil
}

func (m *memStore) getPeriod(_ context.Context, userID, periodID int) (weeklyPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.periods {
		if p.ID == periodID && p.UserID == userID {
			return p, nil
		}
	}
	return weeklyPeriod{}, errNotFound
}

func (m *memStore) listPeriods(_ context.Context, userID int, start, end time.Time) ([]weeklyPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []weeklyPeriod
	for _, p := range m.periods {
		if p.UserID == userID && !p.StartDate.After(end) && !p.EndDate.Before(start) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate.Time) })
	return out, nil
}

func (m *memStore) setCumulativeOverage(_ context.Context, periodID, overage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errSetOverage != nil {
		return m.errSetOverage
	}
	for i := range m.periods {
		if m.periods[i].ID == periodID {
			m.periods[i].CumulativeOverage = overage
			m.overageWrites++
			return nil
		}
	}
	return errNotFound
}

func (m *memStore) listTreatDays(_ context.Context, userID int, start, end time.Time) ([]plannedTreatDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errTreatDays != nil {
		return nil, m.errTreatDays
	}
	var out []plannedTreatDay
	for _, t := range m.treatDays {
		if t.UserID == userID && within(t.Date.Time, start, end) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out, nil
}

func (m *memStore) getTreatDay(_ context.Context, userID, id int) (plannedTreatDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.treatDays {
		if t.ID == id && t.UserID == userID {
			return t, nil
		}
	}
	return plannedTreatDay{}, errNotFound
}

func (m *memStore) getTreatDayByDate(_ context.Context, userID int, date time.Time) (*plannedTreatDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.treatDays {
		if t.UserID == userID && t.Date.Equal(date) {
			return &t, nil
		}
	}
	return nil, nil
}

func (m *memStore) upsertTreatDay(_ context.Context, t plannedTreatDay) (plannedTreatDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.treatDays {
		if existing.UserID == t.UserID && existing.Date.Equal(t.Date.Time) {
			t.ID = existing.ID
			m.treatDays[i] = t
			return t, nil
		}
	}
	t.ID = m.id()
	m.treatDays = append(m.treatDays, t)
	return t, nil
}

func (m *memStore) updateTreatDay(_ context.Context, t plannedTreatDay) (plannedTreatDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i, existing := range m.treatDays {
		if existing.UserID == t.UserID && existing.Date.Equal(t.Date.Time) && existing.ID != t.ID {
			return plannedTreatDay{}, errDateConflict
		}
		if existing.ID == t.ID && existing.UserID == t.UserID {
			idx = i
		}
	}
	if idx < 0 {
		return plannedTreatDay{}, errNotFound
	}
	m.treatDays[idx] = t
	return t, nil
}

func (m *memStore) deleteTreatDay(_ context.Context, userID, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.treatDays {
		if t.ID == id && t.UserID == userID {
			m.treatDays = append(m.treatDays[:i], m.treatDays[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

/* ─── Service fixtures ───────────────────────────────────────────────── */

var fixedNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

// newTestService wires a budgetService to a fresh memStore with default tuning
// and a fixed clock.
func newTestService() (*budgetService, *memStore) {
	store := newMemStore()
	svc := newBudgetService(store, defaultTuning())
	svc.now = func() time.Time { return fixedNow }
	return svc, store
}

func ptr[T any](v T) *T {
	return &v
}

// onboardedProfile returns a profile with every onboarding field the baseline
// needs. Tests nil out or override fields as required.
func onboardedProfile(userID, bmr, deficit int, gender, goal, activity string) profile {
	return profile{
		UserID:        userID,
		Gender:        &gender,
		Goal:          &goal,
		ActivityLevel: &activity,
		BMR:           &bmr,
		DeficitTarget: &deficit,
	}
}

// budgetedProfile returns an onboarded profile with a completed baseline at
// the given weekly budget.
func budgetedProfile(userID, weekly int, gender, goal string) profile {
	p := onboardedProfile(userID, 1600, 500, gender, goal, activitySedentary)
	daily, mode := weekly/7, baselineEstimated
	p.DailyTarget, p.WeeklyBudget, p.BaselineMode = &daily, &weekly, &mode
	p.BaselineCompletedAt = ptr(fixedNow)
	return p
}

// periodFor returns an unsaved period for the week containing date.
func periodFor(userID int, date string, weekly int) weeklyPeriod {
	monday, sunday := weekBounds(mustDate(date))
	return weeklyPeriod{
		UserID:               userID,
		StartDate:            DateOnly{monday},
		EndDate:              DateOnly{sunday},
		WeeklyBudget:         weekly,
		BaselineAverageDaily: weekly / 7,
	}
}

/* ─── logStore ───────────────────────────────────────────────────────── */

func (m *memStore) listLogItems(_ context.Context, userID int, date time.Time) ([]calorieLogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []calorieLogItem
	for _, it := range m.items {
		if it.UserID == userID && it.Date.Equal(truncateDay(date)) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *memStore) listDayTotals(_ context.Context, userID int, start, end time.Time) ([]dayTotals, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errDaySummaries != nil {
		return nil, m.errDaySummaries
	}
	return m.totals(userID, start, end), nil
}

func (m *memStore) earliestLogDate(_ context.Context, userID int) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var earliest *time.Time
	for _, it := range m.items {
		if it.UserID == userID && (earliest == nil || it.Date.Before(*earliest)) {
			d := it.Date.Time
			earliest = &d
		}
	}
	return earliest, nil
}

func (m *memStore) insertLogItem(_ context.Context, item calorieLogItem) (calorieLogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = m.id()
	m.items = append(m.items, item)
	return item, nil
}

func (m *memStore) updateLogItem(_ context.Context, userID, id int, patch updateCalorieLogItemRequest) (calorieLogItem, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, it := range m.items {
		if it.ID != id || it.UserID != userID {
			continue
		}
		oldDate := it.Date.Time
		if patch.Date != nil {
			it.Date = DateOnly{mustDate(*patch.Date)}
		}
		if patch.ItemName != nil {
			it.ItemName = *patch.ItemName
		}
		if patch.Type != nil {
			it.Type = *patch.Type
		}
		if patch.Calories != nil {
			it.Calories = *patch.Calories
		}
		if patch.Qty != nil {
			it.Qty = patch.Qty
		}
		if patch.Uom != nil {
			it.Uom = patch.Uom
		}
		if patch.ProteinG != nil {
			it.ProteinG = patch.ProteinG
		}
		if patch.CarbsG != nil {
			it.CarbsG = patch.CarbsG
		}
		if patch.FatG != nil {
			it.FatG = patch.FatG
		}
		m.items[i] = it
		return it, oldDate, nil
	}
	return calorieLogItem{}, time.Time{}, errNotFound
}

func (m *memStore) deleteLogItem(_ context.Context, userID, id int) (calorieLogItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, it := range m.items {
		if it.ID == id && it.UserID == userID {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return it, nil
		}
	}
	return calorieLogItem{}, errNotFound
}
