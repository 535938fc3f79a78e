package main

import (
	"context"
	"errors"
	"math"
	"testing"
)

// treats builds sibling treat days from planned amounts.
func treats(calories ...int) []plannedTreatDay {
	out := make([]plannedTreatDay, len(calories))
	for i, c := range calories {
		out[i] = plannedTreatDay{ID: i + 1, PlannedCalories: c}
	}
	return out
}

/* ─── recommendTreatDay ──────────────────────────────────────────────── */

// TestRecommendTreatDay_TooMany verifies that a week whose remaining room
// would only allow a treat day at the daily base is rejected. 10500/week with
// a 1500 floor leaves exactly 1500 for the candidate.
func TestRecommendTreatDay_TooMany(t *testing.T) {
	rec, err := recommendTreatDay(10500, nil, 1500)
	if !errors.Is(err, errTooManyTreatDays) {
		t.Fatalf("expected errTooManyTreatDays, got %v", err)
	}
	if rec.MaxSafe != 1500 || rec.DailyBase != 1500 {
		t.Errorf("rec = %+v, want max_safe 1500, daily_base 1500", rec)
	}
}

func TestRecommendTreatDay_Uncapped(t *testing.T) {
	rec, err := recommendTreatDay(14000, nil, 1400)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Light != 2600 || rec.Moderate != 3000 || rec.Celebration != 3500 {
		t.Errorf("tiers = %d/%d/%d, want 2600/3000/3500", rec.Light, rec.Moderate, rec.Celebration)
	}
	if rec.MaxSafe != 5600 {
		t.Errorf("MaxSafe = %d, want 5600", rec.MaxSafe)
	}
}

// TestRecommendTreatDay_Capped verifies the tiers are rescaled to the safe
// maximum when the celebration multiplier would exceed it.
func TestRecommendTreatDay_Capped(t *testing.T) {
	rec, err := recommendTreatDay(12600, nil, 1600)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// base 1800, max safe 3000; 1.75x = 3150 is over
	if rec.Light != 2100 || rec.Moderate != 2550 || rec.Celebration != 3000 {
		t.Errorf("tiers = %d/%d/%d, want 2100/2550/3000", rec.Light, rec.Moderate, rec.Celebration)
	}
}

// TestRecommendTreatDay_GapEnforced verifies lower tiers are pulled down to
// keep neighbours at least minTierGap apart.
func TestRecommendTreatDay_GapEnforced(t *testing.T) {
	rec, err := recommendTreatDay(6300, treats(500, 500, 500, 500, 500), 1300)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// base 900: raw tiers 1170/1350/1575, the first gap is only 180
	if rec.Light != 1150 || rec.Moderate != 1350 || rec.Celebration != 1575 {
		t.Errorf("tiers = %d/%d/%d, want 1150/1350/1575", rec.Light, rec.Moderate, rec.Celebration)
	}
	if rec.OtherTreatDays != 5 {
		t.Errorf("OtherTreatDays = %d, want 5", rec.OtherTreatDays)
	}
}

// TestRecommendTreatDay_Properties sweeps budgets, floors and sibling counts
// and checks ordering, spacing and the safe maximum on every success.
func TestRecommendTreatDay_Properties(t *testing.T) {
	for weekly := 8400; weekly <= 21000; weekly += 700 {
		for _, floor := range []int{1300, 1400, 1500, 1600, 1800} {
			for n := 0; n <= 3; n++ {
				others := make([]int, n)
				for i := range others {
					others[i] = weekly / 7
				}
				rec, err := recommendTreatDay(weekly, treats(others...), floor)
				if errors.Is(err, errTooManyTreatDays) {
					if float64(rec.MaxSafe) > float64(weekly)/7 {
						t.Errorf("weekly %d floor %d n %d: rejected with max_safe %d above base", weekly, floor, n, rec.MaxSafe)
					}
					continue
				}
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if rec.Moderate-rec.Light < minTierGap || rec.Celebration-rec.Moderate < minTierGap {
					t.Errorf("weekly %d floor %d n %d: tiers too close %+v", weekly, floor, n, rec)
				}
				if rec.Celebration > rec.MaxSafe {
					t.Errorf("weekly %d floor %d n %d: celebration %d above max safe %d", weekly, floor, n, rec.Celebration, rec.MaxSafe)
				}
			}
		}
	}
}

/* ─── validateTreatDay ───────────────────────────────────────────────── */

func TestValidateTreatDay(t *testing.T) {
	cases := []struct {
		name        string
		planned     int
		weekly      int
		others      []plannedTreatDay
		floor       int
		wantStatus  string
		wantAverage float64
	}{
		{"safe", 2200, 14000, nil, 1400, treatSafe, 11800.0 / 6},
		{"challenging", 5000, 14000, nil, 1400, treatChallenging, 1500},
		{"challenging lower edge", 5600, 14000, nil, 1400, treatChallenging, 1400},
		{"unsafe", 6000, 14000, nil, 1400, treatUnsafe, 8000.0 / 6},
		{"with siblings", 2500, 14000, treats(2500), 1400, treatSafe, 9000.0 / 5},
		{"no regular days", 1000, 14000, treats(1, 1, 1, 1, 1, 1), 1400, treatUnsafe, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := validateTreatDay(tc.planned, tc.weekly, tc.others, tc.floor)
			if v.Status != tc.wantStatus {
				t.Errorf("Status = %s, want %s", v.Status, tc.wantStatus)
			}
			if math.Abs(v.OtherDaysAverage-tc.wantAverage) > 0.01 {
				t.Errorf("OtherDaysAverage = %.2f, want %.2f", v.OtherDaysAverage, tc.wantAverage)
			}
			if (v.Status == treatUnsafe) != (v.SuggestedMax != nil) {
				t.Errorf("SuggestedMax = %v for status %s", v.SuggestedMax, v.Status)
			}
		})
	}
}

func TestValidateTreatDay_SuggestedMax(t *testing.T) {
	v := validateTreatDay(6000, 14000, nil, 1400)
	if v.SuggestedMax == nil || *v.SuggestedMax != 5600 {
		t.Fatalf("SuggestedMax = %v, want 5600", v.SuggestedMax)
	}
	// The suggestion itself passes.
	if again := validateTreatDay(*v.SuggestedMax, 14000, nil, 1400); again.Status == treatUnsafe {
		t.Errorf("suggested max %d is itself unsafe", *v.SuggestedMax)
	}
	if v.TotalReserved != 6000 || v.RegularDaysCount != 6 {
		t.Errorf("reserved/regular = %d/%d, want 6000/6", v.TotalReserved, v.RegularDaysCount)
	}
}

/* ─── saveTreatDay ───────────────────────────────────────────────────── */

// newTreatDayService returns a service whose user 1 has a 14000 kcal week and
// a 1400 floor (maintain, female).
func newTreatDayService() (*budgetService, *memStore) {
	svc, store := newTestService()
	store.putProfile(budgetedProfile(1, 14000, genderFemale, goalMaintain))
	return svc, store
}

func TestSaveTreatDay_Create(t *testing.T) {
	svc, store := newTreatDayService()
	note := "birthday"
	out, err := svc.saveTreatDay(context.Background(), 1,
		treatDayInput{Date: mustDate("2026-10-24"), Calories: 2200, Note: &note}, mustDate("2026-10-19"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.TreatDay == nil || out.TreatDay.ID == 0 || out.TreatDay.PlannedCalories != 2200 {
		t.Fatalf("TreatDay = %+v, want saved 2200", out.TreatDay)
	}
	if out.Validation.Status != treatSafe {
		t.Errorf("Status = %s, want safe", out.Validation.Status)
	}
	if len(store.treatDays) != 1 || deref(store.treatDays[0].Note) != "birthday" {
		t.Errorf("stored = %+v", store.treatDays)
	}
}

func TestSaveTreatDay_Challenging(t *testing.T) {
	svc, store := newTreatDayService()
	out, err := svc.saveTreatDay(context.Background(), 1,
		treatDayInput{Date: mustDate("2026-10-24"), Calories: 5000}, mustDate("2026-10-19"))
	if err != nil {
		t.Fatalf("challenging amounts are saved, got %v", err)
	}
	if out.Validation.Status != treatChallenging || len(store.treatDays) != 1 {
		t.Errorf("status %s, stored %d; want challenging, 1", out.Validation.Status, len(store.treatDays))
	}
}

// TestSaveTreatDay_UnsafeWritesNothing verifies an unsafe amount is rejected
// with a suggested maximum and leaves the store untouched.
func TestSaveTreatDay_UnsafeWritesNothing(t *testing.T) {
	svc, store := newTreatDayService()
	out, err := svc.saveTreatDay(context.Background(), 1,
		treatDayInput{Date: mustDate("2026-10-24"), Calories: 6000}, mustDate("2026-10-19"))
	if !errors.Is(err, errUnsafe) {
		t.Fatalf("expected errUnsafe, got %v", err)
	}
	be, ok := asBudgetError(err)
	if !ok || be.SuggestedMax == nil || *be.SuggestedMax != 5600 {
		t.Errorf("error = %+v, want suggested max 5600", be)
	}
	if out.TreatDay != nil || len(store.treatDays) != 0 {
		t.Errorf("nothing should be written, got %+v / %d rows", out.TreatDay, len(store.treatDays))
	}
}

func TestSaveTreatDay_BelowFloor(t *testing.T) {
	svc, store := newTreatDayService()
	_, err := svc.saveTreatDay(context.Background(), 1,
		treatDayInput{Date: mustDate("2026-10-24"), Calories: 1200}, mustDate("2026-10-19"))
	if !errors.Is(err, errBelowFloor) {
		t.Fatalf("expected errBelowFloor, got %v", err)
	}
	if len(store.treatDays) != 0 {
		t.Errorf("nothing should be written, got %d rows", len(store.treatDays))
	}

	// The floor itself is allowed.
	if _, err := svc.saveTreatDay(context.Background(), 1,
		treatDayInput{Date: mustDate("2026-10-24"), Calories: 1400}, mustDate("2026-10-19")); err != nil {
		t.Errorf("amount at the floor: unexpected error %v", err)
	}
	if _, err := svc.validateTreatDayFor(context.Background(), 1, mustDate("2026-10-25"), 1399, 0); !errors.Is(err, errBelowFloor) {
		t.Errorf("preview: expected errBelowFloor, got %v", err)
	}
}

func TestSaveTreatDay_PastDate(t *testing.T) {
	svc, store := newTreatDayService()
	_, err := svc.saveTreatDay(context.Background(), 1,
		treatDayInput{Date: mustDate("2026-10-18"), Calories: 2000}, mustDate("2026-10-19"))
	if !errors.Is(err, errPastDate) {
		t.Fatalf("expected errPastDate, got %v", err)
	}
	if len(store.treatDays) != 0 {
		t.Errorf("nothing should be written")
	}

	// Today itself is allowed.
	if _, err := svc.saveTreatDay(context.Background(), 1,
		treatDayInput{Date: mustDate("2026-10-19"), Calories: 2000}, mustDate("2026-10-19")); err != nil {
		t.Errorf("today should be accepted, got %v", err)
	}
}

// TestSaveTreatDay_CreateReplacesSameDate verifies creating on a date that
// already has a treat day replaces it rather than adding a second row.
func TestSaveTreatDay_CreateReplacesSameDate(t *testing.T) {
	svc, store := newTreatDayService()
	first, err := svc.saveTreatDay(context.Background(), 1,
		treatDayInput{Date: mustDate("2026-10-24"), Calories: 2200}, mustDate("2026-10-19"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.saveTreatDay(context.Background(), 1,
		treatDayInput{Date: mustDate("2026-10-24"), Calories: 5500}, mustDate("2026-10-19"))
	if err != nil {
		t.Fatalf("replacement should validate without counting the old amount, got %v", err)
	}
	if second.TreatDay.ID != first.TreatDay.ID || len(store.treatDays) != 1 {
		t.Errorf("expected in-place replacement, got ids %d/%d and %d rows", first.TreatDay.ID, second.TreatDay.ID, len(store.treatDays))
	}
	if store.treatDays[0].PlannedCalories != 5500 {
		t.Errorf("PlannedCalories = %d, want 5500", store.treatDays[0].PlannedCalories)
	}
}

func TestSaveTreatDay_EditDateConflict(t *testing.T) {
	svc, store := newTreatDayService()
	a := store.putTreatDay(1, "2026-10-23", 2200)
	store.putTreatDay(1, "2026-10-24", 2200)

	_, err := svc.saveTreatDay(context.Background(), 1,
		treatDayInput{ID: a.ID, Date: mustDate("2026-10-24"), Calories: 2200}, mustDate("2026-10-19"))
	if !errors.Is(err, errDateConflict) {
		t.Fatalf("expected errDateConflict, got %v", err)
	}
	got, _ := store.getTreatDay(context.Background(), 1, a.ID)
	if got.Date.Format(dateLayout) != "2026-10-23" {
		t.Errorf("treat day moved to %s despite conflict", got.Date.Format(dateLayout))
	}
}

// TestSaveTreatDay_EditExcludesSelf verifies the edited treat day's own old
// amount is not counted against its new amount.
func TestSaveTreatDay_EditExcludesSelf(t *testing.T) {
	svc, store := newTreatDayService()
	a := store.putTreatDay(1, "2026-10-23", 5000)

	out, err := svc.saveTreatDay(context.Background(), 1,
		treatDayInput{ID: a.ID, Date: mustDate("2026-10-25"), Calories: 5000, Completed: ptr(true)}, mustDate("2026-10-19"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Validation.RegularDaysCount != 6 || out.Validation.TotalReserved != 5000 {
		t.Errorf("validation = %+v, want the edited day excluded", out.Validation)
	}
	got, _ := store.getTreatDay(context.Background(), 1, a.ID)
	if got.Date.Format(dateLayout) != "2026-10-25" || !got.Completed {
		t.Errorf("stored = %+v, want moved to 2026-10-25 and completed", got)
	}
}

func TestSaveTreatDay_EditUnknown(t *testing.T) {
	svc, _ := newTreatDayService()
	_, err := svc.saveTreatDay(context.Background(), 1,
		treatDayInput{ID: 42, Date: mustDate("2026-10-24"), Calories: 2000}, mustDate("2026-10-19"))
	if !errors.Is(err, errNotFound) {
		t.Errorf("expected errNotFound, got %v", err)
	}
}

/* ─── Budget source ──────────────────────────────────────────────────── */

// TestValidateTreatDayFor_PeriodBudgetWins verifies the frozen period budget
// is used over the profile's current one.
func TestValidateTreatDayFor_PeriodBudgetWins(t *testing.T) {
	svc, store := newTreatDayService()
	store.putPeriod(periodFor(1, "2026-10-19", 10500))

	v, err := svc.validateTreatDayFor(context.Background(), 1, mustDate("2026-10-24"), 2200, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// (10500 - 2200) / 6 = 1383 < 1400
	if v.Status != treatUnsafe {
		t.Errorf("Status = %s, want unsafe against the 10500 period", v.Status)
	}

	// The next week has no period yet, so the profile's 14000 applies.
	v, err = svc.validateTreatDayFor(context.Background(), 1, mustDate("2026-10-31"), 2200, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Status != treatSafe {
		t.Errorf("Status = %s, want safe against the 14000 profile budget", v.Status)
	}
}

func TestValidateTreatDayFor_NoBaseline(t *testing.T) {
	svc, store := newTestService()
	store.putProfile(onboardedProfile(1, 1600, 500, genderMale, goalLose, activitySedentary))
	_, err := svc.validateTreatDayFor(context.Background(), 1, mustDate("2026-10-24"), 2200, 0)
	if !errors.Is(err, errNoBaselineData) {
		t.Errorf("expected errNoBaselineData, got %v", err)
	}
}

// TestLoadTreatWeek_SiblingsScopedToWeek verifies only treat days in the
// candidate's Monday..Sunday week count as siblings.
func TestLoadTreatWeek_SiblingsScopedToWeek(t *testing.T) {
	svc, store := newTreatDayService()
	store.putTreatDay(1, "2026-10-18", 3000) // previous week
	store.putTreatDay(1, "2026-10-20", 3000)
	store.putTreatDay(1, "2026-10-24", 3000) // candidate date itself
	store.putTreatDay(1, "2026-10-26", 3000) // next week
	store.putTreatDay(2, "2026-10-21", 3000) // another user

	w, err := svc.loadTreatWeek(context.Background(), 1, mustDate("2026-10-24"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.Others) != 1 || w.Others[0].Date.Format(dateLayout) != "2026-10-20" {
		t.Errorf("Others = %+v, want only 2026-10-20", w.Others)
	}
	if w.WeeklyBudget != 14000 || w.Floor != 1400 {
		t.Errorf("week = %d/%d, want 14000/1400", w.WeeklyBudget, w.Floor)
	}
}

func TestRecommendTreatDayFor(t *testing.T) {
	svc, store := newTreatDayService()
	existing := store.putTreatDay(1, "2026-10-20", 3000)

	rec, err := svc.recommendTreatDayFor(context.Background(), 1, mustDate("2026-10-24"), mustDate("2026-10-19"), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 14000 - 3000 - 5*1400 = 4000
	if rec.MaxSafe != 4000 || rec.OtherTreatDays != 1 {
		t.Errorf("rec = %+v, want max_safe 4000 with 1 sibling", rec)
	}

	rec, err = svc.recommendTreatDayFor(context.Background(), 1, mustDate("2026-10-24"), mustDate("2026-10-19"), existing.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.MaxSafe != 5600 || rec.OtherTreatDays != 0 {
		t.Errorf("editing rec = %+v, want max_safe 5600 with no siblings", rec)
	}

	if _, err := svc.recommendTreatDayFor(context.Background(), 1, mustDate("2026-10-18"), mustDate("2026-10-19"), 0); !errors.Is(err, errPastDate) {
		t.Errorf("expected errPastDate, got %v", err)
	}
}

func TestDeleteTreatDay(t *testing.T) {
	svc, store := newTreatDayService()
	a := store.putTreatDay(1, "2026-10-10", 3000) // past dates can still be deleted

	if err := svc.deleteTreatDay(context.Background(), 2, a.ID); !errors.Is(err, errNotFound) {
		t.Errorf("another user's delete: expected errNotFound, got %v", err)
	}
	if err := svc.deleteTreatDay(context.Background(), 1, a.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.treatDays) != 0 {
		t.Errorf("treat day not removed")
	}
	if err := svc.deleteTreatDay(context.Background(), 1, a.ID); !errors.Is(err, errNotFound) {
		t.Errorf("second delete: expected errNotFound, got %v", err)
	}
}
