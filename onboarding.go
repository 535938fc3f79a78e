package main

import (
	"context"
	"errors"
	"log"
	"math"
	"time"
)

// computeBMR estimates BMR with Mifflin-St Jeor from the profile's body stats.
// Returns ok=false when any required field is nil or the age derived from
// date of birth is implausible.
func computeBMR(p *profile, today time.Time) (bmr int, ok bool) {
	if p.Gender == nil || p.DateOfBirth == nil || p.HeightCM == nil || p.WeightLBS == nil {
		return 0, false
	}

	// Age derived from date of birth
	age := today.Year() - p.DateOfBirth.Year()
	if today.Before(p.DateOfBirth.AddDate(age, 0, 0)) {
		age--
	}
	// Guard against implausible ages (e.g. DOB in the future, or over 130 years ago)
	if age < 0 || age > 130 {
		return 0, false
	}

	// BMR via Mifflin-St Jeor: different constant for male vs female
	weightKG := *p.WeightLBS / 2.20462
	bmrF := 10*weightKG + 6.25**p.HeightCM - 5*float64(age)
	if *p.Gender == genderMale {
		bmrF += 5
	} else {
		bmrF -= 161
	}
	return int(math.Round(bmrF)), true
}

// populateComputed fills the computed-only fields on p: the Mifflin-St Jeor BMR
// from body stats, and the TDEE implied by the reported activity level (using
// the stored BMR when there is one).
func populateComputed(p *profile, today time.Time) {
	if bmr, ok := computeBMR(p, today); ok {
		p.ComputedBMR = &bmr
	}
	base := p.BMR
	if base == nil {
		base = p.ComputedBMR
	}
	if base == nil || p.ActivityLevel == nil {
		return
	}
	if mult, ok := activityMultipliers[*p.ActivityLevel]; ok {
		tdee := roundInt(float64(*base) * mult)
		p.ReportedTDEE = &tdee
	}
}

// validateProfilePatch rejects values that would silently break later baseline
// and comfort floor lookups.
func validateProfilePatch(p patchProfileRequest) error {
	if p.ActivityLevel != nil {
		if _, ok := activityMultipliers[*p.ActivityLevel]; !ok {
			return errors.New("activity_level must be one of: sedentary, lightly_active, moderately_active, very_active")
		}
	}
	if p.Goal != nil && !validGoals[*p.Goal] {
		return errors.New("goal must be one of: lose, maintain, gain")
	}
	if p.Gender != nil && !validGenders[*p.Gender] {
		return errors.New("gender must be one of: male, female")
	}
	if p.BMR != nil && (*p.BMR <= 0 || *p.BMR > 5000) {
		return errors.New("bmr must be between 1 and 5000")
	}
	if p.DeficitTarget != nil && (*p.DeficitTarget < -2000 || *p.DeficitTarget > 2000) {
		return errors.New("deficit_target must be between -2000 and 2000")
	}
	if p.HeightCM != nil && *p.HeightCM <= 0 {
		return errors.New("height_cm must be positive")
	}
	if p.WeightLBS != nil && *p.WeightLBS <= 0 {
		return errors.New("weight_lbs must be positive")
	}
	if p.DateOfBirth != nil {
		if _, err := parseDate(*p.DateOfBirth); err != nil {
			return errors.New("invalid date_of_birth, expected YYYY-MM-DD")
		}
	}
	if p.BaselineStartDate != nil {
		if _, err := parseDate(*p.BaselineStartDate); err != nil {
			return errors.New("invalid baseline_start_date, expected YYYY-MM-DD")
		}
	}
	return nil
}

// profileView loads the profile with its computed fields filled in.
func (s *budgetService) profileView(ctx context.Context, userID int, today time.Time) (profile, error) {
	p, err := s.store.getProfile(ctx, userID)
	if err != nil {
		return profile{}, err
	}
	populateComputed(&p, today)
	return p, nil
}

// updateOnboarding saves the patch. When the profile still has no BMR and
// its body stats allow it, the Mifflin-St Jeor estimate is stored as well.
func (s *budgetService) updateOnboarding(ctx context.Context, userID int, patch patchProfileRequest, today time.Time) (profile, error) {
	p, err := s.store.updateProfile(ctx, userID, patch)
	if err != nil {
		return profile{}, err
	}
	if p.BMR == nil {
		if bmr, ok := computeBMR(&p, today); ok {
			seeded, err := s.store.updateProfile(ctx, userID, patchProfileRequest{BMR: &bmr})
			if err != nil {
				log.Printf("[updateOnboarding] BMR seed failed for user %d: %v", userID, err)
			} else {
				p = seeded
			}
		}
	}
	populateComputed(&p, today)
	return p, nil
}
