package main

// Activity tiers, lowest first.
const (
	activitySedentary        = "sedentary"
	activityLightlyActive    = "lightly_active"
	activityModeratelyActive = "moderately_active"
	activityVeryActive       = "very_active"
)

// activityTiers lists the tiers in ascending order; classifyActivity indexes it.
var activityTiers = []string{
	activitySedentary,
	activityLightlyActive,
	activityModeratelyActive,
	activityVeryActive,
}

// activityMultipliers maps activity level strings to their TDEE multiplier.
// Its keys are the valid activity levels; profile validation checks them here.
var activityMultipliers = map[string]float64{
	activitySedentary:        1.2,
	activityLightlyActive:    1.375,
	activityModeratelyActive: 1.55,
	activityVeryActive:       1.725,
}

// classifyActivity maps total exercise calories over a window to an activity
// tier. thresholds are the exclusive upper bounds of every tier but the last,
// e.g. [500, 1200, 2000]: <500 sedentary, <1200 lightly active, <2000
// moderately active, else very active.
func classifyActivity(thresholds []int, totalExercise int) (level string, factor float64) {
	tier := 0
	for tier < len(thresholds) && tier < len(activityTiers)-1 && totalExercise >= thresholds[tier] {
		tier++
	}
	level = activityTiers[tier]
	return level, activityMultipliers[level]
}
