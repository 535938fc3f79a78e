package main

const (
	goalLose     = "lose"
	goalMaintain = "maintain"
	goalGain     = "gain"

	genderMale   = "male"
	genderFemale = "female"
)

// validGoals and validGenders gate profile writes.
var (
	validGoals   = map[string]bool{goalLose: true, goalMaintain: true, goalGain: true}
	validGenders = map[string]bool{genderMale: true, genderFemale: true}
)

// comfortFloors holds the minimum daily allowance per goal: {male, female}.
var comfortFloors = map[string][2]int{
	goalLose:     {1500, 1300},
	goalMaintain: {1600, 1400},
	goalGain:     {1800, 1500},
}

// comfortFloor returns the lowest daily budget the engine will ever assign.
// Unknown goals use the maintain row; any gender other than female uses the
// male column.
func comfortFloor(goal, gender string) int {
	row, ok := comfortFloors[goal]
	if !ok {
		row = comfortFloors[goalMaintain]
	}
	if gender == genderFemale {
		return row[1]
	}
	return row[0]
}

// profileFloor is comfortFloor over a profile's nullable fields.
func profileFloor(p profile) int {
	return comfortFloor(deref(p.Goal), deref(p.Gender))
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
