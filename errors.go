package main

import (
	"errors"
	"net/http"
)

// errorKind names a domain failure. Kinds are part of the JSON error shape so
// clients can branch on them (e.g. offer estimated completion on insufficient_data).
type errorKind string

const (
	kindInsufficientData        errorKind = "insufficient_data"
	kindMissingOnboardingData   errorKind = "missing_onboarding_data"
	kindNoBaselineData          errorKind = "no_baseline_data"
	kindTooManyTreatDays        errorKind = "too_many_treat_days"
	kindUnsafe                  errorKind = "unsafe"
	kindDateConflict            errorKind = "date_conflict"
	kindNotFound                errorKind = "not_found"
	kindBaselineAlreadyComplete errorKind = "baseline_already_complete"
	kindPastDate                errorKind = "past_date"
	kindBelowFloor              errorKind = "below_comfort_floor"
)

// budgetError is the single typed error for expected, user-correctable outcomes.
// SuggestedMax is only set for unsafe treat-day amounts.
type budgetError struct {
	Kind         errorKind
	Message      string
	SuggestedMax *int
}

func (e *budgetError) Error() string {
	return e.Message
}

// Is matches on Kind so wrapped or detail-carrying errors still satisfy
// errors.Is(err, errUnsafe).
func (e *budgetError) Is(target error) bool {
	t, ok := target.(*budgetError)
	return ok && t.Kind == e.Kind
}

var (
	errInsufficientData        = &budgetError{Kind: kindInsufficientData, Message: "not enough logged days to complete baseline"}
	errMissingOnboardingData   = &budgetError{Kind: kindMissingOnboardingData, Message: "onboarding data incomplete"}
	errNoBaselineData          = &budgetError{Kind: kindNoBaselineData, Message: "no weekly budget set, complete baseline first"}
	errTooManyTreatDays        = &budgetError{Kind: kindTooManyTreatDays, Message: "another treat day would push the rest of the week below the comfort floor"}
	errUnsafe                  = &budgetError{Kind: kindUnsafe, Message: "planned calories would push the rest of the week below the comfort floor"}
	errDateConflict            = &budgetError{Kind: kindDateConflict, Message: "a treat day already exists for that date"}
	errNotFound                = &budgetError{Kind: kindNotFound, Message: "not found"}
	errBaselineAlreadyComplete = &budgetError{Kind: kindBaselineAlreadyComplete, Message: "baseline already completed, restart it first"}
	errPastDate                = &budgetError{Kind: kindPastDate, Message: "date is in the past"}
	errBelowFloor              = &budgetError{Kind: kindBelowFloor, Message: "planned calories are below the comfort floor"}
)

// unsafeError returns an errUnsafe carrying the largest amount that would pass.
func unsafeError(suggestedMax int) *budgetError {
	return &budgetError{Kind: kindUnsafe, Message: errUnsafe.Message, SuggestedMax: &suggestedMax}
}

// statusForKind maps a domain error kind to its HTTP status.
var statusForKind = map[errorKind]int{
	kindInsufficientData:        http.StatusUnprocessableEntity,
	kindMissingOnboardingData:   http.StatusUnprocessableEntity,
	kindNoBaselineData:          http.StatusConflict,
	kindTooManyTreatDays:        http.StatusUnprocessableEntity,
	kindUnsafe:                  http.StatusUnprocessableEntity,
	kindDateConflict:            http.StatusConflict,
	kindNotFound:                http.StatusNotFound,
	kindBaselineAlreadyComplete: http.StatusConflict,
	kindPastDate:                http.StatusBadRequest,
	kindBelowFloor:              http.StatusUnprocessableEntity,
}

// asBudgetError unwraps err into a *budgetError when it is one.
func asBudgetError(err error) (*budgetError, bool) {
	var be *budgetError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
