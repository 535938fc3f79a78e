package main

import "time"

// budgetService runs the budget engine against a store. Every operation takes
// the user and the calendar date explicitly; nothing reads an ambient "today".
type budgetService struct {
	store  budgetStore
	tuning tuning
	now    func() time.Time // completion timestamps only
}

func newBudgetService(store budgetStore, t tuning) *budgetService {
	return &budgetService{store: store, tuning: t, now: time.Now}
}
