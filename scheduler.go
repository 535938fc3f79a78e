package main

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// rolloverPeriods calls createPeriod for every user with a weekly budget.
// One user's failure is logged and does not stop the others. Returns how many
// periods were newly created.
func (s *budgetService) rolloverPeriods(ctx context.Context, today time.Time) (int, error) {
	userIDs, err := s.store.listBudgetedUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list budgeted users: %w", err)
	}

	var created atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.tuning.RolloverWorkers)
	for _, userID := range userIDs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.createPeriod(gctx, userID, today)
			if err != nil {
				log.Printf("[rolloverPeriods] user %d: %v", userID, err)
				return nil
			}
			if res.Reason == reasonCreated {
				created.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()
	return int(created.Load()), err
}

// runRollover runs rolloverPeriods now and then every interval until ctx is
// done. The week boundary is picked up on the first tick after Monday begins.
func (s *budgetService) runRollover(ctx context.Context, interval time.Duration) {
	tick := func() {
		n, err := s.rolloverPeriods(ctx, today())
		if err != nil {
			log.Printf("[runRollover] %v", err)
			return
		}
		if n > 0 {
			log.Printf("[runRollover] created %d period(s)", n)
		}
	}

	tick()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}
