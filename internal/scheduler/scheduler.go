// Package scheduler provides the smallest possible wall-clock driver:
// a once-a-day local-time trigger. spec.md §1 places the scheduler
// outside the engine's core scope, so this intentionally does not grow
// into a general cron implementation.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Daily calls job once per day at the local time named by at ("HH:MM"),
// until ctx is cancelled. It blocks until then (returning nil), or returns
// an error at once if at is not a valid HH:MM.
func Daily(ctx context.Context, at string, job func(context.Context)) error {
	hour, minute, err := parseHHMM(at)
	if err != nil {
		return err
	}

	for {
		wait := time.Until(nextOccurrence(time.Now(), hour, minute))
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			job(ctx)
		case <-ctx.Done():
			timer.Stop()
			return nil
		}
	}
}

func parseHHMM(at string) (hour, minute int, err error) {
	parts := strings.SplitN(at, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("scheduler: %q is not HH:MM", at)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("scheduler: invalid hour in %q", at)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("scheduler: invalid minute in %q", at)
	}
	return hour, minute, nil
}

func nextOccurrence(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
