// Package progress implements the read-side projections over quiz history:
// the consecutive-day streak, dashboard stats, and the knowledge map.
package progress

import (
	"context"
	"time"
)

// computeStreak walks backward day by day from asOf. A day qualifies when at
// least one session completed within that UTC calendar day; the walk stops at
// the first day without one. If asOf itself has no completion the streak is 0,
// even when the day before qualifies.
func computeStreak(ctx context.Context, store Store, userID int64, asOf time.Time) (int, error) {
	u := asOf.UTC()
	day := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)

	streak := 0
	for {
		ok, err := store.HasCompletionBetween(ctx, userID, day, day.AddDate(0, 0, 1))
		if err != nil {
			return 0, err
		}
		if !ok {
			return streak, nil
		}
		streak++
		day = day.AddDate(0, 0, -1)
	}
}
