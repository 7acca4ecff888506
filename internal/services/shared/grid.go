// Package shared holds small pure helpers used by more than one service,
// mirroring the teacher's internal/services/shared package.
package shared

import "time"

const day = 24 * time.Hour

// DailyGrid produces the UTC-midnight daily unix timestamps from start to
// end inclusive, ordered ascending. Per §8 invariant 7, this yields
// (end-start)/1d + 1 timestamps.
func DailyGrid(start, end time.Time) []int64 {
	s := midnight(start)
	e := midnight(end)
	if e.Before(s) {
		return nil
	}

	n := int(e.Sub(s)/day) + 1
	grid := make([]int64, n)
	for i := 0; i < n; i++ {
		grid[i] = s.Add(time.Duration(i) * day).Unix()
	}
	return grid
}

func midnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
