package shared

import (
	"testing"
	"time"
)

func TestDailyGrid_SingleDay(t *testing.T) {
	start := time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)

	grid := DailyGrid(start, end)
	if len(grid) != 1 {
		t.Fatalf("expected 1 entry for same calendar day, got %d", len(grid))
	}
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	if grid[0] != want {
		t.Errorf("expected midnight timestamp %d, got %d", want, grid[0])
	}
}

func TestDailyGrid_CountMatchesInvariant(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 11, 23, 0, 0, 0, time.UTC)

	grid := DailyGrid(start, end)
	if len(grid) != 11 {
		t.Errorf("expected (end-start)/1d + 1 = 11 entries, got %d", len(grid))
	}
	for i := 1; i < len(grid); i++ {
		if grid[i]-grid[i-1] != int64((24 * time.Hour).Seconds()) {
			t.Errorf("expected consecutive entries 1 day apart, got gap %d at index %d", grid[i]-grid[i-1], i)
		}
	}
}

func TestDailyGrid_EndBeforeStart(t *testing.T) {
	start := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	grid := DailyGrid(start, end)
	if grid != nil {
		t.Errorf("expected nil grid when end precedes start, got %v", grid)
	}
}
