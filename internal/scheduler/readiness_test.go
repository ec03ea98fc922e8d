package scheduler

import (
	"testing"
	"time"

	"coldpack/internal/model"
)

func TestShouldRunHourly(t *testing.T) {
	sched := model.Schedule{Frequency: "hourly"}
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	if !ShouldRun(sched, time.Time{}, now) {
		t.Error("never-run dataset should be due")
	}
	if ShouldRun(sched, now.Add(-30*time.Minute), now) {
		t.Error("30 minutes ago should not be due for hourly")
	}
	if !ShouldRun(sched, now.Add(-90*time.Minute), now) {
		t.Error("90 minutes ago should be due for hourly")
	}
}

func TestShouldRunRespectsStopTime(t *testing.T) {
	stop := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched := model.Schedule{Frequency: "hourly", StopTime: &stop}
	now := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	if ShouldRun(sched, time.Time{}, now) {
		t.Error("schedule past its stop time should not be due")
	}
}

func TestShouldRunRespectsTimeRange(t *testing.T) {
	start, stop := 60, 120 // 01:00-02:00
	sched := model.Schedule{Frequency: "hourly", RangeStart: &start, RangeStop: &stop}

	inRange := time.Date(2026, 1, 15, 1, 30, 0, 0, time.UTC)
	outOfRange := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	if !ShouldRun(sched, time.Time{}, inRange) {
		t.Error("time inside range should be eligible to run")
	}
	if ShouldRun(sched, time.Time{}, outOfRange) {
		t.Error("time outside range should not be eligible to run")
	}
}

func TestShouldRunWeeklyWeekdayFilter(t *testing.T) {
	sunday := 0
	sched := model.Schedule{Frequency: "weekly", Weekday: &sunday}

	aSunday := time.Date(2026, 1, 18, 0, 0, 0, 0, time.UTC) // confirmed Sunday
	aMonday := time.Date(2026, 1, 19, 0, 0, 0, 0, time.UTC)

	if !ShouldRun(sched, time.Time{}, aSunday) {
		t.Error("expected Sunday to be due for weekly-on-Sunday schedule")
	}
	if ShouldRun(sched, time.Time{}, aMonday) {
		t.Error("Monday should not be due for weekly-on-Sunday schedule")
	}
}

func TestShouldRunDailyThresholdHalvesWithRange(t *testing.T) {
	start, stop := 0, 24*60 - 1 // all-day range, so only the threshold matters
	sched := model.Schedule{Frequency: "daily", RangeStart: &start, RangeStop: &stop}
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	if ShouldRun(sched, now.Add(-10*time.Hour), now) {
		t.Error("10 hours ago should not be due for a ranged daily schedule (threshold 12h)")
	}
	if !ShouldRun(sched, now.Add(-13*time.Hour), now) {
		t.Error("13 hours ago should be due for a ranged daily schedule (threshold 12h)")
	}

	unranged := model.Schedule{Frequency: "daily"}
	if ShouldRun(unranged, now.Add(-13*time.Hour), now) {
		t.Error("13 hours ago should not be due for an unranged daily schedule (threshold 24h)")
	}
}

func TestShouldRunWeeklyThresholdHalvesWithRange(t *testing.T) {
	start, stop := 0, 24*60 - 1
	sched := model.Schedule{Frequency: "weekly", RangeStart: &start, RangeStop: &stop}
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	if ShouldRun(sched, now.Add(-83*time.Hour), now) {
		t.Error("83 hours ago should not be due for a ranged weekly schedule (threshold 84h)")
	}
	if !ShouldRun(sched, now.Add(-85*time.Hour), now) {
		t.Error("85 hours ago should be due for a ranged weekly schedule (threshold 84h)")
	}
}

func TestShouldRunMonthlyThresholdHalvesWithRange(t *testing.T) {
	start, stop := 0, 24*60 - 1
	sched := model.Schedule{Frequency: "monthly", RangeStart: &start, RangeStop: &stop}
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	if ShouldRun(sched, now.Add(-13*24*time.Hour), now) {
		t.Error("13 days ago should not be due for a ranged monthly schedule (threshold 14 days)")
	}
	if !ShouldRun(sched, now.Add(-15*24*time.Hour), now) {
		t.Error("15 days ago should be due for a ranged monthly schedule (threshold 14 days)")
	}
}

func TestShouldRunMonthlyNthWeekday(t *testing.T) {
	// Third Tuesday of January 2026 is January 20.
	tuesday := 2
	third := 3
	sched := model.Schedule{Frequency: "monthly", NthWeekday: &tuesday, DayOfMonth: &third}

	thirdTuesday := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	secondTuesday := time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC)
	aWednesdayInBucket := time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC)

	if !ShouldRun(sched, time.Time{}, thirdTuesday) {
		t.Error("expected the third Tuesday to be due for a Nth-weekday monthly schedule")
	}
	if ShouldRun(sched, time.Time{}, secondTuesday) {
		t.Error("second Tuesday should not match a third-Tuesday schedule")
	}
	if ShouldRun(sched, time.Time{}, aWednesdayInBucket) {
		t.Error("a Wednesday in the third-week bucket should not match a Tuesday-only schedule")
	}
}

func TestDayInNthBucket(t *testing.T) {
	cases := []struct {
		day, nth int
		want     bool
	}{
		{1, 1, true}, {7, 1, true}, {8, 1, false},
		{8, 2, true}, {14, 2, true}, {15, 2, false},
		{22, 4, true}, {28, 4, true},
		{29, 5, true}, {31, 5, true}, {28, 5, false},
	}
	for _, c := range cases {
		if got := dayInNthBucket(c.day, c.nth); got != c.want {
			t.Errorf("dayInNthBucket(%d, %d) = %v, want %v", c.day, c.nth, got, c.want)
		}
	}
}

func TestNextDueAnySchedule(t *testing.T) {
	hourly := model.Schedule{Frequency: "hourly"}
	now := time.Now()
	if !NextDue([]model.Schedule{hourly}, time.Time{}, now) {
		t.Error("expected at least one due schedule")
	}
	if NextDue(nil, time.Time{}, now) {
		t.Error("no schedules should never be due")
	}
}
