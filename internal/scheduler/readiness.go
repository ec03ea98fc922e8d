// Package scheduler implements the Scheduler & Supervisor component: the
// readiness algorithm that decides whether a dataset's schedule is due,
// and the Supervisor tick loop (built on the teacher's own scheduling
// library, github.com/go-co-op/gocron/v2) that drives datasets through
// the Backup Driver when they are.
package scheduler

import (
	"time"

	"coldpack/internal/model"
)

// ShouldRun reports whether sched is due to run at now, given the time a
// dataset's backup last completed (the zero Time if it has never run).
func ShouldRun(sched model.Schedule, lastRun, now time.Time) bool {
	if sched.StopTime != nil && now.After(*sched.StopTime) {
		return false
	}
	if !withinRange(sched, now) {
		return false
	}
	if pastDue(sched, lastRun, now) {
		return true
	}
	return false
}

// pastDue reports whether enough time has elapsed since lastRun for
// sched's frequency to be considered due. Frequencies that carry a
// time-of-day range get their threshold halved, giving the window a
// chance to overlap with the next due instant instead of sliding past
// it by up to a full period.
func pastDue(sched model.Schedule, lastRun, now time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	ranged := sched.RangeStart != nil && sched.RangeStop != nil
	elapsed := now.Sub(lastRun)
	switch sched.Frequency {
	case "hourly":
		return elapsed >= time.Hour
	case "daily":
		if ranged {
			return elapsed >= 12*time.Hour
		}
		return elapsed >= 24*time.Hour
	case "weekly":
		if ranged {
			return elapsed >= 84*time.Hour // 302400s
		}
		return elapsed >= 7*24*time.Hour
	case "monthly":
		if ranged {
			return elapsed >= 14*24*time.Hour // 1209600s
		}
		return elapsed >= 28*24*time.Hour
	default:
		return false
	}
}

// withinRange reports whether now falls inside sched's optional
// time-of-day window and, for Weekly/Monthly, whether now's weekday or
// day-of-month matches sched's configured one. A schedule with none of
// these constraints configured is always within range.
func withinRange(sched model.Schedule, now time.Time) bool {
	switch sched.Frequency {
	case "weekly":
		if sched.Weekday != nil && int(now.Weekday()) != *sched.Weekday {
			return false
		}
	case "monthly":
		if !matchesDayOfMonth(sched, now) {
			return false
		}
	}
	return withinTimeRange(sched, now)
}

// matchesDayOfMonth reports whether now's day of month satisfies
// sched's monthly day constraint, which is either an exact day
// (DayOfMonth alone) or the Nth occurrence of a weekday in the month
// (DayOfMonth holding the 1..5 occurrence bucket, NthWeekday holding
// the target weekday).
func matchesDayOfMonth(sched model.Schedule, now time.Time) bool {
	if sched.NthWeekday != nil {
		if int(now.Weekday()) != *sched.NthWeekday {
			return false
		}
		if sched.DayOfMonth == nil {
			return true
		}
		return dayInNthBucket(now.Day(), *sched.DayOfMonth)
	}
	if sched.DayOfMonth != nil {
		return now.Day() == *sched.DayOfMonth
	}
	return true
}

// dayInNthBucket reports whether day falls within the Nth occurrence
// bucket of a weekday in a month: First=1-7, Second=8-14, Third=15-21,
// Fourth=22-28, Fifth=29-end (whatever the month's length permits).
func dayInNthBucket(day, nth int) bool {
	if nth < 1 {
		return false
	}
	if nth >= 5 {
		return day >= 29
	}
	lo := (nth-1)*7 + 1
	hi := nth * 7
	return day >= lo && day <= hi
}

// withinTimeRange reports whether now falls inside sched's optional
// time-of-day window. A schedule with no range configured is always
// within range.
func withinTimeRange(sched model.Schedule, now time.Time) bool {
	if sched.RangeStart == nil || sched.RangeStop == nil {
		return true
	}
	minutesNow := now.Hour()*60 + now.Minute()
	start, stop := *sched.RangeStart, *sched.RangeStop
	if start <= stop {
		return minutesNow >= start && minutesNow <= stop
	}
	// Range wraps past midnight, e.g. 22:00-06:00.
	return minutesNow >= start || minutesNow <= stop
}

// NextDue returns whether any of dataset's schedules are currently due,
// given the dataset's last completed run time.
func NextDue(schedules []model.Schedule, lastRun, now time.Time) bool {
	for _, sched := range schedules {
		if ShouldRun(sched, lastRun, now) {
			return true
		}
	}
	return false
}
