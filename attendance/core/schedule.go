package core

import (
	"fmt"
	"time"

	"axiapac.com/attendance/attendance/model"
	"github.com/shopspring/decimal"
)

// ShiftSchedule is an employee's scheduled working day in local wall-clock time.
type ShiftSchedule struct {
	Start        string
	End          string
	GraceMinutes int
}

// ScheduleOf is the employee's shift; a nil employee has no schedule.
func ScheduleOf(emp *model.Employee) ShiftSchedule {
	if emp == nil {
		return ShiftSchedule{}
	}
	return ShiftSchedule{
		Start:        emp.ScheduledStart,
		End:          emp.ScheduledEnd,
		GraceMinutes: emp.GraceMinutes,
	}
}

func (s ShiftSchedule) Defined() bool {
	return s.Start != "" && s.End != ""
}

// ParseTimeOnDate places an "HH:MM" or "HH:MM:SS" clock time on the date of base.
func ParseTimeOnDate(base time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		t, err = time.Parse("15:04:05", clock)
		if err != nil {
			return time.Time{}, err
		}
	}
	return time.Date(base.Year(), base.Month(), base.Day(), t.Hour(), t.Minute(), t.Second(), 0, base.Location()), nil
}

// ShiftEnd returns the scheduled end of the shift the check-in belongs to, in loc.
// An end before the start is an overnight shift finishing on the next calendar
// day, unless the check-in already happened after midnight of that shift.
func (s ShiftSchedule) ShiftEnd(checkIn time.Time, loc *time.Location) (time.Time, error) {
	local := checkIn.In(loc)
	dateBase := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	start, err := ParseTimeOnDate(dateBase, s.Start)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid scheduled start time %s: %w", s.Start, err)
	}
	end, err := ParseTimeOnDate(dateBase, s.End)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid scheduled end time %s: %w", s.End, err)
	}

	if end.Before(start) && !local.Before(end) {
		end = end.Add(24 * time.Hour)
	}
	return end, nil
}

// EarlyLeaveMinutes is max(0, (scheduled end - grace) - checkout) in whole minutes.
// Without a usable schedule nothing counts as leaving early.
func EarlyLeaveMinutes(checkIn, checkOut time.Time, schedule ShiftSchedule, loc *time.Location) int {
	if !schedule.Defined() {
		return 0
	}
	end, err := schedule.ShiftEnd(checkIn, loc)
	if err != nil {
		return 0
	}

	allowed := end.Add(-time.Duration(schedule.GraceMinutes) * time.Minute)
	if !checkOut.Before(allowed) {
		return 0
	}
	return int(allowed.Sub(checkOut) / time.Minute)
}

// WorkingHours is the wall-clock difference in hours, rounded to two places.
func WorkingHours(checkIn, checkOut time.Time) decimal.Decimal {
	elapsed := checkOut.Sub(checkIn)
	if elapsed < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(elapsed.Hours()).Round(2)
}

// LocalTime formats t as wall-clock time in loc.
func LocalTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(model.LocalTimeLayout)
}
