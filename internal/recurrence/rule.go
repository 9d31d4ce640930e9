// Package recurrence parses repeat rules and computes next occurrences.
//
// The rule grammar is a restricted iCalendar subset:
//
//	FREQ=DAILY|WEEKLY|MONTHLY|YEARLY
//	INTERVAL=n          (optional, default 1)
//	BYDAY=MO,TU,...     (weekly only)
//	BYMONTHDAY=n        (monthly/yearly only)
//
// Occurrences are computed from a stored anchor date, not from the completion
// time, so completing late never compresses the schedule.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Freq string

const (
	Daily   Freq = "DAILY"
	Weekly  Freq = "WEEKLY"
	Monthly Freq = "MONTHLY"
	Yearly  Freq = "YEARLY"
)

type Rule struct {
	Freq     Freq
	Interval int
	// Weekdays is the BYDAY set for weekly rules, in time.Weekday terms.
	Weekdays map[time.Weekday]bool
	// MonthDay is the BYMONTHDAY value for monthly/yearly rules; 0 = unset.
	MonthDay int
}

var weekdayCodes = map[string]time.Weekday{
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
	"SU": time.Sunday,
}

// Parse validates and decodes a rule string.
func Parse(raw string) (Rule, error) {
	rule := Rule{Interval: 1}
	seen := map[string]bool{}

	for _, part := range strings.Split(strings.TrimSpace(raw), ";") {
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return Rule{}, fmt.Errorf("malformed rule component %q", part)
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.ToUpper(strings.TrimSpace(value))
		if seen[key] {
			return Rule{}, fmt.Errorf("duplicate rule component %q", key)
		}
		seen[key] = true

		switch key {
		case "FREQ":
			switch Freq(value) {
			case Daily, Weekly, Monthly, Yearly:
				rule.Freq = Freq(value)
			default:
				return Rule{}, fmt.Errorf("unsupported frequency %q", value)
			}
		case "INTERVAL":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 {
				return Rule{}, fmt.Errorf("invalid interval %q", value)
			}
			rule.Interval = n
		case "BYDAY":
			rule.Weekdays = map[time.Weekday]bool{}
			for _, code := range strings.Split(value, ",") {
				day, ok := weekdayCodes[strings.TrimSpace(code)]
				if !ok {
					return Rule{}, fmt.Errorf("invalid weekday %q", code)
				}
				rule.Weekdays[day] = true
			}
		case "BYMONTHDAY":
			n, err := strconv.Atoi(value)
			if err != nil || n < 1 || n > 31 {
				return Rule{}, fmt.Errorf("invalid month day %q", value)
			}
			rule.MonthDay = n
		default:
			return Rule{}, fmt.Errorf("unsupported rule component %q", key)
		}
	}

	if rule.Freq == "" {
		return Rule{}, fmt.Errorf("rule is missing FREQ")
	}
	if len(rule.Weekdays) > 0 && rule.Freq != Weekly {
		return Rule{}, fmt.Errorf("BYDAY is only valid with FREQ=WEEKLY")
	}
	if rule.MonthDay > 0 && rule.Freq != Monthly && rule.Freq != Yearly {
		return Rule{}, fmt.Errorf("BYMONTHDAY is only valid with FREQ=MONTHLY or FREQ=YEARLY")
	}
	return rule, nil
}

// Valid reports whether raw parses as a rule. An empty string is valid and
// means "no recurrence".
func Valid(raw string) bool {
	if strings.TrimSpace(raw) == "" {
		return true
	}
	_, err := Parse(raw)
	return err == nil
}

// Next computes the first occurrence strictly after the anchor date.
func (r Rule) Next(anchor time.Time) time.Time {
	anchor = midnight(anchor)

	switch r.Freq {
	case Daily:
		return anchor.AddDate(0, 0, r.Interval)
	case Weekly:
		if len(r.Weekdays) == 0 {
			return anchor.AddDate(0, 0, 7*r.Interval)
		}
		return r.nextWeekday(anchor)
	case Monthly:
		return r.nextMonthly(anchor, r.Interval)
	case Yearly:
		return r.nextMonthly(anchor, 12*r.Interval)
	}
	return anchor
}

// nextWeekday picks the earliest weekday in the set strictly after the
// anchor. When the pick wraps past the anchor's week, interval-1 further
// weeks are skipped so INTERVAL=n means every n-th week.
func (r Rule) nextWeekday(anchor time.Time) time.Time {
	for offset := 1; offset <= 7; offset++ {
		candidate := anchor.AddDate(0, 0, offset)
		if !r.Weekdays[candidate.Weekday()] {
			continue
		}
		if r.Interval > 1 && weekStart(candidate).After(weekStart(anchor)) {
			candidate = candidate.AddDate(0, 0, 7*(r.Interval-1))
		}
		return candidate
	}
	return anchor.AddDate(0, 0, 7*r.Interval)
}

// nextMonthly steps whole months from the anchor, clamping the target day to
// the destination month's length. AddDate is avoided because its overflow
// normalization (Jan 31 + 1 month = Mar 2/3) would skip short months.
func (r Rule) nextMonthly(anchor time.Time, months int) time.Time {
	day := anchor.Day()
	if r.MonthDay > 0 {
		day = r.MonthDay
	}
	year, month := addMonths(anchor.Year(), anchor.Month(), months)
	next := clampedDate(year, month, day, anchor.Location())
	if !next.After(anchor) {
		// A BYMONTHDAY earlier in the month can land on or before the
		// anchor; step one more period.
		year, month = addMonths(year, month, months)
		next = clampedDate(year, month, day, anchor.Location())
	}
	return next
}

func addMonths(year int, month time.Month, months int) (int, time.Month) {
	total := year*12 + int(month) - 1 + months
	return total / 12, time.Month(total%12 + 1)
}

func clampedDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

func midnight(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

// weekStart returns the Monday of t's ISO week.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return midnight(t).AddDate(0, 0, -offset)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
