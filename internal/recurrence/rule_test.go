package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParse(t *testing.T) {
	rule, err := Parse("FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH")
	require.NoError(t, err)
	assert.Equal(t, Weekly, rule.Freq)
	assert.Equal(t, 2, rule.Interval)
	assert.True(t, rule.Weekdays[time.Monday])
	assert.True(t, rule.Weekdays[time.Thursday])
	assert.False(t, rule.Weekdays[time.Friday])
}

func TestParseRejectsMalformedRules(t *testing.T) {
	for _, raw := range []string{
		"FREQ=HOURLY",
		"INTERVAL=2",
		"FREQ=DAILY;INTERVAL=0",
		"FREQ=DAILY;BYDAY=MO",
		"FREQ=WEEKLY;BYDAY=XX",
		"FREQ=WEEKLY;BYMONTHDAY=3",
		"FREQ=MONTHLY;BYMONTHDAY=32",
		"FREQ=DAILY;FREQ=WEEKLY",
		"gibberish",
	} {
		_, err := Parse(raw)
		assert.Error(t, err, "expected %q to be rejected", raw)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(""))
	assert.True(t, Valid("FREQ=DAILY"))
	assert.False(t, Valid("FREQ=SOMETIMES"))
}

func TestNextDaily(t *testing.T) {
	rule, err := Parse("FREQ=DAILY;INTERVAL=3")
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.March, 4), rule.Next(date(2026, time.March, 1)))
}

func TestNextWeeklyAlternatesWeekdaySet(t *testing.T) {
	rule, err := Parse("FREQ=WEEKLY;BYDAY=MO,TH")
	require.NoError(t, err)

	monday := date(2026, time.March, 2)
	require.Equal(t, time.Monday, monday.Weekday())

	thursday := rule.Next(monday)
	assert.Equal(t, date(2026, time.March, 5), thursday)
	assert.Equal(t, time.Thursday, thursday.Weekday())

	nextMonday := rule.Next(thursday)
	assert.Equal(t, date(2026, time.March, 9), nextMonday)
	assert.Equal(t, time.Monday, nextMonday.Weekday())
}

func TestNextWeeklyIntervalSkipsWeeks(t *testing.T) {
	plain, err := Parse("FREQ=WEEKLY;INTERVAL=2")
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.March, 16), plain.Next(date(2026, time.March, 2)))

	// Same week keeps the interval untouched; wrapping to the next week
	// jumps interval-1 extra weeks.
	byday, err := Parse("FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH")
	require.NoError(t, err)
	monday := date(2026, time.March, 2)
	assert.Equal(t, date(2026, time.March, 5), byday.Next(monday))
	assert.Equal(t, date(2026, time.March, 16), byday.Next(date(2026, time.March, 5)))
}

func TestNextMonthlyClampsShortMonths(t *testing.T) {
	rule, err := Parse("FREQ=MONTHLY")
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.February, 28), rule.Next(date(2026, time.January, 31)))
}

func TestNextMonthlyByMonthDay(t *testing.T) {
	rule, err := Parse("FREQ=MONTHLY;BYMONTHDAY=15")
	require.NoError(t, err)
	assert.Equal(t, date(2026, time.April, 15), rule.Next(date(2026, time.March, 20)))
}

func TestNextYearly(t *testing.T) {
	rule, err := Parse("FREQ=YEARLY")
	require.NoError(t, err)
	assert.Equal(t, date(2027, time.July, 4), rule.Next(date(2026, time.July, 4)))

	// Feb 29 anchors clamp on non-leap years.
	assert.Equal(t, date(2029, time.February, 28), rule.Next(date(2028, time.February, 29)))
}

func TestNextAnchorsToBaseNotToday(t *testing.T) {
	// Completing late must not compress the schedule: the next occurrence
	// is derived purely from the anchor.
	rule, err := Parse("FREQ=WEEKLY;INTERVAL=4")
	require.NoError(t, err)
	anchor := date(2026, time.January, 5)
	assert.Equal(t, date(2026, time.February, 2), rule.Next(anchor))
}
