package core

import (
	"fmt"
	"time"
)

// DateLayout is the fixed-width ISO form used for every weekStartDate.
// Month and year filtering compare string prefixes, so nothing else may be stored.
const DateLayout = "2006-01-02"

// Weeks start on Saturday.
const weekStartDay = time.Saturday

// WeekStart returns the Saturday on or before t, formatted as YYYY-MM-DD.
func WeekStart(t time.Time) string {
	offset := (int(t.Weekday()) - int(weekStartDay) + 7) % 7
	start := time.Date(t.Year(), t.Month(), t.Day()-offset, 0, 0, 0, 0, time.UTC)
	return start.Format(DateLayout)
}

// PreviousWeekStart returns the week start seven days before weekStart.
func PreviousWeekStart(weekStart string) (string, error) {
	return shiftWeek(weekStart, -1)
}

// NextWeekStart returns the week start seven days after weekStart.
func NextWeekStart(weekStart string) (string, error) {
	return shiftWeek(weekStart, 1)
}

// WeekName renders the week as a short range, e.g. "Jan 6 - Jan 12".
func WeekName(weekStart string) (string, error) {
	start, err := parseWeekStart(weekStart)
	if err != nil {
		return "", err
	}
	end := start.AddDate(0, 0, 6)
	return fmt.Sprintf("%s - %s", start.Format("Jan 2"), end.Format("Jan 2")), nil
}

func shiftWeek(weekStart string, weeks int) (string, error) {
	start, err := parseWeekStart(weekStart)
	if err != nil {
		return "", err
	}
	return start.AddDate(0, 0, 7*weeks).Format(DateLayout), nil
}

func parseWeekStart(s string) (time.Time, error) {
	if err := ValidateWeekStart(s); err != nil {
		return time.Time{}, err
	}
	t, _ := time.Parse(DateLayout, s)
	return t, nil
}

// ValidateWeekStart checks that s is a real calendar date in YYYY-MM-DD form.
func ValidateWeekStart(s string) error {
	if len(s) != len(DateLayout) {
		return fmt.Errorf("%w: %q", ErrInvalidWeekStart, s)
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil || t.Format(DateLayout) != s {
		return fmt.Errorf("%w: %q", ErrInvalidWeekStart, s)
	}
	return nil
}

// ValidateYearMonth checks that s is in YYYY-MM form.
func ValidateYearMonth(s string) error {
	if len(s) != 7 {
		return fmt.Errorf("%w: %q", ErrInvalidYearMonth, s)
	}
	if _, err := time.Parse("2006-01", s); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidYearMonth, s)
	}
	return nil
}

// ValidateYear checks that s is a four digit year.
func ValidateYear(s string) error {
	if len(s) != 4 {
		return fmt.Errorf("%w: %q", ErrInvalidYear, s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: %q", ErrInvalidYear, s)
		}
	}
	return nil
}

// YearMonthOf returns the YYYY-MM prefix of t.
func YearMonthOf(t time.Time) string {
	return t.Format("2006-01")
}
