package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// Date is a calendar day stored at midnight UTC.
type Date struct {
	time.Time
}

// MonthKey identifies a calendar month, e.g. 2024-06.
type MonthKey struct {
	Year  int
	Month int
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the clock part of t as seen in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Today returns the current day in loc.
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(now.In(loc))
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Equal reports whether both dates fall on the same calendar day.
func (d Date) Equal(o Date) bool {
	return d.Time.Year() == o.Time.Year() && d.Time.YearDay() == o.Time.YearDay()
}

func (d Date) Month() MonthKey {
	return MonthKey{Year: d.Time.Year(), Month: int(d.Time.Month())}
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func NewMonthKey(year, month int) MonthKey {
	return MonthKey{Year: year, Month: month}
}

func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse(monthLayout, strings.TrimSpace(s))
	if err != nil {
		return MonthKey{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthKey{Year: t.Year(), Month: int(t.Month())}, nil
}

func (m MonthKey) Validate() error {
	if m.Month < 1 || m.Month > 12 || m.Year < 1970 || m.Year > 9999 {
		return ErrInvalidMonth
	}
	return nil
}

// Previous returns the month before m, wrapping January to December of the prior year.
func (m MonthKey) Previous() MonthKey {
	if m.Month == 1 {
		return MonthKey{Year: m.Year - 1, Month: 12}
	}
	return MonthKey{Year: m.Year, Month: m.Month - 1}
}

// Next is the month after m.
func (m MonthKey) Next() MonthKey {
	if m.Month == 12 {
		return MonthKey{Year: m.Year + 1, Month: 1}
	}
	return MonthKey{Year: m.Year, Month: m.Month + 1}
}

func (m MonthKey) First() Date {
	return NewDate(m.Year, m.Month, 1)
}

func (m MonthKey) Last() Date {
	return NewDate(m.Year, m.Month+1, 0)
}

func (m MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}

func (m MonthKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *MonthKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseMonthKey(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
