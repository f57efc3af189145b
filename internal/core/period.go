package core

// Period is an inclusive range of calendar days used to scope a query.
type Period struct {
	From Date `json:"from"`
	To   Date `json:"to"`
}

// MonthPeriod covers every day of m.
func MonthPeriod(m MonthKey) Period {
	return Period{From: m.First(), To: m.Last()}
}

// LastDays covers the n days ending on today, today included.
func LastDays(today Date, n int) Period {
	if n < 1 {
		n = 1
	}
	return Period{From: today.AddDays(-(n - 1)), To: today}
}

func (p Period) Contains(d Date) bool {
	return !d.Before(p.From.Time) && !d.After(p.To.Time)
}

func (p Period) Validate() error {
	if p.From.IsZero() || p.To.IsZero() || p.To.Before(p.From.Time) {
		return ErrInvalidDate
	}
	return nil
}
