package generic

// =============================================================================
// PERIOD - A closed range of days
// =============================================================================

// Period is the closed day range [Start, End].
//
// Examples:
//   - Purchase window of an invoice due 2025-04-10: 2025-03-10 - 2025-04-09
//   - Calendar month for ledger totals: 2025-03-01 - 2025-03-31
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// MonthOf returns the calendar month containing date.
func MonthOf(date TimePoint) Period {
	start := StartOfMonth(date.Year(), date.Month())
	return Period{
		Start: start,
		End:   NewTimePoint(date.Year(), date.Month(), DaysInMonth(date.Year(), date.Month())),
	}
}
