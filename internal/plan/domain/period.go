package domain

import (
	"fmt"
	"time"
)

// EndOfPeriod advances start by nPeriods of the plan's interval. Short
// intervals use wall-clock duration; month, quarter and year advance by
// calendar units so the billing day-of-month stays stable. Days past the end
// of a shorter target month clamp to its last day.
func (p Plan) EndOfPeriod(start time.Time, nPeriods int) time.Time {
	if nPeriods == 0 {
		return start
	}
	switch p.Interval {
	case IntervalHourly:
		return start.Add(time.Duration(nPeriods) * time.Hour)
	case IntervalDaily:
		return start.Add(time.Duration(nPeriods) * 24 * time.Hour)
	case IntervalWeekly:
		return start.Add(time.Duration(nPeriods) * 7 * 24 * time.Hour)
	case IntervalMonthly:
		return addMonths(start, nPeriods)
	case IntervalQuarterly:
		return addMonths(start, 3*nPeriods)
	case IntervalYearly:
		return addMonths(start, 12*nPeriods)
	default:
		return start
	}
}

// addMonths clamps the day of month instead of normalizing, so Jan 31 plus
// one month is Feb 28 rather than Mar 3.
func addMonths(t time.Time, n int) time.Time {
	year := t.Year()
	month := int(t.Month()) - 1 + n
	year += month / 12
	month = month % 12
	if month < 0 {
		month += 12
		year--
	}
	day := t.Day()
	if last := daysIn(year, time.Month(month+1)); day > last {
		day = last
	}
	return time.Date(year, time.Month(month+1), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Prorate computes the fractional-period amount for [start, end). The
// denominators deliberately favor the customer (31-day months, 366-day
// years) and the result floor-rounds, so a partial period never overcharges.
func (p Plan) Prorate(start, end time.Time) int64 {
	if !end.After(start) {
		return 0
	}
	elapsed := end.Sub(start)
	var fraction int64
	var denominator int64
	switch p.Interval {
	case IntervalHourly:
		fraction = int64(elapsed / time.Minute)
		denominator = 60
	case IntervalDaily:
		fraction = int64(elapsed / time.Hour)
		denominator = 24
	case IntervalWeekly:
		fraction = int64(elapsed / (24 * time.Hour))
		denominator = 7
	case IntervalMonthly, IntervalQuarterly:
		fraction = int64(elapsed / (24 * time.Hour))
		denominator = 31
	case IntervalYearly:
		fraction = int64(elapsed / (24 * time.Hour))
		denominator = 366
	default:
		return 0
	}
	if fraction >= denominator {
		return p.PeriodAmount
	}
	return p.PeriodAmount * fraction / denominator
}

// ProratedFee returns the provider's transaction fee on totalAmount,
// floor-rounded basis points.
func (p Plan) ProratedFee(totalAmount int64) int64 {
	return totalAmount * p.TransactionFeeBps / 10000
}

// HumanizePeriod renders a period count for receipts, e.g. "3 months".
func (p Plan) HumanizePeriod(nPeriods int) string {
	var noun string
	switch p.Interval {
	case IntervalHourly:
		noun = "hour"
	case IntervalDaily:
		noun = "day"
	case IntervalWeekly:
		noun = "week"
	case IntervalMonthly:
		noun = "month"
	case IntervalQuarterly:
		noun = "quarter"
	case IntervalYearly:
		noun = "year"
	default:
		noun = "period"
	}
	if nPeriods == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", nPeriods, noun)
}
