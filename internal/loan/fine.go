package loan

import "time"

// Tariff is the fine schedule: no fine within the grace period, then a
// flat rate per whole overdue day, capped. Amounts are in cents.
type Tariff struct {
	GraceDays  int
	RatePerDay int64
	Cap        int64
}

// DefaultTariff mirrors the catalog's posted schedule: ten days of
// grace, then 5.00 per day up to a 500.00 cap.
func DefaultTariff() Tariff {
	return Tariff{
		GraceDays:  10,
		RatePerDay: 500,
		Cap:        50000,
	}
}

// OverdueDays returns the number of whole days asOf lies past the
// grace period that started at approvedAt. Zero within grace.
func (t Tariff) OverdueDays(approvedAt, asOf time.Time) int {
	due := approvedAt.AddDate(0, 0, t.GraceDays)
	if !asOf.After(due) {
		return 0
	}

	return int(asOf.Sub(due).Hours() / 24)
}

// Fine computes the amount owed on a loan approved at approvedAt, as
// of asOf. Pure: identical inputs always yield identical output.
func (t Tariff) Fine(approvedAt, asOf time.Time) int64 {
	days := t.OverdueDays(approvedAt, asOf)
	if days <= 0 {
		return 0
	}

	amount := int64(days) * t.RatePerDay
	if amount > t.Cap {
		return t.Cap
	}

	return amount
}
