package deposit

import (
	"sort"
	"time"
)

// ExpiryState is the display classification of a record's expiry date.
type ExpiryState string

const (
	ExpiryStateActive       ExpiryState = "active"
	ExpiryStateExpiringSoon ExpiryState = "expiring_soon"
	ExpiryStateExpired      ExpiryState = "expired"
)

// String returns the state identifier.
func (state ExpiryState) String() string {
	return string(state)
}

// ExpiryStatus is the full expiry view of a record relative to a date.
type ExpiryStatus struct {
	State         ExpiryState
	DaysRemaining int
	ExpiresToday  bool
}

// DaysRemaining counts whole calendar days from asOf's date to the expiry date.
// The expiry day itself yields 0 and past dates are negative.
func DaysRemaining(expiryDate ExpiryDate, asOf time.Time) int {
	return expiryDate.DaysSince(ExpiryDateOf(asOf))
}

// Classify places a record in exactly one expiry state as of the given time.
func Classify(record Record, asOf time.Time) ExpiryState {
	return classifyDays(DaysRemaining(record.ExpiryDate, asOf))
}

// Status returns the classification together with the day count.
func Status(record Record, asOf time.Time) ExpiryStatus {
	days := DaysRemaining(record.ExpiryDate, asOf)
	return ExpiryStatus{
		State:         classifyDays(days),
		DaysRemaining: days,
		ExpiresToday:  days == 0,
	}
}

func classifyDays(days int) ExpiryState {
	switch {
	case days < 0:
		return ExpiryStateExpired
	case days <= ExpiringSoonDays:
		return ExpiryStateExpiringSoon
	default:
		return ExpiryStateActive
	}
}

// Stats summarizes a set of records for display.
type Stats struct {
	TotalQuantity     int64
	NonExpiredCount   int
	ExpiredCount      int
	ExpiringSoonCount int
	ActiveQuantity    int64
	ExpiredQuantity   int64
	RecordCount       int
}

// Aggregate computes display statistics. Only Expired records count as
// expired; ExpiringSoon records are non-expired.
func Aggregate(records []Record, asOf time.Time) Stats {
	stats := Stats{RecordCount: len(records)}
	for _, record := range records {
		quantity := record.Quantity.Int64()
		stats.TotalQuantity += quantity
		switch Classify(record, asOf) {
		case ExpiryStateExpired:
			stats.ExpiredCount++
			stats.ExpiredQuantity += quantity
		case ExpiryStateExpiringSoon:
			stats.ExpiringSoonCount++
			stats.NonExpiredCount++
			stats.ActiveQuantity += quantity
		default:
			stats.NonExpiredCount++
			stats.ActiveQuantity += quantity
		}
	}
	return stats
}

// SortByExpiry returns a copy of records ordered by expiry date ascending,
// breaking ties by creation time.
func SortByExpiry(records []Record) []Record {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(left, right int) bool {
		leftDate, rightDate := sorted[left].ExpiryDate, sorted[right].ExpiryDate
		if leftDate != rightDate {
			return leftDate.Before(rightDate)
		}
		return sorted[left].CreatedAt.Before(sorted[right].CreatedAt)
	})
	return sorted
}
