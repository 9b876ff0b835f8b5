package deposit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DepositID identifies a deposit record.
type DepositID struct {
	value string
}

// NewDepositID validates and normalizes a deposit id.
func NewDepositID(raw string) (DepositID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DepositID{}, fmt.Errorf("%w: empty value", ErrInvalidDepositID)
	}
	return DepositID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id DepositID) String() string {
	return id.value
}

// IsZero reports whether the id is unset.
func (id DepositID) IsZero() bool {
	return id.value == ""
}

// Quantity is the number of cups still redeemable on a record.
type Quantity int64

// NewQuantity validates a quantity and ensures it is at least one cup.
func NewQuantity(raw int64) (Quantity, error) {
	if raw < 1 {
		return 0, fmt.Errorf("%w: must be at least one", ErrInvalidQuantity)
	}
	return Quantity(raw), nil
}

// Int64 exposes the raw value.
func (quantity Quantity) Int64() int64 {
	return int64(quantity)
}

// ExpiryDate is a calendar date without a time of day.
type ExpiryDate struct {
	year  int
	month time.Month
	day   int
}

// ParseExpiryDate parses a YYYY-MM-DD date. A trailing time portion
// ("2024-06-10T00:00:00Z" or "2024-06-10 00:00") is ignored.
func ParseExpiryDate(raw string) (ExpiryDate, error) {
	normalized := strings.TrimSpace(raw)
	if index := strings.IndexAny(normalized, "T "); index >= 0 {
		normalized = normalized[:index]
	}
	if normalized == "" {
		return ExpiryDate{}, fmt.Errorf("%w: empty value", ErrInvalidExpiryDate)
	}
	parsed, err := time.Parse(expiryDateLayout, normalized)
	if err != nil {
		return ExpiryDate{}, fmt.Errorf("%w: %q is not %s", ErrInvalidExpiryDate, raw, expiryDateLayout)
	}
	return ExpiryDateOf(parsed), nil
}

// ExpiryDateOf returns the calendar date of t in t's own location.
func ExpiryDateOf(t time.Time) ExpiryDate {
	year, month, day := t.Date()
	return ExpiryDate{year: year, month: month, day: day}
}

// ExpiryDateInDays returns the date that lies days calendar days after asOf.
func ExpiryDateInDays(asOf time.Time, days int) (ExpiryDate, error) {
	if days < 1 {
		return ExpiryDate{}, fmt.Errorf("%w: days until expiry must be at least one", ErrInvalidExpiryDate)
	}
	return ExpiryDateOf(asOf).AddDays(days), nil
}

// AddDays shifts the date by whole calendar days.
func (date ExpiryDate) AddDays(days int) ExpiryDate {
	return ExpiryDateOf(date.midnightUTC().AddDate(0, 0, days))
}

// IsZero reports whether the date is unset.
func (date ExpiryDate) IsZero() bool {
	return date.year == 0 && date.month == 0 && date.day == 0
}

// Before reports whether date falls on an earlier day than other.
func (date ExpiryDate) Before(other ExpiryDate) bool {
	return date.midnightUTC().Before(other.midnightUTC())
}

// DaysSince returns the number of calendar days from other to date.
func (date ExpiryDate) DaysSince(other ExpiryDate) int {
	return int(date.midnightUTC().Sub(other.midnightUTC()) / (24 * time.Hour))
}

// String renders the date as YYYY-MM-DD.
func (date ExpiryDate) String() string {
	if date.IsZero() {
		return ""
	}
	return date.midnightUTC().Format(expiryDateLayout)
}

// Display renders the date as YYYY/MM/DD.
func (date ExpiryDate) Display() string {
	if date.IsZero() {
		return ""
	}
	return date.midnightUTC().Format(displayDateLayout)
}

func (date ExpiryDate) midnightUTC() time.Time {
	return time.Date(date.year, date.month, date.day, 0, 0, 0, 0, time.UTC)
}

// Draft carries the user-supplied fields of a new deposit.
type Draft struct {
	Item         string
	Quantity     int64
	Store        string
	RedeemMethod string
	ExpiryDate   ExpiryDate
}

// Record is a persisted prepaid-coffee voucher.
type Record struct {
	ID           DepositID
	Item         string
	Quantity     Quantity
	Store        string
	RedeemMethod string
	ExpiryDate   ExpiryDate
	CreatedAt    time.Time
}

// withQuantity returns a copy of the record holding quantity cups.
func (record Record) withQuantity(quantity Quantity) Record {
	record.Quantity = quantity
	return record
}

// Storage is the key-value collaborator the store persists through.
// Get reports found=false for a missing key.
type Storage interface {
	List(ctx context.Context, prefix string) ([]string, error)
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}
