package deposit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// recordDocument is the flat JSON form stored under each key.
type recordDocument struct {
	ID           string `json:"id"`
	Item         string `json:"item"`
	Quantity     int64  `json:"quantity"`
	Store        string `json:"store"`
	RedeemMethod string `json:"redeemMethod"`
	ExpiryDate   string `json:"expiryDate"`
	CreatedAt    string `json:"createdAt"`
}

// EncodeRecord serializes a record to its stored JSON form.
func EncodeRecord(record Record) (string, error) {
	document := recordDocument{
		ID:           record.ID.String(),
		Item:         record.Item,
		Quantity:     record.Quantity.Int64(),
		Store:        record.Store,
		RedeemMethod: record.RedeemMethod,
		ExpiryDate:   record.ExpiryDate.String(),
		CreatedAt:    formatCreatedAt(record.CreatedAt),
	}
	raw, err := json.Marshal(document)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// DecodeRecord parses a stored value back into a record.
func DecodeRecord(raw string) (Record, error) {
	var document recordDocument
	if err := json.Unmarshal([]byte(raw), &document); err != nil {
		return Record{}, err
	}
	id, err := NewDepositID(document.ID)
	if err != nil {
		return Record{}, err
	}
	quantity, err := NewQuantity(document.Quantity)
	if err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(document.Item) == "" {
		return Record{}, fmt.Errorf("%w: empty value", ErrInvalidItem)
	}
	expiryDate, err := ParseExpiryDate(document.ExpiryDate)
	if err != nil {
		return Record{}, err
	}
	createdAt, err := parseCreatedAt(document.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:           id,
		Item:         document.Item,
		Quantity:     quantity,
		Store:        document.Store,
		RedeemMethod: document.RedeemMethod,
		ExpiryDate:   expiryDate,
		CreatedAt:    createdAt.UTC(),
	}, nil
}

// parseCreatedAt accepts RFC 3339 and offset-less ISO 8601 timestamps. The
// latter are read as UTC.
func parseCreatedAt(raw string) (time.Time, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, raw)
	if err == nil {
		return createdAt, nil
	}
	for _, layout := range localCreatedAtLayouts {
		if parsed, localErr := time.ParseInLocation(layout, raw, time.UTC); localErr == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidCreatedAt, err)
}

// formatCreatedAt writes milliseconds, widening to micro or nanoseconds when
// the timestamp carries them.
func formatCreatedAt(createdAt time.Time) string {
	createdAt = createdAt.UTC()
	switch {
	case createdAt.Nanosecond()%int(time.Millisecond) == 0:
		return createdAt.Format(createdAtLayout)
	case createdAt.Nanosecond()%int(time.Microsecond) == 0:
		return createdAt.Format(createdAtMicroLayout)
	default:
		return createdAt.Format(createdAtNanoLayout)
	}
}
