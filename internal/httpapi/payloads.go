package httpapi

import (
	"errors"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/cupledger/pkg/deposit"
)

var errMissingExpiry = errors.New("expiry_date or expires_in_days is required")

type createRequest struct {
	Item          string `json:"item"`
	Quantity      int64  `json:"quantity"`
	Store         string `json:"store"`
	RedeemMethod  string `json:"redeem_method"`
	ExpiryDate    string `json:"expiry_date"`
	ExpiresInDays *int   `json:"expires_in_days"`
}

// expiryDate prefers an explicit date over a day count.
func (request createRequest) expiryDate(now time.Time) (deposit.ExpiryDate, error) {
	if strings.TrimSpace(request.ExpiryDate) != "" {
		return deposit.ParseExpiryDate(request.ExpiryDate)
	}
	if request.ExpiresInDays != nil {
		return deposit.ExpiryDateInDays(now, *request.ExpiresInDays)
	}
	return deposit.ExpiryDate{}, errMissingExpiry
}

type depositPayload struct {
	ID            string `json:"id"`
	Item          string `json:"item"`
	Quantity      int64  `json:"quantity"`
	Store         string `json:"store"`
	RedeemMethod  string `json:"redeem_method"`
	ExpiryDate    string `json:"expiry_date"`
	CreatedAt     string `json:"created_at"`
	Status        string `json:"status"`
	DaysRemaining int    `json:"days_remaining"`
	ExpiresToday  bool   `json:"expires_today"`
	RedeemLink    string `json:"redeem_link,omitempty"`
	MapLink       string `json:"map_link,omitempty"`
}

type statsPayload struct {
	TotalQuantity     int64 `json:"total_quantity"`
	RecordCount       int   `json:"record_count"`
	NonExpiredCount   int   `json:"non_expired_count"`
	ExpiredCount      int   `json:"expired_count"`
	ExpiringSoonCount int   `json:"expiring_soon_count"`
	ActiveQuantity    int64 `json:"active_quantity"`
	ExpiredQuantity   int64 `json:"expired_quantity"`
}

type listResponse struct {
	Deposits []depositPayload `json:"deposits"`
	Stats    statsPayload     `json:"stats"`
}

type storePayload struct {
	Name    string `json:"name"`
	MapLink string `json:"map_link"`
}

type channelPayload struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Link  string `json:"link"`
}

type optionsResponse struct {
	Stores        []storePayload   `json:"stores"`
	RedeemMethods []channelPayload `json:"redeem_methods"`
}
