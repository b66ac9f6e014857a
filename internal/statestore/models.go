package statestore

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpportunitySample is one persisted per-tick best-route observation,
// kept for the show/export commands and post-hoc tuning.
type OpportunitySample struct {
	Bucket    time.Time
	Scope     string
	Asset     string
	BuyVenue  string
	SellVenue string
	Size      decimal.Decimal
	ProfitPct decimal.Decimal
	GasCost   decimal.Decimal
	NoRoute   bool
	CreatedAt time.Time
}

// AlertAudit captures an emitted alert for auditing.
type AlertAudit struct {
	ID         int64
	SentAt     time.Time
	Scope      string
	Asset      string
	BuyVenue   string
	SellVenue  string
	ProfitPct  decimal.Decimal
	Reason     string
	Recipients []string
	CreatedAt  time.Time
}
