package models

import "time"

// PackageTier gates which invitation features apply to an event.
type PackageTier string

const (
	TierClassic PackageTier = "classic"
	TierPremium PackageTier = "premium"
	TierVIP     PackageTier = "vip"
)

// RefundRate returns the fraction of the guest list that may be
// refunded automatically when guests decline. Classic events have no
// refund quota.
func (t PackageTier) RefundRate() float64 {
	switch t {
	case TierPremium:
		return 0.20
	case TierVIP:
		return 0.30
	default:
		return 0
	}
}

// HasFallback reports whether failed deliveries for this tier get the
// one-shot alternate-template resend.
func (t PackageTier) HasFallback() bool {
	return t == TierPremium || t == TierVIP
}

// Valid reports whether the tier is one of the known values.
func (t PackageTier) Valid() bool {
	return t == TierClassic || t == TierPremium || t == TierVIP
}

// RefundLedger tracks how much refundable invite capacity an event has
// consumed. Total is computed lazily on the first decline; Used only
// ever grows and never exceeds Total.
type RefundLedger struct {
	Total int `json:"total"`
	Used  int `json:"used"`
}

// Event is the aggregate root owning a guest list and a refund ledger.
type Event struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	HostName        string       `json:"host_name"`
	PackageTier     PackageTier  `json:"package_tier"`
	InvitationImage string       `json:"invitation_image"`
	InvitationText  string       `json:"invitation_text"`
	EventDate       string       `json:"event_date"`
	EventTime       string       `json:"event_time"`
	Location        string       `json:"location"`
	MapLink         string       `json:"map_link"`
	InviteCount     int          `json:"invite_count"`
	RefundLedger    RefundLedger `json:"refund_ledger"`
	CreatedAt       time.Time    `json:"created_at"`
}
