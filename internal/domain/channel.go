package domain

import "time"

// Tier is a provider-imposed quota class for one sending identity.
type Tier string

const (
	Tier1K        Tier = "TIER_1K"
	Tier10K       Tier = "TIER_10K"
	Tier100K      Tier = "TIER_100K"
	TierUnlimited Tier = "TIER_UNLIMITED"
)

// TierUnlimitedCap stands in for "no limit"; large enough to never bind.
const TierUnlimitedCap = 1 << 30

func (t Tier) DailyLimit() int {
	switch t {
	case Tier1K:
		return 1_000
	case Tier10K:
		return 10_000
	case Tier100K:
		return 100_000
	case TierUnlimited:
		return TierUnlimitedCap
	default:
		return 1_000
	}
}

// Channel is an outbound sending identity (a business phone number) with its
// own daily quota.
type Channel struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId"`
	Phone   string `json:"phone"`

	// PhoneNumberID is the provider-side identity used on the send call.
	PhoneNumberID string `json:"phoneNumberId"`

	Tier Tier `json:"tier"`
	// DailyLimit overrides the tier limit when > 0.
	DailyLimit   int       `json:"dailyLimit,omitempty"`
	DailySent    int       `json:"dailySent"`
	LimitResetAt time.Time `json:"limitResetAt"`
}

// EffectiveLimit is the explicit override when set, else the tier limit.
func (c Channel) EffectiveLimit() int {
	if c.DailyLimit > 0 {
		return c.DailyLimit
	}
	return c.Tier.DailyLimit()
}

// QuotaStatus is the checkLimit result.
type QuotaStatus struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
	Tier      Tier      `json:"tier"`
}
