package models

import (
	"slices"
	"time"
)

// Account is the ledger record of one external user
type Account struct {
	ID string `json:"id"`

	Balance        Amount `json:"balance"`
	TotalEarned    Amount `json:"total_earned"`
	TotalWithdrawn Amount `json:"total_withdrawn"`
	TotalRedeemed  Amount `json:"total_redeemed"` // paid out as redeem codes
	TotalRefunded  Amount `json:"total_refunded"` // rejected withdrawals credited back

	ReferredBy string   `json:"referred_by,omitempty"` // empty if the account was not referred
	Referrals  []string `json:"referrals"`             // in attribution order

	JoinedAt     time.Time `json:"joined_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// Reconciles reports whether balance matches accumulators
func (a Account) Reconciles() bool {
	return a.Balance >= 0 && a.Balance == a.TotalEarned+a.TotalRefunded-a.TotalWithdrawn-a.TotalRedeemed
}

func (a Account) HasReferral(id string) bool {
	return slices.Contains(a.Referrals, id)
}

// Clone returns a copy that does not share the referrals slice
func (a Account) Clone() Account {
	a.Referrals = slices.Clone(a.Referrals)
	return a
}

// Stats shown to the account owner
type Stats struct {
	AccountID      string    `json:"account_id"`
	Balance        Amount    `json:"balance"`
	TotalEarned    Amount    `json:"total_earned"`
	TotalWithdrawn Amount    `json:"total_withdrawn"`
	TotalRedeemed  Amount    `json:"total_redeemed"`
	Referrals      int       `json:"referrals"`
	ActiveDays     int       `json:"active_days"`
	JoinedAt       time.Time `json:"joined_at"`
}

type LeaderboardEntry struct {
	Rank      int       `json:"rank"`
	AccountID string    `json:"account_id"`
	Referrals int       `json:"referrals"`
	JoinedAt  time.Time `json:"joined_at"`
}

// PlatformTotals aggregates the whole ledger for admins
type PlatformTotals struct {
	TotalUsers         int    `json:"total_users"`
	ActiveUsers        int    `json:"active_users"` // active during the last 7 days
	TotalBalance       Amount `json:"total_balance"`
	TotalEarned        Amount `json:"total_earned"`
	TotalWithdrawn     Amount `json:"total_withdrawn"`
	TotalRedeemed      Amount `json:"total_redeemed"`
	ActiveCodes        int    `json:"active_codes"`
	UsedCodes          int    `json:"used_codes"`
	PendingWithdrawals int    `json:"pending_withdrawals"`
	PendingAmount      Amount `json:"pending_amount"`
}
