package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	DirectionCredit = "credit"
	DirectionDebit  = "debit"
)

// Reasons of balance mutations
const (
	ReasonReferral   = "referral"
	ReasonDailyBonus = "daily_bonus"
	ReasonRedeemCode = "redeem_code"
	ReasonRefund     = "refund"
	ReasonWithdrawal = "withdrawal"
	ReasonCodePayout = "code_payout"
)

// IsEarnReason reports whether a credit counts as earnings
func IsEarnReason(reason string) bool {
	switch reason {
	case ReasonReferral, ReasonDailyBonus, ReasonRedeemCode:
		return true
	default:
		return false
	}
}

// Transaction is one committed balance mutation
type Transaction struct {
	ID           uuid.UUID `json:"id"`
	AccountID    string    `json:"account_id"`
	Direction    string    `json:"direction"`
	Reason       string    `json:"reason"`
	Amount       Amount    `json:"amount"`
	BalanceAfter Amount    `json:"balance_after"`
	Reference    string    `json:"reference,omitempty"` // withdrawal id, code fingerprint, referee id
	CreatedAt    time.Time `json:"created_at"`
}
