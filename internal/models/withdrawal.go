package models

import (
	"time"
)

const (
	WithdrawalStatusPending   = "pending"
	WithdrawalStatusFulfilled = "fulfilled"
	WithdrawalStatusRejected  = "rejected"
)

type WithdrawalRequest struct {
	ID             string     `json:"id"`
	AccountID      string     `json:"account_id"`
	Amount         Amount     `json:"amount"`
	Destination    string     `json:"destination"`
	Status         string     `json:"status"`
	Note           string     `json:"note,omitempty"`
	IdempotencyKey string     `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"` // nil while pending
}

func (w WithdrawalRequest) IsPending() bool {
	return w.Status == WithdrawalStatusPending
}

// Flow states of the interactive withdrawal
const (
	FlowIdle                 = "idle"
	FlowSelectingMethod      = "selecting_method"
	FlowCapturingAmount      = "capturing_amount"
	FlowCapturingDestination = "capturing_destination"
	FlowSelectingCodeAmount  = "selecting_code_amount"
)
