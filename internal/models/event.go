package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventAccountCreated     = "account_created"
	EventTransaction        = "transaction"
	EventWithdrawalCreated  = "withdrawal_created"
	EventWithdrawalResolved = "withdrawal_resolved"
	EventCodeIssued         = "code_issued"
)

// Event is emitted after a mutation is committed
// Exactly one payload field is set, matching Type
type Event struct {
	ID         uuid.UUID          `json:"id"`
	Type       string             `json:"type"`
	OccurredAt time.Time          `json:"occurred_at"`
	AccountID  string             `json:"account_id"`
	Account    *Account           `json:"account,omitempty"`
	Tx         *Transaction       `json:"transaction,omitempty"`
	Withdrawal *WithdrawalRequest `json:"withdrawal,omitempty"`
	Code       *CatalogEntry      `json:"code,omitempty"`
}

func NewEvent(eventType string, accountID string, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: at,
		AccountID:  accountID,
	}
}
