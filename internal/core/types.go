package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the lifecycle state of a deposit or withdrawal.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
	StatusExpired   TransactionStatus = "EXPIRED"
)

// Terminal reports whether no further transition is allowed from s.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

// ParseTransactionStatus normalizes a status string.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	status := TransactionStatus(strings.ToUpper(strings.TrimSpace(value)))
	switch status {
	case StatusPending, StatusCompleted, StatusFailed, StatusExpired:
		return status, nil
	default:
		return "", fmt.Errorf("unknown transaction status: %q", value)
	}
}

// TransactionType distinguishes PIX deposits from withdrawals.
type TransactionType string

const (
	TypeDeposit  TransactionType = "DEPOSIT"
	TypeWithdraw TransactionType = "WITHDRAW"
)

// Transaction is the slice of a gateway transaction the reconciler works with.
type Transaction struct {
	ID           string            `json:"id"`
	Type         TransactionType   `json:"type"`
	Status       TransactionStatus `json:"status"`
	Amount       decimal.Decimal   `json:"amount"`
	CreatedAt    time.Time         `json:"created_at"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
}

// Age returns how long the transaction has existed at now.
func (t Transaction) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}

// PendingFilter narrows a count of PENDING transactions by creation time.
// Zero bounds are ignored.
type PendingFilter struct {
	CreatedBefore    time.Time
	CreatedAtOrAfter time.Time
}

// Matches reports whether a transaction created at createdAt falls inside the filter.
func (f PendingFilter) Matches(createdAt time.Time) bool {
	if !f.CreatedBefore.IsZero() && !createdAt.Before(f.CreatedBefore) {
		return false
	}
	if !f.CreatedAtOrAfter.IsZero() && createdAt.Before(f.CreatedAtOrAfter) {
		return false
	}
	return true
}
