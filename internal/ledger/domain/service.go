package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidAccount      = errors.New("invalid_account")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidUnit         = errors.New("invalid_unit")

	// ErrIntegrityViolation flags a programming or data defect, such as
	// invoiced totals exceeding the charge amount. Never retried.
	ErrIntegrityViolation = errors.New("ledger_integrity_violation")
)

// MonthlyBalance is one month of aggregated activity for reporting.
type MonthlyBalance struct {
	Month   time.Time
	Balance int64
	Unit    string
}

type Service interface {
	// Append inserts transactions on the caller's gorm transaction so ledger
	// writes commit atomically with their sibling business writes.
	Append(ctx context.Context, tx *gorm.DB, transactions ...*Transaction) error

	// Sum aggregates one side of a transaction set. A set spanning multiple
	// currency units is logged as an anomaly and summed with the first
	// non-empty unit; callers must guarantee single-currency sets upstream.
	Sum(transactions []*Transaction, side Side) (int64, string)

	// OrganizationBalance is sum(dest) - sum(orig) for an (organization,
	// account) pair over rows created strictly before asOf.
	OrganizationBalance(ctx context.Context, orgID snowflake.ID, account Account, asOf time.Time) (int64, error)

	// SubscriptionBalance is the Payable balance scoped to one subscription's
	// event id. A positive balance means the subscriber still owes money.
	SubscriptionBalance(ctx context.Context, subscriptionID snowflake.ID) (int64, error)

	// MonthlyBalances reports month-end balances for a calendar year.
	MonthlyBalances(ctx context.Context, orgID snowflake.ID, account Account, year int) ([]MonthlyBalance, error)
}
