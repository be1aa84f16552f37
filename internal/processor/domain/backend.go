// Package domain defines the payment-processor backend contract. The wire
// protocol is the backend's concern; engines only see receipts and errors.
package domain

import (
	"context"
	"fmt"
	"time"

	orgdomain "github.com/billinglab/subledger/internal/organization/domain"
)

// ChargeReceipt is what the processor returns for a successful charge
// submission. Last4 and ExpDate are kept so receipts can be rendered later.
type ChargeReceipt struct {
	ProcessorKey string
	CreatedAt    time.Time
	Last4        string
	ExpDate      time.Time
}

// ChargeStatus mirrors the processor's view of a charge.
type ChargeStatus string

const (
	ChargeStatusPending ChargeStatus = "pending"
	ChargeStatusPaid    ChargeStatus = "paid"
	ChargeStatusFailed  ChargeStatus = "failed"
)

// BankInfo describes the deposit account attached to a provider.
type BankInfo struct {
	BankName string
	Last4    string
	Unit     string
}

type Backend interface {
	// CreateCharge debits the customer's stored card.
	CreateCharge(ctx context.Context, customer *orgdomain.Organization, amount int64, unit, descr, stmtDescr string) (ChargeReceipt, error)

	// CreateChargeOnCard debits a one-off card token.
	CreateChargeOnCard(ctx context.Context, cardToken string, amount int64, unit, descr, stmtDescr string) (ChargeReceipt, error)

	// RefundCharge returns amount to the card behind an earlier charge.
	RefundCharge(ctx context.Context, processorKey string, amount int64) error

	// CreateOrUpdateCard attaches a card token to the processor-side
	// customer, creating the customer when needed. Returns the customer id.
	CreateOrUpdateCard(ctx context.Context, customer *orgdomain.Organization, cardToken string) (string, error)

	// CreateOrUpdateBank attaches a bank token to the processor-side
	// recipient. Returns the recipient id.
	CreateOrUpdateBank(ctx context.Context, provider *orgdomain.Organization, bankToken string) (string, error)

	RetrieveBank(ctx context.Context, provider *orgdomain.Organization) (BankInfo, error)

	RetrieveCharge(ctx context.Context, processorKey string) (ChargeStatus, error)

	// CreateTransfer moves amount to the provider's bank account.
	CreateTransfer(ctx context.Context, provider *orgdomain.Organization, amount int64, unit, descr string) (string, time.Time, error)

	// ProrateTransaction returns the processor's own fee on amount, used
	// when no platform fee plan is configured.
	ProrateTransaction(amount int64) int64
}

// Error wraps a payment backend failure. Retryable distinguishes transient
// transport faults from declines.
type Error struct {
	Op        string
	Detail    string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("processor %s: %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("processor %s: %s", e.Op, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }
