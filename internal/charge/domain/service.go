package domain

import (
	"context"

	ledgerdomain "github.com/billinglab/subledger/internal/ledger/domain"
	orgdomain "github.com/billinglab/subledger/internal/organization/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, charge *Charge, items []*ChargeItem) error
	FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Charge, error)
	FindByProcessorKey(ctx context.Context, processorKey string) (*Charge, error)
	Items(ctx context.Context, chargeID snowflake.ID) ([]ChargeItem, error)
	ItemByRank(ctx context.Context, chargeID snowflake.ID, rank int) (*ChargeItem, error)

	// UpdateState moves the charge along the lifecycle, enforcing the state
	// machine inside the UPDATE so concurrent webhooks cannot race.
	UpdateState(ctx context.Context, tx *gorm.DB, id snowflake.ID, from, to State) error

	SetItemSettlement(ctx context.Context, tx *gorm.DB, itemID, feeID, distributeID snowflake.ID) error
	AddItemRefund(ctx context.Context, tx *gorm.DB, itemID snowflake.ID, amount int64) error
}

type Service interface {
	// ChargeCard debits the customer for the invoiced order lines. A non-empty
	// cardToken debits a one-off card instead of the card on file; with
	// rememberCard set the token is stored on the processor customer first
	// and the stored card is debited. A non-nil tx persists the charge on the
	// caller's transaction so a failed debit rolls the whole order back. The
	// charge starts in created; settlement arrives through PaymentSuccessful.
	ChargeCard(ctx context.Context, tx *gorm.DB, customer *orgdomain.Organization, invoiced []*ledgerdomain.Transaction, cardToken string, rememberCard bool) (*Charge, error)

	// ChargeDeferred debits the unlock order lines still uncharged on the
	// customer's Payable account.
	ChargeDeferred(ctx context.Context, customer *orgdomain.Organization, cardToken string, rememberCard bool) (*Charge, error)

	// PaymentSuccessful moves the charge to done and books the settlement:
	// Income against the customer's Expenses, then a processor-fee and a
	// distribution entry per invoiced line, crediting escrowed funds.
	PaymentSuccessful(ctx context.Context, chargeID snowflake.ID) error

	// Failed marks the charge failed. The invoiced Payable lines stay open.
	Failed(ctx context.Context, processorKey string) error

	// Retrieve polls the backend and applies the resulting transition.
	Retrieve(ctx context.Context, chargeID snowflake.ID) (*Charge, error)

	GetByProcessorKey(ctx context.Context, processorKey string) (*Charge, error)

	DisputeCreated(ctx context.Context, processorKey string) error
	DisputeClosed(ctx context.Context, processorKey string) error

	// Refund returns refundedAmount from the item at rank to the customer's
	// card, reversing fee and distribution proportionally.
	Refund(ctx context.Context, chargeID snowflake.ID, rank int, refundedAmount int64) error
}
