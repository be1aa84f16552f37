// Package domain contains the charge models: one Charge per card debit, one
// ChargeItem per invoiced order line settled by that debit.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/billinglab/subledger/internal/humanize"
	"github.com/bwmarrin/snowflake"
)

var (
	ErrChargeNotFound     = errors.New("charge_not_found")
	ErrChargeItemNotFound = errors.New("charge_item_not_found")
	ErrInvalidAmount      = errors.New("invalid_refund_amount")
	ErrNotPaid            = errors.New("charge_not_paid")
)

// StateTransitionError reports a webhook or caller trying to move a charge
// along an edge the state machine does not have.
type StateTransitionError struct {
	From, To State
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("charge state transition %s -> %s not allowed", e.From, e.To)
}

// InsufficientFundsError means a refund asked for more than the provider's
// escrowed balance can cover.
type InsufficientFundsError struct {
	Available int64
	Required  int64
	Unit      string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: %s available, %s required",
		humanize.AsMoney(e.Available, e.Unit), humanize.AsMoney(e.Required, e.Unit))
}

// State is the charge lifecycle. A disputed charge returns to done when the
// dispute is won; a lost dispute stays disputed with a Chargeback entry.
type State string

const (
	StateCreated  State = "created"
	StateDone     State = "done"
	StateFailed   State = "failed"
	StateDisputed State = "disputed"
)

var transitions = map[State][]State{
	StateCreated:  {StateDone, StateFailed},
	StateDone:     {StateDisputed},
	StateDisputed: {StateDone},
}

// CanTransition reports whether from -> to is a legal lifecycle edge.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Charge records one debit against a customer's card.
type Charge struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time    `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null" json:"updated_at"`

	CustomerID snowflake.ID `gorm:"not null;index" json:"customer_id"`
	Amount     int64        `gorm:"not null" json:"amount"`
	Unit       string       `gorm:"type:text;not null" json:"unit"`
	State      State        `gorm:"type:text;not null;index" json:"state"`
	Descr      string       `gorm:"type:text" json:"descr"`

	// ProcessorKey is the backend's identifier, used to correlate webhooks.
	ProcessorKey string    `gorm:"type:text;not null;uniqueIndex:ux_charges_processor_key" json:"processor_key"`
	Last4        string    `gorm:"type:text" json:"last4"`
	ExpDate      time.Time `json:"exp_date"`
}

// TableName sets the database table name.
func (Charge) TableName() string { return "charges" }

// ChargeItem links a charge to one invoiced order line and, once the payment
// settles, to the fee and distribution ledger entries derived from it.
type ChargeItem struct {
	ID       snowflake.ID `gorm:"primaryKey" json:"id"`
	ChargeID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_charge_items_charge_rank,priority:1" json:"charge_id"`
	Rank     int          `gorm:"not null;column:item_rank;uniqueIndex:ux_charge_items_charge_rank,priority:2" json:"rank"`

	InvoicedID           snowflake.ID `gorm:"not null;index" json:"invoiced_id"`
	InvoicedFeeID        snowflake.ID `gorm:"" json:"invoiced_fee_id,omitempty"`
	InvoicedDistributeID snowflake.ID `gorm:"" json:"invoiced_distribute_id,omitempty"`

	// RefundedAmount accumulates partial refunds against this item.
	RefundedAmount int64 `gorm:"not null;default:0" json:"refunded_amount"`
}

// TableName sets the database table name.
func (ChargeItem) TableName() string { return "charge_items" }
