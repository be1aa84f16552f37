// Package domain contains the append-only double-entry ledger models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account is the fixed vocabulary of ledger accounts. Provider-side accounts
// track money the platform holds or owes on behalf of a seller; subscriber-side
// accounts track what a buyer owes or has been reimbursed.
type Account string

const (
	// Provider side.
	AccountIncome   Account = "Income"
	AccountBacklog  Account = "Backlog"
	AccountFunds    Account = "Funds"
	AccountWithdraw Account = "Withdraw"
	AccountRefund   Account = "Refund"

	// Subscriber side.
	AccountExpenses Account = "Expenses"
	AccountPayable  Account = "Payable"
	AccountRefunded Account = "Refunded"

	AccountChargeback Account = "Chargeback"
	AccountRedeem     Account = "Redeem"
	AccountWriteoff   Account = "Writeoff"
)

// Side selects which leg of a transaction a query aggregates.
type Side int

const (
	SideOrig Side = iota
	SideDest
)

// Transaction is one balanced double-entry record: OrigAmount leaves
// (OrigOrganization, OrigAccount) and DestAmount arrives at
// (DestOrganization, DestAccount). Rows are never updated or deleted.
type Transaction struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	CreatedAt time.Time    `gorm:"not null;index"`

	OrigOrganizationID snowflake.ID `gorm:"not null;index"`
	OrigAccount        Account      `gorm:"type:text;not null;index"`
	OrigAmount         int64        `gorm:"not null"`
	OrigUnit           string       `gorm:"type:text;not null"`

	DestOrganizationID snowflake.ID `gorm:"not null;index"`
	DestAccount        Account      `gorm:"type:text;not null;index"`
	DestAmount         int64        `gorm:"not null"`
	DestUnit           string       `gorm:"type:text;not null"`

	Descr string `gorm:"type:text;not null"`

	// EventID correlates the row to the subscription, charge or coupon that
	// caused it. Zero means no correlation.
	EventID snowflake.ID `gorm:"index"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "transactions" }

// Amount returns the amount on the requested side.
func (t Transaction) Amount(side Side) int64 {
	if side == SideOrig {
		return t.OrigAmount
	}
	return t.DestAmount
}

// Unit returns the currency unit on the requested side.
func (t Transaction) Unit(side Side) string {
	if side == SideOrig {
		return t.OrigUnit
	}
	return t.DestUnit
}
