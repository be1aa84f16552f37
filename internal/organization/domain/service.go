package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrSlugTaken            = errors.New("slug_taken")

	// ErrFundsUnavailable means a guarded balance update would have driven
	// funds_balance negative. The enclosing transaction must roll back.
	ErrFundsUnavailable = errors.New("funds_unavailable")
)

type Repository interface {
	Create(ctx context.Context, tx *gorm.DB, org *Organization) error
	FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Organization, error)
	FindBySlug(ctx context.Context, tx *gorm.DB, slug string) (*Organization, error)
	Save(ctx context.Context, tx *gorm.DB, org *Organization) error

	// AdjustFunds applies delta to funds_balance with a non-negativity guard
	// evaluated inside the UPDATE, so concurrent writers cannot overdraw.
	AdjustFunds(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, delta int64) error

	// AdjustFundsUnchecked applies delta without the guard. Only the fee
	// reversal on refunds uses it; the broker absorbs a negative swing there.
	AdjustFundsUnchecked(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, delta int64) error

	AddMember(ctx context.Context, tx *gorm.DB, member Member) error
	MembersByRole(ctx context.Context, orgID snowflake.ID, role Role) ([]Member, error)
}

type CreateOrganizationRequest struct {
	FullName string
	Email    string
	Phone    string
}

type Service interface {
	Create(ctx context.Context, req CreateOrganizationRequest, at time.Time) (*Organization, error)
	GetBySlug(ctx context.Context, slug string) (*Organization, error)
	GetByID(ctx context.Context, id snowflake.ID) (*Organization, error)

	// AssociateProcessor registers or refreshes the payment-backend customer
	// for the organization, optionally attaching a card token.
	AssociateProcessor(ctx context.Context, orgID snowflake.ID, cardToken string) error

	// Withdraw moves escrowed funds to the organization's bank account:
	// backend transfer, Funds -> Withdraw ledger entry, balance decrement.
	Withdraw(ctx context.Context, orgID snowflake.ID, amount int64, unit string) error

	AddMember(ctx context.Context, orgID, userID snowflake.ID, role Role) error
}
