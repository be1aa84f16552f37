package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrEndsAtRegression     = errors.New("ends_at_regression")
)

type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByOrgAndPlan(ctx context.Context, tx *gorm.DB, orgID, planID snowflake.ID) (*Subscription, error)
	UpdateEndsAt(ctx context.Context, tx *gorm.DB, id snowflake.ID, endsAt time.Time) error
	ListByOrg(ctx context.Context, orgID snowflake.ID) ([]Subscription, error)
}

type Service interface {
	// GetOrCreate persists the (organization, plan) subscription if it does
	// not exist yet. Idempotent: an existing row is returned unchanged.
	GetOrCreate(ctx context.Context, tx *gorm.DB, orgID, planID snowflake.ID, at time.Time) (*Subscription, error)

	// Extend moves EndsAt forward. Regressions are rejected.
	Extend(ctx context.Context, tx *gorm.DB, id snowflake.ID, endsAt time.Time) error

	// Unsubscribe ends access immediately.
	Unsubscribe(ctx context.Context, id snowflake.ID, at time.Time) error

	GetByID(ctx context.Context, id snowflake.ID) (*Subscription, error)
	ListByOrg(ctx context.Context, orgID snowflake.ID) ([]Subscription, error)

	// Balance is the outstanding Payable amount for the subscription.
	Balance(ctx context.Context, id snowflake.ID) (int64, error)

	// IsLocked reports whether the subscription carries an outstanding
	// Payable balance and access should be gated.
	IsLocked(ctx context.Context, id snowflake.ID) (bool, error)
}
