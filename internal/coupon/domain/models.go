// Package domain contains discount coupon models.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrCouponNotFound  = errors.New("coupon_not_found")
	ErrCouponExpired   = errors.New("coupon_expired")
	ErrCouponExhausted = errors.New("coupon_exhausted")
	ErrInvalidPercent  = errors.New("invalid_percent")
)

// Coupon grants a percentage discount on a provider's plans. NbAttempts
// counts remaining redemptions; -1 means unlimited.
type Coupon struct {
	ID         snowflake.ID `gorm:"primaryKey" json:"id"`
	Code       string       `gorm:"type:text;not null;uniqueIndex:ux_coupons_org_code,priority:2" json:"code"`
	OrgID      snowflake.ID `gorm:"not null;index;uniqueIndex:ux_coupons_org_code,priority:1" json:"org_id"`
	PlanID     snowflake.ID `gorm:"index" json:"plan_id,omitempty"`
	Percent    int64        `gorm:"not null" json:"percent"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	EndsAt     time.Time    `gorm:"not null" json:"ends_at"`
	NbAttempts int64        `gorm:"not null;default:-1" json:"nb_attempts"`
	Descr      string       `gorm:"type:text" json:"descr"`
}

// TableName sets the database table name.
func (Coupon) TableName() string { return "coupons" }

// Valid reports whether the coupon can still be redeemed at t for planID.
func (c Coupon) Valid(t time.Time, planID snowflake.ID) error {
	if !c.EndsAt.IsZero() && c.EndsAt.Before(t) {
		return ErrCouponExpired
	}
	if c.NbAttempts == 0 {
		return ErrCouponExhausted
	}
	if c.PlanID != 0 && c.PlanID != planID {
		return ErrCouponNotFound
	}
	return nil
}

// Apply returns amount reduced by the coupon's percentage, floor-rounded.
func (c Coupon) Apply(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	discounted := amount - amount*c.Percent/100
	if discounted < 0 {
		return 0
	}
	return discounted
}

type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, coupon *Coupon) error
	FindByCode(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, code string) (*Coupon, error)
	ListByOrg(ctx context.Context, orgID snowflake.ID) ([]Coupon, error)

	// ConsumeAttempt decrements nb_attempts when the coupon is not unlimited,
	// guarded so concurrent redemptions cannot overshoot.
	ConsumeAttempt(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
}

type Service interface {
	// Mint creates a coupon with a random code on the provider's plans.
	Mint(ctx context.Context, tx *gorm.DB, orgID, planID snowflake.ID, percent int64, nbAttempts int64, descr string) (*Coupon, error)

	// Redeem validates the coupon for planID and consumes one attempt.
	Redeem(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, code string, planID snowflake.ID) (*Coupon, error)
}
