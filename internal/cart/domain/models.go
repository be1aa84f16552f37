// Package domain contains shopping cart models. A cart item is a user's
// intent to subscribe an organization to a plan; checkout turns pending items
// into invoiced order lines and marks them recorded.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrCartItemNotFound = errors.New("cart_item_not_found")
	ErrDuplicateItem    = errors.New("duplicate_cart_item")
)

// CartItem is one pending plan in a user's cart. First/Last/Email describe
// the seat the subscription is bought for; when empty the buyer is the seat.
type CartItem struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID    snowflake.ID `gorm:"not null;index" json:"user_id"`
	PlanID    snowflake.ID `gorm:"not null;index" json:"plan_id"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`

	CouponCode string `gorm:"type:text" json:"coupon_code,omitempty"`

	FirstName string `gorm:"type:text" json:"first_name,omitempty"`
	LastName  string `gorm:"type:text" json:"last_name,omitempty"`
	Email     string `gorm:"type:text" json:"email,omitempty"`

	// Recorded flips to true once the item has been turned into an order.
	Recorded bool `gorm:"not null;default:false;index" json:"recorded"`
}

// TableName sets the database table name.
func (CartItem) TableName() string { return "cart_items" }

type Repository interface {
	Insert(ctx context.Context, tx *gorm.DB, item *CartItem) error
	ListPending(ctx context.Context, tx *gorm.DB, userID snowflake.ID) ([]CartItem, error)

	// RecordItem marks the pending item for (userID, planID) recorded,
	// preferring the item whose seat email matches when several are pending.
	RecordItem(ctx context.Context, tx *gorm.DB, userID, planID snowflake.ID, email string) error

	Remove(ctx context.Context, userID, planID snowflake.ID) error
}
