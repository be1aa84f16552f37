// Package domain contains the subscriber-provider contract models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Subscription binds a subscriber organization to a plan. EndsAt is the
// exclusive upper bound of paid-for access; it only ever moves forward
// through successful orders. There is no stored lifecycle state: "locked"
// is recomputed from the ledger on every access-control check.
type Subscription struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_subscriptions_org_plan,priority:1" json:"org_id"`
	PlanID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_subscriptions_org_plan,priority:2" json:"plan_id"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	EndsAt    time.Time    `gorm:"not null;index" json:"ends_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// Active reports whether paid-for access covers the instant at.
func (s Subscription) Active(at time.Time) bool {
	return at.Before(s.EndsAt)
}
