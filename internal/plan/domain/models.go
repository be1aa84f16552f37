// Package domain contains recurring billing plans and their period arithmetic.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Interval is the recurring billing cadence of a plan.
type Interval string

const (
	IntervalHourly    Interval = "hourly"
	IntervalDaily     Interval = "daily"
	IntervalWeekly    Interval = "weekly"
	IntervalMonthly   Interval = "monthly"
	IntervalQuarterly Interval = "quarterly"
	IntervalYearly    Interval = "yearly"
)

// Plan is a recurring offer owned by one provider organization.
type Plan struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_plans_org_slug,priority:1" json:"org_id"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex:ux_plans_org_slug,priority:2" json:"slug"`
	Title     string       `gorm:"type:text;not null" json:"title"`
	Descr     string       `gorm:"type:text" json:"descr"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	IsActive  bool         `gorm:"not null;default:true" json:"is_active"`

	Interval     Interval `gorm:"type:text;not null;column:billing_interval" json:"interval"`
	PeriodAmount int64    `gorm:"not null" json:"period_amount"`
	SetupAmount  int64    `gorm:"not null;default:0" json:"setup_amount"`
	Unit         string   `gorm:"type:text;not null" json:"unit"`

	// TransactionFeeBps is the provider's per-transaction fee in basis points.
	TransactionFeeBps int64 `gorm:"not null;default:0;column:transaction_fee_bps" json:"transaction_fee_bps"`

	// UnlockEvent marks an access-now-pay-later plan. When set and the
	// upfront payable is zero, checkout defers the obligation instead of
	// charging immediately.
	UnlockEvent string `gorm:"type:text;column:unlock_event" json:"unlock_event,omitempty"`

	// NextPlanID points to the plan subscribers migrate to at end of life.
	NextPlanID snowflake.ID `gorm:"column:next_plan_id" json:"next_plan_id,omitempty"`

	DiscontinuedAt *time.Time `gorm:"" json:"discontinued_at,omitempty"`
}

// TableName sets the database table name.
func (Plan) TableName() string { return "plans" }
