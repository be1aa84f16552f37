// Package domain contains persistence models for billing organizations.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Organization is a billing identity. The same row can sell plans (provider)
// and pay for subscriptions (subscriber).
type Organization struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	FullName  string       `gorm:"type:text;not null" json:"full_name"`
	Email     string       `gorm:"type:text" json:"email"`
	Phone     string       `gorm:"type:text" json:"phone"`
	IsActive  bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`

	StreetAddress string `gorm:"type:text" json:"street_address"`
	Locality      string `gorm:"type:text" json:"locality"`
	Region        string `gorm:"type:text" json:"region"`
	PostalCode    string `gorm:"type:text" json:"postal_code"`
	CountryName   string `gorm:"type:text" json:"country_name"`

	// FundsBalance is escrowed money in minor units, held by the platform
	// pending withdrawal. Never negative.
	FundsBalance int64 `gorm:"not null;default:0" json:"funds_balance"`

	// BillingStart anchors the monthly billing cycle.
	BillingStart *time.Time `gorm:"" json:"billing_start,omitempty"`

	// Processor identifiers for the payment backend.
	ProcessorCustomerID  string `gorm:"type:text;column:processor_customer_id" json:"-"`
	ProcessorRecipientID string `gorm:"type:text;column:processor_recipient_id" json:"-"`

	Metadata datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// Role is the fixed two-role membership model. Managers hold all permissions
// on an organization, contributors hold use permissions.
type Role string

const (
	RoleManager     Role = "manager"
	RoleContributor Role = "contributor"
)

// Member binds a user to an organization under one role.
type Member struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_members_org_user,priority:1" json:"org_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_members_org_user,priority:2" json:"user_id"`
	Role      Role         `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "organization_members" }

// RoleDescriber lets the presentation layer attach custom role descriptions
// without the engines knowing about them.
type RoleDescriber interface {
	DescribeRole(role Role) string
}

type defaultRoleDescriber struct{}

func (defaultRoleDescriber) DescribeRole(role Role) string {
	switch role {
	case RoleManager:
		return "Manager (all permissions)"
	case RoleContributor:
		return "Contributor (use permissions)"
	default:
		return string(role)
	}
}

func NewDefaultRoleDescriber() RoleDescriber { return defaultRoleDescriber{} }
