package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrPlanNotFound = errors.New("plan_not_found")

	// ErrPlanInUse prevents deleting a plan that subscriptions still reference.
	ErrPlanInUse = errors.New("plan_in_use")
)

type Repository interface {
	Create(ctx context.Context, tx *gorm.DB, plan *Plan) error
	FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Plan, error)
	FindBySlug(ctx context.Context, orgID snowflake.ID, slug string) (*Plan, error)
	Delete(ctx context.Context, tx *gorm.DB, id snowflake.ID) error
}
