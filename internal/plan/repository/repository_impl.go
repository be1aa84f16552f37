package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/billinglab/subledger/internal/plan/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, tx *gorm.DB, plan *domain.Plan) error {
	if tx == nil {
		tx = r.db
	}
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now().UTC()
	}
	return tx.WithContext(ctx).Create(plan).Error
}

func (r *repository) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Plan, error) {
	if tx == nil {
		tx = r.db
	}
	var plan domain.Plan
	err := tx.WithContext(ctx).Where("id = ?", id).First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindBySlug(ctx context.Context, orgID snowflake.ID, planSlug string) (*domain.Plan, error) {
	var plan domain.Plan
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND slug = ?", orgID, planSlug).
		First(&plan).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) Delete(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	if tx == nil {
		tx = r.db
	}
	var refs int64
	if err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM subscriptions WHERE plan_id = ?`, id,
	).Scan(&refs).Error; err != nil {
		return err
	}
	if refs > 0 {
		return domain.ErrPlanInUse
	}
	return tx.WithContext(ctx).Exec(`DELETE FROM plans WHERE id = ?`, id).Error
}
