package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/billinglab/subledger/internal/subscription/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, tx *gorm.DB, subscription *domain.Subscription) error {
	if tx == nil {
		tx = r.db
	}
	if subscription.CreatedAt.IsZero() {
		subscription.CreatedAt = time.Now().UTC()
	}
	return tx.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (id, org_id, plan_id, created_at, ends_at)
		 VALUES (?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.OrgID,
		subscription.PlanID,
		subscription.CreatedAt.UTC(),
		subscription.EndsAt.UTC(),
	).Error
}

func (r *repository) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	if tx == nil {
		tx = r.db
	}
	var subscription domain.Subscription
	err := tx.WithContext(ctx).Where("id = ?", id).First(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) FindByOrgAndPlan(ctx context.Context, tx *gorm.DB, orgID, planID snowflake.ID) (*domain.Subscription, error) {
	if tx == nil {
		tx = r.db
	}
	var subscription domain.Subscription
	err := tx.WithContext(ctx).
		Where("org_id = ? AND plan_id = ?", orgID, planID).
		First(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &subscription, nil
}

func (r *repository) UpdateEndsAt(ctx context.Context, tx *gorm.DB, id snowflake.ID, endsAt time.Time) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE subscriptions SET ends_at = ? WHERE id = ?`,
		endsAt.UTC(), id,
	).Error
}

func (r *repository) ListByOrg(ctx context.Context, orgID snowflake.ID) ([]domain.Subscription, error) {
	var subscriptions []domain.Subscription
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}
