package repository

import (
	"context"
	"errors"
	"time"

	"github.com/billinglab/subledger/internal/coupon/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, tx *gorm.DB, coupon *domain.Coupon) error {
	if tx == nil {
		tx = r.db
	}
	if coupon.CreatedAt.IsZero() {
		coupon.CreatedAt = time.Now().UTC()
	}
	return tx.WithContext(ctx).Exec(
		`INSERT INTO coupons (id, code, org_id, plan_id, percent, created_at, ends_at, nb_attempts, descr)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		coupon.ID,
		coupon.Code,
		coupon.OrgID,
		coupon.PlanID,
		coupon.Percent,
		coupon.CreatedAt.UTC(),
		coupon.EndsAt.UTC(),
		coupon.NbAttempts,
		coupon.Descr,
	).Error
}

func (r *repository) FindByCode(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, code string) (*domain.Coupon, error) {
	if tx == nil {
		tx = r.db
	}
	var coupon domain.Coupon
	err := tx.WithContext(ctx).
		Where("org_id = ? AND code = ?", orgID, code).
		First(&coupon).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) ListByOrg(ctx context.Context, orgID snowflake.ID) ([]domain.Coupon, error) {
	var coupons []domain.Coupon
	err := r.db.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at ASC").
		Find(&coupons).Error
	if err != nil {
		return nil, err
	}
	return coupons, nil
}

func (r *repository) ConsumeAttempt(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Exec(
		`UPDATE coupons SET nb_attempts = nb_attempts - 1
		 WHERE id = ? AND nb_attempts > 0`,
		id,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Unlimited coupons (nb_attempts = -1) match no row on purpose.
		var remaining int64
		err := tx.WithContext(ctx).Raw(
			`SELECT nb_attempts FROM coupons WHERE id = ?`, id,
		).Scan(&remaining).Error
		if err != nil {
			return err
		}
		if remaining == 0 {
			return domain.ErrCouponExhausted
		}
	}
	return nil
}
