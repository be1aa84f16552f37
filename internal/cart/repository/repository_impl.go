package repository

import (
	"context"
	"time"

	"github.com/billinglab/subledger/internal/cart/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, tx *gorm.DB, item *domain.CartItem) error {
	if tx == nil {
		tx = r.db
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM cart_items
		 WHERE user_id = ? AND plan_id = ? AND email = ? AND recorded = ?`,
		item.UserID, item.PlanID, item.Email, false,
	).Scan(&count).Error
	if err != nil {
		return err
	}
	if count > 0 {
		return domain.ErrDuplicateItem
	}
	return tx.WithContext(ctx).Exec(
		`INSERT INTO cart_items (id, user_id, plan_id, created_at, coupon_code,
		                         first_name, last_name, email, recorded)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.UserID,
		item.PlanID,
		item.CreatedAt.UTC(),
		item.CouponCode,
		item.FirstName,
		item.LastName,
		item.Email,
		false,
	).Error
}

func (r *repository) ListPending(ctx context.Context, tx *gorm.DB, userID snowflake.ID) ([]domain.CartItem, error) {
	if tx == nil {
		tx = r.db
	}
	var items []domain.CartItem
	err := tx.WithContext(ctx).
		Where("user_id = ? AND recorded = ?", userID, false).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) RecordItem(ctx context.Context, tx *gorm.DB, userID, planID snowflake.ID, email string) error {
	if tx == nil {
		tx = r.db
	}
	var items []domain.CartItem
	err := tx.WithContext(ctx).
		Where("user_id = ? AND plan_id = ? AND recorded = ?", userID, planID, false).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return domain.ErrCartItemNotFound
	}
	chosen := items[0]
	for _, item := range items {
		if email != "" && item.Email == email {
			chosen = item
			break
		}
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE cart_items SET recorded = ? WHERE id = ?`,
		true, chosen.ID,
	).Error
}

func (r *repository) Remove(ctx context.Context, userID, planID snowflake.ID) error {
	return r.db.WithContext(ctx).Exec(
		`DELETE FROM cart_items WHERE user_id = ? AND plan_id = ? AND recorded = ?`,
		userID, planID, false,
	).Error
}
