package repository

import (
	"context"
	"errors"
	"time"

	"github.com/billinglab/subledger/internal/charge/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, tx *gorm.DB, charge *domain.Charge, items []*domain.ChargeItem) error {
	if tx == nil {
		tx = r.db
	}
	now := time.Now().UTC()
	if charge.CreatedAt.IsZero() {
		charge.CreatedAt = now
	}
	charge.UpdatedAt = now
	err := tx.WithContext(ctx).Exec(
		`INSERT INTO charges (id, created_at, updated_at, customer_id, amount, unit,
		                      state, descr, processor_key, last4, exp_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		charge.ID,
		charge.CreatedAt.UTC(),
		charge.UpdatedAt,
		charge.CustomerID,
		charge.Amount,
		charge.Unit,
		string(charge.State),
		charge.Descr,
		charge.ProcessorKey,
		charge.Last4,
		charge.ExpDate.UTC(),
	).Error
	if err != nil {
		return err
	}
	for _, item := range items {
		err = tx.WithContext(ctx).Exec(
			`INSERT INTO charge_items (id, charge_id, item_rank, invoiced_id,
			                           invoiced_fee_id, invoiced_distribute_id, refunded_amount)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			item.ID,
			item.ChargeID,
			item.Rank,
			item.InvoicedID,
			item.InvoicedFeeID,
			item.InvoicedDistributeID,
			item.RefundedAmount,
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Charge, error) {
	if tx == nil {
		tx = r.db
	}
	var charge domain.Charge
	err := tx.WithContext(ctx).Where("id = ?", id).First(&charge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrChargeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

func (r *repository) FindByProcessorKey(ctx context.Context, processorKey string) (*domain.Charge, error) {
	var charge domain.Charge
	err := r.db.WithContext(ctx).Where("processor_key = ?", processorKey).First(&charge).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrChargeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &charge, nil
}

func (r *repository) Items(ctx context.Context, chargeID snowflake.ID) ([]domain.ChargeItem, error) {
	var items []domain.ChargeItem
	err := r.db.WithContext(ctx).
		Where("charge_id = ?", chargeID).
		Order("item_rank ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ItemByRank(ctx context.Context, chargeID snowflake.ID, rank int) (*domain.ChargeItem, error) {
	var item domain.ChargeItem
	err := r.db.WithContext(ctx).
		Where("charge_id = ? AND item_rank = ?", chargeID, rank).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrChargeItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) UpdateState(ctx context.Context, tx *gorm.DB, id snowflake.ID, from, to domain.State) error {
	if tx == nil {
		tx = r.db
	}
	if !domain.CanTransition(from, to) {
		return &domain.StateTransitionError{From: from, To: to}
	}
	result := tx.WithContext(ctx).Exec(
		`UPDATE charges SET state = ?, updated_at = ? WHERE id = ? AND state = ?`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		current, err := r.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		return &domain.StateTransitionError{From: current.State, To: to}
	}
	return nil
}

func (r *repository) SetItemSettlement(ctx context.Context, tx *gorm.DB, itemID, feeID, distributeID snowflake.ID) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE charge_items SET invoiced_fee_id = ?, invoiced_distribute_id = ? WHERE id = ?`,
		feeID, distributeID, itemID,
	).Error
}

func (r *repository) AddItemRefund(ctx context.Context, tx *gorm.DB, itemID snowflake.ID, amount int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE charge_items SET refunded_amount = refunded_amount + ? WHERE id = ?`,
		amount, itemID,
	).Error
}
