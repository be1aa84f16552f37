package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/billinglab/subledger/internal/organization/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, tx *gorm.DB, org *domain.Organization) error {
	if tx == nil {
		tx = r.db
	}
	now := time.Now().UTC()
	if org.CreatedAt.IsZero() {
		org.CreatedAt = now
	}
	org.UpdatedAt = now
	return tx.WithContext(ctx).Create(org).Error
}

func (r *repository) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Organization, error) {
	if tx == nil {
		tx = r.db
	}
	var org domain.Organization
	err := tx.WithContext(ctx).Where("id = ?", id).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) FindBySlug(ctx context.Context, tx *gorm.DB, slug string) (*domain.Organization, error) {
	if tx == nil {
		tx = r.db
	}
	var org domain.Organization
	err := tx.WithContext(ctx).Where("slug = ?", slug).First(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *repository) Save(ctx context.Context, tx *gorm.DB, org *domain.Organization) error {
	if tx == nil {
		tx = r.db
	}
	org.UpdatedAt = time.Now().UTC()
	return tx.WithContext(ctx).Save(org).Error
}

func (r *repository) AdjustFunds(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, delta int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET funds_balance = funds_balance + ?, updated_at = ?
		 WHERE id = ? AND funds_balance + ? >= 0`,
		delta, time.Now().UTC(), orgID, delta,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrFundsUnavailable
	}
	return nil
}

func (r *repository) AdjustFundsUnchecked(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, delta int64) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE organizations
		 SET funds_balance = funds_balance + ?, updated_at = ?
		 WHERE id = ?`,
		delta, time.Now().UTC(), orgID,
	).Error
}

func (r *repository) AddMember(ctx context.Context, tx *gorm.DB, member domain.Member) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Exec(
		`INSERT INTO organization_members (id, org_id, user_id, role, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		member.ID,
		member.OrgID,
		member.UserID,
		string(member.Role),
		time.Now().UTC(),
	).Error
}

func (r *repository) MembersByRole(ctx context.Context, orgID snowflake.ID, role domain.Role) ([]domain.Member, error) {
	var members []domain.Member
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND role = ?", orgID, string(role)).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}
