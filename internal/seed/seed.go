// Package seed bootstraps the rows the platform cannot run without.
package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/billinglab/subledger/internal/config"
	organizationdomain "github.com/billinglab/subledger/internal/organization/domain"
	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// EnsureBroker makes sure the broker organization named in configuration
// exists. Every processor fee and platform-side ledger account attaches to
// this row, so startup fails hard without it.
func EnsureBroker(db *gorm.DB, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	slug := strings.TrimSpace(cfg.BrokerSlug)
	if slug == "" {
		return errors.New("broker slug is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.WithContext(ctx).
			Model(&organizationdomain.Organization{}).
			Where("slug = ?", slug).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		now := time.Now().UTC()
		broker := &organizationdomain.Organization{
			ID:        node.Generate(),
			Slug:      slug,
			FullName:  cfg.AppName,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(broker).Error
	})
}
