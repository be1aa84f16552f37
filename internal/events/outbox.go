// Package events implements a transactional outbox. Business services publish
// notifications inside the same database transaction as their ledger writes,
// so a rolled-back operation never leaks an event.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	EventOrderExecuted   = "order.executed"
	EventCouponGenerated = "coupon.generated"
	EventChargeUpdated   = "charge.updated"
)

// Event is a pending notification destined for external consumers.
type Event struct {
	OrgID     snowflake.ID
	Type      string
	Payload   map[string]any
	DedupeKey string
}

// OutboxRow is the persisted form of an Event.
type OutboxRow struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	OrgID       snowflake.ID `gorm:"not null;index"`
	EventType   string       `gorm:"type:text;not null;column:event_type"`
	Payload     string       `gorm:"type:text;not null"`
	DedupeKey   string       `gorm:"type:text;not null;uniqueIndex:ux_outbox_dedupe_key"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	PublishedAt *time.Time   `gorm:""`
}

// TableName sets the database table name.
func (OutboxRow) TableName() string { return "outbox_events" }

type Outbox struct {
	log   *zap.Logger
	genID *snowflake.Node
}

func NewOutbox(log *zap.Logger, genID *snowflake.Node) *Outbox {
	return &Outbox{
		log:   log.Named("events.outbox"),
		genID: genID,
	}
}

// PublishTx stages an event on the caller's transaction. Duplicate dedupe
// keys are dropped silently so retried operations stay idempotent.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	result := tx.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (id, org_id, event_type, payload, dedupe_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (dedupe_key) DO NOTHING`,
		o.genID.Generate(),
		event.OrgID,
		event.Type,
		string(payload),
		event.DedupeKey,
		time.Now().UTC(),
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		o.log.Debug("duplicate event dropped", zap.String("dedupe_key", event.DedupeKey))
	}
	return nil
}

// Pending returns staged events that have not been delivered yet, oldest first.
func (o *Outbox) Pending(ctx context.Context, db *gorm.DB, limit int) ([]OutboxRow, error) {
	var rows []OutboxRow
	err := db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkPublished stamps delivered events.
func (o *Outbox) MarkPublished(ctx context.Context, db *gorm.DB, ids []snowflake.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&OutboxRow{}).
		Where("id IN ?", ids).
		Update("published_at", time.Now().UTC()).Error
}

// Module wires the outbox and the drainer that delivers staged events.
var Module = fx.Module("events",
	fx.Provide(NewOutbox),
	fx.Provide(NewDrainer),
	fx.Invoke(registerDrainer),
)
