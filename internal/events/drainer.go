package events

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	drainInterval = 5 * time.Second
	drainBatch    = 100
)

// Drainer delivers staged outbox events in the background. Delivery here is
// the structured log stream; a message broker slots in behind deliver.
type Drainer struct {
	db     *gorm.DB
	outbox *Outbox
	log    *zap.Logger
	done   chan struct{}
}

func NewDrainer(db *gorm.DB, outbox *Outbox, log *zap.Logger) *Drainer {
	return &Drainer{
		db:     db,
		outbox: outbox,
		log:    log.Named("events.drainer"),
		done:   make(chan struct{}),
	}
}

func (d *Drainer) run() {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.done:
			return
		case <-ticker.C:
			if err := d.drainOnce(context.Background()); err != nil {
				d.log.Warn("outbox drain failed", zap.Error(err))
			}
		}
	}
}

// drainOnce delivers up to one batch of pending events.
func (d *Drainer) drainOnce(ctx context.Context) error {
	rows, err := d.outbox.Pending(ctx, d.db, drainBatch)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(rows))
	for _, row := range rows {
		d.deliver(row)
		ids = append(ids, row.ID)
	}
	return d.outbox.MarkPublished(ctx, d.db, ids)
}

func (d *Drainer) deliver(row OutboxRow) {
	d.log.Info("event delivered",
		zap.String("event_type", row.EventType),
		zap.String("org_id", row.OrgID.String()),
		zap.String("payload", row.Payload))
}

func registerDrainer(lc fx.Lifecycle, d *Drainer) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go d.run()
			return nil
		},
		OnStop: func(context.Context) error {
			close(d.done)
			return nil
		},
	})
}
