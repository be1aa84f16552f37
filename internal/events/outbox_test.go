package events

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestOutbox(t *testing.T) (*Outbox, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&OutboxRow{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewOutbox(zap.NewNop(), node), db
}

func TestPublishTxDeduplicates(t *testing.T) {
	outbox, db := newTestOutbox(t)
	ctx := context.Background()

	event := Event{
		OrgID:     10,
		Type:      EventChargeUpdated,
		Payload:   map[string]any{"charge_id": "1", "state": "done"},
		DedupeKey: "charge:1:done",
	}
	require.NoError(t, outbox.PublishTx(ctx, db, event))

	// A retried operation stages the same event again without erroring.
	require.NoError(t, outbox.PublishTx(ctx, db, event))

	rows, err := outbox.Pending(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, EventChargeUpdated, rows[0].EventType)
	require.JSONEq(t, `{"charge_id":"1","state":"done"}`, rows[0].Payload)
}

func TestPendingAndMarkPublished(t *testing.T) {
	outbox, db := newTestOutbox(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, outbox.PublishTx(ctx, db, Event{
			OrgID: 10, Type: EventOrderExecuted,
			Payload: map[string]any{}, DedupeKey: key,
		}))
	}

	rows, err := outbox.Pending(ctx, db, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, outbox.MarkPublished(ctx, db, []snowflake.ID{rows[0].ID, rows[1].ID}))
	require.NoError(t, outbox.MarkPublished(ctx, db, nil))

	rows, err = outbox.Pending(ctx, db, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}
