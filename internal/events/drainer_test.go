package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDrainOnceDeliversAndStamps(t *testing.T) {
	outbox, db := newTestOutbox(t)
	ctx := context.Background()

	for _, key := range []string{"a", "b"} {
		require.NoError(t, outbox.PublishTx(ctx, db, Event{
			OrgID: 10, Type: EventOrderExecuted,
			Payload: map[string]any{}, DedupeKey: key,
		}))
	}

	drainer := NewDrainer(db, outbox, zap.NewNop())
	require.NoError(t, drainer.drainOnce(ctx))

	// Everything delivered; a second pass finds an empty queue.
	rows, err := outbox.Pending(ctx, db, 10)
	require.NoError(t, err)
	require.Empty(t, rows)
	require.NoError(t, drainer.drainOnce(ctx))

	var published int64
	require.NoError(t, db.Model(&OutboxRow{}).
		Where("published_at IS NOT NULL").Count(&published).Error)
	require.Equal(t, int64(2), published)
}
