package repository

import (
	"context"
	"testing"
	"time"

	"github.com/billinglab/subledger/internal/cart/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestRepository(t *testing.T) (domain.Repository, *snowflake.Node) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.CartItem{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewRepository(db), node
}

func TestInsertRejectsDuplicates(t *testing.T) {
	repo, node := newTestRepository(t)
	ctx := context.Background()

	item := &domain.CartItem{ID: node.Generate(), UserID: 1, PlanID: 10}
	require.NoError(t, repo.Insert(ctx, nil, item))

	dup := &domain.CartItem{ID: node.Generate(), UserID: 1, PlanID: 10}
	require.ErrorIs(t, repo.Insert(ctx, nil, dup), domain.ErrDuplicateItem)

	// A different seat email is a distinct item.
	seat := &domain.CartItem{ID: node.Generate(), UserID: 1, PlanID: 10, Email: "friend@other.test"}
	require.NoError(t, repo.Insert(ctx, nil, seat))

	pending, err := repo.ListPending(ctx, nil, 1)
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestRecordItemPrefersSeatEmail(t *testing.T) {
	repo, node := newTestRepository(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := &domain.CartItem{ID: node.Generate(), UserID: 1, PlanID: 10, CreatedAt: now}
	seat := &domain.CartItem{
		ID: node.Generate(), UserID: 1, PlanID: 10,
		Email: "friend@other.test", CreatedAt: now.Add(time.Second),
	}
	require.NoError(t, repo.Insert(ctx, nil, first))
	require.NoError(t, repo.Insert(ctx, nil, seat))

	// The seat-holder's line is consumed even though it is newer.
	require.NoError(t, repo.RecordItem(ctx, nil, 1, 10, "friend@other.test"))
	pending, err := repo.ListPending(ctx, nil, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, first.ID, pending[0].ID)

	// Without a match the oldest pending line goes first.
	require.NoError(t, repo.RecordItem(ctx, nil, 1, 10, ""))
	pending, err = repo.ListPending(ctx, nil, 1)
	require.NoError(t, err)
	require.Empty(t, pending)

	require.ErrorIs(t, repo.RecordItem(ctx, nil, 1, 10, ""), domain.ErrCartItemNotFound)
}

func TestRemoveOnlyDropsPending(t *testing.T) {
	repo, node := newTestRepository(t)
	ctx := context.Background()

	kept := &domain.CartItem{ID: node.Generate(), UserID: 1, PlanID: 10}
	require.NoError(t, repo.Insert(ctx, nil, kept))
	require.NoError(t, repo.RecordItem(ctx, nil, 1, 10, ""))

	dropped := &domain.CartItem{ID: node.Generate(), UserID: 1, PlanID: 10}
	require.NoError(t, repo.Insert(ctx, nil, dropped))
	require.NoError(t, repo.Remove(ctx, 1, 10))

	pending, err := repo.ListPending(ctx, nil, 1)
	require.NoError(t, err)
	require.Empty(t, pending)

	// The recorded line survives for audit.
	var total int64
	require.NoError(t, repo.(*repository).db.
		Raw(`SELECT COUNT(1) FROM cart_items WHERE user_id = 1`).Scan(&total).Error)
	require.Equal(t, int64(1), total)
}
