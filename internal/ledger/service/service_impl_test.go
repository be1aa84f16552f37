package service

import (
	"context"
	"testing"
	"time"

	"github.com/billinglab/subledger/internal/ledger/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Transaction{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &Service{
		db:    db,
		log:   zap.NewNop(),
		genID: node,
	}, db
}

func entry(orig, dest snowflake.ID, origAccount, destAccount domain.Account, amount int64, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		CreatedAt:          at,
		OrigOrganizationID: orig,
		OrigAccount:        origAccount,
		OrigAmount:         amount,
		OrigUnit:           "usd",
		DestOrganizationID: dest,
		DestAccount:        destAccount,
		DestAmount:         amount,
		DestUnit:           "usd",
		Descr:              "test entry",
	}
}

func TestAppendValidates(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	bad := entry(0, 2, domain.AccountBacklog, domain.AccountPayable, 100, now)
	require.ErrorIs(t, svc.Append(ctx, db, bad), domain.ErrInvalidOrganization)

	bad = entry(1, 2, domain.AccountBacklog, domain.AccountPayable, -5, now)
	require.ErrorIs(t, svc.Append(ctx, db, bad), domain.ErrInvalidAmount)

	bad = entry(1, 2, "", domain.AccountPayable, 100, now)
	require.ErrorIs(t, svc.Append(ctx, db, bad), domain.ErrInvalidAccount)

	bad = entry(1, 2, domain.AccountBacklog, domain.AccountPayable, 100, now)
	bad.OrigUnit = ""
	require.ErrorIs(t, svc.Append(ctx, db, bad), domain.ErrInvalidUnit)

	good := entry(1, 2, domain.AccountBacklog, domain.AccountPayable, 100, now)
	require.NoError(t, svc.Append(ctx, db, good))
	require.NotZero(t, good.ID)
}

func TestSumSingleAndMixedUnits(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Now().UTC()

	a := entry(1, 2, domain.AccountBacklog, domain.AccountPayable, 100, now)
	b := entry(1, 2, domain.AccountBacklog, domain.AccountPayable, 250, now)
	total, unit := svc.Sum([]*domain.Transaction{a, b}, domain.SideDest)
	require.Equal(t, int64(350), total)
	require.Equal(t, "usd", unit)

	b.DestUnit = "eur"
	total, unit = svc.Sum([]*domain.Transaction{a, b}, domain.SideDest)
	require.Equal(t, int64(350), total)
	require.Equal(t, "usd", unit)
}

func TestOrganizationBalance(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	provider := snowflake.ID(10)
	subscriber := snowflake.ID(20)

	require.NoError(t, svc.Append(ctx, db,
		entry(provider, subscriber, domain.AccountBacklog, domain.AccountPayable, 1000, now.Add(-2*time.Hour)),
		entry(subscriber, provider, domain.AccountPayable, domain.AccountFunds, 400, now.Add(-time.Hour)),
	))

	balance, err := svc.OrganizationBalance(ctx, subscriber, domain.AccountPayable, now)
	require.NoError(t, err)
	require.Equal(t, int64(600), balance)

	// Rows at or after asOf are excluded.
	balance, err = svc.OrganizationBalance(ctx, subscriber, domain.AccountPayable, now.Add(-90*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(1000), balance)

	funds, err := svc.OrganizationBalance(ctx, provider, domain.AccountFunds, now)
	require.NoError(t, err)
	require.Equal(t, int64(400), funds)
}

func TestSubscriptionBalanceReachesZeroWhenPaid(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC()

	subscriptionID := snowflake.ID(99)
	invoiced := entry(10, 20, domain.AccountBacklog, domain.AccountPayable, 1000, now)
	invoiced.EventID = subscriptionID
	fee := entry(20, 1, domain.AccountPayable, domain.AccountFunds, 59, now)
	fee.EventID = subscriptionID
	distribute := entry(20, 10, domain.AccountPayable, domain.AccountFunds, 941, now)
	distribute.EventID = subscriptionID

	require.NoError(t, svc.Append(ctx, db, invoiced))
	balance, err := svc.SubscriptionBalance(ctx, subscriptionID)
	require.NoError(t, err)
	require.Equal(t, int64(1000), balance)

	require.NoError(t, svc.Append(ctx, db, fee, distribute))
	balance, err = svc.SubscriptionBalance(ctx, subscriptionID)
	require.NoError(t, err)
	require.Zero(t, balance)
}
