package service

import (
	"context"
	"testing"
	"time"

	"github.com/billinglab/subledger/internal/clock"
	ledgerdomain "github.com/billinglab/subledger/internal/ledger/domain"
	ledgerservice "github.com/billinglab/subledger/internal/ledger/service"
	"github.com/billinglab/subledger/internal/subscription/domain"
	"github.com/billinglab/subledger/internal/subscription/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Subscription{}, &ledgerdomain.Transaction{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))

	svc := &Service{
		db:     db,
		log:    log,
		genID:  node,
		clock:  fakeClock,
		repo:   repository.NewRepository(db),
		ledger: ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node}),
	}
	return svc, db, fakeClock
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	svc, _, fakeClock := newTestService(t)
	ctx := context.Background()
	orgID := snowflake.ID(10)
	planID := snowflake.ID(20)

	first, err := svc.GetOrCreate(ctx, nil, orgID, planID, fakeClock.Now())
	require.NoError(t, err)
	require.Equal(t, orgID, first.OrgID)
	require.Equal(t, planID, first.PlanID)
	require.Equal(t, fakeClock.Now(), first.EndsAt.UTC())

	fakeClock.Advance(time.Hour)
	second, err := svc.GetOrCreate(ctx, nil, orgID, planID, fakeClock.Now())
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	other, err := svc.GetOrCreate(ctx, nil, orgID, snowflake.ID(21), fakeClock.Now())
	require.NoError(t, err)
	require.NotEqual(t, first.ID, other.ID)
}

func TestGetOrCreateValidates(t *testing.T) {
	svc, _, fakeClock := newTestService(t)
	ctx := context.Background()

	_, err := svc.GetOrCreate(ctx, nil, 0, 20, fakeClock.Now())
	require.ErrorIs(t, err, domain.ErrInvalidOrganization)

	_, err = svc.GetOrCreate(ctx, nil, 10, 0, fakeClock.Now())
	require.ErrorIs(t, err, domain.ErrInvalidPlan)
}

func TestExtendRejectsRegression(t *testing.T) {
	svc, _, fakeClock := newTestService(t)
	ctx := context.Background()

	sub, err := svc.GetOrCreate(ctx, nil, 10, 20, fakeClock.Now())
	require.NoError(t, err)

	later := fakeClock.Now().AddDate(0, 1, 0)
	require.NoError(t, svc.Extend(ctx, nil, sub.ID, later))

	updated, err := svc.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, later, updated.EndsAt.UTC())

	err = svc.Extend(ctx, nil, sub.ID, later.Add(-time.Hour))
	require.ErrorIs(t, err, domain.ErrEndsAtRegression)

	// Extending to the same instant is a no-op, not a regression.
	require.NoError(t, svc.Extend(ctx, nil, sub.ID, later))
}

func TestUnsubscribeEndsNow(t *testing.T) {
	svc, _, fakeClock := newTestService(t)
	ctx := context.Background()

	sub, err := svc.GetOrCreate(ctx, nil, 10, 20, fakeClock.Now())
	require.NoError(t, err)
	require.NoError(t, svc.Extend(ctx, nil, sub.ID, fakeClock.Now().AddDate(0, 1, 0)))

	fakeClock.Advance(48 * time.Hour)
	require.NoError(t, svc.Unsubscribe(ctx, sub.ID, fakeClock.Now()))

	updated, err := svc.GetByID(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, fakeClock.Now(), updated.EndsAt.UTC())
	require.False(t, updated.Active(fakeClock.Now()))

	require.ErrorIs(t, svc.Unsubscribe(ctx, snowflake.ID(999), fakeClock.Now()), domain.ErrSubscriptionNotFound)
}

func TestIsLockedFollowsPayableBalance(t *testing.T) {
	svc, db, fakeClock := newTestService(t)
	ctx := context.Background()

	sub, err := svc.GetOrCreate(ctx, nil, 10, 20, fakeClock.Now())
	require.NoError(t, err)

	locked, err := svc.IsLocked(ctx, sub.ID)
	require.NoError(t, err)
	require.False(t, locked)

	invoiced := &ledgerdomain.Transaction{
		CreatedAt:          fakeClock.Now(),
		OrigOrganizationID: 30,
		OrigAccount:        ledgerdomain.AccountBacklog,
		OrigAmount:         1000,
		OrigUnit:           "usd",
		DestOrganizationID: 10,
		DestAccount:        ledgerdomain.AccountPayable,
		DestAmount:         1000,
		DestUnit:           "usd",
		Descr:              "open invoice",
		EventID:            sub.ID,
	}
	require.NoError(t, svc.ledger.Append(ctx, db, invoiced))

	locked, err = svc.IsLocked(ctx, sub.ID)
	require.NoError(t, err)
	require.True(t, locked)

	balance, err := svc.Balance(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1000), balance)

	settled := &ledgerdomain.Transaction{
		CreatedAt:          fakeClock.Now(),
		OrigOrganizationID: 10,
		OrigAccount:        ledgerdomain.AccountPayable,
		OrigAmount:         1000,
		OrigUnit:           "usd",
		DestOrganizationID: 30,
		DestAccount:        ledgerdomain.AccountFunds,
		DestAmount:         1000,
		DestUnit:           "usd",
		Descr:              "paid off",
		EventID:            sub.ID,
	}
	require.NoError(t, svc.ledger.Append(ctx, db, settled))

	locked, err = svc.IsLocked(ctx, sub.ID)
	require.NoError(t, err)
	require.False(t, locked)
}
