package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/billinglab/subledger/internal/clock"
	"github.com/billinglab/subledger/internal/config"
	"github.com/billinglab/subledger/internal/coupon/domain"
	"github.com/billinglab/subledger/internal/coupon/repository"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *clock.FakeClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Coupon{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fakeClock := clock.NewFakeClock(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))

	return &Service{
		db:     db,
		log:    zap.NewNop(),
		genID:  node,
		clock:  fakeClock,
		holder: config.NewStaticPlatformConfigHolder(config.DefaultPlatformConfig()),
		repo:   repository.NewRepository(db),
	}, fakeClock
}

func TestMint(t *testing.T) {
	svc, fakeClock := newTestService(t)
	ctx := context.Background()
	orgID := snowflake.ID(10)

	coupon, err := svc.Mint(ctx, nil, orgID, 0, 25, -1, "spring sale")
	require.NoError(t, err)
	require.Len(t, coupon.Code, 12)
	require.Equal(t, strings.ToUpper(coupon.Code), coupon.Code)
	require.Equal(t, fakeClock.Now().AddDate(0, 0, 30), coupon.EndsAt)
	require.Equal(t, int64(-1), coupon.NbAttempts)

	_, err = svc.Mint(ctx, nil, orgID, 0, 0, -1, "")
	require.ErrorIs(t, err, domain.ErrInvalidPercent)
	_, err = svc.Mint(ctx, nil, orgID, 0, 101, -1, "")
	require.ErrorIs(t, err, domain.ErrInvalidPercent)
}

func TestRedeem(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	orgID := snowflake.ID(10)
	planID := snowflake.ID(20)

	coupon, err := svc.Mint(ctx, nil, orgID, planID, 50, 2, "two uses")
	require.NoError(t, err)

	// Codes match case-insensitively and ignore padding.
	redeemed, err := svc.Redeem(ctx, nil, orgID, "  "+coupon.Code+" ", planID)
	require.NoError(t, err)
	require.Equal(t, coupon.ID, redeemed.ID)

	_, err = svc.Redeem(ctx, nil, orgID, coupon.Code, planID)
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, nil, orgID, coupon.Code, planID)
	require.ErrorIs(t, err, domain.ErrCouponExhausted)

	_, err = svc.Redeem(ctx, nil, orgID, "NOSUCHCODE99", planID)
	require.ErrorIs(t, err, domain.ErrCouponNotFound)
}

func TestRedeemScopedToPlan(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	orgID := snowflake.ID(10)
	planID := snowflake.ID(20)

	scoped, err := svc.Mint(ctx, nil, orgID, planID, 10, -1, "plan only")
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, nil, orgID, scoped.Code, snowflake.ID(21))
	require.ErrorIs(t, err, domain.ErrCouponNotFound)

	// An org-wide coupon works on any plan.
	open, err := svc.Mint(ctx, nil, orgID, 0, 10, -1, "org wide")
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, nil, orgID, open.Code, snowflake.ID(21))
	require.NoError(t, err)
}

func TestRedeemExpired(t *testing.T) {
	svc, fakeClock := newTestService(t)
	ctx := context.Background()
	orgID := snowflake.ID(10)

	coupon, err := svc.Mint(ctx, nil, orgID, 0, 10, -1, "short lived")
	require.NoError(t, err)

	fakeClock.Advance(31 * 24 * time.Hour)
	_, err = svc.Redeem(ctx, nil, orgID, coupon.Code, 0)
	require.ErrorIs(t, err, domain.ErrCouponExpired)
}

func TestUnlimitedCouponNeverExhausts(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	orgID := snowflake.ID(10)

	coupon, err := svc.Mint(ctx, nil, orgID, 0, 10, -1, "evergreen")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = svc.Redeem(ctx, nil, orgID, coupon.Code, 0)
		require.NoError(t, err)
	}

	stored, err := svc.repo.FindByCode(ctx, nil, orgID, coupon.Code)
	require.NoError(t, err)
	require.Equal(t, int64(-1), stored.NbAttempts)
}

func TestApply(t *testing.T) {
	require.Equal(t, int64(750), domain.Coupon{Percent: 25}.Apply(1000))
	require.Equal(t, int64(0), domain.Coupon{Percent: 100}.Apply(1000))
	require.Equal(t, int64(0), domain.Coupon{Percent: 50}.Apply(0))
	// Floor rounding keeps the discount in the customer's favor.
	require.Equal(t, int64(67), domain.Coupon{Percent: 33}.Apply(100))
}
