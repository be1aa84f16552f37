package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	cartdomain "github.com/billinglab/subledger/internal/cart/domain"
	cartrepo "github.com/billinglab/subledger/internal/cart/repository"
	cdomain "github.com/billinglab/subledger/internal/charge/domain"
	chargerepo "github.com/billinglab/subledger/internal/charge/repository"
	chargeservice "github.com/billinglab/subledger/internal/charge/service"
	"github.com/billinglab/subledger/internal/checkout/domain"
	"github.com/billinglab/subledger/internal/clock"
	"github.com/billinglab/subledger/internal/config"
	coupondomain "github.com/billinglab/subledger/internal/coupon/domain"
	couponrepo "github.com/billinglab/subledger/internal/coupon/repository"
	couponservice "github.com/billinglab/subledger/internal/coupon/service"
	"github.com/billinglab/subledger/internal/events"
	ledgerdomain "github.com/billinglab/subledger/internal/ledger/domain"
	ledgerservice "github.com/billinglab/subledger/internal/ledger/service"
	orgdomain "github.com/billinglab/subledger/internal/organization/domain"
	orgrepo "github.com/billinglab/subledger/internal/organization/repository"
	plandomain "github.com/billinglab/subledger/internal/plan/domain"
	planrepo "github.com/billinglab/subledger/internal/plan/repository"
	"github.com/billinglab/subledger/internal/platform"
	"github.com/billinglab/subledger/internal/processor/fake"
	subdomain "github.com/billinglab/subledger/internal/subscription/domain"
	subrepo "github.com/billinglab/subledger/internal/subscription/repository"
	subservice "github.com/billinglab/subledger/internal/subscription/service"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const buyerID = snowflake.ID(777)

type fixture struct {
	db         *gorm.DB
	svc        *Service
	ledger     ledgerdomain.Service
	coupons    coupondomain.Service
	couponsR   coupondomain.Repository
	subsRepo   subdomain.Repository
	clock      *clock.FakeClock
	broker     *orgdomain.Organization
	provider   *orgdomain.Organization
	subscriber *orgdomain.Organization
	premium    *plandomain.Plan
	unlock     *plandomain.Plan
	node       *snowflake.Node
}

var testDBSeq int

func newFixture(t *testing.T) *fixture {
	t.Helper()
	testDBSeq++
	dsn := fmt.Sprintf("file:checkouttest%d?mode=memory&cache=shared", testDBSeq)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&plandomain.Plan{},
		&subdomain.Subscription{},
		&ledgerdomain.Transaction{},
		&cdomain.Charge{},
		&cdomain.ChargeItem{},
		&coupondomain.Coupon{},
		&cartdomain.CartItem{},
		&events.OutboxRow{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))

	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{DB: db, Log: log, GenID: node})
	orgs := orgrepo.NewRepository(db)
	plans := planrepo.NewRepository(db)
	subsR := subrepo.NewRepository(db)
	couponsR := couponrepo.NewRepository(db)
	cart := cartrepo.NewRepository(db)
	outbox := events.NewOutbox(log, node)
	holder := config.NewStaticPlatformConfigHolder(config.DefaultPlatformConfig())
	ctx := context.Background()

	broker := &orgdomain.Organization{ID: node.Generate(), Slug: "broker", FullName: "Broker Inc"}
	provider := &orgdomain.Organization{ID: node.Generate(), Slug: "acme", FullName: "Acme Corp"}
	subscriber := &orgdomain.Organization{
		ID: node.Generate(), Slug: "xia", FullName: "Xia LLC",
		Email: "buyer@xia.test", ProcessorCustomerID: "cus_test",
	}
	for _, org := range []*orgdomain.Organization{broker, provider, subscriber} {
		require.NoError(t, orgs.Create(ctx, nil, org))
	}

	premium := &plandomain.Plan{
		ID: node.Generate(), OrgID: provider.ID, Slug: "premium", Title: "Premium",
		Interval: plandomain.IntervalMonthly, PeriodAmount: 10000, SetupAmount: 500,
		Unit: "usd", IsActive: true,
	}
	unlock := &plandomain.Plan{
		ID: node.Generate(), OrgID: provider.ID, Slug: "roster", Title: "Roster",
		Interval: plandomain.IntervalMonthly, PeriodAmount: 2000, Unit: "usd",
		IsActive: true, UnlockEvent: "roster-signed",
	}
	require.NoError(t, plans.Create(ctx, nil, premium))
	require.NoError(t, plans.Create(ctx, nil, unlock))

	backend := fake.NewBackend(log, fakeClock)
	pctx := platform.Context{Broker: broker, Backend: backend, Holder: holder}

	subsSvc := subservice.NewService(subservice.Params{
		DB: db, Log: log, GenID: node, Clock: fakeClock, Repo: subsR, Ledger: ledgerSvc,
	})
	couponsSvc := couponservice.NewService(couponservice.Params{
		DB: db, Log: log, GenID: node, Clock: fakeClock, Holder: holder, Repo: couponsR,
	})
	chargesSvc := chargeservice.NewService(chargeservice.Params{
		DB: db, Log: log, GenID: node, Clock: fakeClock,
		Config: config.Config{StatementDescrMax: 22}, Platform: pctx,
		Repo: chargerepo.NewRepository(db), Orgs: orgs, Plans: plans, Subs: subsR,
		Ledger: ledgerSvc, Outbox: outbox,
	})

	svc := &Service{
		db:       db,
		log:      log,
		genID:    node,
		clock:    fakeClock,
		platform: pctx,
		cart:     cart,
		plans:    plans,
		subsRepo: subsR,
		subs:     subsSvc,
		coupons:  couponsSvc,
		couponsR: couponsR,
		charges:  chargesSvc,
		ledger:   ledgerSvc,
		outbox:   outbox,
	}

	return &fixture{
		db: db, svc: svc, ledger: ledgerSvc, coupons: couponsSvc, couponsR: couponsR,
		subsRepo: subsR, clock: fakeClock, broker: broker, provider: provider,
		subscriber: subscriber, premium: premium, unlock: unlock, node: node,
	}
}

func (f *fixture) addToCart(t *testing.T, planID snowflake.ID, couponCode, email string) {
	t.Helper()
	require.NoError(t, f.svc.cart.Insert(context.Background(), nil, &cartdomain.CartItem{
		ID:         f.node.Generate(),
		UserID:     buyerID,
		PlanID:     planID,
		CreatedAt:  f.clock.Now(),
		CouponCode: couponCode,
		Email:      email,
	}))
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Checkout(context.Background(), buyerID, f.subscriber, "", false, f.clock.Now())
	require.ErrorIs(t, err, domain.ErrEmptyCart)
}

func TestCheckoutNewSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.clock.Now()

	f.addToCart(t, f.premium.ID, "", "")
	charge, err := f.svc.Checkout(ctx, buyerID, f.subscriber, "", false, at)
	require.NoError(t, err)
	require.NotNil(t, charge)

	// First period plus the setup amount.
	require.Equal(t, int64(10500), charge.Amount)
	require.Equal(t, cdomain.StateCreated, charge.State)

	sub, err := f.subsRepo.FindByOrgAndPlan(ctx, nil, f.subscriber.ID, f.premium.ID)
	require.NoError(t, err)
	require.Equal(t, at.AddDate(0, 1, 0), sub.EndsAt.UTC())

	balance, err := f.ledger.SubscriptionBalance(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10500), balance)

	// The cart item was consumed.
	pending, err := f.svc.cart.ListPending(ctx, nil, buyerID)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestCheckoutExtendsExistingSubscription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.clock.Now()

	f.addToCart(t, f.premium.ID, "", "")
	_, err := f.svc.Checkout(ctx, buyerID, f.subscriber, "", false, at)
	require.NoError(t, err)

	f.clock.Advance(24 * time.Hour)
	f.addToCart(t, f.premium.ID, "", "")
	charge, err := f.svc.Checkout(ctx, buyerID, f.subscriber, "", false, f.clock.Now())
	require.NoError(t, err)

	// No setup amount the second time.
	require.Equal(t, int64(10000), charge.Amount)

	// The new period stacks on the current one instead of restarting.
	sub, err := f.subsRepo.FindByOrgAndPlan(ctx, nil, f.subscriber.ID, f.premium.ID)
	require.NoError(t, err)
	require.Equal(t, at.AddDate(0, 2, 0), sub.EndsAt.UTC())
}

func TestCheckoutCouponRedemption(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.clock.Now()

	coupon, err := f.coupons.Mint(ctx, nil, f.provider.ID, f.premium.ID, 50, 1, "launch promo")
	require.NoError(t, err)

	f.addToCart(t, f.premium.ID, coupon.Code, "")

	// Preview never consumes an attempt.
	invoicables, err := f.svc.Invoicables(ctx, buyerID, f.subscriber, at)
	require.NoError(t, err)
	require.Len(t, invoicables, 1)
	require.Equal(t, int64(5250), invoicables[0].Lines[0].Transaction.DestAmount)

	remaining, err := f.couponsR.FindByCode(ctx, nil, f.provider.ID, coupon.Code)
	require.NoError(t, err)
	require.Equal(t, int64(1), remaining.NbAttempts)

	charge, err := f.svc.Checkout(ctx, buyerID, f.subscriber, "", false, at)
	require.NoError(t, err)
	require.Equal(t, int64(5250), charge.Amount)

	remaining, err = f.couponsR.FindByCode(ctx, nil, f.provider.ID, coupon.Code)
	require.NoError(t, err)
	require.Zero(t, remaining.NbAttempts)

	// The exhausted code blocks the next checkout entirely.
	f.addToCart(t, f.premium.ID, coupon.Code, "")
	_, err = f.svc.Checkout(ctx, buyerID, f.subscriber, "", false, f.clock.Now())
	require.ErrorIs(t, err, coupondomain.ErrCouponExhausted)
}

func TestCheckoutDefersUnlockPlan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.clock.Now()

	f.addToCart(t, f.unlock.ID, "", "")
	charge, err := f.svc.Checkout(ctx, buyerID, f.subscriber, "", false, at)
	require.NoError(t, err)

	// The obligation is booked but no card is debited.
	require.Nil(t, charge)

	sub, err := f.subsRepo.FindByOrgAndPlan(ctx, nil, f.subscriber.ID, f.unlock.ID)
	require.NoError(t, err)
	balance, err := f.ledger.SubscriptionBalance(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2000), balance)
}

func TestCheckoutSeatMintsGroupCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.clock.Now()

	f.addToCart(t, f.premium.ID, "", "friend@other.test")
	charge, err := f.svc.Checkout(ctx, buyerID, f.subscriber, "", false, at)
	require.NoError(t, err)

	// The buyer pays for the seat.
	require.Equal(t, int64(10500), charge.Amount)

	// The seat holder subscribes later through the coupon; nothing of the
	// buyer's own moves.
	_, err = f.subsRepo.FindByOrgAndPlan(ctx, nil, f.subscriber.ID, f.premium.ID)
	require.ErrorIs(t, err, subdomain.ErrSubscriptionNotFound)

	coupons, err := f.couponsR.ListByOrg(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Len(t, coupons, 1)
	require.Equal(t, int64(100), coupons[0].Percent)
	require.Equal(t, int64(1), coupons[0].NbAttempts)
	require.Equal(t, f.premium.ID, coupons[0].PlanID)
	require.Contains(t, coupons[0].Descr, "friend@other.test")

	// The staged notification carries enough to reach the seat holder.
	var row events.OutboxRow
	require.NoError(t, f.db.Where("event_type = ?", events.EventCouponGenerated).First(&row).Error)
	require.Contains(t, row.Payload, "friend@other.test")

	// Items bought for the buyer's own address mint nothing.
	f.addToCart(t, f.unlock.ID, "", f.subscriber.Email)
	_, err = f.svc.Checkout(ctx, buyerID, f.subscriber, "", false, f.clock.Now())
	require.NoError(t, err)

	coupons, err = f.couponsR.ListByOrg(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Len(t, coupons, 1)
}

func TestCheckoutDeclinedCardRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.clock.Now()

	f.addToCart(t, f.premium.ID, "", "")
	_, err := f.svc.Checkout(ctx, buyerID, f.subscriber, "", false, at)
	require.NoError(t, err)

	sub, err := f.subsRepo.FindByOrgAndPlan(ctx, nil, f.subscriber.ID, f.premium.ID)
	require.NoError(t, err)
	firstEndsAt := sub.EndsAt.UTC()

	f.clock.Advance(24 * time.Hour)
	f.addToCart(t, f.premium.ID, "", "")
	_, err = f.svc.Checkout(ctx, buyerID, f.subscriber, fake.DeclineToken, false, f.clock.Now())
	require.Error(t, err)

	// The declined debit takes the whole order with it: no extension, no
	// second invoice, and the cart item stays pending for a retry.
	sub, err = f.subsRepo.FindByOrgAndPlan(ctx, nil, f.subscriber.ID, f.premium.ID)
	require.NoError(t, err)
	require.Equal(t, firstEndsAt, sub.EndsAt.UTC())

	balance, err := f.ledger.SubscriptionBalance(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10500), balance)

	pending, err := f.svc.cart.ListPending(ctx, nil, buyerID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestCheckoutUnlockRenewalChargesNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := f.clock.Now()

	f.addToCart(t, f.unlock.ID, "", "")
	charge, err := f.svc.Checkout(ctx, buyerID, f.subscriber, "", false, at)
	require.NoError(t, err)
	require.Nil(t, charge)

	// Only the first period is deferred; a renewal debits the card.
	f.clock.Advance(24 * time.Hour)
	f.addToCart(t, f.unlock.ID, "", "")
	charge, err = f.svc.Checkout(ctx, buyerID, f.subscriber, "", false, f.clock.Now())
	require.NoError(t, err)
	require.NotNil(t, charge)
	require.Equal(t, int64(2000), charge.Amount)

	sub, err := f.subsRepo.FindByOrgAndPlan(ctx, nil, f.subscriber.ID, f.unlock.ID)
	require.NoError(t, err)
	require.Equal(t, at.AddDate(0, 2, 0), sub.EndsAt.UTC())
}
