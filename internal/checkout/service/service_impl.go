package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	cartdomain "github.com/billinglab/subledger/internal/cart/domain"
	chargedomain "github.com/billinglab/subledger/internal/charge/domain"
	chargeservice "github.com/billinglab/subledger/internal/charge/service"
	"github.com/billinglab/subledger/internal/checkout/domain"
	"github.com/billinglab/subledger/internal/clock"
	coupondomain "github.com/billinglab/subledger/internal/coupon/domain"
	"github.com/billinglab/subledger/internal/events"
	"github.com/billinglab/subledger/internal/humanize"
	ledgerdomain "github.com/billinglab/subledger/internal/ledger/domain"
	orgdomain "github.com/billinglab/subledger/internal/organization/domain"
	plandomain "github.com/billinglab/subledger/internal/plan/domain"
	"github.com/billinglab/subledger/internal/platform"
	subdomain "github.com/billinglab/subledger/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Platform platform.Context
	Cart     cartdomain.Repository
	Plans    plandomain.Repository
	SubsRepo subdomain.Repository
	Subs     subdomain.Service
	Coupons  coupondomain.Service
	CouponsR coupondomain.Repository
	Charges  chargedomain.Service
	Ledger   ledgerdomain.Service
	Outbox   *events.Outbox
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	platform platform.Context
	cart     cartdomain.Repository
	plans    plandomain.Repository
	subsRepo subdomain.Repository
	subs     subdomain.Service
	coupons  coupondomain.Service
	couponsR coupondomain.Repository
	charges  chargedomain.Service
	ledger   ledgerdomain.Service
	outbox   *events.Outbox
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("checkout.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		platform: p.Platform,
		cart:     p.Cart,
		plans:    p.Plans,
		subsRepo: p.SubsRepo,
		subs:     p.Subs,
		coupons:  p.Coupons,
		couponsR: p.CouponsR,
		charges:  p.Charges,
		ledger:   p.Ledger,
		outbox:   p.Outbox,
	}
}

// lineDraft carries the per-item pricing decisions made while walking the
// cart, before anything is persisted.
type lineDraft struct {
	item      cartdomain.CartItem
	plan      *plandomain.Plan
	amount    int64
	unit      string
	nbPeriods int
	newSub    bool
	deferred  bool
	seat      bool
}

// draft walks the pending cart and prices each line. A nil tx previews: reads
// hit the base connection and coupon attempts stay unconsumed.
func (s *Service) draft(ctx context.Context, userID snowflake.ID, subscriber *orgdomain.Organization, at time.Time, tx *gorm.DB) ([]lineDraft, error) {
	items, err := s.cart.ListPending(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	drafts := make([]lineDraft, 0, len(items))
	for _, item := range items {
		plan, err := s.plans.FindByID(ctx, tx, item.PlanID)
		if err != nil {
			return nil, err
		}
		unit := plan.Unit
		if unit == "" {
			unit = s.platform.Unit()
		}
		d := lineDraft{
			item:      item,
			plan:      plan,
			unit:      unit,
			nbPeriods: 1,
			seat:      item.Email != "" && item.Email != subscriber.Email,
		}
		if d.seat {
			// The seat holder activates their own organization later; the
			// buyer's subscriptions are not consulted.
			d.newSub = true
		} else {
			_, err = s.subsRepo.FindByOrgAndPlan(ctx, tx, subscriber.ID, plan.ID)
			if errors.Is(err, subdomain.ErrSubscriptionNotFound) {
				d.newSub = true
			} else if err != nil {
				return nil, err
			}
		}
		d.deferred = plan.UnlockEvent != "" && d.newSub

		d.amount = plan.PeriodAmount * int64(d.nbPeriods)
		if d.newSub {
			d.amount += plan.SetupAmount
		}
		if item.CouponCode != "" {
			coupon, err := s.resolveCoupon(ctx, tx, plan, item.CouponCode)
			if err != nil {
				return nil, err
			}
			d.amount = coupon.Apply(d.amount)
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// resolveCoupon validates the code; with a non-nil transaction it also
// consumes one redemption attempt.
func (s *Service) resolveCoupon(ctx context.Context, tx *gorm.DB, plan *plandomain.Plan, code string) (*coupondomain.Coupon, error) {
	if tx != nil {
		return s.coupons.Redeem(ctx, tx, plan.OrgID, code, plan.ID)
	}
	coupon, err := s.couponsR.FindByCode(ctx, nil, plan.OrgID, code)
	if err != nil {
		return nil, err
	}
	if err := coupon.Valid(s.clock.Now(), plan.ID); err != nil {
		return nil, err
	}
	return coupon, nil
}

func (s *Service) Invoicables(ctx context.Context, userID snowflake.ID, subscriber *orgdomain.Organization, at time.Time) ([]domain.Invoicable, error) {
	at = clock.OrNow(s.clock, at)
	drafts, err := s.draft(ctx, userID, subscriber, at, nil)
	if err != nil {
		return nil, err
	}
	invoicables := make([]domain.Invoicable, 0, len(drafts))
	for _, d := range drafts {
		endsAt := d.plan.EndOfPeriod(at, d.nbPeriods)
		line := s.buildLine(d, subscriber, endsAt, at, 0)
		invoicables = append(invoicables, domain.Invoicable{
			Plan: d.plan,
			Lines: []domain.OrderLine{{
				Transaction: line,
				NbPeriods:   d.nbPeriods,
				Deferred:    d.deferred,
			}},
		})
	}
	return invoicables, nil
}

func (s *Service) buildLine(d lineDraft, subscriber *orgdomain.Organization, endsAt, at time.Time, eventID snowflake.ID) *ledgerdomain.Transaction {
	var descr string
	switch {
	case d.deferred:
		descr = humanize.DescribeUnlockLater(d.plan.Title, d.amount, d.unit, d.plan.UnlockEvent)
	case d.plan.UnlockEvent != "":
		descr = humanize.DescribeUnlockNow(d.plan.Title, d.plan.UnlockEvent)
	default:
		descr = humanize.DescribeBuyPeriods(d.plan.Title, endsAt, d.plan.HumanizePeriod(d.nbPeriods))
	}
	return &ledgerdomain.Transaction{
		ID:                 s.genID.Generate(),
		CreatedAt:          at,
		OrigOrganizationID: d.plan.OrgID,
		OrigAccount:        ledgerdomain.AccountBacklog,
		OrigAmount:         d.amount,
		OrigUnit:           d.unit,
		DestOrganizationID: subscriber.ID,
		DestAccount:        ledgerdomain.AccountPayable,
		DestAmount:         d.amount,
		DestUnit:           d.unit,
		Descr:              descr,
		EventID:            eventID,
	}
}

// seatOrder remembers a cart line bought for a third party, so the coupon
// minted after the charge can be addressed to the seat holder.
type seatOrder struct {
	plan      *plandomain.Plan
	firstName string
	lastName  string
	email     string
}

func (s *Service) Checkout(ctx context.Context, userID snowflake.ID, subscriber *orgdomain.Organization, cardToken string, rememberCard bool, at time.Time) (*chargedomain.Charge, error) {
	at = clock.OrNow(s.clock, at)

	var (
		charged []*ledgerdomain.Transaction
		seats   []seatOrder
		charge  *chargedomain.Charge
	)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		drafts, err := s.draft(ctx, userID, subscriber, at, tx)
		if err != nil {
			return err
		}
		if len(drafts) == 0 {
			return domain.ErrEmptyCart
		}
		for _, d := range drafts {
			if d.seat {
				// The buyer pays, the seat holder subscribes later through
				// the minted coupon. No subscription of the buyer moves.
				line := s.buildLine(d, subscriber, d.plan.EndOfPeriod(at, d.nbPeriods), at, 0)
				if d.amount > 0 {
					if err := s.ledger.Append(ctx, tx, line); err != nil {
						return err
					}
					if !d.deferred {
						charged = append(charged, line)
					}
				}
				if err := s.cart.RecordItem(ctx, tx, userID, d.plan.ID, d.item.Email); err != nil {
					return err
				}
				seats = append(seats, seatOrder{
					plan:      d.plan,
					firstName: d.item.FirstName,
					lastName:  d.item.LastName,
					email:     d.item.Email,
				})
				continue
			}

			subscription, err := s.subs.GetOrCreate(ctx, tx, subscriber.ID, d.plan.ID, at)
			if err != nil {
				return err
			}
			base := subscription.EndsAt
			if base.Before(at) {
				base = at
			}
			endsAt := d.plan.EndOfPeriod(base, d.nbPeriods)

			line := s.buildLine(d, subscriber, endsAt, at, subscription.ID)
			if d.amount > 0 {
				if err := s.ledger.Append(ctx, tx, line); err != nil {
					return err
				}
			}
			if err := s.subs.Extend(ctx, tx, subscription.ID, endsAt); err != nil {
				return err
			}
			if err := s.cart.RecordItem(ctx, tx, userID, d.plan.ID, d.item.Email); err != nil {
				return err
			}
			if err := s.outbox.PublishTx(ctx, tx, events.Event{
				OrgID:     subscriber.ID,
				Type:      events.EventOrderExecuted,
				Payload: map[string]any{
					"subscription_id": subscription.ID.String(),
					"plan":            d.plan.Slug,
					"ends_at":         endsAt.UTC().Format(time.RFC3339),
					"amount":          d.amount,
					"unit":            d.unit,
				},
				DedupeKey: fmt.Sprintf("order:%s:%d", subscription.ID, endsAt.Unix()),
			}); err != nil {
				return err
			}

			if !d.deferred && d.amount > 0 {
				charged = append(charged, line)
			}
		}

		// The card is debited on this transaction: a decline rolls back
		// every extension and ledger line above.
		if len(charged) > 0 {
			charge, err = s.charges.ChargeCard(ctx, tx, subscriber, charged, cardToken, rememberCard)
			if err != nil && !errors.Is(err, chargeservice.ErrNothingToCharge) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Each seat turns into a full-discount coupon the seat holder redeems
	// to activate their own organization.
	for _, seat := range seats {
		mintErr := s.db.Transaction(func(tx *gorm.DB) error {
			coupon, err := s.coupons.Mint(ctx, tx, seat.plan.OrgID, seat.plan.ID, 100, 1,
				fmt.Sprintf("group buy by %s for %s", subscriber.Slug, seat.email))
			if err != nil {
				return err
			}
			return s.outbox.PublishTx(ctx, tx, events.Event{
				OrgID: seat.plan.OrgID,
				Type:  events.EventCouponGenerated,
				Payload: map[string]any{
					"code":       coupon.Code,
					"plan":       seat.plan.Slug,
					"email":      seat.email,
					"first_name": seat.firstName,
					"last_name":  seat.lastName,
					"buyer":      subscriber.Slug,
				},
				DedupeKey: "coupon:" + coupon.Code,
			})
		})
		if mintErr != nil {
			return charge, mintErr
		}
	}

	s.log.Info("checkout executed",
		zap.String("subscriber", subscriber.Slug),
		zap.Int("charged_lines", len(charged)),
		zap.Int("seats", len(seats)))
	return charge, nil
}
