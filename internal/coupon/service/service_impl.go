package service

import (
	"context"
	"strings"

	"github.com/billinglab/subledger/internal/clock"
	"github.com/billinglab/subledger/internal/config"
	"github.com/billinglab/subledger/internal/coupon/domain"
	"github.com/billinglab/subledger/internal/observability/metrics"
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Holder     *config.PlatformConfigHolder
	Repo       domain.Repository
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	holder  *config.PlatformConfigHolder
	repo    domain.Repository
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("coupon.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		holder:  p.Holder,
		repo:    p.Repo,
		metrics: p.ObsMetrics,
	}
}

func (s *Service) Mint(ctx context.Context, tx *gorm.DB, orgID, planID snowflake.ID, percent int64, nbAttempts int64, descr string) (*domain.Coupon, error) {
	if percent <= 0 || percent > 100 {
		return nil, domain.ErrInvalidPercent
	}
	now := s.clock.Now()
	coupon := &domain.Coupon{
		ID:         s.genID.Generate(),
		Code:       newCode(),
		OrgID:      orgID,
		PlanID:     planID,
		Percent:    percent,
		CreatedAt:  now,
		EndsAt:     now.AddDate(0, 0, s.holder.Get().CouponDays),
		NbAttempts: nbAttempts,
		Descr:      descr,
	}
	if err := s.repo.Insert(ctx, tx, coupon); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.Coupons.Inc()
	}
	s.log.Info("coupon minted",
		zap.String("code", coupon.Code),
		zap.String("org_id", orgID.String()),
		zap.Int64("percent", percent),
		zap.Int64("nb_attempts", nbAttempts))
	return coupon, nil
}

func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, code string, planID snowflake.ID) (*domain.Coupon, error) {
	coupon, err := s.repo.FindByCode(ctx, tx, orgID, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return nil, err
	}
	if err := coupon.Valid(s.clock.Now(), planID); err != nil {
		return nil, err
	}
	if err := s.repo.ConsumeAttempt(ctx, tx, coupon.ID); err != nil {
		return nil, err
	}
	return coupon, nil
}

// newCode derives a short human-typable code from a random UUID.
func newCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
