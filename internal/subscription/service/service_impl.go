package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/billinglab/subledger/internal/clock"
	ledgerdomain "github.com/billinglab/subledger/internal/ledger/domain"
	"github.com/billinglab/subledger/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Ledger ledgerdomain.Service
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	ledger ledgerdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("subscription.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		ledger: p.Ledger,
	}
}

func (s *Service) GetOrCreate(ctx context.Context, tx *gorm.DB, orgID, planID snowflake.ID, at time.Time) (*domain.Subscription, error) {
	if orgID == 0 {
		return nil, domain.ErrInvalidOrganization
	}
	if planID == 0 {
		return nil, domain.ErrInvalidPlan
	}
	existing, err := s.repo.FindByOrgAndPlan(ctx, tx, orgID, planID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrSubscriptionNotFound) {
		return nil, err
	}

	at = clock.OrNow(s.clock, at)
	subscription := &domain.Subscription{
		ID:        s.genID.Generate(),
		OrgID:     orgID,
		PlanID:    planID,
		CreatedAt: at,
		EndsAt:    at,
	}
	if err := s.repo.Insert(ctx, tx, subscription); err != nil {
		return nil, err
	}
	s.log.Info("subscription created",
		zap.String("id", subscription.ID.String()),
		zap.String("org_id", orgID.String()),
		zap.String("plan_id", planID.String()))
	return subscription, nil
}

func (s *Service) Extend(ctx context.Context, tx *gorm.DB, id snowflake.ID, endsAt time.Time) error {
	subscription, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return err
	}
	if endsAt.Before(subscription.EndsAt) {
		return domain.ErrEndsAtRegression
	}
	return s.repo.UpdateEndsAt(ctx, tx, id, endsAt)
}

func (s *Service) Unsubscribe(ctx context.Context, id snowflake.ID, at time.Time) error {
	at = clock.OrNow(s.clock, at)
	if _, err := s.repo.FindByID(ctx, nil, id); err != nil {
		return err
	}
	return s.repo.UpdateEndsAt(ctx, nil, id, at)
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Subscription, error) {
	return s.repo.FindByID(ctx, nil, id)
}

func (s *Service) ListByOrg(ctx context.Context, orgID snowflake.ID) ([]domain.Subscription, error) {
	return s.repo.ListByOrg(ctx, orgID)
}

func (s *Service) Balance(ctx context.Context, id snowflake.ID) (int64, error) {
	return s.ledger.SubscriptionBalance(ctx, id)
}

func (s *Service) IsLocked(ctx context.Context, id snowflake.ID) (bool, error) {
	balance, err := s.ledger.SubscriptionBalance(ctx, id)
	if err != nil {
		return false, err
	}
	return balance > 0, nil
}
