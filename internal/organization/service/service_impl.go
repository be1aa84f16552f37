package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/billinglab/subledger/internal/clock"
	"github.com/billinglab/subledger/internal/config"
	"github.com/billinglab/subledger/internal/humanize"
	ledgerdomain "github.com/billinglab/subledger/internal/ledger/domain"
	"github.com/billinglab/subledger/internal/organization/domain"
	processordomain "github.com/billinglab/subledger/internal/processor/domain"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Config  config.Config
	Holder  *config.PlatformConfigHolder
	Repo    domain.Repository
	Ledger  ledgerdomain.Service
	Backend processordomain.Backend
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	cfg     config.Config
	holder  *config.PlatformConfigHolder
	repo    domain.Repository
	ledger  ledgerdomain.Service
	backend processordomain.Backend
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("organization.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		cfg:     p.Config,
		holder:  p.Holder,
		repo:    p.Repo,
		ledger:  p.Ledger,
		backend: p.Backend,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrganizationRequest, at time.Time) (*domain.Organization, error) {
	name := strings.TrimSpace(req.FullName)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	at = clock.OrNow(s.clock, at)

	org := &domain.Organization{
		ID:        s.genID.Generate(),
		Slug:      slug.Make(name),
		FullName:  name,
		Email:     strings.TrimSpace(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		IsActive:  true,
		CreatedAt: at,
	}
	billingStart := billingCycleAnchor(at)
	org.BillingStart = &billingStart

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, org); err != nil {
			return err
		}
		return s.signupCredit(ctx, tx, org, at)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("slug", org.Slug), zap.String("id", org.ID.String()))
	return org, nil
}

// signupCredit posts the configured incentive against the new organization's
// Payable account so its first invoice starts discounted.
func (s *Service) signupCredit(ctx context.Context, tx *gorm.DB, org *domain.Organization, at time.Time) error {
	amount := s.cfg.SignupCreditAmount
	if amount <= 0 || org.Slug == s.cfg.BrokerSlug {
		return nil
	}
	broker, err := s.repo.FindBySlug(ctx, tx, s.cfg.BrokerSlug)
	if err != nil {
		s.log.Warn("broker organization missing, skipping signup credit", zap.Error(err))
		return nil
	}
	unit := s.holder.Get().DefaultUnit
	return s.ledger.Append(ctx, tx, &ledgerdomain.Transaction{
		CreatedAt:          at,
		OrigOrganizationID: org.ID,
		OrigAccount:        ledgerdomain.AccountPayable,
		OrigAmount:         amount,
		OrigUnit:           unit,
		DestOrganizationID: broker.ID,
		DestAccount:        ledgerdomain.AccountWriteoff,
		DestAmount:         amount,
		DestUnit:           unit,
		Descr:              humanize.DescribeCredit(),
	})
}

// billingCycleAnchor keeps the billing cycle on the same day every month.
// Signups after the 28th anchor on the first of the next month.
func billingCycleAnchor(at time.Time) time.Time {
	if at.Day() <= 28 {
		return at
	}
	year, month := at.Year(), at.Month()
	if month == time.December {
		return time.Date(year+1, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC)
}

func (s *Service) GetBySlug(ctx context.Context, orgSlug string) (*domain.Organization, error) {
	return s.repo.FindBySlug(ctx, nil, orgSlug)
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	return s.repo.FindByID(ctx, nil, id)
}

func (s *Service) AssociateProcessor(ctx context.Context, orgID snowflake.ID, cardToken string) error {
	org, err := s.repo.FindByID(ctx, nil, orgID)
	if err != nil {
		return err
	}
	customerID, err := s.backend.CreateOrUpdateCard(ctx, org, cardToken)
	if err != nil {
		return err
	}
	if customerID != org.ProcessorCustomerID {
		org.ProcessorCustomerID = customerID
		if err := s.repo.Save(ctx, nil, org); err != nil {
			return err
		}
		s.log.Info("associated processor customer",
			zap.String("org", org.Slug), zap.String("processor_customer_id", customerID))
	}
	return nil
}

func (s *Service) Withdraw(ctx context.Context, orgID snowflake.ID, amount int64, unit string) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}
	org, err := s.repo.FindByID(ctx, nil, orgID)
	if err != nil {
		return err
	}
	if unit == "" {
		unit = s.holder.Get().DefaultUnit
	}
	descr := humanize.DescribeWithdraw(amount, unit, org.FullName)

	// The transfer is requested first; the ledger write only commits once the
	// processor accepted it.
	if _, _, err := s.backend.CreateTransfer(ctx, org, amount, unit, descr); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.AdjustFunds(ctx, tx, org.ID, -amount); err != nil {
			return err
		}
		return s.ledger.Append(ctx, tx, &ledgerdomain.Transaction{
			CreatedAt:          s.clock.Now(),
			OrigOrganizationID: org.ID,
			OrigAccount:        ledgerdomain.AccountFunds,
			OrigAmount:         amount,
			OrigUnit:           unit,
			DestOrganizationID: org.ID,
			DestAccount:        ledgerdomain.AccountWithdraw,
			DestAmount:         amount,
			DestUnit:           unit,
			Descr:              descr,
		})
	})
}

func (s *Service) AddMember(ctx context.Context, orgID, userID snowflake.ID, role domain.Role) error {
	return s.repo.AddMember(ctx, nil, domain.Member{
		ID:     s.genID.Generate(),
		OrgID:  orgID,
		UserID: userID,
		Role:   role,
	})
}
