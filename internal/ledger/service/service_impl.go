package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/billinglab/subledger/internal/ledger/domain"
	obsmetrics "github.com/billinglab/subledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Append(ctx context.Context, tx *gorm.DB, transactions ...*ledgerdomain.Transaction) error {
	for _, entry := range transactions {
		if entry.OrigOrganizationID == 0 || entry.DestOrganizationID == 0 {
			return ledgerdomain.ErrInvalidOrganization
		}
		if entry.OrigAccount == "" || entry.DestAccount == "" {
			return ledgerdomain.ErrInvalidAccount
		}
		if entry.OrigAmount < 0 || entry.DestAmount < 0 {
			return ledgerdomain.ErrInvalidAmount
		}
		if strings.TrimSpace(entry.OrigUnit) == "" || strings.TrimSpace(entry.DestUnit) == "" {
			return ledgerdomain.ErrInvalidUnit
		}

		if entry.ID == 0 {
			entry.ID = s.genID.Generate()
		}
		if entry.CreatedAt.IsZero() {
			entry.CreatedAt = time.Now().UTC()
		}

		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO transactions (
				id, created_at,
				orig_organization_id, orig_account, orig_amount, orig_unit,
				dest_organization_id, dest_account, dest_amount, dest_unit,
				descr, event_id
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.ID,
			entry.CreatedAt.UTC(),
			entry.OrigOrganizationID,
			string(entry.OrigAccount),
			entry.OrigAmount,
			entry.OrigUnit,
			entry.DestOrganizationID,
			string(entry.DestAccount),
			entry.DestAmount,
			entry.DestUnit,
			entry.Descr,
			entry.EventID,
		).Error; err != nil {
			return err
		}

		if s.obsMetrics != nil {
			s.obsMetrics.LedgerPostings.WithLabelValues(string(entry.DestAccount)).Inc()
		}
	}
	return nil
}

func (s *Service) Sum(transactions []*ledgerdomain.Transaction, side ledgerdomain.Side) (int64, string) {
	var total int64
	unit := ""
	mixed := false
	for _, entry := range transactions {
		total += entry.Amount(side)
		entryUnit := entry.Unit(side)
		if entryUnit == "" {
			continue
		}
		if unit == "" {
			unit = entryUnit
		} else if unit != entryUnit {
			mixed = true
		}
	}
	if mixed {
		s.log.Warn("summing transactions with mixed units", zap.String("unit", unit))
		if s.obsMetrics != nil {
			s.obsMetrics.MixedUnitSums.Inc()
		}
	}
	return total, unit
}

func (s *Service) OrganizationBalance(ctx context.Context, orgID snowflake.ID, account ledgerdomain.Account, asOf time.Time) (int64, error) {
	if orgID == 0 {
		return 0, ledgerdomain.ErrInvalidOrganization
	}
	if account == "" {
		account = ledgerdomain.AccountPayable
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	var balance int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE((
			SELECT SUM(dest_amount) FROM transactions
			WHERE dest_organization_id = ? AND dest_account = ? AND created_at < ?
		), 0) - COALESCE((
			SELECT SUM(orig_amount) FROM transactions
			WHERE orig_organization_id = ? AND orig_account = ? AND created_at < ?
		), 0)`,
		orgID, string(account), asOf.UTC(),
		orgID, string(account), asOf.UTC(),
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) SubscriptionBalance(ctx context.Context, subscriptionID snowflake.ID) (int64, error) {
	if subscriptionID == 0 {
		return 0, ledgerdomain.ErrInvalidOrganization
	}

	account := string(ledgerdomain.AccountPayable)
	var balance int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COALESCE((
			SELECT SUM(dest_amount) FROM transactions
			WHERE event_id = ? AND dest_account = ?
		), 0) - COALESCE((
			SELECT SUM(orig_amount) FROM transactions
			WHERE event_id = ? AND orig_account = ?
		), 0)`,
		subscriptionID, account,
		subscriptionID, account,
	).Scan(&balance).Error
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Service) MonthlyBalances(ctx context.Context, orgID snowflake.ID, account ledgerdomain.Account, year int) ([]ledgerdomain.MonthlyBalance, error) {
	if orgID == 0 {
		return nil, ledgerdomain.ErrInvalidOrganization
	}
	if account == "" {
		account = ledgerdomain.AccountFunds
	}

	balances := make([]ledgerdomain.MonthlyBalance, 0, 12)
	for month := time.January; month <= time.December; month++ {
		until := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		balance, err := s.OrganizationBalance(ctx, orgID, account, until)
		if err != nil {
			return nil, err
		}
		balances = append(balances, ledgerdomain.MonthlyBalance{
			Month:   time.Date(year, month, 1, 0, 0, 0, 0, time.UTC),
			Balance: balance,
		})
	}
	return balances, nil
}
