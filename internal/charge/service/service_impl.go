package service

import (
	"context"
	"errors"
	"fmt"

	cdomain "github.com/billinglab/subledger/internal/charge/domain"
	"github.com/billinglab/subledger/internal/clock"
	"github.com/billinglab/subledger/internal/config"
	"github.com/billinglab/subledger/internal/events"
	"github.com/billinglab/subledger/internal/humanize"
	ledgerdomain "github.com/billinglab/subledger/internal/ledger/domain"
	"github.com/billinglab/subledger/internal/observability/metrics"
	orgdomain "github.com/billinglab/subledger/internal/organization/domain"
	"github.com/billinglab/subledger/internal/plan/domain"
	procdomain "github.com/billinglab/subledger/internal/processor/domain"
	"github.com/billinglab/subledger/internal/platform"
	subdomain "github.com/billinglab/subledger/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrNothingToCharge means the order lines sum to zero, so no card debit is
// needed. Callers treat it as success with no charge.
var ErrNothingToCharge = errors.New("nothing_to_charge")

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Platform   platform.Context
	Repo       cdomain.Repository
	Orgs       orgdomain.Repository
	Plans      domain.Repository
	Subs       subdomain.Repository
	Ledger     ledgerdomain.Service
	Outbox     *events.Outbox
	ObsMetrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	platform platform.Context
	repo     cdomain.Repository
	orgs     orgdomain.Repository
	plans    domain.Repository
	subs     subdomain.Repository
	ledger   ledgerdomain.Service
	outbox   *events.Outbox
	metrics  *metrics.Metrics
}

func NewService(p Params) cdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("charge.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Config,
		platform: p.Platform,
		repo:     p.Repo,
		orgs:     p.Orgs,
		plans:    p.Plans,
		subs:     p.Subs,
		ledger:   p.Ledger,
		outbox:   p.Outbox,
		metrics:  p.ObsMetrics,
	}
}

func (s *Service) ChargeCard(ctx context.Context, tx *gorm.DB, customer *orgdomain.Organization, invoiced []*ledgerdomain.Transaction, cardToken string, rememberCard bool) (*cdomain.Charge, error) {
	amount, unit := s.ledger.Sum(invoiced, ledgerdomain.SideDest)
	if amount <= 0 {
		return nil, ErrNothingToCharge
	}
	if unit == "" {
		unit = s.platform.Unit()
	}

	descr := ""
	for _, line := range invoiced {
		if descr != "" {
			descr += ", "
		}
		descr += line.Descr
	}

	if cardToken != "" && rememberCard {
		customerID, err := s.platform.Backend.CreateOrUpdateCard(ctx, customer, cardToken)
		if err != nil {
			return nil, err
		}
		if customerID != customer.ProcessorCustomerID {
			customer.ProcessorCustomerID = customerID
			if err := s.orgs.Save(ctx, tx, customer); err != nil {
				return nil, err
			}
		}
		// The token is consumed by the association; debit the card on file.
		cardToken = ""
	}

	stmtDescr := s.statementDescr()
	var (
		receiptData procdomain.ChargeReceipt
		err         error
	)
	if cardToken != "" {
		receiptData, err = s.platform.Backend.CreateChargeOnCard(ctx, cardToken, amount, unit, descr, stmtDescr)
	} else {
		receiptData, err = s.platform.Backend.CreateCharge(ctx, customer, amount, unit, descr, stmtDescr)
	}
	if err != nil {
		return nil, err
	}

	charge := &cdomain.Charge{
		ID:           s.genID.Generate(),
		CreatedAt:    receiptData.CreatedAt,
		CustomerID:   customer.ID,
		Amount:       amount,
		Unit:         unit,
		State:        cdomain.StateCreated,
		Descr:        descr,
		ProcessorKey: receiptData.ProcessorKey,
		Last4:        receiptData.Last4,
		ExpDate:      receiptData.ExpDate,
	}
	items := make([]*cdomain.ChargeItem, 0, len(invoiced))
	for rank, line := range invoiced {
		items = append(items, &cdomain.ChargeItem{
			ID:         s.genID.Generate(),
			ChargeID:   charge.ID,
			Rank:       rank,
			InvoicedID: line.ID,
		})
	}

	persist := func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, charge, items); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			OrgID:     customer.ID,
			Type:      events.EventChargeUpdated,
			Payload:   chargePayload(charge),
			DedupeKey: fmt.Sprintf("charge:%s:%s", charge.ID, charge.State),
		})
	}
	if tx != nil {
		err = persist(tx)
	} else {
		err = s.db.Transaction(persist)
	}
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.Charges.WithLabelValues(string(cdomain.StateCreated)).Inc()
	}
	s.log.Info("charge created",
		zap.String("id", charge.ID.String()),
		zap.String("processor_key", charge.ProcessorKey),
		zap.Int64("amount", amount),
		zap.String("unit", unit))
	return charge, nil
}

func chargePayload(charge *cdomain.Charge) map[string]any {
	return map[string]any{
		"charge_id":     charge.ID.String(),
		"processor_key": charge.ProcessorKey,
		"state":         string(charge.State),
		"amount":        charge.Amount,
		"unit":          charge.Unit,
	}
}

func (s *Service) statementDescr() string {
	descr := s.platform.Broker.FullName
	if max := s.cfg.StatementDescrMax; max > 0 && len(descr) > max {
		descr = descr[:max]
	}
	return descr
}

// PaymentSuccessful books the settlement for a paid charge. The invoiced
// totals must not exceed the charged amount; anything else is a defect in
// order assembly and aborts without writing.
func (s *Service) PaymentSuccessful(ctx context.Context, chargeID snowflake.ID) error {
	charge, err := s.repo.FindByID(ctx, nil, chargeID)
	if err != nil {
		return err
	}
	items, err := s.repo.Items(ctx, chargeID)
	if err != nil {
		return err
	}
	customer, err := s.orgs.FindByID(ctx, nil, charge.CustomerID)
	if err != nil {
		return err
	}

	invoiced := make(map[snowflake.ID]*ledgerdomain.Transaction, len(items))
	var invoicedTotal int64
	for _, item := range items {
		line, err := s.findTransaction(ctx, item.InvoicedID)
		if err != nil {
			return err
		}
		invoiced[item.ID] = line
		invoicedTotal += line.DestAmount
	}
	if invoicedTotal > charge.Amount {
		s.log.Error("invoiced total exceeds charge amount",
			zap.String("charge_id", charge.ID.String()),
			zap.Int64("invoiced", invoicedTotal),
			zap.Int64("charged", charge.Amount))
		return ledgerdomain.ErrIntegrityViolation
	}

	now := s.clock.Now()
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateState(ctx, tx, charge.ID, cdomain.StateCreated, cdomain.StateDone); err != nil {
			return err
		}

		income := &ledgerdomain.Transaction{
			ID:                 s.genID.Generate(),
			CreatedAt:          now,
			OrigOrganizationID: s.platform.Broker.ID,
			OrigAccount:        ledgerdomain.AccountIncome,
			OrigAmount:         charge.Amount,
			OrigUnit:           charge.Unit,
			DestOrganizationID: customer.ID,
			DestAccount:        ledgerdomain.AccountExpenses,
			DestAmount:         charge.Amount,
			DestUnit:           charge.Unit,
			Descr:              humanize.DescribeChargedCard(charge.ProcessorKey, customer.FullName),
			EventID:            charge.ID,
		}
		if err := s.ledger.Append(ctx, tx, income); err != nil {
			return err
		}

		for _, item := range items {
			line := invoiced[item.ID]
			total := line.DestAmount
			fee := s.platform.FeeAmount(total)
			distribute := total - fee
			label := s.eventLabel(ctx, tx, line.EventID)

			var feeEntryID snowflake.ID
			if fee > 0 {
				feeEntry := &ledgerdomain.Transaction{
					ID:                 s.genID.Generate(),
					CreatedAt:          now,
					OrigOrganizationID: line.DestOrganizationID,
					OrigAccount:        ledgerdomain.AccountPayable,
					OrigAmount:         fee,
					OrigUnit:           line.DestUnit,
					DestOrganizationID: s.platform.Broker.ID,
					DestAccount:        ledgerdomain.AccountFunds,
					DestAmount:         fee,
					DestUnit:           line.DestUnit,
					Descr:              humanize.DescribeChargedCardProcessor(charge.ProcessorKey, label),
					EventID:            line.EventID,
				}
				if err := s.ledger.Append(ctx, tx, feeEntry); err != nil {
					return err
				}
				if err := s.orgs.AdjustFunds(ctx, tx, s.platform.Broker.ID, fee); err != nil {
					return err
				}
				feeEntryID = feeEntry.ID
			}
			distributeEntry := &ledgerdomain.Transaction{
				ID:                 s.genID.Generate(),
				CreatedAt:          now,
				OrigOrganizationID: line.DestOrganizationID,
				OrigAccount:        ledgerdomain.AccountPayable,
				OrigAmount:         distribute,
				OrigUnit:           line.DestUnit,
				DestOrganizationID: line.OrigOrganizationID,
				DestAccount:        ledgerdomain.AccountFunds,
				DestAmount:         distribute,
				DestUnit:           line.DestUnit,
				Descr:              humanize.DescribeChargedCardProvider(charge.ProcessorKey, label),
				EventID:            line.EventID,
			}
			if err := s.ledger.Append(ctx, tx, distributeEntry); err != nil {
				return err
			}
			if distribute > 0 {
				if err := s.orgs.AdjustFunds(ctx, tx, line.OrigOrganizationID, distribute); err != nil {
					return err
				}
			}
			if err := s.repo.SetItemSettlement(ctx, tx, item.ID, feeEntryID, distributeEntry.ID); err != nil {
				return err
			}
		}

		return s.outbox.PublishTx(ctx, tx, events.Event{
			OrgID:     customer.ID,
			Type:      events.EventChargeUpdated,
			Payload:   chargePayload(charge),
			DedupeKey: fmt.Sprintf("charge:%s:%s", charge.ID, cdomain.StateDone),
		})
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.Charges.WithLabelValues(string(cdomain.StateDone)).Inc()
	}
	s.log.Info("payment successful",
		zap.String("charge_id", charge.ID.String()),
		zap.String("processor_key", charge.ProcessorKey))
	return nil
}

func (s *Service) Failed(ctx context.Context, processorKey string) error {
	charge, err := s.repo.FindByProcessorKey(ctx, processorKey)
	if err != nil {
		return err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateState(ctx, tx, charge.ID, cdomain.StateCreated, cdomain.StateFailed); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			OrgID:     charge.CustomerID,
			Type:      events.EventChargeUpdated,
			Payload:   chargePayload(charge),
			DedupeKey: fmt.Sprintf("charge:%s:%s", charge.ID, cdomain.StateFailed),
		})
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.Charges.WithLabelValues(string(cdomain.StateFailed)).Inc()
	}
	s.log.Warn("charge failed", zap.String("processor_key", processorKey))
	return nil
}

func (s *Service) Retrieve(ctx context.Context, chargeID snowflake.ID) (*cdomain.Charge, error) {
	charge, err := s.repo.FindByID(ctx, nil, chargeID)
	if err != nil {
		return nil, err
	}
	if charge.State != cdomain.StateCreated {
		return charge, nil
	}
	status, err := s.platform.Backend.RetrieveCharge(ctx, charge.ProcessorKey)
	if err != nil {
		return nil, err
	}
	switch status {
	case procdomain.ChargeStatusPaid:
		if err := s.PaymentSuccessful(ctx, charge.ID); err != nil {
			return nil, err
		}
	case procdomain.ChargeStatusFailed:
		if err := s.Failed(ctx, charge.ProcessorKey); err != nil {
			return nil, err
		}
	}
	return s.repo.FindByID(ctx, nil, chargeID)
}

func (s *Service) GetByProcessorKey(ctx context.Context, processorKey string) (*cdomain.Charge, error) {
	return s.repo.FindByProcessorKey(ctx, processorKey)
}

// Dispute transitions only move the lifecycle; money stays put until the
// dispute resolves through a refund or a chargeback entry.
func (s *Service) DisputeCreated(ctx context.Context, processorKey string) error {
	return s.transitionByKey(ctx, processorKey, cdomain.StateDone, cdomain.StateDisputed)
}

func (s *Service) DisputeClosed(ctx context.Context, processorKey string) error {
	return s.transitionByKey(ctx, processorKey, cdomain.StateDisputed, cdomain.StateDone)
}

func (s *Service) transitionByKey(ctx context.Context, processorKey string, from, to cdomain.State) error {
	charge, err := s.repo.FindByProcessorKey(ctx, processorKey)
	if err != nil {
		return err
	}
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpdateState(ctx, tx, charge.ID, from, to); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			OrgID:     charge.CustomerID,
			Type:      events.EventChargeUpdated,
			Payload:   chargePayload(charge),
			DedupeKey: fmt.Sprintf("charge:%s:%s", charge.ID, to),
		})
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.Charges.WithLabelValues(string(to)).Inc()
	}
	return nil
}

func (s *Service) findTransaction(ctx context.Context, id snowflake.ID) (*ledgerdomain.Transaction, error) {
	var line ledgerdomain.Transaction
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ledgerdomain.ErrIntegrityViolation
	}
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// eventLabel renders "provider:plan" for a subscription event id, falling
// back to the raw id when the lookup chain breaks.
func (s *Service) eventLabel(ctx context.Context, tx *gorm.DB, eventID snowflake.ID) string {
	subscription, err := s.subs.FindByID(ctx, tx, eventID)
	if err != nil {
		return eventID.String()
	}
	org, err := s.orgs.FindByID(ctx, tx, subscription.OrgID)
	if err != nil {
		return eventID.String()
	}
	plan, err := s.plans.FindByID(ctx, tx, subscription.PlanID)
	if err != nil {
		return eventID.String()
	}
	return org.Slug + ":" + plan.Slug
}

// ChargeDeferred collects the unlock order lines still open on the
// customer's Payable account, debiting them in one charge. Lines already
// referenced by a charge item are skipped.
func (s *Service) ChargeDeferred(ctx context.Context, customer *orgdomain.Organization, cardToken string, rememberCard bool) (*cdomain.Charge, error) {
	var lines []*ledgerdomain.Transaction
	err := s.db.WithContext(ctx).
		Where(`dest_organization_id = ? AND dest_account = ?
		       AND id NOT IN (SELECT invoiced_id FROM charge_items)`,
			customer.ID, string(ledgerdomain.AccountPayable)).
		Order("created_at ASC").
		Find(&lines).Error
	if err != nil {
		return nil, err
	}
	deferred := lines[:0]
	for _, line := range lines {
		if humanize.MatchUnlock(line.Descr) {
			deferred = append(deferred, line)
		}
	}
	if len(deferred) == 0 {
		return nil, ErrNothingToCharge
	}
	return s.ChargeCard(ctx, nil, customer, deferred, cardToken, rememberCard)
}
