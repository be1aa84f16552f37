// Package fake implements a deterministic in-memory payment backend for
// development and tests.
package fake

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/billinglab/subledger/internal/clock"
	orgdomain "github.com/billinglab/subledger/internal/organization/domain"
	"github.com/billinglab/subledger/internal/processor/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeclineToken makes the fake backend reject a charge, for failure-path tests.
const DeclineToken = "tok_declined"

type Backend struct {
	log   *zap.Logger
	clock clock.Clock

	mu      sync.Mutex
	charges map[string]domain.ChargeStatus
}

func NewBackend(log *zap.Logger, c clock.Clock) *Backend {
	return &Backend{
		log:     log.Named("processor.fake"),
		clock:   c,
		charges: make(map[string]domain.ChargeStatus),
	}
}

func (b *Backend) CreateCharge(ctx context.Context, customer *orgdomain.Organization, amount int64, unit, descr, stmtDescr string) (domain.ChargeReceipt, error) {
	_ = ctx
	if customer.ProcessorCustomerID == "" {
		return domain.ChargeReceipt{}, &domain.Error{
			Op:     "create_charge",
			Detail: "no card on file for " + customer.Slug,
		}
	}
	return b.record(amount, unit, descr)
}

func (b *Backend) CreateChargeOnCard(ctx context.Context, cardToken string, amount int64, unit, descr, stmtDescr string) (domain.ChargeReceipt, error) {
	_ = ctx
	if cardToken == DeclineToken {
		return domain.ChargeReceipt{}, &domain.Error{
			Op:     "create_charge_on_card",
			Detail: "card declined",
		}
	}
	return b.record(amount, unit, descr)
}

func (b *Backend) record(amount int64, unit, descr string) (domain.ChargeReceipt, error) {
	now := b.clock.Now()
	key := "ch_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	b.mu.Lock()
	b.charges[key] = domain.ChargeStatusPaid
	b.mu.Unlock()
	b.log.Debug("fake charge created",
		zap.String("key", key), zap.Int64("amount", amount),
		zap.String("unit", unit), zap.String("descr", descr))
	return domain.ChargeReceipt{
		ProcessorKey: key,
		CreatedAt:    now,
		Last4:        "1234",
		ExpDate:      now.AddDate(1, 0, 0),
	}, nil
}

func (b *Backend) RefundCharge(ctx context.Context, processorKey string, amount int64) error {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.charges[processorKey]; !ok {
		return &domain.Error{Op: "refund_charge", Detail: "unknown charge " + processorKey}
	}
	return nil
}

func (b *Backend) CreateOrUpdateCard(ctx context.Context, customer *orgdomain.Organization, cardToken string) (string, error) {
	_ = ctx
	if cardToken == DeclineToken {
		return "", &domain.Error{Op: "create_or_update_card", Detail: "card declined"}
	}
	if customer.ProcessorCustomerID != "" {
		return customer.ProcessorCustomerID, nil
	}
	return "cus_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14], nil
}

func (b *Backend) CreateOrUpdateBank(ctx context.Context, provider *orgdomain.Organization, bankToken string) (string, error) {
	_ = ctx
	_ = bankToken
	if provider.ProcessorRecipientID != "" {
		return provider.ProcessorRecipientID, nil
	}
	return "rp_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14], nil
}

func (b *Backend) RetrieveBank(ctx context.Context, provider *orgdomain.Organization) (domain.BankInfo, error) {
	_ = ctx
	if provider.ProcessorRecipientID == "" {
		return domain.BankInfo{}, &domain.Error{Op: "retrieve_bank", Detail: "no bank on file"}
	}
	return domain.BankInfo{BankName: "Test Bank", Last4: "***-5678", Unit: "usd"}, nil
}

func (b *Backend) RetrieveCharge(ctx context.Context, processorKey string) (domain.ChargeStatus, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	status, ok := b.charges[processorKey]
	if !ok {
		return "", &domain.Error{Op: "retrieve_charge", Detail: "unknown charge " + processorKey}
	}
	return status, nil
}

func (b *Backend) CreateTransfer(ctx context.Context, provider *orgdomain.Organization, amount int64, unit, descr string) (string, time.Time, error) {
	_ = ctx
	b.log.Debug("fake transfer created",
		zap.String("provider", provider.Slug), zap.Int64("amount", amount))
	return "tr_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:14], b.clock.Now(), nil
}

// ProrateTransaction applies the reference card-network fee rule:
// 2.9% rounded half-up, plus 30 cents.
func (b *Backend) ProrateTransaction(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return (amount*290+5000)/10000 + 30
}
