package service

import (
	"context"
	"errors"
	"fmt"

	cdomain "github.com/billinglab/subledger/internal/charge/domain"
	"github.com/billinglab/subledger/internal/events"
	"github.com/billinglab/subledger/internal/humanize"
	ledgerdomain "github.com/billinglab/subledger/internal/ledger/domain"
	orgdomain "github.com/billinglab/subledger/internal/organization/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Refund reverses part or all of one settled order line. A zero
// refundedAmount means the full amount still refundable on the item.
//
// Three ledger entries restore the books: the customer-facing refund, the
// processor-fee reversal and the distribution reversal. The provider's
// escrowed funds must cover the distribution reversal or the whole refund
// aborts; the fee reversal is never blocked, the broker absorbs it.
func (s *Service) Refund(ctx context.Context, chargeID snowflake.ID, rank int, refundedAmount int64) error {
	charge, err := s.repo.FindByID(ctx, nil, chargeID)
	if err != nil {
		return err
	}
	if charge.State != cdomain.StateDone {
		return cdomain.ErrNotPaid
	}
	item, err := s.repo.ItemByRank(ctx, chargeID, rank)
	if err != nil {
		return err
	}
	invoiced, err := s.findTransaction(ctx, item.InvoicedID)
	if err != nil {
		return err
	}
	distributeEntry, err := s.findTransaction(ctx, item.InvoicedDistributeID)
	if err != nil {
		return err
	}
	// A zero fee id means settlement took no fee on this line.
	var feeEntry *ledgerdomain.Transaction
	if item.InvoicedFeeID != 0 {
		feeEntry, err = s.findTransaction(ctx, item.InvoicedFeeID)
		if err != nil {
			return err
		}
	}

	available := invoiced.DestAmount - item.RefundedAmount
	if refundedAmount == 0 {
		refundedAmount = available
	}
	if refundedAmount <= 0 || refundedAmount > available {
		return cdomain.ErrInvalidAmount
	}

	// Reverse fee and distribution in the same proportion they were taken.
	var refundedFee int64
	if feeEntry != nil {
		refundedFee = feeEntry.DestAmount * refundedAmount / invoiced.DestAmount
	}
	refundedDistribute := refundedAmount - refundedFee

	provider := invoiced.OrigOrganizationID
	subscriber := invoiced.DestOrganizationID
	unit := invoiced.DestUnit
	now := s.clock.Now()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		entries := []*ledgerdomain.Transaction{
			{
				ID:                 s.genID.Generate(),
				CreatedAt:          now,
				OrigOrganizationID: provider,
				OrigAccount:        ledgerdomain.AccountRefund,
				OrigAmount:         refundedAmount,
				OrigUnit:           unit,
				DestOrganizationID: subscriber,
				DestAccount:        ledgerdomain.AccountRefunded,
				DestAmount:         refundedAmount,
				DestUnit:           unit,
				Descr:              humanize.DescribeChargedCardRefund(invoiced.Descr, charge.ProcessorKey),
				EventID:            invoiced.EventID,
			},
		}
		if refundedFee > 0 {
			entries = append(entries, &ledgerdomain.Transaction{
				ID:                 s.genID.Generate(),
				CreatedAt:          now,
				OrigOrganizationID: s.platform.Broker.ID,
				OrigAccount:        ledgerdomain.AccountFunds,
				OrigAmount:         refundedFee,
				OrigUnit:           unit,
				DestOrganizationID: s.platform.Broker.ID,
				DestAccount:        ledgerdomain.AccountRefund,
				DestAmount:         refundedFee,
				DestUnit:           unit,
				Descr:              humanize.DescribeChargedCardRefund(feeEntry.Descr, charge.ProcessorKey),
				EventID:            invoiced.EventID,
			})
		}
		if refundedDistribute > 0 {
			entries = append(entries, &ledgerdomain.Transaction{
				ID:                 s.genID.Generate(),
				CreatedAt:          now,
				OrigOrganizationID: provider,
				OrigAccount:        ledgerdomain.AccountFunds,
				OrigAmount:         refundedDistribute,
				OrigUnit:           unit,
				DestOrganizationID: s.platform.Broker.ID,
				DestAccount:        ledgerdomain.AccountRefund,
				DestAmount:         refundedDistribute,
				DestUnit:           unit,
				Descr:              humanize.DescribeChargedCardRefund(distributeEntry.Descr, charge.ProcessorKey),
				EventID:            invoiced.EventID,
			})
		}
		if err := s.ledger.Append(ctx, tx, entries...); err != nil {
			return err
		}
		if refundedFee > 0 {
			if err := s.orgs.AdjustFundsUnchecked(ctx, tx, s.platform.Broker.ID, -refundedFee); err != nil {
				return err
			}
		}
		if refundedDistribute > 0 {
			err := s.orgs.AdjustFunds(ctx, tx, provider, -refundedDistribute)
			if errors.Is(err, orgdomain.ErrFundsUnavailable) {
				org, lookupErr := s.orgs.FindByID(ctx, tx, provider)
				if lookupErr != nil {
					return lookupErr
				}
				return &cdomain.InsufficientFundsError{
					Available: org.FundsBalance,
					Required:  refundedDistribute,
					Unit:      unit,
				}
			}
			if err != nil {
				return err
			}
		}
		if err := s.repo.AddItemRefund(ctx, tx, item.ID, refundedAmount); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			OrgID:     subscriber,
			Type:      events.EventChargeUpdated,
			Payload:   chargePayload(charge),
			DedupeKey: fmt.Sprintf("refund:%s:%d", item.ID, item.RefundedAmount+refundedAmount),
		})
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.Refunds.WithLabelValues("rejected").Inc()
		}
		return err
	}

	if err := s.platform.Backend.RefundCharge(ctx, charge.ProcessorKey, refundedAmount); err != nil {
		// Books are already restored; the processor call must be replayed.
		s.log.Error("processor refund failed after ledger commit",
			zap.String("processor_key", charge.ProcessorKey),
			zap.Int64("amount", refundedAmount),
			zap.Error(err))
		return err
	}
	if s.metrics != nil {
		s.metrics.Refunds.WithLabelValues("ok").Inc()
	}
	s.log.Info("charge refunded",
		zap.String("charge_id", charge.ID.String()),
		zap.Int("rank", rank),
		zap.Int64("amount", refundedAmount))
	return nil
}
