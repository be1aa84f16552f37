package service

import (
	"context"
	"testing"

	cdomain "github.com/billinglab/subledger/internal/charge/domain"
	ledgerdomain "github.com/billinglab/subledger/internal/ledger/domain"
	"github.com/stretchr/testify/require"
)

func (f *fixture) settledCharge(t *testing.T, amount int64) *cdomain.Charge {
	t.Helper()
	ctx := context.Background()
	line := f.invoiceLine(t, amount)
	charge, err := f.svc.ChargeCard(ctx, nil, f.subscriber, []*ledgerdomain.Transaction{line}, "", false)
	require.NoError(t, err)
	require.NoError(t, f.svc.PaymentSuccessful(ctx, charge.ID))
	return charge
}

func TestRefundFull(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	charge := f.settledCharge(t, 10000)
	require.NoError(t, f.svc.Refund(ctx, charge.ID, 0, 0))

	// Fee and distribution both unwind completely.
	provider, err := f.orgs.FindByID(ctx, nil, f.provider.ID)
	require.NoError(t, err)
	require.Zero(t, provider.FundsBalance)

	broker, err := f.orgs.FindByID(ctx, nil, f.broker.ID)
	require.NoError(t, err)
	require.Zero(t, broker.FundsBalance)

	item, err := f.svc.repo.ItemByRank(ctx, charge.ID, 0)
	require.NoError(t, err)
	require.Equal(t, int64(10000), item.RefundedAmount)

	// A second refund finds nothing left.
	require.ErrorIs(t, f.svc.Refund(ctx, charge.ID, 0, 0), cdomain.ErrInvalidAmount)
}

func TestRefundPartialSplitsProportionally(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	charge := f.settledCharge(t, 10000)
	fee := int64(320)
	distribute := int64(10000) - fee

	require.NoError(t, f.svc.Refund(ctx, charge.ID, 0, 5000))

	// Half the line refunded: half the fee and half the distribution reverse.
	provider, err := f.orgs.FindByID(ctx, nil, f.provider.ID)
	require.NoError(t, err)
	require.Equal(t, distribute-4840, provider.FundsBalance)

	broker, err := f.orgs.FindByID(ctx, nil, f.broker.ID)
	require.NoError(t, err)
	require.Equal(t, fee-160, broker.FundsBalance)

	// The remainder is still refundable.
	require.NoError(t, f.svc.Refund(ctx, charge.ID, 0, 0))
	item, err := f.svc.repo.ItemByRank(ctx, charge.ID, 0)
	require.NoError(t, err)
	require.Equal(t, int64(10000), item.RefundedAmount)

	provider, err = f.orgs.FindByID(ctx, nil, f.provider.ID)
	require.NoError(t, err)
	require.Zero(t, provider.FundsBalance)
}

func TestRefundRejectsOverAmount(t *testing.T) {
	f := newFixture(t)
	charge := f.settledCharge(t, 10000)
	err := f.svc.Refund(context.Background(), charge.ID, 0, 10001)
	require.ErrorIs(t, err, cdomain.ErrInvalidAmount)
}

func TestRefundRequiresSettledCharge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	line := f.invoiceLine(t, 10000)
	charge, err := f.svc.ChargeCard(ctx, nil, f.subscriber, []*ledgerdomain.Transaction{line}, "", false)
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Refund(ctx, charge.ID, 0, 0), cdomain.ErrNotPaid)
}

func TestRefundAbortsWhenProviderFundsSpent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	charge := f.settledCharge(t, 10000)

	// The provider withdrew its escrow; the distribution cannot reverse.
	require.NoError(t, f.orgs.AdjustFunds(ctx, nil, f.provider.ID, -9680))

	err := f.svc.Refund(ctx, charge.ID, 0, 0)
	var insufficient *cdomain.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, int64(0), insufficient.Available)
	require.Equal(t, int64(9680), insufficient.Required)

	// The aborted refund left every balance untouched.
	broker, err := f.orgs.FindByID(ctx, nil, f.broker.ID)
	require.NoError(t, err)
	require.Equal(t, int64(320), broker.FundsBalance)

	item, err := f.svc.repo.ItemByRank(ctx, charge.ID, 0)
	require.NoError(t, err)
	require.Zero(t, item.RefundedAmount)
}
