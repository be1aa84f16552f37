package fake

import (
	"context"
	"testing"
	"time"

	"github.com/billinglab/subledger/internal/clock"
	orgdomain "github.com/billinglab/subledger/internal/organization/domain"
	"github.com/billinglab/subledger/internal/processor/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBackend() *Backend {
	return NewBackend(zap.NewNop(), clock.NewFakeClock(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)))
}

func TestProrateTransaction(t *testing.T) {
	b := newTestBackend()

	// 2.9% rounded half-up, plus 30 cents.
	assert.Equal(t, int64(320), b.ProrateTransaction(10000))
	assert.Equal(t, int64(59), b.ProrateTransaction(1000))
	assert.Equal(t, int64(33), b.ProrateTransaction(100))
	assert.Equal(t, int64(30), b.ProrateTransaction(1))
	assert.Equal(t, int64(0), b.ProrateTransaction(0))
	assert.Equal(t, int64(0), b.ProrateTransaction(-500))
}

func TestChargeLifecycle(t *testing.T) {
	b := newTestBackend()
	ctx := context.Background()

	customer := &orgdomain.Organization{Slug: "xia", ProcessorCustomerID: "cus_test"}
	receipt, err := b.CreateCharge(ctx, customer, 1000, "usd", "one month", "BROKER")
	require.NoError(t, err)
	require.NotEmpty(t, receipt.ProcessorKey)

	status, err := b.RetrieveCharge(ctx, receipt.ProcessorKey)
	require.NoError(t, err)
	assert.Equal(t, domain.ChargeStatusPaid, status)

	require.NoError(t, b.RefundCharge(ctx, receipt.ProcessorKey, 1000))

	_, err = b.RetrieveCharge(ctx, "ch_unknown")
	require.Error(t, err)
	require.Error(t, b.RefundCharge(ctx, "ch_unknown", 1000))
}

func TestChargeRequiresCardOnFile(t *testing.T) {
	b := newTestBackend()
	ctx := context.Background()

	_, err := b.CreateCharge(ctx, &orgdomain.Organization{Slug: "new"}, 1000, "usd", "", "")
	var procErr *domain.Error
	require.ErrorAs(t, err, &procErr)
	assert.False(t, procErr.Retryable)
}

func TestDeclineToken(t *testing.T) {
	b := newTestBackend()
	ctx := context.Background()

	_, err := b.CreateChargeOnCard(ctx, DeclineToken, 1000, "usd", "", "")
	require.Error(t, err)

	receipt, err := b.CreateChargeOnCard(ctx, "tok_visa", 1000, "usd", "", "")
	require.NoError(t, err)
	assert.Equal(t, "1234", receipt.Last4)

	_, err = b.CreateOrUpdateCard(ctx, &orgdomain.Organization{Slug: "new"}, DeclineToken)
	require.Error(t, err)
}

func TestCustomerAndBankIdentifiersAreStable(t *testing.T) {
	b := newTestBackend()
	ctx := context.Background()

	org := &orgdomain.Organization{Slug: "xia"}
	customerID, err := b.CreateOrUpdateCard(ctx, org, "tok_visa")
	require.NoError(t, err)
	require.NotEmpty(t, customerID)

	org.ProcessorCustomerID = customerID
	again, err := b.CreateOrUpdateCard(ctx, org, "tok_mastercard")
	require.NoError(t, err)
	assert.Equal(t, customerID, again)

	_, err = b.RetrieveBank(ctx, org)
	require.Error(t, err)

	recipientID, err := b.CreateOrUpdateBank(ctx, org, "btok_1")
	require.NoError(t, err)
	org.ProcessorRecipientID = recipientID

	info, err := b.RetrieveBank(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, "Test Bank", info.BankName)
}
