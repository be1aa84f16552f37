package humanize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAsMoney(t *testing.T) {
	assert.Equal(t, "$12.34", AsMoney(1234, "usd"))
	assert.Equal(t, "$0.05", AsMoney(5, "usd"))
	assert.Equal(t, "$-0.50", AsMoney(-50, "usd"))
	assert.Equal(t, "$0.50", AsMoney(-50, "-usd"))
	assert.Equal(t, "$12.34 CAD", AsMoney(1234, "cad"))
}

func TestDescriptionsRoundTripThroughMatchUnlock(t *testing.T) {
	now := DescribeUnlockNow("Premium", "roster-signed")
	later := DescribeUnlockLater("Premium", 9900, "usd", "roster-signed")
	buy := DescribeBuyPeriods("Premium", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), "1 month")

	assert.True(t, MatchUnlock(now))
	assert.True(t, MatchUnlock(later))
	assert.False(t, MatchUnlock(buy))
	assert.False(t, MatchUnlock(DescribeChargedCard("ch_123", "Acme")))
}

func TestDescribeChargedCardRefundQuotesOriginal(t *testing.T) {
	original := DescribeChargedCardProvider("ch_123", "acme:premium")
	refund := DescribeChargedCardRefund(original, "ch_123")
	assert.Contains(t, refund, original)
	assert.Contains(t, refund, "Refunded")
}
