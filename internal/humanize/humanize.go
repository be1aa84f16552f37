// Package humanize renders amounts and ledger descriptions for receipts and
// transaction rows. Description strings double as correlation data (refunds
// quote the original line's text), so formats here must stay stable.
package humanize

import (
	"fmt"
	"strings"
	"time"
)

const (
	describeBuyPeriods = "Subscription to %s until %s (%s)"

	describeChargedCard          = "Charge %s on credit card of %s"
	describeChargedCardProcessor = "Charge %s processor fee for %s"
	describeChargedCardProvider  = "Charge %s distribution for %s"
	describeChargedCardRefund    = "Refunded %s on Charge %s"

	describeUnlockNow   = "Unlock %s now. Don't worry later to %s."
	describeUnlockLater = "Access %s Today. Pay %s later to %s."

	describeWithdraw = "Withdrawal of %s from escrow of %s"
	describeRedeem   = "Redeem coupon #%s"
	describeCredit   = "Credit for creating an organization"
)

// AsMoney formats an amount in minor units. A unit prefixed with '-' negates
// the value, mirroring how balances flip sign across ledger sides.
func AsMoney(value int64, unit string) string {
	if strings.HasPrefix(unit, "-") {
		value = -value
		unit = unit[1:]
	}
	unit = strings.ToLower(unit)
	whole := value / 100
	cents := value % 100
	if cents < 0 {
		cents = -cents
	}
	sign := ""
	if value < 0 && whole == 0 {
		sign = "-"
	}
	if unit == "cad" {
		return fmt.Sprintf("$%s%d.%02d CAD", sign, whole, cents)
	}
	return fmt.Sprintf("$%s%d.%02d", sign, whole, cents)
}

func DescribeBuyPeriods(planTitle string, endsAt time.Time, humanizedPeriods string) string {
	return fmt.Sprintf(describeBuyPeriods,
		planTitle, endsAt.Format("2006/01/02"), humanizedPeriods)
}

func DescribeChargedCard(chargeKey, organization string) string {
	return fmt.Sprintf(describeChargedCard, chargeKey, organization)
}

func DescribeChargedCardProcessor(chargeKey, subscription string) string {
	return fmt.Sprintf(describeChargedCardProcessor, chargeKey, subscription)
}

func DescribeChargedCardProvider(chargeKey, subscription string) string {
	return fmt.Sprintf(describeChargedCardProvider, chargeKey, subscription)
}

func DescribeChargedCardRefund(descr, chargeKey string) string {
	return fmt.Sprintf(describeChargedCardRefund, descr, chargeKey)
}

func DescribeUnlockNow(planTitle, unlockEvent string) string {
	return fmt.Sprintf(describeUnlockNow, planTitle, unlockEvent)
}

func DescribeUnlockLater(planTitle string, amount int64, unit, unlockEvent string) string {
	return fmt.Sprintf(describeUnlockLater, planTitle, AsMoney(amount, unit), unlockEvent)
}

func DescribeWithdraw(amount int64, unit, organization string) string {
	return fmt.Sprintf(describeWithdraw, AsMoney(amount, unit), organization)
}

func DescribeRedeem(code string) string {
	return fmt.Sprintf(describeRedeem, code)
}

func DescribeCredit() string {
	return describeCredit
}

// MatchUnlock reports whether a transaction description came from one of the
// unlock templates, which marks the line as a deferred obligation.
func MatchUnlock(descr string) bool {
	if strings.HasPrefix(descr, "Unlock ") && strings.Contains(descr, "Don't worry later to ") {
		return true
	}
	if strings.HasPrefix(descr, "Access ") && strings.Contains(descr, "Today. Pay ") &&
		strings.Contains(descr, " later to ") {
		return true
	}
	return false
}
