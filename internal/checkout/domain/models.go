// Package domain contains the order-assembly types that turn a shopping cart
// into invoiced ledger lines and a card charge.
package domain

import (
	"context"
	"errors"
	"time"

	chargedomain "github.com/billinglab/subledger/internal/charge/domain"
	ledgerdomain "github.com/billinglab/subledger/internal/ledger/domain"
	orgdomain "github.com/billinglab/subledger/internal/organization/domain"
	plandomain "github.com/billinglab/subledger/internal/plan/domain"
	subdomain "github.com/billinglab/subledger/internal/subscription/domain"
	"github.com/bwmarrin/snowflake"
)

var ErrEmptyCart = errors.New("empty_cart")

// OrderLine is one drafted ledger entry plus the number of plan periods it
// pays for. Deferred lines extend access now and collect payment later.
type OrderLine struct {
	Transaction *ledgerdomain.Transaction
	NbPeriods   int
	Deferred    bool
}

// Invoicable groups the order lines that settle one subscription.
type Invoicable struct {
	Subscription *subdomain.Subscription
	Plan         *plandomain.Plan
	Lines        []OrderLine
}

type Service interface {
	// Invoicables previews the order the pending cart would produce, without
	// writing anything. Amounts reflect coupons but attempts stay unconsumed.
	Invoicables(ctx context.Context, userID snowflake.ID, subscriber *orgdomain.Organization, at time.Time) ([]Invoicable, error)

	// Checkout executes the pending cart in one transaction: subscriptions
	// are created or extended, order lines land on the ledger and the
	// immediate total is charged to the card. A declined card rolls the
	// whole order back. Group-buy seats mint a full-discount coupon after
	// the charge sticks. The returned charge is nil when nothing needed
	// the card.
	Checkout(ctx context.Context, userID snowflake.ID, subscriber *orgdomain.Organization, cardToken string, rememberCard bool, at time.Time) (*chargedomain.Charge, error)
}
