// Package platform bundles the site-wide billing collaborators that nearly
// every engine needs: the broker organization, the payment backend and the
// hot-reloaded platform configuration. It is passed as a value, never held in
// package state, so tests can run several platforms side by side.
package platform

import (
	"context"

	"github.com/billinglab/subledger/internal/config"
	orgdomain "github.com/billinglab/subledger/internal/organization/domain"
	procdomain "github.com/billinglab/subledger/internal/processor/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Context carries the broker identity, the payment backend and the live
// platform configuration.
type Context struct {
	Broker  *orgdomain.Organization
	Backend procdomain.Backend
	Holder  *config.PlatformConfigHolder
}

// Unit returns the site-wide default currency unit.
func (p Context) Unit() string {
	return p.Holder.Get().DefaultUnit
}

// FeeAmount computes the processor fee kept on a charge of amount. A
// configured fee in basis points takes precedence over the backend's own
// fee rule.
func (p Context) FeeAmount(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	if bps := p.Holder.Get().ProcessorFeeBps; bps > 0 {
		return amount * bps / 10000
	}
	return p.Backend.ProrateTransaction(amount)
}

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Holder  *config.PlatformConfigHolder
	Orgs    orgdomain.Service
	Backend procdomain.Backend
}

// New resolves the broker organization by its configured slug and assembles
// the platform context. The broker row must exist before startup; migrations
// seed it.
func New(p Params) (Context, error) {
	broker, err := p.Orgs.GetBySlug(context.Background(), p.Config.BrokerSlug)
	if err != nil {
		p.Log.Error("broker organization not found",
			zap.String("slug", p.Config.BrokerSlug), zap.Error(err))
		return Context{}, err
	}
	return Context{Broker: broker, Backend: p.Backend, Holder: p.Holder}, nil
}

var Module = fx.Module("platform",
	fx.Provide(New),
	fx.Provide(config.NewPlatformConfigHolder),
)
