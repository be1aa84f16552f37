package processor

import (
	"github.com/billinglab/subledger/internal/clock"
	"github.com/billinglab/subledger/internal/config"
	"github.com/billinglab/subledger/internal/processor/domain"
	"github.com/billinglab/subledger/internal/processor/fake"
	"github.com/billinglab/subledger/internal/processor/stripe"
	"go.uber.org/zap"

	"go.uber.org/fx"
)

// Module selects the payment backend from configuration. Anything other than
// "stripe" gets the deterministic fake, so a misconfigured box can never hit
// the live API.
var Module = fx.Module("processor",
	fx.Provide(func(cfg config.Config, log *zap.Logger, c clock.Clock) domain.Backend {
		if cfg.Processor == "stripe" {
			return stripe.NewBackend(cfg, log)
		}
		return fake.NewBackend(log, c)
	}),
)
