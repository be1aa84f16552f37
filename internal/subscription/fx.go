package subscription

import (
	"github.com/billinglab/subledger/internal/subscription/repository"
	"github.com/billinglab/subledger/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
