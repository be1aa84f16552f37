package charge

import (
	"github.com/billinglab/subledger/internal/charge/repository"
	"github.com/billinglab/subledger/internal/charge/service"
	"go.uber.org/fx"
)

var Module = fx.Module("charge.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
