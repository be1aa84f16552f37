package plan

import (
	"github.com/billinglab/subledger/internal/plan/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.NewRepository),
)
