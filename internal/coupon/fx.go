package coupon

import (
	"github.com/billinglab/subledger/internal/coupon/repository"
	"github.com/billinglab/subledger/internal/coupon/service"
	"go.uber.org/fx"
)

var Module = fx.Module("coupon.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
