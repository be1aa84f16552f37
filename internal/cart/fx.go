package cart

import (
	"github.com/billinglab/subledger/internal/cart/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("cart",
	fx.Provide(repository.NewRepository),
)
