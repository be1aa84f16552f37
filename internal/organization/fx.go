package organization

import (
	"github.com/billinglab/subledger/internal/organization/domain"
	"github.com/billinglab/subledger/internal/organization/repository"
	"github.com/billinglab/subledger/internal/organization/service"
	"go.uber.org/fx"
)

var Module = fx.Module("organization.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
	fx.Provide(domain.NewDefaultRoleDescriber),
)
