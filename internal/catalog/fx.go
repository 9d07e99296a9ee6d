package catalog

import (
	"github.com/creditrail/creditrail/internal/catalog/repository"
	"github.com/creditrail/creditrail/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
