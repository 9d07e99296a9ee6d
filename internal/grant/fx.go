package grant

import (
	"github.com/creditrail/creditrail/internal/grant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("grant",
	fx.Provide(service.NewService),
)
