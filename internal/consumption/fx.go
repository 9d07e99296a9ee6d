package consumption

import (
	"github.com/creditrail/creditrail/internal/consumption/service"
	"go.uber.org/fx"
)

var Module = fx.Module("consumption",
	fx.Provide(service.NewService),
)
