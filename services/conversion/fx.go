package conversion

import (
	"smallbiznis-affiliate/pkg/taskname"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("conversion.service",
	fx.Provide(
		NewService,
		NewEngine,
		NewDispatcher,
	),
)

var HTTP = fx.Module("conversion.http",
	fx.Provide(NewHandler),
	fx.Invoke(func(r *gin.Engine, h *Handler) { h.Register(r) }),
)

// Worker registers the deferred distribution handler on the asynq mux.
var Worker = fx.Module("conversion.worker",
	fx.Provide(NewTaskHandler),
	fx.Invoke(func(mux *asynq.ServeMux, h *TaskHandler) {
		mux.Handle(taskname.ConversionDistribute, h)
	}),
)
