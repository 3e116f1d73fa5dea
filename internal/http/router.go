package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/synccore-backend/internal/http/handlers"
	httpMW "github.com/yungbote/synccore-backend/internal/http/middleware"
	"github.com/yungbote/synccore-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	HealthHandler *httpH.HealthHandler
	InhaleHandler *httpH.InhaleHandler
	StateHandler  *httpH.StateHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("synccore"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	{
		if cfg.InhaleHandler != nil {
			api.POST("/inhale", cfg.InhaleHandler.Inhale)
		}
		if cfg.StateHandler != nil {
			api.GET("/seal", cfg.StateHandler.Seal)
			api.GET("/state", cfg.StateHandler.State)
			api.GET("/exhale", cfg.StateHandler.Exhale)
		}
	}

	return r
}
