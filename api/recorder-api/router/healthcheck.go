package recorder_routers

import (
	"github.com/gin-gonic/gin"
	healthCheckApi "github.com/rapidaai/recorder/api/recorder-api/api/health"
	"github.com/rapidaai/recorder/api/recorder-api/config"
	"github.com/rapidaai/recorder/pkg/commons"
	"github.com/rapidaai/recorder/pkg/connectors"
)

func HealthCheckRoutes(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, deps ...connectors.Connector) {
	logger.Info("Internal HealthCheckRoutes and Connectors added to engine.")
	apiv1 := engine.Group("")
	hcApi := healthCheckApi.New(cfg, logger, deps...)
	{
		apiv1.GET("/readiness/", hcApi.Readiness)
		apiv1.GET("/healthz/", hcApi.Healthz)
	}
}
