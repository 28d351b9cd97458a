package recorder_routers

import (
	"github.com/gin-gonic/gin"
	recordingApi "github.com/rapidaai/recorder/api/recorder-api/api"
	"github.com/rapidaai/recorder/api/recorder-api/config"
	internal_service "github.com/rapidaai/recorder/api/recorder-api/internal/service"
	"github.com/rapidaai/recorder/pkg/commons"
)

func RecordingApiRoute(cfg *config.AppConfig, engine *gin.Engine, logger commons.Logger, service internal_service.RecordingService) {
	apiv1 := engine.Group("v1/recordings", Authenticate(cfg.AuthSecret, logger))
	rApi := recordingApi.NewRecordingApi(cfg, logger, service)
	{
		apiv1.POST("", rApi.Create)
		apiv1.GET("/:recordingId", rApi.Get)
		apiv1.POST("/:recordingId/start", rApi.Start)
		apiv1.POST("/:recordingId/pause", rApi.Pause)
		apiv1.POST("/:recordingId/resume", rApi.Resume)
		apiv1.POST("/:recordingId/stop", rApi.Stop)
		apiv1.POST("/:recordingId/tracks/:kind/samples", rApi.Append)
		apiv1.GET("/:recordingId/tracks/:kind/stream", rApi.Stream)
	}
}
