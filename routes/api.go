package routes

import (
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/campaignkit/dispatch-service/environments"
	"github.com/campaignkit/dispatch-service/handlers"
	"github.com/campaignkit/dispatch-service/internal/middlewares"
)

// RegisterRoutes registers all API routes with middleware
func RegisterRoutes(
	e *echo.Echo,
	healthHandler *handlers.HealthHandler,
	campaignHandler *handlers.CampaignHandler,
	smsHandler *handlers.SMSHandler,
	schedulerHandler *handlers.SchedulerHandler,
	cfg *environments.Config,
) {
	e.GET("/health", healthHandler.Health)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	// API v1 base group
	v1 := e.Group("/api/v1")

	// Campaign routes with their own API key
	campaigns := v1.Group("/campaigns", middlewares.APIKeyAuth(cfg.Auth.CampaignsAPIKey))

	campaigns.GET("", campaignHandler.ListCampaigns)
	campaigns.POST("", campaignHandler.CreateCampaign)
	campaigns.GET("/stats", campaignHandler.GetStats)
	campaigns.GET("/:id", campaignHandler.GetCampaign)
	campaigns.GET("/:id/messages", campaignHandler.GetCampaignMessages)
	campaigns.POST("/:id/dispatch", campaignHandler.DispatchCampaign)
	campaigns.GET("/:id/report", campaignHandler.GetCampaignReport)
	campaigns.POST("/:id/replay", campaignHandler.ReplayFailedMessages)

	// One-off sends share the campaigns key
	messages := v1.Group("/messages", middlewares.APIKeyAuth(cfg.Auth.CampaignsAPIKey))
	messages.POST("/send", campaignHandler.SendMessage)
	messages.GET("/recent", campaignHandler.GetRecentMessages)
	messages.POST("/:id/replay", campaignHandler.ReplayFailedMessage)

	// SMS routes share the campaigns key
	sms := v1.Group("/sms", middlewares.APIKeyAuth(cfg.Auth.CampaignsAPIKey))
	sms.POST("/send", smsHandler.SendBulkSMS)
	sms.GET("/:id/status", smsHandler.GetSMSStatus)

	// Scheduler routes with their own API key
	schedulerGroup := v1.Group("/scheduler", middlewares.APIKeyAuth(cfg.Auth.SchedulerAPIKey))

	schedulerGroup.POST("/start", schedulerHandler.StartScheduler)
	schedulerGroup.POST("/stop", schedulerHandler.StopScheduler)
	schedulerGroup.GET("/status", schedulerHandler.GetSchedulerStatus)
}
