package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/api/handlers"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/api/middleware"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"
)

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Dispatcher handlers.Dispatcher
	Tokens     handlers.TokenFlow
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))
	router.Use(middleware.ContentType())

	healthHandler := handlers.NewHealthHandler()
	router.GET("/health", healthHandler.GetHealth)

	if config.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))
	}

	authHandler := handlers.NewAuthHandler(config.Tokens, config.Logger)
	auth := router.Group("/auth")
	{
		auth.GET("/daikin", authHandler.Authorize(core.ProviderDaikin))
		auth.GET("/daikin/callback", authHandler.Callback(core.ProviderDaikin))
		auth.GET("/netatmo", authHandler.Authorize(core.ProviderNetatmo))
		auth.GET("/netatmo/callback", authHandler.Callback(core.ProviderNetatmo))
	}

	devicesHandler := handlers.NewDevicesHandler(config.Dispatcher, config.Logger)
	thermostatHandler := handlers.NewThermostatHandler(config.Dispatcher, config.Logger)

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/devices", devicesHandler.ListDevices)
		apiGroup.GET("/devices/:id", devicesHandler.GetDevice)

		daikinGroup := apiGroup.Group("/daikin/devices/:id")
		{
			daikinGroup.PATCH("/onoff", devicesHandler.SetOnOff)
			daikinGroup.PATCH("/mode", devicesHandler.SetMode)
			daikinGroup.PATCH("/temperature", devicesHandler.SetTemperature)
			daikinGroup.PATCH("/fanspeed", devicesHandler.SetFanSpeed)
		}

		netatmoGroup := apiGroup.Group("/netatmo")
		{
			netatmoGroup.POST("/init", authHandler.NetatmoInit)
			netatmoGroup.GET("/homes", thermostatHandler.ListHomes)
			netatmoGroup.GET("/status/:homeId", thermostatHandler.GetHomeStatus)
			netatmoGroup.POST("/setstate", thermostatHandler.SetState)
			netatmoGroup.POST("/boostheating", thermostatHandler.BoostHeating)
			netatmoGroup.POST("/switchschedule", thermostatHandler.SwitchSchedule)
			netatmoGroup.POST("/syncschedule", thermostatHandler.SyncSchedule)
			netatmoGroup.POST("/setschedule", thermostatHandler.SetSchedule)
			netatmoGroup.POST("/switchhomeschedule", thermostatHandler.SwitchHomeSchedule)
		}
	}

	return router
}
