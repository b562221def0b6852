package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/climate"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/gateway"
)

// DevicesHandler handles Daikin device requests
type DevicesHandler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewDevicesHandler creates a new devices handler
func NewDevicesHandler(dispatcher Dispatcher, logger *slog.Logger) *DevicesHandler {
	return &DevicesHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ListDevices returns the flat status view of every climate device
// GET /api/devices
func (h *DevicesHandler) ListDevices(c *gin.Context) {
	raw, err := h.dispatcher.ListDevices(c.Request.Context(), core.ProviderDaikin)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	statuses, err := climate.FlattenList(raw)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, statuses)
}

// GetDevice returns the flat status view of one device
// GET /api/devices/:id
func (h *DevicesHandler) GetDevice(c *gin.Context) {
	status, err := h.dispatcher.GetStatus(c.Request.Context(), core.ProviderDaikin,
		gateway.Target{DeviceID: c.Param("id")})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// SetOnOff turns a device on or off
// PATCH /api/daikin/devices/:id/onoff
func (h *DevicesHandler) SetOnOff(c *gin.Context) {
	var req struct {
		On *bool `json:"on"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.On == nil {
		respondError(c, h.logger, &core.MissingParametersError{Params: []string{"on"}})
		return
	}

	h.sendCommand(c, core.DeviceCommand{Kind: core.CommandOnOff, On: *req.On})
}

// SetMode changes a device's operation mode
// PATCH /api/daikin/devices/:id/mode
func (h *DevicesHandler) SetMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Mode == "" {
		respondError(c, h.logger, &core.MissingParametersError{Params: []string{"mode"}})
		return
	}

	h.sendCommand(c, core.DeviceCommand{Kind: core.CommandMode, Mode: req.Mode})
}

// SetTemperature changes the setpoint for the active operation mode
// PATCH /api/daikin/devices/:id/temperature
func (h *DevicesHandler) SetTemperature(c *gin.Context) {
	var req struct {
		Temperature *float64 `json:"temperature"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Temperature == nil {
		respondError(c, h.logger, &core.MissingParametersError{Params: []string{"temperature"}})
		return
	}

	h.sendCommand(c, core.DeviceCommand{Kind: core.CommandTemperature, Temperature: *req.Temperature})
}

// SetFanSpeed changes the fixed fan speed for the active operation mode
// PATCH /api/daikin/devices/:id/fanspeed
func (h *DevicesHandler) SetFanSpeed(c *gin.Context) {
	var req struct {
		FanSpeed *int `json:"fanSpeed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.FanSpeed == nil {
		respondError(c, h.logger, &core.MissingParametersError{Params: []string{"fanSpeed"}})
		return
	}

	h.sendCommand(c, core.DeviceCommand{Kind: core.CommandFanSpeed, FanSpeed: *req.FanSpeed})
}

func (h *DevicesHandler) sendCommand(c *gin.Context, cmd core.DeviceCommand) {
	if err := cmd.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
			"code":  "INVALID_COMMAND",
		})
		return
	}

	target := gateway.Target{DeviceID: c.Param("id")}
	if err := h.dispatcher.SendCommand(c.Request.Context(), core.ProviderDaikin, target, cmd); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
