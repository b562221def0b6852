package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/core"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/gateway"
	"github.com/S1moT3ch/AcsaHomeConnectV2/internal/providers/netatmo"
)

// ThermostatHandler handles Netatmo home and schedule requests
type ThermostatHandler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

// NewThermostatHandler creates a new thermostat handler
func NewThermostatHandler(dispatcher Dispatcher, logger *slog.Logger) *ThermostatHandler {
	return &ThermostatHandler{
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ListHomes returns the account's homes topology
// GET /api/netatmo/homes
func (h *ThermostatHandler) ListHomes(c *gin.Context) {
	raw, err := h.dispatcher.ListDevices(c.Request.Context(), core.ProviderNetatmo)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}

// GetHomeStatus returns the live status of one home
// GET /api/netatmo/status/:homeId
func (h *ThermostatHandler) GetHomeStatus(c *gin.Context) {
	result, err := h.dispatcher.GetStatus(c.Request.Context(), core.ProviderNetatmo,
		gateway.Target{HomeID: c.Param("homeId")})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SetState applies a room setpoint change
// POST /api/netatmo/setstate
func (h *ThermostatHandler) SetState(c *gin.Context) {
	var req struct {
		HomeID      string   `json:"homeId"`
		RoomID      string   `json:"roomId"`
		Mode        string   `json:"mode"`
		Temperature *float64 `json:"temperature"`
		EndTime     *int64   `json:"endTime"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	raw, err := h.dispatcher.SetRoomState(c.Request.Context(), netatmo.RoomState{
		HomeID:      req.HomeID,
		RoomID:      req.RoomID,
		Mode:        req.Mode,
		Temperature: req.Temperature,
		EndTime:     req.EndTime,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}

// BoostHeating advances the room's boost cycle by one step
// POST /api/netatmo/boostheating
func (h *ThermostatHandler) BoostHeating(c *gin.Context) {
	var req struct {
		HomeID      string   `json:"homeId"`
		RoomID      string   `json:"roomId"`
		Temperature *float64 `json:"temperature"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	result, err := h.dispatcher.BoostRoom(c.Request.Context(), req.HomeID, req.RoomID, req.Temperature)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// SwitchSchedule activates a configured schedule
// POST /api/netatmo/switchschedule
func (h *ThermostatHandler) SwitchSchedule(c *gin.Context) {
	var req struct {
		HomeID     string `json:"homeId"`
		ScheduleID string `json:"scheduleId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	raw, err := h.dispatcher.SwitchSchedule(c.Request.Context(), req.HomeID, req.ScheduleID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}

// SyncSchedule pushes a schedule definition to the home
// POST /api/netatmo/syncschedule
func (h *ThermostatHandler) SyncSchedule(c *gin.Context) {
	var req netatmo.SyncScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	raw, err := h.dispatcher.SyncSchedule(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}

// SetSchedule creates a new home schedule
// POST /api/netatmo/setschedule
func (h *ThermostatHandler) SetSchedule(c *gin.Context) {
	var req netatmo.CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	raw, err := h.dispatcher.CreateSchedule(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}

// SwitchHomeSchedule selects the active schedule for a home
// POST /api/netatmo/switchhomeschedule
func (h *ThermostatHandler) SwitchHomeSchedule(c *gin.Context) {
	var req struct {
		HomeID     string `json:"home_id"`
		ScheduleID string `json:"schedule_id"`
		Selected   *bool  `json:"selected"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	raw, err := h.dispatcher.SwitchHomeSchedule(c.Request.Context(), req.HomeID, req.ScheduleID, req.Selected)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Data(http.StatusOK, "application/json", raw)
}
