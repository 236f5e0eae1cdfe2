package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tillworks/fiscal-pos-api/internal/application/service"
	"github.com/tillworks/fiscal-pos-api/internal/presentation/http/dto/response"
)

// DeviceHandler handles fiscal printer device HTTP requests.
type DeviceHandler struct {
	deviceService *service.DeviceService
}

// NewDeviceHandler creates a new device handler.
func NewDeviceHandler(deviceService *service.DeviceService) *DeviceHandler {
	return &DeviceHandler{deviceService: deviceService}
}

// Status returns the printer session state and queue depth.
func (h *DeviceHandler) Status(c *gin.Context) {
	status := h.deviceService.Status()
	response.OK(c, "Device status retrieved", status)
}

// ClearFault clears a fiscal fault after operator intervention.
func (h *DeviceHandler) ClearFault(c *gin.Context) {
	status := h.deviceService.ClearFault()
	response.OK(c, "Device fault cleared", status)
}

// GetJob returns a print job by ID.
func (h *DeviceHandler) GetJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid job ID format")
		return
	}

	job, err := h.deviceService.GetJob(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Print job retrieved", job)
}

// RetryJob re-queues a dead-lettered print job.
func (h *DeviceHandler) RetryJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid job ID format")
		return
	}

	job, err := h.deviceService.RetryJob(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Print job requeued", job)
}

// VoidJob abandons a dead-lettered print job.
func (h *DeviceHandler) VoidJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "Invalid job ID format")
		return
	}

	job, err := h.deviceService.VoidJob(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Print job voided", job)
}
