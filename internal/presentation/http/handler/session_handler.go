package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/tillworks/fiscal-pos-api/internal/application/service"
	"github.com/tillworks/fiscal-pos-api/internal/presentation/http/dto/request"
	"github.com/tillworks/fiscal-pos-api/internal/presentation/http/dto/response"
)

// SessionHandler handles cash session HTTP requests.
type SessionHandler struct {
	sessionService *service.SessionService
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// Open opens a cash session on a till.
func (h *SessionHandler) Open(c *gin.Context) {
	var req request.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	if req.OpeningFloat.IsNegative() {
		response.BadRequest(c, "Opening float cannot be negative")
		return
	}

	session, err := h.sessionService.Open(c.Request.Context(), req.TillID, req.OperatorID, req.OpeningFloat)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, "Cash session opened", session)
}

// Close closes the open cash session on a till and reports the discrepancy.
func (h *SessionHandler) Close(c *gin.Context) {
	tillID := c.Param("till_id")

	var req request.CloseSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	session, err := h.sessionService.Close(c.Request.Context(), tillID, req.DeclaredBalance)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, "Cash session closed", session)
}

// Current returns the open cash session on a till.
func (h *SessionHandler) Current(c *gin.Context) {
	tillID := c.Param("till_id")

	session, err := h.sessionService.Current(c.Request.Context(), tillID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if session == nil {
		response.NotFound(c, "No open session on till")
		return
	}

	response.OK(c, "Cash session retrieved", session)
}
