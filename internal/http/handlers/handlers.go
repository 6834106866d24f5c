package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/agenda_os/backend/internal/conversation"
	"github.com/agenda_os/backend/internal/models"
	"github.com/agenda_os/backend/internal/service"
	"github.com/agenda_os/backend/internal/ticketing"
	"github.com/agenda_os/backend/internal/utils"
)

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type Handler struct {
	Engine       *conversation.Engine
	Availability *service.AvailabilityEngine
	Sessions     conversation.SessionStore
	Policies     models.Policies
	Checks       map[string]Check
	Validator    *validator.Validate
	Logger       zerolog.Logger
	PhoneRegion  string
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			writeError(c, http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE", name+" unavailable", err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SenderKey extracts the normalized sender of a webhook payload for rate
// limiting. The body stays readable for the handler.
func (h *Handler) SenderKey(c *gin.Context) string {
	var msg models.InboundMessage
	if err := c.ShouldBindBodyWith(&msg, binding.JSON); err != nil {
		return ""
	}
	return utils.NormalizePhone(msg.Sender, h.PhoneRegion)
}

// @Summary Handle an inbound chat message
// @Tags webhook
// @Accept json
// @Produce json
// @Param message body models.InboundMessage true "Inbound message"
// @Success 200 {object} conversation.Reply
// @Success 204 "duplicate event"
// @Router /webhook/messages [post]
func (h *Handler) Webhook(c *gin.Context) {
	var msg models.InboundMessage
	if err := c.ShouldBindBodyWith(&msg, binding.JSON); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	reply, err := h.Engine.HandleMessage(c.Request.Context(), msg)
	if err != nil {
		h.Logger.Error().Err(err).Str("sender", msg.Sender).Msg("conversation turn failed")
		writeError(c, http.StatusInternalServerError, "CONVERSATION_ERROR", "Failed to handle message", err.Error())
		return
	}
	if reply.Duplicate {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, reply)
}

// @Summary Get a conversation session
// @Tags sessions
// @Produce json
// @Param sender path string true "Sender phone"
// @Success 200 {object} models.Session
// @Router /api/sessions/{sender} [get]
func (h *Handler) SessionGet(c *gin.Context) {
	sender := utils.NormalizePhone(c.Param("sender"), h.PhoneRegion)
	s, ok, err := h.Sessions.Get(c.Request.Context(), sender)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "STORE_ERROR", "Failed to load session", err.Error())
		return
	}
	if !ok {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Session not found", nil)
		return
	}
	c.JSON(http.StatusOK, s)
}

// @Summary Reset a conversation session
// @Tags sessions
// @Param sender path string true "Sender phone"
// @Success 204
// @Router /api/sessions/{sender} [delete]
func (h *Handler) SessionDelete(c *gin.Context) {
	sender := utils.NormalizePhone(c.Param("sender"), h.PhoneRegion)
	if err := h.Sessions.Delete(c.Request.Context(), sender); err != nil {
		writeError(c, http.StatusInternalServerError, "STORE_ERROR", "Failed to delete session", err.Error())
		return
	}
	h.Logger.Info().Str("sender", sender).Msg("session reset")
	c.Status(http.StatusNoContent)
}

type CheckSlotRequest struct {
	OrderID      string `json:"order_id" validate:"required"`
	Date         string `json:"date" validate:"required"`
	Period       string `json:"period" validate:"required,oneof=M T"`
	TechnicianID string `json:"technician_id"`
}

type SlotResponse struct {
	OrderID      string `json:"order_id"`
	Date         string `json:"date"`
	Period       string `json:"period"`
	TechnicianID string `json:"technician_id"`
	Deadline     string `json:"sla_deadline"`
}

func (h *Handler) slotResponse(order models.ServiceOrder, slot models.Slot) SlotResponse {
	return SlotResponse{
		OrderID:      order.ID,
		Date:         service.FormatDate(slot.Date),
		Period:       string(slot.Period),
		TechnicianID: slot.TechnicianID,
		Deadline:     service.FormatDate(h.Availability.Deadline(order)),
	}
}

// @Summary Validate a slot for an order
// @Tags slots
// @Accept json
// @Produce json
// @Param request body CheckSlotRequest true "Slot"
// @Success 200 {object} SlotResponse
// @Failure 422 {object} map[string]any
// @Router /api/slots/check [post]
func (h *Handler) CheckSlot(c *gin.Context) {
	var req CheckSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid payload", err.Error())
		return
	}
	if err := h.Validator.Struct(req); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed", err.Error())
		return
	}
	date, err := service.ParseDate(req.Date, h.Availability.Location)
	if err != nil {
		writeSchedulingError(c, err)
		return
	}
	order, err := h.Availability.Order(c.Request.Context(), req.OrderID)
	if err != nil {
		writeSchedulingError(c, err)
		return
	}
	slot, err := h.Availability.CheckSlot(c.Request.Context(), order, date, models.Period(req.Period), req.TechnicianID)
	if err != nil {
		writeSchedulingError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.slotResponse(order, slot))
}

// @Summary First valid slot for an order
// @Tags slots
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} SlotResponse
// @Failure 422 {object} map[string]any
// @Router /api/orders/{id}/suggestion [get]
func (h *Handler) Suggestion(c *gin.Context) {
	order, err := h.Availability.Order(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeSchedulingError(c, err)
		return
	}
	slot, err := h.Availability.SuggestSlot(c.Request.Context(), order, nil)
	if err != nil {
		writeSchedulingError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.slotResponse(order, slot))
}

// @Summary Loaded scheduling policies
// @Tags policies
// @Produce json
// @Success 200 {object} models.Policies
// @Router /api/policies [get]
func (h *Handler) PoliciesGet(c *gin.Context) {
	c.JSON(http.StatusOK, h.Policies)
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// writeSchedulingError maps scheduling kinds onto HTTP statuses. Rejected
// slots are 422 with the kind as code; backend failures are 503.
func writeSchedulingError(c *gin.Context, err error) {
	if errors.Is(err, ticketing.ErrNotFound) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "Order not found", nil)
		return
	}
	kind := service.KindOf(err)
	switch {
	case kind == "":
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error", err.Error())
	case kind.Retryable():
		writeError(c, http.StatusServiceUnavailable, string(kind), "Ticketing backend unavailable", err.Error())
	default:
		var details any
		if d, ok := service.DeadlineOf(err); ok {
			details = gin.H{"sla_deadline": service.FormatDate(d)}
		}
		writeError(c, http.StatusUnprocessableEntity, string(kind), err.Error(), details)
	}
}
