package handlers

import (
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/campaignkit/dispatch-service/internal/domain"
	"github.com/campaignkit/dispatch-service/pkg/response"
	"github.com/campaignkit/dispatch-service/pkg/smsgate"
	"github.com/campaignkit/dispatch-service/pkg/validator"
)

type SMSHandler struct {
	gateway *smsgate.Client
}

func NewSMSHandler(gateway *smsgate.Client) *SMSHandler {
	return &SMSHandler{gateway: gateway}
}

// SendBulkSMS godoc
// @Summary Send bulk SMS
// @Description Submits each SMS individually through the gateway with per-item failure isolation
// @Tags sms
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for campaigns"
// @Param request body domain.SendSMSRequest true "Messages to send"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Router /api/v1/sms/send [post]
func (h *SMSHandler) SendBulkSMS(c echo.Context) error {
	var req domain.SendSMSRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	results, err := h.gateway.SendBulk(c.Request().Context(), req.Messages)
	if err != nil {
		return response.BadRequest(c, err)
	}

	sent := 0
	for _, r := range results {
		if r.Error == "" {
			sent++
		}
	}

	return response.OkWithMessage(c,
		fmt.Sprintf("%d/%d SMS sent successfully", sent, len(results)),
		results,
	)
}

// GetSMSStatus godoc
// @Summary Get SMS delivery status
// @Description Returns the normalized delivery state for one gateway message id
// @Tags sms
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for campaigns"
// @Param id path string true "Gateway message ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/sms/{id}/status [get]
func (h *SMSHandler) GetSMSStatus(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return response.BadRequestWithMessage(c, "message id is required")
	}

	status, err := h.gateway.GetState(c.Request().Context(), id)
	if err != nil {
		return response.BadRequest(c, err)
	}

	return response.Ok(c, status)
}
