package handlers

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/campaignkit/dispatch-service/internal/domain"
	"github.com/campaignkit/dispatch-service/internal/service"
	"github.com/campaignkit/dispatch-service/pkg/response"
	"github.com/campaignkit/dispatch-service/pkg/validator"
)

type CampaignHandler struct {
	service *service.CampaignService
}

func NewCampaignHandler(service *service.CampaignService) *CampaignHandler {
	return &CampaignHandler{service: service}
}

// CreateCampaign godoc
// @Summary Create a campaign
// @Description Creates a draft campaign with one pending message per recipient
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for campaigns"
// @Param campaign body domain.CreateCampaignRequest true "Campaign to create"
// @Success 201 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c echo.Context) error {
	var req domain.CreateCampaignRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	campaign, err := h.service.CreateCampaign(c.Request().Context(), &req)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Created(c, "Campaign created successfully", campaign)
}

// ListCampaigns godoc
// @Summary List campaigns
// @Description Retrieves a paginated list of campaigns, newest first
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for campaigns"
// @Param page query int false "Page number (default: 1)"
// @Param pageSize query int false "Page size (default: 20, max: 100)"
// @Success 200 {object} response.PaginatedResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c echo.Context) error {
	page, pageSize, err := parsePaginationParams(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	campaigns, totalCount, err := h.service.ListCampaigns(c.Request().Context(), page, pageSize)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Paginated(c, campaigns, page, pageSize, totalCount)
}

// GetCampaign godoc
// @Summary Get a campaign
// @Description Retrieves a single campaign with its outcome counters
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for campaigns"
// @Param id path int true "Campaign ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns/{id} [get]
func (h *CampaignHandler) GetCampaign(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	campaign, err := h.service.GetCampaign(c.Request().Context(), id)
	if err != nil {
		return response.InternalServerError(c, err)
	}
	if campaign == nil {
		return response.NotFound(c, fmt.Sprintf("campaign %d not found", id))
	}

	return response.Ok(c, campaign)
}

// GetCampaignMessages godoc
// @Summary Get campaign messages
// @Description Retrieves the per-recipient message rows of a campaign
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for campaigns"
// @Param id path int true "Campaign ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns/{id}/messages [get]
func (h *CampaignHandler) GetCampaignMessages(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	messages, err := h.service.GetCampaignMessages(c.Request().Context(), id)
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, messages)
}

// DispatchCampaign godoc
// @Summary Dispatch a campaign
// @Description Sends every pending message of the campaign through the bulk dispatcher
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for campaigns"
// @Param id path int true "Campaign ID"
// @Param request body domain.DispatchCampaignRequest false "Dispatch parameters (optional)"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 422 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns/{id}/dispatch [post]
func (h *CampaignHandler) DispatchCampaign(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	var req domain.DispatchCampaignRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	result, err := h.service.DispatchCampaign(c.Request().Context(), id, &req)
	if err != nil {
		return response.BadRequest(c, err)
	}

	return response.OkWithMessage(c, result.Message, result)
}

// GetCampaignReport godoc
// @Summary Get a campaign delivery report
// @Description Correlates provider events into per-recipient, per-batch and summary views
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for campaigns"
// @Param id path int true "Campaign ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns/{id}/report [get]
func (h *CampaignHandler) GetCampaignReport(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	report, err := h.service.GetReport(c.Request().Context(), id)
	if err != nil {
		return response.BadRequest(c, err)
	}

	return response.Ok(c, report)
}

// ReplayFailedMessages godoc
// @Summary Replay failed campaign messages
// @Description Resets every failed message of the campaign to pending for the next dispatch
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for campaigns"
// @Param id path int true "Campaign ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns/{id}/replay [post]
func (h *CampaignHandler) ReplayFailedMessages(c echo.Context) error {
	id, err := parseIDParam(c)
	if err != nil {
		return response.BadRequest(c, err)
	}

	count, err := h.service.ReplayFailed(c.Request().Context(), id)
	if err != nil {
		return response.BadRequest(c, err)
	}

	return response.Ok(c, map[string]any{
		"replayed": count,
	})
}

// ReplayFailedMessage godoc
// @Summary Replay one failed message
// @Description Resets a single failed message to pending for the next dispatch
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for campaigns"
// @Param id path int true "Message ID"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/messages/{id}/replay [post]
func (h *CampaignHandler) ReplayFailedMessage(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return response.BadRequestWithMessage(c, "invalid message id")
	}

	if err := h.service.ReplayFailedMessage(c.Request().Context(), id); err != nil {
		return response.BadRequest(c, err)
	}

	return response.OkWithMessage(c, "Message reset to pending", map[string]any{"id": id})
}

// SendMessage godoc
// @Summary Send a single message
// @Description Sends one message outside any campaign
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for campaigns"
// @Param message body domain.SendMessageRequest true "Message to send"
// @Success 200 {object} response.SuccessResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/send [post]
func (h *CampaignHandler) SendMessage(c echo.Context) error {
	var req domain.SendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return validator.HandleValidationError(c, err)
	}

	result, err := h.service.SendSingle(c.Request().Context(), &req)
	if err != nil {
		return response.BadRequest(c, err)
	}

	return response.OkWithMessage(c, result.Message, result)
}

// GetRecentMessages godoc
// @Summary List recently sent messages
// @Description Lists recently sent messages, served from cache when available
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for campaigns"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/messages/recent [get]
func (h *CampaignHandler) GetRecentMessages(c echo.Context) error {
	activity, err := h.service.GetRecentActivity(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	return response.Ok(c, activity)
}

// GetStats godoc
// @Summary Get message statistics
// @Description Returns counts of campaign messages by status across all campaigns
// @Tags campaigns
// @Accept json
// @Produce json
// @Param x-api-key header string true "API key for campaigns"
// @Success 200 {object} response.SuccessResponse
// @Failure 500 {object} response.ErrorResponse
// @Router /api/v1/campaigns/stats [get]
func (h *CampaignHandler) GetStats(c echo.Context) error {
	stats, err := h.service.GetStats(c.Request().Context())
	if err != nil {
		return response.InternalServerError(c, err)
	}

	total := int64(0)
	for _, v := range stats {
		total += v
	}

	return response.Ok(c, map[string]any{
		"pending": stats["pending"],
		"sent":    stats["sent"],
		"failed":  stats["failed"],
		"invalid": stats["invalid"],
		"total":   total,
	})
}

func parseIDParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid campaign id")
	}
	return id, nil
}

func parsePaginationParams(c echo.Context) (int, int, error) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)

	pageStr := c.QueryParam("page")
	pageSizeStr := c.QueryParam("pageSize")

	// Page
	page := defaultPage
	if pageStr != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, fmt.Errorf("page must be a positive integer")
		}
		page = p
	}

	// Page size
	pageSize := defaultPageSize
	if pageSizeStr != "" {
		ps, err := strconv.Atoi(pageSizeStr)
		if err != nil || ps <= 0 || ps > maxPageSize {
			return 0, 0, fmt.Errorf("pageSize must be between 1 and %d", maxPageSize)
		}

		pageSize = ps
	}

	return page, pageSize, nil
}
