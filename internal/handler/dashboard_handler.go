package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/unicore-dev/unicore-api/internal/dto"
	"github.com/unicore-dev/unicore-api/internal/service"
	"github.com/unicore-dev/unicore-api/internal/utils"
)

// DashboardHandler serves the role-specific landing view.
type DashboardHandler struct {
	dashboards service.DashboardService
	logger     zerolog.Logger
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(dashboards service.DashboardService, logger zerolog.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboards: dashboards,
		logger:     logger.With().Str("component", "dashboard_handler").Logger(),
	}
}

// Register attaches the dashboard endpoint to the router group.
func (h *DashboardHandler) Register(router fiber.Router) {
	router.Get("", h.dashboard)
}

func (h *DashboardHandler) dashboard(c *fiber.Ctx) error {
	var query dto.DashboardQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	response, err := h.dashboards.Dashboard(requestContext(c), userIDFromContext(c), userRoleFromContext(c), query)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "dashboard retrieved", response)
}
