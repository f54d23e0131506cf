package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/unicore-dev/unicore-api/internal/dto"
	"github.com/unicore-dev/unicore-api/internal/middleware"
	"github.com/unicore-dev/unicore-api/internal/models"
	"github.com/unicore-dev/unicore-api/internal/service"
	"github.com/unicore-dev/unicore-api/internal/utils"
)

// AssignmentHandler wires assignment intake and submission HTTP routes.
type AssignmentHandler struct {
	assignments service.AssignmentService
	reviews     service.ReviewService
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(assignments service.AssignmentService, reviews service.ReviewService, validator *validator.Validate, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		assignments: assignments,
		reviews:     reviews,
		validator:   validator,
		logger:      logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// Register attaches assignment endpoints to the router group.
func (h *AssignmentHandler) Register(router fiber.Router) {
	router.Post("", middleware.RequireRole(models.RoleStudent), h.create)
	router.Post("/bulk", middleware.RequireRole(models.RoleStudent), h.bulkCreate)
	router.Get("/mine", middleware.RequireRole(models.RoleStudent), h.listMine)
	router.Get("/reviewers", h.reviewers)
	router.Get("/:id", middleware.WithAuth(h.get, middleware.AuthOptions{RequireUser: true}))
	router.Post("/:id/submit", middleware.RequireRole(models.RoleStudent), h.submit)
	router.Post("/:id/resubmit", middleware.RequireRole(models.RoleStudent), h.resubmit)
}

func (h *AssignmentHandler) create(c *fiber.Ctx) error {
	payload := dto.AssignmentCreateRequest{
		Title:       c.FormValue("title"),
		Description: c.FormValue("description"),
		Category:    c.FormValue("category"),
	}

	file, err := c.FormFile("file")
	if err != nil {
		file = nil
	}

	assignment, err := h.assignments.CreateDraft(requestContext(c), userIDFromContext(c), payload, file)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assignment created", assignment)
}

func (h *AssignmentHandler) bulkCreate(c *fiber.Ctx) error {
	payload := dto.AssignmentBulkCreateRequest{
		Description: c.FormValue("description"),
		Category:    c.FormValue("category"),
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "multipart form required")
	}

	assignments, err := h.assignments.BulkCreateDrafts(requestContext(c), userIDFromContext(c), payload, form.File["files"])
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assignments created", assignments)
}

func (h *AssignmentHandler) listMine(c *fiber.Ctx) error {
	var query dto.AssignmentListRequest
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	result, err := h.assignments.ListMine(requestContext(c), userIDFromContext(c), query)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.OK(c, result.Items, "assignments retrieved", result.Pagination)
}

func (h *AssignmentHandler) reviewers(c *fiber.Ctx) error {
	reviewers, err := h.reviews.ListReviewers(requestContext(c), userIDFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "reviewers retrieved", reviewers)
}

func (h *AssignmentHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	assignment, err := h.assignments.Get(requestContext(c), id, userIDFromContext(c))
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment retrieved", assignment)
}

func (h *AssignmentHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SubmitRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	assignment, err := h.reviews.Submit(requestContext(c), id, userIDFromContext(c), payload.ReviewerID)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment submitted", assignment)
}

func (h *AssignmentHandler) resubmit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	reviewerID, err := parseFormUint(c, "reviewer_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	payload := dto.ResubmitRequest{
		Description: c.FormValue("description"),
		ReviewerID:  reviewerID,
	}
	if err := h.validator.Struct(payload); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	file, err := c.FormFile("file")
	if err != nil {
		file = nil
	}

	assignment, err := h.reviews.Resubmit(requestContext(c), id, userIDFromContext(c), service.ResubmitInput{
		File:        file,
		Description: payload.Description,
		ReviewerID:  payload.ReviewerID,
	})
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment resubmitted", assignment)
}
