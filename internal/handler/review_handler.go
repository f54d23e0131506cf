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

// ReviewHandler wires reviewer decision routes. Professors go through the
// two-step initiate/confirm flow; HODs decide directly.
type ReviewHandler struct {
	reviews     service.ReviewService
	validator   *validator.Validate
	logger      zerolog.Logger
	confirmRate fiber.Handler
}

// NewReviewHandler constructs the handler. confirmRate guards the code
// confirmation endpoint against brute force; pass nil to disable.
func NewReviewHandler(reviews service.ReviewService, validator *validator.Validate, confirmRate fiber.Handler, logger zerolog.Logger) *ReviewHandler {
	return &ReviewHandler{
		reviews:     reviews,
		validator:   validator,
		logger:      logger.With().Str("component", "review_handler").Logger(),
		confirmRate: confirmRate,
	}
}

// Register attaches review endpoints to the router group.
func (h *ReviewHandler) Register(router fiber.Router) {
	router.Post("/:id/decision", middleware.RequireRole(models.RoleHOD), h.decide)
	router.Post("/:id/initiate", middleware.RequireRole(models.RoleProfessor), h.initiate)
	router.Post("/:id/forward", middleware.RequireRole(models.RoleProfessor), h.forward)

	confirm := []fiber.Handler{middleware.RequireRole(models.RoleProfessor)}
	if h.confirmRate != nil {
		confirm = append(confirm, h.confirmRate)
	}
	confirm = append(confirm, h.confirm)
	router.Post("/confirm", confirm...)
}

func (h *ReviewHandler) decisionInput(c *fiber.Ctx) (service.DecisionInput, error) {
	payload := dto.DecisionRequest{
		Decision:  c.FormValue("decision"),
		Remark:    c.FormValue("remark"),
		Signature: c.FormValue("signature"),
	}
	if err := h.validator.Struct(payload); err != nil {
		return service.DecisionInput{}, err
	}

	file, err := c.FormFile("signature_image")
	if err != nil {
		file = nil
	}

	return service.DecisionInput{
		Decision:       payload.Decision,
		Remark:         payload.Remark,
		Signature:      payload.Signature,
		SignatureImage: file,
	}, nil
}

func (h *ReviewHandler) decide(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	input, err := h.decisionInput(c)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	assignment, err := h.reviews.Decide(requestContext(c), id, userIDFromContext(c), input)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "decision recorded", assignment)
}

func (h *ReviewHandler) initiate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	input, err := h.decisionInput(c)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	pending, err := h.reviews.InitiateDecision(requestContext(c), id, userIDFromContext(c), input)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusAccepted, "confirmation code sent", pending)
}

func (h *ReviewHandler) confirm(c *fiber.Ctx) error {
	var payload dto.ConfirmRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	assignment, err := h.reviews.ConfirmDecision(requestContext(c), userIDFromContext(c), payload.Code)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "decision confirmed", assignment)
}

func (h *ReviewHandler) forward(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ForwardRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return sendServiceError(c, h.logger, err)
	}

	assignment, err := h.reviews.Forward(requestContext(c), id, userIDFromContext(c), payload.TargetHodID, payload.Note)
	if err != nil {
		return sendServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment forwarded", assignment)
}
