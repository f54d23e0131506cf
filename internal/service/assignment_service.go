package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/unicore-dev/unicore-api/internal/dto"
	"github.com/unicore-dev/unicore-api/internal/models"
	"github.com/unicore-dev/unicore-api/internal/repository"
)

const myAssignmentsPageSize = 15

// AssignmentService handles draft intake and read access to assignments.
type AssignmentService interface {
	CreateDraft(ctx context.Context, studentID uint, req dto.AssignmentCreateRequest, file *multipart.FileHeader) (dto.AssignmentResponse, error)
	BulkCreateDrafts(ctx context.Context, studentID uint, req dto.AssignmentBulkCreateRequest, files []*multipart.FileHeader) ([]dto.AssignmentResponse, error)
	Get(ctx context.Context, assignmentID, actorID uint) (dto.AssignmentResponse, error)
	ListMine(ctx context.Context, studentID uint, req dto.AssignmentListRequest) (dto.AssignmentListResponse, error)
}

type assignmentService struct {
	assignments repository.AssignmentRepository
	uploader    FileUploader
	validate    *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewAssignmentService constructs the assignment intake service.
func NewAssignmentService(
	assignments repository.AssignmentRepository,
	uploader FileUploader,
	validate *validator.Validate,
	logger zerolog.Logger,
) AssignmentService {
	return &assignmentService{
		assignments: assignments,
		uploader:    uploader,
		validate:    validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "assignment_service").Logger(),
		tracer:      otel.Tracer("github.com/unicore-dev/unicore-api/internal/service/assignment"),
	}
}

func (s *assignmentService) CreateDraft(ctx context.Context, studentID uint, req dto.AssignmentCreateRequest, file *multipart.FileHeader) (dto.AssignmentResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "assignments.create_draft", trace.WithAttributes(
		attribute.Int("student.id", int(studentID)),
	))
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if file == nil {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: a file is required", ErrValidation)
	}
	if err := validateFileType(file, documentMIMETypes); err != nil {
		return dto.AssignmentResponse{}, err
	}

	url, err := uploadFile(spanCtx, s.uploader, file)
	if err != nil {
		span.RecordError(err)
		return dto.AssignmentResponse{}, err
	}

	assignment := models.Assignment{
		Title:       strings.TrimSpace(s.sanitizer.Sanitize(req.Title)),
		Description: strings.TrimSpace(s.sanitizer.Sanitize(req.Description)),
		Category:    req.Category,
		FileURL:     url,
		Status:      models.StatusDraft,
		StudentID:   studentID,
	}

	if err := s.assignments.Create(spanCtx, &assignment); err != nil {
		span.RecordError(err)
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().
		Uint("assignment_id", assignment.ID).
		Uint("student_id", studentID).
		Msg("draft assignment created")

	return s.reload(spanCtx, assignment.ID)
}

func (s *assignmentService) BulkCreateDrafts(ctx context.Context, studentID uint, req dto.AssignmentBulkCreateRequest, files []*multipart.FileHeader) ([]dto.AssignmentResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "assignments.bulk_create_drafts", trace.WithAttributes(
		attribute.Int("student.id", int(studentID)),
		attribute.Int("file.count", len(files)),
	))
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: at least one file is required", ErrValidation)
	}

	// Validate every file before uploading any, so a bad file in the
	// middle of the batch does not leave orphaned uploads behind.
	for _, file := range files {
		if err := validateFileType(file, documentMIMETypes); err != nil {
			return nil, err
		}
	}

	description := strings.TrimSpace(s.sanitizer.Sanitize(req.Description))
	drafts := make([]*models.Assignment, 0, len(files))
	for _, file := range files {
		url, err := uploadFile(spanCtx, s.uploader, file)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}

		title := strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
		if title == "" {
			title = file.Filename
		}

		drafts = append(drafts, &models.Assignment{
			Title:       title,
			Description: description,
			Category:    req.Category,
			FileURL:     url,
			Status:      models.StatusDraft,
			StudentID:   studentID,
		})
	}

	if err := s.assignments.CreateBatch(spanCtx, drafts); err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info().
		Uint("student_id", studentID).
		Int("count", len(drafts)).
		Msg("bulk draft assignments created")

	responses := make([]dto.AssignmentResponse, 0, len(drafts))
	for _, draft := range drafts {
		response, err := s.reload(spanCtx, draft.ID)
		if err != nil {
			return nil, err
		}
		responses = append(responses, response)
	}
	return responses, nil
}

func (s *assignmentService) Get(ctx context.Context, assignmentID, actorID uint) (dto.AssignmentResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "assignments.get", trace.WithAttributes(
		attribute.Int("assignment.id", int(assignmentID)),
	))
	defer span.End()

	assignment, err := s.assignments.GetByID(spanCtx, assignmentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.AssignmentResponse{}, ErrAssignmentNotFound
		}
		span.RecordError(err)
		return dto.AssignmentResponse{}, err
	}

	if !canView(assignment, actorID) {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: no access to this assignment", ErrForbidden)
	}

	return dto.NewAssignmentResponse(assignment), nil
}

// canView grants access to the owner, the current reviewer, and anyone who
// reviewed the assignment at some point in its history.
func canView(assignment models.Assignment, actorID uint) bool {
	if assignment.StudentID == actorID || assignment.ReviewerID == actorID {
		return true
	}
	for _, event := range assignment.History {
		if event.ReviewerID == actorID {
			return true
		}
	}
	return false
}

func (s *assignmentService) ListMine(ctx context.Context, studentID uint, req dto.AssignmentListRequest) (dto.AssignmentListResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "assignments.list_mine", trace.WithAttributes(
		attribute.Int("student.id", int(studentID)),
	))
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return dto.AssignmentListResponse{}, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	page := req.Page
	if page < 1 {
		page = 1
	}

	filter := repository.AssignmentFilter{
		StudentID: &studentID,
		Search:    strings.TrimSpace(req.Search),
		Sort:      req.Sort,
		Page:      page,
		PageSize:  myAssignmentsPageSize,
	}
	if req.Status != "" && req.Status != "all" {
		filter.Statuses = []string{req.Status}
	}

	items, total, err := s.assignments.List(spanCtx, filter)
	if err != nil {
		span.RecordError(err)
		return dto.AssignmentListResponse{}, err
	}

	return dto.AssignmentListResponse{
		Items:      dto.NewAssignmentResponseSlice(items),
		Pagination: dto.NewPagination(page, myAssignmentsPageSize, total),
	}, nil
}

func (s *assignmentService) reload(ctx context.Context, id uint) (dto.AssignmentResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	return dto.NewAssignmentResponse(assignment), nil
}
