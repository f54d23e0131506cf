package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/unicore-dev/unicore-api/internal/dto"
	"github.com/unicore-dev/unicore-api/internal/models"
	"github.com/unicore-dev/unicore-api/internal/repository"
)

const dashboardPageSize = 10

// DefaultDashboardCacheTTL keeps dashboard reads cheap without letting the
// counts go meaningfully stale.
const DefaultDashboardCacheTTL = 30 * time.Second

// DashboardService assembles the role-specific landing view: status counts,
// a filtered page of assignments, and the unread notification badge.
type DashboardService interface {
	Dashboard(ctx context.Context, userID uint, role string, query dto.DashboardQuery) (dto.DashboardResponse, error)
}

type dashboardService struct {
	assignments repository.AssignmentRepository
	notifier    NotificationService
	cache       *redis.Client
	cacheTTL    time.Duration
	validate    *validator.Validate
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewDashboardService constructs the dashboard query service. The redis
// client is optional; without it every request hits the database.
func NewDashboardService(
	assignments repository.AssignmentRepository,
	notifier NotificationService,
	cache *redis.Client,
	cacheTTL time.Duration,
	validate *validator.Validate,
	logger zerolog.Logger,
) DashboardService {
	if cacheTTL <= 0 {
		cacheTTL = DefaultDashboardCacheTTL
	}
	return &dashboardService{
		assignments: assignments,
		notifier:    notifier,
		cache:       cache,
		cacheTTL:    cacheTTL,
		validate:    validate,
		logger:      logger.With().Str("component", "dashboard_service").Logger(),
		tracer:      otel.Tracer("github.com/unicore-dev/unicore-api/internal/service/dashboard"),
	}
}

func (s *dashboardService) Dashboard(ctx context.Context, userID uint, role string, query dto.DashboardQuery) (dto.DashboardResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "dashboard.load", trace.WithAttributes(
		attribute.Int("user.id", int(userID)),
		attribute.String("user.role", role),
	))
	defer span.End()

	if err := s.validate.Struct(query); err != nil {
		return dto.DashboardResponse{}, fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}

	if query.Page < 1 {
		query.Page = 1
	}
	query.Search = strings.TrimSpace(query.Search)

	cacheKey := s.cacheKey(userID, role, query)
	if cached, ok := s.fromCache(spanCtx, cacheKey); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached, nil
	}

	var (
		response dto.DashboardResponse
		err      error
	)
	switch role {
	case models.RoleStudent:
		response, err = s.studentDashboard(spanCtx, userID, query)
	case models.RoleProfessor:
		response, err = s.professorDashboard(spanCtx, userID, query)
	case models.RoleHOD:
		response, err = s.hodDashboard(spanCtx, userID, query)
	default:
		return dto.DashboardResponse{}, fmt.Errorf("%w: no dashboard for role %q", ErrForbidden, role)
	}
	if err != nil {
		span.RecordError(err)
		return dto.DashboardResponse{}, err
	}

	response.UnreadNotifications, err = s.notifier.UnreadCount(spanCtx, userID)
	if err != nil {
		// The badge is decoration, never worth failing the dashboard over.
		s.logger.Warn().Err(err).Uint("user_id", userID).Msg("unread notification count failed")
		response.UnreadNotifications = 0
	}

	s.toCache(spanCtx, cacheKey, response)
	return response, nil
}

// studentDashboard lists the student's own work with per-status counts,
// drafts included, newest first by default.
func (s *dashboardService) studentDashboard(ctx context.Context, userID uint, query dto.DashboardQuery) (dto.DashboardResponse, error) {
	counts, err := s.assignments.CountByStatus(ctx, repository.AssignmentFilter{StudentID: &userID})
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	filter := repository.AssignmentFilter{
		StudentID: &userID,
		Search:    query.Search,
		Sort:      sortOrDefault(query.Sort, repository.SortNewest),
		Page:      query.Page,
		PageSize:  dashboardPageSize,
	}
	if query.Status != "" && query.Status != "all" {
		filter.Statuses = []string{query.Status}
	}

	items, total, err := s.assignments.List(ctx, filter)
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	return dto.DashboardResponse{
		Role: models.RoleStudent,
		Counts: map[string]int64{
			"total":     sumCounts(counts),
			"draft":     counts[models.StatusDraft],
			"submitted": counts[models.StatusSubmitted],
			"approved":  counts[models.StatusApproved],
			"rejected":  counts[models.StatusRejected],
			"forwarded": counts[models.StatusForwarded],
		},
		Items:      dto.NewAssignmentResponseSlice(items),
		Pagination: dto.NewPagination(query.Page, dashboardPageSize, total),
		Status:     query.Status,
		Search:     query.Search,
		Sort:       filter.Sort,
	}, nil
}

// professorDashboard lists assignments assigned to the professor, oldest
// first by default so the longest-waiting submission surfaces on top.
func (s *dashboardService) professorDashboard(ctx context.Context, userID uint, query dto.DashboardQuery) (dto.DashboardResponse, error) {
	counts, err := s.assignments.CountByStatus(ctx, repository.AssignmentFilter{ReviewerID: &userID, ExcludeDrafts: true})
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	filter := repository.AssignmentFilter{
		ReviewerID:    &userID,
		ExcludeDrafts: true,
		Search:        query.Search,
		Sort:          sortOrDefault(query.Sort, repository.SortOldest),
		Page:          query.Page,
		PageSize:      dashboardPageSize,
	}
	filter.Statuses = bucketStatuses(query.Status, map[string][]string{
		"pending":  {models.StatusSubmitted},
		"reviewed": {models.StatusApproved, models.StatusRejected},
	})

	items, total, err := s.assignments.List(ctx, filter)
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	return dto.DashboardResponse{
		Role: models.RoleProfessor,
		Counts: map[string]int64{
			"pending":        counts[models.StatusSubmitted],
			"approved":       counts[models.StatusApproved],
			"rejected":       counts[models.StatusRejected],
			"total_reviewed": counts[models.StatusApproved] + counts[models.StatusRejected],
		},
		Items:      dto.NewAssignmentResponseSlice(items),
		Pagination: dto.NewPagination(query.Page, dashboardPageSize, total),
		Status:     query.Status,
		Search:     query.Search,
		Sort:       filter.Sort,
	}, nil
}

// hodDashboard treats forwarded work as pending alongside direct
// submissions, newest first by default.
func (s *dashboardService) hodDashboard(ctx context.Context, userID uint, query dto.DashboardQuery) (dto.DashboardResponse, error) {
	counts, err := s.assignments.CountByStatus(ctx, repository.AssignmentFilter{ReviewerID: &userID, ExcludeDrafts: true})
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	filter := repository.AssignmentFilter{
		ReviewerID:    &userID,
		ExcludeDrafts: true,
		Search:        query.Search,
		Sort:          sortOrDefault(query.Sort, repository.SortNewest),
		Page:          query.Page,
		PageSize:      dashboardPageSize,
	}
	filter.Statuses = bucketStatuses(query.Status, map[string][]string{
		"pending":  {models.StatusSubmitted, models.StatusForwarded},
		"reviewed": {models.StatusApproved, models.StatusRejected},
	})

	items, total, err := s.assignments.List(ctx, filter)
	if err != nil {
		return dto.DashboardResponse{}, err
	}

	return dto.DashboardResponse{
		Role: models.RoleHOD,
		Counts: map[string]int64{
			"pending":  counts[models.StatusSubmitted] + counts[models.StatusForwarded],
			"approved": counts[models.StatusApproved],
			"rejected": counts[models.StatusRejected],
			"reviewed": counts[models.StatusApproved] + counts[models.StatusRejected],
		},
		Items:      dto.NewAssignmentResponseSlice(items),
		Pagination: dto.NewPagination(query.Page, dashboardPageSize, total),
		Status:     query.Status,
		Search:     query.Search,
		Sort:       filter.Sort,
	}, nil
}

// bucketStatuses maps a named dashboard bucket onto raw statuses; unknown
// values pass through as a single raw status filter.
func bucketStatuses(status string, buckets map[string][]string) []string {
	if status == "" || status == "all" {
		return nil
	}
	if statuses, ok := buckets[status]; ok {
		return statuses
	}
	return []string{status}
}

func sortOrDefault(sort, fallback string) string {
	if sort == "" {
		return fallback
	}
	return sort
}

func sumCounts(counts map[string]int64) int64 {
	var total int64
	for _, count := range counts {
		total += count
	}
	return total
}

func (s *dashboardService) cacheKey(userID uint, role string, query dto.DashboardQuery) string {
	return fmt.Sprintf("dashboard:%s:%d:%s:%s:%s:%d", role, userID, query.Status, query.Search, query.Sort, query.Page)
}

func (s *dashboardService) fromCache(ctx context.Context, key string) (dto.DashboardResponse, bool) {
	if s.cache == nil {
		return dto.DashboardResponse{}, false
	}

	payload, err := s.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("dashboard cache read failed")
		}
		return dto.DashboardResponse{}, false
	}

	var response dto.DashboardResponse
	if err := json.Unmarshal(payload, &response); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dashboard cache entry corrupt")
		return dto.DashboardResponse{}, false
	}
	return response, true
}

func (s *dashboardService) toCache(ctx context.Context, key string, response dto.DashboardResponse) {
	if s.cache == nil {
		return
	}

	payload, err := json.Marshal(response)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.cacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dashboard cache write failed")
	}
}
