package repository

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/unicore-dev/unicore-api/internal/models"
)

// Sort keys accepted by assignment listings.
const (
	SortNewest = "newest"
	SortOldest = "oldest"
	SortTitle  = "title"
)

// AssignmentFilter narrows assignment listings. Search matches the assignment
// title and the owning student's name, case-insensitively.
type AssignmentFilter struct {
	StudentID     *uint
	ReviewerID    *uint
	Statuses      []string
	ExcludeDrafts bool
	Search        string
	Sort          string
	Page          int
	PageSize      int
}

// AssignmentRepository persists assignments and their append-only history.
type AssignmentRepository interface {
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	CreateBatch(ctx context.Context, assignments []*models.Assignment) error
	List(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error)
	CountByStatus(ctx context.Context, filter AssignmentFilter) (map[string]int64, error)
	// ApplyTransition writes the history events and the updated assignment
	// fields in one transaction so status can never diverge from the log.
	ApplyTransition(ctx context.Context, assignment *models.Assignment, events ...*models.ReviewEvent) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates the repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

func (r *assignmentRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Assignment{}).
		Preload("Student").
		Preload("Reviewer").
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("review_events.id ASC")
		}).
		Preload("History.Reviewer")
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.baseQuery(ctx).First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *assignmentRepository) CreateBatch(ctx context.Context, assignments []*models.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&assignments).Error
}

func (r *assignmentRepository) applyFilter(query *gorm.DB, filter AssignmentFilter) *gorm.DB {
	if filter.StudentID != nil {
		query = query.Where("assignments.student_id = ?", *filter.StudentID)
	}
	if filter.ReviewerID != nil {
		query = query.Where("assignments.reviewer_id = ?", *filter.ReviewerID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("assignments.status IN ?", filter.Statuses)
	}
	if filter.ExcludeDrafts {
		query = query.Where("assignments.status <> ?", models.StatusDraft)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.
			Joins("JOIN users AS owners ON owners.id = assignments.student_id").
			Where("LOWER(assignments.title) LIKE ? OR LOWER(owners.name) LIKE ?", pattern, pattern)
	}
	return query
}

func (r *assignmentRepository) List(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error) {
	query := r.applyFilter(r.baseQuery(ctx), filter)

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	switch filter.Sort {
	case SortOldest:
		query = query.Order("assignments.created_at ASC, assignments.id ASC")
	case SortTitle:
		query = query.Order("assignments.title ASC")
	default:
		query = query.Order("assignments.created_at DESC, assignments.id DESC")
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var assignments []models.Assignment
	if err := query.Find(&assignments).Error; err != nil {
		return nil, 0, err
	}
	return assignments, total, nil
}

func (r *assignmentRepository) CountByStatus(ctx context.Context, filter AssignmentFilter) (map[string]int64, error) {
	type row struct {
		Status string
		Total  int64
	}

	query := r.db.WithContext(ctx).Model(&models.Assignment{}).
		Select("assignments.status AS status, COUNT(*) AS total").
		Group("assignments.status")
	query = r.applyFilter(query, filter)

	var rows []row
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, item := range rows {
		counts[item.Status] = item.Total
	}
	return counts, nil
}

func (r *assignmentRepository) ApplyTransition(ctx context.Context, assignment *models.Assignment, events ...*models.ReviewEvent) error {
	if len(events) > 0 {
		last := events[len(events)-1]
		if want := models.StatusForAction(last.Action); want != assignment.Status {
			return fmt.Errorf("status %q does not follow from action %q", assignment.Status, last.Action)
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, event := range events {
			event.AssignmentID = assignment.ID
			if err := tx.Create(event).Error; err != nil {
				return err
			}
		}

		return tx.Model(&models.Assignment{}).
			Where("id = ?", assignment.ID).
			Updates(map[string]interface{}{
				"status":              assignment.Status,
				"reviewer_id":         assignment.ReviewerID,
				"description":         assignment.Description,
				"file_url":            assignment.FileURL,
				"approval_remark":     assignment.ApprovalRemark,
				"rejection_remark":    assignment.RejectionRemark,
				"reviewer_signature":  assignment.ReviewerSignature,
				"signature_image_url": assignment.SignatureImageURL,
			}).Error
	})
}
