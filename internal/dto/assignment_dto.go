package dto

import (
	"time"

	"github.com/unicore-dev/unicore-api/internal/models"
)

// AssignmentCreateRequest describes the multipart payload for a draft upload.
type AssignmentCreateRequest struct {
	Title       string `form:"title" validate:"required,min=3,max=255"`
	Description string `form:"description" validate:"omitempty,max=5000"`
	Category    string `form:"category" validate:"required,oneof=Assignment Thesis Report"`
}

// AssignmentBulkCreateRequest describes the shared fields of a bulk upload;
// each file becomes one draft titled after its filename.
type AssignmentBulkCreateRequest struct {
	Description string `form:"description" validate:"omitempty,max=5000"`
	Category    string `form:"category" validate:"required,oneof=Assignment Thesis Report"`
}

// AssignmentListRequest describes query filters for a student's own listing.
type AssignmentListRequest struct {
	Status string `query:"status" validate:"omitempty,oneof=all draft submitted approved rejected forwarded"`
	Search string `query:"search" validate:"omitempty,max=255"`
	Sort   string `query:"sort" validate:"omitempty,oneof=newest oldest title"`
	Page   int    `query:"page" validate:"omitempty,gte=1"`
}

// UserLite summarizes a user inside assignment payloads.
type UserLite struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	Department string `json:"department,omitempty"`
}

// ReviewEventResponse serializes one history entry.
type ReviewEventResponse struct {
	ID                uint      `json:"id"`
	Action            string    `json:"action"`
	Remark            string    `json:"remark"`
	Signature         string    `json:"signature"`
	SignatureImageURL string    `json:"signature_image_url"`
	Reviewer          UserLite  `json:"reviewer"`
	CreatedAt         time.Time `json:"created_at"`
}

// AssignmentResponse is returned to API clients when viewing an assignment.
type AssignmentResponse struct {
	ID                uint                  `json:"id"`
	Title             string                `json:"title"`
	Description       string                `json:"description"`
	Category          string                `json:"category"`
	FileURL           string                `json:"file_url"`
	Status            string                `json:"status"`
	ApprovalRemark    string                `json:"approval_remark,omitempty"`
	RejectionRemark   string                `json:"rejection_remark,omitempty"`
	ReviewerSignature string                `json:"reviewer_signature,omitempty"`
	SignatureImageURL string                `json:"signature_image_url,omitempty"`
	Student           UserLite              `json:"student"`
	Reviewer          UserLite              `json:"reviewer"`
	History           []ReviewEventResponse `json:"history"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}

// Pagination describes a paginated result window.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// AssignmentListResponse wraps a page of assignments.
type AssignmentListResponse struct {
	Items      []AssignmentResponse `json:"items"`
	Pagination Pagination           `json:"pagination"`
}

// NewUserLite converts a user model into its summary form.
func NewUserLite(model models.User) UserLite {
	if model.ID == 0 {
		return UserLite{}
	}
	return UserLite{
		ID:         model.ID,
		Name:       model.Name,
		Email:      model.Email,
		Role:       model.Role,
		Department: model.Department,
	}
}

// NewReviewEventResponse converts a history entry into a DTO.
func NewReviewEventResponse(model models.ReviewEvent) ReviewEventResponse {
	return ReviewEventResponse{
		ID:                model.ID,
		Action:            model.Action,
		Remark:            model.Remark,
		Signature:         model.Signature,
		SignatureImageURL: model.SignatureImageURL,
		Reviewer:          NewUserLite(model.Reviewer),
		CreatedAt:         model.CreatedAt,
	}
}

// NewAssignmentResponse converts an assignment model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	response := AssignmentResponse{
		ID:                model.ID,
		Title:             model.Title,
		Description:       model.Description,
		Category:          model.Category,
		FileURL:           model.FileURL,
		Status:            model.Status,
		ApprovalRemark:    model.ApprovalRemark,
		RejectionRemark:   model.RejectionRemark,
		ReviewerSignature: model.ReviewerSignature,
		SignatureImageURL: model.SignatureImageURL,
		Student:           NewUserLite(model.Student),
		Reviewer:          NewUserLite(model.Reviewer),
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
	}

	if len(model.History) > 0 {
		history := make([]ReviewEventResponse, 0, len(model.History))
		for _, entry := range model.History {
			history = append(history, NewReviewEventResponse(entry))
		}
		response.History = history
	}

	return response
}

// NewAssignmentResponseSlice converts assignment models into DTOs.
func NewAssignmentResponseSlice(items []models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewAssignmentResponse(item))
	}
	return responses
}

// NewPagination computes the derived page count.
func NewPagination(page, pageSize int, totalItems int64) Pagination {
	if page <= 0 {
		page = 1
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((totalItems + int64(pageSize) - 1) / int64(pageSize))
	}
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}
