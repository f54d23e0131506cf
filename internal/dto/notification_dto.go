package dto

import (
	"time"

	"github.com/unicore-dev/unicore-api/internal/models"
)

// NotificationResponse serializes a notification record.
type NotificationResponse struct {
	ID           uint      `json:"id"`
	UserID       uint      `json:"user_id"`
	AssignmentID *uint     `json:"assignment_id,omitempty"`
	SenderID     uint      `json:"sender_id,omitempty"`
	Type         string    `json:"type"`
	Message      string    `json:"message"`
	Read         bool      `json:"read"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewNotificationResponse converts a notification model into a DTO.
func NewNotificationResponse(model models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:           model.ID,
		UserID:       model.UserID,
		AssignmentID: model.AssignmentID,
		SenderID:     model.SenderID,
		Type:         model.Type,
		Message:      model.Message,
		Read:         model.Read,
		CreatedAt:    model.CreatedAt,
	}
}

// NewNotificationResponseSlice converts notification models into DTOs.
func NewNotificationResponseSlice(items []models.Notification) []NotificationResponse {
	responses := make([]NotificationResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, NewNotificationResponse(item))
	}
	return responses
}
