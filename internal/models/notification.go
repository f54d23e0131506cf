package models

import "time"

// Notification types emitted by the review workflow.
const (
	NotificationSubmission   = "submission"
	NotificationResubmission = "resubmission"
	NotificationApproved     = "approved"
	NotificationRejected     = "rejected"
	NotificationForwarded    = "forwarded"
	NotificationGeneral      = "general"
)

// Notification represents an in-app message targeted at a single user.
// The read flag only ever moves from false to true.
type Notification struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index:idx_notifications_user_read" json:"user_id"`
	AssignmentID *uint     `gorm:"index" json:"assignment_id"`
	SenderID     uint      `json:"sender_id"`
	Type         string    `gorm:"size:32;not null;default:general" json:"type"`
	Message      string    `gorm:"type:text;not null" json:"message"`
	Read         bool      `gorm:"not null;default:false;index:idx_notifications_user_read" json:"read"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
