package models

import (
	"time"

	"gorm.io/datatypes"
)

// Assignment lifecycle statuses.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusForwarded = "forwarded"
)

// Review history actions.
const (
	ActionSubmitted   = "submitted"
	ActionApproved    = "approved"
	ActionRejected    = "rejected"
	ActionForwarded   = "forwarded"
	ActionResubmitted = "resubmitted"
)

// Assignment categories.
const (
	CategoryAssignment = "Assignment"
	CategoryThesis     = "Thesis"
	CategoryReport     = "Report"
)

// Assignment represents a student-owned document moving through the review
// workflow. Status is a denormalized projection of the latest history entry;
// the two are only ever written together inside one transaction.
type Assignment struct {
	ID                uint          `gorm:"primaryKey" json:"id"`
	Title             string        `gorm:"size:255;not null" json:"title"`
	Description       string        `gorm:"type:text" json:"description"`
	Category          string        `gorm:"size:32;not null" json:"category"`
	FileURL           string        `gorm:"size:512" json:"file_url"`
	Status            string        `gorm:"size:32;not null;index;default:draft" json:"status"`
	ApprovalRemark    string        `gorm:"type:text" json:"approval_remark"`
	RejectionRemark   string        `gorm:"type:text" json:"rejection_remark"`
	ReviewerSignature string        `gorm:"size:255" json:"reviewer_signature"`
	SignatureImageURL string        `gorm:"size:512" json:"signature_image_url"`
	StudentID         uint          `gorm:"not null;index" json:"student_id"`
	ReviewerID        uint          `gorm:"index" json:"reviewer_id"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
	Student           User          `gorm:"foreignKey:StudentID" json:"student"`
	Reviewer          User          `gorm:"foreignKey:ReviewerID" json:"reviewer"`
	History           []ReviewEvent `gorm:"foreignKey:AssignmentID" json:"history"`
}

// ReviewEvent is one immutable audit record in an assignment's history.
// Rows are only ever inserted; the primary key is the authoritative order,
// timestamps may collide.
type ReviewEvent struct {
	ID                uint              `gorm:"primaryKey" json:"id"`
	AssignmentID      uint              `gorm:"not null;index" json:"assignment_id"`
	Action            string            `gorm:"size:32;not null" json:"action"`
	Remark            string            `gorm:"type:text" json:"remark"`
	Signature         string            `gorm:"size:255" json:"signature"`
	SignatureImageURL string            `gorm:"size:512" json:"signature_image_url"`
	ReviewerID        uint              `gorm:"index" json:"reviewer_id"`
	Details           datatypes.JSONMap `gorm:"type:json" json:"details"`
	CreatedAt         time.Time         `json:"created_at"`
	Reviewer          User              `gorm:"foreignKey:ReviewerID" json:"reviewer"`
}

// LastEvent returns the most recent history entry, relying on insertion order.
func (a Assignment) LastEvent() (ReviewEvent, bool) {
	if len(a.History) == 0 {
		return ReviewEvent{}, false
	}
	return a.History[len(a.History)-1], true
}

// StatusForAction maps a history action to the assignment status it implies.
func StatusForAction(action string) string {
	switch action {
	case ActionSubmitted, ActionResubmitted:
		return StatusSubmitted
	case ActionApproved:
		return StatusApproved
	case ActionRejected:
		return StatusRejected
	case ActionForwarded:
		return StatusForwarded
	default:
		return ""
	}
}
