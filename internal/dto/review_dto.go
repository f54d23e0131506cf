package dto

import "time"

// SubmitRequest asks to move a draft into review with the chosen professor.
type SubmitRequest struct {
	ReviewerID uint `json:"reviewer_id" form:"reviewer_id" validate:"required,gt=0"`
}

// DecisionRequest carries a reviewer's approve/reject verdict. The signature
// image, when present, arrives as a separate multipart file.
type DecisionRequest struct {
	Decision  string `json:"decision" form:"decision" validate:"required,oneof=approved rejected"`
	Remark    string `json:"remark" form:"remark" validate:"required"`
	Signature string `json:"signature" form:"signature" validate:"omitempty,max=255"`
}

// ForwardRequest escalates an approved assignment to an HOD.
type ForwardRequest struct {
	TargetHodID uint   `json:"target_hod_id" form:"target_hod_id" validate:"required,gt=0"`
	Note        string `json:"note" form:"note" validate:"required"`
}

// ResubmitRequest reopens a rejected assignment. File replacement arrives as
// a multipart file alongside these fields.
type ResubmitRequest struct {
	Description string `json:"description" form:"description" validate:"omitempty,max=5000"`
	ReviewerID  uint   `json:"reviewer_id" form:"reviewer_id" validate:"required,gt=0"`
}

// ConfirmRequest carries the one-time code for a pending decision.
type ConfirmRequest struct {
	Code string `json:"code" form:"code" validate:"required,len=6,numeric"`
}

// PendingDecisionResponse acknowledges an initiated decision without
// exposing the code.
type PendingDecisionResponse struct {
	AssignmentID uint      `json:"assignment_id"`
	Decision     string    `json:"decision"`
	ExpiresAt    time.Time `json:"expires_at"`
}
