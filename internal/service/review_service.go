package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"mime/multipart"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/unicore-dev/unicore-api/internal/dto"
	"github.com/unicore-dev/unicore-api/internal/models"
	"github.com/unicore-dev/unicore-api/internal/observability"
	"github.com/unicore-dev/unicore-api/internal/repository"
	"github.com/unicore-dev/unicore-api/pkg/mailer"
)

const (
	minRemarkLength = 10

	// DefaultConfirmationTTL bounds how long an initiated decision stays
	// confirmable.
	DefaultConfirmationTTL = 10 * time.Minute
)

// DecisionInput carries a reviewer's verdict into Decide or InitiateDecision.
type DecisionInput struct {
	Decision       string
	Remark         string
	Signature      string
	SignatureImage *multipart.FileHeader
}

// ResubmitInput carries a student's rework of a rejected assignment.
type ResubmitInput struct {
	File        *multipart.FileHeader
	Description string
	ReviewerID  uint
}

// ReviewService governs the assignment review state machine:
//
//	draft -> submitted -> {approved, rejected}
//	approved -> forwarded -> {approved, rejected}
//	rejected -> submitted (resubmission)
//
// Professor decisions go through InitiateDecision/ConfirmDecision; HOD
// decisions call Decide directly.
type ReviewService interface {
	Submit(ctx context.Context, assignmentID, actorID, reviewerID uint) (dto.AssignmentResponse, error)
	Decide(ctx context.Context, assignmentID, actorID uint, input DecisionInput) (dto.AssignmentResponse, error)
	Forward(ctx context.Context, assignmentID, actorID, targetHodID uint, note string) (dto.AssignmentResponse, error)
	Resubmit(ctx context.Context, assignmentID, actorID uint, input ResubmitInput) (dto.AssignmentResponse, error)
	InitiateDecision(ctx context.Context, assignmentID, actorID uint, input DecisionInput) (dto.PendingDecisionResponse, error)
	ConfirmDecision(ctx context.Context, actorID uint, code string) (dto.AssignmentResponse, error)
	ListReviewers(ctx context.Context, actorID uint) ([]dto.UserLite, error)
}

type reviewService struct {
	assignments repository.AssignmentRepository
	users       repository.UserRepository
	tokens      repository.ReviewTokenRepository
	notifier    NotificationService
	mail        mailer.Mailer
	uploader    FileUploader
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
	otpTTL      time.Duration
	now         func() time.Time
	newCode     func() string
}

// NewReviewService constructs the review state machine service.
func NewReviewService(
	assignments repository.AssignmentRepository,
	users repository.UserRepository,
	tokens repository.ReviewTokenRepository,
	notifier NotificationService,
	mail mailer.Mailer,
	uploader FileUploader,
	otpTTL time.Duration,
	logger zerolog.Logger,
) ReviewService {
	if otpTTL <= 0 {
		otpTTL = DefaultConfirmationTTL
	}

	return &reviewService{
		assignments: assignments,
		users:       users,
		tokens:      tokens,
		notifier:    notifier,
		mail:        mail,
		uploader:    uploader,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "review_service").Logger(),
		tracer:      otel.Tracer("github.com/unicore-dev/unicore-api/internal/service/review"),
		otpTTL:      otpTTL,
		now:         time.Now,
		newCode:     randomCode,
	}
}

// randomCode draws a 6-digit confirmation code uniformly from
// [100000, 999999].
func randomCode() string {
	return strconv.Itoa(rand.IntN(900000) + 100000)
}

func (s *reviewService) Submit(ctx context.Context, assignmentID, actorID, reviewerID uint) (dto.AssignmentResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "review.submit", trace.WithAttributes(
		attribute.Int("assignment.id", int(assignmentID)),
	))
	defer span.End()

	assignment, err := s.getAssignment(spanCtx, assignmentID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	if assignment.StudentID != actorID {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: only the owner may submit", ErrForbidden)
	}
	if assignment.Status != models.StatusDraft {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: assignment already submitted or processed", ErrInvalidState)
	}

	reviewer, err := s.getUser(spanCtx, reviewerID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	if reviewer.Role != models.RoleProfessor {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: reviewer must be a professor", ErrValidation)
	}
	if reviewer.Department != assignment.Student.Department {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: reviewer must belong to the student's department", ErrValidation)
	}

	assignment.Status = models.StatusSubmitted
	assignment.ReviewerID = reviewerID

	event := &models.ReviewEvent{
		Action:     models.ActionSubmitted,
		ReviewerID: reviewerID,
	}

	if err := s.applyTransition(spanCtx, span, &assignment, event); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.notifier.Notify(spanCtx, NotificationInput{
		UserID:       reviewerID,
		AssignmentID: &assignment.ID,
		SenderID:     actorID,
		Type:         models.NotificationSubmission,
		Message:      fmt.Sprintf("New assignment submitted: %q by %s", assignment.Title, assignment.Student.Name),
	})

	return s.reload(spanCtx, assignment.ID)
}

func (s *reviewService) Decide(ctx context.Context, assignmentID, actorID uint, input DecisionInput) (dto.AssignmentResponse, error) {
	return s.applyDecision(ctx, assignmentID, actorID, input.Decision, input.Remark, input.Signature, input.SignatureImage, "")
}

func (s *reviewService) applyDecision(ctx context.Context, assignmentID, actorID uint, decision, remark, signature string, signatureImage *multipart.FileHeader, signatureImageURL string) (dto.AssignmentResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "review.decide", trace.WithAttributes(
		attribute.Int("assignment.id", int(assignmentID)),
		attribute.String("review.decision", decision),
	))
	defer span.End()

	assignment, err := s.getAssignment(spanCtx, assignmentID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	if assignment.ReviewerID != actorID {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: not the current reviewer", ErrForbidden)
	}
	if assignment.Status != models.StatusSubmitted && assignment.Status != models.StatusForwarded {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: assignment is not awaiting review", ErrInvalidState)
	}

	remark, err = s.cleanRemark(remark)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	if decision != models.ActionApproved && decision != models.ActionRejected {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: decision must be approved or rejected", ErrValidation)
	}
	if strings.TrimSpace(signature) == "" && signatureImageURL == "" && signatureImage == nil {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: signature is required (text or image)", ErrValidation)
	}

	actor, err := s.getUser(spanCtx, actorID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	// Upload only after every check has passed so a rejected request
	// leaves nothing behind in storage.
	if signatureImage != nil {
		if err := validateFileType(signatureImage, imageMIMETypes); err != nil {
			return dto.AssignmentResponse{}, err
		}
		url, uploadErr := uploadFile(spanCtx, s.uploader, signatureImage)
		if uploadErr != nil {
			return dto.AssignmentResponse{}, uploadErr
		}
		signatureImageURL = url
	}

	if decision == models.ActionApproved {
		assignment.Status = models.StatusApproved
		assignment.ApprovalRemark = remark
	} else {
		assignment.Status = models.StatusRejected
		assignment.RejectionRemark = remark
	}
	assignment.ReviewerSignature = signature
	assignment.SignatureImageURL = signatureImageURL

	event := &models.ReviewEvent{
		Action:            decision,
		Remark:            remark,
		Signature:         signature,
		SignatureImageURL: signatureImageURL,
		ReviewerID:        actorID,
	}

	if err := s.applyTransition(spanCtx, span, &assignment, event); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.notifier.Notify(spanCtx, NotificationInput{
		UserID:       assignment.StudentID,
		AssignmentID: &assignment.ID,
		SenderID:     actorID,
		Type:         decision,
		Message:      fmt.Sprintf("Your assignment %q was %s by %s.", assignment.Title, decision, actor.Name),
	})

	if assignment.Student.Email != "" {
		s.dispatchEmail(spanCtx, mailer.DecisionEmail(
			assignment.Student.Email,
			assignment.Student.Name,
			assignment.Title,
			actor.Name,
			remark,
			decision == models.ActionApproved,
		))
	}

	return s.reload(spanCtx, assignment.ID)
}

func (s *reviewService) Forward(ctx context.Context, assignmentID, actorID, targetHodID uint, note string) (dto.AssignmentResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "review.forward", trace.WithAttributes(
		attribute.Int("assignment.id", int(assignmentID)),
	))
	defer span.End()

	assignment, err := s.getAssignment(spanCtx, assignmentID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	if assignment.ReviewerID != actorID {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: not the current reviewer", ErrForbidden)
	}

	actor, err := s.getUser(spanCtx, actorID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	if actor.Role != models.RoleProfessor {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: only professors may forward", ErrForbidden)
	}

	if assignment.Status != models.StatusApproved {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: only approved assignments may be forwarded", ErrInvalidState)
	}

	note, err = s.cleanRemark(note)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	target, err := s.getUser(spanCtx, targetHodID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	if target.Role != models.RoleHOD {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: forward target must be a head of department", ErrValidation)
	}
	if target.Department != actor.Department {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: forward target must belong to your department", ErrValidation)
	}

	assignment.Status = models.StatusForwarded
	assignment.ReviewerID = targetHodID

	event := &models.ReviewEvent{
		Action:     models.ActionForwarded,
		Remark:     note,
		ReviewerID: actorID,
	}

	if err := s.applyTransition(spanCtx, span, &assignment, event); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.notifier.Notify(spanCtx, NotificationInput{
		UserID:       targetHodID,
		AssignmentID: &assignment.ID,
		SenderID:     actorID,
		Type:         models.NotificationForwarded,
		Message:      fmt.Sprintf("Assignment %q forwarded for final sign-off by %s.", assignment.Title, actor.Name),
	})
	s.notifier.Notify(spanCtx, NotificationInput{
		UserID:       assignment.StudentID,
		AssignmentID: &assignment.ID,
		SenderID:     actorID,
		Type:         models.NotificationForwarded,
		Message:      fmt.Sprintf("Your assignment %q was forwarded to %s for final review.", assignment.Title, target.Name),
	})

	return s.reload(spanCtx, assignment.ID)
}

func (s *reviewService) Resubmit(ctx context.Context, assignmentID, actorID uint, input ResubmitInput) (dto.AssignmentResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "review.resubmit", trace.WithAttributes(
		attribute.Int("assignment.id", int(assignmentID)),
	))
	defer span.End()

	assignment, err := s.getAssignment(spanCtx, assignmentID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}

	if assignment.StudentID != actorID {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: only the owner may resubmit", ErrForbidden)
	}
	if assignment.Status != models.StatusRejected {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: only rejected assignments can be resubmitted", ErrInvalidState)
	}

	reviewer, err := s.getUser(spanCtx, input.ReviewerID)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	if !reviewer.IsReviewer() {
		return dto.AssignmentResponse{}, fmt.Errorf("%w: reviewer must be a professor or head of department", ErrValidation)
	}

	fileReplaced := false
	if input.File != nil {
		if err := validateFileType(input.File, documentMIMETypes); err != nil {
			return dto.AssignmentResponse{}, err
		}
		url, err := uploadFile(spanCtx, s.uploader, input.File)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		assignment.FileURL = url
		fileReplaced = true
	}

	// Preserve the rejection that is about to be cleared before recording
	// the resubmission itself.
	priorRemark := assignment.RejectionRemark
	if priorRemark == "" {
		priorRemark = "Rejected previously"
	}
	preserved := &models.ReviewEvent{
		Action:            models.ActionRejected,
		Remark:            priorRemark,
		Signature:         assignment.ReviewerSignature,
		SignatureImageURL: assignment.SignatureImageURL,
		ReviewerID:        assignment.ReviewerID,
		Details:           datatypes.JSONMap{"preserved": true},
	}

	resubmitted := &models.ReviewEvent{
		Action:     models.ActionResubmitted,
		Remark:     "Student uploaded a new file",
		ReviewerID: input.ReviewerID,
		Details:    datatypes.JSONMap{"file_replaced": fileReplaced},
	}

	if input.Description != "" {
		assignment.Description = strings.TrimSpace(s.sanitizer.Sanitize(input.Description))
	}
	assignment.RejectionRemark = ""
	assignment.Status = models.StatusSubmitted
	assignment.ReviewerID = input.ReviewerID

	if err := s.applyTransition(spanCtx, span, &assignment, preserved, resubmitted); err != nil {
		return dto.AssignmentResponse{}, err
	}

	s.notifier.Notify(spanCtx, NotificationInput{
		UserID:       input.ReviewerID,
		AssignmentID: &assignment.ID,
		SenderID:     actorID,
		Type:         models.NotificationResubmission,
		Message:      fmt.Sprintf("Assignment resubmitted: %q by %s", assignment.Title, assignment.Student.Name),
	})

	return s.reload(spanCtx, assignment.ID)
}

func (s *reviewService) InitiateDecision(ctx context.Context, assignmentID, actorID uint, input DecisionInput) (dto.PendingDecisionResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "review.initiate_decision", trace.WithAttributes(
		attribute.Int("assignment.id", int(assignmentID)),
		attribute.String("review.decision", input.Decision),
	))
	defer span.End()

	assignment, err := s.getAssignment(spanCtx, assignmentID)
	if err != nil {
		return dto.PendingDecisionResponse{}, err
	}

	if assignment.ReviewerID != actorID {
		return dto.PendingDecisionResponse{}, fmt.Errorf("%w: not the current reviewer", ErrForbidden)
	}

	actor, err := s.getUser(spanCtx, actorID)
	if err != nil {
		return dto.PendingDecisionResponse{}, err
	}
	if actor.Role != models.RoleProfessor {
		return dto.PendingDecisionResponse{}, fmt.Errorf("%w: confirmation flow is for professors", ErrForbidden)
	}

	if assignment.Status != models.StatusSubmitted {
		return dto.PendingDecisionResponse{}, fmt.Errorf("%w: assignment is not awaiting review", ErrInvalidState)
	}

	remark, err := s.cleanRemark(input.Remark)
	if err != nil {
		return dto.PendingDecisionResponse{}, err
	}
	if input.Decision != models.ActionApproved && input.Decision != models.ActionRejected {
		return dto.PendingDecisionResponse{}, fmt.Errorf("%w: decision must be approved or rejected", ErrValidation)
	}

	signatureImageURL := ""
	if input.SignatureImage != nil {
		if err := validateFileType(input.SignatureImage, imageMIMETypes); err != nil {
			return dto.PendingDecisionResponse{}, err
		}
		url, uploadErr := uploadFile(spanCtx, s.uploader, input.SignatureImage)
		if uploadErr != nil {
			return dto.PendingDecisionResponse{}, uploadErr
		}
		signatureImageURL = url
	}
	if strings.TrimSpace(input.Signature) == "" && signatureImageURL == "" {
		return dto.PendingDecisionResponse{}, fmt.Errorf("%w: signature is required (text or image)", ErrValidation)
	}

	code := s.newCode()
	expiresAt := s.now().Add(s.otpTTL)

	// Overwrites any unconfirmed prior initiation: last write wins.
	pending := repository.PendingReview{
		AssignmentID:      assignmentID,
		Decision:          input.Decision,
		Remark:            remark,
		Signature:         strings.TrimSpace(input.Signature),
		SignatureImageURL: signatureImageURL,
		Code:              code,
		ExpiresAt:         expiresAt,
	}
	if err := s.tokens.Put(spanCtx, actorID, pending, s.otpTTL); err != nil {
		span.RecordError(err)
		return dto.PendingDecisionResponse{}, err
	}

	observability.OTPIssued().Inc()

	minutes := int(s.otpTTL / time.Minute)
	s.dispatchEmail(spanCtx, mailer.ReviewOTPEmail(actor.Email, actor.Name, assignment.Title, code, minutes))

	s.logger.Info().
		Uint("assignment_id", assignmentID).
		Uint("reviewer_id", actorID).
		Time("expires_at", expiresAt).
		Msg("review decision initiated, confirmation code issued")

	return dto.PendingDecisionResponse{
		AssignmentID: assignmentID,
		Decision:     input.Decision,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *reviewService) ConfirmDecision(ctx context.Context, actorID uint, code string) (dto.AssignmentResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "review.confirm_decision")
	defer span.End()

	pending, found, err := s.tokens.Get(spanCtx, actorID)
	if err != nil {
		span.RecordError(err)
		return dto.AssignmentResponse{}, err
	}
	if !found {
		observability.OTPConfirmFailures().Inc()
		return dto.AssignmentResponse{}, fmt.Errorf("%w: no pending confirmation", ErrCodeExpiredOrInvalid)
	}

	if pending.Code != strings.TrimSpace(code) {
		observability.OTPConfirmFailures().Inc()
		return dto.AssignmentResponse{}, fmt.Errorf("%w: code mismatch", ErrCodeExpiredOrInvalid)
	}

	if !s.now().Before(pending.ExpiresAt) {
		observability.OTPConfirmFailures().Inc()
		if err := s.tokens.Delete(spanCtx, actorID); err != nil {
			s.logger.Warn().Err(err).Uint("reviewer_id", actorID).Msg("failed to clear expired confirmation")
		}
		return dto.AssignmentResponse{}, fmt.Errorf("%w: code expired", ErrCodeExpiredOrInvalid)
	}

	// The pending state must not be replayable; clear it before applying
	// the decision, even though the decision itself may still fail.
	if err := s.tokens.Delete(spanCtx, actorID); err != nil {
		span.RecordError(err)
		return dto.AssignmentResponse{}, err
	}

	return s.applyDecision(spanCtx, pending.AssignmentID, actorID, pending.Decision, pending.Remark, pending.Signature, nil, pending.SignatureImageURL)
}

func (s *reviewService) cleanRemark(remark string) (string, error) {
	remark = strings.TrimSpace(s.sanitizer.Sanitize(remark))
	if utf8.RuneCountInString(remark) < minRemarkLength {
		return "", fmt.Errorf("%w: remarks must be at least %d characters", ErrValidation, minRemarkLength)
	}
	return remark, nil
}

func (s *reviewService) applyTransition(ctx context.Context, span trace.Span, assignment *models.Assignment, events ...*models.ReviewEvent) error {
	if err := s.assignments.ApplyTransition(ctx, assignment, events...); err != nil {
		span.RecordError(err)
		return err
	}
	for _, event := range events {
		observability.ReviewTransitions().WithLabelValues(event.Action).Inc()
	}
	return nil
}

func (s *reviewService) dispatchEmail(ctx context.Context, msg mailer.Message) {
	if s.mail == nil {
		return
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		observability.EmailsDispatched().WithLabelValues("failure").Inc()
		s.logger.Warn().Err(err).Str("to", msg.To).Msg("email dispatch failed")
		return
	}
	observability.EmailsDispatched().WithLabelValues("success").Inc()
}

// ListReviewers returns the valid targets for the actor's next handoff:
// professors in the department for students picking a reviewer, heads of
// department for professors forwarding an approved assignment.
func (s *reviewService) ListReviewers(ctx context.Context, actorID uint) ([]dto.UserLite, error) {
	spanCtx, span := s.tracer.Start(ctx, "review.list_reviewers", trace.WithAttributes(
		attribute.Int("user.id", int(actorID)),
	))
	defer span.End()

	actor, err := s.getUser(spanCtx, actorID)
	if err != nil {
		return nil, err
	}

	var role string
	switch actor.Role {
	case models.RoleStudent:
		role = models.RoleProfessor
	case models.RoleProfessor:
		role = models.RoleHOD
	default:
		return nil, fmt.Errorf("%w: no reviewers to list for this role", ErrForbidden)
	}

	users, err := s.users.ListByRoleAndDepartment(spanCtx, role, actor.Department)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	reviewers := make([]dto.UserLite, 0, len(users))
	for _, user := range users {
		reviewers = append(reviewers, dto.NewUserLite(user))
	}
	return reviewers, nil
}

func (s *reviewService) getAssignment(ctx context.Context, id uint) (models.Assignment, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, ErrAssignmentNotFound
		}
		return models.Assignment{}, err
	}
	return assignment, nil
}

func (s *reviewService) getUser(ctx context.Context, id uint) (models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *reviewService) reload(ctx context.Context, id uint) (dto.AssignmentResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, err
	}
	return dto.NewAssignmentResponse(assignment), nil
}
