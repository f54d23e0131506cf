package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unicore-dev/unicore-api/internal/models"
)

const (
	testStudentID   = uint(1)
	testProfessorID = uint(2)
	testHodID       = uint(3)
)

func reviewFixtureUsers() []models.User {
	return []models.User{
		{ID: testStudentID, Name: "Amina Rahman", Email: "amina@uni.example", Role: models.RoleStudent, Department: "CSE"},
		{ID: testProfessorID, Name: "Dr. Faisal Karim", Email: "faisal@uni.example", Role: models.RoleProfessor, Department: "CSE"},
		{ID: testHodID, Name: "Prof. Nusrat Jahan", Email: "nusrat@uni.example", Role: models.RoleHOD, Department: "CSE"},
		{ID: 4, Name: "Dr. Outside", Email: "outside@uni.example", Role: models.RoleProfessor, Department: "EEE"},
		{ID: 5, Name: "Other Student", Email: "other@uni.example", Role: models.RoleStudent, Department: "CSE"},
	}
}

func setupReviewService(t *testing.T) (*reviewService, *memoryAssignmentRepo, *memoryTokenRepo, *recordingNotifier, *recordingMailer) {
	t.Helper()

	users := newMemoryUserRepo(reviewFixtureUsers()...)
	assignments := newMemoryAssignmentRepo(users)
	tokens := newMemoryTokenRepo()
	notifier := &recordingNotifier{}
	mail := &recordingMailer{}

	svc := NewReviewService(assignments, users, tokens, notifier, mail, &stubUploader{}, DefaultConfirmationTTL, testLogger()).(*reviewService)
	svc.newCode = func() string { return "123456" }

	return svc, assignments, tokens, notifier, mail
}

func seedAssignment(repo *memoryAssignmentRepo, status string, reviewerID uint) models.Assignment {
	return repo.seed(models.Assignment{
		Title:      "Compiler Project Report",
		Category:   models.CategoryReport,
		FileURL:    "https://cdn.example.com/report.pdf",
		Status:     status,
		StudentID:  testStudentID,
		ReviewerID: reviewerID,
	})
}

func TestReviewServiceSubmit(t *testing.T) {
	svc, assignments, _, notifier, _ := setupReviewService(t)
	draft := seedAssignment(assignments, models.StatusDraft, 0)

	resp, err := svc.Submit(context.Background(), draft.ID, testStudentID, testProfessorID)
	require.NoError(t, err)
	require.Equal(t, models.StatusSubmitted, resp.Status)
	require.Equal(t, testProfessorID, resp.Reviewer.ID)
	require.Len(t, resp.History, 1)
	require.Equal(t, models.ActionSubmitted, resp.History[0].Action)

	sent := notifier.sent()
	require.Len(t, sent, 1)
	require.Equal(t, testProfessorID, sent[0].UserID)
	require.Equal(t, models.NotificationSubmission, sent[0].Type)
	require.Contains(t, sent[0].Message, "Compiler Project Report")
}

func TestReviewServiceSubmitOnlyOwner(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)
	draft := seedAssignment(assignments, models.StatusDraft, 0)

	_, err := svc.Submit(context.Background(), draft.ID, 5, testProfessorID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestReviewServiceSubmitOnlyFromDraft(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)
	submitted := seedAssignment(assignments, models.StatusSubmitted, testProfessorID)

	_, err := svc.Submit(context.Background(), submitted.ID, testStudentID, testProfessorID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReviewServiceSubmitReviewerChecks(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)

	_, err := svc.Submit(context.Background(), seedAssignment(assignments, models.StatusDraft, 0).ID, testStudentID, 999)
	require.ErrorIs(t, err, ErrUserNotFound)

	// An HOD is not a valid first reviewer.
	_, err = svc.Submit(context.Background(), seedAssignment(assignments, models.StatusDraft, 0).ID, testStudentID, testHodID)
	require.ErrorIs(t, err, ErrValidation)

	// Professors outside the student's department are rejected.
	_, err = svc.Submit(context.Background(), seedAssignment(assignments, models.StatusDraft, 0).ID, testStudentID, 4)
	require.ErrorIs(t, err, ErrValidation)
}

func TestReviewServiceSubmitMissingAssignment(t *testing.T) {
	svc, _, _, _, _ := setupReviewService(t)

	_, err := svc.Submit(context.Background(), 404, testStudentID, testProfessorID)
	require.ErrorIs(t, err, ErrAssignmentNotFound)
}

func TestReviewServiceDecideApprove(t *testing.T) {
	svc, assignments, _, notifier, mail := setupReviewService(t)
	assignment := seedAssignment(assignments, models.StatusSubmitted, testProfessorID)

	resp, err := svc.Decide(context.Background(), assignment.ID, testProfessorID, DecisionInput{
		Decision:  models.ActionApproved,
		Remark:    "Well structured and thoroughly argued.",
		Signature: "Dr. Faisal Karim",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, resp.Status)
	require.Equal(t, "Well structured and thoroughly argued.", resp.ApprovalRemark)
	require.Empty(t, resp.RejectionRemark)
	require.Equal(t, "Dr. Faisal Karim", resp.ReviewerSignature)
	require.Len(t, resp.History, 1)
	require.Equal(t, models.ActionApproved, resp.History[0].Action)

	sent := notifier.sent()
	require.Len(t, sent, 1)
	require.Equal(t, testStudentID, sent[0].UserID)
	require.Equal(t, models.NotificationApproved, sent[0].Type)

	emails := mail.sent()
	require.Len(t, emails, 1)
	require.Equal(t, "amina@uni.example", emails[0].To)
	require.Contains(t, emails[0].HTML, "approved")
}

func TestReviewServiceDecideReject(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)
	assignment := seedAssignment(assignments, models.StatusSubmitted, testProfessorID)

	resp, err := svc.Decide(context.Background(), assignment.ID, testProfessorID, DecisionInput{
		Decision:  models.ActionRejected,
		Remark:    "Missing evaluation of related work.",
		Signature: "Dr. Faisal Karim",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusRejected, resp.Status)
	require.Equal(t, "Missing evaluation of related work.", resp.RejectionRemark)
	require.Empty(t, resp.ApprovalRemark)
}

func TestReviewServiceDecideOnForwarded(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)
	assignment := seedAssignment(assignments, models.StatusForwarded, testHodID)

	resp, err := svc.Decide(context.Background(), assignment.ID, testHodID, DecisionInput{
		Decision:  models.ActionApproved,
		Remark:    "Final approval after departmental review.",
		Signature: "Prof. Nusrat Jahan",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, resp.Status)
}

func TestReviewServiceDecideValidation(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)
	assignment := seedAssignment(assignments, models.StatusSubmitted, testProfessorID)

	// Remark below the minimum length.
	_, err := svc.Decide(context.Background(), assignment.ID, testProfessorID, DecisionInput{
		Decision: models.ActionApproved, Remark: "too short", Signature: "sig",
	})
	require.ErrorIs(t, err, ErrValidation)

	// Markup is stripped before the length check.
	_, err = svc.Decide(context.Background(), assignment.ID, testProfessorID, DecisionInput{
		Decision: models.ActionApproved, Remark: "<b><i><u>ok</u></i></b>", Signature: "sig",
	})
	require.ErrorIs(t, err, ErrValidation)

	// Signature required in some form.
	_, err = svc.Decide(context.Background(), assignment.ID, testProfessorID, DecisionInput{
		Decision: models.ActionApproved, Remark: "Good work overall, approved.",
	})
	require.ErrorIs(t, err, ErrValidation)

	// Unknown decision value.
	_, err = svc.Decide(context.Background(), assignment.ID, testProfessorID, DecisionInput{
		Decision: "maybe", Remark: "Good work overall, approved.", Signature: "sig",
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestReviewServiceDecideRemarkBoundary(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)
	assignment := seedAssignment(assignments, models.StatusSubmitted, testProfessorID)

	_, err := svc.Decide(context.Background(), assignment.ID, testProfessorID, DecisionInput{
		Decision: models.ActionApproved, Remark: "123456789", Signature: "sig",
	})
	require.ErrorIs(t, err, ErrValidation)

	resp, err := svc.Decide(context.Background(), assignment.ID, testProfessorID, DecisionInput{
		Decision: models.ActionApproved, Remark: "1234567890", Signature: "sig",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, resp.Status)
}

func TestReviewServiceDecideRemarkCountsRunes(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)
	assignment := seedAssignment(assignments, models.StatusSubmitted, testProfessorID)

	// Nine characters, far more than ten bytes.
	_, err := svc.Decide(context.Background(), assignment.ID, testProfessorID, DecisionInput{
		Decision: models.ActionApproved, Remark: "অসম্পূর্ণ", Signature: "sig",
	})
	require.ErrorIs(t, err, ErrValidation)

	resp, err := svc.Decide(context.Background(), assignment.ID, testProfessorID, DecisionInput{
		Decision: models.ActionApproved, Remark: "চমৎকার কাজ হয়েছে", Signature: "sig",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, resp.Status)
}

func TestReviewServiceDecideNoUploadOnInvalidInput(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)
	uploads := &stubUploader{}
	svc.uploader = uploads
	assignment := seedAssignment(assignments, models.StatusSubmitted, testProfessorID)

	// A request rejected by validation must not leave an uploaded image
	// behind.
	_, err := svc.Decide(context.Background(), assignment.ID, testProfessorID, DecisionInput{
		Decision:       models.ActionApproved,
		Remark:         "too short",
		SignatureImage: fileHeaderFromBytes(t, "signature.png", pngBytes()),
	})
	require.ErrorIs(t, err, ErrValidation)
	require.Zero(t, uploads.calls)

	// Same for an actor who is not the reviewer.
	_, err = svc.Decide(context.Background(), assignment.ID, testHodID, DecisionInput{
		Decision:       models.ActionApproved,
		Remark:         "Looks fine to me overall.",
		SignatureImage: fileHeaderFromBytes(t, "signature.png", pngBytes()),
	})
	require.ErrorIs(t, err, ErrForbidden)
	require.Zero(t, uploads.calls)
}

func TestReviewServiceListReviewers(t *testing.T) {
	svc, _, _, _, _ := setupReviewService(t)

	// Students see professors in their own department only.
	reviewers, err := svc.ListReviewers(context.Background(), testStudentID)
	require.NoError(t, err)
	require.Len(t, reviewers, 1)
	require.Equal(t, testProfessorID, reviewers[0].ID)

	// Professors see forward targets, the department's HODs.
	targets, err := svc.ListReviewers(context.Background(), testProfessorID)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	require.Equal(t, testHodID, targets[0].ID)

	_, err = svc.ListReviewers(context.Background(), testHodID)
	require.ErrorIs(t, err, ErrForbidden)

	_, err = svc.ListReviewers(context.Background(), 99)
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestReviewServiceDecideSignatureImage(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)
	assignment := seedAssignment(assignments, models.StatusSubmitted, testProfessorID)

	file := fileHeaderFromBytes(t, "signature.png", pngBytes())
	resp, err := svc.Decide(context.Background(), assignment.ID, testProfessorID, DecisionInput{
		Decision:       models.ActionApproved,
		Remark:         "Approved with the attached signature.",
		SignatureImage: file,
	})
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/signature.png", resp.SignatureImageURL)
}

func TestReviewServiceDecideWrongReviewer(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)
	assignment := seedAssignment(assignments, models.StatusSubmitted, testProfessorID)

	_, err := svc.Decide(context.Background(), assignment.ID, testHodID, DecisionInput{
		Decision: models.ActionApproved, Remark: "Looks fine to me overall.", Signature: "sig",
	})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestReviewServiceDecideWrongState(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)
	assignment := seedAssignment(assignments, models.StatusApproved, testProfessorID)

	_, err := svc.Decide(context.Background(), assignment.ID, testProfessorID, DecisionInput{
		Decision: models.ActionRejected, Remark: "Changed my mind about this.", Signature: "sig",
	})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestReviewServiceDecideEmailFailureSwallowed(t *testing.T) {
	svc, assignments, _, notifier, mail := setupReviewService(t)
	mail.failErr = errors.New("smtp down")
	assignment := seedAssignment(assignments, models.StatusSubmitted, testProfessorID)

	resp, err := svc.Decide(context.Background(), assignment.ID, testProfessorID, DecisionInput{
		Decision:  models.ActionApproved,
		Remark:    "Approved despite the mail outage.",
		Signature: "Dr. Faisal Karim",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, resp.Status)
	require.Len(t, notifier.sent(), 1)
	require.Empty(t, mail.sent())
}

func TestReviewServiceForward(t *testing.T) {
	svc, assignments, _, notifier, _ := setupReviewService(t)
	assignment := seedAssignment(assignments, models.StatusApproved, testProfessorID)

	resp, err := svc.Forward(context.Background(), assignment.ID, testProfessorID, testHodID, "Forwarding for final departmental sign-off.")
	require.NoError(t, err)
	require.Equal(t, models.StatusForwarded, resp.Status)
	require.Equal(t, testHodID, resp.Reviewer.ID)
	require.Len(t, resp.History, 1)
	require.Equal(t, models.ActionForwarded, resp.History[0].Action)
	// The forwarding professor, not the new reviewer, authored the event.
	require.Equal(t, testProfessorID, resp.History[0].Reviewer.ID)

	sent := notifier.sent()
	require.Len(t, sent, 2)
	require.Equal(t, testHodID, sent[0].UserID)
	require.Equal(t, testStudentID, sent[1].UserID)
}

func TestReviewServiceForwardGuards(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)

	// Only the current reviewer may forward.
	approved := seedAssignment(assignments, models.StatusApproved, testProfessorID)
	_, err := svc.Forward(context.Background(), approved.ID, 4, testHodID, "Please take this one over now.")
	require.ErrorIs(t, err, ErrForbidden)

	// HODs do not forward; the chain ends with them.
	hodHeld := seedAssignment(assignments, models.StatusApproved, testHodID)
	_, err = svc.Forward(context.Background(), hodHeld.ID, testHodID, testHodID, "Trying to forward to myself here.")
	require.ErrorIs(t, err, ErrForbidden)

	// Only approved assignments move on.
	submitted := seedAssignment(assignments, models.StatusSubmitted, testProfessorID)
	_, err = svc.Forward(context.Background(), submitted.ID, testProfessorID, testHodID, "Not yet reviewed but forwarding anyway.")
	require.ErrorIs(t, err, ErrInvalidState)

	// Target must exist, be an HOD, and share the department.
	_, err = svc.Forward(context.Background(), approved.ID, testProfessorID, 999, "Forwarding into the void entirely.")
	require.ErrorIs(t, err, ErrUserNotFound)
	_, err = svc.Forward(context.Background(), approved.ID, testProfessorID, 4, "Forwarding to a fellow professor.")
	require.ErrorIs(t, err, ErrValidation)
}

func TestReviewServiceForwardDifferentDepartment(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)
	users := assignments.users
	users.users[6] = models.User{ID: 6, Name: "Remote HOD", Role: models.RoleHOD, Department: "EEE"}

	approved := seedAssignment(assignments, models.StatusApproved, testProfessorID)
	_, err := svc.Forward(context.Background(), approved.ID, testProfessorID, 6, "Crossing department lines with this.")
	require.ErrorIs(t, err, ErrValidation)
}

func TestReviewServiceResubmit(t *testing.T) {
	svc, assignments, _, notifier, _ := setupReviewService(t)
	rejected := assignments.seed(models.Assignment{
		Title:             "Compiler Project Report",
		Category:          models.CategoryReport,
		FileURL:           "https://cdn.example.com/v1.pdf",
		Status:            models.StatusRejected,
		RejectionRemark:   "Missing evaluation of related work.",
		ReviewerSignature: "Dr. Faisal Karim",
		StudentID:         testStudentID,
		ReviewerID:        testProfessorID,
	})

	file := fileHeaderFromBytes(t, "v2.pdf", pdfBytes())
	resp, err := svc.Resubmit(context.Background(), rejected.ID, testStudentID, ResubmitInput{
		File:        file,
		Description: "Added the related work section.",
		ReviewerID:  testProfessorID,
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusSubmitted, resp.Status)
	require.Equal(t, "https://cdn.example.com/v2.pdf", resp.FileURL)
	require.Empty(t, resp.RejectionRemark)

	// The rejection is preserved in history before the resubmission entry.
	require.Len(t, resp.History, 2)
	require.Equal(t, models.ActionRejected, resp.History[0].Action)
	require.Equal(t, "Missing evaluation of related work.", resp.History[0].Remark)
	require.Equal(t, "Dr. Faisal Karim", resp.History[0].Signature)
	require.Equal(t, models.ActionResubmitted, resp.History[1].Action)
	require.Equal(t, "Student uploaded a new file", resp.History[1].Remark)

	sent := notifier.sent()
	require.Len(t, sent, 1)
	require.Equal(t, testProfessorID, sent[0].UserID)
	require.Equal(t, models.NotificationResubmission, sent[0].Type)
}

func TestReviewServiceResubmitRemarkFallback(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)
	rejected := assignments.seed(models.Assignment{
		Title:      "Untitled",
		Category:   models.CategoryAssignment,
		Status:     models.StatusRejected,
		StudentID:  testStudentID,
		ReviewerID: testProfessorID,
	})

	resp, err := svc.Resubmit(context.Background(), rejected.ID, testStudentID, ResubmitInput{ReviewerID: testProfessorID})
	require.NoError(t, err)
	require.Equal(t, "Rejected previously", resp.History[0].Remark)
}

func TestReviewServiceResubmitGuards(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)

	rejected := seedAssignment(assignments, models.StatusRejected, testProfessorID)
	_, err := svc.Resubmit(context.Background(), rejected.ID, 5, ResubmitInput{ReviewerID: testProfessorID})
	require.ErrorIs(t, err, ErrForbidden)

	approved := seedAssignment(assignments, models.StatusApproved, testProfessorID)
	_, err = svc.Resubmit(context.Background(), approved.ID, testStudentID, ResubmitInput{ReviewerID: testProfessorID})
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.Resubmit(context.Background(), rejected.ID, testStudentID, ResubmitInput{ReviewerID: 999})
	require.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.Resubmit(context.Background(), rejected.ID, testStudentID, ResubmitInput{ReviewerID: 5})
	require.ErrorIs(t, err, ErrValidation)
}

func TestReviewServiceResubmitToHod(t *testing.T) {
	svc, assignments, _, _, _ := setupReviewService(t)
	rejected := seedAssignment(assignments, models.StatusRejected, testHodID)

	resp, err := svc.Resubmit(context.Background(), rejected.ID, testStudentID, ResubmitInput{ReviewerID: testHodID})
	require.NoError(t, err)
	require.Equal(t, models.StatusSubmitted, resp.Status)
	require.Equal(t, testHodID, resp.Reviewer.ID)
}

func TestReviewServiceTransitionFailurePropagates(t *testing.T) {
	svc, assignments, _, notifier, _ := setupReviewService(t)
	assignments.failApply = errors.New("disk full")
	draft := seedAssignment(assignments, models.StatusDraft, 0)

	_, err := svc.Submit(context.Background(), draft.ID, testStudentID, testProfessorID)
	require.Error(t, err)
	require.Empty(t, notifier.sent())

	stored, getErr := assignments.GetByID(context.Background(), draft.ID)
	require.NoError(t, getErr)
	require.Equal(t, models.StatusDraft, stored.Status)
	require.Empty(t, stored.History)
}

func TestReviewServiceRandomCodeRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code := randomCode()
		require.Len(t, code, 6)
		require.GreaterOrEqual(t, code, "100000")
		require.LessOrEqual(t, code, "999999")
	}
}

func TestReviewServiceDefaultTTL(t *testing.T) {
	users := newMemoryUserRepo()
	svc := NewReviewService(newMemoryAssignmentRepo(users), users, newMemoryTokenRepo(), &recordingNotifier{}, nil, nil, 0, testLogger()).(*reviewService)
	require.Equal(t, DefaultConfirmationTTL, svc.otpTTL)
	require.Equal(t, 10*time.Minute, svc.otpTTL)
}
