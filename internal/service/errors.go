package service

import "errors"

// Domain failure sentinels. Handlers map them onto HTTP statuses with
// errors.Is; services wrap them with fmt.Errorf("%w: ...") to add detail.
var (
	// ErrAssignmentNotFound indicates the referenced assignment does not exist.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrUserNotFound indicates the referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrForbidden indicates the actor lacks rights over the target record.
	ErrForbidden = errors.New("operation not permitted")

	// ErrInvalidState indicates the operation is not legal from the
	// assignment's current status.
	ErrInvalidState = errors.New("operation not allowed in current status")

	// ErrValidation indicates malformed input (short remark, missing
	// signature, bad forward target).
	ErrValidation = errors.New("invalid input")

	// ErrCodeExpiredOrInvalid indicates the review confirmation code is
	// missing, wrong, or past its expiry.
	ErrCodeExpiredOrInvalid = errors.New("confirmation code expired or invalid")
)
