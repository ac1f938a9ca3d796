package domain

import "errors"

// Domain errors
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrPendingMatchNotFound = errors.New("pending match not found")
	ErrRoomNotFound         = errors.New("game room not found")
	ErrLiveMatchNotFound    = errors.New("live match not found")
	ErrResultNotFound       = errors.New("match result not found")

	ErrTiedScore       = errors.New("a match cannot end in a tie")
	ErrNegativeScore   = errors.New("scores must be non-negative")
	ErrSamePlayer      = errors.New("a match requires two distinct players")
	ErrRoomNotJoinable = errors.New("room is not waiting for a guest")
	ErrRoomExpired     = errors.New("room has expired")
	ErrRoomNotReady    = errors.New("room has no guest yet")
	ErrOwnRoom         = errors.New("host cannot join their own room")
	ErrNotParticipant  = errors.New("user did not play this match")
	ErrAlreadyDecided  = errors.New("result is already finalized or disputed")
	ErrCodeExhausted   = errors.New("could not generate a unique invite code")

	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("authentication required")
	ErrInternalError  = errors.New("internal server error")
)

// IsNotFoundError checks if an error is a not-found type error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPendingMatchNotFound) ||
		errors.Is(err, ErrRoomNotFound) ||
		errors.Is(err, ErrLiveMatchNotFound) ||
		errors.Is(err, ErrResultNotFound)
}

// IsConflictError checks if an error is a lifecycle precondition failure
func IsConflictError(err error) bool {
	return errors.Is(err, ErrRoomNotJoinable) ||
		errors.Is(err, ErrRoomExpired) ||
		errors.Is(err, ErrRoomNotReady) ||
		errors.Is(err, ErrOwnRoom) ||
		errors.Is(err, ErrAlreadyDecided)
}

// IsValidationError checks if an error is caused by invalid input
func IsValidationError(err error) bool {
	return errors.Is(err, ErrTiedScore) ||
		errors.Is(err, ErrNegativeScore) ||
		errors.Is(err, ErrSamePlayer) ||
		errors.Is(err, ErrNotParticipant) ||
		errors.Is(err, ErrInvalidRequest)
}
