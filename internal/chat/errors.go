package chat

import "errors"

// Recoverable rejection reasons reported back to the initiating participant.
// None of these terminate the coordinator or affect other participants.
var (
	// ErrInvalidMessage is returned for empty or over-length message text.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidSession is returned when the claimed session id does not
	// match the coordinator's record, or no session exists at all.
	ErrInvalidSession = errors.New("invalid session")

	// ErrInvalidArgument is returned when an admin command carries a value
	// outside its accepted range.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrContentBlocked is returned when a public-room message fails the
	// banned-content check. The message is neither stored nor broadcast.
	ErrContentBlocked = errors.New("content blocked")

	// ErrUnauthorized is returned for admin actions without a valid token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMaintenance is returned while maintenance mode is active.
	ErrMaintenance = errors.New("maintenance mode active")

	// ErrRateLimited is returned when a participant exceeds the per-user
	// message rate limit.
	ErrRateLimited = errors.New("rate limited")
)

// errorCode maps a rejection to the machine-readable code sent on the wire.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, ErrInvalidSession):
		return "invalid_session"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrContentBlocked):
		return "content_blocked"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrMaintenance):
		return "maintenance_active"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	default:
		return "internal_error"
	}
}
