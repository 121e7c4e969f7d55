package errs

import "errors"

var (
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrUserNotFound     = errors.New("user not found")
	ErrAssigneeNotFound = errors.New("assignee not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrTicketClosed     = errors.New("ticket is closed")
	ErrForbidden        = errors.New("forbidden")
	// ErrUpstream marks blob-store and persistence failures.
	ErrUpstream = errors.New("upstream failure")
)

// IsNotFound reports whether err is any of the not-found sentinels.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrAssigneeNotFound)
}
