package rounds

import "errors"

var (
	// ErrValidation is returned for malformed or out-of-range input. Nothing is written.
	ErrValidation = errors.New("validation failed")

	// ErrRoundNotFound is returned when the round does not exist.
	ErrRoundNotFound = errors.New("round not found")

	// ErrRoundNotActive is returned when a tap arrives while the round is in cooldown or completed.
	ErrRoundNotActive = errors.New("round is not active")

	// ErrMonotonicityViolation is returned when a reported tap count is lower than the stored one.
	ErrMonotonicityViolation = errors.New("tap count cannot decrease")

	// ErrUnauthorized is returned when the caller has no resolvable identity.
	ErrUnauthorized = errors.New("authentication required")

	// ErrForbidden is returned when the caller's role does not allow the operation.
	ErrForbidden = errors.New("forbidden")
)

// IsDomainError reports whether err is one of the errors above, as opposed to a
// storage or infrastructure failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrRoundNotFound) ||
		errors.Is(err, ErrRoundNotActive) ||
		errors.Is(err, ErrMonotonicityViolation) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrForbidden)
}
