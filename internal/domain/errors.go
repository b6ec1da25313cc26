package domain

import "github.com/cockroachdb/errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrSeatAlreadyBooked  = errors.New("seat already booked")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
)

// Invalid formats a message like fmt.Sprintf and marks it as ErrInvalidInput.
func Invalid(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidInput)
}
