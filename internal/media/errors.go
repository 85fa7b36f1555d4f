package media

import (
	"errors"
	"fmt"
)

// ErrMediaAccess matches every camera or microphone acquisition failure.
var ErrMediaAccess = errors.New("camera or microphone unavailable")

// AccessError reports which track could not be acquired.
type AccessError struct {
	Track string
	Err   error
}

func (e *AccessError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s access failed", e.Track)
	}
	return fmt.Sprintf("%s access failed: %v", e.Track, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

func (e *AccessError) Is(target error) bool { return target == ErrMediaAccess }

func accessError(track string, err error) error {
	return &AccessError{Track: track, Err: err}
}
