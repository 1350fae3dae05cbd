package upload

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a rejected candidate.
type ErrorKind string

const (
	KindWrongMediaType ErrorKind = "wrong_media_type"
	KindTooLarge       ErrorKind = "too_large"
)

var (
	ErrWrongMediaType = errors.New("candidate is not a video")
	ErrTooLarge       = errors.New("candidate exceeds size limit")
)

const wrongMediaTypeMessage = "Please upload a video file"

// ValidationError describes why a candidate was rejected. Message is the
// text shown to the user.
type ValidationError struct {
	Kind    ErrorKind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	switch e.Kind {
	case KindWrongMediaType:
		return target == ErrWrongMediaType
	case KindTooLarge:
		return target == ErrTooLarge
	}
	return false
}

func wrongMediaType() *ValidationError {
	return &ValidationError{Kind: KindWrongMediaType, Message: wrongMediaTypeMessage}
}

func tooLarge(maxSize int64) *ValidationError {
	return &ValidationError{
		Kind:    KindTooLarge,
		Message: fmt.Sprintf("File size must be less than %s", LimitLabel(maxSize)),
	}
}
