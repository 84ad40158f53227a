package curation

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateCode   = errors.New("code already finalized")
	ErrCodeNotFound    = errors.New("code not found")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrEmptyCode       = errors.New("code is required")
)

// DuplicateCodeError reports an add that collides with an existing
// (code, type) pair.
type DuplicateCodeError struct {
	Code string
	Type string
}

func (e *DuplicateCodeError) Error() string {
	return fmt.Sprintf("%s code %s is already in the finalized list", e.Type, e.Code)
}

func (e *DuplicateCodeError) Is(target error) bool { return target == ErrDuplicateCode }
