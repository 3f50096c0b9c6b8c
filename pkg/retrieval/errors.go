package retrieval

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match with errors.Is.
var (
	ErrMissingParameter = errors.New("missing parameter")
	ErrNotFound         = errors.New("not found")
	ErrInvalidData      = errors.New("invalid data")
	// ErrStorage covers storage failures other than a missing bucket or object.
	ErrStorage = errors.New("storage failure")
)

// Error carries enough context for a caller to build a precise message.
type Error struct {
	Op     string
	Param  string
	Bucket string
	Object string
	Kind   error
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	switch {
	case e.Param != "":
		fmt.Fprintf(&b, " %q", e.Param)
	case e.Bucket != "":
		fmt.Fprintf(&b, " (bucket=%s object=%s)", e.Bucket, e.Object)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Kind returns the error kind of err, or nil when err is not a retrieval error.
func Kind(err error) error {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return nil
}
