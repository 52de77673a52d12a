package core

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures.
type ErrorKind int

const (
	KindNetwork ErrorKind = iota + 1 // connection, timeout, non-2xx, checksum mismatch
	KindParse                        // malformed JSON or missing required field
	KindIO                           // directory/file creation or write failure
	KindArchive                      // corrupt zip, unreadable or escaping entry
)

func (k ErrorKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindParse:
		return "parse"
	case KindIO:
		return "io"
	case KindArchive:
		return "archive"
	}
	return "unknown"
}

// ErrPathEscape marks an archive entry or descriptor path that would land
// outside its destination.
var ErrPathEscape = errors.New("path escapes destination directory")

// Error is a classified failure carrying the operation and its target (URL or path).
type Error struct {
	Kind   ErrorKind
	Op     string
	Target string
	Err    error
}

func (e *Error) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func NetworkError(op, target string, err error) error {
	return &Error{Kind: KindNetwork, Op: op, Target: target, Err: err}
}

func ParseError(op, target string, err error) error {
	return &Error{Kind: KindParse, Op: op, Target: target, Err: err}
}

func IOError(op, target string, err error) error {
	return &Error{Kind: KindIO, Op: op, Target: target, Err: err}
}

func ArchiveError(op, target string, err error) error {
	return &Error{Kind: KindArchive, Op: op, Target: target, Err: err}
}

// IsKind reports whether any error in err's chain is a *Error of kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// StatusError is returned for non-2xx HTTP responses
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.Code)
}
