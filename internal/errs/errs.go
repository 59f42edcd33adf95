// Package errs defines the error kinds shared by every pipeline component.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failure for retry and reporting decisions.
type Kind string

// Error kinds.
const (
	// NetworkTransient failures are worth retrying.
	NetworkTransient Kind = "NETWORK_TRANSIENT"
	// PolicyBlocked covers robots exclusions and freshness rejections. Never retried.
	PolicyBlocked Kind = "POLICY_BLOCKED"
	// ParseMalformed means upstream returned an unexpected shape. The item is skipped.
	ParseMalformed Kind = "PARSE_MALFORMED"
	// StateConflict is an attempted out-of-order state transition.
	StateConflict Kind = "STATE_CONFLICT"
	// StoreUnavailable means the remote store could not be reached.
	StoreUnavailable Kind = "STORE_UNAVAILABLE"
)

// Error carries a Kind together with the operation and article it concerns.
type Error struct {
	Kind      Kind
	Op        string
	ArticleID string
	Message   string
	Cause     error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.ArticleID != "" {
		msg += fmt.Sprintf(" (article %s)", e.ArticleID)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a kind to an existing error. A nil err returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Cause: err}
}

// WithArticle returns a copy of err tagged with the article id, when err is an *Error.
// Other errors are wrapped with the id so the message still names the article.
func WithArticle(err error, articleID string) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		c := *e
		c.ArticleID = articleID
		return &c
	}
	return fmt.Errorf("article %s: %w", articleID, err)
}

// KindOf extracts the kind of err. Context cancellation counts as transient;
// unknown errors report an empty kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NetworkTransient
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether a later attempt could succeed.
func Retryable(err error) bool {
	switch KindOf(err) {
	case NetworkTransient, StoreUnavailable:
		return true
	default:
		return false
	}
}
