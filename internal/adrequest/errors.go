package adrequest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"
)

// Kind classifies the failures a request can run into.
type Kind int

const (
	// KindConfigurationConflict means cookie settings were passed to Request
	// instead of SetCookie.
	KindConfigurationConflict Kind = iota + 1
	// KindNoOpRequest means neither an ad nor an analytics request applied.
	KindNoOpRequest
	// KindNetworkTimeout means the endpoint did not answer within the timeout.
	KindNetworkTimeout
	// KindNetworkFailure covers every other transport problem.
	KindNetworkFailure
)

func (k Kind) String() string {
	switch k {
	case KindConfigurationConflict:
		return "configuration_conflict"
	case KindNoOpRequest:
		return "noop_request"
	case KindNetworkTimeout:
		return "network_timeout"
	case KindNetworkFailure:
		return "network_failure"
	default:
		return "unknown"
	}
}

// Error is the single error type surfaced by this package.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("adrequest: %s: %v", e.Message, e.Err)
	}
	return "adrequest: " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func conflictError(param string) *Error {
	return &Error{
		Kind:    KindConfigurationConflict,
		Message: fmt.Sprintf("cannot set %s in Request(), set the %s in the call to SetCookie()", param, param),
	}
}

var errNoOp = &Error{
	Kind:    KindNoOpRequest,
	Message: "request called as neither an ad nor an analytics request",
}

// isTimeout reports whether a transport error was caused by a deadline.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// errorPolicy decides whether an error reaches the caller or is only logged.
type errorPolicy struct {
	raise  bool
	logger *zap.Logger
}

// surface returns err when the policy raises and nil otherwise.
func (p errorPolicy) surface(err *Error) error {
	if err == nil {
		return nil
	}
	if p.raise {
		return err
	}
	if err.Kind == KindNoOpRequest {
		p.logger.Debug("nothing to request", zap.Error(err))
		return nil
	}
	p.logger.Warn("ad request error suppressed",
		zap.String("kind", err.Kind.String()),
		zap.Error(err))
	return nil
}
