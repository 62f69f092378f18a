package errors

import (
	"context"
	stdErrors "errors"
	"net"
)

// Kind is the user-facing error taxonomy surfaced by the storefront engine.
type Kind string

const (
	KindNone         Kind = ""
	KindValidation   Kind = "validation"
	KindAuthRequired Kind = "auth_required"
	KindNetwork      Kind = "network"
	KindProcessor    Kind = "processor"
	KindServerLogic  Kind = "server_logic"
)

// KindOf classifies err. Coded errors take the kind of their code; bare
// timeouts, cancellations and net errors are network errors; anything else
// is server logic.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case As(err) != nil:
		return MetadataFor(As(err).Code()).Kind
	case stdErrors.Is(err, context.DeadlineExceeded), stdErrors.Is(err, context.Canceled):
		return KindNetwork
	}
	var netErr net.Error
	if stdErrors.As(err, &netErr) {
		return KindNetwork
	}
	return KindServerLogic
}

// Retryable reports whether a later attempt at the same call may succeed.
func Retryable(err error) bool {
	if typed := As(err); typed != nil {
		return MetadataFor(typed.Code()).Retryable
	}
	return KindOf(err) == KindNetwork
}
