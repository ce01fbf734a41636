package ws

import (
	"errors"

	"github.com/vedran77/pulsefeed/internal/repository"
	"github.com/vedran77/pulsefeed/internal/service"
)

// errorPayload maps a service error onto the code clients switch on.
func errorPayload(err error) ErrorPayload {
	var verr *service.ValidationError
	var perr *service.PersistenceError
	var serr *service.SubscriptionError

	switch {
	case errors.As(err, &verr):
		return ErrorPayload{Code: "VALIDATION_ERROR", Message: "Invalid input", Fields: verr.Fields}
	case service.IsAuthError(err):
		return ErrorPayload{Code: "UNAUTHORIZED", Message: "Sign in again to continue"}
	case errors.As(err, &perr):
		return ErrorPayload{Code: "SEND_FAILED", Message: kindMessage(perr.Kind)}
	case errors.As(err, &serr):
		return ErrorPayload{Code: "SUBSCRIPTION_FAILED", Message: kindMessage(serr.Kind)}
	case errors.Is(err, service.ErrPendingNotFound):
		return ErrorPayload{Code: "NOT_FOUND", Message: "Message not found"}
	case errors.Is(err, service.ErrNotFailed):
		return ErrorPayload{Code: "NOT_FAILED", Message: "Only failed messages can be retried or discarded"}
	default:
		return ErrorPayload{Code: "INTERNAL", Message: "Something went wrong"}
	}
}

func kindMessage(kind repository.ErrorKind) string {
	switch kind {
	case repository.KindPermissionDenied:
		return "You do not have access to this page"
	case repository.KindUnavailable:
		return "Service unavailable, try again"
	case repository.KindUnauthenticated:
		return "Sign in again to continue"
	default:
		return "Something went wrong"
	}
}
