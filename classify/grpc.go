package classify

import (
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPC classifies gRPC status errors. A RetryInfo detail attached by the
// server becomes the suggested delay, the same way Retry-After is honored
// for HTTP.
var GRPC Classifier = ClassifierFunc(func(err error) *Error {
	st, ok := status.FromError(err)
	if !ok {
		return Default.Classify(err)
	}

	switch st.Code() {
	case codes.DeadlineExceeded:
		return retryable(KindTimeout, TimeoutDelay, err)
	case codes.Unavailable:
		return withRetryInfo(retryable(KindServiceUnavailable, UnavailableDelay, err), st)
	case codes.ResourceExhausted:
		return withRetryInfo(retryable(KindRateLimit, RateLimitDelay, err), st)
	case codes.Aborted:
		return retryable(KindLockContention, LockContentionDelay, err)
	case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition:
		return permanent(KindValidation, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return permanent(KindAuth, err)
	case codes.NotFound:
		return permanent(KindNotFound, err)
	case codes.AlreadyExists:
		return permanent(KindConstraintViolation, err)
	case codes.Canceled:
		return permanent(KindCancelled, err)
	}

	return permanent(KindUnknown, err)
})

// withRetryInfo overrides the suggested delay with the server-provided
// RetryInfo detail when present.
func withRetryInfo(ce *Error, st *status.Status) *Error {
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.RetryInfo); ok && info.GetRetryDelay() != nil {
			if d := info.GetRetryDelay().AsDuration(); d > 0 {
				ce.SuggestedDelay = d
			}
		}
	}
	return ce
}
