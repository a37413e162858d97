package classify

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// StatusError carries a non-2xx HTTP response through the error chain so
// the HTTP classifier can map it onto the taxonomy.
type StatusError struct {
	Code       int
	Status     string
	RetryAfter time.Duration // parsed Retry-After header, 0 if absent
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d %s", e.Code, e.Status)
}

// CheckResponse converts a non-2xx response into a *StatusError and drains
// the body so the underlying connection can be reused. 2xx responses
// return nil.
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return &StatusError{
		Code:       resp.StatusCode,
		Status:     http.StatusText(resp.StatusCode),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter handles the delay-seconds form of the header. The
// HTTP-date form is rare in API traffic and falls back to 0.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// HTTP classifies failures from HTTP clients: status errors produced by
// CheckResponse, URL errors, and network timeouts.
var HTTP Classifier = ClassifierFunc(func(err error) *Error {
	var se *StatusError
	if errors.As(err, &se) {
		return classifyStatus(se, err)
	}

	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return retryable(KindTimeout, TimeoutDelay, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return retryable(KindTimeout, TimeoutDelay, err)
	}

	return Default.Classify(err)
})

func classifyStatus(se *StatusError, cause error) *Error {
	switch se.Code {
	case http.StatusTooManyRequests:
		delay := RateLimitDelay
		if se.RetryAfter > 0 {
			delay = se.RetryAfter
		}
		return retryable(KindRateLimit, delay, cause)
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return retryable(KindServiceUnavailable, UnavailableDelay, cause)
	case http.StatusRequestTimeout:
		return retryable(KindTimeout, TimeoutDelay, cause)
	case http.StatusUnauthorized, http.StatusForbidden:
		return permanent(KindAuth, cause)
	case http.StatusNotFound:
		return permanent(KindNotFound, cause)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return permanent(KindValidation, cause)
	case http.StatusConflict:
		return permanent(KindConstraintViolation, cause)
	}

	if se.Code >= 500 {
		return retryable(KindServiceUnavailable, UnavailableDelay, cause)
	}
	return permanent(KindUnknown, cause)
}
