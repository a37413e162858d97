package classify

import (
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Server-side error prefixes that indicate a temporarily unusable node.
var redisUnavailablePrefixes = []string{
	"LOADING",
	"CLUSTERDOWN",
	"MASTERDOWN",
	"READONLY",
	"TRYAGAIN",
}

// Redis classifies go-redis/v9 failures. The client reports pool
// saturation and server states through error text, so matching follows
// the same pattern-based approach used for provider throttle detection.
var Redis Classifier = ClassifierFunc(func(err error) *Error {
	if errors.Is(err, redis.Nil) {
		return permanent(KindNotFound, err)
	}

	msg := err.Error()
	for _, prefix := range redisUnavailablePrefixes {
		if strings.HasPrefix(msg, prefix) {
			return retryable(KindServiceUnavailable, UnavailableDelay, err)
		}
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "connection pool timeout"):
		return retryable(KindPoolExhausted, PoolExhaustedDelay, err)
	case strings.Contains(lower, "max number of clients reached"):
		return retryable(KindPoolExhausted, PoolExhaustedDelay, err)
	case strings.HasPrefix(msg, "NOAUTH"), strings.HasPrefix(msg, "WRONGPASS"):
		return permanent(KindAuth, err)
	case strings.Contains(lower, "connection refused"),
		strings.Contains(lower, "connection reset"):
		return retryable(KindServiceUnavailable, UnavailableDelay, err)
	}

	return Default.Classify(err)
})
