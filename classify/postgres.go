package classify

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Postgres classifies driver errors from both pgx/v5 and lib/pq by
// SQLSTATE, plus database/sql sentinels. Both drivers are in use across
// services, so both error shapes are handled here.
var Postgres Classifier = ClassifierFunc(func(err error) *Error {
	if errors.Is(err, sql.ErrNoRows) {
		return permanent(KindNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifySQLState(string(pqErr.Code), err)
	}

	return Default.Classify(err)
})

// classifySQLState maps SQLSTATE codes onto the taxonomy. Class prefixes
// (first two characters) cover whole families; specific codes that need a
// different treatment are matched first.
func classifySQLState(code string, cause error) *Error {
	switch code {
	case "40001", "40P01": // serialization_failure, deadlock_detected
		return retryable(KindLockContention, LockContentionDelay, cause)
	case "55P03": // lock_not_available
		return retryable(KindLockContention, LockContentionDelay, cause)
	case "53300", "53400": // too_many_connections, configuration_limit_exceeded
		return retryable(KindPoolExhausted, PoolExhaustedDelay, cause)
	case "57014": // query_canceled (statement_timeout)
		return retryable(KindTimeout, TimeoutDelay, cause)
	case "57P03": // cannot_connect_now
		return retryable(KindServiceUnavailable, UnavailableDelay, cause)
	}

	if len(code) < 2 {
		return permanent(KindUnknown, cause)
	}

	switch code[:2] {
	case "08": // connection exceptions
		return retryable(KindServiceUnavailable, UnavailableDelay, cause)
	case "23": // integrity constraint violations
		return permanent(KindConstraintViolation, cause)
	case "22", "42": // data exceptions, syntax/access errors
		return permanent(KindValidation, cause)
	case "28": // invalid authorization
		return permanent(KindAuth, cause)
	case "53": // other insufficient resources
		return retryable(KindPoolExhausted, PoolExhaustedDelay, cause)
	}

	// Connection-level failures from the driver itself.
	if isConnectionError(cause) {
		return retryable(KindServiceUnavailable, UnavailableDelay, cause)
	}

	return permanent(KindUnknown, cause)
}

func isConnectionError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}
