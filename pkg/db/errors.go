package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

const (
	pgUniqueViolation       = "23505"
	pgSerializationFailure  = "40001"
	pgDeadlockDetected      = "40P01"
	sqliteUniqueFailureText = "UNIQUE constraint failed"
)

// IsUniqueViolation reports whether err is a unique constraint violation.
// When constraintName is provided, the constraint must also be named in the error.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	matched := pkgerrors.PGCode(err) == pgUniqueViolation ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, sqliteUniqueFailureText)
	if !matched {
		return false
	}
	if constraintName != "" {
		return strings.Contains(msg, constraintName) || pgConstraint(err) == constraintName
	}
	return true
}

// IsSerializationFailure reports whether Postgres aborted the transaction
// because of a serialization conflict or deadlock.
func IsSerializationFailure(err error) bool {
	switch pkgerrors.PGCode(err) {
	case pgSerializationFailure, pgDeadlockDetected:
		return true
	}
	return false
}

func pgConstraint(err error) string {
	return pkgerrors.Dump(err).PGConstraint
}
