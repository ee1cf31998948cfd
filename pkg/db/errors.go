package db

import (
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// IsUniqueViolation reports whether err is a unique constraint violation,
// optionally on the named constraint. Postgres errors are matched by
// SQLSTATE; sqlite errors, used in tests, by their message.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	if pkgerrors.SQLState(err) == pkgerrors.SQLStateUniqueViolation {
		return constraintName == "" || pkgerrors.Constraint(err) == constraintName
	}
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") && !strings.Contains(msg, "duplicate key value") {
		return false
	}
	return constraintName == "" || strings.Contains(msg, constraintName)
}

// IsCheckViolation reports whether err broke a CHECK constraint, such as the
// non-negative stock guard.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if pkgerrors.SQLState(err) == pkgerrors.SQLStateCheckViolation {
		return true
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}
