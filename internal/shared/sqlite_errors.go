// Package shared holds small helpers needed by more than one layer.
//
//nolint:revive // "shared" is an intentional package name for cross-cutting helpers.
package shared

import "strings"

// The modernc driver surfaces lock contention as message text, either the
// SQLITE_BUSY result code or the "database is locked" wording, with no
// exported sentinel to match on.
const (
	sqliteBusyMarker   = "SQLITE_BUSY"
	sqliteLockedMarker = "database is locked"
)

// IsSQLiteBusyError reports whether err carries the SQLITE_BUSY result code.
func IsSQLiteBusyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), sqliteBusyMarker)
}

// IsSQLiteLockedError reports whether err is a "database is locked" failure.
func IsSQLiteLockedError(err error) bool {
	return err != nil && strings.Contains(err.Error(), sqliteLockedMarker)
}

// IsSQLiteConflictError reports whether err is either form of SQLite lock
// contention. Conflicts are transient and the write should be retried.
func IsSQLiteConflictError(err error) bool {
	return IsSQLiteBusyError(err) || IsSQLiteLockedError(err)
}
