package sqlixx

import (
	"errors"
	"fmt"
)

// define all package level errors here

// ErrUsage marks precondition violations: operations on an empty handle,
// nil arguments, unknown parameter or column names requested through the
// Required accessors. These are caller bugs, not engine failures.
var ErrUsage = errors.New("sqlixx: usage error")

// ErrNoMem is returned when the engine reports allocation failure without
// producing a usable handle, so not even an error message can be read.
var ErrNoMem = errors.New("sqlixx: out of memory")

// Category sentinels for errors.Is matching against engine errors.
var (
	ErrGeneric    = errors.New("sqlixx: generic engine error")
	ErrBusy       = errors.New("sqlixx: database is busy")
	ErrLocked     = errors.New("sqlixx: database is locked")
	ErrInterrupt  = errors.New("sqlixx: operation interrupted")
	ErrIO         = errors.New("sqlixx: disk I/O error")
	ErrCorrupt    = errors.New("sqlixx: database is corrupt")
	ErrFull       = errors.New("sqlixx: database or disk is full")
	ErrCantOpen   = errors.New("sqlixx: unable to open database file")
	ErrConstraint = errors.New("sqlixx: constraint failed")
	ErrMisuse     = errors.New("sqlixx: API misuse")
	ErrRange      = errors.New("sqlixx: index out of range")
	ErrReadOnly   = errors.New("sqlixx: database is read-only")
	ErrNotADB     = errors.New("sqlixx: not a database")
)

// Error is an engine failure: the numeric result code reported by the engine
// plus a descriptive message carrying, where available, the offending SQL and
// the db-level error text.
type Error struct {
	Code    ResultCode
	Message string
}

func (e *Error) Error() string {
	name := sqlite3_errstr(e.Code)
	if name == "" {
		name = fmt.Sprintf("code %d", e.Code)
	}
	if e.Message == "" {
		return "sqlixx: " + name
	}
	return fmt.Sprintf("sqlixx: %s: %s", e.Message, name)
}

// Is matches another *Error by code, or one of the category sentinels by the
// primary result code, so callers can write errors.Is(err, ErrConstraint)
// without caring about extended codes.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Code == e.Code
	}
	switch e.Code.Primary() {
	case SQLITE_ERROR:
		return target == ErrGeneric
	case SQLITE_BUSY:
		return target == ErrBusy
	case SQLITE_LOCKED:
		return target == ErrLocked
	case SQLITE_NOMEM:
		return target == ErrNoMem
	case SQLITE_INTERRUPT:
		return target == ErrInterrupt
	case SQLITE_IOERR:
		return target == ErrIO
	case SQLITE_CORRUPT:
		return target == ErrCorrupt
	case SQLITE_FULL:
		return target == ErrFull
	case SQLITE_CANTOPEN:
		return target == ErrCantOpen
	case SQLITE_CONSTRAINT:
		return target == ErrConstraint
	case SQLITE_MISUSE:
		return target == ErrMisuse
	case SQLITE_RANGE:
		return target == ErrRange
	case SQLITE_READONLY:
		return target == ErrReadOnly
	case SQLITE_NOTADB:
		return target == ErrNotADB
	}
	return false
}

// engineError wraps a nonzero result code, appending the db-level error text
// when a handle is available.
func engineError(db SqliteDB, code ResultCode, context string) *Error {
	if msg := sqlite3_errmsg(db); msg != "" {
		context = fmt.Sprintf("%s (%s)", context, msg)
	}
	return &Error{Code: code, Message: context}
}

// checkBind converts the status of a bind call, attaching the connection's
// error text.
func checkBind(stmt SqliteStmt, code ResultCode) error {
	if code == SQLITE_OK {
		return nil
	}
	return engineError(sqlite3_db_handle(stmt), code,
		"cannot bind a parameter to prepared statement")
}

func usagef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUsage}, args...)...)
}
