package sqlixx

import "fmt"

// Statement wraps a prepared statement handle, tracking the outcome of the
// most recent step so binds and executions can be sequenced safely. The
// zero value is not usable; obtain instances from Connection.Prepare or
// NewStatement.
//
// Parameter and column indexes in this API are zero-based throughout, even
// though the engine numbers parameters from 1.
type Statement struct {
	db   SqliteDB
	stmt SqliteStmt
	sql  string

	// lastStep is the result of the most recent sqlite3_step, or
	// stepNone when the statement has not been stepped since the last
	// reset (or at all).
	lastStep ResultCode
}

const stepNone ResultCode = -1

// NewStatement adopts a raw prepared-statement handle. The Statement takes
// over finalization; the handle must not be finalized elsewhere.
func NewStatement(stmt SqliteStmt) (*Statement, error) {
	if stmt == nil {
		return nil, usagef("nil statement handle")
	}
	return &Statement{
		db:       sqlite3_db_handle(stmt),
		stmt:     stmt,
		lastStep: stepNone,
	}, nil
}

/**
 * Returns the underlying prepared-statement handle, or nil after Close.
 */
func (s *Statement) Handle() SqliteStmt {
	return s.stmt
}

// IsOpen reports whether the statement still owns a live handle.
func (s *Statement) IsOpen() bool {
	return s != nil && s.stmt != nil
}

/**
 * Finalizes the statement. Returns the error of the most recent failed step,
 * if any, the way sqlite3_finalize does. Closing an already closed statement
 * is a no-op.
 */
func (s *Statement) Close() error {
	if s.stmt == nil {
		return nil
	}
	db, stmt := s.db, s.stmt
	s.stmt = nil
	s.db = nil
	s.lastStep = stepNone
	if rc := sqlite3_finalize(stmt); rc != SQLITE_OK {
		return engineError(db, rc, "finalize statement")
	}
	return nil
}

// Release detaches and returns the raw handle without finalizing it. The
// caller becomes responsible for sqlite3_finalize.
func (s *Statement) Release() SqliteStmt {
	stmt := s.stmt
	s.stmt = nil
	s.db = nil
	s.lastStep = stepNone
	return stmt
}

func (s *Statement) checkOpen() error {
	if s == nil || s.stmt == nil {
		return usagef("statement is closed")
	}
	return nil
}

/** Returns the number of parameter slots of the statement. */
func (s *Statement) ParameterCount() int {
	if s.stmt == nil {
		return 0
	}
	return sqlite3_bind_parameter_count(s.stmt)
}

/**
 * Returns the zero-based index of the named parameter, or -1 when the
 * statement has no such parameter. The name includes its prefix character,
 * for example ":id".
 */
func (s *Statement) ParameterIndex(name string) int {
	if s.stmt == nil {
		return -1
	}
	return sqlite3_bind_parameter_index(s.stmt, name) - 1
}

// RequiredParameterIndex is ParameterIndex that treats an unknown name as a
// usage error.
func (s *Statement) RequiredParameterIndex(name string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return -1, err
	}
	index := s.ParameterIndex(name)
	if index < 0 {
		return -1, usagef("no parameter %q", name)
	}
	return index, nil
}

/**
 * Returns the name of the parameter at the zero-based index, or "" when the
 * parameter is nameless or the index is out of range.
 */
func (s *Statement) ParameterName(index int) string {
	if s.stmt == nil || index < 0 {
		return ""
	}
	return sqlite3_bind_parameter_name(s.stmt, index+1)
}

// bindCheck rejects binds while a row sequence is in flight, and resets the
// statement first when the previous execution ran to completion so the new
// values take effect on a fresh run.
func (s *Statement) bindCheck(index int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if index < 0 || index >= s.ParameterCount() {
		return usagef("parameter index %d out of range", index)
	}
	switch s.lastStep {
	case stepNone:
		return nil
	case SQLITE_DONE:
		return s.Reset()
	default:
		return usagef("cannot bind while statement has pending rows")
	}
}

/** Binds NULL to the parameter at the zero-based index. */
func (s *Statement) BindNull(index int) error {
	if err := s.bindCheck(index); err != nil {
		return err
	}
	return checkBind(s.stmt, sqlite3_bind_null(s.stmt, index+1))
}

/**
 * Binds value to the parameter at the zero-based index. See bindValue for
 * the supported types. Binding a *Data that owns its bytes hands the bytes
 * to the engine and empties the wrapper, whether or not the bind succeeds.
 */
func (s *Statement) Bind(index int, value any) error {
	if err := s.bindCheck(index); err != nil {
		return err
	}
	return bindValue(s, index, value)
}

// BindName binds value to the named parameter; an unknown name is a usage
// error.
func (s *Statement) BindName(name string, value any) error {
	index, err := s.RequiredParameterIndex(name)
	if err != nil {
		return err
	}
	return s.Bind(index, value)
}

// BindMany binds values to parameters 0..len(values)-1 in order.
func (s *Statement) BindMany(values ...any) error {
	for i, v := range values {
		if err := s.Bind(i, v); err != nil {
			return err
		}
	}
	return nil
}

/** Resets all parameter slots to NULL. */
func (s *Statement) ClearBindings() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if rc := sqlite3_clear_bindings(s.stmt); rc != SQLITE_OK {
		return engineError(s.db, rc, "clear bindings")
	}
	return nil
}

/**
 * Rewinds the statement so it can be executed again. Bindings are kept.
 */
func (s *Statement) Reset() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.lastStep = stepNone
	if rc := sqlite3_reset(s.stmt); rc != SQLITE_OK {
		return engineError(s.db, rc, "reset statement")
	}
	return nil
}

/**
 * Advances the statement one step. Returns SQLITE_ROW when a row is
 * available, SQLITE_DONE on completion, or the failure code together with
 * the engine error. The outcome is recorded for the bind and result guards.
 */
func (s *Statement) Step() (ResultCode, error) {
	if err := s.checkOpen(); err != nil {
		return SQLITE_MISUSE, err
	}
	rc := sqlite3_step(s.stmt)
	s.lastStep = rc
	if rc != SQLITE_ROW && rc != SQLITE_DONE {
		return rc, engineError(s.db, rc, "cannot step "+s.describe())
	}
	return rc, nil
}

// describe names the statement in error messages, quoting its SQL when known.
func (s *Statement) describe() string {
	if s.sql == "" {
		return "statement"
	}
	return fmt.Sprintf("statement %q", s.sql)
}

// Execute binds values to parameters 0..len(values)-1, then steps the
// statement to completion, invoking callback once per result row. When the
// previous Execute ran to completion the statement is reset automatically,
// so a Statement can be executed repeatedly without explicit Reset calls.
//
// callback may be:
//
//	nil                               rows are stepped over and discarded
//	func(s *Statement)                called per row, runs to completion
//	func(s *Statement) bool           returning false stops after that row
//	func(s *Statement, rc ResultCode)        also sees the final non-row code
//	func(s *Statement, rc ResultCode) bool   both of the above
//
// The two-argument forms receive SQLITE_ROW for each row and then one final
// call carrying the terminal code; with those forms step failures are
// reported through the callback instead of the error return, and the
// returned code is the terminal code either way.
func (s *Statement) Execute(callback any, values ...any) (ResultCode, error) {
	perRow, atEnd, wantsCode, err := normalizeCallback(callback)
	if err != nil {
		return SQLITE_MISUSE, err
	}
	if err := s.BindMany(values...); err != nil {
		return SQLITE_MISUSE, err
	}
	if err := s.checkOpen(); err != nil {
		return SQLITE_MISUSE, err
	}
	if s.lastStep == SQLITE_DONE {
		if err := s.Reset(); err != nil {
			return SQLITE_MISUSE, err
		}
	}
	for {
		rc := sqlite3_step(s.stmt)
		s.lastStep = rc
		switch rc {
		case SQLITE_ROW:
			if !perRow(s, rc) {
				return rc, nil
			}
		case SQLITE_DONE:
			atEnd(s, rc)
			return rc, nil
		default:
			if wantsCode {
				atEnd(s, rc)
				return rc, nil
			}
			return rc, engineError(s.db, rc, "cannot execute "+s.describe())
		}
	}
}

// normalizeCallback maps the accepted callback shapes onto a per-row hook
// returning whether to continue, and an end-of-rows hook. wantsCode marks
// the shapes that take the terminal code themselves.
func normalizeCallback(callback any) (perRow func(*Statement, ResultCode) bool, atEnd func(*Statement, ResultCode), wantsCode bool, err error) {
	nop := func(*Statement, ResultCode) {}
	switch cb := callback.(type) {
	case nil:
		return func(*Statement, ResultCode) bool { return true }, nop, false, nil
	case func(*Statement):
		return func(s *Statement, _ ResultCode) bool {
			cb(s)
			return true
		}, nop, false, nil
	case func(*Statement) bool:
		return func(s *Statement, _ ResultCode) bool {
			return cb(s)
		}, nop, false, nil
	case func(*Statement, ResultCode):
		return func(s *Statement, rc ResultCode) bool {
			cb(s, rc)
			return true
		}, cb, true, nil
	case func(*Statement, ResultCode) bool:
		return func(s *Statement, rc ResultCode) bool {
			return cb(s, rc)
		}, func(s *Statement, rc ResultCode) { cb(s, rc) }, true, nil
	default:
		return nil, nil, false, usagef("unsupported callback type %T", callback)
	}
}

/** Returns the number of result columns of the statement. */
func (s *Statement) ColumnCount() int {
	if s.stmt == nil {
		return 0
	}
	return sqlite3_column_count(s.stmt)
}

/** Returns the name of the result column at the zero-based index. */
func (s *Statement) ColumnName(index int) string {
	if s.stmt == nil || index < 0 || index >= s.ColumnCount() {
		return ""
	}
	return sqlite3_column_name(s.stmt, index)
}

/**
 * Returns the zero-based index of the named result column, or -1 when the
 * statement has no such column.
 */
func (s *Statement) ColumnIndex(name string) int {
	for i, n := 0, s.ColumnCount(); i < n; i++ {
		if s.ColumnName(i) == name {
			return i
		}
	}
	return -1
}

// RequiredColumnIndex is ColumnIndex that treats an unknown name as a usage
// error.
func (s *Statement) RequiredColumnIndex(name string) (int, error) {
	if err := s.checkOpen(); err != nil {
		return -1, err
	}
	index := s.ColumnIndex(name)
	if index < 0 {
		return -1, usagef("no column %q", name)
	}
	return index, nil
}

// ColumnType returns the storage class of the column in the current row.
func (s *Statement) ColumnType(index int) ColumnType {
	if s.stmt == nil {
		return 0
	}
	return sqlite3_column_type(s.stmt, index)
}

// ColumnDecltype returns the declared type of the column, or "" for
// expression columns.
func (s *Statement) ColumnDecltype(index int) string {
	if s.stmt == nil {
		return ""
	}
	return sqlite3_column_decltype(s.stmt, index)
}

// resultCheck guards row reads: a row must have been produced by the most
// recent step and the index must address an existing column.
func (s *Statement) resultCheck(index int) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.lastStep != SQLITE_ROW {
		return usagef("no row available")
	}
	if index < 0 || index >= s.ColumnCount() {
		return usagef("column index %d out of range", index)
	}
	return nil
}

/**
 * Returns the column at the zero-based index of the current row as a
 * borrowed Data view in the requested encoding (EncodingNone for the raw
 * blob, EncodingUTF8 or EncodingUTF16 for text). The view is valid until
 * the next step, reset or close.
 */
func (s *Statement) ColumnData(index int, enc TextEncoding) (Data, error) {
	if err := s.resultCheck(index); err != nil {
		return Data{}, err
	}
	switch enc {
	case EncodingNone:
		return ViewData(
			sqlite3_column_blob(s.stmt, index),
			uint64(sqlite3_column_bytes(s.stmt, index)),
			EncodingNone,
		), nil
	case EncodingUTF8:
		return ViewData(
			sqlite3_column_text(s.stmt, index),
			uint64(sqlite3_column_bytes(s.stmt, index)),
			EncodingUTF8,
		), nil
	case EncodingUTF16, EncodingUTF16LE, EncodingUTF16BE:
		return ViewData(
			sqlite3_column_text16(s.stmt, index),
			uint64(sqlite3_column_bytes16(s.stmt, index)),
			EncodingUTF16,
		), nil
	default:
		return Data{}, usagef("unsupported encoding %d", enc)
	}
}
