package sqlixx

import (
	"runtime"
	"unsafe"

	"github.com/ebitengine/purego"
)

// define all necessary constants first

// ResultCode is a status code returned by the engine. ROW and DONE are
// statuses of a step; everything nonzero besides them is an error.
type ResultCode int32

const (
	SQLITE_OK         ResultCode = 0
	SQLITE_ERROR      ResultCode = 1
	SQLITE_INTERNAL   ResultCode = 2
	SQLITE_PERM       ResultCode = 3
	SQLITE_ABORT      ResultCode = 4
	SQLITE_BUSY       ResultCode = 5
	SQLITE_LOCKED     ResultCode = 6
	SQLITE_NOMEM      ResultCode = 7
	SQLITE_READONLY   ResultCode = 8
	SQLITE_INTERRUPT  ResultCode = 9
	SQLITE_IOERR      ResultCode = 10
	SQLITE_CORRUPT    ResultCode = 11
	SQLITE_NOTFOUND   ResultCode = 12
	SQLITE_FULL       ResultCode = 13
	SQLITE_CANTOPEN   ResultCode = 14
	SQLITE_PROTOCOL   ResultCode = 15
	SQLITE_EMPTY      ResultCode = 16
	SQLITE_SCHEMA     ResultCode = 17
	SQLITE_TOOBIG     ResultCode = 18
	SQLITE_CONSTRAINT ResultCode = 19
	SQLITE_MISMATCH   ResultCode = 20
	SQLITE_MISUSE     ResultCode = 21
	SQLITE_NOLFS      ResultCode = 22
	SQLITE_AUTH       ResultCode = 23
	SQLITE_FORMAT     ResultCode = 24
	SQLITE_RANGE      ResultCode = 25
	SQLITE_NOTADB     ResultCode = 26
	SQLITE_NOTICE     ResultCode = 27
	SQLITE_WARNING    ResultCode = 28
	SQLITE_ROW        ResultCode = 100
	SQLITE_DONE       ResultCode = 101
)

// Primary returns the primary result code of an extended code.
func (c ResultCode) Primary() ResultCode { return c & 0xff }

// ColumnType is the dynamic type of a result column value.
type ColumnType int32

const (
	SQLITE_INTEGER ColumnType = 1
	SQLITE_FLOAT   ColumnType = 2
	SQLITE_TEXT    ColumnType = 3
	SQLITE_BLOB    ColumnType = 4
	SQLITE_NULL    ColumnType = 5
)

// TextEncoding tags text payloads; EncodingNone marks raw blob data.
type TextEncoding uint8

const (
	EncodingNone    TextEncoding = 0
	EncodingUTF8    TextEncoding = 1
	EncodingUTF16LE TextEncoding = 2
	EncodingUTF16BE TextEncoding = 3
	EncodingUTF16   TextEncoding = 4
)

// OpenFlag is a bit flag accepted by Open and passed through to the engine.
type OpenFlag int32

const (
	SQLITE_OPEN_READONLY     OpenFlag = 0x00000001
	SQLITE_OPEN_READWRITE    OpenFlag = 0x00000002
	SQLITE_OPEN_CREATE       OpenFlag = 0x00000004
	SQLITE_OPEN_URI          OpenFlag = 0x00000040
	SQLITE_OPEN_MEMORY       OpenFlag = 0x00000080
	SQLITE_OPEN_NOMUTEX      OpenFlag = 0x00008000
	SQLITE_OPEN_FULLMUTEX    OpenFlag = 0x00010000
	SQLITE_OPEN_SHAREDCACHE  OpenFlag = 0x00020000
	SQLITE_OPEN_PRIVATECACHE OpenFlag = 0x00040000
	SQLITE_OPEN_NOFOLLOW     OpenFlag = 0x01000000
	SQLITE_OPEN_EXRESCODE    OpenFlag = 0x02000000
)

// PrepareFlag is a bit flag accepted by Connection.PrepareFlags.
type PrepareFlag uint32

const (
	SQLITE_PREPARE_PERSISTENT PrepareFlag = 0x01
	SQLITE_PREPARE_NORMALIZE  PrepareFlag = 0x02
	SQLITE_PREPARE_NO_VTAB    PrepareFlag = 0x04
)

// Special destructor values for bind_text64/bind_blob64: STATIC tells the
// engine the bytes outlive the statement, TRANSIENT forces an immediate copy.
const (
	sqliteStatic    uintptr = 0
	sqliteTransient uintptr = ^uintptr(0)
)

// sqlite3_config operation for the global log callback.
const sqliteConfigLog int32 = 16

// define opaque pointers as-is and accept them as exact arguments
type sqlite3_db_t struct{}
type sqlite3_stmt_t struct{}

type SqliteDB *sqlite3_db_t
type SqliteStmt *sqlite3_stmt_t

// then, define C extern methods
var (
	// always keep low level types (pointers, numbers) here - never mix them
	// with exported wrapper types
	c_sqlite3_libversion func() unsafe.Pointer // const char*

	c_sqlite3_config func(
		op int32,
		xLog uintptr, // void (*)(void*, int, const char*)
		pArg uintptr,
	) int32

	c_sqlite3_open_v2 func(
		filename string, // const char*
		ppDb unsafe.Pointer, // sqlite3**
		flags int32,
		vfs uintptr, // const char* | NULL
	) int32

	c_sqlite3_close func(
		db unsafe.Pointer, // sqlite3*
	) int32

	c_sqlite3_errmsg func(
		db unsafe.Pointer,
	) unsafe.Pointer // const char*

	c_sqlite3_errstr func(
		code int32,
	) unsafe.Pointer // const char*

	c_sqlite3_get_autocommit func(
		db unsafe.Pointer,
	) int32

	c_sqlite3_last_insert_rowid func(
		db unsafe.Pointer,
	) int64

	c_sqlite3_changes64 func(
		db unsafe.Pointer,
	) int64

	c_sqlite3_busy_timeout func(
		db unsafe.Pointer,
		ms int32,
	) int32

	c_sqlite3_prepare_v3 func(
		db unsafe.Pointer,
		sql unsafe.Pointer, // const char*
		nByte int32,
		prepFlags uint32,
		ppStmt unsafe.Pointer, // sqlite3_stmt**
		pzTail unsafe.Pointer, // const char**
	) int32

	c_sqlite3_finalize func(
		stmt unsafe.Pointer, // sqlite3_stmt*
	) int32

	c_sqlite3_step func(
		stmt unsafe.Pointer,
	) int32

	c_sqlite3_reset func(
		stmt unsafe.Pointer,
	) int32

	c_sqlite3_clear_bindings func(
		stmt unsafe.Pointer,
	) int32

	c_sqlite3_db_handle func(
		stmt unsafe.Pointer,
	) unsafe.Pointer // sqlite3*

	c_sqlite3_bind_parameter_count func(
		stmt unsafe.Pointer,
	) int32

	c_sqlite3_bind_parameter_index func(
		stmt unsafe.Pointer,
		name string, // const char*
	) int32

	c_sqlite3_bind_parameter_name func(
		stmt unsafe.Pointer,
		pos int32,
	) unsafe.Pointer // const char*

	c_sqlite3_bind_null func(
		stmt unsafe.Pointer,
		pos int32,
	) int32

	c_sqlite3_bind_int64 func(
		stmt unsafe.Pointer,
		pos int32,
		value int64,
	) int32

	c_sqlite3_bind_double func(
		stmt unsafe.Pointer,
		pos int32,
		value float64,
	) int32

	c_sqlite3_bind_text64 func(
		stmt unsafe.Pointer,
		pos int32,
		data uintptr, // const char*
		size uint64,
		destructor uintptr, // void (*)(void*) | STATIC | TRANSIENT
		encoding uint8,
	) int32

	c_sqlite3_bind_blob64 func(
		stmt unsafe.Pointer,
		pos int32,
		data uintptr, // const void*
		size uint64,
		destructor uintptr,
	) int32

	c_sqlite3_column_count func(
		stmt unsafe.Pointer,
	) int32

	c_sqlite3_column_name func(
		stmt unsafe.Pointer,
		index int32,
	) unsafe.Pointer // const char*, owned by the engine

	c_sqlite3_column_type func(
		stmt unsafe.Pointer,
		index int32,
	) int32

	c_sqlite3_column_decltype func(
		stmt unsafe.Pointer,
		index int32,
	) unsafe.Pointer // const char* | NULL

	c_sqlite3_column_int64 func(
		stmt unsafe.Pointer,
		index int32,
	) int64

	c_sqlite3_column_double func(
		stmt unsafe.Pointer,
		index int32,
	) float64

	c_sqlite3_column_text func(
		stmt unsafe.Pointer,
		index int32,
	) unsafe.Pointer // const unsigned char*

	c_sqlite3_column_text16 func(
		stmt unsafe.Pointer,
		index int32,
	) unsafe.Pointer // const void*

	c_sqlite3_column_blob func(
		stmt unsafe.Pointer,
		index int32,
	) unsafe.Pointer // const void*

	c_sqlite3_column_bytes func(
		stmt unsafe.Pointer,
		index int32,
	) int32

	c_sqlite3_column_bytes16 func(
		stmt unsafe.Pointer,
		index int32,
	) int32
)

// implement a function to register extern methods from loaded lib
// DO NOT load the lib here - loading is done by Initialize
func register_sqlite3(handle uintptr) error {
	purego.RegisterLibFunc(&c_sqlite3_libversion, handle, "sqlite3_libversion")
	purego.RegisterLibFunc(&c_sqlite3_config, handle, "sqlite3_config")
	purego.RegisterLibFunc(&c_sqlite3_open_v2, handle, "sqlite3_open_v2")
	purego.RegisterLibFunc(&c_sqlite3_close, handle, "sqlite3_close")
	purego.RegisterLibFunc(&c_sqlite3_errmsg, handle, "sqlite3_errmsg")
	purego.RegisterLibFunc(&c_sqlite3_errstr, handle, "sqlite3_errstr")
	purego.RegisterLibFunc(&c_sqlite3_get_autocommit, handle, "sqlite3_get_autocommit")
	purego.RegisterLibFunc(&c_sqlite3_last_insert_rowid, handle, "sqlite3_last_insert_rowid")
	purego.RegisterLibFunc(&c_sqlite3_changes64, handle, "sqlite3_changes64")
	purego.RegisterLibFunc(&c_sqlite3_busy_timeout, handle, "sqlite3_busy_timeout")
	purego.RegisterLibFunc(&c_sqlite3_prepare_v3, handle, "sqlite3_prepare_v3")
	purego.RegisterLibFunc(&c_sqlite3_finalize, handle, "sqlite3_finalize")
	purego.RegisterLibFunc(&c_sqlite3_step, handle, "sqlite3_step")
	purego.RegisterLibFunc(&c_sqlite3_reset, handle, "sqlite3_reset")
	purego.RegisterLibFunc(&c_sqlite3_clear_bindings, handle, "sqlite3_clear_bindings")
	purego.RegisterLibFunc(&c_sqlite3_db_handle, handle, "sqlite3_db_handle")
	purego.RegisterLibFunc(&c_sqlite3_bind_parameter_count, handle, "sqlite3_bind_parameter_count")
	purego.RegisterLibFunc(&c_sqlite3_bind_parameter_index, handle, "sqlite3_bind_parameter_index")
	purego.RegisterLibFunc(&c_sqlite3_bind_parameter_name, handle, "sqlite3_bind_parameter_name")
	purego.RegisterLibFunc(&c_sqlite3_bind_null, handle, "sqlite3_bind_null")
	purego.RegisterLibFunc(&c_sqlite3_bind_int64, handle, "sqlite3_bind_int64")
	purego.RegisterLibFunc(&c_sqlite3_bind_double, handle, "sqlite3_bind_double")
	purego.RegisterLibFunc(&c_sqlite3_bind_text64, handle, "sqlite3_bind_text64")
	purego.RegisterLibFunc(&c_sqlite3_bind_blob64, handle, "sqlite3_bind_blob64")
	purego.RegisterLibFunc(&c_sqlite3_column_count, handle, "sqlite3_column_count")
	purego.RegisterLibFunc(&c_sqlite3_column_name, handle, "sqlite3_column_name")
	purego.RegisterLibFunc(&c_sqlite3_column_type, handle, "sqlite3_column_type")
	purego.RegisterLibFunc(&c_sqlite3_column_decltype, handle, "sqlite3_column_decltype")
	purego.RegisterLibFunc(&c_sqlite3_column_int64, handle, "sqlite3_column_int64")
	purego.RegisterLibFunc(&c_sqlite3_column_double, handle, "sqlite3_column_double")
	purego.RegisterLibFunc(&c_sqlite3_column_text, handle, "sqlite3_column_text")
	purego.RegisterLibFunc(&c_sqlite3_column_text16, handle, "sqlite3_column_text16")
	purego.RegisterLibFunc(&c_sqlite3_column_blob, handle, "sqlite3_column_blob")
	purego.RegisterLibFunc(&c_sqlite3_column_bytes, handle, "sqlite3_column_bytes")
	purego.RegisterLibFunc(&c_sqlite3_column_bytes16, handle, "sqlite3_column_bytes16")
	return nil
}

// Helpers

func copyCString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	base := uintptr(p)
	n := 0
	for {
		b := *(*byte)(unsafe.Pointer(base + uintptr(n)))
		if b == 0 {
			break
		}
		n++
	}
	if n == 0 {
		return ""
	}
	buf := make([]byte, n)
	copy(buf, unsafe.Slice((*byte)(p), n))
	return string(buf)
}

func copyCBytes(p unsafe.Pointer, n int) []byte {
	if p == nil || n <= 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(p), n))
	return out
}

func cStringPtr(s string) (ptr unsafe.Pointer, keepAlive func()) {
	// Allocate Go memory with null terminator; valid during the call
	b := make([]byte, len(s)+1)
	copy(b, s)
	return unsafe.Pointer(&b[0]), func() { runtime.KeepAlive(b) }
}

// Go wrappers over imported C bindings.
//
// Wrappers return raw ResultCode values; the error model layers on top of
// them (see errors.go) so that call sites can attach the offending SQL and
// the db-level error text.

/** Return the engine version string */
func sqlite3_libversion() string {
	return copyCString(c_sqlite3_libversion())
}

/** Open a database, returning the handle even on failure so the caller can
 * read the error message and close it (NULL handle means allocation failure)
 */
func sqlite3_open_v2(ref string, flags OpenFlag) (SqliteDB, ResultCode) {
	var db SqliteDB
	code := c_sqlite3_open_v2(ref, unsafe.Pointer(&db), int32(flags), 0)
	return db, ResultCode(code)
}

/** Close the database handle; close of a NULL handle is a harmless no-op */
func sqlite3_close(db SqliteDB) ResultCode {
	return ResultCode(c_sqlite3_close(unsafe.Pointer(db)))
}

/** Return the most recent db-level error message */
func sqlite3_errmsg(db SqliteDB) string {
	if db == nil {
		return ""
	}
	return copyCString(c_sqlite3_errmsg(unsafe.Pointer(db)))
}

/** Return the English description of a result code */
func sqlite3_errstr(code ResultCode) string {
	if c_sqlite3_errstr == nil {
		return ""
	}
	return copyCString(c_sqlite3_errstr(int32(code)))
}

/** Get autocommit state of the connection */
func sqlite3_get_autocommit(db SqliteDB) bool {
	return c_sqlite3_get_autocommit(unsafe.Pointer(db)) != 0
}

/** Return the rowid of the most recent successful INSERT */
func sqlite3_last_insert_rowid(db SqliteDB) int64 {
	return c_sqlite3_last_insert_rowid(unsafe.Pointer(db))
}

/** Return the number of rows changed by the most recent statement */
func sqlite3_changes64(db SqliteDB) int64 {
	return c_sqlite3_changes64(unsafe.Pointer(db))
}

/** Set the busy handler timeout in milliseconds; 0 disables it */
func sqlite3_busy_timeout(db SqliteDB, ms int) ResultCode {
	return ResultCode(c_sqlite3_busy_timeout(unsafe.Pointer(db), int32(ms)))
}

/** Compile the first statement of sql
 * Returns the statement handle, the byte offset of the unparsed tail and
 * the result code. The handle is NULL for whitespace/comment-only input.
 */
func sqlite3_prepare_v3(db SqliteDB, sql string, flags PrepareFlag) (SqliteStmt, int, ResultCode) {
	buf, keep := cStringPtr(sql)
	var stmt SqliteStmt
	var tail unsafe.Pointer
	code := c_sqlite3_prepare_v3(
		unsafe.Pointer(db),
		buf,
		int32(len(sql)+1),
		uint32(flags),
		unsafe.Pointer(&stmt),
		unsafe.Pointer(&tail),
	)
	tailIdx := len(sql)
	if tail != nil {
		tailIdx = int(uintptr(tail) - uintptr(buf))
	}
	keep()
	if tailIdx > len(sql) {
		tailIdx = len(sql)
	}
	return stmt, tailIdx, ResultCode(code)
}

/** Finalize a statement; finalize of a NULL handle is a harmless no-op */
func sqlite3_finalize(stmt SqliteStmt) ResultCode {
	return ResultCode(c_sqlite3_finalize(unsafe.Pointer(stmt)))
}

/** Advance the statement; returns SQLITE_ROW, SQLITE_DONE or an error code */
func sqlite3_step(stmt SqliteStmt) ResultCode {
	return ResultCode(c_sqlite3_step(unsafe.Pointer(stmt)))
}

/** Rewind the statement back to the ready state, keeping bindings */
func sqlite3_reset(stmt SqliteStmt) ResultCode {
	return ResultCode(c_sqlite3_reset(unsafe.Pointer(stmt)))
}

/** Reset every parameter slot back to NULL */
func sqlite3_clear_bindings(stmt SqliteStmt) ResultCode {
	return ResultCode(c_sqlite3_clear_bindings(unsafe.Pointer(stmt)))
}

/** Return the connection handle that owns the statement */
func sqlite3_db_handle(stmt SqliteStmt) SqliteDB {
	return SqliteDB(c_sqlite3_db_handle(unsafe.Pointer(stmt)))
}

/** Return the number of parameter slots */
func sqlite3_bind_parameter_count(stmt SqliteStmt) int {
	return int(c_sqlite3_bind_parameter_count(unsafe.Pointer(stmt)))
}

/** Return the 1-based slot of a named parameter, 0 when absent */
func sqlite3_bind_parameter_index(stmt SqliteStmt, name string) int {
	return int(c_sqlite3_bind_parameter_index(unsafe.Pointer(stmt), name))
}

/** Return the name of the parameter at a 1-based slot, "" for nameless */
func sqlite3_bind_parameter_name(stmt SqliteStmt, pos int) string {
	return copyCString(c_sqlite3_bind_parameter_name(unsafe.Pointer(stmt), int32(pos)))
}

/** Bind NULL to a 1-based parameter slot */
func sqlite3_bind_null(stmt SqliteStmt, pos int) ResultCode {
	return ResultCode(c_sqlite3_bind_null(unsafe.Pointer(stmt), int32(pos)))
}

/** Bind an INTEGER to a 1-based parameter slot */
func sqlite3_bind_int64(stmt SqliteStmt, pos int, value int64) ResultCode {
	return ResultCode(c_sqlite3_bind_int64(unsafe.Pointer(stmt), int32(pos), value))
}

/** Bind a REAL to a 1-based parameter slot */
func sqlite3_bind_double(stmt SqliteStmt, pos int, value float64) ResultCode {
	return ResultCode(c_sqlite3_bind_double(unsafe.Pointer(stmt), int32(pos), value))
}

/** Bind TEXT bytes to a 1-based parameter slot
 * The destructor tells the engine who owns the bytes: TRANSIENT for an
 * immediate copy, STATIC for a borrowed view, or a callback pointer that
 * receives the bytes once the engine is done with them.
 */
func sqlite3_bind_text64(stmt SqliteStmt, pos int, data unsafe.Pointer, size uint64, destructor uintptr, enc TextEncoding) ResultCode {
	return ResultCode(c_sqlite3_bind_text64(
		unsafe.Pointer(stmt), int32(pos), uintptr(data), size, destructor, uint8(enc)))
}

/** Bind BLOB bytes to a 1-based parameter slot; ownership as for text */
func sqlite3_bind_blob64(stmt SqliteStmt, pos int, data unsafe.Pointer, size uint64, destructor uintptr) ResultCode {
	return ResultCode(c_sqlite3_bind_blob64(
		unsafe.Pointer(stmt), int32(pos), uintptr(data), size, destructor))
}

/** Return the number of result columns */
func sqlite3_column_count(stmt SqliteStmt) int {
	return int(c_sqlite3_column_count(unsafe.Pointer(stmt)))
}

/** Return the name of the column at a 0-based index
 * The engine owns the returned C string, so it is copied and never freed.
 */
func sqlite3_column_name(stmt SqliteStmt, index int) string {
	return copyCString(c_sqlite3_column_name(unsafe.Pointer(stmt), int32(index)))
}

/** Return the dynamic type of the column value in the current row */
func sqlite3_column_type(stmt SqliteStmt, index int) ColumnType {
	return ColumnType(c_sqlite3_column_type(unsafe.Pointer(stmt), int32(index)))
}

/** Return the declared type of a column, "" for expressions */
func sqlite3_column_decltype(stmt SqliteStmt, index int) string {
	return copyCString(c_sqlite3_column_decltype(unsafe.Pointer(stmt), int32(index)))
}

/** Return the column value as INTEGER */
func sqlite3_column_int64(stmt SqliteStmt, index int) int64 {
	return c_sqlite3_column_int64(unsafe.Pointer(stmt), int32(index))
}

/** Return the column value as REAL */
func sqlite3_column_double(stmt SqliteStmt, index int) float64 {
	return c_sqlite3_column_double(unsafe.Pointer(stmt), int32(index))
}

/** Return a pointer to the column value as UTF-8 text
 * Valid until the next step, reset or finalize.
 */
func sqlite3_column_text(stmt SqliteStmt, index int) unsafe.Pointer {
	return c_sqlite3_column_text(unsafe.Pointer(stmt), int32(index))
}

/** Return a pointer to the column value as UTF-16 text */
func sqlite3_column_text16(stmt SqliteStmt, index int) unsafe.Pointer {
	return c_sqlite3_column_text16(unsafe.Pointer(stmt), int32(index))
}

/** Return a pointer to the column value as a BLOB */
func sqlite3_column_blob(stmt SqliteStmt, index int) unsafe.Pointer {
	return c_sqlite3_column_blob(unsafe.Pointer(stmt), int32(index))
}

/** Return the size in bytes of the column value as UTF-8/BLOB */
func sqlite3_column_bytes(stmt SqliteStmt, index int) int {
	return int(c_sqlite3_column_bytes(unsafe.Pointer(stmt), int32(index)))
}

/** Return the size in bytes of the column value as UTF-16 */
func sqlite3_column_bytes16(stmt SqliteStmt, index int) int {
	return int(c_sqlite3_column_bytes16(unsafe.Pointer(stmt), int32(index)))
}

// Additional ergonomic helpers (the only non-direct translations)

/** Return the BLOB column value as a Go byte slice (copied)
 * The value accessor runs before the size query: reading the value can
 * trigger a type conversion that changes the byte count.
 */
func sqlite3_column_blob_bytes(stmt SqliteStmt, index int) []byte {
	p := sqlite3_column_blob(stmt, index)
	return copyCBytes(p, sqlite3_column_bytes(stmt, index))
}

/** Return the TEXT column value as a Go string (copied, UTF-8) */
func sqlite3_column_text_string(stmt SqliteStmt, index int) string {
	p := sqlite3_column_text(stmt, index)
	return string(copyCBytes(p, sqlite3_column_bytes(stmt, index)))
}
