package sqlixx

import (
	"errors"
	"fmt"
	"strings"
)

// Connection wraps a database handle. The zero value is not usable; obtain
// instances from Open. A Connection is not safe for concurrent use.
type Connection struct {
	db SqliteDB
}

// Open opens the database identified by ref, which is a filename, ":memory:"
// for a transient in-memory database, or a file: URI when flags include
// SQLITE_OPEN_URI. The engine library is loaded on first use.
func Open(ref string, flags OpenFlag) (*Connection, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	db, rc := sqlite3_open_v2(ref, flags)
	if rc != SQLITE_OK {
		// A handle may come back even on failure and carries the
		// detailed message. Close it either way.
		var err error
		if db != nil {
			err = engineError(db, rc, fmt.Sprintf("open %q", ref))
			sqlite3_close(db)
		} else {
			err = &Error{Code: rc, Message: fmt.Sprintf("open %q", ref)}
		}
		return nil, err
	}
	if db == nil {
		return nil, ErrNoMem
	}
	return &Connection{db: db}, nil
}

/** Returns the underlying database handle, or nil after Close. */
func (c *Connection) Handle() SqliteDB {
	return c.db
}

// IsOpen reports whether the connection still owns a live handle.
func (c *Connection) IsOpen() bool {
	return c != nil && c.db != nil
}

// Release detaches and returns the raw handle without closing it. The
// caller becomes responsible for sqlite3_close.
func (c *Connection) Release() SqliteDB {
	db := c.db
	c.db = nil
	return db
}

/**
 * Closes the database. Closing with unfinalized statements fails with
 * SQLITE_BUSY and the connection stays open. Closing an already closed
 * connection is a no-op.
 */
func (c *Connection) Close() error {
	if c.db == nil {
		return nil
	}
	if rc := sqlite3_close(c.db); rc != SQLITE_OK {
		return engineError(c.db, rc, "close database")
	}
	c.db = nil
	return nil
}

func (c *Connection) checkOpen() error {
	if c == nil || c.db == nil {
		return usagef("connection is closed")
	}
	return nil
}

/**
 * Prepares the first SQL statement of sql. Trailing statements after the
 * first are ignored; use PrepareFirst to consume multi-statement scripts.
 */
func (c *Connection) Prepare(sql string) (*Statement, error) {
	stmt, _, err := c.PrepareFlags(sql, 0)
	return stmt, err
}

// PrepareFirst prepares the first statement of sql and additionally returns
// the unconsumed remainder. A remainder of "" means sql held a single
// statement. The statement is nil when sql holds nothing but whitespace or
// comments.
func (c *Connection) PrepareFirst(sql string) (*Statement, string, error) {
	stmt, tail, err := c.PrepareFlags(sql, 0)
	return stmt, tail, err
}

// PrepareFlags is PrepareFirst with explicit prepare flags, for example
// SQLITE_PREPARE_PERSISTENT for statements cached across many executions.
func (c *Connection) PrepareFlags(sql string, flags PrepareFlag) (*Statement, string, error) {
	if err := c.checkOpen(); err != nil {
		return nil, "", err
	}
	raw, offset, rc := sqlite3_prepare_v3(c.db, sql, flags)
	if rc != SQLITE_OK {
		return nil, "", engineError(c.db, rc, fmt.Sprintf("cannot prepare %q", sql))
	}
	head, tail := sql, ""
	if offset >= 0 && offset <= len(sql) {
		head, tail = sql[:offset], sql[offset:]
	}
	if raw == nil {
		// sql was empty or comment-only
		return nil, tail, nil
	}
	return &Statement{db: c.db, stmt: raw, sql: head, lastStep: stepNone}, tail, nil
}

// Execute prepares sql, binds values, runs it with callback per Statement
// Execute, and finalizes the statement. sql must hold a single statement.
func (c *Connection) Execute(callback any, sql string, values ...any) error {
	stmt, tail, err := c.PrepareFirst(sql)
	if err != nil {
		return err
	}
	if stmt == nil {
		return nil
	}
	if strings.TrimSpace(tail) != "" {
		stmt.Close()
		return usagef("multiple statements in %q", sql)
	}
	_, err = stmt.Execute(callback, values...)
	if cerr := stmt.Close(); err == nil {
		err = cerr
	}
	return err
}

// Exec runs sql without observing result rows.
func (c *Connection) Exec(sql string, values ...any) error {
	return c.Execute(nil, sql, values...)
}

// IsTransactionActive reports whether the connection is inside an explicit
// transaction, that is, outside autocommit mode.
func (c *Connection) IsTransactionActive() (bool, error) {
	if err := c.checkOpen(); err != nil {
		return false, err
	}
	return !sqlite3_get_autocommit(c.db), nil
}

// WithRollbackOnError runs fn and, when fn fails while a transaction is
// active, rolls that transaction back so no failure leaves one dangling.
// When the rollback (or the transaction-status query before it) also fails,
// that failure is joined to fn's error so neither is lost.
func (c *Connection) WithRollbackOnError(fn func() error) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	ferr := fn()
	if ferr == nil {
		return nil
	}
	active, aerr := c.IsTransactionActive()
	if aerr != nil {
		return errors.Join(ferr, aerr)
	}
	if !active {
		return ferr
	}
	if rerr := c.Exec("ROLLBACK"); rerr != nil {
		return errors.Join(ferr, rerr)
	}
	return ferr
}

/** Returns the rowid of the most recent successful INSERT. */
func (c *Connection) LastInsertRowID() int64 {
	if c.db == nil {
		return 0
	}
	return sqlite3_last_insert_rowid(c.db)
}

/** Returns the number of rows changed by the most recent statement. */
func (c *Connection) Changes() int64 {
	if c.db == nil {
		return 0
	}
	return sqlite3_changes64(c.db)
}

// SetBusyTimeout makes lock waits retry for up to ms milliseconds before
// failing with SQLITE_BUSY. Zero or negative clears the handler.
func (c *Connection) SetBusyTimeout(ms int) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if rc := sqlite3_busy_timeout(c.db, ms); rc != SQLITE_OK {
		return engineError(c.db, rc, "set busy timeout")
	}
	return nil
}

// ErrMsg returns the engine's message for the most recent failure on this
// connection.
func (c *Connection) ErrMsg() string {
	if c.db == nil {
		return ""
	}
	return sqlite3_errmsg(c.db)
}
