package sqlixx

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"strings"
	"sync"
)

// define all package level errors here
var (
	ErrStmtClosed = errors.New("sqlixx: statement closed")
	ErrConnClosed = errors.New("sqlixx: connection closed")
	ErrRowsClosed = errors.New("sqlixx: rows closed")
	ErrTxDone     = errors.New("sqlixx: transaction done")
)

// DefaultBusyTimeout is the busy timeout applied to driver connections that
// do not configure one, in milliseconds.
const DefaultBusyTimeout = 5000

// define all package level structs here

type sqlixxDriver struct{}

type driverConfig struct {
	ref         string
	flags       OpenFlag
	busyTimeout int // milliseconds, 0 = use default, -1 = explicitly disabled
}

type sqlixxConn struct {
	conn *Connection

	mu          sync.Mutex
	closed      bool
	busyTimeout int // current busy timeout in milliseconds
}

type sqlixxStmt struct {
	conn      *sqlixxConn
	sql       string
	numInputs int
	closed    bool
}

type sqlixxRows struct {
	conn      *sqlixxConn
	stmt      *Statement
	columns   []string
	decltypes []string

	closed bool
	err    error
}

type sqlixxResult struct {
	lastInsertId int64
	rowsAffected int64
}

type sqlixxTx struct {
	conn *sqlixxConn
	done bool
}

// register driver
func init() {
	sql.Register("sqlixx", &sqlixxDriver{})
}

// Implement sql.Driver methods
func (d *sqlixxDriver) Open(dsn string) (driver.Conn, error) {
	config, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return openConn(config)
}

func openConn(config driverConfig) (*sqlixxConn, error) {
	conn, err := Open(config.ref, config.flags)
	if err != nil {
		return nil, err
	}
	// A value of -1 in config means explicitly disabled (no timeout)
	// A value of 0 means use the default timeout
	// A positive value is used as-is
	timeout := config.busyTimeout
	if timeout == 0 {
		timeout = DefaultBusyTimeout
	} else if timeout < 0 {
		timeout = 0
	}
	if timeout > 0 {
		if err := conn.SetBusyTimeout(timeout); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &sqlixxConn{
		conn:        conn,
		busyTimeout: timeout,
	}, nil
}

// --- driver.Conn and friends ---

// Ensure sqlixxConn implements required interfaces.
var (
	_ driver.Conn               = (*sqlixxConn)(nil)
	_ driver.ConnPrepareContext = (*sqlixxConn)(nil)
	_ driver.ExecerContext      = (*sqlixxConn)(nil)
	_ driver.QueryerContext     = (*sqlixxConn)(nil)
	_ driver.Pinger             = (*sqlixxConn)(nil)
	_ driver.ConnBeginTx        = (*sqlixxConn)(nil)
)

func (c *sqlixxConn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *sqlixxConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	// PREPARE in Prepare - do not delay that
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	stmt, err := c.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	// determine number of inputs and then finalize immediately to avoid keeping state
	num := 0
	if stmt != nil {
		num = stmt.ParameterCount()
		_ = stmt.Close()
	}
	return &sqlixxStmt{
		conn:      c,
		sql:       query,
		numInputs: num,
	}, nil
}

func (c *sqlixxConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.closed = true
	return err
}

func (c *sqlixxConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *sqlixxConn) BeginTx(ctx context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	_, err := c.ExecContext(ctx, "BEGIN", nil)
	if err != nil {
		return nil, err
	}
	return &sqlixxTx{conn: c}, nil
}

func (c *sqlixxConn) Ping(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	rows, err := c.QueryContext(ctx, "SELECT 1", nil)
	if err != nil {
		return err
	}
	return rows.Close()
}

func (c *sqlixxConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	// Multi-statement support for Exec-family
	var totalAffected int64
	c.mu.Lock()
	defer c.mu.Unlock()

	rest := query
	first := true
	var lastInsert int64 = 0
	for {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if strings.TrimSpace(rest) == "" {
			break
		}
		stmt, tail, err := c.conn.PrepareFirst(rest)
		if err != nil {
			return nil, err
		}
		rest = tail
		if stmt == nil {
			continue
		}
		// Bind only for the first statement
		if first && len(args) > 0 {
			if err := bindArgs(stmt, args); err != nil {
				_ = stmt.Close()
				return nil, err
			}
		}
		// Execute statement fully
		err = executeFully(ctx, stmt)
		affected := c.conn.Changes()
		cerr := stmt.Close()
		if err != nil {
			return nil, err
		}
		if cerr != nil {
			return nil, cerr
		}
		// rows affected is capped at MaxInt64
		if affected > math.MaxInt64-totalAffected {
			totalAffected = math.MaxInt64
		} else {
			totalAffected += affected
		}
		lastInsert = c.conn.LastInsertRowID()
		first = false
		// continue with the rest of the query string
	}
	return &sqlixxResult{
		lastInsertId: lastInsert,
		rowsAffected: totalAffected,
	}, nil
}

func (c *sqlixxConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	// Only single-statement queries supported here
	stmt, tail, err := c.conn.PrepareFirst(query)
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return nil, usagef("empty query %q", query)
	}
	if strings.TrimSpace(tail) != "" {
		_ = stmt.Close()
		return nil, usagef("multiple statements in query %q", query)
	}
	if len(args) > 0 {
		if err := bindArgs(stmt, args); err != nil {
			_ = stmt.Close()
			return nil, err
		}
	}
	// Return rows wrapper; do not step yet, leave cursor before first row
	return &sqlixxRows{
		conn: c,
		stmt: stmt,
	}, nil
}

func (c *sqlixxConn) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.conn == nil {
		return ErrConnClosed
	}
	return nil
}

// SetBusyTimeout sets the busy timeout for this connection in milliseconds.
// Pass 0 to disable the busy handler (immediate SQLITE_BUSY on contention).
// This method is thread-safe.
func (c *sqlixxConn) SetBusyTimeout(timeoutMs int) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeoutMs < 0 {
		timeoutMs = 0
	}
	if err := c.conn.SetBusyTimeout(timeoutMs); err != nil {
		return err
	}
	c.busyTimeout = timeoutMs
	return nil
}

// GetBusyTimeout returns the current busy timeout in milliseconds.
// Returns 0 if the busy handler is disabled.
func (c *sqlixxConn) GetBusyTimeout() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busyTimeout
}

// --- Connector Pattern ---

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithBusyTimeout sets the busy timeout in milliseconds.
// Use 0 to disable the busy handler, -1 to use the default (5000ms).
func WithBusyTimeout(ms int) ConnectorOption {
	return func(c *Connector) {
		c.busyTimeout = ms
	}
}

// Connector implements driver.Connector for programmatic configuration.
type Connector struct {
	dsn         string
	busyTimeout int // -1 = use default, 0 = disabled, >0 = custom
}

// NewConnector creates a new Connector with the given DSN and options.
// By default, uses the DefaultBusyTimeout (5000ms).
func NewConnector(dsn string, opts ...ConnectorOption) (*Connector, error) {
	c := &Connector{
		dsn:         dsn,
		busyTimeout: -1, // -1 means use default
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Connect implements driver.Connector.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	config, err := parseDSN(c.dsn)
	if err != nil {
		return nil, err
	}
	// Override busy timeout from connector if set
	if c.busyTimeout >= 0 {
		if c.busyTimeout == 0 {
			config.busyTimeout = -1 // Will be converted to 0 in openConn
		} else {
			config.busyTimeout = c.busyTimeout
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return openConn(config)
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver {
	return &sqlixxDriver{}
}

// Ensure Connector implements driver.Connector
var _ driver.Connector = (*Connector)(nil)

// --- driver.Stmt and friends ---

// Ensure sqlixxStmt implements required interfaces.
var (
	_ driver.Stmt             = (*sqlixxStmt)(nil)
	_ driver.StmtExecContext  = (*sqlixxStmt)(nil)
	_ driver.StmtQueryContext = (*sqlixxStmt)(nil)
)

func (s *sqlixxStmt) Close() error {
	s.closed = true
	return nil
}

func (s *sqlixxStmt) NumInput() int {
	return s.numInputs
}

func (s *sqlixxStmt) Exec(args []driver.Value) (driver.Result, error) {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return s.ExecContext(context.Background(), named)
}

func (s *sqlixxStmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	if s.closed {
		return nil, ErrStmtClosed
	}
	return s.conn.ExecContext(ctx, s.sql, args)
}

func (s *sqlixxStmt) Query(args []driver.Value) (driver.Rows, error) {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return s.QueryContext(context.Background(), named)
}

func (s *sqlixxStmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	if s.closed {
		return nil, ErrStmtClosed
	}
	return s.conn.QueryContext(ctx, s.sql, args)
}

// --- driver.Rows ---

// Ensure sqlixxRows implements the required interface.
var _ driver.Rows = (*sqlixxRows)(nil)

func (r *sqlixxRows) Columns() []string {
	if r.columns != nil {
		return r.columns
	}
	n := r.stmt.ColumnCount()
	names := make([]string, n)
	decltypes := make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = r.stmt.ColumnName(i)
		decltypes[i] = r.stmt.ColumnDecltype(i)
	}
	r.columns = names
	r.decltypes = decltypes
	return r.columns
}

func (r *sqlixxRows) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.stmt.Close()
}

func (r *sqlixxRows) Next(dest []driver.Value) error {
	if r.closed {
		return io.EOF
	}
	// Ensure decltypes are populated
	_ = r.Columns()
	rc, err := r.stmt.Step()
	if err != nil {
		r.err = err
		return err
	}
	if rc == SQLITE_DONE {
		return io.EOF
	}
	// Fill destination
	n := r.stmt.ColumnCount()
	if len(dest) != n {
		return fmt.Errorf("sqlixx: expected %d dests, got %d", n, len(dest))
	}
	for i := 0; i < n; i++ {
		switch r.stmt.ColumnType(i) {
		case SQLITE_NULL:
			dest[i] = nil
		case SQLITE_INTEGER:
			dest[i] = sqlite3_column_int64(r.stmt.stmt, i)
		case SQLITE_FLOAT:
			dest[i] = sqlite3_column_double(r.stmt.stmt, i)
		case SQLITE_TEXT:
			text := sqlite3_column_text_string(r.stmt.stmt, i)
			// Check if column type indicates a time value
			if i < len(r.decltypes) && isTimeColumn(r.decltypes[i]) {
				if t, err := parseTimeString(text); err == nil {
					dest[i] = t
				} else {
					dest[i] = text
				}
			} else {
				dest[i] = text
			}
		case SQLITE_BLOB:
			dest[i] = sqlite3_column_blob_bytes(r.stmt.stmt, i)
		default:
			dest[i] = nil
		}
	}
	return nil
}

// --- driver.Result ---

var _ driver.Result = (*sqlixxResult)(nil)

func (r *sqlixxResult) LastInsertId() (int64, error) {
	return r.lastInsertId, nil
}

func (r *sqlixxResult) RowsAffected() (int64, error) {
	return r.rowsAffected, nil
}

// --- driver.Tx ---

var _ driver.Tx = (*sqlixxTx)(nil)

func (tx *sqlixxTx) Commit() error {
	if tx.done {
		return ErrTxDone
	}
	_, err := tx.conn.ExecContext(context.Background(), "COMMIT", nil)
	tx.done = true
	return err
}

func (tx *sqlixxTx) Rollback() error {
	if tx.done {
		return ErrTxDone
	}
	_, err := tx.conn.ExecContext(context.Background(), "ROLLBACK", nil)
	tx.done = true
	return err
}

// Helpers

// parseDSN supports format: <ref>[?mode=ro|rw|rwc|memory&_busy_timeout=<int>]
// The ref part is passed to the engine as-is, so ":memory:" and file: URIs
// work the usual way.
func parseDSN(dsn string) (driverConfig, error) {
	config := driverConfig{
		ref:   dsn,
		flags: SQLITE_OPEN_READWRITE | SQLITE_OPEN_CREATE | SQLITE_OPEN_URI,
	}
	// file: URIs carry their own query string understood by the engine
	if strings.HasPrefix(dsn, "file:") {
		return config, nil
	}
	qMark := strings.IndexByte(dsn, '?')
	if qMark < 0 {
		return config, nil
	}
	config.ref = dsn[:qMark]
	vals, err := url.ParseQuery(dsn[qMark+1:])
	if err != nil {
		return driverConfig{}, err
	}
	switch vals.Get("mode") {
	case "":
	case "ro":
		config.flags = SQLITE_OPEN_READONLY | SQLITE_OPEN_URI
	case "rw":
		config.flags = SQLITE_OPEN_READWRITE | SQLITE_OPEN_URI
	case "rwc":
		config.flags = SQLITE_OPEN_READWRITE | SQLITE_OPEN_CREATE | SQLITE_OPEN_URI
	case "memory":
		config.flags = SQLITE_OPEN_READWRITE | SQLITE_OPEN_CREATE | SQLITE_OPEN_MEMORY
	default:
		return driverConfig{}, fmt.Errorf("sqlixx: invalid mode %q", vals.Get("mode"))
	}
	if v := vals.Get("_busy_timeout"); v != "" {
		var timeout int
		if _, err := fmt.Sscanf(v, "%d", &timeout); err == nil {
			config.busyTimeout = timeout
		}
	}
	return config, nil
}

// executeFully steps stmt to completion, discarding rows.
func executeFully(ctx context.Context, stmt *Statement) error {
	for {
		if ctx != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		rc, err := stmt.Step()
		if err != nil {
			return err
		}
		if rc == SQLITE_DONE {
			return nil
		}
	}
}

// bindArgs binds ordered and named values to a statement.
// Named values are resolved by trying the ":", "@" and "$" prefixes,
// otherwise ordinal positions are used (1-based).
func bindArgs(stmt *Statement, args []driver.NamedValue) error {
	// Validate number of inputs if no named args present
	if len(args) > 0 {
		hasNamed := false
		for _, nv := range args {
			if nv.Name != "" {
				hasNamed = true
				break
			}
		}
		if !hasNamed {
			if paramCount := stmt.ParameterCount(); len(args) != paramCount {
				return fmt.Errorf("sqlixx: got %d args, want %d", len(args), paramCount)
			}
		}
	}
	for idx, nv := range args {
		index := idx
		if nv.Name != "" {
			np := namedParameterIndex(stmt, nv.Name)
			if np < 0 {
				return fmt.Errorf("sqlixx: unknown named parameter %q", nv.Name)
			}
			index = np
		} else if nv.Ordinal > 0 {
			index = nv.Ordinal - 1
		}
		if err := stmt.Bind(index, nv.Value); err != nil {
			return err
		}
	}
	return nil
}

// namedParameterIndex resolves a prefixless parameter name, the form
// database/sql passes down, against the statement's ":", "@" and "$"
// spellings. Returns the zero-based index or -1.
func namedParameterIndex(stmt *Statement, name string) int {
	for _, prefix := range []string{":", "@", "$"} {
		if index := stmt.ParameterIndex(prefix + name); index >= 0 {
			return index
		}
	}
	return -1
}
