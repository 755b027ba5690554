package sqlixx

import (
	"bytes"
	"errors"
	"testing"
)

func TestStatementRoundtrip(t *testing.T) {
	conn := openMemory(t)

	if err := conn.Exec("CREATE TABLE tab (id INTEGER, value REAL, label TEXT, payload BLOB)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	values := []float64{1.2, 2.3, 3.4}
	labels := []string{"3", "four", "five"}
	payloads := [][]byte{[]byte("four"), []byte("five"), []byte("six")}

	// Insert three rows through one statement, reusing it without an
	// explicit reset between executions.
	ins, err := conn.Prepare("INSERT INTO tab (id, value, label, payload) VALUES (?, ?, ?, ?)")
	if err != nil {
		t.Fatalf("prepare insert failed: %v", err)
	}
	defer ins.Close()
	for i := 0; i < 3; i++ {
		rc, err := ins.Execute(nil, int64(i), values[i], labels[i], payloads[i])
		if err != nil {
			t.Fatalf("insert row %d failed: %v", i, err)
		}
		if rc != SQLITE_DONE {
			t.Fatalf("expected SQLITE_DONE, got %d", rc)
		}
	}

	// Read them back and verify every column.
	sel, err := conn.Prepare("SELECT id, value, label, payload FROM tab WHERE id >= ? AND id < ? ORDER BY id")
	if err != nil {
		t.Fatalf("prepare select failed: %v", err)
	}
	defer sel.Close()
	rows := 0
	_, err = sel.Execute(func(s *Statement) {
		id, err := Result[int64](s, 0)
		if err != nil {
			t.Fatalf("read id failed: %v", err)
		}
		if id != int64(rows) {
			t.Fatalf("expected id %d, got %d", rows, id)
		}
		value, err := Result[float64](s, 1)
		if err != nil {
			t.Fatalf("read value failed: %v", err)
		}
		if value != values[rows] {
			t.Fatalf("expected value %v, got %v", values[rows], value)
		}
		label, err := ResultNamed[string](s, "label")
		if err != nil {
			t.Fatalf("read label failed: %v", err)
		}
		if label != labels[rows] {
			t.Fatalf("expected label %q, got %q", labels[rows], label)
		}
		payload, err := Result[[]byte](s, 3)
		if err != nil {
			t.Fatalf("read payload failed: %v", err)
		}
		if !bytes.Equal(payload, payloads[rows]) {
			t.Fatalf("expected payload %q, got %q", payloads[rows], payload)
		}
		rows++
	}, 0, 3)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if rows != 3 {
		t.Fatalf("expected 3 rows, got %d", rows)
	}
}

func TestExecuteEarlyStop(t *testing.T) {
	conn := openMemory(t)

	if err := conn.Exec("CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		if err := conn.Exec("INSERT INTO t VALUES (?)", i); err != nil {
			t.Fatalf("insert failed: %v", err)
		}
	}

	stmt, err := conn.Prepare("SELECT id FROM t ORDER BY id")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer stmt.Close()

	seen := 0
	rc, err := stmt.Execute(func(s *Statement) bool {
		seen++
		return seen < 3
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if rc != SQLITE_ROW {
		t.Fatalf("expected termination on SQLITE_ROW, got %d", rc)
	}
	if seen != 3 {
		t.Fatalf("expected the callback to see exactly 3 rows, got %d", seen)
	}
}

func TestExecuteStatusCallback(t *testing.T) {
	conn := openMemory(t)

	if err := conn.Exec("CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	if err := conn.Exec("INSERT INTO t VALUES (1), (2)"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	stmt, err := conn.Prepare("SELECT id FROM t")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer stmt.Close()

	var codes []ResultCode
	rc, err := stmt.Execute(func(s *Statement, rc ResultCode) {
		codes = append(codes, rc)
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if rc != SQLITE_DONE {
		t.Fatalf("expected SQLITE_DONE, got %d", rc)
	}
	want := []ResultCode{SQLITE_ROW, SQLITE_ROW, SQLITE_DONE}
	if len(codes) != len(want) {
		t.Fatalf("expected codes %v, got %v", want, codes)
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("expected codes %v, got %v", want, codes)
		}
	}
}

func TestExecuteStatusCallbackSeesFailure(t *testing.T) {
	conn := openMemory(t)

	if err := conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	if err := conn.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	stmt, err := conn.Prepare("INSERT INTO t VALUES (1)")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer stmt.Close()

	// The status-carrying shape receives step failures instead of the
	// error return.
	var last ResultCode
	rc, err := stmt.Execute(func(s *Statement, rc ResultCode) {
		last = rc
	})
	if err != nil {
		t.Fatalf("expected the failure to reach the callback, got error %v", err)
	}
	if rc.Primary() != SQLITE_CONSTRAINT {
		t.Fatalf("expected a constraint code, got %d", rc)
	}
	if last != rc {
		t.Fatalf("expected the callback to see code %d, got %d", rc, last)
	}
}

func TestExecuteStepErrorWithoutStatusCallback(t *testing.T) {
	conn := openMemory(t)

	if err := conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	if err := conn.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	err := conn.Exec("INSERT INTO t VALUES (1)")
	if !errors.Is(err, ErrConstraint) {
		t.Fatalf("expected ErrConstraint, got %v", err)
	}
}

func TestBindWhileRowsPending(t *testing.T) {
	conn := openMemory(t)

	if err := conn.Exec("CREATE TABLE t (id INTEGER)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}
	if err := conn.Exec("INSERT INTO t VALUES (1), (2)"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	stmt, err := conn.Prepare("SELECT id FROM t WHERE id >= ?")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer stmt.Close()

	if err := stmt.Bind(0, 1); err != nil {
		t.Fatalf("bind failed: %v", err)
	}
	if rc, err := stmt.Step(); err != nil || rc != SQLITE_ROW {
		t.Fatalf("expected a row, got rc=%d err=%v", rc, err)
	}
	// Rebinding midway through the row sequence is refused.
	if err := stmt.Bind(0, 2); !errors.Is(err, ErrUsage) {
		t.Fatalf("expected a usage error, got %v", err)
	}
	// After a reset the bind goes through again.
	if err := stmt.Reset(); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	if err := stmt.Bind(0, 2); err != nil {
		t.Fatalf("bind after reset failed: %v", err)
	}
}

func TestNamedParameters(t *testing.T) {
	conn := openMemory(t)

	if err := conn.Exec("CREATE TABLE t (id INTEGER, name TEXT)"); err != nil {
		t.Fatalf("create table failed: %v", err)
	}

	stmt, err := conn.Prepare("INSERT INTO t (id, name) VALUES (:id, :name)")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer stmt.Close()

	if n := stmt.ParameterCount(); n != 2 {
		t.Fatalf("expected 2 parameters, got %d", n)
	}
	if i := stmt.ParameterIndex(":id"); i != 0 {
		t.Fatalf("expected :id at index 0, got %d", i)
	}
	if name := stmt.ParameterName(1); name != ":name" {
		t.Fatalf("expected parameter name :name, got %q", name)
	}
	// Unknown names yield the -1 sentinel, or a usage error through the
	// checked accessor.
	if i := stmt.ParameterIndex(":nope"); i != -1 {
		t.Fatalf("expected -1 for an unknown name, got %d", i)
	}
	if _, err := stmt.RequiredParameterIndex(":nope"); !errors.Is(err, ErrUsage) {
		t.Fatalf("expected a usage error, got %v", err)
	}

	if err := stmt.BindName(":id", 7); err != nil {
		t.Fatalf("bind :id failed: %v", err)
	}
	if err := stmt.BindName(":name", "grace"); err != nil {
		t.Fatalf("bind :name failed: %v", err)
	}
	if _, err := stmt.Execute(nil); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	var got string
	err = conn.Execute(func(s *Statement) {
		v, err := Result[string](s, 0)
		if err != nil {
			t.Fatalf("read name failed: %v", err)
		}
		got = v
	}, "SELECT name FROM t WHERE id = ?", 7)
	if err != nil {
		t.Fatalf("select failed: %v", err)
	}
	if got != "grace" {
		t.Fatalf("expected name grace, got %q", got)
	}
}

func TestColumnAccessors(t *testing.T) {
	conn := openMemory(t)

	stmt, err := conn.Prepare("SELECT 1 AS one, 'x' AS two")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer stmt.Close()

	if n := stmt.ColumnCount(); n != 2 {
		t.Fatalf("expected 2 columns, got %d", n)
	}
	if name := stmt.ColumnName(1); name != "two" {
		t.Fatalf("expected column name two, got %q", name)
	}
	if i := stmt.ColumnIndex("one"); i != 0 {
		t.Fatalf("expected column one at index 0, got %d", i)
	}
	if i := stmt.ColumnIndex("three"); i != -1 {
		t.Fatalf("expected -1 for an unknown column, got %d", i)
	}
	if _, err := stmt.RequiredColumnIndex("three"); !errors.Is(err, ErrUsage) {
		t.Fatalf("expected a usage error, got %v", err)
	}

	// Reading a result before any row is available is a usage error.
	if _, err := Result[int64](stmt, 0); !errors.Is(err, ErrUsage) {
		t.Fatalf("expected a usage error before stepping, got %v", err)
	}
	if rc, err := stmt.Step(); err != nil || rc != SQLITE_ROW {
		t.Fatalf("expected a row, got rc=%d err=%v", rc, err)
	}
	if _, err := Result[int64](stmt, 5); !errors.Is(err, ErrUsage) {
		t.Fatalf("expected a usage error for an out-of-range column, got %v", err)
	}
}

func TestStatementCloseAndRelease(t *testing.T) {
	conn := openMemory(t)

	stmt, err := conn.Prepare("SELECT 1")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	if err := stmt.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if stmt.IsOpen() {
		t.Fatalf("expected statement to report closed")
	}
	if err := stmt.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if _, err := stmt.Execute(nil); !errors.Is(err, ErrUsage) {
		t.Fatalf("expected a usage error on a closed statement, got %v", err)
	}

	// Release detaches the raw handle; the caller finalizes it.
	stmt, err = conn.Prepare("SELECT 1")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	raw := stmt.Release()
	if raw == nil {
		t.Fatalf("expected a raw handle from Release")
	}
	if stmt.IsOpen() {
		t.Fatalf("expected statement to be detached after Release")
	}
	if rc := sqlite3_finalize(raw); rc != SQLITE_OK {
		t.Fatalf("finalize of the released handle failed: %d", rc)
	}
}

func TestColumnData(t *testing.T) {
	conn := openMemory(t)

	stmt, err := conn.Prepare("SELECT x'010203', 'hello'")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer stmt.Close()
	if rc, err := stmt.Step(); err != nil || rc != SQLITE_ROW {
		t.Fatalf("expected a row, got rc=%d err=%v", rc, err)
	}

	blob, err := stmt.ColumnData(0, EncodingNone)
	if err != nil {
		t.Fatalf("ColumnData blob failed: %v", err)
	}
	if !bytes.Equal(blob.Bytes(), []byte{1, 2, 3}) {
		t.Fatalf("expected blob 010203, got %v", blob.Bytes())
	}
	text, err := stmt.ColumnData(1, EncodingUTF8)
	if err != nil {
		t.Fatalf("ColumnData text failed: %v", err)
	}
	if text.Text() != "hello" {
		t.Fatalf("expected text hello, got %q", text.Text())
	}
	text16, err := stmt.ColumnData(1, EncodingUTF16)
	if err != nil {
		t.Fatalf("ColumnData utf16 failed: %v", err)
	}
	// Ten bytes of UTF-16 code units for five ASCII characters.
	if text16.Size() != 10 {
		t.Fatalf("expected 10 bytes of UTF-16 text, got %d", text16.Size())
	}
}
