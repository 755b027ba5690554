package sqlixx

import (
	"context"
	"database/sql"
	"path"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// openDriverDB opens a file-backed database through database/sql so pooled
// connections all see the same data.
func openDriverDB(t *testing.T) *sql.DB {
	t.Helper()
	requireLibrary(t)
	dsn := path.Join(t.TempDir(), "driver.db") + "?_busy_timeout=5000"
	db, err := sql.Open("sqlixx", dsn)
	require.Nil(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDriverExecQuery(t *testing.T) {
	db := openDriverDB(t)

	_, err := db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT, score REAL)")
	require.Nil(t, err)

	res, err := db.Exec("INSERT INTO t (name, score) VALUES (?, ?)", "alice", 1.5)
	require.Nil(t, err)
	affected, err := res.RowsAffected()
	require.Nil(t, err)
	require.EqualValues(t, 1, affected)
	lastID, err := res.LastInsertId()
	require.Nil(t, err)
	require.EqualValues(t, 1, lastID)

	var name string
	var score float64
	err = db.QueryRow("SELECT name, score FROM t WHERE id = ?", 1).Scan(&name, &score)
	require.Nil(t, err)
	require.Equal(t, "alice", name)
	require.Equal(t, 1.5, score)

	var missing string
	err = db.QueryRow("SELECT name FROM t WHERE id = ?", 99).Scan(&missing)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDriverMultiStatementExec(t *testing.T) {
	db := openDriverDB(t)

	_, err := db.Exec("CREATE TABLE a (x INTEGER); CREATE TABLE b (y INTEGER); INSERT INTO a VALUES (1)")
	require.Nil(t, err)

	var n int
	require.Nil(t, db.QueryRow("SELECT count(*) FROM a").Scan(&n))
	require.Equal(t, 1, n)
	require.Nil(t, db.QueryRow("SELECT count(*) FROM b").Scan(&n))
	require.Equal(t, 0, n)
}

func TestDriverNamedParameters(t *testing.T) {
	db := openDriverDB(t)

	_, err := db.Exec("CREATE TABLE t (id INTEGER, name TEXT)")
	require.Nil(t, err)
	_, err = db.Exec("INSERT INTO t (id, name) VALUES (:id, :name)",
		sql.Named("id", 3), sql.Named("name", "carol"))
	require.Nil(t, err)

	var name string
	err = db.QueryRow("SELECT name FROM t WHERE id = :id", sql.Named("id", 3)).Scan(&name)
	require.Nil(t, err)
	require.Equal(t, "carol", name)
}

func TestDriverPreparedStatement(t *testing.T) {
	db := openDriverDB(t)

	_, err := db.Exec("CREATE TABLE t (id INTEGER)")
	require.Nil(t, err)

	stmt, err := db.Prepare("INSERT INTO t VALUES (?)")
	require.Nil(t, err)
	defer stmt.Close()
	for i := 0; i < 3; i++ {
		_, err = stmt.Exec(i)
		require.Nil(t, err)
	}

	var n int
	require.Nil(t, db.QueryRow("SELECT count(*) FROM t").Scan(&n))
	require.Equal(t, 3, n)
}

func TestDriverTransactions(t *testing.T) {
	db := openDriverDB(t)

	_, err := db.Exec("CREATE TABLE t (id INTEGER)")
	require.Nil(t, err)

	tx, err := db.Begin()
	require.Nil(t, err)
	_, err = tx.Exec("INSERT INTO t VALUES (1)")
	require.Nil(t, err)
	require.Nil(t, tx.Rollback())

	var n int
	require.Nil(t, db.QueryRow("SELECT count(*) FROM t").Scan(&n))
	require.Equal(t, 0, n)

	tx, err = db.Begin()
	require.Nil(t, err)
	_, err = tx.Exec("INSERT INTO t VALUES (1)")
	require.Nil(t, err)
	require.Nil(t, tx.Commit())
	require.Nil(t, db.QueryRow("SELECT count(*) FROM t").Scan(&n))
	require.Equal(t, 1, n)
}

func TestDriverNullAndBlob(t *testing.T) {
	db := openDriverDB(t)

	_, err := db.Exec("CREATE TABLE t (name TEXT, data BLOB)")
	require.Nil(t, err)
	_, err = db.Exec("INSERT INTO t VALUES (?, ?)", nil, []byte{1, 2, 3})
	require.Nil(t, err)

	var name sql.NullString
	var data []byte
	err = db.QueryRow("SELECT name, data FROM t").Scan(&name, &data)
	require.Nil(t, err)
	require.False(t, name.Valid)
	require.Equal(t, []byte{1, 2, 3}, data)
}

func TestDriverTimeColumns(t *testing.T) {
	db := openDriverDB(t)

	_, err := db.Exec("CREATE TABLE t (id INTEGER, created TIMESTAMP)")
	require.Nil(t, err)

	stamp := time.Date(2024, 11, 5, 12, 30, 45, 0, time.UTC)
	_, err = db.Exec("INSERT INTO t VALUES (?, ?)", 1, stamp)
	require.Nil(t, err)

	var got time.Time
	err = db.QueryRow("SELECT created FROM t WHERE id = ?", 1).Scan(&got)
	require.Nil(t, err)
	require.True(t, got.Equal(stamp))
}

func TestDriverConnector(t *testing.T) {
	requireLibrary(t)

	dsn := path.Join(t.TempDir(), "connector.db")
	connector, err := NewConnector(dsn, WithBusyTimeout(250))
	require.Nil(t, err)

	db := sql.OpenDB(connector)
	defer db.Close()
	require.Nil(t, db.PingContext(context.Background()))

	_, err = db.Exec("CREATE TABLE t (id INTEGER)")
	require.Nil(t, err)
}

func TestDriverDSNModes(t *testing.T) {
	requireLibrary(t)

	dsn := path.Join(t.TempDir(), "modes.db")
	db, err := sql.Open("sqlixx", dsn+"?mode=rwc")
	require.Nil(t, err)
	_, err = db.Exec("CREATE TABLE t (id INTEGER)")
	require.Nil(t, err)
	require.Nil(t, db.Close())

	ro, err := sql.Open("sqlixx", dsn+"?mode=ro")
	require.Nil(t, err)
	defer ro.Close()
	var n int
	require.Nil(t, ro.QueryRow("SELECT count(*) FROM t").Scan(&n))
	_, err = ro.Exec("INSERT INTO t VALUES (1)")
	require.NotNil(t, err)
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestDriverWithSqlx(t *testing.T) {
	requireLibrary(t)
	sqlx.BindDriver("sqlixx", sqlx.QUESTION)

	dsn := path.Join(t.TempDir(), "sqlx.db")
	db, err := sqlx.Connect("sqlixx", dsn)
	require.Nil(t, err)
	defer db.Close()

	_, err = db.Exec("CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT, age INTEGER)")
	require.Nil(t, err)

	type person struct {
		ID   int64  `db:"id"`
		Name string `db:"name"`
		Age  int    `db:"age"`
	}
	_, err = db.NamedExec("INSERT INTO people (name, age) VALUES (:name, :age)",
		person{Name: "dave", Age: 40})
	require.Nil(t, err)
	_, err = db.NamedExec("INSERT INTO people (name, age) VALUES (:name, :age)",
		person{Name: "erin", Age: 35})
	require.Nil(t, err)

	var one person
	require.Nil(t, db.Get(&one, "SELECT id, name, age FROM people WHERE name = ?", "dave"))
	require.Equal(t, 40, one.Age)

	var all []person
	require.Nil(t, db.Select(&all, "SELECT id, name, age FROM people ORDER BY name"))
	require.Len(t, all, 2)
	require.Equal(t, "dave", all[0].Name)
}

type gormRecord struct {
	ID    uint `gorm:"primarykey"`
	Name  string
	Value int
}

func TestDriverWithGorm(t *testing.T) {
	requireLibrary(t)

	dsn := path.Join(t.TempDir(), "gorm.db") + "?_busy_timeout=5000"
	dialector := sqlite.Dialector{DriverName: "sqlixx", DSN: dsn}
	silentConfig := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	db, err := gorm.Open(dialector, silentConfig)
	require.Nil(t, err)

	require.Nil(t, db.AutoMigrate(&gormRecord{}))

	created := gormRecord{Name: "first", Value: 10}
	require.Nil(t, db.Create(&created).Error)
	require.NotZero(t, created.ID)

	var fetched gormRecord
	require.Nil(t, db.First(&fetched, created.ID).Error)
	require.Equal(t, "first", fetched.Name)

	fetched.Value = 20
	require.Nil(t, db.Save(&fetched).Error)

	var count int64
	require.Nil(t, db.Model(&gormRecord{}).Count(&count).Error)
	require.EqualValues(t, 1, count)

	sqlDB, err := db.DB()
	require.Nil(t, err)
	require.Nil(t, sqlDB.Close())
}
