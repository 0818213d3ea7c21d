package migrate

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
)

func testFiles() fstest.MapFS {
	return fstest.MapFS{
		"sql/0001_apps.up.sql":   {Data: []byte("create table apps (id text);\ninsert into apps values ('a;b');\n")},
		"sql/0001_apps.down.sql": {Data: []byte("drop table apps;")},
		"sql/0002_rx.up.sql":     {Data: []byte("create table rx (id text);")},
		"sql/0002_rx.down.sql":   {Data: []byte("drop table rx;")},
		"sql/README.md":          {Data: []byte("ignored")},
	}
}

func expectEnsure(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpAppliesPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_apps.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("create table rx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_rx.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	applied, err := NewManager(db, testFiles(), "sql").Up(context.Background())
	if err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(applied) != 1 || applied[0] != "0002_rx.up.sql" {
		t.Fatalf("unexpected applied set: %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpRollsBackFailedMigration(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table apps").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("insert into apps values ('a;b')")).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	applied, err := NewManager(db, testFiles(), "sql").Up(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(applied) != 0 {
		t.Fatalf("nothing should be recorded, got %v", applied)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDownRollsBackLatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_apps.up.sql").AddRow("0002_rx.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("drop table rx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from schema_migrations").
		WithArgs("0002_rx.up.sql").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	name, err := NewManager(db, testFiles(), "sql").Down(context.Background())
	if err != nil {
		t.Fatalf("Down: %v", err)
	}
	if name != "0002_rx.up.sql" {
		t.Fatalf("unexpected rollback target %q", name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDownWithoutHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_migrations").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	if _, err := NewManager(db, testFiles(), "sql").Down(context.Background()); err == nil {
		t.Fatal("expected error when nothing is applied")
	}
}

func TestPendingAndStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	m := NewManager(db, testFiles(), "sql", WithMigrationsTable("beacon_migrations"))

	mock.ExpectExec("create table if not exists beacon_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from beacon_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_apps.up.sql"))

	pending, err := m.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0] != "0002_rx.up.sql" {
		t.Fatalf("unexpected pending: %v", pending)
	}

	mock.ExpectExec("create table if not exists beacon_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name from beacon_migrations order by applied_at asc, name asc").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_apps.up.sql"))

	status, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(status) != 1 {
		t.Fatalf("unexpected status: %v", status)
	}
}

func TestSeedRunsOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	m := NewManager(db, testFiles(), "sql")
	calls := 0
	fn := func(context.Context) error { calls++; return nil }

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_seeds").WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectExec("insert into schema_seeds").
		WithArgs("demo", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	ran, err := m.Seed(context.Background(), "demo", fn)
	if err != nil || !ran {
		t.Fatalf("first seed: ran=%v err=%v", ran, err)
	}

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_seeds").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("demo"))

	ran, err = m.Seed(context.Background(), "demo", fn)
	if err != nil || ran {
		t.Fatalf("second seed: ran=%v err=%v", ran, err)
	}
	if calls != 1 {
		t.Fatalf("seed body ran %d times", calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSeedFailureIsNotRecorded(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	expectEnsure(mock)
	mock.ExpectQuery("select name from schema_seeds").WillReturnRows(sqlmock.NewRows([]string{"name"}))

	_, err = NewManager(db, testFiles(), "sql").Seed(context.Background(), "demo", func(context.Context) error {
		return errors.New("fixture broken")
	})
	if err == nil {
		t.Fatal("expected seed error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("create table t (v text);\ninsert into t values ('x;y');\n  \n")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[1] != "\ninsert into t values ('x;y');" {
		t.Fatalf("unexpected second statement %q", stmts[1])
	}
}
