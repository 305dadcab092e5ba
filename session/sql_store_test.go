package session

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newSQLStoreWithMock(t *testing.T) (*SQLStore, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewSQLStore(db), mock, db
}

func TestSQLStorePut(t *testing.T) {
	store, mock, db := newSQLStoreWithMock(t)
	defer db.Close()

	record := memRecord("tok-sql", "subj-sql")
	payload, err := Encode(record)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	q := `(?s)^\s*INSERT\s+INTO\s+session_records\b.*ON\s+CONFLICT\s+\(token\)\s+DO\s+UPDATE`
	mock.ExpectExec(q).
		WithArgs("tok-sql", "subj-sql", payload, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Put(context.Background(), record, time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSQLStoreGetFound(t *testing.T) {
	store, mock, db := newSQLStoreWithMock(t)
	defer db.Close()

	record := memRecord("tok-sql", "subj-sql")
	payload, err := Encode(record)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	q := `(?s)^\s*SELECT\s+payload\s+FROM\s+session_records\s+WHERE\s+token\s*=\s*\$1\s+AND\s+expires_at\s*>\s*now\(\)`
	mock.ExpectQuery(q).
		WithArgs("tok-sql").
		WillReturnRows(sqlmock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := store.Get(context.Background(), "tok-sql")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.SubjectID != "subj-sql" || got.Token != "tok-sql" {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestSQLStoreGetNotFound(t *testing.T) {
	store, mock, db := newSQLStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+payload`).
		WithArgs("tok-absent").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.Get(context.Background(), "tok-absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSQLStoreGetBackendError(t *testing.T) {
	store, mock, db := newSQLStoreWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+payload`).
		WithArgs("tok").
		WillReturnError(errors.New("connection refused"))

	if _, err := store.Get(context.Background(), "tok"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestSQLStoreDelete(t *testing.T) {
	store, mock, db := newSQLStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+session_records\s+WHERE\s+token\s*=\s*\$1`).
		WithArgs("tok-del").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Delete(context.Background(), "tok-del"); err != nil {
		t.Fatalf("Delete of absent token must be a no-op: %v", err)
	}
}

func TestSQLStoreListBySubject(t *testing.T) {
	store, mock, db := newSQLStoreWithMock(t)
	defer db.Close()

	first, err := Encode(memRecord("tok-a", "subj"))
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	second, err := Encode(memRecord("tok-b", "subj"))
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}

	mock.ExpectQuery(`SELECT\s+token,\s*payload\s+FROM\s+session_records\s+WHERE\s+subject_id\s*=\s*\$1`).
		WithArgs("subj").
		WillReturnRows(sqlmock.NewRows([]string{"token", "payload"}).
			AddRow("tok-a", first).
			AddRow("tok-b", second))

	records, err := store.ListBySubject(context.Background(), "subj")
	if err != nil {
		t.Fatalf("ListBySubject error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
}

func TestSQLStoreRefreshTTL(t *testing.T) {
	store, mock, db := newSQLStoreWithMock(t)
	defer db.Close()

	q := `(?s)^\s*UPDATE\s+session_records\s+SET\s+expires_at\s*=\s*\$2\s+WHERE\s+token\s*=\s*\$1`

	mock.ExpectExec(q).
		WithArgs("tok-live", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.RefreshTTL(context.Background(), "tok-live", time.Minute); err != nil {
		t.Fatalf("RefreshTTL error: %v", err)
	}

	mock.ExpectExec(q).
		WithArgs("tok-gone", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.RefreshTTL(context.Background(), "tok-gone", time.Minute); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSQLStoreReap(t *testing.T) {
	store, mock, db := newSQLStoreWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+session_records\s+WHERE\s+expires_at\s*<=\s*now\(\)`).
		WillReturnResult(sqlmock.NewResult(0, 7))

	n, err := store.Reap(context.Background())
	if err != nil {
		t.Fatalf("Reap error: %v", err)
	}
	if n != 7 {
		t.Fatalf("got %d reaped rows, want 7", n)
	}
}
