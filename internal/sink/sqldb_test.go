package sink

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ashirbekov/txinsights/internal/domain"
)

func newMockSink(t *testing.T) (*sqlSink, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return newSQLSink(db, "sqlite", domain.TableName, sqliteType), mock
}

func TestSQLSinkInsertBatchRollsBackOnRowError(t *testing.T) {
	s, mock := newMockSink(t)
	boom := errors.New("constraint violated")

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(insertSQL(domain.TableName))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnError(boom)
	mock.ExpectRollback()

	err := s.InsertBatch(context.Background(), sampleTransactions(2))
	if !errors.Is(err, boom) {
		t.Fatalf("InsertBatch error = %v, want wrapped %v", err, boom)
	}
	if !strings.Contains(err.Error(), "insert row 1") {
		t.Errorf("error %q should name the failing row", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLSinkInsertBatchBeginError(t *testing.T) {
	s, mock := newMockSink(t)
	boom := errors.New("db closed")

	mock.ExpectBegin().WillReturnError(boom)

	err := s.InsertBatch(context.Background(), sampleTransactions(1))
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "begin batch") {
		t.Errorf("InsertBatch error = %v, want begin failure", err)
	}
}

func TestSQLSinkInsertBatchCommitError(t *testing.T) {
	s, mock := newMockSink(t)
	boom := errors.New("disk full")

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(insertSQL(domain.TableName))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(boom)

	err := s.InsertBatch(context.Background(), sampleTransactions(1))
	if !errors.Is(err, boom) || !strings.Contains(err.Error(), "commit batch") {
		t.Errorf("InsertBatch error = %v, want commit failure", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLSinkQueryPropagatesError(t *testing.T) {
	s, mock := newMockSink(t)
	boom := errors.New("no such table")

	mock.ExpectQuery("SELECT * FROM missing").WillReturnError(boom)

	_, err := s.Query(context.Background(), "SELECT * FROM missing", 0)
	if !errors.Is(err, boom) {
		t.Errorf("Query error = %v, want wrapped %v", err, boom)
	}
}

func TestScanRowsNormalizesBytes(t *testing.T) {
	s, mock := newMockSink(t)

	rows := sqlmock.NewRows([]string{"merchant_city", "n"}).
		AddRow([]byte("Almaty"), int64(12)).
		AddRow("Astana", int64(7))
	mock.ExpectQuery("SELECT merchant_city, n").WillReturnRows(rows)

	res, err := s.Query(context.Background(), "SELECT merchant_city, n", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Columns[0] != "merchant_city" || res.Columns[1] != "n" {
		t.Errorf("Columns = %v", res.Columns)
	}
	if res.Rows[0]["merchant_city"] != "Almaty" {
		t.Errorf("byte column = %#v, want plain string", res.Rows[0]["merchant_city"])
	}
	if res.Rows[1]["n"] != int64(7) {
		t.Errorf("n = %v, want 7", res.Rows[1]["n"])
	}
}

func TestSQLSinkEnsureSchema(t *testing.T) {
	s, mock := newMockSink(t)

	mock.ExpectExec(createTableSQL(domain.TableName, sqliteType)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
