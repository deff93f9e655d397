package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func TestPingWithRetry(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer raw.Close()
	db := sqlx.NewDb(raw, "mysql")

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectPing()

	opts := Options{Retries: 2, RetryBackoff: time.Millisecond}
	if err := PingWithRetry(context.Background(), db, opts); err != nil {
		t.Fatalf("PingWithRetry: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPingWithRetryGivesUp(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer raw.Close()
	db := sqlx.NewDb(raw, "mysql")

	down := errors.New("connection refused")
	mock.ExpectPing().WillReturnError(down)
	mock.ExpectPing().WillReturnError(down)

	opts := Options{Retries: 1, RetryBackoff: time.Millisecond}
	if err := PingWithRetry(context.Background(), db, opts); !errors.Is(err, down) {
		t.Fatalf("err = %v, want %v", err, down)
	}
}

func TestOpenRejectsBadDSN(t *testing.T) {
	if _, err := Open("not a dsn", DefaultOptions()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestOpenIsLazy(t *testing.T) {
	db, err := Open("reveal:pw@tcp(127.0.0.1:1)/reveal", DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()
	if db.DriverName() != "mysql" {
		t.Fatalf("driver = %q", db.DriverName())
	}
}
