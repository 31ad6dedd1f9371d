package database

import (
	"context"
	"errors"
	"testing"
)

func TestOpenSQLiteMemory(t *testing.T) {
	t.Parallel()

	db, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	var got int
	if err := db.NewSelect().ColumnExpr("1").Scan(context.Background(), &got); err != nil {
		t.Fatalf("select error = %v", err)
	}
	if got != 1 {
		t.Fatalf("select = %d, want 1", got)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{Driver: "oracle", DSN: "x"})
	if !errors.Is(err, ErrUnsupportedDriver) {
		t.Fatalf("Open() error = %v, want ErrUnsupportedDriver", err)
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), Config{Driver: DriverSQLite}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
