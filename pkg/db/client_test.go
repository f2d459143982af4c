package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplyhub-backend/pkg/config"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open gorm over sqlmock: %v", err)
	}
	return NewFromGorm(conn), mock
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTx_PostgresStatementsAgainstMock(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE products SET available_qty = available_qty - \$1`).
		WithArgs(2, "p-1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Exec("UPDATE products SET available_qty = available_qty - ? WHERE id = ? AND available_qty >= ?", 2, "p-1", 2).Error
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mock.ExpectBegin()
	mock.ExpectRollback()
	err = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return errors.New("abort")
	})
	if err == nil {
		t.Fatal("expected rollback error to surface")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestNew_OpensSQLiteWithSingleWriter(t *testing.T) {
	cfg := config.DBConfig{Driver: "sqlite3", DSN: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())}
	client, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer client.Close()

	if !client.IsSQLite() {
		t.Fatal("expected sqlite dialector")
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("expected one open connection for sqlite, got %d", got)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	if _, err := New(context.Background(), config.DBConfig{Driver: "postgres"}, nil); err == nil {
		t.Fatal("expected missing dsn error")
	}
	if _, err := New(context.Background(), config.DBConfig{Driver: "mysql", DSN: "x"}, nil); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestNormalizeDriver(t *testing.T) {
	cases := map[string]string{"": DriverPostgres, "PostgreSQL": DriverPostgres, " sqlite3 ": DriverSQLite, "mysql": "mysql"}
	for in, want := range cases {
		if got := normalizeDriver(in); got != want {
			t.Fatalf("normalizeDriver(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRetry_RetriesStaleWrites(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryPolicy{MaxRetries: 3, BaseDelay: 1}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return ErrStaleWrite
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("nope")
	attempts := 0
	err := Retry(context.Background(), RetryPolicy{MaxRetries: 5, BaseDelay: 1}, func(context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestRetry_ExhaustedReturnsLastError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), RetryPolicy{MaxRetries: 2, BaseDelay: 1}, func(context.Context) error {
		attempts++
		return ErrStaleWrite
	})
	if !errors.Is(err, ErrStaleWrite) {
		t.Fatalf("expected stale write, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d", attempts)
	}
}

func TestErrorClassification(t *testing.T) {
	if !IsRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatal("serialization failure should be retryable")
	}
	if IsRetryable(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("unique violation should not be retryable")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "wallets_user_id_key"}, "") {
		t.Fatal("expected unique violation")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: wallets.user_id"), "") {
		t.Fatal("expected sqlite unique violation")
	}
}
