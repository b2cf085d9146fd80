package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"marketfeed/internal/ledger"
	"marketfeed/pkg/storage/postgres"

	"github.com/google/uuid"
)

var _ ledger.Recorder = (*postgres.PostgresClient)(nil)

func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("MARKETFEED_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("MARKETFEED_TEST_POSTGRES_DSN not set")
	}
	return dsn
}

func TestToSessionRecord(t *testing.T) {
	id := uuid.NewString()
	now := time.Now()

	row, err := postgres.ToSessionRecord(ledger.SessionRecord{ID: id, RemoteAddr: "127.0.0.1:5000", DisconnectedAt: now, FramesSent: 3})
	if err != nil {
		t.Fatalf("ToSessionRecord: %v", err)
	}
	if row.ID.String() != id || row.FramesSent != 3 || !row.DisconnectedAt.Equal(now) {
		t.Errorf("unexpected row: %+v", row)
	}

	if _, err := postgres.ToSessionRecord(ledger.SessionRecord{ID: "not-a-uuid"}); err == nil {
		t.Error("expected error for invalid id")
	}
}

// go test -v --run ^TestPostgresInvalidDSN$
func TestPostgresInvalidDSN(t *testing.T) {
	testDSN(t)
	invalidDSN := "host=invalid port=5432 user=fail password=fail dbname=fail sslmode=disable connect_timeout=2"

	_, err := postgres.NewClient(invalidDSN)
	if err == nil {
		t.Fatal("expected error for invalid DSN, got nil")
	}
}

// go test -v --run TestSessionRecordCRUD
func TestSessionRecordCRUD(t *testing.T) {
	client, err := postgres.NewClient(testDSN(t))
	if err != nil {
		t.Fatalf("failed to connect to DB: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if !client.IsHealthy(ctx) {
		t.Fatal("expected healthy DB connection")
	}
	if err := client.AutoMigrateSessionRecord(); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	subscribed := now.Add(-time.Minute)
	rec := ledger.SessionRecord{
		ID:             uuid.NewString(),
		RemoteAddr:     "10.0.0.1:40000",
		ConnectedAt:    now.Add(-2 * time.Minute),
		SubscribedAt:   &subscribed,
		DisconnectedAt: now.Add(-90 * 24 * time.Hour),
		FramesSent:     150,
		CloseReason:    "client closed",
	}

	if err := client.Record(ctx, rec); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := client.Record(ctx, rec); err == nil {
		t.Error("expected duplicate insert to be reported")
	}

	got, err := client.GetSession(ctx, uuid.MustParse(rec.ID))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.FramesSent != 150 || got.SubscribedAt == nil {
		t.Errorf("unexpected session values: %+v", got)
	}

	removed, err := client.DeleteBefore(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if removed < 1 {
		t.Errorf("expected at least one row removed, got %d", removed)
	}

	if _, err := client.GetSession(ctx, uuid.MustParse(rec.ID)); err == nil {
		t.Error("expected error after delete, got nil")
	}
}
