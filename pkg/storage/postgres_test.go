//go:build integration

package storage

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("qos"),
		postgres.WithUsername("qos"),
		postgres.WithPassword("qos"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres dsn: %v", err)
	}

	db, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Fatalf("OpenPostgres failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := NewPostgresStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	return store
}

func TestOpenPostgres_EmptyDSN(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestPostgresStore_Put_Get(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	if err := store.Put(ctx, Record{Location: "TestLocation", WeekStart: testWeek, Metric: 0.91}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, found, err := store.Get(ctx, "TestLocation", testWeek)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !found {
		t.Fatal("expected record to be found")
	}
	if got.Metric != 0.91 {
		t.Errorf("Metric = %v, want 0.91", got.Metric)
	}
	if got.ComputedAt.IsZero() {
		t.Error("ComputedAt should be set")
	}
}

func TestPostgresStore_Put_OnConflictDoNothing(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	for _, m := range []float64{0.2, 0.7} {
		if err := store.Put(ctx, Record{Location: "loc", WeekStart: testWeek, Metric: m}); err != nil {
			t.Fatalf("Put(%v) failed: %v", m, err)
		}
	}

	got, _, err := store.Get(ctx, "loc", testWeek)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Metric != 0.2 {
		t.Errorf("Metric = %v, want 0.2", got.Metric)
	}

	var rows int
	if err := store.db.QueryRowContext(ctx, `SELECT count(*) FROM public.qos_metrics`).Scan(&rows); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if rows != 1 {
		t.Errorf("qos_metrics has %d rows, want 1", rows)
	}
}

func TestPostgresStore_Get_NotFound(t *testing.T) {
	store := setupPostgresStore(t)

	_, found, err := store.Get(context.Background(), "nowhere", testWeek)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if found {
		t.Error("expected record not to be found")
	}
}

func TestPostgresStore_EnsureSchema_Idempotent(t *testing.T) {
	store := setupPostgresStore(t)

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Errorf("second EnsureSchema failed: %v", err)
	}
}
