package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openCatalog(t *testing.T) *Catalog {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "mpcsim.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return NewCatalog(database)
}

func TestCatalogRecordGet(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)

	cost := 12.5
	in := Entry{
		RunID:        "mpc_1",
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Controller:   "mpc",
		Plant:        "nominal",
		Steps:        100,
		Period:       10,
		Horizon:      10,
		InitialState: 1,
		FinalState:   0.05,
		Fallbacks:    2,
		Cost:         &cost,
		RunDir:       "/tmp/runs/mpc_1",
	}
	if err := c.Record(ctx, in); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	got, err := c.Get(ctx, "mpc_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Controller != "mpc" || got.Steps != 100 || got.Fallbacks != 2 || got.RunDir != in.RunDir {
		t.Fatalf("unexpected entry %+v", got)
	}
	if !got.CreatedAt.Equal(in.CreatedAt) {
		t.Fatalf("created_at = %s, want %s", got.CreatedAt, in.CreatedAt)
	}
	if got.Cost == nil || *got.Cost != 12.5 {
		t.Fatalf("cost = %v, want 12.5", got.Cost)
	}
}

func TestCatalogMissing(t *testing.T) {
	c := openCatalog(t)
	if _, err := c.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	if err := c.Delete(context.Background(), "nope"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
}

func TestCatalogListNewestFirst(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		e := Entry{RunID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute), Controller: "none", Plant: "nominal", RunDir: id}
		if err := c.Record(ctx, e); err != nil {
			t.Fatalf("Record(%s) error = %v", id, err)
		}
	}

	all, err := c.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[0].RunID != "c" || all[2].RunID != "a" {
		t.Fatalf("unexpected order %+v", all)
	}
	if all[0].Cost != nil {
		t.Fatalf("expected nil cost, got %v", *all[0].Cost)
	}

	limited, err := c.List(ctx, 2)
	if err != nil {
		t.Fatalf("List(2) error = %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(limited))
	}

	if err := c.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	all, _ = c.List(ctx, 0)
	if len(all) != 2 {
		t.Fatalf("expected 2 entries after delete, got %d", len(all))
	}
}

func TestCatalogRecordReplaces(t *testing.T) {
	ctx := context.Background()
	c := openCatalog(t)
	e := Entry{RunID: "r", Controller: "pid", Plant: "drift", RunDir: "r"}
	if err := c.Record(ctx, e); err != nil {
		t.Fatal(err)
	}
	e.Fallbacks = 4
	if err := c.Record(ctx, e); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, "r")
	if err != nil {
		t.Fatal(err)
	}
	if got.Fallbacks != 4 {
		t.Fatalf("fallbacks = %d, want 4", got.Fallbacks)
	}
	if err := c.Record(ctx, Entry{}); err == nil {
		t.Fatal("expected error for empty run id")
	}
}
