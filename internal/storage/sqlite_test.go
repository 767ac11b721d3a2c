package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/fsmcheck/internal/models"
)

const (
	genA = "0f8fad5b-d9cb-469f-a165-70867728950e"
	genB = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStorage_GenerationLifecycle(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	active, err := store.ActiveGeneration(ctx)
	if err != nil || active != nil {
		t.Fatalf("fresh database should have no active generation: %v, %v", active, err)
	}

	gen, err := store.CreateGeneration(ctx, genA)
	if err != nil {
		t.Fatal(err)
	}
	if gen.Table != "records_0f8fad5bd9cb469fa16570867728950e" {
		t.Errorf("table = %s", gen.Table)
	}

	n, err := store.InsertRecords(ctx, gen, []models.Record{
		{ID: 1, Date: "01.01.2010", Text: "first"},
		{ID: 2, Date: models.DateUnknown, Text: "second"},
		{ID: 1, Date: "02.02.2020", Text: "first again"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || gen.RecordCount != 2 {
		t.Errorf("expected 2 distinct records, got %d / %d", n, gen.RecordCount)
	}

	got, err := store.GetRecords(ctx, gen, []int64{1, 2, 99})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[1].Text != "first again" || got[1].Date != "02.02.2020" {
		t.Errorf("last write should win: %+v", got[1])
	}

	if err := store.ActivateGeneration(ctx, gen); err != nil {
		t.Fatal(err)
	}
	active, err = store.ActiveGeneration(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if active == nil || active.ID != genA || active.RecordCount != 2 {
		t.Errorf("active = %+v", active)
	}
}

func TestSQLiteStorage_SwitchAndDrop(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	a, _ := store.CreateGeneration(ctx, genA)
	_, _ = store.InsertRecords(ctx, a, []models.Record{{ID: 1, Date: "d", Text: "t"}})
	if err := store.ActivateGeneration(ctx, a); err != nil {
		t.Fatal(err)
	}
	b, _ := store.CreateGeneration(ctx, genB)
	_, _ = store.InsertRecords(ctx, b, []models.Record{{ID: 2, Date: "d", Text: "t"}, {ID: 3, Date: "d", Text: "t"}})

	tables, err := store.ListGenerationTables(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tables) != 2 {
		t.Errorf("expected 2 tables, got %v", tables)
	}

	if err := store.ActivateGeneration(ctx, b); err != nil {
		t.Fatal(err)
	}
	active, _ := store.ActiveGeneration(ctx)
	if active.ID != genB {
		t.Errorf("active = %s, want %s", active.ID, genB)
	}

	if err := store.DropGeneration(ctx, a); err != nil {
		t.Fatal(err)
	}
	exists, err := store.TableExists(ctx, a.Table)
	if err != nil || exists {
		t.Errorf("dropped table should be gone: %v, %v", exists, err)
	}
	n, err := store.CountRecords(ctx, b)
	if err != nil || n != 2 {
		t.Errorf("CountRecords: %v, %d", err, n)
	}
}

func TestSQLiteStorage_RejectsBadTableName(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	bad := &Generation{ID: "x", Table: "records; DROP TABLE generations"}
	if _, err := store.CountRecords(ctx, bad); err == nil {
		t.Error("expected error for invalid table name")
	}
	if err := store.DropGeneration(ctx, bad); err == nil {
		t.Error("expected error for invalid table name")
	}
	if _, err := store.CreateGeneration(ctx, "not-a-uuid"); err == nil {
		t.Error("expected error for id that does not form a valid table name")
	}
}

func TestSQLiteStorage_GetRecordsManyIDs(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	gen, _ := store.CreateGeneration(ctx, genA)

	records := make([]models.Record, 1200)
	ids := make([]int64, len(records))
	for i := range records {
		records[i] = models.Record{ID: int64(i + 1), Date: "d", Text: "t"}
		ids[i] = int64(i + 1)
	}
	if _, err := store.InsertRecords(ctx, gen, records); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetRecords(ctx, gen, ids)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(records) {
		t.Errorf("got %d records, want %d", len(got), len(records))
	}
}
