package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDiskUsage(t *testing.T) {
	dir := t.TempDir()

	db := filepath.Join(dir, "restricted.db")
	if err := os.WriteFile(db, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(db+"-wal", []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	idx := filepath.Join(dir, "indices")
	if err := os.MkdirAll(filepath.Join(idx, "gen-1"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(idx, "gen-1", "store"), []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}

	u, err := DiskUsage(db, idx, filepath.Join(dir, "missing"), "")
	if err != nil {
		t.Fatal(err)
	}
	if u.PerPath[db] != 8 {
		t.Errorf("database with wal: got %d, want 8", u.PerPath[db])
	}
	if u.PerPath[idx] != 10 {
		t.Errorf("index dir: got %d, want 10", u.PerPath[idx])
	}
	if u.TotalBytes != 18 {
		t.Errorf("total: got %d, want 18", u.TotalBytes)
	}
	if _, ok := u.PerPath[""]; ok {
		t.Error("empty path should be skipped")
	}
}
