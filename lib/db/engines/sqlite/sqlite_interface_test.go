package sqlite

import (
	"bytes"
	"fmt"
	"github.com/ValentinKolb/rtparam/lib/db"
	"github.com/ValentinKolb/rtparam/lib/db/engines/maple"
	dbtesting "github.com/ValentinKolb/rtparam/lib/db/testing"
	"path/filepath"
	"testing"
)

func newMemDB(t testing.TB) db.KVDB {
	database, err := NewSQLiteDB(nil)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	return database
}

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "SQLite", func() db.KVDB {
		return newMemDB(t)
	})
}

func TestFileBacked(t *testing.T) {
	dir := t.TempDir()
	n := 0
	dbtesting.RunKVDBTests(t, "SQLite(file)", func() db.KVDB {
		n++
		database, err := NewSQLiteDB(&DBOptions{Path: filepath.Join(dir, "db", fmt.Sprintf("params-%d.sqlite", n))})
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		return database
	})
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.sqlite")

	database, err := NewSQLiteDB(&DBOptions{Path: path})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := database.Commit(&db.Batch{Writes: []db.Write{{Key: "k", Value: []byte("v")}}}, 7); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	database.Close()

	database, err = NewSQLiteDB(&DBOptions{Path: path})
	if err != nil {
		t.Fatalf("failed to reopen database: %v", err)
	}
	defer database.Close()

	if database.WriteIdx() != 7 {
		t.Errorf("Expected write index 7 after reopen, got %d", database.WriteIdx())
	}
	if value, version, ok := database.Get("k"); !ok || string(value) != "v" || version != 7 {
		t.Errorf("Expected k=v@7 after reopen, got %s@%d (exists=%v)", value, version, ok)
	}
}

func TestSnapshotCompatibleWithMaple(t *testing.T) {
	src := maple.NewMapleDB(nil)
	defer src.Close()

	for i, key := range []string{"a", "b", "c"} {
		err := src.Commit(&db.Batch{Writes: []db.Write{{Key: key, Value: []byte(key + key)}}}, uint64(i+1))
		if err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := src.Save(&buf); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	dst := newMemDB(t)
	defer dst.Close()
	if err := dst.Load(&buf); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if dst.WriteIdx() != 3 {
		t.Errorf("Expected write index 3, got %d", dst.WriteIdx())
	}
	if value, version, ok := dst.Get("b"); !ok || string(value) != "bb" || version != 2 {
		t.Errorf("Expected b=bb@2, got %s@%d (exists=%v)", value, version, ok)
	}
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "SQLite", func() db.KVDB {
		return newMemDB(b)
	})
}

func TestReadErrorsAfterClose(t *testing.T) {
	database := newMemDB(t)
	if err := database.Commit(&db.Batch{Writes: []db.Write{{Key: "k", Value: []byte("v")}}}, 1); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if err := database.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, _, ok, err := db.Get(database, "k"); err == nil || ok {
		t.Errorf("expected a read error on a closed database, got ok=%v err=%v", ok, err)
	}

	called := false
	if _, err := db.Scan(database, func(string, []byte, uint64) bool { called = true; return true }); err == nil {
		t.Errorf("expected a scan error on a closed database")
	}
	if called {
		t.Errorf("a failed scan must not report any row")
	}
}
