package storage

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// testDB runs the shared test suite against a DB implementation.
func testDB(t *testing.T, db DB) {
	t.Helper()

	t.Run("PutAndGet", func(t *testing.T) {
		err := db.Put([]byte("key1"), []byte("value1"))
		if err != nil {
			t.Fatalf("Put() error: %v", err)
		}

		val, err := db.Get([]byte("key1"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !bytes.Equal(val, []byte("value1")) {
			t.Errorf("Get() = %q, want %q", val, "value1")
		}
	})

	t.Run("GetNonexistent", func(t *testing.T) {
		_, err := db.Get([]byte("nonexistent"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() for missing key error = %v, want ErrNotFound", err)
		}
	})

	t.Run("Has", func(t *testing.T) {
		db.Put([]byte("exists"), []byte("yes"))

		ok, err := db.Has([]byte("exists"))
		if err != nil {
			t.Fatalf("Has() error: %v", err)
		}
		if !ok {
			t.Error("Has() = false for existing key")
		}

		ok, err = db.Has([]byte("missing"))
		if err != nil {
			t.Fatalf("Has() error: %v", err)
		}
		if ok {
			t.Error("Has() = true for missing key")
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		db.Put([]byte("ow"), []byte("first"))
		db.Put([]byte("ow"), []byte("second"))

		val, err := db.Get([]byte("ow"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !bytes.Equal(val, []byte("second")) {
			t.Errorf("Get() after overwrite = %q, want %q", val, "second")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		db.Put([]byte("del"), []byte("value"))

		err := db.Delete([]byte("del"))
		if err != nil {
			t.Fatalf("Delete() error: %v", err)
		}

		ok, _ := db.Has([]byte("del"))
		if ok {
			t.Error("key should be gone after Delete()")
		}

		_, err = db.Get([]byte("del"))
		if err == nil {
			t.Error("Get() after Delete() should return error")
		}
	})

	t.Run("DeleteNonexistent", func(t *testing.T) {
		// Deleting a nonexistent key should not error.
		err := db.Delete([]byte("never-existed"))
		if err != nil {
			t.Errorf("Delete() nonexistent key error: %v", err)
		}
	})

	t.Run("EmptyValue", func(t *testing.T) {
		err := db.Put([]byte("empty"), []byte{})
		if err != nil {
			t.Fatalf("Put() empty value error: %v", err)
		}

		val, err := db.Get([]byte("empty"))
		if err != nil {
			t.Fatalf("Get() empty value error: %v", err)
		}
		if len(val) != 0 {
			t.Errorf("expected empty value, got %d bytes", len(val))
		}
	})

	t.Run("BinaryData", func(t *testing.T) {
		key := []byte{0x00, 0x01, 0xFF}
		value := make([]byte, 256)
		for i := range value {
			value[i] = byte(i)
		}

		err := db.Put(key, value)
		if err != nil {
			t.Fatalf("Put() binary error: %v", err)
		}

		got, err := db.Get(key)
		if err != nil {
			t.Fatalf("Get() binary error: %v", err)
		}
		if !bytes.Equal(got, value) {
			t.Error("binary roundtrip failed")
		}
	})

	t.Run("ForEach", func(t *testing.T) {
		db.Put([]byte("prefix/a"), []byte("1"))
		db.Put([]byte("prefix/b"), []byte("2"))
		db.Put([]byte("prefix/c"), []byte("3"))
		db.Put([]byte("other/x"), []byte("4"))

		var count int
		err := db.ForEach([]byte("prefix/"), func(key, value []byte) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() error: %v", err)
		}
		if count != 3 {
			t.Errorf("ForEach(prefix/) count = %d, want 3", count)
		}
	})

	t.Run("ForEachOrdered", func(t *testing.T) {
		db.Put([]byte("ord/\x00\x02"), []byte("2"))
		db.Put([]byte("ord/\x00\x01"), []byte("1"))
		db.Put([]byte("ord/\x01\x00"), []byte("3"))

		var got string
		db.ForEach([]byte("ord/"), func(key, value []byte) error {
			got += string(value)
			return nil
		})
		if got != "123" {
			t.Errorf("ForEach order = %q, want %q", got, "123")
		}
	})

	t.Run("ForEachEmpty", func(t *testing.T) {
		var count int
		err := db.ForEach([]byte("nonexistent/"), func(key, value []byte) error {
			count++
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() error: %v", err)
		}
		if count != 0 {
			t.Errorf("ForEach(nonexistent/) count = %d, want 0", count)
		}
	})
}

// testBatch checks that batched writes stay invisible until Commit.
func testBatch(t *testing.T, db interface {
	DB
	Batcher
}) {
	t.Helper()

	db.Put([]byte("batch/old"), []byte("x"))

	b := db.NewBatch()
	if err := b.Put([]byte("batch/a"), []byte("1")); err != nil {
		t.Fatalf("batch Put: %v", err)
	}
	if err := b.Put([]byte("batch/b"), []byte("2")); err != nil {
		t.Fatalf("batch Put: %v", err)
	}
	if err := b.Delete([]byte("batch/old")); err != nil {
		t.Fatalf("batch Delete: %v", err)
	}

	if ok, _ := db.Has([]byte("batch/a")); ok {
		t.Fatal("batched write visible before Commit")
	}
	if ok, _ := db.Has([]byte("batch/old")); !ok {
		t.Fatal("batched delete applied before Commit")
	}

	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	for _, k := range []string{"batch/a", "batch/b"} {
		if ok, _ := db.Has([]byte(k)); !ok {
			t.Errorf("%s missing after Commit", k)
		}
	}
	if ok, _ := db.Has([]byte("batch/old")); ok {
		t.Error("batch/old still present after Commit")
	}
}

// testBatchDiscard checks that Discard drops pending writes and is
// harmless after Commit.
func testBatchDiscard(t *testing.T, db interface {
	DB
	Batcher
}) {
	t.Helper()

	b := db.NewBatch()
	if err := b.Put([]byte("discard/a"), []byte("1")); err != nil {
		t.Fatalf("batch Put: %v", err)
	}
	b.Discard()
	if ok, _ := db.Has([]byte("discard/a")); ok {
		t.Fatal("discarded write applied")
	}

	b = db.NewBatch()
	if err := b.Put([]byte("discard/b"), []byte("2")); err != nil {
		t.Fatalf("batch Put: %v", err)
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	b.Discard()
	got, err := db.Get([]byte("discard/b"))
	if err != nil || string(got) != "2" {
		t.Fatalf("Get after Commit and Discard = %q, %v", got, err)
	}
}

// testForEachFrom checks that a seek starts at the given key and stays
// inside the prefix.
func testForEachFrom(t *testing.T, db DB) {
	t.Helper()

	for _, k := range []string{"seek/1", "seek/2", "seek/3", "seek/4", "seel/0"} {
		db.Put([]byte(k), []byte(k))
	}

	tests := []struct {
		start string
		want  []string
	}{
		{"seek/3", []string{"seek/3", "seek/4"}},
		{"seek/25", []string{"seek/3", "seek/4"}},
		{"seek/", []string{"seek/1", "seek/2", "seek/3", "seek/4"}},
		{"a", []string{"seek/1", "seek/2", "seek/3", "seek/4"}},
		{"seek/9", nil},
	}
	for _, tt := range tests {
		var got []string
		err := ForEachFrom(db, []byte("seek/"), []byte(tt.start), func(key, value []byte) error {
			got = append(got, string(key))
			return nil
		})
		if err != nil {
			t.Fatalf("ForEachFrom(%q): %v", tt.start, err)
		}
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("ForEachFrom(%q) = %v, want %v", tt.start, got, tt.want)
		}
	}
}

func TestMemoryDB(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	testDB(t, db)
	testBatch(t, db)
	testBatchDiscard(t, db)
	testForEachFrom(t, db)
}

func TestBadgerDB(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()
	testDB(t, db)
	testBatch(t, db)
	testBatchDiscard(t, db)
	testForEachFrom(t, db)
}

func TestBadgerDB_Persistence(t *testing.T) {
	dir := t.TempDir()

	// Write data.
	db1, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	db1.Put([]byte("persist"), []byte("data"))
	db1.Close()

	// Reopen and read.
	db2, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() reopen error: %v", err)
	}
	defer db2.Close()

	val, err := db2.Get([]byte("persist"))
	if err != nil {
		t.Fatalf("Get() after reopen error: %v", err)
	}
	if !bytes.Equal(val, []byte("data")) {
		t.Errorf("persisted value = %q, want %q", val, "data")
	}
}
