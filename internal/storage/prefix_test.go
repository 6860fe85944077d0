package storage

import (
	"fmt"
	"sort"
	"testing"
)

func TestPrefixDB_GetPutDelete(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("ns1/"))

	// Put and Get.
	if err := db.Put([]byte("key1"), []byte("val1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := db.Get([]byte("key1"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "val1" {
		t.Fatalf("Get = %q, want %q", got, "val1")
	}

	// Has.
	ok, err := db.Has([]byte("key1"))
	if err != nil {
		t.Fatalf("Has: %v", err)
	}
	if !ok {
		t.Fatal("Has = false, want true")
	}

	// Delete.
	if err := db.Delete([]byte("key1")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	ok, err = db.Has([]byte("key1"))
	if err != nil {
		t.Fatalf("Has after delete: %v", err)
	}
	if ok {
		t.Fatal("Has after delete = true, want false")
	}
}

func TestPrefixDB_Isolation(t *testing.T) {
	inner := NewMemory()
	dbA := NewPrefixDB(inner, []byte("a/"))
	dbB := NewPrefixDB(inner, []byte("b/"))

	// Write to A.
	if err := dbA.Put([]byte("key"), []byte("fromA")); err != nil {
		t.Fatal(err)
	}
	// Write to B.
	if err := dbB.Put([]byte("key"), []byte("fromB")); err != nil {
		t.Fatal(err)
	}

	// A sees its own value.
	got, err := dbA.Get([]byte("key"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "fromA" {
		t.Fatalf("A.Get = %q, want %q", got, "fromA")
	}

	// B sees its own value.
	got, err = dbB.Get([]byte("key"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "fromB" {
		t.Fatalf("B.Get = %q, want %q", got, "fromB")
	}

	// A cannot see B's key.
	ok, err := dbA.Has([]byte("b/key"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("A should not see B's raw key")
	}
}

func TestPrefixDB_ForEach(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("c/0000000000000007/"))

	// Put several keys with different sub-prefixes.
	db.Put([]byte("u/k1"), []byte("v1"))
	db.Put([]byte("u/k2"), []byte("v2"))
	db.Put([]byte("b/k3"), []byte("v3"))

	// ForEach with "u/" prefix should only return u/ keys.
	var keys []string
	err := db.ForEach([]byte("u/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}

	sort.Strings(keys)
	if len(keys) != 2 {
		t.Fatalf("ForEach returned %d keys, want 2", len(keys))
	}
	if keys[0] != "u/k1" || keys[1] != "u/k2" {
		t.Fatalf("ForEach keys = %v, want [u/k1 u/k2]", keys)
	}
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("pre/"))

	db.Put([]byte("hello"), []byte("world"))

	var sawKey string
	db.ForEach(nil, func(key, value []byte) error {
		sawKey = string(key)
		return nil
	})

	if sawKey != "hello" {
		t.Fatalf("ForEach callback key = %q, want %q (prefix should be stripped)", sawKey, "hello")
	}
}

func TestPrefixDB_ForEachStopEarly(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("p/"))

	for i := 0; i < 10; i++ {
		db.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v"))
	}

	count := 0
	stopErr := fmt.Errorf("stop")
	err := db.ForEach(nil, func(key, value []byte) error {
		count++
		if count >= 3 {
			return stopErr
		}
		return nil
	})
	if err != stopErr {
		t.Fatalf("ForEach err = %v, want stopErr", err)
	}
	if count != 3 {
		t.Fatalf("ForEach called %d times, want 3", count)
	}
}

func TestPrefixDB_CloseIsNoop(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("x/"))

	db.Put([]byte("key"), []byte("val"))

	// Close the PrefixDB; the inner DB must keep its data.
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Inner should still have the data.
	got, err := inner.Get([]byte("x/key"))
	if err != nil {
		t.Fatalf("inner.Get after Close: %v", err)
	}
	if string(got) != "val" {
		t.Fatalf("inner.Get = %q, want %q", got, "val")
	}
}

func TestPrefixDB_Batch(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(inner, []byte("c/1/"))

	b := db.NewBatch()
	b.Put([]byte("h/1"), []byte("one"))
	b.Put([]byte("h/2"), []byte("two"))
	if ok, _ := inner.Has([]byte("c/1/h/1")); ok {
		t.Fatal("write visible before Commit")
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := inner.Get([]byte("c/1/h/2"))
	if err != nil {
		t.Fatalf("inner.Get: %v", err)
	}
	if string(got) != "two" {
		t.Fatalf("inner.Get = %q, want %q", got, "two")
	}

	b = db.NewBatch()
	b.Delete([]byte("h/1"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit delete: %v", err)
	}
	if ok, _ := db.Has([]byte("h/1")); ok {
		t.Fatal("h/1 still present after batched delete")
	}
}

// plainDB hides the Batcher implementation of the wrapped MemoryDB.
type plainDB struct{ DB }

func TestPrefixDB_BatchFallback(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(plainDB{inner}, []byte("p/"))

	b := db.NewBatch()
	b.Put([]byte("k"), []byte("v"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := inner.Get([]byte("p/k"))
	if err != nil || string(got) != "v" {
		t.Fatalf("inner.Get = %q, %v", got, err)
	}
}

func TestPrefixDB_WrapBatchSpansPrefixes(t *testing.T) {
	inner := NewMemory()
	a := NewPrefixDB(inner, []byte("a/"))
	b := NewPrefixDB(inner, []byte("b/"))

	root := NewBatch(inner)
	a.WrapBatch(root).Put([]byte("k"), []byte("1"))
	b.WrapBatch(root).Put([]byte("k"), []byte("2"))
	root.Put([]byte("top"), []byte("3"))

	if ok, _ := inner.Has([]byte("a/k")); ok {
		t.Fatal("write visible before Commit")
	}
	if err := root.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	for key, want := range map[string]string{"a/k": "1", "b/k": "2", "top": "3"} {
		got, err := inner.Get([]byte(key))
		if err != nil || string(got) != want {
			t.Errorf("Get(%s) = %q, %v; want %q", key, got, err, want)
		}
	}
}

func TestNewBatch_Fallback(t *testing.T) {
	inner := NewMemory()
	b := NewBatch(plainDB{inner})
	if _, ok := b.(*fallbackBatch); !ok {
		t.Fatalf("NewBatch(plain) = %T, want *fallbackBatch", b)
	}
	b.Put([]byte("x"), []byte("y"))
	b.Delete([]byte("missing"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if ok, _ := inner.Has([]byte("x")); !ok {
		t.Fatal("x not written")
	}
}

func TestPrefixDB_BatchDiscard(t *testing.T) {
	inner := NewMemory()
	for _, db := range []*PrefixDB{NewPrefixDB(inner, []byte("p/")), NewPrefixDB(plainDB{inner}, []byte("q/"))} {
		b := db.NewBatch()
		b.Put([]byte("k"), []byte("v"))
		b.Discard()
		if err := b.Commit(); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if ok, _ := db.Has([]byte("k")); ok {
			t.Errorf("%T: discarded write applied", db.inner)
		}
	}
}

func TestPrefixDB_ForEachFrom(t *testing.T) {
	inner := NewMemory()
	inner.Put([]byte("p/h/1"), []byte("1"))
	inner.Put([]byte("p/h/2"), []byte("2"))
	inner.Put([]byte("p/h/3"), []byte("3"))
	inner.Put([]byte("q/h/3"), []byte("other"))

	for _, db := range []*PrefixDB{NewPrefixDB(inner, []byte("p/")), NewPrefixDB(plainDB{inner}, []byte("p/"))} {
		var got []string
		err := ForEachFrom(db, []byte("h/"), []byte("h/2"), func(key, value []byte) error {
			got = append(got, string(key)+"="+string(value))
			return nil
		})
		if err != nil {
			t.Fatalf("ForEachFrom: %v", err)
		}
		if len(got) != 2 || got[0] != "h/2=2" || got[1] != "h/3=3" {
			t.Errorf("%T: got %v", db.inner, got)
		}
	}
}
