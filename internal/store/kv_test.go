package store

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), DBFileName))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestAppendLogOrder(t *testing.T) {
	db := openTestDB(t)

	records := [][]byte{[]byte("first"), []byte("second"), []byte("third")}
	for _, r := range records {
		err := db.Update(func(tx *bbolt.Tx) error {
			_, err := AppendLog(tx, r)
			return err
		})
		if err != nil {
			t.Fatalf("AppendLog failed: %v", err)
		}
	}

	var got [][]byte
	var seqs []uint64
	err := db.ForEachLog(func(seq uint64, record []byte) error {
		seqs = append(seqs, seq)
		got = append(got, append([]byte(nil), record...))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEachLog failed: %v", err)
	}

	if len(got) != len(records) {
		t.Fatalf("Expected %d records, got %d", len(records), len(got))
	}
	for i := range records {
		if !bytes.Equal(got[i], records[i]) {
			t.Errorf("Record %d: expected %q, got %q", i, records[i], got[i])
		}
		if seqs[i] != uint64(i+1) {
			t.Errorf("Record %d: expected seq %d, got %d", i, i+1, seqs[i])
		}
	}

	n, err := db.LogLen()
	if err != nil {
		t.Fatalf("LogLen failed: %v", err)
	}
	if n != len(records) {
		t.Errorf("Expected LogLen %d, got %d", len(records), n)
	}
}

func TestPutGet(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.Get(BucketPhases, []byte("k")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := db.Put(BucketPhases, []byte("k"), []byte{2}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	v, err := db.Get(BucketPhases, []byte("k"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(v, []byte{2}) {
		t.Errorf("Expected [2], got %v", v)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	db := openTestDB(t)

	if err := db.PutConfig("mutation.record", "false"); err != nil {
		t.Fatalf("PutConfig failed: %v", err)
	}
	v, err := db.GetConfig("mutation.record")
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if v != "false" {
		t.Errorf("Expected false, got %s", v)
	}
	if err := db.RemoveConfig("mutation.record"); err != nil {
		t.Fatalf("RemoveConfig failed: %v", err)
	}
	if _, err := db.GetConfig("mutation.record"); err == nil {
		t.Error("Expected error after RemoveConfig")
	}
}

func TestSharedDBRefCount(t *testing.T) {
	dir := t.TempDir()

	a, err := GetSharedDB(dir)
	if err != nil {
		t.Fatalf("GetSharedDB failed: %v", err)
	}
	b, err := GetSharedDB(dir)
	if err != nil {
		t.Fatalf("GetSharedDB failed: %v", err)
	}
	if a.DB != b.DB {
		t.Error("Expected both handles to share one database")
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// b still holds a reference, writes must work.
	if err := b.PutConfig("k", "v"); err != nil {
		t.Fatalf("PutConfig after partial close failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Double close is a no-op.
	if err := b.Close(); err != nil {
		t.Errorf("Second Close returned %v", err)
	}
}
