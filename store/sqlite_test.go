package store

import (
	"context"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("unexpected error opening sqlite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreSaveLoadRoundTrip(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := Record{RunID: "run1", CheckpointID: "cp1", Label: "manual", Signature: "sig", Timestamp: time.Now().UTC().Truncate(time.Second), Data: []byte("payload")}
	if err := s.Save(ctx, rec); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := s.Load(ctx, "run1", "cp1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded.RunID != rec.RunID || loaded.CheckpointID != rec.CheckpointID || string(loaded.Data) != string(rec.Data) {
		t.Fatalf("expected round-tripped record to match, got %+v", loaded)
	}
}

func TestSQLiteStoreLoadMissingReturnsErrNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	if _, err := s.Load(context.Background(), "nope", "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStoreSaveUpsertsOnConflict(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	base := Record{RunID: "run1", CheckpointID: "cp1", Timestamp: time.Now().UTC().Truncate(time.Second), Data: []byte("v1")}
	if err := s.Save(ctx, base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	base.Data = []byte("v2")
	base.Label = "updated"
	if err := s.Save(ctx, base); err != nil {
		t.Fatalf("unexpected error on upsert: %v", err)
	}

	loaded, err := s.Load(ctx, "run1", "cp1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(loaded.Data) != "v2" || loaded.Label != "updated" {
		t.Fatalf("expected the upsert to replace the existing row, got %+v", loaded)
	}
}

func TestSQLiteStoreListCheckpointsOrdersBySaveOrder(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for i, id := range []string{"cp1", "cp2", "cp3"} {
		rec := Record{RunID: "run1", CheckpointID: id, Timestamp: time.Now().UTC().Add(time.Duration(i) * time.Second), Data: []byte(id)}
		if err := s.Save(ctx, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	recs, err := s.ListCheckpoints(ctx, "run1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recs) != 3 || recs[0].CheckpointID != "cp1" || recs[2].CheckpointID != "cp3" {
		t.Fatalf("expected checkpoints in save order, got %+v", recs)
	}

	ids, err := s.ListCheckpointIDs(ctx, "run1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 3 || ids[0] != "cp1" || ids[2] != "cp3" {
		t.Fatalf("expected ids in save order, got %v", ids)
	}
}

func TestSQLiteStoreGetLatestReturnsMostRecentSave(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, Record{RunID: "run1", CheckpointID: "cp1", Timestamp: time.Now().UTC(), Data: []byte("first")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Save(ctx, Record{RunID: "run1", CheckpointID: "cp2", Timestamp: time.Now().UTC(), Data: []byte("second")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	latest, err := s.GetLatest(ctx, "run1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.CheckpointID != "cp2" {
		t.Fatalf("expected the most recently saved checkpoint, got %+v", latest)
	}
}

func TestSQLiteStoreDeleteThenLoadReturnsErrNotFound(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, Record{RunID: "run1", CheckpointID: "cp1", Timestamp: time.Now().UTC(), Data: []byte("x")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Delete(ctx, "run1", "cp1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Load(ctx, "run1", "cp1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
