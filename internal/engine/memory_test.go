package engine

import (
	"context"
	"testing"
	"time"

	"tsgraph/internal/metadata"
	"tsgraph/internal/timeutil"
)

func mustMD(t *testing.T, name string, params map[string]interface{}) *metadata.Metadata {
	t.Helper()
	md, err := metadata.New(name, "v1", false, "t", params, nil, "memory:test")
	if err != nil {
		t.Fatalf("metadata.New(%s): %v", name, err)
	}
	return md
}

func row(t *testing.T, day int, value float64) Row {
	t.Helper()
	ts, err := timeutil.NewTimestamp(time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewTimestamp: %v", err)
	}
	return Row{Timestamp: ts, Value: value}
}

func TestMemoryEngine_AppendThenRead(t *testing.T) {
	eng := NewMemoryEngine("memory:test")
	md := mustMD(t, "prices.daily_close", nil)
	ctx := context.Background()

	if err := eng.Append(ctx, md, Payload{Rows: []Row{row(t, 1, 1), row(t, 2, 2)}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, err := eng.Read(ctx, md, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got.Rows))
	}
}

func TestMemoryEngine_AppendOverlapRejected(t *testing.T) {
	eng := NewMemoryEngine("memory:test")
	md := mustMD(t, "prices.daily_close", nil)
	ctx := context.Background()

	if err := eng.Append(ctx, md, Payload{Rows: []Row{row(t, 2, 2)}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	err := eng.Append(ctx, md, Payload{Rows: []Row{row(t, 1, 1)}})
	if !IsAppendOverlap(err) {
		t.Fatalf("expected AppendOverlap error, got %v", err)
	}
}

func TestMemoryEngine_ReadMissingIsNotFound(t *testing.T) {
	eng := NewMemoryEngine("memory:test")
	md := mustMD(t, "prices.daily_close", nil)

	_, err := eng.Read(context.Background(), md, nil)
	if !IsNotFound(err) {
		t.Fatalf("expected NotFound error, got %v", err)
	}
}

func TestMemoryEngine_MergeIsExistingWins(t *testing.T) {
	eng := NewMemoryEngine("memory:test")
	md := mustMD(t, "prices.daily_close", nil)
	ctx := context.Background()

	if err := eng.Append(ctx, md, Payload{Rows: []Row{row(t, 1, 100)}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := eng.Merge(ctx, md, Payload{Rows: []Row{row(t, 1, 999), row(t, 2, 2)}}); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	got, err := eng.Read(ctx, md, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Rows) != 2 {
		t.Fatalf("expected 2 rows after merge, got %d", len(got.Rows))
	}
	if got.Rows[0].Value.(float64) != 100 {
		t.Fatalf("merge must keep the existing row's value on overlap, got %v", got.Rows[0].Value)
	}
}

func TestMemoryEngine_ReplaceOverwritesWholesale(t *testing.T) {
	eng := NewMemoryEngine("memory:test")
	md := mustMD(t, "prices.daily_close", nil)
	ctx := context.Background()

	if err := eng.Append(ctx, md, Payload{Rows: []Row{row(t, 1, 1), row(t, 2, 2)}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := eng.Replace(ctx, md, Payload{Rows: []Row{row(t, 5, 5)}}); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, err := eng.Read(ctx, md, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got.Rows) != 1 || got.Rows[0].Value.(float64) != 5 {
		t.Fatalf("Replace must discard prior rows, got %+v", got.Rows)
	}
}

func TestMemoryEngine_ExistsReflectsStoredPayload(t *testing.T) {
	eng := NewMemoryEngine("memory:test")
	md := mustMD(t, "prices.daily_close", nil)
	ctx := context.Background()

	ok, err := eng.Exists(ctx, md)
	if err != nil || ok {
		t.Fatalf("Exists on empty dataset = %v, %v; want false, nil", ok, err)
	}
	if err := eng.Append(ctx, md, Payload{Rows: []Row{row(t, 1, 1)}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	ok, err = eng.Exists(ctx, md)
	if err != nil || !ok {
		t.Fatalf("Exists after Append = %v, %v; want true, nil", ok, err)
	}
}

func TestMemoryEngine_DistinctIDsAreDistinctIdentities(t *testing.T) {
	a := NewMemoryEngine("memory:a")
	b := NewMemoryEngine("memory:b")
	if a.ID() == b.ID() {
		t.Fatal("two MemoryEngine instances with different ids must report different identities")
	}
}
