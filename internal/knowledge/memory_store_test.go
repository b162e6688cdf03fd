package knowledge

import (
	"context"
	"encoding/json"
	"testing"
)

func TestMemoryStoreAppendAndList(t *testing.T) {
	store, err := NewMemoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	ctx := context.Background()

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		record := Record{
			ID:          id,
			Task:        "query snowflake data",
			Plan:        json.RawMessage(`{"steps":[]}`),
			Results:     json.RawMessage(`[]`),
			SuccessRate: 1.0,
			CreatedAt:   int64(1000 + i),
		}
		if err := store.Append(ctx, record); err != nil {
			t.Fatalf("追加记录失败: %v", err)
		}
	}

	records, err := store.ListLatest(ctx, 2)
	if err != nil {
		t.Fatalf("查询记录失败: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// 最近写入的记录排在最前。
	if records[0].ID != "run-c" || records[1].ID != "run-b" {
		t.Fatalf("unexpected order: %s, %s", records[0].ID, records[1].ID)
	}
}

func TestMemoryStoreRejectsEmptyID(t *testing.T) {
	store, err := NewMemoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	if err := store.Append(context.Background(), Record{}); err == nil {
		t.Fatal("expected error for empty record id")
	}
}

func TestMemoryStoreReloadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewMemoryStore(dir)
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	record := Record{
		ID:          "run-persisted",
		Task:        "sync the dataset",
		Plan:        json.RawMessage(`{"steps":[]}`),
		Results:     json.RawMessage(`[]`),
		SuccessRate: 0.5,
		CreatedAt:   42,
	}
	if err := first.Append(ctx, record); err != nil {
		t.Fatalf("追加记录失败: %v", err)
	}

	// 重新打开同一目录，历史应当被恢复。
	second, err := NewMemoryStore(dir)
	if err != nil {
		t.Fatalf("重新打开存储失败: %v", err)
	}
	records, err := second.ListLatest(ctx, 10)
	if err != nil {
		t.Fatalf("查询记录失败: %v", err)
	}
	if len(records) != 1 || records[0].ID != "run-persisted" {
		t.Fatalf("unexpected records after reload: %+v", records)
	}
	if records[0].SuccessRate != 0.5 {
		t.Fatalf("success rate not preserved: %v", records[0].SuccessRate)
	}
}
