package knowledge

import (
	"context"
	"encoding/json"
)

// Record 是一次完整管道执行的落库结构。
// 计划与结果以 JSON 原文保存，写入后不再变更。
type Record struct {
	ID          string          `json:"id"`
	Task        string          `json:"task"`
	Plan        json.RawMessage `json:"plan"`
	Results     json.RawMessage `json:"results"`
	SuccessRate float64         `json:"success_rate"`
	CreatedAt   int64           `json:"created_at"`
}

// Store 抽象管道执行历史的只追加存储。
// 语义为尽力而为、至多一次：没有更新与删除操作。
type Store interface {
	Append(ctx context.Context, record Record) error
	ListLatest(ctx context.Context, limit int) ([]Record, error)
	Close() error
}
