package job

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
)

// MemoryStore 以内存方式保存作业状态，主要用于测试与单机部署。
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j == nil {
		return xerrors.New(xerrors.CodeInvalidInput, "job 不能为空")
	}
	if j.ID == "" {
		return xerrors.New(xerrors.CodeInvalidInput, "作业 ID 不能为空")
	}
	if _, ok := m.jobs[j.ID]; ok {
		return ErrJobConflict
	}
	now := time.Now().Unix()
	if j.CreatedAt == 0 {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	m.jobs[j.ID] = cloneJob(j)
	return nil
}

// Get 返回作业。
func (m *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(j), nil
}

// Claim 将作业状态更新为运行中并增加尝试次数。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	switch j.Status {
	case StatusSucceeded:
		return cloneJob(j), ErrJobCompleted
	case StatusRunning:
		return cloneJob(j), ErrJobConflict
	}
	if j.Attempts >= j.MaxRetries {
		return cloneJob(j), ErrJobExhausted
	}
	j.Status = StatusRunning
	j.Attempts++
	j.LastError = ""
	j.ErrorCode = ""
	j.UpdatedAt = time.Now().Unix()
	return cloneJob(j), nil
}

// MarkSucceeded 记录成功结果。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, outcome Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Status = StatusSucceeded
	j.Result = &outcome
	j.LastError = ""
	j.ErrorCode = ""
	j.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 标记作业失败。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Status = StatusFailed
	j.LastError = lastError
	j.ErrorCode = string(code)
	j.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回最近更新的作业，按更新时间倒序排列。
func (m *MemoryStore) List(_ context.Context, limit int) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	results := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		results = append(results, cloneJob(j))
	}
	sort.Slice(results, func(i, k int) bool {
		if results[i].UpdatedAt == results[k].UpdatedAt {
			if results[i].CreatedAt == results[k].CreatedAt {
				return results[i].ID < results[k].ID
			}
			return results[i].CreatedAt > results[k].CreatedAt
		}
		return results[i].UpdatedAt > results[k].UpdatedAt
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func cloneJob(j *Job) *Job {
	clone := *j
	if j.Result != nil {
		resultCopy := *j.Result
		clone.Result = &resultCopy
	}
	clone.Metadata = cloneMetadata(j.Metadata)
	return &clone
}

var _ Store = (*MemoryStore)(nil)
