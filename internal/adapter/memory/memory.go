// Package memory provides an in-process capability adapter used for
// local deployments and tests. Every action succeeds and echoes back
// the request so pipelines can be exercised without external systems.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/capability"
)

// Adapter 在进程内模拟一个能力后端。
// 可以通过 Script 为特定 action 预设返回结果。
type Adapter struct {
	mu     sync.RWMutex
	script map[string]capability.Result
	calls  []string
}

// New 创建内存适配器。
func New() *Adapter {
	return &Adapter{script: make(map[string]capability.Result)}
}

// Script 为指定 action 预设返回结果。
func (a *Adapter) Script(action string, result capability.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.script[action] = result
}

// Calls 返回按顺序记录的全部调用 action。
func (a *Adapter) Calls() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	calls := make([]string, len(a.calls))
	copy(calls, a.calls)
	return calls
}

// Invoke 实现 capability.Adapter。
func (a *Adapter) Invoke(ctx context.Context, action string, parameters map[string]any) (*capability.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	a.mu.Lock()
	a.calls = append(a.calls, action)
	scripted, ok := a.script[action]
	a.mu.Unlock()

	if ok {
		result := scripted
		return &result, nil
	}

	output := map[string]any{
		"action":      action,
		"executed_at": time.Now().Unix(),
	}
	if task, ok := parameters["task"]; ok {
		output["task"] = task
	}
	return &capability.Result{Success: true, Output: output}, nil
}

var _ capability.Adapter = (*Adapter)(nil)
