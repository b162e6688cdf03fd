package capability

import (
	"fmt"
	"sort"
	"sync"

	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
)

// Registry 维护能力到适配器实例的映射。
// 适配器在启动阶段注册完毕，运行期间只读。
type Registry struct {
	mu       sync.RWMutex
	adapters map[Capability]Adapter
}

// NewRegistry 创建空的适配器注册表。
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[Capability]Adapter)}
}

// Register 注册能力适配器，重复注册视为配置错误。
func (r *Registry) Register(cap Capability, adapter Adapter) error {
	if adapter == nil {
		return xerrors.New(xerrors.CodeInvalidInput, "适配器不能为空")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[cap]; exists {
		return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("能力 %s 已注册适配器", cap))
	}
	r.adapters[cap] = adapter
	return nil
}

// Lookup 返回能力对应的适配器。
func (r *Registry) Lookup(cap Capability) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[cap]
	return adapter, ok
}

// Capabilities 返回已注册的能力列表，按名称排序。
func (r *Registry) Capabilities() []Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps := make([]Capability, 0, len(r.adapters))
	for cap := range r.adapters {
		caps = append(caps, cap)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}
