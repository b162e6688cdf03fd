package capability

import "context"

// Capability 标识编排器可以调用的一个下游集成面。
type Capability string

// 系统已知的下游能力集合。
const (
	DataQuery            Capability = "data-query"
	Sync                 Capability = "sync"
	WorkflowAutomation   Capability = "workflow-automation"
	RepositoryManagement Capability = "repository-management"
	Notification         Capability = "notification"
	InfraDeploy          Capability = "infra-deploy"
	Container            Capability = "container"
)

// Result 是能力适配器返回的统一响应。
type Result struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Adapter 是下游能力的窄请求/响应契约。
// 编排核心对所有适配器一视同仁，不关心其背后是数仓、消息系统还是部署工具。
type Adapter interface {
	Invoke(ctx context.Context, action string, parameters map[string]any) (*Result, error)
}

// AdapterFunc 允许用函数直接充当适配器，主要方便测试。
type AdapterFunc func(ctx context.Context, action string, parameters map[string]any) (*Result, error)

// Invoke 实现 Adapter 接口。
func (f AdapterFunc) Invoke(ctx context.Context, action string, parameters map[string]any) (*Result, error) {
	return f(ctx, action, parameters)
}
