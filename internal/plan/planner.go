package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/capability"
	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
)

// Step 是执行计划中的一个原子步骤，由规划器产出后不可变。
type Step struct {
	Capability   capability.Capability   `json:"capability"`
	Action       string                  `json:"action"`
	Priority     int                     `json:"priority"`
	Dependencies []capability.Capability `json:"dependencies,omitempty"`
	Parameters   map[string]any          `json:"parameters,omitempty"`
}

// ExecutionPlan 是针对单个任务的有序步骤列表，只被消费一次。
type ExecutionPlan struct {
	Task              string        `json:"task"`
	Steps             []Step        `json:"steps"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// Blueprint 描述能力在静态计划表中的动作、优先级与依赖。
type Blueprint struct {
	Action       string
	Priority     int
	Dependencies []capability.Capability
}

// stepDuration 是单个步骤的估算耗时。
const stepDuration = 30 * time.Second

// DefaultTable 返回内置的能力计划表。
// container 等未入表的能力会在规划时被静默丢弃。
func DefaultTable() map[capability.Capability]Blueprint {
	return map[capability.Capability]Blueprint{
		capability.DataQuery: {
			Action:   "query_data",
			Priority: 1,
		},
		capability.Sync: {
			Action:       "sync_data",
			Priority:     2,
			Dependencies: []capability.Capability{capability.DataQuery},
		},
		capability.RepositoryManagement: {
			Action:   "manage_repository",
			Priority: 2,
		},
		capability.WorkflowAutomation: {
			Action:       "trigger_automation",
			Priority:     3,
			Dependencies: []capability.Capability{capability.DataQuery, capability.Sync},
		},
		capability.InfraDeploy: {
			Action:       "deploy_infrastructure",
			Priority:     4,
			Dependencies: []capability.Capability{capability.RepositoryManagement},
		},
		capability.Notification: {
			Action:       "send_notification",
			Priority:     5,
			Dependencies: []capability.Capability{capability.DataQuery, capability.Sync, capability.WorkflowAutomation},
		},
	}
}

// Planner 依据静态计划表将能力集合编排成有序步骤。
type Planner struct {
	table map[capability.Capability]Blueprint
	// topoIndex 记录各能力在拓扑排序中的位置，用于同优先级时的稳定排序。
	topoIndex map[capability.Capability]int
}

// PlannerOption 定义可选的规划器配置。
type PlannerOption func(*Planner)

// WithTable 替换默认计划表。
func WithTable(table map[capability.Capability]Blueprint) PlannerOption {
	return func(p *Planner) {
		if len(table) > 0 {
			p.table = table
		}
	}
}

// NewPlanner 构造规划器并在加载阶段校验计划表是一张有效的有向无环图。
// 依赖成环或指向表外能力都视为配置错误，直接拒绝启动。
func NewPlanner(opts ...PlannerOption) (*Planner, error) {
	p := &Planner{table: DefaultTable()}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	topoIndex, err := topologicalIndex(p.table)
	if err != nil {
		return nil, err
	}
	p.topoIndex = topoIndex
	return p, nil
}

// Plan 为任务生成执行计划：逐能力出一个步骤，按优先级非降序排列。
// 计划表中不存在的能力被静默丢弃；重复能力只会出现一次。
func (p *Planner) Plan(task string, capabilities []capability.Capability) *ExecutionPlan {
	seen := make(map[capability.Capability]struct{}, len(capabilities))
	steps := make([]Step, 0, len(capabilities))
	for _, cap := range capabilities {
		if _, dup := seen[cap]; dup {
			continue
		}
		seen[cap] = struct{}{}

		blueprint, ok := p.table[cap]
		if !ok {
			continue
		}
		steps = append(steps, Step{
			Capability:   cap,
			Action:       blueprint.Action,
			Priority:     blueprint.Priority,
			Dependencies: append([]capability.Capability(nil), blueprint.Dependencies...),
			Parameters:   map[string]any{"task": task},
		})
	}

	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].Priority != steps[j].Priority {
			return steps[i].Priority < steps[j].Priority
		}
		return p.topoIndex[steps[i].Capability] < p.topoIndex[steps[j].Capability]
	})

	return &ExecutionPlan{
		Task:              task,
		Steps:             steps,
		EstimatedDuration: time.Duration(len(steps)) * stepDuration,
	}
}

// topologicalIndex 对计划表执行 Kahn 拓扑排序，返回各能力的拓扑序号。
// 排序无法覆盖全部节点说明存在依赖环。
func topologicalIndex(table map[capability.Capability]Blueprint) (map[capability.Capability]int, error) {
	indegree := make(map[capability.Capability]int, len(table))
	dependents := make(map[capability.Capability][]capability.Capability, len(table))

	for cap, blueprint := range table {
		if _, ok := indegree[cap]; !ok {
			indegree[cap] = 0
		}
		for _, dep := range blueprint.Dependencies {
			if _, ok := table[dep]; !ok {
				return nil, xerrors.New(xerrors.CodeConfiguration,
					fmt.Sprintf("能力 %s 依赖了计划表外的能力 %s", cap, dep))
			}
			indegree[cap]++
			dependents[dep] = append(dependents[dep], cap)
		}
	}

	// 就绪队列按名称排序，保证拓扑序号与 map 遍历顺序无关。
	ready := make([]capability.Capability, 0, len(table))
	for cap, degree := range indegree {
		if degree == 0 {
			ready = append(ready, cap)
		}
	}
	sortCapabilities(ready)

	index := make(map[capability.Capability]int, len(table))
	for len(ready) > 0 {
		cap := ready[0]
		ready = ready[1:]
		index[cap] = len(index)

		next := append([]capability.Capability(nil), dependents[cap]...)
		sortCapabilities(next)
		for _, dependent := range next {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(index) != len(table) {
		return nil, xerrors.New(xerrors.CodeConfiguration, "能力计划表存在依赖环")
	}
	return index, nil
}

func sortCapabilities(caps []capability.Capability) {
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
}
