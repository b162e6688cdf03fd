package capability

import (
	"sort"
	"strings"
)

// KeywordRule 将一个能力与触发它的关键字列表绑定。
type KeywordRule struct {
	Capability Capability
	Keywords   []string
}

// DefaultKeywordRules 返回内置的能力匹配规则表。
func DefaultKeywordRules() []KeywordRule {
	return []KeywordRule{
		{Capability: DataQuery, Keywords: []string{"query", "data", "sql", "database", "analytics", "snowflake"}},
		{Capability: Sync, Keywords: []string{"foundry", "sync", "dataset", "ontology"}},
		{Capability: WorkflowAutomation, Keywords: []string{"automation", "webhook", "trigger", "workflow", "zapier"}},
		{Capability: RepositoryManagement, Keywords: []string{"git", "repository", "pull request", "code", "github"}},
		{Capability: Notification, Keywords: []string{"slack", "message", "notification", "channel", "notify"}},
		{Capability: InfraDeploy, Keywords: []string{"aws", "s3", "lambda", "provision", "infrastructure"}},
		{Capability: Container, Keywords: []string{"docker", "container", "compose", "kubernetes"}},
	}
}

// DefaultCapability 是任何关键字都未命中时的兜底能力。
const DefaultCapability = DataQuery

// Resolver 根据任务描述推断需要的下游能力集合。
type Resolver struct {
	rules []KeywordRule
}

// NewResolver 创建能力解析器，默认使用内置规则表。
func NewResolver(rules ...KeywordRule) *Resolver {
	if len(rules) == 0 {
		rules = DefaultKeywordRules()
	}
	return &Resolver{rules: rules}
}

// Resolve 对任务文本做小写化关键字匹配，任一关键字命中即加入对应能力。
// 与意图分类不同，这里允许多个能力同时命中；无命中时返回默认能力。
func (r *Resolver) Resolve(taskText string) []Capability {
	lowered := strings.ToLower(taskText)

	matched := make(map[Capability]struct{})
	for _, rule := range r.rules {
		for _, keyword := range rule.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(lowered, keyword) {
				matched[rule.Capability] = struct{}{}
				break
			}
		}
	}
	if len(matched) == 0 {
		return []Capability{DefaultCapability}
	}

	capabilities := make([]Capability, 0, len(matched))
	for cap := range matched {
		capabilities = append(capabilities, cap)
	}
	// map 遍历无序，排序保证结果可复现。
	sort.Slice(capabilities, func(i, j int) bool {
		return capabilities[i] < capabilities[j]
	})
	return capabilities
}
