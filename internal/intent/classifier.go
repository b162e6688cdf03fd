package intent

import "strings"

// Rule 将一个意图与触发它的关键字列表绑定。
// 规则在表中的位置即匹配优先级，靠前的规则先判定。
type Rule struct {
	Intent   Intent
	Keywords []string
}

// DefaultRules 返回内置的意图匹配规则表。
// 新增意图时只需追加一行规则并同步策略表，无需修改控制流。
func DefaultRules() []Rule {
	return []Rule{
		{Intent: EmergencyResponse, Keywords: []string{"emergency", "urgent", "critical", "accident"}},
		{Intent: RouteOptimization, Keywords: []string{"route", "optimize", "path", "navigation"}},
		{Intent: FleetManagement, Keywords: []string{"fleet", "vehicle", "truck", "driver"}},
		{Intent: MaintenanceScheduling, Keywords: []string{"maintenance", "repair", "service", "inspection"}},
		{Intent: CustomerService, Keywords: []string{"customer", "client", "complaint", "feedback"}},
	}
}

// Classifier 基于有序规则表将自由文本映射到意图。
type Classifier struct {
	rules    []Rule
	fallback Intent
}

// ClassifierOption 定义可选的分类器配置。
type ClassifierOption func(*Classifier)

// WithRules 替换默认规则表。
func WithRules(rules []Rule) ClassifierOption {
	return func(c *Classifier) {
		if len(rules) > 0 {
			c.rules = rules
		}
	}
}

// WithFallback 覆盖默认的兜底意图。
func WithFallback(it Intent) ClassifierOption {
	return func(c *Classifier) {
		if IsValid(it) {
			c.fallback = it
		}
	}
}

// NewClassifier 创建分类器，默认使用内置规则表，兜底意图为 general_inquiry。
func NewClassifier(opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		rules:    DefaultRules(),
		fallback: GeneralInquiry,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Classify 按规则表顺序逐条测试关键字，首个命中的规则胜出。
// 纯函数语义：相同输入永远得到相同结果，非空输入不会失败。
func (c *Classifier) Classify(text string) Intent {
	lowered := strings.ToLower(text)
	for _, rule := range c.rules {
		for _, keyword := range rule.Keywords {
			if keyword == "" {
				continue
			}
			if strings.Contains(lowered, keyword) {
				return rule.Intent
			}
		}
	}
	return c.fallback
}

// Fallback 返回当前配置的兜底意图。
func (c *Classifier) Fallback() Intent {
	return c.fallback
}
