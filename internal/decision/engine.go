package decision

import (
	"log/slog"
	"strings"
	"time"

	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/intent"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/pkg/logger"
)

// Query 描述一次入站的自然语言运营请求。
type Query struct {
	Text    string         `json:"text"`
	Context map[string]any `json:"context,omitempty"`
}

// Decision 是决策引擎针对单个 Query 产出的不可变结果。
type Decision struct {
	Intent             intent.Intent `json:"intent"`
	Confidence         float64       `json:"confidence"`
	Policy             Policy        `json:"policy"`
	RequiresEscalation bool          `json:"requires_escalation"`
	RecommendedActions []string      `json:"recommended_actions"`
	CreatedAt          int64         `json:"created_at"`
}

// HumanReviewAction 是低置信度时追加的人工复核哨兵动作。
const HumanReviewAction = "Request human review"

// reviewThreshold 是追加人工复核动作的全局置信度下限。
const reviewThreshold = 0.70

// Engine 串联分类器、打分器与策略表，产出完整的决策。
type Engine struct {
	classifier *intent.Classifier
	scorer     *intent.Scorer
	policies   PolicySet
	actions    map[intent.Intent][]string
	logger     *slog.Logger
}

// EngineOption 定义可选的引擎配置。
type EngineOption func(*Engine)

// WithPolicies 替换默认策略表。
func WithPolicies(policies PolicySet) EngineOption {
	return func(e *Engine) {
		if len(policies) > 0 {
			e.policies = policies
		}
	}
}

// WithActions 替换默认推荐动作表。
func WithActions(actions map[intent.Intent][]string) EngineOption {
	return func(e *Engine) {
		if len(actions) > 0 {
			e.actions = actions
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = log
	}
}

// NewEngine 构造决策引擎并校验策略表。
func NewEngine(classifier *intent.Classifier, scorer *intent.Scorer, opts ...EngineOption) (*Engine, error) {
	e := &Engine{
		classifier: classifier,
		scorer:     scorer,
		policies:   DefaultPolicies(),
		actions:    DefaultActions(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.classifier == nil {
		e.classifier = intent.NewClassifier()
	}
	if e.scorer == nil {
		e.scorer = intent.NewScorer()
	}
	if e.logger == nil {
		e.logger = logger.Named("decision")
	}
	if err := e.policies.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Decide 对请求执行分类、打分与策略判定，返回不可变的 Decision。
// 仅在输入为空时返回错误，其余情况总能给出尽力而为的决策。
func (e *Engine) Decide(query Query) (*Decision, error) {
	if strings.TrimSpace(query.Text) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "请求文本不能为空")
	}

	it := e.classifier.Classify(query.Text)
	confidence := e.scorer.Score(query.Text, it, query.Context)

	policy, found := e.policies.Lookup(it)
	if !found {
		// 未注册策略的意图回退到兜底策略，而不是报错。
		e.logger.Warn("意图缺少策略，使用兜底策略",
			slog.String("intent", string(it)),
			slog.String("fallback", string(FallbackIntent)),
		)
	}

	requiresEscalation := confidence < policy.ConfidenceThreshold || policy.EscalationRequired

	decision := &Decision{
		Intent:             it,
		Confidence:         confidence,
		Policy:             policy,
		RequiresEscalation: requiresEscalation,
		RecommendedActions: e.recommendedActions(it, confidence),
		CreatedAt:          time.Now().Unix(),
	}

	e.logger.Info("决策完成",
		slog.String("intent", string(it)),
		slog.Float64("confidence", confidence),
		slog.Bool("requires_escalation", requiresEscalation),
	)
	return decision, nil
}

// recommendedActions 返回意图对应动作表的副本，低置信度时追加人工复核。
func (e *Engine) recommendedActions(it intent.Intent, confidence float64) []string {
	base, ok := e.actions[it]
	if !ok {
		base = e.actions[FallbackIntent]
	}
	actions := make([]string, 0, len(base)+1)
	actions = append(actions, base...)
	if confidence < reviewThreshold {
		actions = append(actions, HumanReviewAction)
	}
	return actions
}
