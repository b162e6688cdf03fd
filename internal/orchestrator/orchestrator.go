package orchestrator

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/audit"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/capability"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/decision"
	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/knowledge"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/observability/metrics"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/pipeline"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/plan"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/pkg/logger"
)

// Service 是对外的编排门面，把决策引擎、能力解析、
// 执行规划与管道执行串成一条完整的处理链路。
type Service struct {
	engine   *decision.Engine
	resolver *capability.Resolver
	planner  *plan.Planner
	executor *pipeline.Executor
	store    knowledge.Store
	auditor  audit.Dispatcher
	logger   *slog.Logger
}

// Option 定义可选的服务配置。
type Option func(*Service)

// WithAuditor 配置审计事件派发器。
func WithAuditor(dispatcher audit.Dispatcher) Option {
	return func(s *Service) {
		if dispatcher != nil {
			s.auditor = dispatcher
		}
	}
}

// WithLogger 指定日志输出。
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) {
		s.logger = log
	}
}

// NewService 组装编排服务，任何必备组件缺失都会返回初始化错误。
func NewService(
	engine *decision.Engine,
	resolver *capability.Resolver,
	planner *plan.Planner,
	executor *pipeline.Executor,
	store knowledge.Store,
	opts ...Option,
) (*Service, error) {
	if engine == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "决策引擎未配置")
	}
	if resolver == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "能力解析器未配置")
	}
	if planner == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "执行规划器未配置")
	}
	if executor == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "管道执行器未配置")
	}

	s := &Service{
		engine:   engine,
		resolver: resolver,
		planner:  planner,
		executor: executor,
		store:    store,
		auditor:  audit.NopDispatcher{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = logger.Named("orchestrator")
	}
	return s, nil
}

// Route 对入站请求做意图决策，不触发任何下游执行。
func (s *Service) Route(ctx context.Context, text string, queryContext map[string]any) (*decision.Decision, error) {
	result, err := s.engine.Decide(decision.Query{Text: text, Context: queryContext})
	if err != nil {
		return nil, err
	}
	metrics.ObserveDecision(string(result.Intent), result.RequiresEscalation)

	s.auditor.Emit(ctx, audit.Event{
		Type:    audit.EventDecisionMade,
		Status:  string(result.Intent),
		Message: text,
		Metadata: map[string]string{
			"confidence":          strconv.FormatFloat(result.Confidence, 'f', 2, 64),
			"requires_escalation": strconv.FormatBool(result.RequiresEscalation),
		},
	})
	return result, nil
}

// Orchestrate 解析任务需要的能力、生成执行计划并顺序执行。
// 单步失败体现在结果数据里，不会作为错误向上传播。
func (s *Service) Orchestrate(ctx context.Context, task string) (*pipeline.Run, error) {
	if strings.TrimSpace(task) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "任务描述不能为空")
	}

	capabilities := s.resolver.Resolve(task)
	execPlan := s.planner.Plan(task, capabilities)

	s.logger.Info("任务已规划",
		slog.String("task", task),
		slog.Int("capabilities", len(capabilities)),
		slog.Int("steps", len(execPlan.Steps)),
		slog.Duration("estimated_duration", execPlan.EstimatedDuration),
	)
	return s.executor.Execute(ctx, execPlan)
}

// DispatchResult 打包决策与随后的管道执行结果。
type DispatchResult struct {
	Decision *decision.Decision `json:"decision"`
	Run      *pipeline.Run      `json:"run"`
}

// Dispatch 先决策再执行：用决策命中的策略响应时限约束整条管道。
// 需要升级的请求照常执行，升级作为审计事件交给人工流程处理。
func (s *Service) Dispatch(ctx context.Context, text string, queryContext map[string]any) (*DispatchResult, error) {
	result, err := s.Route(ctx, text, queryContext)
	if err != nil {
		return nil, err
	}

	if result.RequiresEscalation {
		s.auditor.Emit(ctx, audit.Event{
			Type:     audit.EventDecisionMade,
			Status:   "escalation_required",
			Message:  text,
			Severity: xerrors.SeverityWarning,
			Metadata: map[string]string{
				"intent":     string(result.Intent),
				"confidence": strconv.FormatFloat(result.Confidence, 'f', 2, 64),
			},
		})
	}

	runCtx := ctx
	if limit := result.Policy.ResponseTimeLimit; limit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, limit)
		defer cancel()
	}

	run, err := s.executor.Execute(runCtx, s.planner.Plan(text, s.resolver.Resolve(text)))
	if err != nil {
		return nil, err
	}
	return &DispatchResult{Decision: result, Run: run}, nil
}

// History 返回最近的管道执行记录。
func (s *Service) History(ctx context.Context, limit int) ([]knowledge.Record, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "知识库存储未配置")
	}
	return s.store.ListLatest(ctx, limit)
}

// Close 释放持有的存储资源。
func (s *Service) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}
