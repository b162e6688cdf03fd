package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/audit"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/capability"
	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/knowledge"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/observability/metrics"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/plan"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/pkg/logger"
)

// StepStatus 表示步骤在其生命周期中的状态。
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepError     StepStatus = "error"
)

// StepResult 记录单个步骤的执行结果，只追加、不修改。
type StepResult struct {
	Capability capability.Capability `json:"capability"`
	Action     string                `json:"action"`
	Status     StepStatus            `json:"status"`
	Payload    map[string]any        `json:"payload,omitempty"`
	Error      string                `json:"error,omitempty"`
	CreatedAt  int64                 `json:"created_at"`
}

// Run 汇总一次管道执行的全部结果。
type Run struct {
	ID          string              `json:"id"`
	Task        string              `json:"task"`
	Plan        *plan.ExecutionPlan `json:"plan"`
	Results     []StepResult        `json:"results"`
	SuccessRate float64             `json:"success_rate"`
	CreatedAt   int64               `json:"created_at"`
}

// Executor 按计划顺序逐个调用能力适配器，并落库执行历史。
// 单个步骤失败绝不中断剩余步骤，失败只作为数据出现在聚合结果中。
type Executor struct {
	registry    *capability.Registry
	store       knowledge.Store
	auditor     audit.Dispatcher
	stepTimeout time.Duration
	logger      *slog.Logger
}

// ExecutorOption 定义可选的执行器配置。
type ExecutorOption func(*Executor)

// WithStepTimeout 为每个步骤的适配器调用设置超时，零值表示不限制。
func WithStepTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		if timeout > 0 {
			e.stepTimeout = timeout
		}
	}
}

// WithAuditor 配置审计事件派发器。
func WithAuditor(dispatcher audit.Dispatcher) ExecutorOption {
	return func(e *Executor) {
		if dispatcher != nil {
			e.auditor = dispatcher
		}
	}
}

// WithExecutorLogger 指定日志输出。
func WithExecutorLogger(log *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = log
	}
}

// NewExecutor 构造管道执行器。
func NewExecutor(registry *capability.Registry, store knowledge.Store, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		store:    store,
		auditor:  audit.NopDispatcher{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.logger == nil {
		e.logger = logger.Named("pipeline")
	}
	return e
}

// Execute 顺序执行计划中的全部步骤并返回聚合结果。
// 即便每个步骤都失败，调用方也会得到 success_rate 为 0 的 Run 而不是错误。
func (e *Executor) Execute(ctx context.Context, execPlan *plan.ExecutionPlan) (*Run, error) {
	if e.registry == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置适配器注册表")
	}
	if execPlan == nil {
		return nil, xerrors.New(xerrors.CodeInvalidInput, "执行计划不能为空")
	}

	run := &Run{
		ID:        newRunID(),
		Task:      execPlan.Task,
		Plan:      execPlan,
		Results:   make([]StepResult, 0, len(execPlan.Steps)),
		CreatedAt: time.Now().Unix(),
	}

	completed := 0
	for _, step := range execPlan.Steps {
		result := e.executeStep(ctx, step)
		run.Results = append(run.Results, result)
		if result.Status == StepCompleted {
			completed++
		}
		metrics.ObservePipelineStep(string(step.Capability), string(result.Status))

		e.auditor.Emit(ctx, audit.Event{
			Type:       audit.EventPipelineStep,
			RunID:      run.ID,
			Capability: string(step.Capability),
			Action:     step.Action,
			Status:     string(result.Status),
			Message:    result.Error,
			OccurredAt: time.Now(),
		})
	}

	if len(run.Results) > 0 {
		run.SuccessRate = float64(completed) / float64(len(run.Results))
	}

	e.auditor.Emit(ctx, audit.Event{
		Type:       audit.EventPipelineCompleted,
		RunID:      run.ID,
		Status:     fmt.Sprintf("%d/%d", completed, len(run.Results)),
		OccurredAt: time.Now(),
	})

	e.appendKnowledge(ctx, run)

	logger.Audit().Info("管道执行完成",
		slog.String("run_id", run.ID),
		slog.String("task", run.Task),
		slog.Int("steps", len(run.Results)),
		slog.Float64("success_rate", run.SuccessRate),
	)
	return run, nil
}

// executeStep 驱动单个步骤完成 pending → running → 终态 的状态迁移。
func (e *Executor) executeStep(ctx context.Context, step plan.Step) StepResult {
	result := StepResult{
		Capability: step.Capability,
		Action:     step.Action,
		Status:     StepPending,
	}

	adapter, ok := e.registry.Lookup(step.Capability)
	if !ok {
		// 缺少适配器按步骤错误处理，不中断整个计划。
		result.Status = StepError
		result.Error = xerrors.New(xerrors.CodeConfiguration,
			fmt.Sprintf("能力 %s 没有注册适配器", step.Capability)).Error()
		result.CreatedAt = time.Now().Unix()
		return result
	}

	result.Status = StepRunning
	e.logger.Debug("执行步骤",
		slog.String("capability", string(step.Capability)),
		slog.String("action", step.Action),
	)

	stepCtx := ctx
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}

	invokeResult, err := adapter.Invoke(stepCtx, step.Action, step.Parameters)
	result.CreatedAt = time.Now().Unix()

	switch {
	case err != nil:
		result.Status = StepError
		result.Error = xerrors.Wrap(xerrors.CodeAdapterError, err,
			fmt.Sprintf("适配器 %s 执行 %s 出错", step.Capability, step.Action)).Error()
	case invokeResult == nil || !invokeResult.Success:
		result.Status = StepFailed
		if invokeResult != nil {
			result.Error = invokeResult.Error
			result.Payload = invokeResult.Output
		}
		if result.Error == "" {
			result.Error = xerrors.AttributesOf(xerrors.CodeAdapterFailure).Message
		}
	default:
		result.Status = StepCompleted
		result.Payload = invokeResult.Output
	}
	return result
}

// appendKnowledge 将执行结果写入知识库，失败只记录日志（尽力而为）。
func (e *Executor) appendKnowledge(ctx context.Context, run *Run) {
	if e.store == nil {
		return
	}
	planJSON, err := json.Marshal(run.Plan)
	if err != nil {
		e.logger.Error("序列化执行计划失败", slog.Any("error", err), slog.String("run_id", run.ID))
		return
	}
	resultsJSON, err := json.Marshal(run.Results)
	if err != nil {
		e.logger.Error("序列化执行结果失败", slog.Any("error", err), slog.String("run_id", run.ID))
		return
	}
	record := knowledge.Record{
		ID:          run.ID,
		Task:        run.Task,
		Plan:        planJSON,
		Results:     resultsJSON,
		SuccessRate: run.SuccessRate,
		CreatedAt:   run.CreatedAt,
	}
	if err := e.store.Append(ctx, record); err != nil {
		e.logger.Error("写入知识库失败", slog.Any("error", err), slog.String("run_id", run.ID))
	}
}

// newRunID 生成 管道命名空间 + 时间戳 形式的运行 ID。
func newRunID() string {
	return fmt.Sprintf("pipeline_%s_%s",
		time.Now().Format("20060102_150405"),
		uuid.NewString()[:8],
	)
}
