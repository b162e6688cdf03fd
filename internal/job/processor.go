package job

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/audit"
	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/pipeline"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/pkg/logger"
)

// Runner 定义了处理器所需的编排能力。
type Runner interface {
	Orchestrate(ctx context.Context, task string) (*pipeline.Run, error)
}

// Processor 负责从队列消费作业并交给编排服务执行。
type Processor struct {
	runner      Runner
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	auditor     audit.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(log *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = log
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAuditDispatcher 配置审计事件派发器。
func WithAuditDispatcher(dispatcher audit.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		if dispatcher != nil {
			p.auditor = dispatcher
		}
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(runner Runner, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		runner:      runner,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		auditor:     audit.NopDispatcher{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.workerCount <= 0 {
		p.workerCount = 1
	}
	return p
}

// Start 启动作业处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置作业消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.Handle)
}

// Handle 处理单个作业 ID，供队列消费回调使用。
func (p *Processor) Handle(ctx context.Context, jobID string) error {
	if p.store == nil || p.runner == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	j, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) || stdErrors.Is(err, ErrJobExhausted) {
			p.logDebug("跳过作业", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取作业失败", slog.Any("error", err), slog.String("job_id", jobID))
		return err
	}

	run, execErr := p.runner.Orchestrate(ctx, j.Task)
	if execErr != nil {
		return p.handleExecutionFailure(ctx, j, execErr)
	}

	var outcome Outcome
	if run != nil {
		completed := 0
		for _, result := range run.Results {
			if result.Status == pipeline.StepCompleted {
				completed++
			}
		}
		outcome = Outcome{
			RunID:       run.ID,
			SuccessRate: run.SuccessRate,
			Steps:       len(run.Results),
			Completed:   completed,
		}
	}
	if err := p.store.MarkSucceeded(ctx, j.ID, outcome); err != nil {
		logger.L().Error("标记作业成功状态失败", slog.Any("error", err), slog.String("job_id", j.ID))
		if storeErr := p.store.MarkFailed(ctx, j.ID, CodeJobProcessing, err.Error(), false); storeErr != nil {
			logger.L().Error("回写失败状态出错", slog.Any("error", storeErr), slog.String("job_id", j.ID))
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, j.ID); pubErr != nil {
			return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("作业 %s 在标记成功失败后重投失败", j.ID))
		}
		return nil
	}
	logger.Audit().Info("作业执行成功",
		slog.String("job_id", j.ID),
		slog.String("task", j.Task),
		slog.String("run_id", outcome.RunID),
		slog.Float64("success_rate", outcome.SuccessRate),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, j *Job, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeJobProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := j.Attempts >= j.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, j.ID, code, execErr.Error(), terminal); storeErr != nil {
		logger.L().Error("标记作业失败状态出错", slog.Any("error", storeErr), slog.String("job_id", j.ID))
		return storeErr
	}
	logger.Audit().Warn("作业执行失败",
		slog.String("job_id", j.ID),
		slog.String("task", j.Task),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", j.Attempts),
		slog.Int("max_retries", j.MaxRetries),
	)

	stage := "retry"
	if terminal {
		stage = "terminal"
	} else if !retryable {
		stage = "non_retryable"
	}
	p.auditor.Emit(ctx, audit.Event{
		Type:     audit.EventJobFailed,
		RunID:    j.ID,
		Status:   stage,
		Message:  execErr.Error(),
		Severity: xerrors.SeverityOf(execErr),
		Metadata: map[string]string{
			"error_code": string(code),
			"attempts":   fmt.Sprintf("%d", j.Attempts),
		},
		OccurredAt: time.Now(),
	})

	if retryable && !terminal {
		if pubErr := p.producer.Publish(ctx, j.ID); pubErr != nil {
			return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("作业 %s 重投失败", j.ID))
		}
		p.logDebug("作业已重新排队", slog.String("job_id", j.ID), slog.Int("attempts", j.Attempts))
	}
	return nil
}

func (p *Processor) logDebug(msg string, attrs ...slog.Attr) {
	if p.logger != nil {
		args := make([]any, len(attrs))
		for i, attr := range attrs {
			args[i] = attr
		}
		p.logger.Debug(msg, args...)
	}
}
