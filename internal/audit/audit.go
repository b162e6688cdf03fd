package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/pkg/logger"
)

// EventType 标识审计事件的类别。
type EventType string

// 系统产生的审计事件类别。
const (
	EventDecisionMade      EventType = "decision_made"
	EventPipelineStep      EventType = "pipeline_step_executed"
	EventPipelineCompleted EventType = "pipeline_completed"
	EventJobFailed         EventType = "job_failed"
)

// Event 描述一次需要审计的业务事件。
type Event struct {
	Type       EventType         `json:"type"`
	RunID      string            `json:"run_id,omitempty"`
	Capability string            `json:"capability,omitempty"`
	Action     string            `json:"action,omitempty"`
	Status     string            `json:"status,omitempty"`
	Message    string            `json:"message,omitempty"`
	Severity   xerrors.Severity  `json:"severity,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Sink 负责将事件投递到一个具体渠道。
type Sink interface {
	Name() string
	Emit(ctx context.Context, event Event) error
}

// Dispatcher 将事件广播给多个投递渠道。
// 投递语义为 fire-and-forget：失败只在本地记录日志，绝不向调用方传播。
type Dispatcher interface {
	Emit(ctx context.Context, event Event)
}

// FanoutDispatcher 实现将事件广播到多个 Sink 的逻辑。
type FanoutDispatcher struct {
	sinks []Sink
	log   *slog.Logger
}

// NewFanout 创建 FanoutDispatcher，nil Sink 会被忽略。
func NewFanout(sinks ...Sink) *FanoutDispatcher {
	kept := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			kept = append(kept, sink)
		}
	}
	return &FanoutDispatcher{sinks: kept, log: logger.Named("audit")}
}

// Emit 将事件广播至所有渠道，失败只记录日志。
func (d *FanoutDispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	for _, sink := range d.sinks {
		if err := sink.Emit(ctx, event); err != nil {
			d.log.Error("审计事件投递失败",
				slog.String("sink", sink.Name()),
				slog.String("event_type", string(event.Type)),
				slog.String("run_id", event.RunID),
				slog.Any("error", err),
			)
		}
	}
}

// LogSink 将审计事件写入独立的审计日志流。
type LogSink struct {
	log *slog.Logger
}

// NewLogSink 创建基于审计日志的 Sink。
func NewLogSink() *LogSink {
	return &LogSink{log: logger.Audit()}
}

// Name 返回渠道名。
func (s *LogSink) Name() string { return "log" }

// Emit 以结构化形式记录事件。
func (s *LogSink) Emit(_ context.Context, event Event) error {
	if s == nil || s.log == nil {
		return errors.New("日志 Sink 未初始化")
	}
	s.log.Info(string(event.Type),
		slog.String("run_id", event.RunID),
		slog.String("capability", event.Capability),
		slog.String("action", event.Action),
		slog.String("status", event.Status),
		slog.String("message", event.Message),
		slog.Time("occurred_at", event.OccurredAt),
	)
	return nil
}

// WebhookSender 定义向外部渠道推送文本消息所需的能力。
type WebhookSender interface {
	Send(ctx context.Context, content string) error
}

// SlackSink 通过 Slack webhook 推送审计事件摘要。
type SlackSink struct {
	Sender  WebhookSender
	Channel string
}

// Name 返回渠道名。
func (s *SlackSink) Name() string { return "slack" }

// Emit 发送事件摘要。
func (s *SlackSink) Emit(ctx context.Context, event Event) error {
	if s == nil || s.Sender == nil {
		logger.L().Warn("SlackSink 未正确配置，跳过发送", slog.String("run_id", event.RunID))
		return nil
	}
	content := fmt.Sprintf("*[%s]* %s %s/%s status=%s %s",
		event.Type, event.RunID, event.Capability, event.Action, event.Status, event.Message)
	return s.Sender.Send(ctx, content)
}

// NopDispatcher 丢弃所有事件，用于未启用审计的场景。
type NopDispatcher struct{}

// Emit 实现 Dispatcher。
func (NopDispatcher) Emit(context.Context, Event) {}
