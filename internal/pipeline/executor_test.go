package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/audit"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/capability"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/knowledge"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/plan"
)

// recordingStore 记录被追加的知识库条目，便于断言。
type recordingStore struct {
	mu      sync.Mutex
	records []knowledge.Record
}

func (s *recordingStore) Append(_ context.Context, record knowledge.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *recordingStore) ListLatest(_ context.Context, _ int) ([]knowledge.Record, error) {
	return nil, nil
}

func (s *recordingStore) Close() error { return nil }

// recordingDispatcher 收集审计事件。
type recordingDispatcher struct {
	mu     sync.Mutex
	events []audit.Event
}

func (d *recordingDispatcher) Emit(_ context.Context, event audit.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

func succeedingAdapter() capability.Adapter {
	return capability.AdapterFunc(func(_ context.Context, action string, _ map[string]any) (*capability.Result, error) {
		return &capability.Result{
			Success: true,
			Output:  map[string]any{"action": action},
		}, nil
	})
}

func failingAdapter(message string) capability.Adapter {
	return capability.AdapterFunc(func(_ context.Context, _ string, _ map[string]any) (*capability.Result, error) {
		return &capability.Result{Success: false, Error: message}, nil
	})
}

func erroringAdapter() capability.Adapter {
	return capability.AdapterFunc(func(_ context.Context, _ string, _ map[string]any) (*capability.Result, error) {
		return nil, errors.New("connection refused")
	})
}

func registryWith(t *testing.T, adapter capability.Adapter, caps ...capability.Capability) *capability.Registry {
	t.Helper()
	registry := capability.NewRegistry()
	for _, name := range caps {
		if err := registry.Register(name, adapter); err != nil {
			t.Fatalf("注册适配器失败: %v", err)
		}
	}
	return registry
}

func mustPlan(t *testing.T, task string, caps ...capability.Capability) *plan.ExecutionPlan {
	t.Helper()
	planner, err := plan.NewPlanner()
	if err != nil {
		t.Fatalf("创建规划器失败: %v", err)
	}
	return planner.Plan(task, caps)
}

func TestExecuteAllStepsSucceed(t *testing.T) {
	registry := registryWith(t, succeedingAdapter(),
		capability.DataQuery, capability.Sync, capability.Notification)
	store := &recordingStore{}
	dispatcher := &recordingDispatcher{}
	executor := NewExecutor(registry, store, WithAuditor(dispatcher))

	execPlan := mustPlan(t, "query data, sync dataset and notify slack",
		capability.DataQuery, capability.Sync, capability.Notification)
	run, err := executor.Execute(context.Background(), execPlan)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	if run.SuccessRate != 1.0 {
		t.Fatalf("success rate = %v, want 1.0", run.SuccessRate)
	}
	if len(run.Results) != len(execPlan.Steps) {
		t.Fatalf("got %d results for %d steps", len(run.Results), len(execPlan.Steps))
	}
	for i, result := range run.Results {
		if result.Status != StepCompleted {
			t.Fatalf("step %d status = %s, want %s", i, result.Status, StepCompleted)
		}
		if result.Capability != execPlan.Steps[i].Capability {
			t.Fatalf("step %d capability = %s, want %s", i, result.Capability, execPlan.Steps[i].Capability)
		}
	}
	if !strings.HasPrefix(run.ID, "pipeline_") {
		t.Fatalf("unexpected run id: %s", run.ID)
	}
}

func TestExecuteContainsAdapterErrors(t *testing.T) {
	registry := registryWith(t, erroringAdapter(),
		capability.DataQuery, capability.Sync)
	store := &recordingStore{}
	executor := NewExecutor(registry, store)

	execPlan := mustPlan(t, "sync the dataset", capability.DataQuery, capability.Sync)
	run, err := executor.Execute(context.Background(), execPlan)
	if err != nil {
		t.Fatalf("步骤出错不应让整次执行返回 error: %v", err)
	}

	// 每个步骤都要出现在结果里，即使全部出错。
	if len(run.Results) != len(execPlan.Steps) {
		t.Fatalf("got %d results for %d steps", len(run.Results), len(execPlan.Steps))
	}
	if run.SuccessRate != 0.0 {
		t.Fatalf("success rate = %v, want 0.0", run.SuccessRate)
	}
	for i, result := range run.Results {
		if result.Status != StepError {
			t.Fatalf("step %d status = %s, want %s", i, result.Status, StepError)
		}
		if result.Error == "" {
			t.Fatalf("step %d missing error message", i)
		}
	}
}

func TestExecuteMarksAdapterFailure(t *testing.T) {
	registry := registryWith(t, failingAdapter("warehouse unavailable"), capability.DataQuery)
	executor := NewExecutor(registry, &recordingStore{})

	execPlan := mustPlan(t, "query truck utilization data", capability.DataQuery)
	run, err := executor.Execute(context.Background(), execPlan)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	if len(run.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(run.Results))
	}
	if run.Results[0].Status != StepFailed {
		t.Fatalf("status = %s, want %s", run.Results[0].Status, StepFailed)
	}
	if run.Results[0].Error != "warehouse unavailable" {
		t.Fatalf("error = %q", run.Results[0].Error)
	}
	if run.SuccessRate != 0.0 {
		t.Fatalf("success rate = %v, want 0.0", run.SuccessRate)
	}
}

func TestExecuteMixedResults(t *testing.T) {
	registry := capability.NewRegistry()
	if err := registry.Register(capability.DataQuery, succeedingAdapter()); err != nil {
		t.Fatalf("注册适配器失败: %v", err)
	}
	if err := registry.Register(capability.Notification, failingAdapter("channel not found")); err != nil {
		t.Fatalf("注册适配器失败: %v", err)
	}
	executor := NewExecutor(registry, &recordingStore{})

	execPlan := mustPlan(t, "query data and notify", capability.DataQuery, capability.Notification)
	run, err := executor.Execute(context.Background(), execPlan)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	if run.SuccessRate != 0.5 {
		t.Fatalf("success rate = %v, want 0.5", run.SuccessRate)
	}
	if run.Results[0].Status != StepCompleted {
		t.Fatalf("first step status = %s", run.Results[0].Status)
	}
	if run.Results[1].Status != StepFailed {
		t.Fatalf("second step status = %s", run.Results[1].Status)
	}
}

func TestExecuteMissingAdapterBecomesStepError(t *testing.T) {
	// 只注册 data-query，notification 缺失时对应步骤应标记为出错。
	registry := registryWith(t, succeedingAdapter(), capability.DataQuery)
	executor := NewExecutor(registry, &recordingStore{})

	execPlan := mustPlan(t, "query data then notify", capability.DataQuery, capability.Notification)
	run, err := executor.Execute(context.Background(), execPlan)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	var sawError bool
	for _, result := range run.Results {
		if result.Capability == capability.Notification {
			sawError = true
			if result.Status != StepError {
				t.Fatalf("notification status = %s, want %s", result.Status, StepError)
			}
		}
	}
	if !sawError {
		t.Fatal("notification step missing from results")
	}
	if run.SuccessRate != 0.5 {
		t.Fatalf("success rate = %v, want 0.5", run.SuccessRate)
	}
}

func TestExecuteAppendsKnowledgeRecord(t *testing.T) {
	registry := registryWith(t, succeedingAdapter(), capability.DataQuery)
	store := &recordingStore{}
	executor := NewExecutor(registry, store)

	execPlan := mustPlan(t, "query fleet analytics", capability.DataQuery)
	run, err := executor.Execute(context.Background(), execPlan)
	if err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	if len(store.records) != 1 {
		t.Fatalf("got %d knowledge records, want 1", len(store.records))
	}
	record := store.records[0]
	if record.ID != run.ID {
		t.Fatalf("record id = %s, want %s", record.ID, run.ID)
	}
	if record.SuccessRate != 1.0 {
		t.Fatalf("record success rate = %v", record.SuccessRate)
	}
	if len(record.Plan) == 0 || len(record.Results) == 0 {
		t.Fatal("record plan/results not serialized")
	}
}

func TestExecuteEmitsAuditEventPerStep(t *testing.T) {
	registry := registryWith(t, succeedingAdapter(), capability.DataQuery, capability.Sync)
	dispatcher := &recordingDispatcher{}
	executor := NewExecutor(registry, &recordingStore{}, WithAuditor(dispatcher))

	execPlan := mustPlan(t, "sync foundry dataset", capability.DataQuery, capability.Sync)
	if _, err := executor.Execute(context.Background(), execPlan); err != nil {
		t.Fatalf("执行失败: %v", err)
	}

	var stepEvents, completedEvents int
	for _, event := range dispatcher.events {
		switch event.Type {
		case audit.EventPipelineStep:
			stepEvents++
		case audit.EventPipelineCompleted:
			completedEvents++
		}
	}
	if stepEvents != len(execPlan.Steps) {
		t.Fatalf("got %d step events for %d steps", stepEvents, len(execPlan.Steps))
	}
	if completedEvents != 1 {
		t.Fatalf("got %d completed events, want 1", completedEvents)
	}
}

func TestExecuteRejectsNilPlan(t *testing.T) {
	executor := NewExecutor(capability.NewRegistry(), &recordingStore{})
	if _, err := executor.Execute(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil plan")
	}
}

var _ knowledge.Store = (*recordingStore)(nil)
var _ audit.Dispatcher = (*recordingDispatcher)(nil)
