package job

import (
	"context"
	"testing"

	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/pipeline"
)

// fakeRunner 按预设脚本返回执行结果。
type fakeRunner struct {
	run *pipeline.Run
	err error
}

func (r *fakeRunner) Orchestrate(_ context.Context, _ string) (*pipeline.Run, error) {
	return r.run, r.err
}

func TestProcessorHandleSuccess(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Job{ID: "job-ok", Task: "query data", Status: StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("创建作业失败: %v", err)
	}

	runner := &fakeRunner{run: &pipeline.Run{
		ID:          "pipeline_test",
		SuccessRate: 0.5,
		Results: []pipeline.StepResult{
			{Status: pipeline.StepCompleted},
			{Status: pipeline.StepFailed},
		},
	}}
	queue := NewMemoryQueue(4)
	processor := NewProcessor(runner, store, queue, queue)

	if err := processor.Handle(ctx, "job-ok"); err != nil {
		t.Fatalf("处理作业失败: %v", err)
	}

	j, err := store.Get(ctx, "job-ok")
	if err != nil {
		t.Fatalf("查询作业失败: %v", err)
	}
	if j.Status != StatusSucceeded {
		t.Fatalf("status = %s, want %s", j.Status, StatusSucceeded)
	}
	if j.Result == nil || j.Result.RunID != "pipeline_test" {
		t.Fatalf("outcome not recorded: %+v", j.Result)
	}
	if j.Result.Steps != 2 || j.Result.Completed != 1 {
		t.Fatalf("outcome counts = %d/%d", j.Result.Completed, j.Result.Steps)
	}
}

func TestProcessorRequeuesRetryableFailure(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Job{ID: "job-retry", Task: "sync dataset", Status: StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("创建作业失败: %v", err)
	}

	runner := &fakeRunner{err: xerrors.New(xerrors.CodeStorageFailure, "knowledge store down")}
	queue := NewMemoryQueue(4)
	processor := NewProcessor(runner, store, queue, queue)

	if err := processor.Handle(ctx, "job-retry"); err != nil {
		t.Fatalf("可重试失败不应向上传播: %v", err)
	}

	j, err := store.Get(ctx, "job-retry")
	if err != nil {
		t.Fatalf("查询作业失败: %v", err)
	}
	if j.Status != StatusFailed {
		t.Fatalf("status = %s, want %s", j.Status, StatusFailed)
	}
	if j.ErrorCode != string(xerrors.CodeStorageFailure) {
		t.Fatalf("error code = %s", j.ErrorCode)
	}

	// 可重试失败应被重新投递，后续领取仍然可行。
	select {
	case jobID := <-queue.ch:
		if jobID != "job-retry" {
			t.Fatalf("requeued id = %s", jobID)
		}
	default:
		t.Fatal("expected job to be requeued")
	}
}

func TestProcessorDoesNotRequeueNonRetryable(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Job{ID: "job-bad", Task: "x", Status: StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("创建作业失败: %v", err)
	}

	runner := &fakeRunner{err: xerrors.New(xerrors.CodeInvalidInput, "任务描述不能为空")}
	queue := NewMemoryQueue(4)
	processor := NewProcessor(runner, store, queue, queue)

	if err := processor.Handle(ctx, "job-bad"); err != nil {
		t.Fatalf("处理作业失败: %v", err)
	}

	select {
	case <-queue.ch:
		t.Fatal("non-retryable failure must not be requeued")
	default:
	}

	j, err := store.Get(ctx, "job-bad")
	if err != nil {
		t.Fatalf("查询作业失败: %v", err)
	}
	if j.Status != StatusFailed {
		t.Fatalf("status = %s, want %s", j.Status, StatusFailed)
	}
}

func TestProcessorSkipsCompletedJob(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Job{ID: "job-done", Task: "x", Status: StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("创建作业失败: %v", err)
	}
	if _, err := store.Claim(ctx, "job-done"); err != nil {
		t.Fatalf("领取作业失败: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "job-done", Outcome{RunID: "r"}); err != nil {
		t.Fatalf("标记成功失败: %v", err)
	}

	runner := &fakeRunner{run: &pipeline.Run{ID: "should-not-run"}}
	queue := NewMemoryQueue(4)
	processor := NewProcessor(runner, store, queue, queue)

	if err := processor.Handle(ctx, "job-done"); err != nil {
		t.Fatalf("已完成作业应被静默跳过: %v", err)
	}
	j, _ := store.Get(ctx, "job-done")
	if j.Result.RunID != "r" {
		t.Fatalf("completed job must not be re-executed: %+v", j.Result)
	}
}
