package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/auth"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/capability"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/decision"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/intent"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/job"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/knowledge"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/orchestrator"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/pipeline"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/plan"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	engine, err := decision.NewEngine(intent.NewClassifier(), intent.NewScorer())
	if err != nil {
		t.Fatalf("创建决策引擎失败: %v", err)
	}
	planner, err := plan.NewPlanner()
	if err != nil {
		t.Fatalf("创建规划器失败: %v", err)
	}

	registry := capability.NewRegistry()
	echo := capability.AdapterFunc(func(_ context.Context, action string, _ map[string]any) (*capability.Result, error) {
		return &capability.Result{Success: true, Output: map[string]any{"action": action}}, nil
	})
	for _, name := range []capability.Capability{capability.DataQuery, capability.Notification} {
		if err := registry.Register(name, echo); err != nil {
			t.Fatalf("注册适配器失败: %v", err)
		}
	}

	store, err := knowledge.NewMemoryStore(t.TempDir())
	if err != nil {
		t.Fatalf("创建知识库失败: %v", err)
	}
	executor := pipeline.NewExecutor(registry, store)
	orch, err := orchestrator.NewService(engine, capability.NewResolver(), planner, executor, store)
	if err != nil {
		t.Fatalf("创建编排服务失败: %v", err)
	}

	queue := job.NewMemoryQueue(16)
	jobs := job.NewService(job.NewMemoryStore(), queue, 3)

	authSvc, err := auth.NewService(auth.Config{Mode: auth.ModeDisabled})
	if err != nil {
		t.Fatalf("创建认证服务失败: %v", err)
	}
	return NewServer(":0", orch, jobs, authSvc)
}

func TestHandleDecisions(t *testing.T) {
	server := newTestServer(t)

	body := `{"query":"Emergency: truck broke down on I-40"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions", strings.NewReader(body))
	rec := httptest.NewRecorder()

	server.handleDecisions(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result decision.Decision
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if result.Intent != intent.EmergencyResponse {
		t.Fatalf("intent = %s", result.Intent)
	}
	if !result.RequiresEscalation {
		t.Fatal("emergency decision must require escalation")
	}
}

func TestHandleDecisionsRejectsEmptyQuery(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions", strings.NewReader(`{"query":""}`))
	rec := httptest.NewRecorder()

	server.handleDecisions(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandlePipelines(t *testing.T) {
	server := newTestServer(t)

	body := `{"task":"Query fleet data and notify the dispatch slack channel"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pipelines", strings.NewReader(body))
	rec := httptest.NewRecorder()

	server.handlePipelines(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var run pipeline.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if run.SuccessRate != 1.0 {
		t.Fatalf("success rate = %v", run.SuccessRate)
	}
	if len(run.Results) != 2 {
		t.Fatalf("got %d steps, want 2", len(run.Results))
	}
}

func TestHandleJobsSubmitAndGet(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(`{"task":"sync the dataset"}`))
	rec := httptest.NewRecorder()
	server.handleJobs(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created job.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if created.ID == "" || created.Status != job.StatusPending {
		t.Fatalf("unexpected job: %+v", created)
	}

	detailReq := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+created.ID, nil)
	detailRec := httptest.NewRecorder()
	server.handleJobDetail(detailRec, detailReq)

	if detailRec.Code != http.StatusOK {
		t.Fatalf("detail status = %d", detailRec.Code)
	}
	var fetched job.Job
	if err := json.Unmarshal(detailRec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if fetched.ID != created.ID {
		t.Fatalf("id = %s, want %s", fetched.ID, created.ID)
	}
}

func TestHandleJobDetailNotFound(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/missing", nil)
	rec := httptest.NewRecorder()
	server.handleJobDetail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestHandleRunsReturnsHistory(t *testing.T) {
	server := newTestServer(t)

	// 先执行一条管道制造历史。
	pipeReq := httptest.NewRequest(http.MethodPost, "/api/v1/pipelines", strings.NewReader(`{"task":"query driver data"}`))
	pipeRec := httptest.NewRecorder()
	server.handlePipelines(pipeRec, pipeReq)
	if pipeRec.Code != http.StatusOK {
		t.Fatalf("pipeline status = %d", pipeRec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=5", nil)
	rec := httptest.NewRecorder()
	server.handleRuns(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var records []knowledge.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
}

func TestInstrumentRejectsBadKey(t *testing.T) {
	engineServer := newTestServer(t)
	authSvc, err := auth.NewService(auth.Config{
		Mode: auth.ModeAPIKey,
		Keys: []auth.KeySeed{{Key: "good", Name: "ops"}},
	})
	if err != nil {
		t.Fatalf("创建认证服务失败: %v", err)
	}
	server := NewServer(":0", engineServer.orch, engineServer.jobs, authSvc)

	handler := server.instrument("decisions", server.handleDecisions)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/decisions", strings.NewReader(`{"query":"x"}`))
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	okReq := httptest.NewRequest(http.MethodPost, "/api/v1/decisions", strings.NewReader(`{"query":"optimize the route"}`))
	okReq.Header.Set("Authorization", "Bearer good")
	okRec := httptest.NewRecorder()
	handler(okRec, okReq)
	if okRec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", okRec.Code)
	}
}
