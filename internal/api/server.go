package api

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/auth"
	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/job"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/observability/metrics"
	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/orchestrator"
)

// Server 负责暴露 REST 接口，供外部驱动调度与编排。
type Server struct {
	addr string
	orch *orchestrator.Service
	jobs *job.Service
	auth *auth.Service
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, orch *orchestrator.Service, jobs *job.Service, authSvc *auth.Service) *Server {
	return &Server{addr: addr, orch: orch, jobs: jobs, auth: authSvc}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/decisions", s.instrument("decisions", s.handleDecisions))
	mux.HandleFunc("/api/v1/pipelines", s.instrument("pipelines", s.handlePipelines))
	mux.HandleFunc("/api/v1/jobs", s.instrument("jobs", s.handleJobs))
	mux.HandleFunc("/api/v1/jobs/", s.instrument("job_detail", s.handleJobDetail))
	mux.HandleFunc("/api/v1/runs", s.instrument("runs", s.handleRuns))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// instrument 为处理器追加认证检查与请求指标。
func (s *Server) instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subject, err := s.auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			status := http.StatusUnauthorized
			if stdErrors.Is(err, auth.ErrKeyRevoked) {
				status = http.StatusForbidden
			}
			http.Error(w, http.StatusText(status), status)
			metrics.ObserveHTTPRequest(name, r.Method, status, 0)
			return
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r.WithContext(auth.WithSubject(r.Context(), subject)))
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

type decisionRequest struct {
	Query   string         `json:"query"`
	Context map[string]any `json:"context,omitempty"`
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.orch == nil {
		http.Error(w, "编排服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	result, err := s.orch.Route(r.Context(), req.Query, req.Context)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type pipelineRequest struct {
	Task string `json:"task"`
	// Chained 为真时先做意图决策，再以命中策略的响应时限执行管道。
	Chained bool           `json:"chained,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

func (s *Server) handlePipelines(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if s.orch == nil {
		http.Error(w, "编排服务未初始化", http.StatusServiceUnavailable)
		return
	}

	var req pipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	if req.Chained {
		result, err := s.orch.Dispatch(r.Context(), req.Task, req.Context)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	run, err := s.orch.Orchestrate(r.Context(), req.Task)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		http.Error(w, "作业服务未初始化", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodPost:
		var req job.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "请求体解析失败", http.StatusBadRequest)
			return
		}
		created, err := s.jobs.Submit(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, created)
	case http.MethodGet:
		jobs, err := s.jobs.List(r.Context(), parseLimit(r, 20))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, jobs)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.jobs == nil {
		http.Error(w, "作业服务未初始化", http.StatusServiceUnavailable)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "作业 ID 非法", http.StatusBadRequest)
		return
	}

	j, err := s.jobs.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.orch == nil {
		http.Error(w, "编排服务未初始化", http.StatusServiceUnavailable)
		return
	}

	records, err := s.orch.History(r.Context(), parseLimit(r, 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func parseLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError 将统一错误码映射为 HTTP 状态。
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidInput, job.CodeJobValidation:
		status = http.StatusBadRequest
	case xerrors.CodeNotFound, job.CodeJobNotFound:
		status = http.StatusNotFound
	case xerrors.CodeConflict, job.CodeJobConflict:
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
