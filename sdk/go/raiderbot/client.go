package raiderbot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the RaiderBot REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu     sync.RWMutex
	apiKey string
}

// DecisionRequest represents the payload used to classify a dispatch query.
type DecisionRequest struct {
	Query   string         `json:"query"`
	Context map[string]any `json:"context,omitempty"`
}

// Policy mirrors the decision policy applied to a classified query.
type Policy struct {
	ConfidenceThreshold float64       `json:"confidence_threshold"`
	EscalationRequired  bool          `json:"escalation_required"`
	ResponseTimeLimit   time.Duration `json:"response_time_limit"`
}

// Decision contains the classification outcome for a dispatch query.
type Decision struct {
	Intent             string   `json:"intent"`
	Confidence         float64  `json:"confidence"`
	Policy             Policy   `json:"policy"`
	RequiresEscalation bool     `json:"requires_escalation"`
	RecommendedActions []string `json:"recommended_actions"`
	CreatedAt          int64    `json:"created_at"`
}

// PipelineRequest represents the payload used to run a task pipeline. When
// Chained is true the server routes the task through the decision engine first
// and applies the matched policy's response time limit.
type PipelineRequest struct {
	Task    string         `json:"task"`
	Chained bool           `json:"chained,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// StepResult describes the outcome of a single pipeline step.
type StepResult struct {
	Capability string         `json:"capability"`
	Action     string         `json:"action"`
	Status     string         `json:"status"`
	Payload    map[string]any `json:"payload,omitempty"`
	Error      string         `json:"error,omitempty"`
	CreatedAt  int64          `json:"created_at"`
}

// Step describes a planned pipeline step.
type Step struct {
	Capability   string         `json:"capability"`
	Action       string         `json:"action"`
	Priority     int            `json:"priority"`
	Dependencies []string       `json:"dependencies,omitempty"`
	Parameters   map[string]any `json:"parameters,omitempty"`
}

// ExecutionPlan mirrors the ordered plan derived from a task description.
type ExecutionPlan struct {
	Task              string        `json:"task"`
	Steps             []Step        `json:"steps"`
	EstimatedDuration time.Duration `json:"estimated_duration"`
}

// Run contains the full record of one pipeline execution.
type Run struct {
	ID          string         `json:"id"`
	Task        string         `json:"task"`
	Plan        *ExecutionPlan `json:"plan"`
	Results     []StepResult   `json:"results"`
	SuccessRate float64        `json:"success_rate"`
	CreatedAt   int64          `json:"created_at"`
}

// DispatchResult pairs a decision with the pipeline run it triggered.
type DispatchResult struct {
	Decision *Decision `json:"decision"`
	Run      *Run      `json:"run"`
}

// JobSubmission represents the payload required to enqueue an async job.
type JobSubmission struct {
	ID       string         `json:"id,omitempty"`
	Task     string         `json:"task"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// JobOutcome summarizes the run produced by a finished job.
type JobOutcome struct {
	RunID       string  `json:"run_id"`
	SuccessRate float64 `json:"success_rate"`
	Steps       int     `json:"steps"`
	Completed   int     `json:"completed"`
}

// Job contains the lifecycle state of an async pipeline job.
type Job struct {
	ID         string         `json:"id"`
	Task       string         `json:"task"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Result     *JobOutcome    `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// RunRecord is the persisted history entry for a pipeline run.
type RunRecord struct {
	ID          string          `json:"id"`
	Task        string          `json:"task"`
	Plan        json.RawMessage `json:"plan"`
	Results     json.RawMessage `json:"results"`
	SuccessRate float64         `json:"success_rate"`
	CreatedAt   int64           `json:"created_at"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("raiderbot api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the RaiderBot API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) *Client {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		panic(fmt.Sprintf("invalid base url: %v", err))
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}
}

// SetAPIKey stores the key sent on subsequent calls. Servers running with
// authentication disabled ignore the header, so leaving it empty is valid.
func (c *Client) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiKey = key
}

// APIKey returns the currently stored key.
func (c *Client) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// RouteDecision classifies a dispatch query without executing anything.
func (c *Client) RouteDecision(ctx context.Context, req DecisionRequest) (Decision, error) {
	var decision Decision
	if err := c.post(ctx, "/api/v1/decisions", req, &decision); err != nil {
		return Decision{}, err
	}
	return decision, nil
}

// RunPipeline plans and executes a task synchronously.
func (c *Client) RunPipeline(ctx context.Context, task string) (Run, error) {
	var run Run
	if err := c.post(ctx, "/api/v1/pipelines", PipelineRequest{Task: task}, &run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// Dispatch routes the query through the decision engine and then executes the
// resulting pipeline under the matched policy's response time limit.
func (c *Client) Dispatch(ctx context.Context, query string, queryContext map[string]any) (DispatchResult, error) {
	var result DispatchResult
	req := PipelineRequest{Task: query, Chained: true, Context: queryContext}
	if err := c.post(ctx, "/api/v1/pipelines", req, &result); err != nil {
		return DispatchResult{}, err
	}
	return result, nil
}

// SubmitJob enqueues a task for asynchronous execution.
func (c *Client) SubmitJob(ctx context.Context, submission JobSubmission) (Job, error) {
	var created Job
	if err := c.post(ctx, "/api/v1/jobs", submission, &created); err != nil {
		return Job{}, err
	}
	return created, nil
}

// GetJob fetches job state by identifier.
func (c *Client) GetJob(ctx context.Context, jobID string) (Job, error) {
	var detail Job
	if err := c.get(ctx, "/api/v1/jobs/"+url.PathEscape(jobID), &detail); err != nil {
		return Job{}, err
	}
	return detail, nil
}

// ListJobs returns the most recently updated jobs, newest first.
func (c *Client) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	var jobs []Job
	if err := c.get(ctx, withLimit("/api/v1/jobs", limit), &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ListRuns returns the persisted pipeline run history, newest first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	var records []RunRecord
	if err := c.get(ctx, withLimit("/api/v1/runs", limit), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// WaitForJob polls until the job reaches a terminal status or the context is
// cancelled.
func (c *Client) WaitForJob(ctx context.Context, jobID string, interval time.Duration) (Job, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		detail, err := c.GetJob(ctx, jobID)
		if err != nil {
			return Job{}, err
		}
		if detail.Status == "succeeded" || detail.Status == "failed" {
			return detail, nil
		}
		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func withLimit(endpoint string, limit int) string {
	if limit <= 0 {
		return endpoint
	}
	return endpoint + "?limit=" + strconv.Itoa(limit)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if key := c.APIKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
