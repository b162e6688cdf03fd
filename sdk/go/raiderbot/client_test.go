package raiderbot

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRouteDecisionSendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/decisions" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		if r.Header.Get("Authorization") != "Bearer rb-key" {
			t.Fatalf("expected bearer key, got %q", r.Header.Get("Authorization"))
		}
		var req DecisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if req.Query != "truck 204 brake failure on I-35" {
			t.Fatalf("unexpected query: %s", req.Query)
		}
		_ = json.NewEncoder(w).Encode(Decision{
			Intent:             "emergency_response",
			Confidence:         0.9,
			RequiresEscalation: true,
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	client.SetAPIKey("rb-key")

	decision, err := client.RouteDecision(context.Background(), DecisionRequest{
		Query: "truck 204 brake failure on I-35",
	})
	if err != nil {
		t.Fatalf("route decision: %v", err)
	}
	if decision.Intent != "emergency_response" {
		t.Fatalf("unexpected intent: %s", decision.Intent)
	}
	if !decision.RequiresEscalation {
		t.Fatal("expected escalation flag")
	}
}

func TestSubmitAndWaitForJob(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/jobs":
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: "pending"})
		case "/api/v1/jobs/job-1":
			polls++
			status := "running"
			var result *JobOutcome
			if polls >= 2 {
				status = "succeeded"
				result = &JobOutcome{RunID: "pipeline_x", SuccessRate: 1.0, Steps: 2, Completed: 2}
			}
			_ = json.NewEncoder(w).Encode(Job{ID: "job-1", Status: status, Result: result})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())

	created, err := client.SubmitJob(context.Background(), JobSubmission{Task: "sync fleet data"})
	if err != nil {
		t.Fatalf("submit job: %v", err)
	}
	if created.ID != "job-1" {
		t.Fatalf("unexpected job id: %s", created.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	finished, err := client.WaitForJob(ctx, "job-1", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("wait for job: %v", err)
	}
	if finished.Status != "succeeded" {
		t.Fatalf("unexpected status: %s", finished.Status)
	}
	if finished.Result == nil || finished.Result.Completed != 2 {
		t.Fatalf("unexpected result: %+v", finished.Result)
	}
}

func TestListRunsAppendsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/runs" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "5" {
			t.Fatalf("unexpected limit: %s", r.URL.Query().Get("limit"))
		}
		_ = json.NewEncoder(w).Encode([]RunRecord{{ID: "pipeline_a"}, {ID: "pipeline_b"}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	records, err := client.ListRuns(context.Background(), 5)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}

func TestGetJobError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "job not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, srv.Client())
	_, err := client.GetJob(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", apiErr.StatusCode)
	}
}
