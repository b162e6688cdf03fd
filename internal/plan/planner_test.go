package plan

import (
	stdErrors "errors"
	"testing"
	"time"

	"github.com/raider-express-inc/RaiderBot-Production-sub000/internal/capability"
	xerrors "github.com/raider-express-inc/RaiderBot-Production-sub000/internal/errors"
)

func newTestPlanner(t *testing.T, opts ...PlannerOption) *Planner {
	t.Helper()
	planner, err := NewPlanner(opts...)
	if err != nil {
		t.Fatalf("构造规划器失败: %v", err)
	}
	return planner
}

func TestPlanOrderedByPriority(t *testing.T) {
	planner := newTestPlanner(t)

	execPlan := planner.Plan("full pipeline", []capability.Capability{
		capability.Notification,
		capability.InfraDeploy,
		capability.WorkflowAutomation,
		capability.RepositoryManagement,
		capability.Sync,
		capability.DataQuery,
	})

	if len(execPlan.Steps) != 6 {
		t.Fatalf("expected 6 steps, got %d", len(execPlan.Steps))
	}
	for i := 1; i < len(execPlan.Steps); i++ {
		if execPlan.Steps[i].Priority < execPlan.Steps[i-1].Priority {
			t.Fatalf("steps not in non-decreasing priority order: %+v", execPlan.Steps)
		}
	}
	if execPlan.Steps[0].Capability != capability.DataQuery {
		t.Fatalf("expected data-query first, got %s", execPlan.Steps[0].Capability)
	}
	if execPlan.EstimatedDuration != 6*30*time.Second {
		t.Fatalf("unexpected estimated duration: %v", execPlan.EstimatedDuration)
	}
}

func TestPlanDataQueryBeforeNotification(t *testing.T) {
	planner := newTestPlanner(t)

	execPlan := planner.Plan("query snowflake data and send slack notification",
		[]capability.Capability{capability.DataQuery, capability.Notification})

	if len(execPlan.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(execPlan.Steps))
	}
	if execPlan.Steps[0].Capability != capability.DataQuery || execPlan.Steps[1].Capability != capability.Notification {
		t.Fatalf("unexpected step order: %+v", execPlan.Steps)
	}
	if execPlan.Steps[0].Action != "query_data" || execPlan.Steps[1].Action != "send_notification" {
		t.Fatalf("unexpected actions: %+v", execPlan.Steps)
	}
}

func TestPlanSingleDefaultCapability(t *testing.T) {
	planner := newTestPlanner(t)

	execPlan := planner.Plan("unmatched task", []capability.Capability{capability.DataQuery})
	if len(execPlan.Steps) != 1 {
		t.Fatalf("expected exactly one step, got %d", len(execPlan.Steps))
	}
	if execPlan.EstimatedDuration != 30*time.Second {
		t.Fatalf("unexpected estimated duration: %v", execPlan.EstimatedDuration)
	}
}

func TestPlanDropsUnknownCapabilities(t *testing.T) {
	planner := newTestPlanner(t)

	// container 可被解析器识别，但没有计划表条目，应被静默丢弃。
	execPlan := planner.Plan("restart the docker container", []capability.Capability{
		capability.Container,
		capability.DataQuery,
	})
	if len(execPlan.Steps) != 1 || execPlan.Steps[0].Capability != capability.DataQuery {
		t.Fatalf("expected container to be dropped: %+v", execPlan.Steps)
	}
}

func TestPlanDeduplicatesCapabilities(t *testing.T) {
	planner := newTestPlanner(t)

	execPlan := planner.Plan("dup", []capability.Capability{
		capability.DataQuery, capability.DataQuery, capability.Sync,
	})
	if len(execPlan.Steps) != 2 {
		t.Fatalf("expected 2 unique steps, got %d", len(execPlan.Steps))
	}
}

func TestNewPlannerRejectsCycle(t *testing.T) {
	table := map[capability.Capability]Blueprint{
		capability.DataQuery: {
			Action:       "query_data",
			Priority:     1,
			Dependencies: []capability.Capability{capability.Notification},
		},
		capability.Notification: {
			Action:       "send_notification",
			Priority:     2,
			Dependencies: []capability.Capability{capability.DataQuery},
		},
	}

	_, err := NewPlanner(WithTable(table))
	if err == nil {
		t.Fatal("expected cycle detection error")
	}
	if !stdErrors.Is(err, xerrors.New(xerrors.CodeConfiguration, "")) {
		t.Fatalf("expected CONFIGURATION_INVALID, got %v", err)
	}
}

func TestNewPlannerRejectsDanglingDependency(t *testing.T) {
	table := map[capability.Capability]Blueprint{
		capability.Sync: {
			Action:       "sync_data",
			Priority:     2,
			Dependencies: []capability.Capability{capability.DataQuery},
		},
	}

	if _, err := NewPlanner(WithTable(table)); err == nil {
		t.Fatal("expected error for dependency outside the table")
	}
}

func TestPlanTieBreakIsStable(t *testing.T) {
	planner := newTestPlanner(t)

	// sync 与 repository-management 同为优先级 2，多次规划顺序应一致。
	first := planner.Plan("tie", []capability.Capability{capability.RepositoryManagement, capability.Sync})
	for i := 0; i < 20; i++ {
		again := planner.Plan("tie", []capability.Capability{capability.Sync, capability.RepositoryManagement})
		for j := range first.Steps {
			if first.Steps[j].Capability != again.Steps[j].Capability {
				t.Fatalf("tie-break not stable: %+v vs %+v", first.Steps, again.Steps)
			}
		}
	}
}
