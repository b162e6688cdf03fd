package capability

import (
	"reflect"
	"testing"
)

func TestResolveSnowflakeSlackScenario(t *testing.T) {
	resolver := NewResolver()

	got := resolver.Resolve("query snowflake data and send slack notification")
	want := []Capability{DataQuery, Notification}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolveDefaultFallback(t *testing.T) {
	resolver := NewResolver()

	for _, text := range []string{"", "hello world", "do the thing"} {
		got := resolver.Resolve(text)
		if len(got) != 1 || got[0] != DataQuery {
			t.Fatalf("Resolve(%q) = %v, want default [data-query]", text, got)
		}
	}
}

func TestResolveMultipleCapabilities(t *testing.T) {
	resolver := NewResolver()

	// "dataset" 同时命中 data-query 的 "data" 关键字，属于子串匹配的预期行为。
	got := resolver.Resolve("sync the foundry dataset, trigger the zapier workflow and notify the ops channel")
	want := []Capability{DataQuery, Notification, Sync, WorkflowAutomation}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Resolve() = %v, want %v", got, want)
	}
}

func TestResolveDeterministicOrder(t *testing.T) {
	resolver := NewResolver()
	text := "query the database, push code to github and deploy to aws infrastructure"

	first := resolver.Resolve(text)
	for i := 0; i < 20; i++ {
		if got := resolver.Resolve(text); !reflect.DeepEqual(got, first) {
			t.Fatalf("resolution order not stable: %v then %v", first, got)
		}
	}
}

func TestResolveCaseInsensitive(t *testing.T) {
	resolver := NewResolver()

	got := resolver.Resolve("Run the SQL QUERY against SNOWFLAKE")
	if len(got) != 1 || got[0] != DataQuery {
		t.Fatalf("Resolve() = %v, want [data-query]", got)
	}
}
