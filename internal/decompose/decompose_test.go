package decompose

import (
	"context"
	"errors"
	"testing"

	"github.com/quorumhq/quorum/internal/provider"
	"github.com/quorumhq/quorum/pkg/models"
)

type fakeClient struct {
	content string
	err     error
}

func (f *fakeClient) Chat(_ context.Context, _ provider.ChatRequest) (*provider.ChatResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.ChatResponse{Content: f.content}, nil
}

func TestDecompose(t *testing.T) {
	client := &fakeClient{content: `{
		"tasks": [
			{"name": "fetch_data", "description": "Fetch market data", "required_capabilities": ["data_fetch"], "dependencies": [], "priority": 9},
			{"name": "analyze", "description": "Analyze the data", "required_capabilities": ["technical_analysis"], "dependencies": ["fetch_data"], "priority": 7},
			{"name": "report", "description": "Write the report", "required_capabilities": ["report_writing"], "dependencies": ["analyze", "nonexistent"], "priority": 3}
		]
	}`}

	d := New(client, nil)
	req := models.NewCollaborationRequest("evaluate BTC entry")
	tasks := d.Decompose(context.Background(), req)

	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	if tasks[0].Name != "fetch_data" || tasks[0].Priority != 9 {
		t.Errorf("first task = %q prio %d", tasks[0].Name, tasks[0].Priority)
	}
	if len(tasks[1].Dependencies) != 1 || tasks[1].Dependencies[0] != tasks[0].ID {
		t.Errorf("analyze dependencies = %v, want [%s]", tasks[1].Dependencies, tasks[0].ID)
	}
	// unknown dependency names are dropped
	if len(tasks[2].Dependencies) != 1 || tasks[2].Dependencies[0] != tasks[1].ID {
		t.Errorf("report dependencies = %v, want [%s]", tasks[2].Dependencies, tasks[1].ID)
	}
	for _, task := range tasks {
		if task.Status != models.TaskStatusPending {
			t.Errorf("task %s status = %s, want pending", task.Name, task.Status)
		}
	}
}

func TestDecomposeForwardDependencyDropped(t *testing.T) {
	// a dependency on a task declared later in the list is unresolved
	client := &fakeClient{content: `{
		"tasks": [
			{"name": "second", "description": "d", "dependencies": ["first"], "priority": 5},
			{"name": "first", "description": "d", "dependencies": [], "priority": 5}
		]
	}`}

	d := New(client, nil)
	tasks := d.Decompose(context.Background(), models.NewCollaborationRequest("g"))
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if len(tasks[0].Dependencies) != 0 {
		t.Errorf("forward dependency should be dropped, got %v", tasks[0].Dependencies)
	}
}

func TestDecomposeFallbacks(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"provider error", &fakeClient{err: errors.New("api down")}},
		{"non-json output", &fakeClient{content: "I refuse to answer in JSON."}},
		{"empty task list", &fakeClient{content: `{"tasks": []}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(tt.client, nil)
			req := models.NewCollaborationRequest("do the thing")
			tasks := d.Decompose(context.Background(), req)

			if len(tasks) != 1 {
				t.Fatalf("got %d tasks, want 1 fallback task", len(tasks))
			}
			task := tasks[0]
			if task.Name != "analyze_goal" {
				t.Errorf("fallback name = %q, want analyze_goal", task.Name)
			}
			if task.Priority != 10 {
				t.Errorf("fallback priority = %d, want 10", task.Priority)
			}
			if len(task.Dependencies) != 0 || len(task.RequiredCapabilities) != 0 {
				t.Errorf("fallback task should have no deps or capabilities: %+v", task)
			}
		})
	}
}

func TestDecomposeDefaultPriority(t *testing.T) {
	client := &fakeClient{content: `{"tasks": [{"name": "t", "description": "d"}]}`}
	d := New(client, nil)
	tasks := d.Decompose(context.Background(), models.NewCollaborationRequest("g"))
	if tasks[0].Priority != 5 {
		t.Errorf("default priority = %d, want 5", tasks[0].Priority)
	}
}

func TestExecutionOrder(t *testing.T) {
	a := &models.Task{ID: "a", Name: "a", Priority: 3}
	b := &models.Task{ID: "b", Name: "b", Priority: 8}
	c := &models.Task{ID: "c", Name: "c", Priority: 5, Dependencies: []string{"a", "b"}}
	d := &models.Task{ID: "d", Name: "d", Priority: 1, Dependencies: []string{"c"}}

	waves := ExecutionOrder([]*models.Task{a, b, c, d})
	if len(waves) != 3 {
		t.Fatalf("got %d waves, want 3", len(waves))
	}
	// first wave sorted by priority descending
	if waves[0][0].ID != "b" || waves[0][1].ID != "a" {
		t.Errorf("wave 0 = [%s %s], want [b a]", waves[0][0].ID, waves[0][1].ID)
	}
	if len(waves[1]) != 1 || waves[1][0].ID != "c" {
		t.Errorf("wave 1 = %v, want [c]", waves[1])
	}
	if len(waves[2]) != 1 || waves[2][0].ID != "d" {
		t.Errorf("wave 2 = %v, want [d]", waves[2])
	}
}

func TestExecutionOrderCycle(t *testing.T) {
	a := &models.Task{ID: "a", Name: "a", Dependencies: []string{"b"}}
	b := &models.Task{ID: "b", Name: "b", Dependencies: []string{"a"}}

	waves := ExecutionOrder([]*models.Task{a, b})

	total := 0
	for _, w := range waves {
		total += len(w)
	}
	if total != 2 {
		t.Fatalf("cycle handling covered %d tasks, want 2", total)
	}
	// forced wave carries exactly one task
	if len(waves[0]) != 1 {
		t.Errorf("first forced wave has %d tasks, want 1", len(waves[0]))
	}
}

func TestDependencyGraph(t *testing.T) {
	a := &models.Task{ID: "a"}
	b := &models.Task{ID: "b", Dependencies: []string{"a"}}
	graph := DependencyGraph([]*models.Task{a, b})
	if len(graph) != 2 {
		t.Fatalf("graph size = %d, want 2", len(graph))
	}
	if len(graph["b"]) != 1 || graph["b"][0] != "a" {
		t.Errorf("graph[b] = %v, want [a]", graph["b"])
	}
}
