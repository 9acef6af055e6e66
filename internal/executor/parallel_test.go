package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quorumhq/quorum/internal/provider"
	"github.com/quorumhq/quorum/pkg/models"
)

// graphClient records the order tasks reach the model. Task names are
// recovered from the prompt so the tests can assert scheduling order.
type graphClient struct {
	mu       sync.Mutex
	started  []string
	finished []string
	failFor  map[string]bool
}

func (g *graphClient) Chat(_ context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	name := taskNameFromPrompt(req.Messages[0].Content)

	g.mu.Lock()
	g.started = append(g.started, name)
	g.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	g.mu.Lock()
	g.finished = append(g.finished, name)
	fail := g.failFor[name]
	g.mu.Unlock()

	if fail {
		return nil, errors.New("agent blew up")
	}
	return &provider.ChatResponse{Content: "output of " + name}, nil
}

func taskNameFromPrompt(prompt string) string {
	// the prompt contains "## Your Task\n<name>\n"
	idx := strings.Index(prompt, "## Your Task\n")
	rest := prompt[idx+len("## Your Task\n"):]
	return rest[:strings.Index(rest, "\n")]
}

func singleAgentRegistry() (*models.AgentRegistry, map[string]string, func(tasks ...*models.Task)) {
	r := models.NewAgentRegistry()
	r.Register(&models.AgentProfile{AgentID: "a1", Name: "worker"})
	assignments := map[string]string{}
	assign := func(tasks ...*models.Task) {
		for _, t := range tasks {
			assignments[t.ID] = "a1"
		}
	}
	return r, assignments, assign
}

func newParallel(client provider.ChatClient, maxConcurrent int) *ParallelExecutor {
	exec := noSleep(NewTaskExecutor(client, 0, time.Millisecond))
	return NewParallelExecutor(exec, maxConcurrent, nil)
}

func TestExecuteAllRespectsDependencies(t *testing.T) {
	client := &graphClient{}
	a := models.NewTask("A", "first")
	b := models.NewTask("B", "second")
	c := models.NewTask("C", "depends on both")
	c.Dependencies = []string{a.ID, b.ID}

	registry, assignments, assign := singleAgentRegistry()
	assign(a, b, c)

	p := newParallel(client, 4)
	results := p.ExecuteAll(context.Background(), []*models.Task{a, b, c}, assignments, registry, nil)

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for _, task := range []*models.Task{a, b, c} {
		if results[task.ID].Status != models.TaskStatusCompleted {
			t.Errorf("task %s status = %s, want completed", task.Name, results[task.ID].Status)
		}
	}

	// C must not start before both A and B finished
	cStart := indexOf(client.started, "C")
	aDone := indexOf(client.finished, "A")
	bDone := indexOf(client.finished, "B")
	if cStart < 0 || aDone < 0 || bDone < 0 {
		t.Fatalf("missing events: started=%v finished=%v", client.started, client.finished)
	}
	// started and finished are separate sequences; C started only after
	// the first two finishes were recorded (A and B)
	if len(client.finished) < 2 {
		t.Fatal("C started before dependencies finished")
	}
	first2 := map[string]bool{client.finished[0]: true, client.finished[1]: true}
	if !first2["A"] || !first2["B"] {
		t.Errorf("first finished tasks = %v, want A and B", client.finished[:2])
	}

	// dependency outputs flow into C's context via the results map
	if !strings.Contains(results[c.ID].Output, "output of C") {
		t.Errorf("unexpected C output %q", results[c.ID].Output)
	}
}

func indexOf(list []string, want string) int {
	for i, s := range list {
		if s == want {
			return i
		}
	}
	return -1
}

func TestExecuteAllSkipsDependentsOfFailedTask(t *testing.T) {
	client := &graphClient{failFor: map[string]bool{"A": true}}
	a := models.NewTask("A", "fails")
	b := models.NewTask("B", "needs A")
	b.Dependencies = []string{a.ID}
	c := models.NewTask("C", "needs B")
	c.Dependencies = []string{b.ID}

	registry, assignments, assign := singleAgentRegistry()
	assign(a, b, c)

	p := newParallel(client, 4)
	results := p.ExecuteAll(context.Background(), []*models.Task{a, b, c}, assignments, registry, nil)

	if results[a.ID].Status != models.TaskStatusFailed {
		t.Errorf("A status = %s, want failed", results[a.ID].Status)
	}
	for _, task := range []*models.Task{b, c} {
		res := results[task.ID]
		if res.Status != models.TaskStatusSkipped {
			t.Errorf("%s status = %s, want skipped", task.Name, res.Status)
		}
		if res.Error != "Dependency failed" {
			t.Errorf("%s error = %q, want \"Dependency failed\"", task.Name, res.Error)
		}
		if task.Status != models.TaskStatusSkipped {
			t.Errorf("%s task status not updated: %s", task.Name, task.Status)
		}
	}
	// skipped tasks never reached the model
	if indexOf(client.started, "B") >= 0 || indexOf(client.started, "C") >= 0 {
		t.Errorf("skipped tasks were executed: %v", client.started)
	}
}

func TestExecuteAllForcesProgressOnCycle(t *testing.T) {
	client := &graphClient{}
	a := models.NewTask("A", "in a cycle")
	b := models.NewTask("B", "in a cycle")
	a.Dependencies = []string{b.ID}
	b.Dependencies = []string{a.ID}

	registry, assignments, assign := singleAgentRegistry()
	assign(a, b)

	p := newParallel(client, 4)

	done := make(chan map[string]*models.TaskResult, 1)
	go func() {
		done <- p.ExecuteAll(context.Background(), []*models.Task{a, b}, assignments, registry, nil)
	}()

	select {
	case results := <-done:
		if len(results) != 2 {
			t.Fatalf("got %d results, want 2", len(results))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("ExecuteAll livelocked on a dependency cycle")
	}
}

func TestExecuteAllUnassignedTaskFails(t *testing.T) {
	client := &graphClient{}
	a := models.NewTask("A", "nobody wants it")

	registry := models.NewAgentRegistry()
	registry.Register(&models.AgentProfile{AgentID: "a1", Name: "worker"})

	p := newParallel(client, 4)
	results := p.ExecuteAll(context.Background(), []*models.Task{a}, map[string]string{}, registry, nil)

	res := results[a.ID]
	if res.Status != models.TaskStatusFailed {
		t.Fatalf("status = %s, want failed", res.Status)
	}
	if res.Error != "no agent assigned" {
		t.Errorf("error = %q, want \"no agent assigned\"", res.Error)
	}
}

func TestExecuteAllConcurrencyBound(t *testing.T) {
	var mu sync.Mutex
	inFlight, peak := 0, 0

	client := &scriptedClient{fn: func(int, provider.ChatRequest) (*provider.ChatResponse, error) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(10 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return &provider.ChatResponse{Content: "ok"}, nil
	}}

	var tasks []*models.Task
	for i := 0; i < 6; i++ {
		tasks = append(tasks, models.NewTask("t", "independent"))
	}
	registry, assignments, assign := singleAgentRegistry()
	assign(tasks...)

	p := newParallel(client, 2)
	results := p.ExecuteAll(context.Background(), tasks, assignments, registry, nil)

	if len(results) != 6 {
		t.Fatalf("got %d results, want 6", len(results))
	}
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestExecuteAllSeedsDependencyResults(t *testing.T) {
	client := &graphClient{}
	a := models.NewTask("A", "already done")
	b := models.NewTask("B", "needs A")
	b.Dependencies = []string{a.ID}

	registry, assignments, assign := singleAgentRegistry()
	assign(b)

	seed := map[string]*models.TaskResult{
		a.ID: {TaskID: a.ID, Status: models.TaskStatusCompleted, Output: "precomputed"},
	}

	p := newParallel(client, 4)
	results := p.ExecuteAll(context.Background(), []*models.Task{a, b}, assignments, registry, seed)

	if results[a.ID].Output != "precomputed" {
		t.Errorf("seeded result was replaced: %+v", results[a.ID])
	}
	if results[b.ID].Status != models.TaskStatusCompleted {
		t.Errorf("B status = %s, want completed", results[b.ID].Status)
	}
	// A was never re-executed
	if indexOf(client.started, "A") >= 0 {
		t.Error("seeded task A was re-executed")
	}
}

func TestProgressCallbackFires(t *testing.T) {
	client := &graphClient{}
	a := models.NewTask("A", "watched")

	registry, assignments, assign := singleAgentRegistry()
	assign(a)

	var mu sync.Mutex
	var events []float64
	progress := func(taskID, agentID string, p float64) {
		mu.Lock()
		events = append(events, p)
		mu.Unlock()
	}

	exec := noSleep(NewTaskExecutor(client, 0, time.Millisecond))
	p := NewParallelExecutor(exec, 4, progress)
	p.ExecuteAll(context.Background(), []*models.Task{a}, assignments, registry, nil)

	if len(events) != 2 || events[0] != 0.0 || events[1] != 1.0 {
		t.Errorf("progress events = %v, want [0 1]", events)
	}
}
