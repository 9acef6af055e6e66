// Package dispatch assigns tasks to agents. Agents are kept in
// registration order so tie-breaking is stable across runs.
package dispatch

import (
	"sort"

	"github.com/quorumhq/quorum/pkg/models"
)

// Strategy selects how agents are chosen for tasks.
type Strategy string

const (
	// StrategyBestMatch picks the agent with the highest capability score.
	StrategyBestMatch Strategy = "best_match"
	// StrategyRoundRobin picks the first capable agent in registration order.
	StrategyRoundRobin Strategy = "round_robin"
	// StrategyLeastLoaded picks the capable agent with the fewest assignments.
	StrategyLeastLoaded Strategy = "least_loaded"
)

// Dispatcher assigns tasks to agents using a configured strategy.
type Dispatcher struct {
	registry *models.AgentRegistry
	strategy Strategy
	load     map[string]int
	warnf    func(format string, args ...any)
}

// New creates a dispatcher over the given registry. An unknown strategy
// falls back to best_match. warnf receives unassignable-task warnings
// and may be nil.
func New(registry *models.AgentRegistry, strategy Strategy, warnf func(format string, args ...any)) *Dispatcher {
	if warnf == nil {
		warnf = func(string, ...any) {}
	}
	d := &Dispatcher{
		registry: registry,
		strategy: strategy,
		load:     make(map[string]int),
		warnf:    warnf,
	}
	for _, p := range registry.Agents() {
		d.load[p.AgentID] = 0
	}
	return d
}

// Dispatch assigns each task to an agent and returns task ID -> agent ID.
// With an empty registry, tasks stay unassigned and a warning is logged
// for each. When agents exist but none scores above zero, the first
// registered agent is used as fallback.
func (d *Dispatcher) Dispatch(tasks []*models.Task) map[string]string {
	assignments := make(map[string]string)

	for _, task := range tasks {
		agentID := d.findAgent(task)
		if agentID == "" {
			d.warnf("no suitable agent found for task %q", task.Name)
			continue
		}
		assignments[task.ID] = agentID
		d.load[agentID]++
	}

	return assignments
}

func (d *Dispatcher) findAgent(task *models.Task) string {
	if d.registry.Len() == 0 {
		return ""
	}

	switch d.strategy {
	case StrategyRoundRobin:
		return d.findRoundRobin(task)
	case StrategyLeastLoaded:
		return d.findLeastLoaded(task)
	default:
		return d.findBestMatch(task)
	}
}

// findBestMatch returns the agent with the strictly highest capability
// score; registration order wins ties.
func (d *Dispatcher) findBestMatch(task *models.Task) string {
	best := ""
	bestScore := -1.0
	for _, p := range d.registry.Agents() {
		score := p.CapabilityScore(task.RequiredCapabilities)
		if score > bestScore {
			bestScore = score
			best = p.AgentID
		}
	}
	return best
}

// findRoundRobin returns the first agent in registration order with a
// non-zero score, falling back to the first registered agent.
func (d *Dispatcher) findRoundRobin(task *models.Task) string {
	agents := d.registry.Agents()
	for _, p := range agents {
		if p.CapabilityScore(task.RequiredCapabilities) > 0 {
			return p.AgentID
		}
	}
	return agents[0].AgentID
}

// findLeastLoaded returns the capable agent with the lowest load,
// breaking ties by higher score, then registration order.
func (d *Dispatcher) findLeastLoaded(task *models.Task) string {
	type candidate struct {
		id    string
		load  int
		score float64
	}
	var candidates []candidate
	agents := d.registry.Agents()
	for _, p := range agents {
		score := p.CapabilityScore(task.RequiredCapabilities)
		if score > 0 {
			candidates = append(candidates, candidate{p.AgentID, d.load[p.AgentID], score})
		}
	}
	if len(candidates) == 0 {
		return agents[0].AgentID
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].load != candidates[j].load {
			return candidates[i].load < candidates[j].load
		}
		return candidates[i].score > candidates[j].score
	})
	return candidates[0].id
}

// AgentAssignments groups assigned task IDs by agent ID. Every
// registered agent appears, possibly with an empty list.
func (d *Dispatcher) AgentAssignments(assignments map[string]string) map[string][]string {
	result := make(map[string][]string, d.registry.Len())
	for _, p := range d.registry.Agents() {
		result[p.AgentID] = []string{}
	}
	for taskID, agentID := range assignments {
		if _, ok := result[agentID]; ok {
			result[agentID] = append(result[agentID], taskID)
		}
	}
	return result
}

// ResetLoad clears all load counters.
func (d *Dispatcher) ResetLoad() {
	for id := range d.load {
		d.load[id] = 0
	}
}

// LoadSummary returns a copy of the current per-agent load counters.
func (d *Dispatcher) LoadSummary() map[string]int {
	out := make(map[string]int, len(d.load))
	for id, n := range d.load {
		out[id] = n
	}
	return out
}
