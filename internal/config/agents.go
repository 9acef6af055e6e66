package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/quorumhq/quorum/pkg/models"
)

// AgentSpec is one agent definition loaded from agents.yaml.
type AgentSpec struct {
	// ID is the agent identifier.
	ID string `yaml:"id"`
	// Name is the human-readable agent name.
	Name string `yaml:"name"`
	// Description summarizes the agent's role.
	Description string `yaml:"description"`
	// Model overrides the default LLM model for this agent.
	Model string `yaml:"model"`
	// Temperature is the sampling temperature for this agent.
	Temperature float64 `yaml:"temperature"`
	// Activated marks whether the agent is available for dispatch.
	Activated bool `yaml:"activated"`
	// Capabilities lists what the agent can do.
	Capabilities []CapabilitySpec `yaml:"capabilities"`
}

// CapabilitySpec is one capability entry in an agent definition.
type CapabilitySpec struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// AgentsFile is the top-level structure of agents.yaml.
type AgentsFile struct {
	Agents []AgentSpec `yaml:"agents"`
}

// LoadAgents reads agent definitions from a YAML file.
func LoadAgents(path string) ([]AgentSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}

	var file AgentsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse agents file %s: %w", path, err)
	}
	return file.Agents, nil
}

// DefaultAgents returns the built-in agent roster used when no
// agents.yaml is configured.
func DefaultAgents() []AgentSpec {
	return []AgentSpec{
		{
			ID:          "researcher",
			Name:        "Researcher",
			Description: "Gathers background information and evidence",
			Activated:   true,
			Capabilities: []CapabilitySpec{
				{ID: "research", Name: "Research"},
				{ID: "data_fetch", Name: "Data fetching"},
				{ID: "summarization", Name: "Summarization"},
			},
		},
		{
			ID:          "analyst",
			Name:        "Analyst",
			Description: "Analyzes data and evaluates trade-offs",
			Activated:   true,
			Capabilities: []CapabilitySpec{
				{ID: "analysis", Name: "Analysis"},
				{ID: "technical_analysis", Name: "Technical analysis"},
				{ID: "risk_assessment", Name: "Risk assessment"},
			},
		},
		{
			ID:          "planner",
			Name:        "Planner",
			Description: "Produces plans and execution strategies",
			Activated:   true,
			Capabilities: []CapabilitySpec{
				{ID: "planning", Name: "Planning"},
				{ID: "strategy", Name: "Strategy"},
				{ID: "writing", Name: "Writing"},
			},
		},
	}
}

// BuildRegistry turns agent specs into a registry. Non-activated agents
// are skipped; agentIDs, when non-empty, further filters to the named
// agents. When nothing survives the filters a single general-purpose
// default agent is registered so the pipeline can always run.
func BuildRegistry(specs []AgentSpec, agentIDs []string) *models.AgentRegistry {
	wanted := make(map[string]bool, len(agentIDs))
	for _, id := range agentIDs {
		wanted[id] = true
	}

	registry := models.NewAgentRegistry()
	for _, spec := range specs {
		if !spec.Activated {
			continue
		}
		if len(wanted) > 0 && !wanted[spec.ID] {
			continue
		}
		registry.Register(toProfile(spec))
	}

	if registry.Len() == 0 {
		registry.Register(&models.AgentProfile{
			AgentID:     "default",
			Name:        "Default Agent",
			Description: "General-purpose agent",
		})
	}
	return registry
}

func toProfile(spec AgentSpec) *models.AgentProfile {
	caps := make([]models.AgentCapability, 0, len(spec.Capabilities))
	for _, c := range spec.Capabilities {
		caps = append(caps, models.AgentCapability{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
		})
	}
	return &models.AgentProfile{
		AgentID:      spec.ID,
		Name:         spec.Name,
		Description:  spec.Description,
		Model:        spec.Model,
		Temperature:  spec.Temperature,
		Capabilities: caps,
	}
}
