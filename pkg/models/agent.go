package models

// AgentCapability declares one thing an agent can do. Capability IDs are
// the vocabulary the decomposer and dispatcher share.
type AgentCapability struct {
	// ID is the capability identifier, e.g. "technical_analysis".
	ID string `json:"id"`
	// Name is the human-readable capability name.
	Name string `json:"name"`
	// Description explains the capability.
	Description string `json:"description,omitempty"`
	// Skills lists finer-grained skills under this capability.
	Skills []string `json:"skills,omitempty"`
	// Tools lists tool names this capability relies on.
	Tools []string `json:"tools,omitempty"`
}

// AgentProfile describes an agent available for dispatch.
type AgentProfile struct {
	// AgentID is the unique agent identifier.
	AgentID string `json:"agent_id"`
	// Name is the human-readable agent name.
	Name string `json:"name"`
	// Description summarizes the agent's role.
	Description string `json:"description,omitempty"`
	// Capabilities lists what the agent can do.
	Capabilities []AgentCapability `json:"capabilities,omitempty"`
	// Model overrides the default LLM model for this agent, if set.
	Model string `json:"model,omitempty"`
	// Temperature is the sampling temperature used for this agent.
	Temperature float64 `json:"temperature"`
}

// HasCapability reports whether the agent declares the given capability ID.
func (p *AgentProfile) HasCapability(capabilityID string) bool {
	for _, c := range p.Capabilities {
		if c.ID == capabilityID {
			return true
		}
	}
	return false
}

// CapabilityScore returns the fraction of required capability IDs this
// agent declares, in [0.0, 1.0]. An empty requirement list scores 1.0.
func (p *AgentProfile) CapabilityScore(required []string) float64 {
	if len(required) == 0 {
		return 1.0
	}
	matched := 0
	for _, cap := range required {
		if p.HasCapability(cap) {
			matched++
		}
	}
	return float64(matched) / float64(len(required))
}

// AgentRegistry holds agent profiles in registration order. Dispatch
// tie-breaking depends on that order, so the registry is not a bare map.
type AgentRegistry struct {
	order []string
	byID  map[string]*AgentProfile
}

// NewAgentRegistry returns an empty registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{byID: make(map[string]*AgentProfile)}
}

// Register adds a profile. Re-registering an existing agent ID replaces
// the profile but keeps its original position.
func (r *AgentRegistry) Register(p *AgentProfile) {
	if _, ok := r.byID[p.AgentID]; !ok {
		r.order = append(r.order, p.AgentID)
	}
	r.byID[p.AgentID] = p
}

// Get returns the profile for the given agent ID.
func (r *AgentRegistry) Get(agentID string) (*AgentProfile, bool) {
	p, ok := r.byID[agentID]
	return p, ok
}

// Agents returns all profiles in registration order.
func (r *AgentRegistry) Agents() []*AgentProfile {
	out := make([]*AgentProfile, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Len returns the number of registered agents.
func (r *AgentRegistry) Len() int {
	return len(r.order)
}
