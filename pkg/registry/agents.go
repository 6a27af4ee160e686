package registry

import (
	"slices"
	"strings"
	"sync"

	"github.com/teneoprotocol/teneo-go/pkg/protocol"
)

type idSet map[string]struct{}

// AgentRegistry is the indexed catalog of known agents. Safe for
// concurrent use.
type AgentRegistry struct {
	mu     sync.RWMutex
	agents map[string]protocol.Agent

	// Secondary indices. Capability and status keys are lowercased;
	// name tokens are lowercased alphanumeric runs.
	byCapability map[string]idSet
	byStatus     map[string]idSet
	byNameToken  map[string]idSet

	// snapshot caches All() results until the next mutation.
	snapshot []protocol.Agent
}

// NewAgentRegistry creates an empty registry.
func NewAgentRegistry() *AgentRegistry {
	r := &AgentRegistry{}
	r.resetLocked()
	return r
}

// Replace discards all agents and indices and rebuilds them from the
// given list in one pass. Later duplicates of an id win.
func (r *AgentRegistry) Replace(agents []protocol.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetLocked()
	for _, agent := range agents {
		if agent.ID == "" {
			continue
		}
		r.agents[agent.ID] = cloneAgent(agent)
		r.indexLocked(agent)
	}
}

// Upsert inserts or updates one agent. Stale index entries for the
// previous version are removed before the new ones are added.
func (r *AgentRegistry) Upsert(agent protocol.Agent) {
	if agent.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.agents[agent.ID]; ok {
		r.unindexLocked(prev)
	}
	r.agents[agent.ID] = cloneAgent(agent)
	r.indexLocked(agent)
	r.snapshot = nil
}

// Remove deletes an agent and its index entries.
func (r *AgentRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.agents[id]
	if !ok {
		return
	}
	r.unindexLocked(prev)
	delete(r.agents, id)
	r.snapshot = nil
}

// Get returns a copy of the agent with the given id.
func (r *AgentRegistry) Get(id string) (protocol.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[id]
	if !ok {
		return protocol.Agent{}, false
	}
	return cloneAgent(agent), true
}

// All returns copies of every agent. The underlying snapshot is cached
// until the next mutation; the returned slice is the caller's to keep.
func (r *AgentRegistry) All() []protocol.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.snapshot == nil {
		r.snapshot = make([]protocol.Agent, 0, len(r.agents))
		for _, agent := range r.agents {
			r.snapshot = append(r.snapshot, agent)
		}
		slices.SortFunc(r.snapshot, func(a, b protocol.Agent) int {
			return strings.Compare(a.ID, b.ID)
		})
	}
	out := make([]protocol.Agent, len(r.snapshot))
	for i, agent := range r.snapshot {
		out[i] = cloneAgent(agent)
	}
	return out
}

// Len returns the number of known agents.
func (r *AgentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// FindByCapability returns agents declaring the capability, compared
// case-insensitively.
func (r *AgentRegistry) FindByCapability(name string) []protocol.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectLocked(r.byCapability[strings.ToLower(name)])
}

// FindByStatus returns agents currently in the given status.
func (r *AgentRegistry) FindByStatus(status protocol.AgentStatus) []protocol.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collectLocked(r.byStatus[strings.ToLower(string(status))])
}

// FindByName returns agents whose name shares at least one token with
// the query. Tokens are lowercased alphanumeric runs; the result is the
// union of the per-token posting lists.
func (r *AgentRegistry) FindByName(fragment string) []protocol.Agent {
	tokens := tokenize(fragment)
	if len(tokens) == 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := idSet{}
	for _, token := range tokens {
		for id := range r.byNameToken[token] {
			matched[id] = struct{}{}
		}
	}
	return r.collectLocked(matched)
}

// Clear removes everything.
func (r *AgentRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

// Must be called with the lock held.
func (r *AgentRegistry) resetLocked() {
	r.agents = make(map[string]protocol.Agent)
	r.byCapability = make(map[string]idSet)
	r.byStatus = make(map[string]idSet)
	r.byNameToken = make(map[string]idSet)
	r.snapshot = nil
}

// Must be called with the lock held.
func (r *AgentRegistry) indexLocked(agent protocol.Agent) {
	for _, cap := range agent.Capabilities {
		addIndex(r.byCapability, strings.ToLower(cap.Name), agent.ID)
	}
	addIndex(r.byStatus, strings.ToLower(string(agent.Status)), agent.ID)
	for _, token := range tokenize(agent.Name) {
		addIndex(r.byNameToken, token, agent.ID)
	}
	r.snapshot = nil
}

// Must be called with the lock held.
func (r *AgentRegistry) unindexLocked(agent protocol.Agent) {
	for _, cap := range agent.Capabilities {
		dropIndex(r.byCapability, strings.ToLower(cap.Name), agent.ID)
	}
	dropIndex(r.byStatus, strings.ToLower(string(agent.Status)), agent.ID)
	for _, token := range tokenize(agent.Name) {
		dropIndex(r.byNameToken, token, agent.ID)
	}
}

// Must be called with the lock held.
func (r *AgentRegistry) collectLocked(ids idSet) []protocol.Agent {
	if len(ids) == 0 {
		return nil
	}
	out := make([]protocol.Agent, 0, len(ids))
	for id := range ids {
		if agent, ok := r.agents[id]; ok {
			out = append(out, cloneAgent(agent))
		}
	}
	slices.SortFunc(out, func(a, b protocol.Agent) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func addIndex(index map[string]idSet, key, id string) {
	if key == "" {
		return
	}
	if index[key] == nil {
		index[key] = idSet{}
	}
	index[key][id] = struct{}{}
}

func dropIndex(index map[string]idSet, key, id string) {
	if set, ok := index[key]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(index, key)
		}
	}
}

// tokenize splits on non-alphanumeric runs and lowercases.
func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return fields
}

func cloneAgent(a protocol.Agent) protocol.Agent {
	out := a
	out.Capabilities = slices.Clone(a.Capabilities)
	out.Commands = slices.Clone(a.Commands)
	return out
}
