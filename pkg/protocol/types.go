package protocol

// AgentStatus is the coordinator-reported availability of an agent.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
)

// Capability describes one thing an agent can do.
type Capability struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Command is a trigger an agent responds to directly.
type Command struct {
	Trigger     string `json:"trigger"`
	Argument    string `json:"argument,omitempty"`
	Description string `json:"description,omitempty"`
}

// Agent is the coordinator's record of a worker.
type Agent struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Status       AgentStatus  `json:"status"`
	Capabilities []Capability `json:"capabilities,omitempty"`
	Commands     []Command    `json:"commands,omitempty"`
	Room         string       `json:"room,omitempty"`
	AgentType    string       `json:"agent_type,omitempty"`
}

// Room is coordinator room metadata, delivered at auth time and by
// list_rooms responses.
type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	IsPublic    bool   `json:"is_public,omitempty"`
	Description string `json:"description,omitempty"`
}

// ClientType is the role a client declares during authentication. The
// coordinator treats it as an opaque string; these are the known values.
type ClientType string

const (
	ClientUser        ClientType = "user"
	ClientAgent       ClientType = "agent"
	ClientCoordinator ClientType = "coordinator"
)
