package core

// AgentKind is the closed set of agent variants. Dispatch logic switches on
// the kind instead of duck-typing arbitrary handler objects.
type AgentKind int

const (
	// AgentSingle handles every turn by itself.
	AgentSingle AgentKind = iota

	// AgentSpecialist handles turns routed to it within a team.
	AgentSpecialist

	// AgentCoordinator receives turns no specialist claims and merges
	// multi-specialist results.
	AgentCoordinator
)

func (k AgentKind) String() string {
	switch k {
	case AgentSingle:
		return "single"
	case AgentSpecialist:
		return "specialist"
	case AgentCoordinator:
		return "coordinator"
	default:
		return "unknown"
	}
}

// Capabilities declares what an agent may use when handling a turn.
type Capabilities struct {
	// SystemPrompt is the agent's instruction block.
	SystemPrompt string

	// Model overrides the configured default model when non-empty.
	Model string

	// MaxTokens caps the response size. Zero means the engine default.
	MaxTokens int64

	// Tools restricts which registered tools this agent may invoke.
	// Empty means no restriction: every registered tool is offered.
	Tools []string

	// Topics are lowercase keywords used for team routing. Only
	// meaningful for specialists.
	Topics []string
}

// Agent is the capability interface every dispatchable agent implements.
type Agent interface {
	Name() string
	Kind() AgentKind
	Capabilities() Capabilities
}

// Profile is the declarative Agent implementation used by team
// configuration. It is a plain value; the engine executes it.
type Profile struct {
	AgentName string
	AgentKind AgentKind
	AgentCaps Capabilities
}

func (p Profile) Name() string               { return p.AgentName }
func (p Profile) Kind() AgentKind            { return p.AgentKind }
func (p Profile) Capabilities() Capabilities { return p.AgentCaps }
