package engine_test

import (
	"testing"

	"github.com/lunai408/local-agent-factory/core"
	"github.com/lunai408/local-agent-factory/engine"
)

func researchTeam() *engine.TeamConfig {
	return &engine.TeamConfig{
		Specialists: []core.Profile{
			{
				AgentName: "finance",
				AgentKind: core.AgentSpecialist,
				AgentCaps: core.Capabilities{Topics: []string{"budget", "invoice", "spending"}},
			},
			{
				AgentName: "travel",
				AgentKind: core.AgentSpecialist,
				AgentCaps: core.Capabilities{Topics: []string{"flight", "hotel", "itinerary"}},
			},
		},
		Coordinator: core.Profile{AgentName: "lead", AgentKind: core.AgentCoordinator},
	}
}

func TestRouteTurn_SingleSpecialistWins(t *testing.T) {
	decision := engine.RouteTurn("Can you check my Budget for March?", researchTeam())
	if decision.Agent.AgentName != "finance" {
		t.Errorf("routed to %s", decision.Agent.AgentName)
	}
	if len(decision.MatchedTopics) != 1 || decision.MatchedTopics[0] != "budget" {
		t.Errorf("matched = %v", decision.MatchedTopics)
	}
}

func TestRouteTurn_NoMatchGoesToCoordinator(t *testing.T) {
	decision := engine.RouteTurn("tell me a joke", researchTeam())
	if decision.Agent.AgentName != "lead" || decision.Agent.Kind() != core.AgentCoordinator {
		t.Errorf("routed to %s (%s)", decision.Agent.AgentName, decision.Agent.Kind())
	}
}

func TestRouteTurn_MultipleMatchesGoToCoordinator(t *testing.T) {
	decision := engine.RouteTurn("find a hotel that fits my budget", researchTeam())
	if decision.Agent.AgentName != "lead" {
		t.Errorf("routed to %s", decision.Agent.AgentName)
	}
	if len(decision.MatchedTopics) != 2 {
		t.Errorf("matched = %v", decision.MatchedTopics)
	}
}

func TestRouteTurn_NilTeamIsSingleAgent(t *testing.T) {
	decision := engine.RouteTurn("anything", nil)
	if decision.Agent.Kind() != core.AgentSingle {
		t.Errorf("kind = %s", decision.Agent.Kind())
	}
}

func TestRouteTurn_IsPure(t *testing.T) {
	team := researchTeam()
	first := engine.RouteTurn("flight to Lisbon", team)
	second := engine.RouteTurn("flight to Lisbon", team)
	if first.Agent.AgentName != second.Agent.AgentName {
		t.Errorf("routing is not deterministic: %s vs %s",
			first.Agent.AgentName, second.Agent.AgentName)
	}
}
