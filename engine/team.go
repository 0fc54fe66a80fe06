package engine

import (
	"strings"

	"github.com/lunai408/local-agent-factory/core"
)

// TeamConfig describes a multi-agent team: specialists claim turns by topic
// keywords, the coordinator takes everything else and merges overlapping
// claims.
type TeamConfig struct {
	Specialists []core.Profile
	Coordinator core.Profile
}

// RouteDecision is the outcome of routing one turn.
type RouteDecision struct {
	Agent core.Profile

	// MatchedTopics lists the specialist topics found in the turn, in
	// specialist order. Empty when the turn carried no specialist topic.
	MatchedTopics []string
}

// RouteTurn decides which agent handles a turn. It is a pure function of the
// turn content and the team configuration, evaluated once before context
// assembly: exactly one specialist whose topics appear in the content wins
// the turn; zero or several matches fall through to the coordinator. A nil
// team yields a single agent with no profile overrides.
func RouteTurn(content string, team *TeamConfig) RouteDecision {
	if team == nil || len(team.Specialists) == 0 {
		return RouteDecision{Agent: core.Profile{AgentKind: core.AgentSingle}}
	}

	lowered := strings.ToLower(content)
	var matched []core.Profile
	var topics []string
	for _, specialist := range team.Specialists {
		hit := false
		for _, topic := range specialist.AgentCaps.Topics {
			if topic != "" && strings.Contains(lowered, topic) {
				topics = append(topics, topic)
				hit = true
			}
		}
		if hit {
			matched = append(matched, specialist)
		}
	}

	if len(matched) == 1 {
		return RouteDecision{Agent: matched[0], MatchedTopics: topics}
	}
	return RouteDecision{Agent: team.Coordinator, MatchedTopics: topics}
}
