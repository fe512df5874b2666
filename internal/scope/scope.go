// Package scope resolves which agents' books a caller may act on. Admins see
// everything, agents see themselves, managers see the agents they supervise.
// The resolution is read on every deposit attempt, so a Redis decorator
// caches it per caller.
package scope

import (
	"context"

	id "khata/pkg/domain"
	"khata/pkg/requestcontext"
)

// Scope is the set of collecting agents a caller may act for.
type Scope struct {
	// Unbounded marks admin callers; they cover every agent.
	Unbounded bool        `json:"unbounded"`
	AgentIDs  []id.UserID `json:"agent_ids,omitempty"`
}

// Covers reports whether an account collected by the given agent falls
// inside this scope.
func (s Scope) Covers(agentID id.UserID) bool {
	if s.Unbounded {
		return true
	}
	for _, allowed := range s.AgentIDs {
		if allowed == agentID {
			return true
		}
	}
	return false
}

// Resolver computes a caller's scope.
type Resolver interface {
	Resolve(ctx context.Context, caller requestcontext.Caller) (Scope, error)
}
