package scope

import (
	"context"
	"fmt"

	id "khata/pkg/domain"
	strutil "khata/pkg/platform/strings"
	"khata/pkg/requestcontext"
)

// DirectoryStore is the slice of the user directory the resolver reads.
type DirectoryStore interface {
	ListAgentsByManager(ctx context.Context, managerID id.UserID) ([]id.UserID, error)
}

// DirectoryResolver derives scope from the reporting lines in the user
// directory.
type DirectoryResolver struct {
	directory DirectoryStore
}

// NewDirectoryResolver creates a resolver backed by the user directory.
func NewDirectoryResolver(directory DirectoryStore) *DirectoryResolver {
	return &DirectoryResolver{directory: directory}
}

// Resolve maps the caller's role onto a scope. Clients hold accounts but
// never collect, so they resolve to an empty scope; the role gate rejects
// them before scope is ever consulted.
func (r *DirectoryResolver) Resolve(ctx context.Context, caller requestcontext.Caller) (Scope, error) {
	switch caller.Role {
	case id.RoleAdmin:
		return Scope{Unbounded: true}, nil
	case id.RoleAgent:
		return Scope{AgentIDs: []id.UserID{caller.UserID}}, nil
	case id.RoleManager:
		agents, err := r.directory.ListAgentsByManager(ctx, caller.UserID)
		if err != nil {
			return Scope{}, fmt.Errorf("resolving manager scope: %w", err)
		}
		return Scope{AgentIDs: strutil.Dedupe(agents)}, nil
	default:
		return Scope{}, nil
	}
}
