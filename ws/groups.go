package ws

import (
	"sync"

	"github.com/gprojets/gprojets/types"
)

// AdminsGroup is the privileged group: the sole recipient of deadline
// notifications. Only connections with the admin role are ever members.
const AdminsGroup = "Admins"

// GroupsForRole is the deterministic role-to-groups mapping. Every resolved
// role joins the group literally named after its lower-cased role string, so
// future roles get a broadcast scope without code changes; the admin role
// additionally joins AdminsGroup. An unknown role joins nothing.
func GroupsForRole(role types.Role) []string {
	if role == types.RoleUnknown {
		return nil
	}
	groups := []string{role.String()}
	if role.IsAdmin() {
		groups = append(groups, AdminsGroup)
	}
	return groups
}

// Groups tracks group memberships of connections. It is an explicit owned
// registry guarded by its own lock, so it can be exercised without a real
// transport.
type Groups struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
}

func NewGroups() *Groups {
	return &Groups{members: make(map[string]map[string]struct{})}
}

// Join adds the connection to the group, creating the group on first join.
// Joining twice is a no-op.
func (g *Groups) Join(connectionId, group string) {
	if connectionId == "" || group == "" {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	set, ok := g.members[group]
	if !ok {
		set = make(map[string]struct{})
		g.members[group] = set
	}
	set[connectionId] = struct{}{}
}

// Leave removes the connection from the group. Leaving a group the
// connection never joined is a no-op, not an error.
func (g *Groups) Leave(connectionId, group string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leaveLocked(connectionId, group)
}

func (g *Groups) leaveLocked(connectionId, group string) {
	set, ok := g.members[group]
	if !ok {
		return
	}
	delete(set, connectionId)
	if len(set) == 0 {
		delete(g.members, group)
	}
}

// LeaveAll reverses every membership the connection holds. Idempotent.
func (g *Groups) LeaveAll(connectionId string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for group := range g.members {
		g.leaveLocked(connectionId, group)
	}
}

// Members returns the connection ids currently in the group. The order is
// unspecified.
func (g *Groups) Members(group string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	set := g.members[group]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// IsMember reports whether the connection is in the group.
func (g *Groups) IsMember(connectionId, group string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[group][connectionId]
	return ok
}
