package ws

import (
	"fmt"
	"sync"
	"testing"

	"github.com/gprojets/gprojets/types"
	"github.com/stretchr/testify/assert"
)

func TestGroupsForRole(t *testing.T) {
	assert.Equal(t, []string{"admin", AdminsGroup}, GroupsForRole(types.RoleAdmin))
	assert.Equal(t, []string{"chef"}, GroupsForRole(types.RoleChef))
	assert.Equal(t, []string{"membre"}, GroupsForRole(types.RoleMembre))
	assert.Nil(t, GroupsForRole(types.RoleUnknown))

	// roles come from token claims, upper-case spellings must still map to
	// the admins group
	assert.Equal(t, []string{"admin", AdminsGroup}, GroupsForRole(types.ParseRole("ADMIN")))
	assert.Equal(t, []string{"membre"}, GroupsForRole(types.ParseRole("Member")))
	assert.Nil(t, GroupsForRole(types.ParseRole("  ")))

	// unrecognized roles still mirror into a group of their own name
	assert.Equal(t, []string{"auditor"}, GroupsForRole(types.ParseRole("Auditor")))
}

func TestGroupsJoinLeave(t *testing.T) {
	g := NewGroups()

	g.Join("c1", "membre")
	g.Join("c1", "membre") // idempotent
	g.Join("c2", "membre")
	g.Join("c2", "Admins")

	assert.True(t, g.IsMember("c1", "membre"))
	assert.True(t, g.IsMember("c2", "membre"))
	assert.True(t, g.IsMember("c2", "Admins"))
	assert.False(t, g.IsMember("c1", "Admins"))
	assert.Len(t, g.Members("membre"), 2)

	// leaving a group never joined is a no-op
	g.Leave("c1", "Admins")
	g.Leave("nope", "membre")
	assert.Len(t, g.Members("membre"), 2)

	g.Leave("c1", "membre")
	assert.False(t, g.IsMember("c1", "membre"))
	assert.Len(t, g.Members("membre"), 1)

	g.LeaveAll("c2")
	assert.False(t, g.IsMember("c2", "membre"))
	assert.False(t, g.IsMember("c2", "Admins"))
	assert.Empty(t, g.Members("membre"))
	assert.Empty(t, g.Members("Admins"))
}

func TestGroupsConcurrent(t *testing.T) {
	g := NewGroups()
	wg := sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			g.Join(id, "membre")
			g.IsMember(id, "membre")
			g.Members("membre")
			if i%2 == 0 {
				g.LeaveAll(id)
			}
		}(i)
	}
	wg.Wait()
	assert.Len(t, g.Members("membre"), 25)
}
