package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmpty(t *testing.T) {
	l := New()
	assert.True(t, l.Empty())

	// Log-only entries keep the ledger "empty" for reporting purposes.
	l.UnconfiguredTeam("legacy", false)
	l.UnconfiguredTeamGrant("infra", "legacy", "admin")
	l.MemberWithoutTeam("drifter", false)
	assert.True(t, l.Empty())

	l.AddTeamMember("docs", "alice")
	assert.False(t, l.Empty())
}

func TestEmpty_RemovedMemberCounts(t *testing.T) {
	l := New()
	l.MemberWithoutTeam("drifter", true)
	assert.False(t, l.Empty())
	assert.Equal(t, []string{"drifter"}, l.RemovedMembers)
}

func TestTeamEntriesAccumulate(t *testing.T) {
	l := New()
	l.CreateTeam("platform")
	l.EditTeamSettings("platform", "privacy", "description")
	l.AddTeamMember("platform", "alice")
	l.AddTeamMember("platform", "bob")
	l.ChangeTeamMemberRole("platform", "carol")
	l.PendingTeamMember("platform", "dave")
	l.RemoveTeamMember("platform", "eve")

	tc := l.Teams["platform"]
	assert.True(t, tc.Created)
	assert.Equal(t, []string{"privacy", "description"}, tc.ChangedSettings)
	assert.Equal(t, []string{"alice", "bob"}, tc.AddedMembers)
	assert.Equal(t, []string{"carol"}, tc.ChangedRoles)
	assert.Equal(t, []string{"dave"}, tc.PendingMembers)
	assert.Equal(t, []string{"eve"}, tc.RemovedMembers)
}

func TestRepoEntriesAccumulate(t *testing.T) {
	l := New()
	l.ChangeRepoTeamPermission("infra", "platform", "push")
	l.RemoveTeamFromRepo("infra", "retired")
	l.UnconfiguredTeamGrant("infra", "legacy", "admin")
	l.RemoveCollaborator("infra", "mallory")

	rc := l.Repos["infra"]
	assert.Equal(t, []string{"platform: push"}, rc.ChangedTeamPermissions)
	assert.Equal(t, []string{"retired"}, rc.RemovedTeams)
	assert.Equal(t, []string{"legacy: admin"}, rc.UnconfiguredTeamGrants)
	assert.Equal(t, []string{"mallory"}, rc.RemovedCollaborators)
}
