package entities

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAgentDefinitionByMode(t *testing.T) {
	a := &Agent{Draft: Definition{Model: "draft"}}

	def, err := a.Definition(VersionDraft)
	require.NoError(t, err)
	require.Equal(t, "draft", def.Model)

	_, err = a.Definition(VersionDeployed)
	require.ErrorIs(t, err, ErrAgentNotDeployed)

	a.Deployed = &Definition{Model: "prod"}
	def, err = a.Definition(VersionDeployed)
	require.NoError(t, err)
	require.Equal(t, "prod", def.Model)
}

func TestPrincipalCanAccessTeam(t *testing.T) {
	var anon *Principal
	require.False(t, anon.CanAccessTeam("t1"))
	require.True(t, (&Principal{TeamID: "t1"}).CanAccessTeam("t1"))
	require.False(t, (&Principal{TeamID: "t1"}).CanAccessTeam("t2"))
	require.True(t, (&Principal{Admin: true}).CanAccessTeam("t2"))
}

func TestSessionStatusTerminal(t *testing.T) {
	require.False(t, SessionPending.Terminal())
	require.False(t, SessionRunning.Terminal())
	require.True(t, SessionCompleted.Terminal())
	require.True(t, SessionFailed.Terminal())
	require.True(t, SessionCancelled.Terminal())
	require.True(t, TerminalEvent(EventSessionFailed))
	require.False(t, TerminalEvent(EventToken))
}

func TestHashAPIKey(t *testing.T) {
	h := HashAPIKey("agentrt_secret")
	require.Len(t, h, 64)
	require.Equal(t, h, HashAPIKey("agentrt_secret"))
	require.NotEqual(t, h, HashAPIKey("agentrt_other"))

	require.Equal(t, "agentrt_", KeyPrefix("agentrt_secret"))
	require.Equal(t, "short", KeyPrefix("short"))
}
