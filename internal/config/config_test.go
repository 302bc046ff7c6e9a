package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults_MatchSpec(t *testing.T) {
	c := Defaults()
	require.Equal(t, int64(20000), c.StartUID)
	require.Equal(t, int64(20000), c.StartGID)
	require.True(t, c.GIDEqualsUID)
	require.Equal(t, "/bin/bash", c.DefaultShell)
	require.Equal(t, "/home/{username}", c.HomeTemplate)
	require.Equal(t, 5.0, c.RPS)
	require.Equal(t, 5, c.MaxRetries)
	require.Equal(t, int64(30000), c.GroupStartGID)
	require.Equal(t, int64(39999), c.GroupEndGID)
	require.Equal(t, "/var/lib/extrausers", c.Outdir)
	require.NoError(t, c.Validate())
}

func TestValidate_RejectsBadGroupRange(t *testing.T) {
	c := Defaults()
	c.GroupSync = true
	c.GroupStartGID = 100
	c.GroupEndGID = 100
	require.Error(t, c.Validate())
}

func TestValidate_RejectsNonPositiveRPS(t *testing.T) {
	c := Defaults()
	c.RPS = 0
	require.Error(t, c.Validate())
}

func TestScope_PrefersDomainOverCustomer(t *testing.T) {
	c := Defaults()
	c.Domain = "example.com"
	c.Customer = "C123"
	require.Equal(t, "example.com", c.Scope().Domain)
}
