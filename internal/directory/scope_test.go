package directory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScope_PrefersDomain(t *testing.T) {
	domain, customer := Scope{Domain: "example.com", Customer: "C123"}.domainOrCustomer()
	require.Equal(t, "example.com", domain)
	require.Equal(t, "", customer)
}

func TestScope_FallsBackToCustomer(t *testing.T) {
	domain, customer := Scope{Customer: "C123"}.domainOrCustomer()
	require.Equal(t, "", domain)
	require.Equal(t, "C123", customer)
}

func TestScope_DefaultsCustomer(t *testing.T) {
	domain, customer := Scope{}.domainOrCustomer()
	require.Equal(t, "", domain)
	require.Equal(t, defaultCustomer, customer)
}

func TestUser_PrimaryPosixAccount_PrefersPrimaryFlag(t *testing.T) {
	uid1, uid2 := int64(1), int64(2)
	u := User{PosixAccounts: []PosixAccount{
		{Username: "first", UID: &uid1},
		{Username: "second", UID: &uid2, Primary: true},
	}}
	acct, ok := u.PrimaryPosixAccount()
	require.True(t, ok)
	require.Equal(t, "second", acct.Username)
}

func TestUser_PrimaryPosixAccount_FallsBackToFirst(t *testing.T) {
	uid1 := int64(1)
	u := User{PosixAccounts: []PosixAccount{{Username: "first", UID: &uid1}}}
	acct, ok := u.PrimaryPosixAccount()
	require.True(t, ok)
	require.Equal(t, "first", acct.Username)
}

func TestUser_PrimaryPosixAccount_EmptyIsFalse(t *testing.T) {
	_, ok := User{}.PrimaryPosixAccount()
	require.False(t, ok)
}
