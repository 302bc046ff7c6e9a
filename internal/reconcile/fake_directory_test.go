package reconcile

import (
	"context"

	"github.com/fluidnumerics/idsync/internal/directory"
)

// fakeDirectory is an in-memory DirectoryClient for tests — no network,
// no credentials, deterministic iteration order.
type fakeDirectory struct {
	users       []directory.User
	groups      []directory.Group
	members     map[string][]directory.Member // keyed by group email or id
	patches     map[string]directory.PosixAccount
	failPatches map[string]bool
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		members:     map[string][]directory.Member{},
		patches:     map[string]directory.PosixAccount{},
		failPatches: map[string]bool{},
	}
}

func (f *fakeDirectory) ListUsers(_ context.Context, _ directory.Scope, fn func(directory.User) error) error {
	for _, u := range f.users {
		if err := fn(u); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeDirectory) ListGroups(_ context.Context, _ directory.Scope, fn func(directory.Group) error) error {
	for _, g := range f.groups {
		if err := fn(g); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeDirectory) ListGroupMembers(_ context.Context, groupEmail string, fn func(directory.Member) error) error {
	for _, m := range f.members[groupEmail] {
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeDirectory) PatchUserPosix(_ context.Context, userID string, acct directory.PosixAccount) error {
	if f.failPatches[userID] {
		return directory.ErrVanished
	}
	f.patches[userID] = acct
	return nil
}
