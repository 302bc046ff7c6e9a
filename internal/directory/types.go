package directory

// PosixAccount is one POSIX attribute set attached to a directory user
// (spec.md §3 "Directory User", GLOSSARY "POSIX attribute set").
type PosixAccount struct {
	Primary       bool
	Username      string
	UID           *int64
	GID           *int64
	HomeDirectory string
	Shell         string
	Gecos         string
}

// User is the normalised projection list_users yields (spec.md §4.1):
// id, primaryEmail, display name, suspended/deleted flags, posixAccounts,
// and an opaque change token.
type User struct {
	ID            string
	PrimaryEmail  string
	Name          string
	Suspended     bool
	Deleted       bool
	PosixAccounts []PosixAccount
	Etag          string
}

// PrimaryPosixAccount returns the POSIX attribute set with Primary=true,
// else the first one, else false if none exist (spec.md §4.4 step 1
// "Pick the POSIX attribute set").
func (u User) PrimaryPosixAccount() (PosixAccount, bool) {
	if len(u.PosixAccounts) == 0 {
		return PosixAccount{}, false
	}
	for _, a := range u.PosixAccounts {
		if a.Primary {
			return a, true
		}
	}
	return u.PosixAccounts[0], true
}

// Group is the normalised projection list_groups yields (spec.md §4.1):
// id, email, name, change token.
type Group struct {
	ID    string
	Email string
	Name  string
	Etag  string
}

// Member is one entry yielded by list_group_members (spec.md §4.1):
// (email, type, status).
type Member struct {
	Email  string
	Type   string
	Status string
}
