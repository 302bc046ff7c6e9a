// Package directory is the Directory Client (spec.md §4.1): paged, paced,
// retrying reads of users, groups, and group members, plus the single
// POSIX-attribute patch write. It wraps the Google Admin SDK Directory API
// client (google.golang.org/api/admin/directory/v1), the same API surface
// hashicorp/terraform-provider-googleworkspace targets.
package directory

// Scope selects which users/groups an operation enumerates. Exactly one of
// Domain or Customer is honoured; callers prefer Domain when it is set,
// else Customer, defaulting to "my_customer" (spec.md §4.1 "Scope
// resolution").
type Scope struct {
	Domain   string
	Customer string
}

const defaultCustomer = "my_customer"

// domainOrCustomer returns the (domain, customer) pair to pass to the
// Directory API's users.list / groups.list calls: domain set and customer
// empty, or customer set (defaulted) and domain empty.
func (s Scope) domainOrCustomer() (domain, customer string) {
	if s.Domain != "" {
		return s.Domain, ""
	}
	customer = s.Customer
	if customer == "" {
		customer = defaultCustomer
	}
	return "", customer
}
