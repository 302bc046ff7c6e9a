package directory

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	admin "google.golang.org/api/admin/directory/v1"
	"google.golang.org/api/option"
)

// Scopes required by this client (spec.md §6): read-write for
// provisioning's patch_user_posix, read-only for the Reconciler's listing
// operations. Both are requested together — the narrower read-only grant
// is a deployment-time choice, not something this package enforces.
var Scopes = []string{
	admin.AdminDirectoryUserScope,
	admin.AdminDirectoryGroupReadonlyScope,
	admin.AdminDirectoryGroupMemberReadonlyScope,
}

// CredentialSource resolves the raw service-identity key material used to
// build a domain-wide-delegation credential. Loading that key from disk, a
// secret manager, or any other store is out of scope for this package
// (spec.md §1, §6 "Secret provider") — callers supply an implementation.
type CredentialSource interface {
	// ServiceAccountKey returns the JSON key bytes for the delegated
	// service identity.
	ServiceAccountKey(ctx context.Context) ([]byte, error)
}

// StaticCredentialSource is a CredentialSource backed by key material
// already resident in memory (e.g. read from a mounted file by the
// caller). It exists so tests and simple deployments don't need a real
// secret-store integration to exercise this package.
type StaticCredentialSource []byte

func (s StaticCredentialSource) ServiceAccountKey(context.Context) ([]byte, error) {
	return []byte(s), nil
}

// FileCredentialSource is a CredentialSource backed by a service-account
// JSON key file on disk — the minimal "accept ... a JSON key path"
// default spec.md §1/§6 calls for, with no secret-manager integration.
type FileCredentialSource struct {
	Path string
}

// NewFileCredentialSource returns a CredentialSource that reads the
// service-account key from path on every call (spec.md §6 "Secret
// provider ... returns an opaque credential payload").
func NewFileCredentialSource(path string) FileCredentialSource {
	return FileCredentialSource{Path: path}
}

func (s FileCredentialSource) ServiceAccountKey(context.Context) ([]byte, error) {
	key, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("directory: read service account key %s: %w", s.Path, err)
	}
	return key, nil
}

// NewTokenSource builds an oauth2.TokenSource impersonating subject (the
// admin user the delegated service identity acts as) from the key material
// src returns, scoped to Scopes (spec.md §6 "Domain-wide delegation").
func NewTokenSource(ctx context.Context, src CredentialSource, subject string) (oauth2.TokenSource, error) {
	key, err := src.ServiceAccountKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("directory: load service account key: %w", err)
	}

	cfg, err := google.JWTConfigFromJSON(key, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("directory: parse service account key: %w", err)
	}
	cfg.Subject = subject

	return cfg.TokenSource(ctx), nil
}

// NewService constructs the underlying Admin SDK Directory service from a
// token source. Kept separate from NewTokenSource so callers that already
// have a token source (e.g. from a different credential flow) can skip
// NewTokenSource entirely.
func NewService(ctx context.Context, ts oauth2.TokenSource) (*admin.Service, error) {
	svc, err := admin.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("directory: build admin directory service: %w", err)
	}
	return svc, nil
}
