// Package auth defines API key identity for the admin surface.
package auth

import "context"

// APIKeyInfo is the identity behind a presented API key. Keys are stored
// only as peppered HMAC-SHA256 hashes; Scopes gate route groups, with "*"
// granting everything.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// Repository resolves API keys by their hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
