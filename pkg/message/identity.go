package message

import "context"

// Identity describes the local connector as it presents itself to peers.
type Identity struct {
	ConnectorID  string
	SenderAgent  string
	ModelVersion string
	Token        string
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the connector identity from ctx
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
