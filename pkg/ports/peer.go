package ports

import (
	"context"

	"github.com/aretw0/portalgate/pkg/domain"
)

// PeerClient asks one sibling instance whether it holds a token.
type PeerClient interface {
	// Lookup returns the peer's record when it reported Found, or (nil, nil)
	// when it answered with any other outcome. Transport failures and timeouts
	// are returned as errors; callers treat them like a miss.
	Lookup(ctx context.Context, peer domain.Peer, token string) (*domain.Record, error)
}

// Credentials are the login parameters accepted by the portal.
type Credentials struct {
	URL      string `json:"url"`
	Username string `json:"username"`
	Password string `json:"password"`
	// ENT names the optional identity provider in front of the portal.
	ENT string `json:"ent,omitempty"`
}

// Authenticator performs the portal login handshake.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (domain.Handle, error)
}
