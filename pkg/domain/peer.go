package domain

import "fmt"

// Peer describes a sibling instance of the service.
type Peer struct {
	// Address is the base URL of the instance (e.g. "http://10.0.0.2:8080").
	Address string `json:"address" yaml:"address" mapstructure:"address"`

	// ID is the instance identity, compared against our own to skip self.
	ID string `json:"id" yaml:"id" mapstructure:"id"`
}

func (p Peer) String() string {
	return fmt.Sprintf("%s(%s)", p.ID, p.Address)
}

// Origin tells the resolver who asked for a token.
type Origin int

const (
	// OriginClient is an end-user request. Local misses fall back to peers.
	OriginClient Origin = iota
	// OriginPeer is a sibling instance asking. Never fans out again.
	OriginPeer
)

func (o Origin) String() string {
	if o == OriginPeer {
		return "peer"
	}
	return "client"
}
