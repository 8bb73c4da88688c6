package peer

import (
	"fmt"
	"strings"

	"github.com/aretw0/portalgate/pkg/domain"
)

// Directory is the static list of sibling instances, in query order.
type Directory struct {
	self  string
	peers []domain.Peer
}

// NewDirectory builds a directory for the instance identified by self.
// Entries carrying our own identity are dropped so an instance never queries itself.
func NewDirectory(self string, peers []domain.Peer) (*Directory, error) {
	d := &Directory{self: self}
	seen := make(map[string]bool, len(peers))
	for i, p := range peers {
		if p.ID == "" || p.Address == "" {
			return nil, fmt.Errorf("peer #%d: id and address are required", i)
		}
		if p.ID == self {
			continue
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("peer %q listed twice", p.ID)
		}
		seen[p.ID] = true
		p.Address = strings.TrimRight(p.Address, "/")
		d.peers = append(d.peers, p)
	}
	return d, nil
}

// Self returns this instance's identity.
func (d *Directory) Self() string {
	return d.self
}

// Peers returns a copy of the sibling list in configured order.
func (d *Directory) Peers() []domain.Peer {
	return append([]domain.Peer(nil), d.peers...)
}

// Len returns the number of siblings.
func (d *Directory) Len() int {
	return len(d.peers)
}
