package ports

import "github.com/aretw0/portalgate/pkg/domain"

// HandleCodec reconstructs a Handle from the output of Handle.Marshal.
// It is supplied by the login collaborator, never by the cache itself.
type HandleCodec interface {
	Unmarshal(data []byte) (domain.Handle, error)
}

// HandleCodecFunc adapts a function to HandleCodec.
type HandleCodecFunc func(data []byte) (domain.Handle, error)

// Unmarshal calls f(data).
func (f HandleCodecFunc) Unmarshal(data []byte) (domain.Handle, error) {
	return f(data)
}
