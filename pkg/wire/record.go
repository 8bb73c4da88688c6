package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/aretw0/portalgate/pkg/ports"
)

// ErrEmptyHandle is returned when a serialized record carries no handle bytes.
var ErrEmptyHandle = errors.New("record has no handle")

// Record is the transferable form of domain.Record.
type Record struct {
	// Handle is the output of domain.Handle.Marshal (base64 in JSON).
	Handle []byte `json:"handle"`

	// LastInteraction is the exporter's timestamp, never the receiver's.
	LastInteraction time.Time `json:"last_interaction"`
}

// FromDomain serializes a record through its handle's Marshal capability.
func FromDomain(rec domain.Record) (Record, error) {
	if rec.Handle == nil {
		return Record{}, ErrEmptyHandle
	}
	data, err := rec.Handle.Marshal()
	if err != nil {
		return Record{}, fmt.Errorf("failed to marshal handle: %w", err)
	}
	return Record{Handle: data, LastInteraction: rec.LastInteraction}, nil
}

// ToDomain rebuilds an independent record using codec.
func (r Record) ToDomain(codec ports.HandleCodec) (domain.Record, error) {
	if len(r.Handle) == 0 {
		return domain.Record{}, ErrEmptyHandle
	}
	h, err := codec.Unmarshal(r.Handle)
	if err != nil {
		return domain.Record{}, fmt.Errorf("failed to unmarshal handle: %w", err)
	}
	return domain.Record{Handle: h, LastInteraction: r.LastInteraction}, nil
}

// Encode serializes a record to JSON.
func Encode(rec domain.Record) ([]byte, error) {
	w, err := FromDomain(rec)
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// Decode parses JSON produced by Encode.
func Decode(data []byte, codec ports.HandleCodec) (domain.Record, error) {
	var w Record
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return w.ToDomain(codec)
}

// LookupResponse is the body a peer answers with.
// Record is only present when Status is Found.
type LookupResponse struct {
	Status domain.Outcome `json:"status"`
	Record *Record        `json:"record,omitempty"`
}
