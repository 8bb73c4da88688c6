package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/aretw0/portalgate/pkg/ports"
	"github.com/aretw0/portalgate/pkg/wire"
)

const (
	// LookupPath is where a Responder is mounted; the token is appended escaped.
	LookupPath = "/peer/sessions/"

	// InstanceHeader carries the identity of the asking instance.
	InstanceHeader = "X-Portalgate-Instance"

	maxResponseBytes = 1 << 20
)

// Client implements ports.PeerClient over HTTP.
type Client struct {
	http    *http.Client
	codec   ports.HandleCodec
	self    string
	timeout time.Duration
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithTimeout sets the per-peer budget (default: domain.DefaultPeerTimeout).
// The caller's context deadline still applies when it is shorter.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(cl *Client) {
		cl.timeout = timeout
	}
}

// NewClient creates a peer client that rebuilds handles with codec.
func NewClient(self string, codec ports.HandleCodec, opts ...ClientOption) *Client {
	c := &Client{
		http:    &http.Client{},
		codec:   codec,
		self:    self,
		timeout: domain.DefaultPeerTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ports.PeerClient = (*Client)(nil)

// Lookup asks peer for token. A non-Found answer is (nil, nil).
func (c *Client) Lookup(ctx context.Context, peer domain.Peer, token string) (*domain.Record, error) {
	if peer.ID == c.self {
		return nil, fmt.Errorf("refusing to query self (%s)", peer.ID)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := peer.Address + LookupPath + url.PathEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", peer, err)
	}
	req.Header.Set(InstanceHeader, c.self)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrPeerUnavailable, peer, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, fmt.Errorf("%w: %s answered %s", domain.ErrPeerUnavailable, peer, resp.Status)
	}

	var body wire.LookupResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid answer from %s: %w", peer, err)
	}

	if body.Status != domain.Found {
		return nil, nil
	}
	if body.Record == nil {
		return nil, fmt.Errorf("invalid answer from %s: found without record", peer)
	}

	rec, err := body.Record.ToDomain(c.codec)
	if err != nil {
		return nil, fmt.Errorf("invalid record from %s: %w", peer, err)
	}
	return &rec, nil
}
