package portal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/aretw0/portalgate/pkg/ports"
)

// snapshot is the serialized form of a Client.
type snapshot struct {
	URL        string            `json:"url"`
	Username   string            `json:"username"`
	ENT        string            `json:"ent,omitempty"`
	Cookies    []cookie          `json:"cookies"`
	Selections map[string]string `json:"selections,omitempty"`
	LoggedIn   bool              `json:"logged_in"`
}

// Marshal implements domain.Handle.
func (c *Client) Marshal() ([]byte, error) {
	snap := snapshot{
		URL:      c.baseURL.String(),
		Username: c.username,
		ENT:      c.ent,
		Cookies:  c.jar.snapshot(),
	}

	c.mu.RLock()
	snap.Selections = make(map[string]string, len(c.selections))
	for k, v := range c.selections {
		snap.Selections[k] = v
	}
	snap.LoggedIn = c.loggedIn
	c.mu.RUnlock()

	return json.Marshal(snap)
}

// Codec rebuilds Clients from Marshal output. It implements ports.HandleCodec.
type Codec struct {
	// Transport is used by rebuilt clients (default: http.DefaultTransport).
	Transport http.RoundTripper
}

var _ ports.HandleCodec = Codec{}

// Unmarshal implements ports.HandleCodec.
func (cd Codec) Unmarshal(data []byte) (domain.Handle, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("invalid portal snapshot: %w", err)
	}
	base, err := url.Parse(snap.URL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid portal url %q", snap.URL)
	}

	c, err := newClient(base, snap.Username, snap.ENT, cd.Transport)
	if err != nil {
		return nil, err
	}

	c.jar.restore(snap.Cookies)

	for k, v := range snap.Selections {
		c.selections[k] = v
	}
	c.loggedIn = snap.LoggedIn
	return c, nil
}
