package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/aretw0/portalgate/pkg/domain"
)

const maxBodyBytes = 8 << 20

// Client is an authenticated connection to the portal. It implements domain.Handle.
type Client struct {
	baseURL  *url.URL
	username string
	ent      string

	http *http.Client
	jar  *jar

	mu         sync.RWMutex
	selections map[string]string
	loggedIn   bool
}

var _ domain.Handle = (*Client)(nil)

func newClient(base *url.URL, username, ent string, transport http.RoundTripper) (*Client, error) {
	cookies, err := newJar()
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	return &Client{
		baseURL:  base,
		username: username,
		ent:      ent,
		http:     &http.Client{Jar: cookies, Transport: transport},
		jar:      cookies,

		selections: make(map[string]string),
	}, nil
}

// URL returns the portal endpoint.
func (c *Client) URL() string {
	return c.baseURL.String()
}

// Username returns the account the client is logged in as.
func (c *Client) Username() string {
	return c.username
}

// Usable implements domain.Handle.
func (c *Client) Usable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loggedIn
}

// Select caches a per-entity selection (e.g. "period" -> "Trimestre 2").
// Selections are sent with every Fetch and survive Marshal.
func (c *Client) Select(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if value == "" {
		delete(c.selections, key)
		return
	}
	c.selections[key] = value
}

// Selection returns a cached selection.
func (c *Client) Selection(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.selections[key]
	return v, ok
}

func (c *Client) endpoint(resource string, query url.Values) string {
	u := c.baseURL.JoinPath("api", strings.Trim(resource, "/"))
	q := u.Query()
	c.mu.RLock()
	for k, v := range c.selections {
		q.Set(k, v)
	}
	c.mu.RUnlock()
	for k, vs := range query {
		q.Del(k)
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Fetch reads a resource (timetable, grades, ...) from the portal and returns its JSON as is.
// Query values override cached selections of the same name.
func (c *Client) Fetch(ctx context.Context, resource string, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, resource, query)
}

// Post sends an action (e.g. marking homework as done) and returns the portal's JSON answer.
func (c *Client) Post(ctx context.Context, resource string, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, resource, query)
}

func (c *Client) do(ctx context.Context, method, resource string, query url.Values) (json.RawMessage, error) {
	if !c.Usable() {
		return nil, domain.ErrHandleUnusable
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(resource, query), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("portal request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read portal response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.mu.Lock()
		c.loggedIn = false
		c.mu.Unlock()
		return nil, domain.ErrHandleUnusable
	case resp.StatusCode >= 400:
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if !json.Valid(body) {
		// Non-JSON payloads (e.g. an iCal URL) are wrapped as a JSON string.
		quoted, err := json.Marshal(string(body))
		if err != nil {
			return nil, err
		}
		return quoted, nil
	}
	return body, nil
}

// StatusError reports a portal-side failure.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("portal answered %d: %s", e.Code, e.Body)
}
