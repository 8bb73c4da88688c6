package portal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aretw0/portalgate/internal/logging"
	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/aretw0/portalgate/pkg/ports"
)

// ErrMissingField is returned when mandatory credentials are absent.
var ErrMissingField = errors.New("missing field")

// Authenticator logs into the portal with a form post on {url}/login.
// It implements ports.Authenticator.
type Authenticator struct {
	// Transport is used by created clients (default: http.DefaultTransport).
	Transport http.RoundTripper
	// ENTs lists the accepted identity providers. Empty accepts any.
	ENTs   []string
	Logger *slog.Logger
}

var _ ports.Authenticator = (*Authenticator)(nil)

type loginAnswer struct {
	LoggedIn bool   `json:"logged_in"`
	Error    string `json:"error,omitempty"`
	// Period is the grading period the portal selects by default.
	Period string `json:"period,omitempty"`
}

// Login implements ports.Authenticator.
func (a *Authenticator) Login(ctx context.Context, creds ports.Credentials) (domain.Handle, error) {
	logger := a.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	for name, v := range map[string]string{"url": creds.URL, "username": creds.Username, "password": creds.Password} {
		if v == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, name)
		}
	}
	if creds.ENT != "" && len(a.ENTs) > 0 && !contains(a.ENTs, creds.ENT) {
		return nil, fmt.Errorf("%w: unknown ENT %q", domain.ErrLoginFailed, creds.ENT)
	}

	base, err := url.Parse(strings.TrimRight(creds.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid portal url %q", domain.ErrLoginFailed, creds.URL)
	}

	c, err := newClient(base, creds.Username, creds.ENT, a.Transport)
	if err != nil {
		return nil, err
	}

	form := url.Values{
		"username": {creds.Username},
		"password": {creds.Password},
	}
	if creds.ENT != "" {
		form.Set("ent", creds.ENT)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base.JoinPath("login").String(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrLoginFailed, err)
	}
	defer resp.Body.Close()

	var answer loginAnswer
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&answer); err != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("%w: unreadable login answer: %v", domain.ErrLoginFailed, err)
	}

	if resp.StatusCode != http.StatusOK || !answer.LoggedIn {
		reason := answer.Error
		if reason == "" {
			reason = resp.Status
		}
		logger.Info("Portal login rejected", "url", base.String(), "reason", reason)
		return nil, fmt.Errorf("%w: %s", domain.ErrLoginFailed, reason)
	}

	c.loggedIn = true
	if answer.Period != "" {
		c.selections["period"] = answer.Period
	}
	logger.Debug("Portal login succeeded", "url", base.String())
	return c, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
