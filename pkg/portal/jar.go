package portal

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// jar is a cookiejar.Jar that also remembers every cookie as the portal set
// it, so a Client can be serialized and resumed on another instance.
type jar struct {
	*cookiejar.Jar

	mu  sync.Mutex
	set map[string]cookie
}

// cookie is the serialized form of a cookie set by the portal.
// Origin is the URL the Set-Cookie answer came from.
type cookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Origin  string    `json:"origin"`
	Domain  string    `json:"domain,omitempty"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitzero"`
	Secure  bool      `json:"secure,omitempty"`
}

func newJar() (*jar, error) {
	j, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &jar{Jar: j, set: make(map[string]cookie)}, nil
}

// SetCookies implements http.CookieJar.
func (j *jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.Jar.SetCookies(u, cookies)

	origin := url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}
	now := time.Now()

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, ck := range cookies {
		p := ck.Path
		if p == "" || p[0] != '/' {
			p = defaultPath(u.Path)
		}
		domain := strings.TrimPrefix(strings.ToLower(ck.Domain), ".")
		key := ck.Name + ";" + domain + ";" + p

		expires := ck.Expires
		if ck.MaxAge > 0 {
			expires = now.Add(time.Duration(ck.MaxAge) * time.Second)
		}
		if ck.MaxAge < 0 || (!expires.IsZero() && !expires.After(now)) {
			delete(j.set, key)
			continue
		}

		j.set[key] = cookie{
			Name:    ck.Name,
			Value:   ck.Value,
			Origin:  origin.String(),
			Domain:  domain,
			Path:    p,
			Expires: expires,
			Secure:  ck.Secure,
		}
	}
}

// snapshot returns the live cookies in a stable order.
func (j *jar) snapshot() []cookie {
	now := time.Now()

	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]cookie, 0, len(j.set))
	for _, ck := range j.set {
		if !ck.Expires.IsZero() && !ck.Expires.After(now) {
			continue
		}
		out = append(out, ck)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Name != out[b].Name {
			return out[a].Name < out[b].Name
		}
		return out[a].Path < out[b].Path
	})
	return out
}

// restore replays serialized cookies against the URL they were set from.
func (j *jar) restore(cookies []cookie) {
	for _, ck := range cookies {
		origin, err := url.Parse(ck.Origin)
		if err != nil || origin.Host == "" {
			continue
		}
		j.SetCookies(origin, []*http.Cookie{{
			Name:    ck.Name,
			Value:   ck.Value,
			Domain:  ck.Domain,
			Path:    ck.Path,
			Expires: ck.Expires,
			Secure:  ck.Secure,
		}})
	}
}

// defaultPath is the RFC 6265 default cookie path for a request path.
func defaultPath(p string) string {
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return path.Clean(p[:i])
}
