package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aretw0/portalgate/internal/logging"
	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/aretw0/portalgate/pkg/peer"
	"github.com/aretw0/portalgate/pkg/portal"
	"github.com/aretw0/portalgate/pkg/ports"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
)

// StatusInvalidToken tells API callers to log in again (expired or unknown token).
const StatusInvalidToken = 498

// Sessions defines the part of the session manager the API uses.
type Sessions interface {
	GenerateToken(ctx context.Context, handle domain.Handle) (string, error)
	Resolve(ctx context.Context, token string) (domain.Outcome, domain.Handle, error)
	Lookup(ctx context.Context, token string, origin domain.Origin) (domain.Outcome, domain.Record, error)
}

// Fetcher is implemented by handles that can read and act on portal resources.
type Fetcher interface {
	Fetch(ctx context.Context, resource string, query url.Values) (json.RawMessage, error)
	Post(ctx context.Context, resource string, query url.Values) (json.RawMessage, error)
}

var _ Fetcher = (*portal.Client)(nil)

// Options wires the handler.
type Options struct {
	Sessions      Sessions
	Authenticator ports.Authenticator
	// Metrics is served on /metrics when set.
	Metrics    http.Handler
	Logger     *slog.Logger
	InstanceID string
	Version    string
}

// Server serves the REST API and the peer lookup endpoint.
type Server struct {
	sessions  Sessions
	auth      ports.Authenticator
	responder *peer.Responder
	spec      *openapi3.T
	logger    *slog.Logger
	instance  string
	version   string
}

// NewHandler creates the HTTP handler of an instance.
func NewHandler(opts Options) (http.Handler, error) {
	spec, err := LoadSpec(context.Background())
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Server{
		sessions:  opts.Sessions,
		auth:      opts.Authenticator,
		responder: peer.NewResponder(opts.Sessions, logger),
		spec:      spec,
		logger:    logger,
		instance:  opts.InstanceID,
		version:   opts.Version,
	}

	r := chi.NewRouter()
	r.Use(enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Post("/generatetoken", s.GenerateToken)
	for _, res := range resources {
		r.Get(res.Path, s.portalHandler(res))
	}

	r.Get(peer.LookupPath+"{token}", func(w http.ResponseWriter, r *http.Request) {
		s.responder.Respond(w, r, chi.URLParam(r, "token"))
	})

	return r, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const headers = "Authorization,Keep-Alive,User-Agent,If-Modified-Since,Cache-Control,Content-Type"
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", headers)
		w.Header().Set("Access-Control-Expose-Headers", headers)
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Max-Age", "1728000")
			w.Header().Set("Content-Type", "text/plain charset=UTF-8")
			w.Header().Set("Content-Length", "0")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Portalgate API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// TokenResponse is the body of POST /generatetoken. Token and Error are
// either a string or false, mirroring what existing mobile clients expect.
type TokenResponse struct {
	Token any `json:"token"`
	Error any `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

func decodeCredentials(r *http.Request) (ports.Credentials, bool, error) {
	var creds ports.Credentials
	if r.Body == nil || r.ContentLength == 0 {
		return creds, false, nil
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return creds, true, err
		}
		creds = ports.Credentials{
			URL:      r.PostForm.Get("url"),
			Username: r.PostForm.Get("username"),
			Password: r.PostForm.Get("password"),
			ENT:      r.PostForm.Get("ent"),
		}
		return creds, true, nil
	}

	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		return creds, true, err
	}
	return creds, true, nil
}

// GenerateToken handles POST /generatetoken.
func (s *Server) GenerateToken(w http.ResponseWriter, r *http.Request) {
	creds, present, err := decodeCredentials(r)
	if !present {
		writeJSON(w, http.StatusBadRequest, TokenResponse{Token: false, Error: "missingbody"})
		return
	}
	if err != nil {
		s.logger.Warn("GenerateToken: Invalid request body", "error", err)
		writeJSON(w, http.StatusBadRequest, TokenResponse{Token: false, Error: "invalidbody"})
		return
	}

	for _, f := range []struct{ name, value string }{
		{"url", creds.URL},
		{"username", creds.Username},
		{"password", creds.Password},
	} {
		if f.value == "" {
			writeJSON(w, http.StatusBadRequest, TokenResponse{Token: false, Error: "missing" + f.name})
			return
		}
	}

	handle, err := s.auth.Login(r.Context(), creds)
	if err != nil {
		s.logger.Info("GenerateToken: Login failed", "url", creds.URL, "error", err)
		writeJSON(w, StatusInvalidToken, TokenResponse{Token: false, Error: loginErrorCode(err)})
		return
	}
	if !handle.Usable() {
		writeJSON(w, StatusInvalidToken, TokenResponse{Token: false, Error: "loginfailed"})
		return
	}

	token, err := s.sessions.GenerateToken(r.Context(), handle)
	if err != nil {
		s.logger.Error("GenerateToken: Failed to store session", "error", err)
		writeJSON(w, http.StatusInternalServerError, TokenResponse{Token: false, Error: "storefailed"})
		return
	}

	if err := writeJSON(w, http.StatusOK, TokenResponse{Token: token, Error: false}); err != nil {
		s.logger.Error("GenerateToken response encode failed", "error", err)
	}
}

// loginErrorCode maps a login failure to the code returned to API callers.
// The underlying error may carry transport details and only goes to the logs.
func loginErrorCode(err error) string {
	if errors.Is(err, portal.ErrMissingField) {
		return "missingfield"
	}
	return "loginfailed"
}

// resolve writes the 498 answer and returns false when the token is not usable.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (Fetcher, bool) {
	token := r.URL.Query().Get("token")

	outcome, handle, err := s.sessions.Resolve(r.Context(), token)
	if err != nil {
		s.logger.Error("Token resolution failed", "error", err)
		http.Error(w, "session store unavailable", http.StatusServiceUnavailable)
		return nil, false
	}
	if outcome != domain.Found {
		writeJSON(w, StatusInvalidToken, outcome.String())
		return nil, false
	}

	fetcher, ok := handle.(Fetcher)
	if !ok {
		s.logger.Error("Handle cannot fetch portal resources", "type", fmt.Sprintf("%T", handle))
		http.Error(w, "unsupported session handle", http.StatusInternalServerError)
		return nil, false
	}
	return fetcher, true
}

func (s *Server) portalHandler(res resource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, err := res.query(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		fetcher, ok := s.resolve(w, r)
		if !ok {
			return
		}

		call := fetcher.Fetch
		if res.Action {
			call = fetcher.Post
		}
		body, err := call(r.Context(), res.Portal, query)
		if err != nil {
			s.writePortalError(w, res, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}

func (s *Server) writePortalError(w http.ResponseWriter, res resource, err error) {
	var se *portal.StatusError
	switch {
	case errors.Is(err, domain.ErrHandleUnusable):
		writeJSON(w, StatusInvalidToken, "loggedout")
	case errors.As(err, &se):
		http.Error(w, se.Body, se.Code)
	default:
		s.logger.Warn("Portal request failed", "resource", res.Portal, "error", err)
		http.Error(w, "portal unavailable", http.StatusBadGateway)
	}
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if s.spec.Info != nil {
		apiVersion = s.spec.Info.Version
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "portalgate-http",
		"version":     s.version,
		"api_version": apiVersion,
		"instance":    s.instance,
	})
}
