package peer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aretw0/portalgate/internal/logging"
	"github.com/aretw0/portalgate/pkg/domain"
	"github.com/aretw0/portalgate/pkg/wire"
)

// Resolver is the part of session.Manager the Responder needs.
type Resolver interface {
	Lookup(ctx context.Context, token string, origin domain.Origin) (domain.Outcome, domain.Record, error)
}

// Responder answers sibling instances from the local store only.
type Responder struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewResponder creates a Responder. A nil logger discards output.
func NewResponder(resolver Resolver, logger *slog.Logger) *Responder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Responder{resolver: resolver, logger: logger}
}

// ServeHTTP handles GET {LookupPath}{token}.
func (rs *Responder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), LookupPath))
	if err != nil {
		token = ""
	}
	rs.Respond(w, r, token)
}

// Respond answers a lookup for token. Routers that extract the token themselves call it directly.
func (rs *Responder) Respond(w http.ResponseWriter, r *http.Request, token string) {
	caller := r.Header.Get(InstanceHeader)

	outcome, rec, err := rs.resolver.Lookup(r.Context(), token, domain.OriginPeer)
	if err != nil {
		rs.logger.Error("Peer lookup failed", "caller", caller, "err", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	resp := wire.LookupResponse{Status: outcome}
	if outcome == domain.Found {
		payload, err := wire.FromDomain(rec)
		if err != nil {
			rs.logger.Error("Failed to serialize record for peer", "caller", caller, "err", err)
			http.Error(w, "serialization failed", http.StatusInternalServerError)
			return
		}
		resp.Record = &payload
		rs.logger.Info("Session exported to peer", "caller", caller)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		rs.logger.Error("Peer response encode failed", "err", err)
	}
}
