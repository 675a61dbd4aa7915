package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ocpihub/internal/ocpi"
	"ocpihub/internal/platform/middleware"
	"ocpihub/internal/transport/http/shared"
	"ocpihub/pkg/ocpistatus"
)

// CredentialsHandler serves the credentials module: the handshake endpoints.
// Token auth is NOT enforced by middleware here; the resource owns its error
// semantics (missing token 400; unknown token 400 on POST and PUT, 403 on
// GET and DELETE; wrong state 405).
type CredentialsHandler struct {
	logger  *slog.Logger
	service CredentialsService
}

// CredentialsService is the protocol surface the handler delegates to.
type CredentialsService interface {
	Get(ctx context.Context, token string) (ocpi.Credentials, error)
	Register(ctx context.Context, token string, received ocpi.Credentials) (ocpi.Credentials, error)
	Rotate(ctx context.Context, token string, received ocpi.Credentials) (ocpi.Credentials, error)
	Unregister(ctx context.Context, token string) error
	Allow(token string) []string
}

// NewCredentialsHandler builds the handler.
func NewCredentialsHandler(service CredentialsService, logger *slog.Logger) *CredentialsHandler {
	return &CredentialsHandler{logger: logger, service: service}
}

// Register wires the credentials routes inside the versioned subtree.
func (h *CredentialsHandler) Register(r chi.Router) {
	r.Route("/credentials", func(r chi.Router) {
		r.Options("/", h.handleOptions)
		r.Get("/", h.handleGet)
		r.Post("/", h.handlePost)
		r.Put("/", h.handlePut)
		r.Delete("/", h.handleDelete)
	})
}

// token extracts the inbound access token, failing 400 when absent per the
// handshake's step one.
func (h *CredentialsHandler) token(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := middleware.GetToken(r.Context())
	if token == "" {
		shared.WriteError(w, ocpistatus.Invalid("missing access token"))
		return "", false
	}
	return token, true
}

func (h *CredentialsHandler) handleOptions(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetToken(r.Context())
	w.Header().Set("Allow", strings.Join(h.service.Allow(token), ", "))
	w.WriteHeader(http.StatusOK)
}

func (h *CredentialsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}
	creds, err := h.service.Get(r.Context(), token)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteData(w, creds)
}

func (h *CredentialsHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}
	var received ocpi.Credentials
	if !shared.Decode(w, r, &received) {
		return
	}
	creds, err := h.service.Register(r.Context(), token, received)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteData(w, creds)
}

func (h *CredentialsHandler) handlePut(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}
	var received ocpi.Credentials
	if !shared.Decode(w, r, &received) {
		return
	}
	creds, err := h.service.Rotate(r.Context(), token, received)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteData(w, creds)
}

func (h *CredentialsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	token, ok := h.token(w, r)
	if !ok {
		return
	}
	if err := h.service.Unregister(r.Context(), token); err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteData(w, nil)
}
