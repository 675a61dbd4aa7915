package httptransport

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"ocpihub/internal/ocpi"
	"ocpihub/internal/transport/http/shared"
	"ocpihub/pkg/ocpistatus"
)

// modules are the endpoint identifiers this platform serves in version
// details documents. OCPI 2.1.1 serves the same set to every role.
var modules = []string{"credentials", "locations", "tariffs", "sessions", "tokens", "cdrs"}

// VersionsHandler serves the version discovery documents partners fetch
// during and after the credentials handshake.
type VersionsHandler struct {
	logger  *slog.Logger
	baseURL string
	auth    func(http.Handler) http.Handler
}

// NewVersionsHandler builds the handler. baseURL is this platform's external
// URL; auth is the OCPI token middleware.
func NewVersionsHandler(logger *slog.Logger, baseURL string, auth func(http.Handler) http.Handler) *VersionsHandler {
	return &VersionsHandler{logger: logger, baseURL: strings.TrimRight(baseURL, "/"), auth: auth}
}

// Register wires the versions routes.
func (h *VersionsHandler) Register(r chi.Router) {
	r.Route("/versions", func(r chi.Router) {
		r.Use(h.auth)
		r.Get("/", h.handleList)
		r.Route("/{version}", func(r chi.Router) {
			r.Options("/", h.handleOptions)
			r.Get("/", h.handleDetails)
		})
	})
}

func (h *VersionsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	shared.WriteData(w, []ocpi.Version{{
		Version: ocpi.VersionNumber,
		URL:     fmt.Sprintf("%s/versions/%s", h.baseURL, ocpi.VersionNumber),
	}})
}

func (h *VersionsHandler) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "OPTIONS, GET")
	w.WriteHeader(http.StatusOK)
}

func (h *VersionsHandler) handleDetails(w http.ResponseWriter, r *http.Request) {
	version := strings.TrimPrefix(chi.URLParam(r, "version"), "v")
	if version != ocpi.VersionNumber {
		shared.WriteError(w, ocpistatus.New(ocpistatus.UnsupportedVersion, http.StatusNotFound,
			"version %s is not supported", version))
		return
	}

	endpoints := make([]ocpi.Endpoint, 0, len(modules))
	for _, m := range modules {
		endpoints = append(endpoints, ocpi.Endpoint{
			Identifier: m,
			URL:        fmt.Sprintf("%s/v%s/%s", h.baseURL, ocpi.VersionNumber, m),
		})
	}
	shared.WriteData(w, ocpi.VersionDetails{Version: ocpi.VersionNumber, Endpoints: endpoints})
}

// requireVersion guards the /v{version}/ subtree: anything but the supported
// version gets a coded rejection before reaching module handlers.
func requireVersion(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		version := strings.TrimPrefix(chi.URLParam(r, "version"), "v")
		if version != ocpi.VersionNumber {
			shared.WriteError(w, ocpistatus.New(ocpistatus.UnsupportedVersion, http.StatusNotFound,
				"version %s is not supported", version))
			return
		}
		next.ServeHTTP(w, r)
	})
}
