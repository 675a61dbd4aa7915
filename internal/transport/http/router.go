// Package httptransport is the thin HTTP layer over the OCPI services: it
// wires the chi router, the envelope codec and the middleware chain, and
// delegates everything else to the domain packages.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ocpihub/internal/assets"
	"ocpihub/internal/party"
	"ocpihub/internal/platform/metrics"
	"ocpihub/internal/platform/middleware"
	"ocpihub/internal/registration"
)

// Deps carries everything the router needs.
type Deps struct {
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	Registry        *party.Registry
	Assets          *assets.Assets
	Registration    *registration.Service
	JWTValidator    middleware.JWTValidator
	BaseURL         string
	TariffTolerance time.Duration
}

// NewRouter wires all endpoints: version discovery, the credentials
// handshake, the asset receiver modules, the operator API, and the
// operational endpoints.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.ExtractToken)

	requireParty := middleware.RequireParty(d.Registry)
	requireAdmin := middleware.RequireAuth(d.JWTValidator, d.Logger)

	NewVersionsHandler(d.Logger, d.BaseURL, requireParty).Register(r)
	NewAdminHandler(d.Registry, requireAdmin, d.Logger).Register(r)

	r.Route("/v{version}", func(r chi.Router) {
		r.Use(requireVersion)

		// The credentials resource authenticates itself: its error semantics
		// around missing and unknown tokens differ from the asset modules.
		NewCredentialsHandler(d.Registration, d.Logger).Register(r)

		r.Group(func(r chi.Router) {
			r.Use(requireParty)
			NewLocationsHandler(d.Assets.Locations, d.Metrics, d.Logger).Register(r)
			NewTariffsHandler(d.Assets.Tariffs, d.Metrics, d.TariffTolerance, d.Logger).Register(r)
			NewSessionsHandler(d.Assets.Sessions, d.Metrics, d.Logger).Register(r)
			NewTokensHandler(d.Assets.Tokens, d.Metrics, d.Logger).Register(r)
			NewCDRsHandler(d.Assets.CDRs, d.Metrics, d.Logger).Register(r)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
