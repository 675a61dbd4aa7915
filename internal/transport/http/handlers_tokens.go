package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ocpihub/internal/assets"
	"ocpihub/internal/ocpi"
	"ocpihub/internal/platform/metrics"
	"ocpihub/internal/transport/http/shared"
	"ocpihub/pkg/ocpistatus"
)

// TokensHandler serves the tokens receiver endpoints. The stored unit is a
// TokenStatus: the token plus its authorization verdict.
type TokensHandler struct {
	logger  *slog.Logger
	store   *assets.Store[ocpi.TokenStatus]
	metrics *metrics.Metrics
}

func NewTokensHandler(store *assets.Store[ocpi.TokenStatus], metrics *metrics.Metrics, logger *slog.Logger) *TokensHandler {
	return &TokensHandler{logger: logger, store: store, metrics: metrics}
}

// Register wires the tokens routes inside the versioned subtree.
func (h *TokensHandler) Register(r chi.Router) {
	r.Route("/tokens", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Route("/{country_code}/{party_id}/{token_uid}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Put("/", h.handlePut)
			r.Patch("/", h.handlePatch)
			r.Delete("/", h.handleDelete)
		})
	})
}

func (h *TokensHandler) count(op, outcome string) {
	h.metrics.AssetMutation("token_status", op, outcome)
}

func (h *TokensHandler) handleList(w http.ResponseWriter, r *http.Request) {
	shared.WriteData(w, h.store.Values())
}

func (h *TokensHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "token_uid")
	ts, ok := h.store.Get(r.Context(), uid)
	if !ok {
		shared.WriteError(w, ocpistatus.New(ocpistatus.UnknownLocation, http.StatusNotFound, "token %s not found", uid))
		return
	}
	shared.WriteData(w, ts)
}

func (h *TokensHandler) handlePut(w http.ResponseWriter, r *http.Request) {
	var ts ocpi.TokenStatus
	if !shared.Decode(w, r, &ts) {
		return
	}
	if ts.Token.UID == "" {
		ts.Token.UID = chi.URLParam(r, "token_uid")
	}
	if ts.Token.UID != chi.URLParam(r, "token_uid") {
		shared.WriteError(w, ocpistatus.Invalid("token uid in body (%s) does not match path (%s)", ts.Token.UID, chi.URLParam(r, "token_uid")))
		return
	}
	ts.Token.CountryCode = chi.URLParam(r, "country_code")
	ts.Token.PartyID = chi.URLParam(r, "party_id")

	outcome, err := h.store.AddOrUpdate(r.Context(), ts, allowDowngrades(r))
	if err != nil {
		h.count("put", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("put", outcome.String())
	if outcome == assets.OutcomeCreated {
		shared.WriteStatus(w, http.StatusCreated, ts)
		return
	}
	shared.WriteData(w, ts)
}

func (h *TokensHandler) handlePatch(w http.ResponseWriter, r *http.Request) {
	var patch ocpi.TokenPatch
	if !shared.Decode(w, r, &patch) {
		return
	}
	patched, err := h.store.TryPatch(r.Context(), chi.URLParam(r, "token_uid"),
		func(ts ocpi.TokenStatus) (ocpi.TokenStatus, error) { return patch.Apply(ts), nil },
		allowDowngrades(r))
	if err != nil {
		h.count("patch", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("patch", "updated")
	shared.WriteData(w, patched)
}

func (h *TokensHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.Remove(r.Context(), chi.URLParam(r, "token_uid"))
	if err != nil {
		h.count("delete", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("delete", "removed")
	shared.WriteData(w, removed)
}
