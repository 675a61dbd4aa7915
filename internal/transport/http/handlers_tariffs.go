package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ocpihub/internal/assets"
	"ocpihub/internal/ocpi"
	"ocpihub/internal/platform/metrics"
	"ocpihub/internal/transport/http/shared"
	"ocpihub/pkg/ocpistatus"
)

// TariffsHandler serves the tariffs receiver endpoints on the time-ranged
// store: GET resolves the version effective at the requested instant.
type TariffsHandler struct {
	logger    *slog.Logger
	store     *assets.TariffStore
	metrics   *metrics.Metrics
	tolerance time.Duration
}

func NewTariffsHandler(store *assets.TariffStore, metrics *metrics.Metrics, tolerance time.Duration, logger *slog.Logger) *TariffsHandler {
	return &TariffsHandler{logger: logger, store: store, metrics: metrics, tolerance: tolerance}
}

// Register wires the tariffs routes inside the versioned subtree.
func (h *TariffsHandler) Register(r chi.Router) {
	r.Route("/tariffs", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Route("/{country_code}/{party_id}/{tariff_id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Put("/", h.handlePut)
			r.Patch("/", h.handlePatch)
			r.Delete("/", h.handleDelete)
		})
	})
}

func (h *TariffsHandler) count(op, outcome string) {
	h.metrics.AssetMutation("tariff", op, outcome)
}

func (h *TariffsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	shared.WriteData(w, h.store.Values())
}

// handleGet resolves the tariff version effective at date_time (RFC 3339,
// defaulting to now).
func (h *TariffsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tariff_id")

	var at time.Time
	if v := r.URL.Query().Get("date_time"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			shared.WriteError(w, ocpistatus.Invalid("invalid date_time %q: %s", v, err))
			return
		}
		at = parsed
	}

	t, ok := h.store.TryGet(r.Context(), id, at, h.tolerance)
	if !ok {
		shared.WriteError(w, ocpistatus.New(ocpistatus.UnknownLocation, http.StatusNotFound, "tariff %s not found", id))
		return
	}
	shared.WriteData(w, t)
}

func (h *TariffsHandler) handlePut(w http.ResponseWriter, r *http.Request) {
	var t ocpi.Tariff
	if !shared.Decode(w, r, &t) {
		return
	}
	if t.ID == "" {
		t.ID = chi.URLParam(r, "tariff_id")
	}
	if t.ID != chi.URLParam(r, "tariff_id") {
		shared.WriteError(w, ocpistatus.Invalid("tariff id in body (%s) does not match path (%s)", t.ID, chi.URLParam(r, "tariff_id")))
		return
	}
	t.CountryCode = chi.URLParam(r, "country_code")
	t.PartyID = chi.URLParam(r, "party_id")

	outcome, err := h.store.AddOrUpdate(r.Context(), t, allowDowngrades(r))
	if err != nil {
		h.count("put", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("put", outcome.String())
	if outcome == assets.OutcomeCreated {
		shared.WriteStatus(w, http.StatusCreated, t)
		return
	}
	shared.WriteData(w, t)
}

func (h *TariffsHandler) handlePatch(w http.ResponseWriter, r *http.Request) {
	var patch ocpi.TariffPatch
	if !shared.Decode(w, r, &patch) {
		return
	}
	patched, err := h.store.TryPatch(r.Context(), chi.URLParam(r, "tariff_id"),
		func(t ocpi.Tariff) (ocpi.Tariff, error) { return patch.Apply(t), nil },
		allowDowngrades(r))
	if err != nil {
		h.count("patch", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("patch", "updated")
	shared.WriteData(w, patched)
}

func (h *TariffsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.Remove(r.Context(), chi.URLParam(r, "tariff_id"))
	if err != nil {
		h.count("delete", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("delete", "removed")
	shared.WriteData(w, removed)
}
