package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ocpihub/internal/assets"
	"ocpihub/internal/ocpi"
	"ocpihub/internal/platform/metrics"
	"ocpihub/internal/transport/http/shared"
	"ocpihub/pkg/ocpistatus"
)

// allowDowngrades reads the per-call override from the query string; absent
// means "use the store default".
func allowDowngrades(r *http.Request) *bool {
	v := r.URL.Query().Get("allow_downgrades")
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil
	}
	return &b
}

// LocationsHandler serves the locations receiver endpoints, including the
// nested EVSE and connector paths. Nested mutations go through the location
// store's projections so each one is a single swap on the parent.
type LocationsHandler struct {
	logger  *slog.Logger
	store   *assets.LocationStore
	metrics *metrics.Metrics
}

func NewLocationsHandler(store *assets.LocationStore, metrics *metrics.Metrics, logger *slog.Logger) *LocationsHandler {
	return &LocationsHandler{logger: logger, store: store, metrics: metrics}
}

// Register wires the locations routes inside the versioned subtree.
func (h *LocationsHandler) Register(r chi.Router) {
	r.Route("/locations", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Route("/{country_code}/{party_id}/{location_id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Put("/", h.handlePut)
			r.Patch("/", h.handlePatch)
			r.Delete("/", h.handleDelete)
			r.Route("/{evse_uid}", func(r chi.Router) {
				r.Get("/", h.handleGetEVSE)
				r.Put("/", h.handlePutEVSE)
				r.Patch("/", h.handlePatchEVSE)
				r.Delete("/", h.handleDeleteEVSE)
				r.Route("/{connector_id}", func(r chi.Router) {
					r.Put("/", h.handlePutConnector)
					r.Delete("/", h.handleDeleteConnector)
				})
			})
		})
	})
}

func (h *LocationsHandler) count(op, outcome string) {
	h.metrics.AssetMutation("location", op, outcome)
}

func (h *LocationsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	shared.WriteData(w, h.store.Values())
}

func (h *LocationsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "location_id")
	loc, ok := h.store.Get(r.Context(), id)
	if !ok {
		shared.WriteError(w, ocpistatus.New(ocpistatus.UnknownLocation, http.StatusNotFound, "location %s not found", id))
		return
	}
	shared.WriteData(w, loc)
}

func (h *LocationsHandler) handlePut(w http.ResponseWriter, r *http.Request) {
	var loc ocpi.Location
	if !shared.Decode(w, r, &loc) {
		return
	}
	if loc.ID == "" {
		loc.ID = chi.URLParam(r, "location_id")
	}
	if loc.ID != chi.URLParam(r, "location_id") {
		shared.WriteError(w, ocpistatus.Invalid("location id in body (%s) does not match path (%s)", loc.ID, chi.URLParam(r, "location_id")))
		return
	}
	loc.CountryCode = chi.URLParam(r, "country_code")
	loc.PartyID = chi.URLParam(r, "party_id")

	outcome, err := h.store.AddOrUpdate(r.Context(), loc, allowDowngrades(r))
	if err != nil {
		h.count("put", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("put", outcome.String())
	if outcome == assets.OutcomeCreated {
		shared.WriteStatus(w, http.StatusCreated, loc)
		return
	}
	shared.WriteData(w, loc)
}

func (h *LocationsHandler) handlePatch(w http.ResponseWriter, r *http.Request) {
	var patch ocpi.LocationPatch
	if !shared.Decode(w, r, &patch) {
		return
	}
	patched, err := h.store.TryPatch(r.Context(), chi.URLParam(r, "location_id"),
		func(l ocpi.Location) (ocpi.Location, error) { return patch.Apply(l), nil },
		allowDowngrades(r))
	if err != nil {
		h.count("patch", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("patch", "updated")
	shared.WriteData(w, patched)
}

func (h *LocationsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.Remove(r.Context(), chi.URLParam(r, "location_id"))
	if err != nil {
		h.count("delete", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("delete", "removed")
	shared.WriteData(w, removed)
}

func (h *LocationsHandler) handleGetEVSE(w http.ResponseWriter, r *http.Request) {
	loc, ok := h.store.Get(r.Context(), chi.URLParam(r, "location_id"))
	if !ok {
		shared.WriteError(w, ocpistatus.New(ocpistatus.UnknownLocation, http.StatusNotFound, "location %s not found", chi.URLParam(r, "location_id")))
		return
	}
	evse, ok := loc.EVSE(chi.URLParam(r, "evse_uid"))
	if !ok {
		shared.WriteError(w, ocpistatus.New(ocpistatus.UnknownLocation, http.StatusNotFound, "evse %s not found", chi.URLParam(r, "evse_uid")))
		return
	}
	shared.WriteData(w, evse)
}

func (h *LocationsHandler) handlePutEVSE(w http.ResponseWriter, r *http.Request) {
	var evse ocpi.EVSE
	if !shared.Decode(w, r, &evse) {
		return
	}
	if evse.UID == "" {
		evse.UID = chi.URLParam(r, "evse_uid")
	}
	if evse.UID != chi.URLParam(r, "evse_uid") {
		shared.WriteError(w, ocpistatus.Invalid("evse uid in body (%s) does not match path (%s)", evse.UID, chi.URLParam(r, "evse_uid")))
		return
	}
	outcome, err := h.store.AddOrUpdateEVSE(r.Context(), chi.URLParam(r, "location_id"), evse, allowDowngrades(r))
	if err != nil {
		h.count("put_evse", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("put_evse", outcome.String())
	shared.WriteData(w, evse)
}

func (h *LocationsHandler) handlePatchEVSE(w http.ResponseWriter, r *http.Request) {
	var patch struct {
		EVSEID      *string          `json:"evse_id,omitempty"`
		Status      *ocpi.EVSEStatus `json:"status,omitempty"`
		FloorLevel  *string          `json:"floor_level,omitempty"`
		LastUpdated *time.Time       `json:"last_updated,omitempty"`
	}
	if !shared.Decode(w, r, &patch) {
		return
	}
	err := h.store.PatchEVSE(r.Context(), chi.URLParam(r, "location_id"), chi.URLParam(r, "evse_uid"),
		func(e ocpi.EVSE) (ocpi.EVSE, error) {
			if patch.EVSEID != nil {
				e.EVSEID = *patch.EVSEID
			}
			if patch.Status != nil {
				e.Status = *patch.Status
			}
			if patch.FloorLevel != nil {
				e.FloorLevel = *patch.FloorLevel
			}
			if patch.LastUpdated != nil {
				e.LastUpdated = *patch.LastUpdated
			}
			return e, nil
		}, allowDowngrades(r))
	if err != nil {
		h.count("patch_evse", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("patch_evse", "updated")
	shared.WriteData(w, nil)
}

func (h *LocationsHandler) handleDeleteEVSE(w http.ResponseWriter, r *http.Request) {
	err := h.store.RemoveEVSE(r.Context(), chi.URLParam(r, "location_id"), chi.URLParam(r, "evse_uid"))
	if err != nil {
		h.count("delete_evse", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("delete_evse", "removed")
	shared.WriteData(w, nil)
}

func (h *LocationsHandler) handlePutConnector(w http.ResponseWriter, r *http.Request) {
	var c ocpi.Connector
	if !shared.Decode(w, r, &c) {
		return
	}
	if c.ID == "" {
		c.ID = chi.URLParam(r, "connector_id")
	}
	err := h.store.AddOrUpdateConnector(r.Context(), chi.URLParam(r, "location_id"), chi.URLParam(r, "evse_uid"), c, allowDowngrades(r))
	if err != nil {
		h.count("put_connector", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("put_connector", "updated")
	shared.WriteData(w, c)
}

func (h *LocationsHandler) handleDeleteConnector(w http.ResponseWriter, r *http.Request) {
	err := h.store.RemoveConnector(r.Context(), chi.URLParam(r, "location_id"), chi.URLParam(r, "evse_uid"), chi.URLParam(r, "connector_id"))
	if err != nil {
		h.count("delete_connector", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("delete_connector", "removed")
	shared.WriteData(w, nil)
}
