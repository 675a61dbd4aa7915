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

// SessionsHandler serves the sessions receiver endpoints.
type SessionsHandler struct {
	logger  *slog.Logger
	store   *assets.Store[ocpi.Session]
	metrics *metrics.Metrics
}

func NewSessionsHandler(store *assets.Store[ocpi.Session], metrics *metrics.Metrics, logger *slog.Logger) *SessionsHandler {
	return &SessionsHandler{logger: logger, store: store, metrics: metrics}
}

// Register wires the sessions routes inside the versioned subtree.
func (h *SessionsHandler) Register(r chi.Router) {
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Route("/{country_code}/{party_id}/{session_id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Put("/", h.handlePut)
			r.Patch("/", h.handlePatch)
			r.Delete("/", h.handleDelete)
		})
	})
}

func (h *SessionsHandler) count(op, outcome string) {
	h.metrics.AssetMutation("session", op, outcome)
}

func (h *SessionsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	shared.WriteData(w, h.store.Values())
}

func (h *SessionsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	s, ok := h.store.Get(r.Context(), id)
	if !ok {
		shared.WriteError(w, ocpistatus.New(ocpistatus.UnknownLocation, http.StatusNotFound, "session %s not found", id))
		return
	}
	shared.WriteData(w, s)
}

func (h *SessionsHandler) handlePut(w http.ResponseWriter, r *http.Request) {
	var s ocpi.Session
	if !shared.Decode(w, r, &s) {
		return
	}
	if s.ID == "" {
		s.ID = chi.URLParam(r, "session_id")
	}
	if s.ID != chi.URLParam(r, "session_id") {
		shared.WriteError(w, ocpistatus.Invalid("session id in body (%s) does not match path (%s)", s.ID, chi.URLParam(r, "session_id")))
		return
	}
	s.CountryCode = chi.URLParam(r, "country_code")
	s.PartyID = chi.URLParam(r, "party_id")

	outcome, err := h.store.AddOrUpdate(r.Context(), s, allowDowngrades(r))
	if err != nil {
		h.count("put", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("put", outcome.String())
	if outcome == assets.OutcomeCreated {
		shared.WriteStatus(w, http.StatusCreated, s)
		return
	}
	shared.WriteData(w, s)
}

func (h *SessionsHandler) handlePatch(w http.ResponseWriter, r *http.Request) {
	var patch ocpi.SessionPatch
	if !shared.Decode(w, r, &patch) {
		return
	}
	patched, err := h.store.TryPatch(r.Context(), chi.URLParam(r, "session_id"),
		func(s ocpi.Session) (ocpi.Session, error) { return patch.Apply(s), nil },
		allowDowngrades(r))
	if err != nil {
		h.count("patch", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("patch", "updated")
	shared.WriteData(w, patched)
}

func (h *SessionsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.Remove(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		h.count("delete", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("delete", "removed")
	shared.WriteData(w, removed)
}
