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

// CDRsHandler serves the CDR receiver endpoints. CDRs are write-once billing
// records: POST creates, duplicates conflict, and there is no PATCH.
type CDRsHandler struct {
	logger  *slog.Logger
	store   *assets.Store[ocpi.CDR]
	metrics *metrics.Metrics
}

func NewCDRsHandler(store *assets.Store[ocpi.CDR], metrics *metrics.Metrics, logger *slog.Logger) *CDRsHandler {
	return &CDRsHandler{logger: logger, store: store, metrics: metrics}
}

// Register wires the CDR routes inside the versioned subtree.
func (h *CDRsHandler) Register(r chi.Router) {
	r.Route("/cdrs", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handlePost)
		r.Route("/{cdr_id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleDelete)
		})
	})
}

func (h *CDRsHandler) count(op, outcome string) {
	h.metrics.AssetMutation("cdr", op, outcome)
}

func (h *CDRsHandler) handleList(w http.ResponseWriter, r *http.Request) {
	shared.WriteData(w, h.store.Values())
}

func (h *CDRsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "cdr_id")
	cdr, ok := h.store.Get(r.Context(), id)
	if !ok {
		shared.WriteError(w, ocpistatus.New(ocpistatus.UnknownLocation, http.StatusNotFound, "cdr %s not found", id))
		return
	}
	shared.WriteData(w, cdr)
}

func (h *CDRsHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	var cdr ocpi.CDR
	if !shared.Decode(w, r, &cdr) {
		return
	}
	if cdr.ID == "" {
		shared.WriteError(w, ocpistatus.Invalid("cdr is missing an id"))
		return
	}
	if err := h.store.Add(r.Context(), cdr); err != nil {
		h.count("post", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("post", "created")
	w.Header().Set("Location", r.URL.Path+"/"+cdr.ID)
	shared.WriteStatus(w, http.StatusCreated, cdr)
}

func (h *CDRsHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	removed, err := h.store.Remove(r.Context(), chi.URLParam(r, "cdr_id"))
	if err != nil {
		h.count("delete", "failed")
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.count("delete", "removed")
	shared.WriteData(w, removed)
}
