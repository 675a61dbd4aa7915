package httptransport

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ocpihub/internal/ocpi"
	"ocpihub/internal/party"
	"ocpihub/internal/platform/middleware"
	"ocpihub/internal/transport/http/shared"
	"ocpihub/pkg/ocpistatus"
	"ocpihub/pkg/platform/sentinel"
)

// AdminHandler is the operator API: create a party and issue it a first
// token (CREDENTIALS_TOKEN_A), inspect, block, unblock, and remove parties.
// It sits behind JWT bearer auth, not OCPI token auth.
type AdminHandler struct {
	logger   *slog.Logger
	registry *party.Registry
	auth     func(http.Handler) http.Handler
}

func NewAdminHandler(registry *party.Registry, auth func(http.Handler) http.Handler, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{logger: logger, registry: registry, auth: auth}
}

// Register wires the admin routes.
func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin/parties", func(r chi.Router) {
		r.Use(h.auth)
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Route("/{party_key}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Delete("/", h.handleDelete)
			r.Post("/block", h.handleBlock)
			r.Post("/unblock", h.handleUnblock)
		})
	})
}

// createPartyRequest is the operator's input for provisioning a partner.
type createPartyRequest struct {
	CountryCode     string               `json:"country_code"`
	PartyID         string               `json:"party_id"`
	Role            ocpi.Role            `json:"role"`
	BusinessDetails ocpi.BusinessDetails `json:"business_details"`
	TokenValidity   *time.Duration       `json:"token_validity,omitempty"`
}

// createPartyResponse carries the issued token A, shown exactly once.
type createPartyResponse struct {
	Party *party.RemoteParty `json:"party"`
	Token string             `json:"token"`
}

func newTokenA() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (h *AdminHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createPartyRequest
	if !shared.Decode(w, r, &req) {
		return
	}
	if req.CountryCode == "" || req.PartyID == "" || req.Role == "" {
		shared.WriteError(w, ocpistatus.Invalid("country_code, party_id and role are required"))
		return
	}

	token, err := newTokenA()
	if err != nil {
		shared.WriteError(w, ocpistatus.Internal("generate token: %s", err))
		return
	}

	access := party.LocalAccessInfo{AccessToken: token, Status: party.AccessAllowed}
	if req.TokenValidity != nil {
		notAfter := time.Now().UTC().Add(*req.TokenValidity)
		access.NotAfter = &notAfter
	}

	p := &party.RemoteParty{
		CountryCode:     req.CountryCode,
		PartyID:         req.PartyID,
		Role:            req.Role,
		BusinessDetails: req.BusinessDetails,
		Status:          party.PartyEnabled,
		LocalAccess:     []party.LocalAccessInfo{access},
		LastUpdated:     time.Now().UTC(),
	}

	if err := h.registry.Add(r.Context(), p); err != nil {
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.logger.InfoContext(r.Context(), "party provisioned",
		"party", p.ID(),
		"admin", middleware.GetAdmin(r.Context()),
	)
	shared.WriteStatus(w, http.StatusCreated, createPartyResponse{Party: p, Token: token})
}

func (h *AdminHandler) handleList(w http.ResponseWriter, r *http.Request) {
	shared.WriteData(w, h.registry.All())
}

func (h *AdminHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	key := party.ID(chi.URLParam(r, "party_key"))
	p, ok := h.registry.Get(key)
	if !ok {
		shared.WriteError(w, ocpistatus.New(ocpistatus.GenericClientError, http.StatusNotFound, "party %s not found", key))
		return
	}
	shared.WriteData(w, p)
}

func (h *AdminHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := party.ID(chi.URLParam(r, "party_key"))
	if err := h.registry.Remove(r.Context(), key); err != nil {
		shared.WriteError(w, shared.StoreError(err))
		return
	}
	h.logger.InfoContext(r.Context(), "party removed",
		"party", key,
		"admin", middleware.GetAdmin(r.Context()),
	)
	shared.WriteData(w, nil)
}

// setAccessStatus retries the clone-and-swap on CAS contention.
func (h *AdminHandler) setAccessStatus(w http.ResponseWriter, r *http.Request, status party.AccessStatus) {
	key := party.ID(chi.URLParam(r, "party_key"))

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		p, ok := h.registry.Get(key)
		if !ok {
			shared.WriteError(w, ocpistatus.New(ocpistatus.GenericClientError, http.StatusNotFound, "party %s not found", key))
			return
		}
		updated := p.Clone()
		for i := range updated.LocalAccess {
			updated.LocalAccess[i].Status = status
		}
		updated.LastUpdated = time.Now().UTC()

		lastErr = h.registry.Swap(r.Context(), p, updated)
		if lastErr == nil {
			shared.WriteData(w, updated)
			return
		}
		if !errors.Is(lastErr, sentinel.ErrCASMismatch) {
			break
		}
	}
	shared.WriteError(w, shared.StoreError(lastErr))
}

func (h *AdminHandler) handleBlock(w http.ResponseWriter, r *http.Request) {
	h.setAccessStatus(w, r, party.AccessBlocked)
}

func (h *AdminHandler) handleUnblock(w http.ResponseWriter, r *http.Request) {
	h.setAccessStatus(w, r, party.AccessAllowed)
}
