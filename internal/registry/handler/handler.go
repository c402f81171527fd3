// Package handler is the thin HTTP layer over the registry service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/registry/models"
	"custodia/internal/registry/service"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
	"custodia/pkg/requestcontext"
)

// Service is the registry operations surface the handler delegates to.
type Service interface {
	Create(ctx context.Context, authority id.PartyID, owners []id.PartyID, threshold int) (*models.Registry, error)
	Info(ctx context.Context, registryID id.RegistryID) (*service.Info, error)
	AddOwner(ctx context.Context, registryID id.RegistryID, caller, owner id.PartyID) error
	RemoveOwner(ctx context.Context, registryID id.RegistryID, caller, owner id.PartyID) error
	ChangeThreshold(ctx context.Context, registryID id.RegistryID, caller id.PartyID, threshold int) error
	Deposit(ctx context.Context, registryID id.RegistryID, caller id.PartyID, amount int64) error
}

// Handler translates HTTP to registry service calls.
type Handler struct {
	registries Service
	logger     *slog.Logger
}

func New(registries Service, logger *slog.Logger) *Handler {
	return &Handler{registries: registries, logger: logger}
}

// Register wires the registry routes. The party-auth middleware runs on the
// parent router, so every handler can rely on an authenticated caller.
func (h *Handler) Register(r chi.Router) {
	r.Post("/registries", h.handleCreate)
	r.Get("/registries/{registryID}", h.handleInfo)
	r.Post("/registries/{registryID}/owners", h.handleAddOwner)
	r.Delete("/registries/{registryID}/owners/{party}", h.handleRemoveOwner)
	r.Put("/registries/{registryID}/threshold", h.handleChangeThreshold)
	r.Post("/registries/{registryID}/deposit", h.handleDeposit)
}

type createRequest struct {
	Owners    []string `json:"owners"`
	Threshold int      `json:"threshold"`
}

type registryResponse struct {
	ID            string    `json:"id"`
	Owners        []string  `json:"owners"`
	Threshold     int       `json:"threshold"`
	ProposalCount uint64    `json:"proposal_count"`
	Balance       int64     `json:"balance"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.Party(ctx)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	owners, err := parseParties(req.Owners)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	reg, err := h.registries.Create(ctx, caller, owners, req.Threshold)
	if err != nil {
		h.logFailure(ctx, "create registry", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, registryResponse{
		ID:        reg.ID.String(),
		Owners:    partyStrings(reg.Owners),
		Threshold: reg.Threshold,
		CreatedAt: reg.CreatedAt,
		UpdatedAt: reg.UpdatedAt,
	})
}

func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registryID, err := pathRegistryID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	info, err := h.registries.Info(ctx, registryID)
	if err != nil {
		h.logFailure(ctx, "registry info", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, registryResponse{
		ID:            info.ID.String(),
		Owners:        partyStrings(info.Owners),
		Threshold:     info.Threshold,
		ProposalCount: info.ProposalCount,
		Balance:       info.Balance,
		CreatedAt:     info.CreatedAt,
		UpdatedAt:     info.UpdatedAt,
	})
}

type addOwnerRequest struct {
	Owner string `json:"owner"`
}

func (h *Handler) handleAddOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registryID, err := pathRegistryID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req addOwnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	owner, err := id.ParsePartyID(req.Owner)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.registries.AddOwner(ctx, registryID, requestcontext.Party(ctx), owner); err != nil {
		h.logFailure(ctx, "add owner", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRemoveOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registryID, err := pathRegistryID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	owner, err := id.ParsePartyID(chi.URLParam(r, "party"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.registries.RemoveOwner(ctx, registryID, requestcontext.Party(ctx), owner); err != nil {
		h.logFailure(ctx, "remove owner", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type changeThresholdRequest struct {
	Threshold int `json:"threshold"`
}

func (h *Handler) handleChangeThreshold(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registryID, err := pathRegistryID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req changeThresholdRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.registries.ChangeThreshold(ctx, registryID, requestcontext.Party(ctx), req.Threshold); err != nil {
		h.logFailure(ctx, "change threshold", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type depositRequest struct {
	Amount int64 `json:"amount"`
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registryID, err := pathRegistryID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if err := h.registries.Deposit(ctx, registryID, requestcontext.Party(ctx), req.Amount); err != nil {
		h.logFailure(ctx, "deposit", err)
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logFailure(ctx context.Context, op string, err error) {
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
}

func pathRegistryID(r *http.Request) (id.RegistryID, error) {
	return id.ParseRegistryID(chi.URLParam(r, "registryID"))
}

func parseParties(raw []string) ([]id.PartyID, error) {
	out := make([]id.PartyID, len(raw))
	for i, s := range raw {
		p, err := id.ParsePartyID(s)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func partyStrings(parties []id.PartyID) []string {
	out := make([]string, len(parties))
	for i, p := range parties {
		out[i] = p.String()
	}
	return out
}
