// Package handler is the thin HTTP layer over the proposal service.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/proposal/models"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
	"custodia/pkg/requestcontext"
)

// Service is the proposal operations surface the handler delegates to.
type Service interface {
	Propose(ctx context.Context, registryID id.RegistryID, proposer, recipient id.PartyID, amount int64, memo string) (*models.Proposal, error)
	Get(ctx context.Context, key id.ProposalKey) (*models.Proposal, error)
	List(ctx context.Context, registryID id.RegistryID) ([]*models.Proposal, error)
	Approve(ctx context.Context, key id.ProposalKey, caller id.PartyID) (*models.Proposal, error)
	Reject(ctx context.Context, key id.ProposalKey, caller id.PartyID) (*models.Proposal, error)
	Execute(ctx context.Context, key id.ProposalKey, caller id.PartyID) (*models.Proposal, error)
	Cancel(ctx context.Context, key id.ProposalKey, caller id.PartyID) (*models.Proposal, error)
}

// Handler translates HTTP to proposal service calls.
type Handler struct {
	proposals Service
	logger    *slog.Logger
}

func New(proposals Service, logger *slog.Logger) *Handler {
	return &Handler{proposals: proposals, logger: logger}
}

// Register wires the proposal routes under their registry. The party-auth
// middleware runs on the parent router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/registries/{registryID}/proposals", func(r chi.Router) {
		r.Post("/", h.handlePropose)
		r.Get("/", h.handleList)
		r.Get("/{seq}", h.handleGet)
		r.Post("/{seq}/approve", h.handleApprove)
		r.Post("/{seq}/reject", h.handleReject)
		r.Post("/{seq}/execute", h.handleExecute)
		r.Post("/{seq}/cancel", h.handleCancel)
	})
}

type proposeRequest struct {
	Recipient string `json:"recipient"`
	Amount    int64  `json:"amount"`
	Memo      string `json:"memo"`
}

type proposalResponse struct {
	Registry   string     `json:"registry_id"`
	Seq        uint64     `json:"seq"`
	Proposer   string     `json:"proposer"`
	Recipient  string     `json:"recipient"`
	Amount     int64      `json:"amount"`
	Memo       string     `json:"memo,omitempty"`
	Status     string     `json:"status"`
	Approvals  []string   `json:"approvals"`
	Rejections []string   `json:"rejections"`
	CreatedAt  time.Time  `json:"created_at"`
	ExecutedAt *time.Time `json:"executed_at,omitempty"`
}

func toResponse(p *models.Proposal) proposalResponse {
	return proposalResponse{
		Registry:   p.Registry.String(),
		Seq:        p.Seq,
		Proposer:   p.Proposer.String(),
		Recipient:  p.Recipient.String(),
		Amount:     p.Amount,
		Memo:       p.Memo,
		Status:     string(p.Status),
		Approvals:  partyStrings(p.Approvers()),
		Rejections: partyStrings(p.Rejecters()),
		CreatedAt:  p.CreatedAt,
		ExecutedAt: p.ExecutedAt,
	}
}

func (h *Handler) handlePropose(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registryID, err := pathRegistryID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req proposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	recipient, err := id.ParsePartyID(req.Recipient)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.proposals.Propose(ctx, registryID, requestcontext.Party(ctx), recipient, req.Amount, req.Memo)
	if err != nil {
		h.logFailure(ctx, "propose", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toResponse(p))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registryID, err := pathRegistryID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	proposals, err := h.proposals.List(ctx, registryID)
	if err != nil {
		h.logFailure(ctx, "list proposals", err)
		httputil.WriteError(w, err)
		return
	}
	out := make([]proposalResponse, len(proposals))
	for i, p := range proposals {
		out[i] = toResponse(p)
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, "get proposal", h.proposals.Get)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "approve", h.proposals.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "reject", h.proposals.Reject)
}

func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "execute", h.proposals.Execute)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, "cancel", h.proposals.Cancel)
}

// respond serves a read of one proposal.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, op string, call func(context.Context, id.ProposalKey) (*models.Proposal, error)) {
	ctx := r.Context()
	key, err := pathProposalKey(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := call(ctx, key)
	if err != nil {
		h.logFailure(ctx, op, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
}

// act serves a caller-attributed mutation of one proposal.
func (h *Handler) act(w http.ResponseWriter, r *http.Request, op string, call func(context.Context, id.ProposalKey, id.PartyID) (*models.Proposal, error)) {
	ctx := r.Context()
	key, err := pathProposalKey(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	p, err := call(ctx, key, requestcontext.Party(ctx))
	if err != nil {
		h.logFailure(ctx, op, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toResponse(p))
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

func pathProposalKey(r *http.Request) (id.ProposalKey, error) {
	registryID, err := pathRegistryID(r)
	if err != nil {
		return id.ProposalKey{}, err
	}
	seq, err := strconv.ParseUint(chi.URLParam(r, "seq"), 10, 64)
	if err != nil || seq == 0 {
		return id.ProposalKey{}, dErrors.New(dErrors.CodeBadRequest, "invalid proposal sequence")
	}
	return id.ProposalKey{Registry: registryID, Seq: seq}, nil
}

func partyStrings(parties []id.PartyID) []string {
	out := make([]string, 0, len(parties))
	for _, p := range parties {
		out = append(out, p.String())
	}
	return out
}
