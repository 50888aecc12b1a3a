package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/agberohq/agbero/internal/domain"
	"github.com/agberohq/agbero/internal/ledger"
	"github.com/agberohq/agbero/internal/server/middleware"
)

// BondHandler exposes the bond lifecycle over HTTP.
type BondHandler struct {
	ledger *ledger.Ledger
	logger *slog.Logger
}

// NewBondHandler creates a BondHandler.
func NewBondHandler(l *ledger.Ledger, logger *slog.Logger) *BondHandler {
	return &BondHandler{
		ledger: l,
		logger: logger.With(slog.String("handler", "bond")),
	}
}

type createBondRequest struct {
	ID               string    `json:"id"`
	Worker           string    `json:"worker"`
	TaskDescription  string    `json:"task_description"`
	CollateralAmount float64   `json:"collateral_amount"`
	Deadline         time.Time `json:"deadline"`
}

// CreateBond handles POST /api/bonds. The authenticated caller becomes the
// principal; a missing id is generated server-side.
func (h *BondHandler) CreateBond(w http.ResponseWriter, r *http.Request) {
	var req createBondRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Worker == "" {
		writeError(w, http.StatusBadRequest, "worker is required")
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	caller := middleware.CallerIdentity(r.Context())
	b, err := h.ledger.CreateBond(r.Context(), caller, ledger.CreateParams{
		ID:               req.ID,
		Worker:           req.Worker,
		TaskDescription:  req.TaskDescription,
		CollateralAmount: req.CollateralAmount,
		Deadline:         req.Deadline,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// StakeCollateral handles POST /api/bonds/{id}/stake.
func (h *BondHandler) StakeCollateral(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerIdentity(r.Context())
	b, err := h.ledger.StakeCollateral(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type submitProofRequest struct {
	ProofURI string `json:"proof_uri"`
}

// SubmitProof handles POST /api/bonds/{id}/proof.
func (h *BondHandler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	var req submitProofRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller := middleware.CallerIdentity(r.Context())
	b, err := h.ledger.SubmitProof(r.Context(), caller, r.PathValue("id"), req.ProofURI)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type voteRequest struct {
	Approve bool `json:"approve"`
}

// CastVote handles POST /api/bonds/{id}/votes.
func (h *BondHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	caller := middleware.CallerIdentity(r.Context())
	b, err := h.ledger.VerifyWork(r.Context(), caller, r.PathValue("id"), req.Approve)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// FinalizeBond handles POST /api/bonds/{id}/finalize.
func (h *BondHandler) FinalizeBond(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerIdentity(r.Context())
	b, err := h.ledger.FinalizeBond(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// EmergencySlash handles POST /api/bonds/{id}/slash.
func (h *BondHandler) EmergencySlash(w http.ResponseWriter, r *http.Request) {
	caller := middleware.CallerIdentity(r.Context())
	b, err := h.ledger.EmergencySlash(r.Context(), caller, r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GetBond handles GET /api/bonds/{id}.
func (h *BondHandler) GetBond(w http.ResponseWriter, r *http.Request) {
	b, err := h.ledger.GetBond(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// ListVotes handles GET /api/bonds/{id}/votes.
func (h *BondHandler) ListVotes(w http.ResponseWriter, r *http.Request) {
	b, err := h.ledger.GetBond(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b.Votes)
}

// ListBonds handles GET /api/bonds with optional status, worker, and
// principal filters.
func (h *BondHandler) ListBonds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := parseListOpts(r)

	bonds, err := h.ledger.ListBonds(r.Context(), domain.BondFilter{
		Status:    domain.BondStatus(q.Get("status")),
		Worker:    q.Get("worker"),
		Principal: q.Get("principal"),
		Limit:     opts.Limit,
		Offset:    opts.Offset,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if bonds == nil {
		bonds = []domain.Bond{}
	}
	writeJSON(w, http.StatusOK, bonds)
}
