package governance

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/assetpool/pool-engine/internal/model"
	"github.com/assetpool/pool-engine/internal/pool"
	"github.com/assetpool/pool-engine/internal/store"
)

// CreateProposalRequest is the JSON body for POST /pools/{poolID}/proposals.
type CreateProposalRequest struct {
	Proposer string              `json:"proposer"`
	Proposal CreateProposalInput `json:"proposal"`
}

// VoteRequest is the JSON body for POST .../proposals/{proposalID}/vote.
type VoteRequest struct {
	VoterAddress string `json:"voter_address"`
	Choice       string `json:"choice"` // for | against | abstain
}

// HandleCreateProposal handles POST /api/v1/pools/{poolID}/proposals.
func (e *Engine) HandleCreateProposal(w http.ResponseWriter, r *http.Request) {
	var req CreateProposalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Proposer == "" {
		writeError(w, "proposer is required", http.StatusBadRequest)
		return
	}

	proposal, err := e.CreateProposal(r.Context(), chi.URLParam(r, "poolID"), req.Proposer, req.Proposal)
	if err != nil {
		writeGovError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, proposal)
}

// HandleListProposals handles GET /api/v1/pools/{poolID}/proposals.
func (e *Engine) HandleListProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := e.ListProposals(r.Context(), chi.URLParam(r, "poolID"))
	if err != nil {
		writeGovError(w, err)
		return
	}
	if proposals == nil {
		proposals = []model.Proposal{}
	}
	writeJSON(w, http.StatusOK, proposals)
}

// HandleGetProposal handles GET .../proposals/{proposalID}.
func (e *Engine) HandleGetProposal(w http.ResponseWriter, r *http.Request) {
	proposal, err := e.GetProposal(r.Context(), chi.URLParam(r, "poolID"), chi.URLParam(r, "proposalID"))
	if err != nil {
		writeGovError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

// HandleVote handles POST .../proposals/{proposalID}/vote.
func (e *Engine) HandleVote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.VoterAddress == "" {
		writeError(w, "voter_address is required", http.StatusBadRequest)
		return
	}

	proposal, err := e.Vote(r.Context(), chi.URLParam(r, "poolID"), chi.URLParam(r, "proposalID"), req.VoterAddress, req.Choice)
	if err != nil {
		writeGovError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

// HandleExecute handles POST .../proposals/{proposalID}/execute.
func (e *Engine) HandleExecute(w http.ResponseWriter, r *http.Request) {
	proposal, err := e.Execute(r.Context(), chi.URLParam(r, "poolID"), chi.URLParam(r, "proposalID"))
	if err != nil {
		writeGovError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proposal)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeGovError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidProposal):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrInsufficientPower),
		errors.Is(err, ErrAlreadyVoted),
		errors.Is(err, ErrProposalClosed),
		errors.Is(err, pool.ErrPoolClosed):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}
