package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"jobboard/core"
	"jobboard/core/types"
	"jobboard/crypto"
	"jobboard/native/bank"
	"jobboard/native/jobs"
)

const (
	codeJobsInvalidParams = -32021
	codeJobsNotFound      = -32022
	codeJobsForbidden     = -32023
	codeJobsConflict      = -32024
	codeJobsInternal      = -32025
)

type jobsPostParams struct {
	Caller      string `json:"caller"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Budget      string `json:"budget"`
}

type jobsIDParams struct {
	ID *uint64 `json:"id"`
}

type jobsActorParams struct {
	ID     *uint64 `json:"id"`
	Caller string  `json:"caller"`
}

type jobsEscrowParams struct {
	ID     *uint64 `json:"id"`
	Amount string  `json:"amount"`
	Caller string  `json:"caller"`
}

type jobsReleaseParams struct {
	ID     *uint64 `json:"id"`
	Rating uint8   `json:"rating"`
	Caller string  `json:"caller"`
}

type listEventsParams struct {
	Prefix string `json:"prefix,omitempty"`
	Limit  *int   `json:"limit,omitempty"`
}

type jobJSON struct {
	ID            uint64  `json:"id"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	Budget        string  `json:"budget"`
	Employer      string  `json:"employer"`
	Freelancer    *string `json:"freelancer,omitempty"`
	Status        string  `json:"status"`
	Deadline      int64   `json:"deadline,omitempty"`
	WorkCompleted bool    `json:"workCompleted"`
	Rating        uint8   `json:"rating,omitempty"`
	CreatedAt     int64   `json:"createdAt"`
	Escrowed      string  `json:"escrowed,omitempty"`
}

func jobToJSON(job *jobs.Job) *jobJSON {
	if job == nil {
		return nil
	}
	out := &jobJSON{
		ID:            job.ID,
		Title:         job.Title,
		Description:   job.Description,
		Budget:        job.Budget.String(),
		Employer:      crypto.NewAddress(crypto.JobPrefix, job.Employer[:]).String(),
		Status:        job.Status.String(),
		Deadline:      job.Deadline,
		WorkCompleted: job.WorkCompleted,
		Rating:        job.Rating,
		CreatedAt:     job.CreatedAt,
	}
	if job.Freelancer != ([20]byte{}) {
		freelancer := crypto.NewAddress(crypto.JobPrefix, job.Freelancer[:]).String()
		out.Freelancer = &freelancer
	}
	return out
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func writeJobsError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeJobsNotFound, "not_found", err.Error())
	case errors.Is(err, jobs.ErrUnauthorized), errors.Is(err, core.ErrMintUnauthorized):
		writeError(w, http.StatusForbidden, id, codeJobsForbidden, "forbidden", err.Error())
	case errors.Is(err, jobs.ErrInvalidInput), errors.Is(err, jobs.ErrInvalidRating),
		errors.Is(err, bank.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, id, codeJobsInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, jobs.ErrAlreadyAssigned),
		errors.Is(err, jobs.ErrAlreadyCompleted),
		errors.Is(err, jobs.ErrNotAssigned),
		errors.Is(err, jobs.ErrEscrowRequired),
		errors.Is(err, jobs.ErrAmountMismatch),
		errors.Is(err, jobs.ErrWorkNotCompleted),
		errors.Is(err, jobs.ErrWorkAlreadyCompleted),
		errors.Is(err, jobs.ErrDeadlineNotReached),
		errors.Is(err, jobs.ErrDeadlinePassed),
		errors.Is(err, jobs.ErrInsufficientBalance),
		errors.Is(err, bank.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, id, codeJobsConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeJobsInternal, "internal_error", err.Error())
	}
}

func (s *Server) handleJobsPost(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params jobsPostParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	budget, err := parsePositiveBigInt(params.Budget)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	job, err := s.node.PostJob(params.Title, params.Description, budget, caller)
	if err != nil {
		writeJobsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, jobToJSON(job))
}

func (s *Server) handleJobsGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params jobsIDParams
	if err := decodeSingleParam(req, &params); err != nil || params.ID == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", "job id required")
		return
	}
	job, err := s.node.GetJob(*params.ID)
	if err != nil {
		writeJobsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, jobToJSON(job))
}

func (s *Server) handleJobsList(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) != 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", "no parameters expected")
		return
	}
	listings, err := s.node.ListJobs()
	if err != nil {
		writeJobsError(w, req.ID, err)
		return
	}
	out := make([]*jobJSON, 0, len(listings))
	for _, listing := range listings {
		view := jobToJSON(listing.Job)
		if listing.Escrowed != nil && listing.Escrowed.Sign() > 0 {
			view.Escrowed = listing.Escrowed.String()
		}
		out = append(out, view)
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleJobsGetCount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	count, err := s.node.JobCount()
	if err != nil {
		writeJobsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, count)
}

func (s *Server) handleJobsGetEscrowed(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params jobsIDParams
	if err := decodeSingleParam(req, &params); err != nil || params.ID == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", "job id required")
		return
	}
	escrowed, err := s.node.Escrowed(*params.ID)
	if err != nil {
		writeJobsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, escrowed.String())
}

func (s *Server) handleJobsEscrow(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params jobsEscrowParams
	if err := decodeSingleParam(req, &params); err != nil || params.ID == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", "job id required")
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.EscrowFunds(*params.ID, amount, caller); err != nil {
		writeJobsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleJobsApply(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleJobsTransition(w, r, req, s.node.ApplyForJob)
}

func (s *Server) handleJobsCompleteWork(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleJobsTransition(w, r, req, s.node.CompleteWork)
}

func (s *Server) handleJobsRefund(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.handleJobsTransition(w, r, req, s.node.RefundEmployer)
}

func (s *Server) handleJobsTransition(w http.ResponseWriter, _ *http.Request, req *RPCRequest, fn func(uint64, [20]byte) error) {
	var params jobsActorParams
	if err := decodeSingleParam(req, &params); err != nil || params.ID == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", "job id required")
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := fn(*params.ID, caller); err != nil {
		writeJobsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleJobsRelease(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params jobsReleaseParams
	if err := decodeSingleParam(req, &params); err != nil || params.ID == nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", "job id required")
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.ReleasePayment(*params.ID, params.Rating, caller); err != nil {
		writeJobsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleJobsListEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params := listEventsParams{}
	if len(req.Params) > 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", "at most one parameter object expected")
		return
	}
	if len(req.Params) == 1 {
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	log := s.node.Events()
	filtered := make([]*types.Event, 0, len(log))
	for _, evt := range log {
		if params.Prefix != "" && !strings.HasPrefix(evt.Type, params.Prefix) {
			continue
		}
		filtered = append(filtered, evt)
	}
	if params.Limit != nil && *params.Limit >= 0 && len(filtered) > *params.Limit {
		filtered = filtered[len(filtered)-*params.Limit:]
	}
	writeResult(w, req.ID, filtered)
}
