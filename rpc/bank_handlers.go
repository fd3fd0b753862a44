package rpc

import (
	"net/http"
)

type addressParams struct {
	Address string `json:"address"`
}

type transferParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type mintParams struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type balanceJSON struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

type ratingJSON struct {
	Address     string  `json:"address"`
	TotalPoints uint64  `json:"totalPoints"`
	Count       uint64  `json:"count"`
	Average     float64 `json:"average"`
}

func (s *Server) handleReputationGetRating(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	agg, err := s.node.FreelancerRating(addr)
	if err != nil {
		writeJobsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, ratingJSON{
		Address:     params.Address,
		TotalPoints: agg.TotalPoints,
		Count:       agg.Count,
		Average:     agg.Average(),
	})
}

func (s *Server) handleBankGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params addressParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := s.node.GetBalance(addr)
	if err != nil {
		writeJobsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceJSON{
		Address: params.Address,
		Balance: account.Balance.String(),
		Nonce:   account.Nonce,
	})
}

func (s *Server) handleBankTransfer(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params transferParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	from, err := parseAddress(params.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.Transfer(from, to, amount); err != nil {
		writeJobsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleBankMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params mintParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeJobsInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.Mint(caller, to, amount); err != nil {
		writeJobsError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}
