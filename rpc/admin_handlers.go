package rpc

import (
	"net/http"
	"time"
)

type statusJSON struct {
	Paused             bool   `json:"paused"`
	Supply             uint64 `json:"supply"`
	Pool               string `json:"pool"`
	Admin              string `json:"admin,omitempty"`
	ChainID            uint64 `json:"chainId"`
	MaxMintAmount      uint64 `json:"maxMintAmount"`
	MaxTransfers       uint64 `json:"maxTransfers"`
	OracleDecimals     uint8  `json:"oracleDecimals"`
	MaxQuoteAgeSeconds uint64 `json:"maxQuoteAgeSeconds"`
}

func (s *Server) handleLedgerPause(w http.ResponseWriter, req *RPCRequest) {
	s.handleSetPaused(w, req, true)
}

func (s *Server) handleLedgerResume(w http.ResponseWriter, req *RPCRequest) {
	s.handleSetPaused(w, req, false)
}

func (s *Server) handleSetPaused(w http.ResponseWriter, req *RPCRequest, paused bool) {
	var params struct {
		Caller string `json:"caller"`
	}
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	caller, err := parseAddress(params.Caller, "caller")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if paused {
		err = s.ledger.Pause(caller)
	} else {
		err = s.ledger.Resume(caller)
	}
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"paused": paused})
}

func (s *Server) handleLedgerStatus(w http.ResponseWriter, req *RPCRequest) {
	if !requireNoParams(w, req) {
		return
	}
	paused, err := s.ledger.Paused()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	supply, err := s.ledger.Supply()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	pool, err := s.ledger.PoolBalance()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	admin, haveAdmin, err := s.ledger.Admin()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	params := s.ledger.Params()
	status := statusJSON{
		Paused:             paused,
		Supply:             supply,
		Pool:               bigString(pool),
		ChainID:            params.ChainID,
		MaxMintAmount:      params.MaxMintAmount,
		MaxTransfers:       params.MaxTransfers,
		OracleDecimals:     params.OracleDecimals,
		MaxQuoteAgeSeconds: uint64(params.MaxQuoteAge / time.Second),
	}
	if haveAdmin {
		status.Admin = addressString(admin)
	}
	writeResult(w, req.ID, status)
}
