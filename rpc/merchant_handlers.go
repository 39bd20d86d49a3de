package rpc

import (
	"net/http"

	"littercoin/native/merchant"
)

type credentialJSON struct {
	ID        uint64 `json:"id"`
	Holder    string `json:"holder"`
	Status    string `json:"status"`
	IssuedAt  int64  `json:"issuedAt"`
	ExpiresAt int64  `json:"expiresAt"`
}

func newCredentialJSON(credential *merchant.Credential) credentialJSON {
	if credential == nil {
		return credentialJSON{}
	}
	return credentialJSON{
		ID:        credential.ID,
		Holder:    addressString(credential.Holder),
		Status:    credential.Status.String(),
		IssuedAt:  credential.IssuedAt,
		ExpiresAt: credential.ExpiresAt,
	}
}

func (s *Server) handleMerchantMint(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller    string `json:"caller"`
		Holder    string `json:"holder"`
		ExpiresAt int64  `json:"expiresAt"`
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
	holder, err := parseAddress(params.Holder, "holder")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	credential, err := s.ledger.MerchantMint(caller, holder, params.ExpiresAt)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newCredentialJSON(credential))
}

func (s *Server) handleMerchantAddExpiration(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller            string `json:"caller"`
		TokenID           uint64 `json:"tokenId"`
		AdditionalSeconds int64  `json:"additionalSeconds"`
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
	credential, err := s.ledger.MerchantAddExpiration(caller, params.TokenID, params.AdditionalSeconds)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newCredentialJSON(credential))
}

func (s *Server) handleMerchantInvalidate(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller  string `json:"caller"`
		TokenID uint64 `json:"tokenId"`
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
	credential, err := s.ledger.MerchantInvalidate(caller, params.TokenID)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newCredentialJSON(credential))
}

func (s *Server) handleMerchantBurn(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller  string `json:"caller"`
		TokenID uint64 `json:"tokenId"`
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
	if err := s.ledger.MerchantBurn(caller, params.TokenID); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"tokenId": params.TokenID,
		"burned":  true,
	})
}

func (s *Server) handleMerchantTransfer(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller  string `json:"caller"`
		TokenID uint64 `json:"tokenId"`
		To      string `json:"to"`
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
	to, err := parseAddress(params.To, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if err := s.ledger.MerchantTransfer(caller, params.TokenID, to); err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"transferred": true})
}

func (s *Server) handleMerchantGet(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		TokenID uint64 `json:"tokenId"`
	}
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	credential, err := s.ledger.MerchantCredential(params.TokenID)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newCredentialJSON(credential))
}

func (s *Server) handleMerchantIsValid(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Holder string `json:"holder"`
	}
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	holder, err := parseAddress(params.Holder, "holder")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	valid, err := s.ledger.MerchantIsValid(holder)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"valid": valid})
}

func (s *Server) handleMerchantIsExpired(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		TokenID uint64 `json:"tokenId"`
	}
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	expired, err := s.ledger.MerchantIsExpired(params.TokenID)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"expired": expired})
}
