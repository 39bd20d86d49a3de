package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"littercoin/crypto"
	"littercoin/native/coin"
)

type coinJSON struct {
	ID            uint64 `json:"id"`
	Owner         string `json:"owner"`
	Status        string `json:"status"`
	Transfers     uint64 `json:"transfers"`
	Nonce         string `json:"nonce"`
	MintedAt      int64  `json:"mintedAt"`
	TransferredAt int64  `json:"transferredAt,omitempty"`
	BurnedAt      int64  `json:"burnedAt,omitempty"`
}

func newCoinJSON(c *coin.Coin) coinJSON {
	if c == nil {
		return coinJSON{}
	}
	return coinJSON{
		ID:            c.ID,
		Owner:         addressString(c.Owner),
		Status:        c.Status.String(),
		Transfers:     c.Transfers,
		Nonce:         c.Nonce,
		MintedAt:      c.MintedAt,
		TransferredAt: c.TransferredAt,
		BurnedAt:      c.BurnedAt,
	}
}

type mintResultJSON struct {
	Beneficiary string   `json:"beneficiary"`
	FirstID     uint64   `json:"firstId"`
	LastID      uint64   `json:"lastId"`
	CoinIDs     []uint64 `json:"coinIds"`
	Nonce       string   `json:"nonce"`
	VoucherHash string   `json:"voucherHash"`
}

func newMintResultJSON(result *coin.MintResult) mintResultJSON {
	if result == nil {
		return mintResultJSON{}
	}
	return mintResultJSON{
		Beneficiary: addressString(result.Beneficiary),
		FirstID:     result.FirstID,
		LastID:      result.LastID,
		CoinIDs:     append([]uint64{}, result.CoinIDs...),
		Nonce:       result.Nonce,
		VoucherHash: result.VoucherHash,
	}
}

type receiptJSON struct {
	ID           string   `json:"id"`
	Redeemer     string   `json:"redeemer"`
	CoinIDs      []uint64 `json:"coinIds"`
	Payout       string   `json:"payout"`
	PoolBefore   string   `json:"poolBefore"`
	PoolAfter    string   `json:"poolAfter"`
	SupplyBefore uint64   `json:"supplyBefore"`
	SupplyAfter  uint64   `json:"supplyAfter"`
	CreatedAt    int64    `json:"createdAt"`
}

func newReceiptJSON(receipt *coin.RedemptionReceipt) receiptJSON {
	if receipt == nil {
		return receiptJSON{}
	}
	return receiptJSON{
		ID:           receipt.ID,
		Redeemer:     addressString(receipt.Redeemer),
		CoinIDs:      append([]uint64{}, receipt.CoinIDs...),
		Payout:       bigString(receipt.Payout),
		PoolBefore:   bigString(receipt.PoolBefore),
		PoolAfter:    bigString(receipt.PoolAfter),
		SupplyBefore: receipt.SupplyBefore,
		SupplyAfter:  receipt.SupplyAfter,
		CreatedAt:    receipt.CreatedAt,
	}
}

type depositJSON struct {
	Depositor string `json:"depositor"`
	Value     string `json:"value"`
	Price     string `json:"price"`
	Decimals  uint8  `json:"decimals"`
	Reward    string `json:"reward"`
	Pool      string `json:"pool"`
}

func newDepositJSON(result *coin.DepositResult) depositJSON {
	if result == nil {
		return depositJSON{}
	}
	return depositJSON{
		Depositor: addressString(result.Depositor),
		Value:     bigString(result.Value),
		Price:     bigString(result.Price),
		Decimals:  result.Decimals,
		Reward:    bigString(result.Reward),
		Pool:      bigString(result.Pool),
	}
}

func addressString(addr [20]byte) string {
	return crypto.NewAddress(addr).String()
}

func bigString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func parseAddress(value, field string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("%s required", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%s: %w", field, err)
	}
	return addr.Bytes(), nil
}

func decodeSingleParam(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected a single params object")
	}
	if err := json.Unmarshal(req.Params[0], out); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func requireNoParams(w http.ResponseWriter, req *RPCRequest) bool {
	if len(req.Params) > 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "method takes no parameters", nil)
		return false
	}
	return true
}

// decodeVoucherParam accepts the voucher either as a JSON object or as a
// string carrying the serialized object, mirroring what signing tools emit.
func decodeVoucherParam(raw json.RawMessage, voucher *coin.MintVoucher) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return fmt.Errorf("voucher payload required")
	}
	if trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return fmt.Errorf("voucher payload: %w", err)
		}
		trimmed = []byte(encoded)
	}
	if err := json.Unmarshal(trimmed, voucher); err != nil {
		return fmt.Errorf("voucher payload: %w", err)
	}
	return nil
}

func (s *Server) handleCoinMint(w http.ResponseWriter, req *RPCRequest) {
	if len(req.Params) != 2 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "expected [voucher, signature] params", nil)
		return
	}
	var voucher coin.MintVoucher
	if err := decodeVoucherParam(req.Params[0], &voucher); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	var sigHex string
	if err := json.Unmarshal(req.Params[1], &sigHex); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "signature must be a hex string", nil)
		return
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(sigHex), "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid signature encoding", nil)
		return
	}
	result, err := s.ledger.Mint(voucher.Beneficiary, &voucher, sig)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newMintResultJSON(result))
}

func (s *Server) handleCoinTransfer(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		CoinID uint64 `json:"coinId"`
		From   string `json:"from"`
		To     string `json:"to"`
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
	from, err := parseAddress(params.From, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	to, err := parseAddress(params.To, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	moved, err := s.ledger.Transfer(caller, params.CoinID, from, to)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newCoinJSON(moved))
}

func (s *Server) handleCoinRedeem(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller  string   `json:"caller"`
		CoinIDs []uint64 `json:"coinIds"`
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
	receipt, err := s.ledger.Redeem(caller, params.CoinIDs)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newReceiptJSON(receipt))
}

func (s *Server) handleCoinDeposit(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Caller string `json:"caller"`
		Value  string `json:"value"`
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
	trimmed := strings.TrimSpace(params.Value)
	if trimmed == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "value required", nil)
		return
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, fmt.Sprintf("invalid value %q", params.Value), nil)
		return
	}
	result, err := s.ledger.Deposit(caller, value)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newDepositJSON(result))
}

func (s *Server) handleCoinGet(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		ID uint64 `json:"id"`
	}
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	record, err := s.ledger.Coin(params.ID)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, newCoinJSON(record))
}

func (s *Server) handleCoinListByOwner(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Owner string `json:"owner"`
	}
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	owner, err := parseAddress(params.Owner, "owner")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	coins, err := s.ledger.CoinsByOwner(owner)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	payload := make([]coinJSON, 0, len(coins))
	for _, record := range coins {
		payload = append(payload, newCoinJSON(record))
	}
	writeResult(w, req.ID, payload)
}

func (s *Server) handleCoinSupply(w http.ResponseWriter, req *RPCRequest) {
	if !requireNoParams(w, req) {
		return
	}
	supply, err := s.ledger.Supply()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"supply": supply})
}

func (s *Server) handleCoinPool(w http.ResponseWriter, req *RPCRequest) {
	if !requireNoParams(w, req) {
		return
	}
	pool, err := s.ledger.PoolBalance()
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"pool": bigString(pool)})
}

func (s *Server) handleCoinNonceUsed(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Nonce string `json:"nonce"`
	}
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if strings.TrimSpace(params.Nonce) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "nonce required", nil)
		return
	}
	used, err := s.ledger.NonceUsed(params.Nonce)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"used": used})
}

func (s *Server) handleCoinBalance(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
	}
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	account, err := s.ledger.Account(addr)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address": addressString(addr),
		"balance": bigString(account.Balance),
		"rewards": bigString(account.Rewards),
	})
}

func (s *Server) handleCoinRewardBalance(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Address string `json:"address"`
	}
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	addr, err := parseAddress(params.Address, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	rewards, err := s.ledger.RewardBalance(addr)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"address": addressString(addr),
		"rewards": bigString(rewards),
	})
}

func (s *Server) handleCoinReceipt(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		ID string `json:"id"`
	}
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return
	}
	if strings.TrimSpace(params.ID) == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "receipt id required", nil)
		return
	}
	receipt, ok, err := s.ledger.Receipt(params.ID)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, "receipt not found", nil)
		return
	}
	writeResult(w, req.ID, newReceiptJSON(receipt))
}

func (s *Server) handleCoinListReceipts(w http.ResponseWriter, req *RPCRequest) {
	var params struct {
		Cursor   string `json:"cursor"`
		Limit    int    `json:"limit"`
		Redeemer string `json:"redeemer"`
	}
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
	}
	if strings.TrimSpace(params.Redeemer) != "" {
		redeemer, err := parseAddress(params.Redeemer, "redeemer")
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return
		}
		receipts, err := s.ledger.ReceiptsByRedeemer(redeemer)
		if err != nil {
			writeLedgerError(w, req.ID, err)
			return
		}
		writeResult(w, req.ID, receiptPage(receipts, ""))
		return
	}
	receipts, nextCursor, err := s.ledger.Receipts(params.Cursor, params.Limit)
	if err != nil {
		writeLedgerError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, receiptPage(receipts, nextCursor))
}

func receiptPage(receipts []*coin.RedemptionReceipt, nextCursor string) map[string]interface{} {
	payload := make([]receiptJSON, 0, len(receipts))
	for _, receipt := range receipts {
		payload = append(payload, newReceiptJSON(receipt))
	}
	return map[string]interface{}{
		"receipts":   payload,
		"nextCursor": nextCursor,
	}
}
