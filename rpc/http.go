package rpc

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"littercoin/core"
	"littercoin/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

// ServerConfig carries the transport policy for the JSON-RPC listener.
type ServerConfig struct {
	// AuthToken guards mutating coin methods. Empty disables those methods
	// rather than exposing them unauthenticated.
	AuthToken string
	// AdminJWTSecret verifies HS256 bearer tokens carrying the admin scope.
	AdminJWTSecret string
	// AdminJWTIssuer, when set, must match the token issuer claim.
	AdminJWTIssuer string
	// RatePerMinute caps mutating requests per client address. Zero applies
	// the default.
	RatePerMinute float64
	// RateBurst is the short-term burst allowance per client.
	RateBurst int
}

// Server exposes the ledger over a single JSON-RPC 2.0 endpoint plus a
// websocket event stream.
type Server struct {
	ledger    *core.Ledger
	log       *slog.Logger
	authToken string
	admin     *adminAuth
	limiter   *clientLimiter
}

// NewServer wires a JSON-RPC server around the ledger.
func NewServer(ledger *core.Ledger, cfg ServerConfig) *Server {
	return &Server{
		ledger:    ledger,
		log:       slog.Default().With("component", "rpc"),
		authToken: strings.TrimSpace(cfg.AuthToken),
		admin:     newAdminAuth(cfg.AdminJWTSecret, cfg.AdminJWTIssuer),
		limiter:   newClientLimiter(cfg.RatePerMinute, cfg.RateBurst),
	}
}

// Router returns the HTTP handler serving the RPC endpoint and the event
// stream.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	return mux
}

// Start serves the RPC endpoint until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return server.ListenAndServe()
}

// RPCRequest is a JSON-RPC 2.0 request envelope.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

// RPCResponse is a JSON-RPC 2.0 response envelope.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	started := time.Now()
	ok := s.dispatch(w, r, req)
	observability.RPC().Observe(req.Method, time.Since(started), ok)
}

// dispatch routes the request and reports whether the handler completed
// without an error response.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) bool {
	recorder := &statusRecorder{inner: w}
	switch req.Method {
	case "coin_mint":
		return s.mutating(recorder, r, req, s.handleCoinMint)
	case "coin_transfer":
		return s.mutating(recorder, r, req, s.handleCoinTransfer)
	case "coin_redeem":
		return s.mutating(recorder, r, req, s.handleCoinRedeem)
	case "coin_deposit":
		return s.mutating(recorder, r, req, s.handleCoinDeposit)
	case "coin_get":
		s.handleCoinGet(recorder, req)
	case "coin_listByOwner":
		s.handleCoinListByOwner(recorder, req)
	case "coin_supply":
		s.handleCoinSupply(recorder, req)
	case "coin_pool":
		s.handleCoinPool(recorder, req)
	case "coin_nonceUsed":
		s.handleCoinNonceUsed(recorder, req)
	case "coin_balance":
		s.handleCoinBalance(recorder, req)
	case "coin_rewardBalance":
		s.handleCoinRewardBalance(recorder, req)
	case "coin_receipt":
		s.handleCoinReceipt(recorder, req)
	case "coin_listReceipts":
		s.handleCoinListReceipts(recorder, req)
	case "merchant_mint":
		return s.adminOnly(recorder, r, req, s.handleMerchantMint)
	case "merchant_addExpiration":
		return s.adminOnly(recorder, r, req, s.handleMerchantAddExpiration)
	case "merchant_invalidate":
		return s.adminOnly(recorder, r, req, s.handleMerchantInvalidate)
	case "merchant_burn":
		return s.mutating(recorder, r, req, s.handleMerchantBurn)
	case "merchant_transfer":
		return s.mutating(recorder, r, req, s.handleMerchantTransfer)
	case "merchant_get":
		s.handleMerchantGet(recorder, req)
	case "merchant_isValid":
		s.handleMerchantIsValid(recorder, req)
	case "merchant_isExpired":
		s.handleMerchantIsExpired(recorder, req)
	case "ledger_pause":
		return s.adminOnly(recorder, r, req, s.handleLedgerPause)
	case "ledger_resume":
		return s.adminOnly(recorder, r, req, s.handleLedgerResume)
	case "ledger_status":
		s.handleLedgerStatus(recorder, req)
	default:
		writeError(recorder, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
	}
	return recorder.ok()
}

type handlerFunc func(w http.ResponseWriter, req *RPCRequest)

// mutating gates a handler behind the bearer token and the per-client rate
// limit.
func (s *Server) mutating(w *statusRecorder, r *http.Request, req *RPCRequest, next handlerFunc) bool {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return false
	}
	if !s.limiter.allow(clientSource(r)) {
		observability.RPC().RecordThrottle("rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
		return false
	}
	next(w, req)
	return w.ok()
}

// adminOnly gates a handler behind a JWT carrying the admin scope.
func (s *Server) adminOnly(w *statusRecorder, r *http.Request, req *RPCRequest, next handlerFunc) bool {
	if authErr := s.admin.require(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return false
	}
	next(w, req)
	return w.ok()
}

func (s *Server) requireAuth(r *http.Request) *RPCError {
	if s.authToken == "" {
		return &RPCError{Code: codeUnauthorized, Message: "RPC authentication token not configured"}
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	return nil
}

// statusRecorder tracks whether a handler wrote an error status so dispatch
// can report the outcome to metrics.
type statusRecorder struct {
	inner  http.ResponseWriter
	status int
}

func (r *statusRecorder) Header() http.Header { return r.inner.Header() }

func (r *statusRecorder) Write(b []byte) (int, error) { return r.inner.Write(b) }

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.inner.WriteHeader(status)
}

func (r *statusRecorder) ok() bool { return r.status == 0 || r.status < 400 }
