package rpc

import (
	"errors"
	"net/http"

	"littercoin/core"
	"littercoin/native/coin"
	"littercoin/native/merchant"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeNonceReplay    = -32010
	codeRateLimited    = -32020
	codePaused         = -32030
	codeAuthorization  = -32031
	codeEligibility    = -32032
	codeStateConflict  = -32033
	codeResource       = -32034
	codePayoutFailed   = -32035
	codeInFlight       = -32036
	codeOracle         = -32037
	codeNotFound       = -32040
)

// ledgerErrorStatus maps a ledger sentinel error onto the HTTP status and
// JSON-RPC error code surfaced to callers. Unknown errors fall through to a
// generic server error so internals never leak a misleading code.
func ledgerErrorStatus(err error) (int, int) {
	switch {
	case errors.Is(err, coin.ErrPaused):
		return http.StatusServiceUnavailable, codePaused
	case errors.Is(err, core.ErrOperationInFlight):
		return http.StatusServiceUnavailable, codeInFlight
	case errors.Is(err, coin.ErrInvalidAmount),
		errors.Is(err, coin.ErrInvalidRecipient),
		errors.Is(err, coin.ErrEmptyRedemptionSet),
		errors.Is(err, merchant.ErrInvalidHolder),
		errors.Is(err, merchant.ErrExpiryNotFuture),
		errors.Is(err, merchant.ErrZeroAdditionalTime),
		errors.Is(err, core.ErrInvalidCaller):
		return http.StatusBadRequest, codeInvalidParams
	case errors.Is(err, coin.ErrNonceReplay):
		return http.StatusConflict, codeNonceReplay
	case errors.Is(err, coin.ErrInvalidSignature),
		errors.Is(err, coin.ErrAuthorizationExpired):
		return http.StatusUnauthorized, codeAuthorization
	case errors.Is(err, coin.ErrIneligibleMinter),
		errors.Is(err, coin.ErrIneligibleRedeemer),
		errors.Is(err, coin.ErrRecipientNotEligible):
		return http.StatusForbidden, codeEligibility
	case errors.Is(err, coin.ErrNotOwner),
		errors.Is(err, merchant.ErrNotHolder),
		errors.Is(err, merchant.ErrUnauthorized),
		errors.Is(err, core.ErrUnauthorized):
		return http.StatusForbidden, codeUnauthorized
	case errors.Is(err, coin.ErrCoinNotFound),
		errors.Is(err, merchant.ErrTokenNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, coin.ErrTransferLimitExceeded),
		errors.Is(err, coin.ErrCoinNotRedeemable),
		errors.Is(err, merchant.ErrAlreadyHolds),
		errors.Is(err, merchant.ErrAlreadyExpired),
		errors.Is(err, merchant.ErrTransfersDisabled):
		return http.StatusConflict, codeStateConflict
	case errors.Is(err, coin.ErrNoSupply),
		errors.Is(err, coin.ErrInsufficientPool):
		return http.StatusConflict, codeResource
	case errors.Is(err, coin.ErrOraclePriceInvalid):
		return http.StatusBadGateway, codeOracle
	case errors.Is(err, coin.ErrPayoutTransferFailed):
		return http.StatusBadGateway, codePayoutFailed
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func writeLedgerError(w http.ResponseWriter, id interface{}, err error) {
	status, code := ledgerErrorStatus(err)
	writeError(w, status, id, code, err.Error(), nil)
}
