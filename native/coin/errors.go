package coin

import "errors"

var (
	// ErrPaused rejects coin operations while the administrator has the
	// ledger halted.
	ErrPaused = errors.New("coin: ledger paused")
	// ErrInvalidAmount rejects mint amounts outside [1, MaxMintAmount] and
	// non-positive deposit values.
	ErrInvalidAmount = errors.New("coin: invalid amount")
	// ErrAuthorizationExpired rejects vouchers past their expiry.
	ErrAuthorizationExpired = errors.New("coin: authorization expired")
	// ErrNonceReplay rejects vouchers whose nonce was already consumed.
	ErrNonceReplay = errors.New("coin: nonce already used")
	// ErrIneligibleMinter rejects mints by current merchant credential
	// holders. Merchants redeem, they do not produce.
	ErrIneligibleMinter = errors.New("coin: minter holds merchant credential")
	// ErrInvalidSignature rejects vouchers whose signature is malformed or
	// does not recover to the administrator.
	ErrInvalidSignature = errors.New("coin: invalid signature")
	// ErrCoinNotFound indicates the referenced coin id does not exist.
	ErrCoinNotFound = errors.New("coin: coin not found")
	// ErrNotOwner indicates the caller does not own the referenced coin.
	ErrNotOwner = errors.New("coin: caller does not own coin")
	// ErrTransferLimitExceeded indicates the coin already consumed its
	// permitted transfers.
	ErrTransferLimitExceeded = errors.New("coin: transfer limit exceeded")
	// ErrInvalidRecipient rejects transfers to the zero address.
	ErrInvalidRecipient = errors.New("coin: invalid recipient")
	// ErrRecipientNotEligible rejects transfers to accounts without a
	// currently valid merchant credential.
	ErrRecipientNotEligible = errors.New("coin: recipient not eligible")
	// ErrIneligibleRedeemer rejects redemptions by callers without a
	// currently valid merchant credential.
	ErrIneligibleRedeemer = errors.New("coin: redeemer not eligible")
	// ErrEmptyRedemptionSet rejects redemptions naming no coins.
	ErrEmptyRedemptionSet = errors.New("coin: empty redemption set")
	// ErrNoSupply rejects redemptions while no coins are outstanding.
	ErrNoSupply = errors.New("coin: no circulating supply")
	// ErrInsufficientPool rejects redemptions while the payout pool is empty.
	ErrInsufficientPool = errors.New("coin: insufficient payout pool")
	// ErrCoinNotRedeemable indicates a coin in the redemption set has not
	// completed its transfer path or appears twice.
	ErrCoinNotRedeemable = errors.New("coin: coin not redeemable")
	// ErrPayoutTransferFailed indicates the outbound payout settlement
	// failed; the whole redemption rolls back.
	ErrPayoutTransferFailed = errors.New("coin: payout transfer failed")
	// ErrOraclePriceInvalid rejects deposits when the oracle quote is
	// non-positive, stale, or reported with unexpected decimals.
	ErrOraclePriceInvalid = errors.New("coin: oracle price invalid")
)
