package merchant

import "errors"

var (
	// ErrUnauthorized rejects registry administration by anyone but the
	// ledger admin.
	ErrUnauthorized = errors.New("merchant: caller is not the ledger admin")
	// ErrInvalidHolder rejects credential issuance to the zero address.
	ErrInvalidHolder = errors.New("merchant: holder must not be the zero address")
	// ErrExpiryNotFuture rejects credentials whose expiry is not strictly in
	// the future.
	ErrExpiryNotFuture = errors.New("merchant: expiry must be in the future")
	// ErrAlreadyHolds rejects a second credential for an account that already
	// holds one.
	ErrAlreadyHolds = errors.New("merchant: holder already has a credential")
	// ErrTokenNotFound indicates the credential does not exist or was burned.
	ErrTokenNotFound = errors.New("merchant: credential not found")
	// ErrZeroAdditionalTime rejects renewals that do not strictly extend the
	// expiry.
	ErrZeroAdditionalTime = errors.New("merchant: additional time must be positive")
	// ErrAlreadyExpired rejects invalidation of a credential that has already
	// lapsed.
	ErrAlreadyExpired = errors.New("merchant: credential already expired")
	// ErrNotHolder rejects a burn by anyone but the credential holder.
	ErrNotHolder = errors.New("merchant: caller does not hold this credential")
	// ErrTransfersDisabled rejects every credential transfer. Eligibility
	// tracks verified identity and is never tradeable.
	ErrTransfersDisabled = errors.New("merchant: credentials are not transferable")
)
