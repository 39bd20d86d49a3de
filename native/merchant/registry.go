package merchant

import (
	"errors"
	"fmt"
	"time"

	"littercoin/core/events"
)

var errNilState = errors.New("merchant registry: state not configured")

type registryState interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	Admin() ([20]byte, bool, error)
}

// Registry manages persistence and retrieval of merchant credentials. It is
// deliberately not gated by the ledger pause flag: credential administration
// keeps working through an incident so eligibility can be revoked while coin
// operations are frozen.
type Registry struct {
	st      registryState
	emitter events.Emitter
	nowFn   func() int64
}

// NewRegistry creates a registry backed by the provided state manager.
func NewRegistry(st registryState) *Registry {
	return &Registry{
		st:      st,
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event emitter used to broadcast registry updates.
// Passing nil resets the emitter to a no-op implementation.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (r *Registry) SetNowFunc(now func() int64) {
	if now == nil {
		r.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	r.nowFn = now
}

func (r *Registry) emit(event events.Event) {
	if r == nil || r.emitter == nil || event == nil {
		return
	}
	r.emitter.Emit(event)
}

func (r *Registry) now() int64 {
	if r == nil || r.nowFn == nil {
		return time.Now().Unix()
	}
	return r.nowFn()
}

func (r *Registry) requireAdmin(caller [20]byte) error {
	admin, ok, err := r.st.Admin()
	if err != nil {
		return err
	}
	if !ok || caller != admin {
		return ErrUnauthorized
	}
	return nil
}

// Mint issues a credential to the holder with the supplied absolute expiry.
// Admin only; one credential per holder.
func (r *Registry) Mint(caller [20]byte, holder [20]byte, expiresAt int64) (*Credential, error) {
	if r == nil || r.st == nil {
		return nil, errNilState
	}
	if err := r.requireAdmin(caller); err != nil {
		return nil, err
	}
	if holder == ([20]byte{}) {
		return nil, ErrInvalidHolder
	}
	now := r.now()
	if expiresAt <= now {
		return nil, ErrExpiryNotFuture
	}
	_, held, err := r.HolderCredential(holder)
	if err != nil {
		return nil, err
	}
	if held {
		return nil, ErrAlreadyHolds
	}
	id, err := r.nextTokenID()
	if err != nil {
		return nil, err
	}
	credential := &Credential{
		ID:        id,
		Holder:    holder,
		Status:    CredentialActive,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}
	if err := r.storeCredential(credential); err != nil {
		return nil, err
	}
	if err := r.st.KVPut(holderKey(holder), id); err != nil {
		return nil, err
	}
	r.emit(&events.MerchantMinted{
		TokenID:   id,
		Holder:    holder,
		ExpiresAt: clampUnix(expiresAt),
	})
	return credential.Copy(), nil
}

// AddExpiration strictly extends a credential's expiry. Admin only.
func (r *Registry) AddExpiration(caller [20]byte, id uint64, additionalSeconds int64) (*Credential, error) {
	if r == nil || r.st == nil {
		return nil, errNilState
	}
	if err := r.requireAdmin(caller); err != nil {
		return nil, err
	}
	credential, err := r.loadLive(id)
	if err != nil {
		return nil, err
	}
	if additionalSeconds <= 0 {
		return nil, ErrZeroAdditionalTime
	}
	credential.ExpiresAt += additionalSeconds
	if err := r.storeCredential(credential); err != nil {
		return nil, err
	}
	r.emit(&events.MerchantRenewed{
		TokenID:   credential.ID,
		Holder:    credential.Holder,
		ExpiresAt: clampUnix(credential.ExpiresAt),
	})
	return credential.Copy(), nil
}

// Invalidate forces a live credential out of validity immediately by moving
// its expiry into the past. The record survives for audit. Admin only.
func (r *Registry) Invalidate(caller [20]byte, id uint64) (*Credential, error) {
	if r == nil || r.st == nil {
		return nil, errNilState
	}
	if err := r.requireAdmin(caller); err != nil {
		return nil, err
	}
	credential, err := r.loadLive(id)
	if err != nil {
		return nil, err
	}
	now := r.now()
	if now > credential.ExpiresAt {
		return nil, ErrAlreadyExpired
	}
	credential.ExpiresAt = now - 1
	if err := r.storeCredential(credential); err != nil {
		return nil, err
	}
	r.emit(&events.MerchantInvalidated{
		TokenID: credential.ID,
		Holder:  credential.Holder,
	})
	return credential.Copy(), nil
}

// Burn lets a holder destroy their own credential.
func (r *Registry) Burn(caller [20]byte, id uint64) error {
	if r == nil || r.st == nil {
		return errNilState
	}
	credential, err := r.loadLive(id)
	if err != nil {
		return err
	}
	if credential.Holder != caller {
		return ErrNotHolder
	}
	credential.Status = CredentialBurned
	if err := r.storeCredential(credential); err != nil {
		return err
	}
	if err := r.st.KVPut(holderKey(credential.Holder), uint64(0)); err != nil {
		return err
	}
	r.emit(&events.MerchantBurned{
		TokenID: credential.ID,
		Holder:  credential.Holder,
	})
	return nil
}

// Transfer rejects every credential transfer attempt and surfaces the
// rejection as an event for external observers.
func (r *Registry) Transfer(caller [20]byte, id uint64, to [20]byte) error {
	if r == nil || r.st == nil {
		return errNilState
	}
	holder := caller
	if credential, err := r.loadLive(id); err == nil {
		holder = credential.Holder
	}
	r.emit(&events.MerchantTransferRejected{
		TokenID: id,
		Holder:  holder,
		To:      to,
	})
	return ErrTransfersDisabled
}

// Get returns the live credential with the supplied id.
func (r *Registry) Get(id uint64) (*Credential, error) {
	if r == nil || r.st == nil {
		return nil, errNilState
	}
	credential, err := r.loadLive(id)
	if err != nil {
		return nil, err
	}
	return credential.Copy(), nil
}

// HolderCredential returns the credential currently linked to the holder.
func (r *Registry) HolderCredential(holder [20]byte) (*Credential, bool, error) {
	if r == nil || r.st == nil {
		return nil, false, errNilState
	}
	var id uint64
	found, err := r.st.KVGet(holderKey(holder), &id)
	if err != nil {
		return nil, false, err
	}
	if !found || id == 0 {
		return nil, false, nil
	}
	credential, err := r.loadLive(id)
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return credential.Copy(), true, nil
}

// IsValidHolder reports whether the account holds a live, unexpired
// credential. This is the eligibility oracle the coin ledger consults.
func (r *Registry) IsValidHolder(holder [20]byte) (bool, error) {
	credential, found, err := r.HolderCredential(holder)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return r.now() <= credential.ExpiresAt, nil
}

// IsExpired reports whether the credential with the supplied id has lapsed.
func (r *Registry) IsExpired(id uint64) (bool, error) {
	if r == nil || r.st == nil {
		return false, errNilState
	}
	credential, err := r.loadLive(id)
	if err != nil {
		return false, err
	}
	return r.now() > credential.ExpiresAt, nil
}

func (r *Registry) loadLive(id uint64) (*Credential, error) {
	if id == 0 {
		return nil, ErrTokenNotFound
	}
	var stored storedCredential
	found, err := r.st.KVGet(tokenKey(id), &stored)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, ErrTokenNotFound
	}
	credential, err := fromStoredCredential(&stored)
	if err != nil {
		return nil, err
	}
	if credential.Status != CredentialActive {
		return nil, ErrTokenNotFound
	}
	return credential, nil
}

func (r *Registry) storeCredential(credential *Credential) error {
	if credential == nil {
		return fmt.Errorf("merchant: nil credential")
	}
	return r.st.KVPut(tokenKey(credential.ID), toStoredCredential(credential))
}

func (r *Registry) nextTokenID() (uint64, error) {
	var counter uint64
	if _, err := r.st.KVGet([]byte(tokenCounterKey), &counter); err != nil {
		return 0, err
	}
	counter++
	if err := r.st.KVPut([]byte(tokenCounterKey), counter); err != nil {
		return 0, err
	}
	return counter, nil
}
