// Package ownership implements single-owner authorization with a two-phase
// transfer handshake: the current owner proposes a successor, and the
// proposal takes effect only when the successor accepts it.
package ownership

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/defistate/converter-registry-go/validate"
)

var (
	// ErrNotOwner is returned when the caller of an owner-gated operation
	// is not the current owner.
	ErrNotOwner = errors.New("ownership: caller is not the owner")

	// ErrNotPendingOwner is returned when AcceptOwnership is called by
	// anyone other than the proposed new owner, including when no proposal
	// is in flight.
	ErrNotPendingOwner = errors.New("ownership: caller is not the pending owner")

	// ErrSameOwner is returned when a transfer proposes the current owner.
	ErrSameOwner = errors.New("ownership: new owner equals current owner")
)

// OwnerUpdate is emitted when an ownership transfer completes.
type OwnerUpdate struct {
	PreviousOwner common.Address `json:"previousOwner"`
	NewOwner      common.Address `json:"newOwner"`
}

// Authority tracks the current owner and an optional pending owner. The zero
// address as pending owner means no transfer is in flight; HasPending makes
// that explicit. Authority is safe for concurrent use.
type Authority struct {
	mu      sync.RWMutex
	owner   common.Address
	pending common.Address

	updateFeed event.Feed
}

// NewAuthority creates an Authority owned by owner.
func NewAuthority(owner common.Address) (*Authority, error) {
	if err := validate.Address(owner); err != nil {
		return nil, fmt.Errorf("ownership: invalid owner: %w", err)
	}
	return &Authority{owner: owner}, nil
}

// RestoreAuthority rebuilds an Authority from a persisted owner pair. A zero
// pending address restores the no-proposal state.
func RestoreAuthority(owner, pending common.Address) (*Authority, error) {
	a, err := NewAuthority(owner)
	if err != nil {
		return nil, err
	}
	a.pending = pending
	return a, nil
}

// Owner returns the current owner.
func (a *Authority) Owner() common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.owner
}

// PendingOwner returns the proposed new owner, or the zero address when no
// transfer is in flight.
func (a *Authority) PendingOwner() common.Address {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pending
}

// HasPending reports whether a transfer proposal is in flight.
func (a *Authority) HasPending() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pending != (common.Address{})
}

// RequireOwner returns ErrNotOwner unless caller is the current owner. It is
// the authorization guard run at the start of every mutating operation.
func (a *Authority) RequireOwner(caller common.Address) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.requireOwner(caller)
}

func (a *Authority) requireOwner(caller common.Address) error {
	if caller != a.owner {
		return ErrNotOwner
	}
	return nil
}

// TransferOwnership proposes newOwner as the successor. Only the current
// owner may propose, and proposing the current owner is rejected rather than
// silently ignored. Proposing the zero address withdraws an in-flight
// proposal. Ownership does not change until the successor accepts.
func (a *Authority) TransferOwnership(caller, newOwner common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.requireOwner(caller); err != nil {
		return err
	}
	if newOwner == a.owner {
		return ErrSameOwner
	}

	a.pending = newOwner
	return nil
}

// AcceptOwnership completes an in-flight transfer. Only the proposed owner
// may accept. The swap and the proposal reset happen atomically, and an
// OwnerUpdate is emitted before the method returns.
func (a *Authority) AcceptOwnership(caller common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending == (common.Address{}) || caller != a.pending {
		return ErrNotPendingOwner
	}

	update := OwnerUpdate{PreviousOwner: a.owner, NewOwner: a.pending}
	a.owner = a.pending
	a.pending = common.Address{}

	a.updateFeed.Send(update)
	return nil
}

// SubscribeOwnerUpdates subscribes ch to completed ownership transfers.
// Updates are delivered in completion order while the Authority's lock is
// held, so subscribers should drain promptly or use a buffered channel.
func (a *Authority) SubscribeOwnerUpdates(ch chan<- OwnerUpdate) event.Subscription {
	return a.updateFeed.Subscribe(ch)
}
