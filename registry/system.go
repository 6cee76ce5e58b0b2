package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"

	"github.com/defistate/converter-registry-go/ownership"
	"github.com/defistate/converter-registry-go/validate"
)

// EventType labels registry notifications.
type EventType string

const (
	ConverterAdded   EventType = "converter_added"
	ConverterRemoved EventType = "converter_removed"
)

// Event is the notification emitted on every successful mutation. Version
// is the registry version after the operation applied.
type Event struct {
	Type      EventType      `json:"type"`
	Token     common.Address `json:"token"`
	Converter common.Address `json:"converter"`
	Version   uint64         `json:"version"`
}

// System provides a concurrency-safe layer over ConverterRegistry. Writes
// are serialized behind a mutex and run guard, validation, and precondition
// checks before any index is touched, so every operation is all-or-nothing
// and whichever racing caller is sequenced first wins. Reads are lock-free
// against a cached view and always observe a fully-applied state.
//
// Ownership transitions are routed through System under the same mutex, so
// authorization checks observe a stable owner for the whole operation.
type System struct {
	mu       sync.RWMutex
	registry *ConverterRegistry
	auth     *ownership.Authority

	// identity is the registry's own address; register arguments equal to
	// it are rejected. Zero disables the check.
	identity common.Address

	cachedView atomic.Pointer[View] // Read-optimized cache for the registry view

	eventFeed event.Feed // carries Event
	diffFeed  event.Feed // carries Diff
}

// NewSystem creates a concurrency-safe system over an empty registry. The
// authority is the write-authorization collaborator and must not be nil.
func NewSystem(auth *ownership.Authority, identity common.Address) (*System, error) {
	if auth == nil {
		return nil, fmt.Errorf("registry: nil authority")
	}

	s := &System{
		registry: NewConverterRegistry(),
		auth:     auth,
		identity: identity,
	}
	// Initialize the cached view with an empty, non-nil snapshot.
	s.cachedView.Store(s.registry.view())
	return s, nil
}

// NewSystemFromState restores a system from a persisted snapshot,
// reconstructing both the registry and its owner pair.
func NewSystemFromState(state *State, identity common.Address) (*System, error) {
	if state == nil {
		return nil, fmt.Errorf("registry: nil state")
	}

	auth, err := ownership.RestoreAuthority(state.Owner, state.PendingOwner)
	if err != nil {
		return nil, err
	}
	reg, err := NewConverterRegistryFromView(state.Registry)
	if err != nil {
		return nil, err
	}

	s := &System{
		registry: reg,
		auth:     auth,
		identity: identity,
	}
	s.cachedView.Store(s.registry.view())
	return s, nil
}

// updateCachedView generates a fresh view from the registry and atomically
// updates the pointer. It must be called with s.mu held for writing.
func (s *System) updateCachedView() {
	s.cachedView.Store(s.registry.view())
}

// RegisterConverter binds converter to token. Only the owner may call it.
// Both identifiers must be non-zero and distinct from the registry's own
// identity, and the converter must not already be bound to any token. On
// success a ConverterAdded event and a single-operation diff are emitted.
func (s *System) RegisterConverter(caller, token, converter common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.auth.RequireOwner(caller); err != nil {
		return err
	}
	if err := s.validateArgument(token); err != nil {
		return fmt.Errorf("registry: token: %w", err)
	}
	if err := s.validateArgument(converter); err != nil {
		return fmt.Errorf("registry: converter: %w", err)
	}

	tokenAdded, err := s.registry.register(token, converter)
	if err != nil {
		return err
	}
	s.updateCachedView()

	version := s.registry.version
	diff := Diff{FromVersion: version - 1, ToVersion: version}
	if tokenAdded {
		diff.Tokens = []common.Address{token}
	}
	diff.Added = []Binding{{Token: token, Converter: converter}}

	s.eventFeed.Send(Event{Type: ConverterAdded, Token: token, Converter: converter, Version: version})
	s.diffFeed.Send(diff)
	return nil
}

// UnregisterConverter removes the converter at position index of token's
// list. Only the owner may call it. The token must be non-zero and index
// must be a valid position; unlike the forgiving lookups, an out-of-range
// index here is an error. Returns the removed converter. On success a
// ConverterRemoved event and a single-operation diff are emitted.
func (s *System) UnregisterConverter(caller, token common.Address, index int) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.auth.RequireOwner(caller); err != nil {
		return common.Address{}, err
	}
	if err := validate.Address(token); err != nil {
		return common.Address{}, fmt.Errorf("registry: token: %w", err)
	}

	converter, err := s.registry.unregister(token, index)
	if err != nil {
		return common.Address{}, err
	}
	s.updateCachedView()

	version := s.registry.version
	diff := Diff{
		FromVersion: version - 1,
		ToVersion:   version,
		Removed:     []Binding{{Token: token, Converter: converter}},
	}

	s.eventFeed.Send(Event{Type: ConverterRemoved, Token: token, Converter: converter, Version: version})
	s.diffFeed.Send(diff)
	return converter, nil
}

func (s *System) validateArgument(addr common.Address) error {
	if err := validate.Address(addr); err != nil {
		return err
	}
	return validate.NotSelf(addr, s.identity)
}

// TransferOwnership proposes a new owner, serialized with registry writes.
// See ownership.Authority.TransferOwnership for the handshake rules.
func (s *System) TransferOwnership(caller, newOwner common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth.TransferOwnership(caller, newOwner)
}

// AcceptOwnership completes an in-flight ownership transfer, serialized
// with registry writes.
func (s *System) AcceptOwnership(caller common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth.AcceptOwnership(caller)
}

// Owner returns the current owner.
func (s *System) Owner() common.Address {
	return s.auth.Owner()
}

// PendingOwner returns the proposed new owner, or the zero address when no
// transfer is in flight.
func (s *System) PendingOwner() common.Address {
	return s.auth.PendingOwner()
}

// Identity returns the registry's own address, zero when not configured.
func (s *System) Identity() common.Address {
	return s.identity
}

// TokenCount returns the size of the token enumeration.
func (s *System) TokenCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.tokenCount()
}

// ConverterCount returns the size of token's converter list, 0 for an
// unknown token.
func (s *System) ConverterCount(token common.Address) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.converterCount(token)
}

// ConverterAt returns the converter at the given position of token's list,
// or the zero address when the position is out of range.
func (s *System) ConverterAt(token common.Address, index int) common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.converterAt(token, index)
}

// TokenOf returns the token a converter is bound to, or the zero address
// when the converter is not registered.
func (s *System) TokenOf(converter common.Address) common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.tokenFor(converter)
}

// TokenAt returns the token at position i of the enumeration, or the zero
// address when i is out of range.
func (s *System) TokenAt(i int) common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.tokenAt(i)
}

// Tokens returns a copy of the token enumeration, insertion-ordered.
func (s *System) Tokens() []common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.allTokens()
}

// Version returns the registry version.
func (s *System) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.version
}

// View returns a thread-safe, deep copy of the registry's indices. It loads
// the cached snapshot without taking the lock, so concurrent reads stay
// cheap while writes are in flight.
func (s *System) View() *View {
	cached := s.cachedView.Load()
	if cached == nil {
		return &View{}
	}
	return cached.Copy()
}

// Snapshot returns the registry view together with the owner pair. The lock
// makes the pair and the view mutually consistent.
func (s *System) Snapshot() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &State{
		Owner:        s.auth.Owner(),
		PendingOwner: s.auth.PendingOwner(),
		Registry:     s.registry.view(),
	}
}

// SubscribeEvents subscribes ch to mutation notifications. Events are sent
// while the write lock is held, so they arrive in operation order;
// subscribers should drain promptly or use a buffered channel.
func (s *System) SubscribeEvents(ch chan<- Event) event.Subscription {
	return s.eventFeed.Subscribe(ch)
}

// SubscribeDiffs subscribes ch to single-operation diffs, the incremental
// transport form of the event stream. Same ordering and draining rules as
// SubscribeEvents.
func (s *System) SubscribeDiffs(ch chan<- Diff) event.Subscription {
	return s.diffFeed.Subscribe(ch)
}

// SubscribeOwnerUpdates subscribes ch to completed ownership transfers.
func (s *System) SubscribeOwnerUpdates(ch chan<- ownership.OwnerUpdate) event.Subscription {
	return s.auth.SubscribeOwnerUpdates(ch)
}
