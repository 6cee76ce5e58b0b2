// Package registry implements a bidirectional index between tokens and the
// ordered lists of converter contracts servicing them, under single-owner
// control. ConverterRegistry is the core data structure; System wraps it
// with synchronization, authorization, and event plumbing.
package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// View provides a complete snapshot of the registry's indices. Tokens and
// Converters are parallel: Converters[i] is the ordered converter list of
// Tokens[i], oldest first. Views are deep copies, so mutating one never
// affects the registry it came from.
type View struct {
	Version    uint64             `json:"version"`
	Tokens     []common.Address   `json:"tokens"`
	Converters [][]common.Address `json:"converters"`
}

// Copy returns a deep copy of the view.
func (v *View) Copy() *View {
	tokensCopy := make([]common.Address, len(v.Tokens))
	copy(tokensCopy, v.Tokens)

	convertersCopy := make([][]common.Address, len(v.Converters))
	for i, list := range v.Converters {
		listCopy := make([]common.Address, len(list))
		copy(listCopy, list)
		convertersCopy[i] = listCopy
	}

	return &View{
		Version:    v.Version,
		Tokens:     tokensCopy,
		Converters: convertersCopy,
	}
}

// State is the full persistable snapshot: the registry view plus the owner
// pair guarding it. A zero PendingOwner means no transfer is in flight.
type State struct {
	Owner        common.Address `json:"owner"`
	PendingOwner common.Address `json:"pendingOwner"`
	Registry     *View          `json:"registry"`
}

// ConverterRegistry is a simple, non-thread-safe data structure maintaining
// three indices: the append-only token enumeration, the ordered converter
// list per token, and the converter-to-token reverse index that doubles as
// the uniqueness guard. Synchronization and authorization belong to System.
type ConverterRegistry struct {
	// Lookups for fast membership and reverse resolution.
	tokenRegistered map[common.Address]bool
	tokenOf         map[common.Address]common.Address

	// The token enumeration, insertion-ordered and never shrunk, and the
	// per-token converter lists, oldest first.
	tokens     []common.Address
	converters map[common.Address][]common.Address

	// version increments by exactly one on every successful mutation.
	version uint64
}

// NewConverterRegistry creates an empty registry at version 0.
func NewConverterRegistry() *ConverterRegistry {
	return &ConverterRegistry{
		tokenRegistered: make(map[common.Address]bool),
		tokenOf:         make(map[common.Address]common.Address),
		tokens:          make([]common.Address, 0),
		converters:      make(map[common.Address][]common.Address),
	}
}

// NewConverterRegistryFromView reconstructs a registry from a view snapshot.
// It deep-copies the view data so the registry has full ownership of its
// memory, and validates the view against the registry invariants: arity
// mismatches, zero addresses, duplicate tokens, and converters bound more
// than once are all rejected.
func NewConverterRegistryFromView(view *View) (*ConverterRegistry, error) {
	if view == nil {
		return nil, fmt.Errorf("registry: nil view")
	}
	if len(view.Tokens) != len(view.Converters) {
		return nil, fmt.Errorf("registry: view arity mismatch: %d tokens, %d converter lists", len(view.Tokens), len(view.Converters))
	}

	r := &ConverterRegistry{
		tokenRegistered: make(map[common.Address]bool, len(view.Tokens)),
		tokenOf:         make(map[common.Address]common.Address),
		tokens:          make([]common.Address, 0, len(view.Tokens)),
		converters:      make(map[common.Address][]common.Address, len(view.Tokens)),
		version:         view.Version,
	}

	for i, token := range view.Tokens {
		if token == (common.Address{}) {
			return nil, fmt.Errorf("registry: zero token at position %d", i)
		}
		if r.tokenRegistered[token] {
			return nil, fmt.Errorf("registry: duplicate token %s", token.Hex())
		}
		r.tokenRegistered[token] = true
		r.tokens = append(r.tokens, token)

		list := view.Converters[i]
		listCopy := make([]common.Address, 0, len(list))
		for _, converter := range list {
			if converter == (common.Address{}) {
				return nil, fmt.Errorf("registry: zero converter under token %s", token.Hex())
			}
			if bound, ok := r.tokenOf[converter]; ok {
				return nil, fmt.Errorf("registry: converter %s bound to both %s and %s", converter.Hex(), bound.Hex(), token.Hex())
			}
			r.tokenOf[converter] = token
			listCopy = append(listCopy, converter)
		}
		r.converters[token] = listCopy
	}

	return r, nil
}

// register binds converter to token, appending token to the enumeration on
// its first registration. The converter must not already be bound to any
// token, the same one included. It reports whether the token is new to the
// enumeration. All preconditions are checked before any index is touched.
func (r *ConverterRegistry) register(token, converter common.Address) (bool, error) {
	if bound, ok := r.tokenOf[converter]; ok {
		return false, fmt.Errorf("%w: %s is bound to token %s", ErrConverterRegistered, converter.Hex(), bound.Hex())
	}

	tokenAdded := !r.tokenRegistered[token]
	if tokenAdded {
		r.tokens = append(r.tokens, token)
		r.tokenRegistered[token] = true
	}

	r.converters[token] = append(r.converters[token], converter)
	r.tokenOf[converter] = token
	r.version++

	return tokenAdded, nil
}

// unregister removes the converter at position index of token's list,
// shifting every later entry one position toward the front, and clears the
// reverse index entry. The shift keeps survivor order intact; the order of
// a token's converters, oldest to latest, is an external contract, so a
// cheaper swap with the last element is not an option. The token itself
// stays in the enumeration even when its list empties. Returns the removed
// converter.
func (r *ConverterRegistry) unregister(token common.Address, index int) (common.Address, error) {
	list := r.converters[token]
	if index < 0 || index >= len(list) {
		return common.Address{}, fmt.Errorf("%w: index %d, list length %d", ErrIndexOutOfRange, index, len(list))
	}

	converter := list[index]
	r.converters[token] = append(list[:index], list[index+1:]...)
	delete(r.tokenOf, converter)
	r.version++

	return converter, nil
}

// Read helpers. Lookups are forgiving: out-of-range positions and unknown
// identifiers yield the zero address or zero counts, never an error.

func (r *ConverterRegistry) tokenCount() int {
	return len(r.tokens)
}

func (r *ConverterRegistry) converterCount(token common.Address) int {
	return len(r.converters[token])
}

func (r *ConverterRegistry) converterAt(token common.Address, index int) common.Address {
	list := r.converters[token]
	if index < 0 || index >= len(list) {
		return common.Address{}
	}
	return list[index]
}

func (r *ConverterRegistry) tokenFor(converter common.Address) common.Address {
	return r.tokenOf[converter]
}

func (r *ConverterRegistry) tokenAt(i int) common.Address {
	if i < 0 || i >= len(r.tokens) {
		return common.Address{}
	}
	return r.tokens[i]
}

func (r *ConverterRegistry) allTokens() []common.Address {
	tokensCopy := make([]common.Address, len(r.tokens))
	copy(tokensCopy, r.tokens)
	return tokensCopy
}

// view returns a deep copy of the registry's indices.
func (r *ConverterRegistry) view() *View {
	tokensCopy := make([]common.Address, len(r.tokens))
	copy(tokensCopy, r.tokens)

	convertersCopy := make([][]common.Address, len(r.tokens))
	for i, token := range r.tokens {
		list := r.converters[token]
		listCopy := make([]common.Address, len(list))
		copy(listCopy, list)
		convertersCopy[i] = listCopy
	}

	return &View{
		Version:    r.version,
		Tokens:     tokensCopy,
		Converters: convertersCopy,
	}
}
