package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Patch applies diff to prev and returns the resulting view. prev is never
// mutated and must satisfy the registry invariants; Patch preserves them.
// The diff must start exactly at prev's version. Removals apply first, then
// token appends, then additions, so a converter moving between tokens stays
// unique throughout. A removal of an unbound converter, a re-appended
// token, or an addition that double-binds a converter makes the diff
// corrupt.
func Patch(prev *View, diff *Diff) (*View, error) {
	if prev == nil {
		return nil, fmt.Errorf("registry: nil view")
	}
	if prev.Version != diff.FromVersion {
		return nil, fmt.Errorf("%w: view at version %d, diff from %d", ErrVersionMismatch, prev.Version, diff.FromVersion)
	}

	next := prev.Copy()
	next.Version = diff.ToVersion

	position := make(map[common.Address]int, len(next.Tokens))
	for i, token := range next.Tokens {
		position[token] = i
	}
	boundTo := make(map[common.Address]common.Address)
	for i, token := range next.Tokens {
		for _, c := range next.Converters[i] {
			boundTo[c] = token
		}
	}

	// 1. Removals, order-preserving within each list.
	for _, b := range diff.Removed {
		i, known := position[b.Token]
		if !known {
			return nil, fmt.Errorf("%w: removal under unknown token %s", ErrCorruptDiff, b.Token.Hex())
		}
		list := next.Converters[i]
		at := indexOf(list, b.Converter)
		if at < 0 {
			return nil, fmt.Errorf("%w: removal of converter %s not bound to %s", ErrCorruptDiff, b.Converter.Hex(), b.Token.Hex())
		}
		next.Converters[i] = append(list[:at], list[at+1:]...)
		delete(boundTo, b.Converter)
	}

	// 2. Tokens appended to the enumeration.
	for _, token := range diff.Tokens {
		if _, exists := position[token]; exists {
			return nil, fmt.Errorf("%w: token %s appended twice", ErrCorruptDiff, token.Hex())
		}
		position[token] = len(next.Tokens)
		next.Tokens = append(next.Tokens, token)
		next.Converters = append(next.Converters, []common.Address{})
	}

	// 3. Additions, appended at the end of their list.
	for _, b := range diff.Added {
		i, known := position[b.Token]
		if !known {
			return nil, fmt.Errorf("%w: addition under unknown token %s", ErrCorruptDiff, b.Token.Hex())
		}
		if bound, taken := boundTo[b.Converter]; taken {
			return nil, fmt.Errorf("%w: converter %s already bound to %s", ErrCorruptDiff, b.Converter.Hex(), bound.Hex())
		}
		next.Converters[i] = append(next.Converters[i], b.Converter)
		boundTo[b.Converter] = b.Token
	}

	return next, nil
}

func indexOf(list []common.Address, target common.Address) int {
	for i, c := range list {
		if c == target {
			return i
		}
	}
	return -1
}
