package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Binding pairs a token with one of its converters.
type Binding struct {
	Token     common.Address `json:"token"`
	Converter common.Address `json:"converter"`
}

// Diff describes how to move a view from FromVersion to ToVersion. Tokens
// lists tokens appended to the enumeration; it is carried separately from
// Added because a token can enter and empty out between two views, leaving
// no binding behind. System emits a single-operation Diff per mutation;
// Differ reconstructs one between any two views of the same lineage.
type Diff struct {
	FromVersion uint64           `json:"fromVersion"`
	ToVersion   uint64           `json:"toVersion"`
	Tokens      []common.Address `json:"tokens,omitempty"`
	Added       []Binding        `json:"added,omitempty"`
	Removed     []Binding        `json:"removed,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d Diff) IsEmpty() bool {
	return len(d.Tokens) == 0 && len(d.Added) == 0 && len(d.Removed) == 0
}

// Differ calculates the diff between two views of the same registry
// lineage. The token enumeration is append-only, so old.Tokens must be a
// prefix of new.Tokens and the version must not run backward; anything else
// returns ErrViewsDiverged. Removals are collected in old enumeration
// order and additions in new enumeration order, matching how Patch applies
// them.
func Differ(old, new *View) (*Diff, error) {
	if old.Version > new.Version {
		return nil, fmt.Errorf("%w: version runs backward (%d to %d)", ErrViewsDiverged, old.Version, new.Version)
	}
	if len(old.Tokens) > len(new.Tokens) {
		return nil, fmt.Errorf("%w: token enumeration shrank (%d to %d)", ErrViewsDiverged, len(old.Tokens), len(new.Tokens))
	}
	for i, token := range old.Tokens {
		if new.Tokens[i] != token {
			return nil, fmt.Errorf("%w: token %s no longer at position %d", ErrViewsDiverged, token.Hex(), i)
		}
	}

	diff := &Diff{FromVersion: old.Version, ToVersion: new.Version}

	if len(new.Tokens) > len(old.Tokens) {
		appended := new.Tokens[len(old.Tokens):]
		diff.Tokens = make([]common.Address, len(appended))
		copy(diff.Tokens, appended)
	}

	for i, token := range new.Tokens {
		newList := new.Converters[i]

		if i >= len(old.Tokens) {
			// Token appended since the old view: every binding is new.
			for _, c := range newList {
				diff.Added = append(diff.Added, Binding{Token: token, Converter: c})
			}
			continue
		}

		removed, added, ok := explainByAppends(old.Converters[i], newList)
		if !ok {
			// Survivor order cannot be explained by removals plus appended
			// entries, so the whole list is rewritten.
			removed, added = old.Converters[i], newList
		}
		for _, c := range removed {
			diff.Removed = append(diff.Removed, Binding{Token: token, Converter: c})
		}
		for _, c := range added {
			diff.Added = append(diff.Added, Binding{Token: token, Converter: c})
		}
	}

	return diff, nil
}

// explainByAppends tries to express newList as oldList minus some entries
// plus entries appended at the end, the only shape register and unregister
// can produce. It reports false when the lists do not fit that shape, e.g.
// when a converter was removed and re-registered under the same token.
func explainByAppends(oldList, newList []common.Address) (removed, added []common.Address, ok bool) {
	oldSet := make(map[common.Address]struct{}, len(oldList))
	for _, c := range oldList {
		oldSet[c] = struct{}{}
	}
	newSet := make(map[common.Address]struct{}, len(newList))
	for _, c := range newList {
		newSet[c] = struct{}{}
	}

	var survivors []common.Address
	for _, c := range oldList {
		if _, stays := newSet[c]; stays {
			survivors = append(survivors, c)
		} else {
			removed = append(removed, c)
		}
	}
	for _, c := range newList {
		if _, existed := oldSet[c]; !existed {
			added = append(added, c)
		}
	}

	// newList must be the survivors in their old order followed by the
	// appended entries. The length guard keeps the element checks in
	// bounds when a malformed view carries duplicates.
	if len(newList) != len(survivors)+len(added) {
		return nil, nil, false
	}
	for i, c := range survivors {
		if newList[i] != c {
			return nil, nil, false
		}
	}
	for i, c := range added {
		if newList[len(survivors)+i] != c {
			return nil, nil, false
		}
	}

	return removed, added, true
}
