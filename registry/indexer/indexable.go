package indexer

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/converter-registry-go/registry"
)

// Indexer builds indexed read models from registry view snapshots.
type Indexer struct{}

// New creates a new Indexer.
func New() *Indexer {
	return &Indexer{}
}

// Index creates an indexed registry from a view snapshot.
func (i *Indexer) Index(view *registry.View) IndexedRegistry {
	return NewIndexableRegistry(view)
}

// IndexableRegistry provides fast, indexed access to a single registry view.
// It is immutable after construction and therefore safe for concurrent use.
type IndexableRegistry struct {
	version     uint64
	tokens      []common.Address
	byToken     map[common.Address][]common.Address
	byConverter map[common.Address]common.Address
}

// NewIndexableRegistry creates a new indexed registry from a view snapshot.
// The view data is copied, so later changes to the view are not reflected.
func NewIndexableRegistry(view *registry.View) *IndexableRegistry {
	if view == nil {
		view = &registry.View{}
	}

	tokens := make([]common.Address, len(view.Tokens))
	copy(tokens, view.Tokens)

	byToken := make(map[common.Address][]common.Address, len(view.Tokens))
	byConverter := make(map[common.Address]common.Address)

	for i, token := range view.Tokens {
		var list []common.Address
		if i < len(view.Converters) {
			list = make([]common.Address, len(view.Converters[i]))
			copy(list, view.Converters[i])
		}
		byToken[token] = list
		for _, converter := range list {
			byConverter[converter] = token
		}
	}

	return &IndexableRegistry{
		version:     view.Version,
		tokens:      tokens,
		byToken:     byToken,
		byConverter: byConverter,
	}
}

// ConvertersFor returns a defensive copy of token's ordered converter list,
// nil for an unknown token.
func (ir *IndexableRegistry) ConvertersFor(token common.Address) []common.Address {
	list, ok := ir.byToken[token]
	if !ok {
		return nil
	}
	listCopy := make([]common.Address, len(list))
	copy(listCopy, list)
	return listCopy
}

// TokenFor retrieves the token a converter is bound to.
func (ir *IndexableRegistry) TokenFor(converter common.Address) (common.Address, bool) {
	token, ok := ir.byConverter[converter]
	return token, ok
}

// Tokens returns a defensive copy of the token enumeration.
func (ir *IndexableRegistry) Tokens() []common.Address {
	tokensCopy := make([]common.Address, len(ir.tokens))
	copy(tokensCopy, ir.tokens)
	return tokensCopy
}

// ConverterCount returns the number of converters bound to token.
func (ir *IndexableRegistry) ConverterCount(token common.Address) int {
	return len(ir.byToken[token])
}

// TokenCount returns the number of tokens in the enumeration.
func (ir *IndexableRegistry) TokenCount() int {
	return len(ir.tokens)
}

// Version returns the version of the indexed view.
func (ir *IndexableRegistry) Version() uint64 {
	return ir.version
}
