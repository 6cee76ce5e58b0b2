package indexer

import (
	"github.com/ethereum/go-ethereum/common"
)

// IndexedRegistry defines the methods for accessing indexed registry data.
type IndexedRegistry interface {
	ConvertersFor(token common.Address) []common.Address
	TokenFor(converter common.Address) (common.Address, bool)
	Tokens() []common.Address
	ConverterCount(token common.Address) int
	TokenCount() int
	Version() uint64
}
