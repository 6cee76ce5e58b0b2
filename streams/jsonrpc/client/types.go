package client

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/defistate/converter-registry-go/registry/indexer"
)

// Mirror is one immutable observation of the remote registry. Registry
// carries the indexed token and converter lookups; Owner and PendingOwner
// are the owner pair as of the same update. Proposals emit no update, so
// PendingOwner refreshes only on snapshots and completed handshakes.
type Mirror struct {
	Registry     indexer.IndexedRegistry
	Owner        common.Address
	PendingOwner common.Address
}
