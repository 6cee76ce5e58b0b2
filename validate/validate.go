// Package validate provides the address guards shared by every component
// that accepts external identifiers.
package validate

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrZeroAddress is returned when the zero address is passed where a
	// valid identifier is required.
	ErrZeroAddress = errors.New("validate: zero address")

	// ErrSelfAddress is returned when an identifier equals the address of
	// the component performing the check.
	ErrSelfAddress = errors.New("validate: self address")
)

// Address rejects the zero address.
func Address(addr common.Address) error {
	if addr == (common.Address{}) {
		return ErrZeroAddress
	}
	return nil
}

// NotSelf rejects an identifier equal to self. A zero self disables the
// check, for components that have no address of their own.
func NotSelf(addr, self common.Address) error {
	if self == (common.Address{}) {
		return nil
	}
	if addr == self {
		return ErrSelfAddress
	}
	return nil
}
