package registry

import "errors"

var (
	// ErrConverterRegistered is returned when registering a converter that
	// is already bound to a token. A converter services at most one token;
	// it must be unregistered before it can be registered again.
	ErrConverterRegistered = errors.New("registry: converter already registered")

	// ErrIndexOutOfRange is returned when unregistering with an index that
	// is not a valid position in the token's converter list.
	ErrIndexOutOfRange = errors.New("registry: converter index out of range")

	// ErrVersionMismatch is returned by Patch when the diff does not start
	// at the view's version.
	ErrVersionMismatch = errors.New("registry: diff version mismatch")

	// ErrViewsDiverged is returned by Differ when the two views cannot have
	// come from the same registry lineage.
	ErrViewsDiverged = errors.New("registry: views diverged")

	// ErrCorruptDiff is returned by Patch when applying the diff would
	// break the registry invariants.
	ErrCorruptDiff = errors.New("registry: corrupt diff")
)
