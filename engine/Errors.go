package engine

import "fmt"

/***************************************
 * Error taxonomy (§7, engine-level)
 *
 * CASPermanent/CASTransient already live in cas/Errors.go, IOFormat as
 * filetree.FormatError, ImportConsistency as filetree.ModifiedFileError,
 * ActionSchedulingError/ActionExecutionError in action/Errors.go -- this
 * file only adds the errors that are specific to key/value evaluation.
 * Grounded on the teacher's own unexported wrapping-struct idiom for
 * build errors (see action/Errors.go's own header comment, and
 * utils.BuildGraph's plain fmt.Errorf returns for "unknown node").
 ***************************************/

// CycleDetected reports that adding an edge would make the dependency
// graph cyclic (§4.7). Path starts and ends at the offending node (§8
// property 6: a cycle of length N+1 closing back on itself).
type CycleDetected struct {
	Path []Fingerprint
}

func (e CycleDetected) Error() string {
	return fmt.Sprintf("engine: cycle detected (%d nodes)", len(e.Path))
}

// UnknownKeyIdentifier reports that no value decoder is registered (see
// Engine.RegisterValueType) for a key's declared TypeID. The engine's cache
// lookup treats it like any other decode failure, as a cache miss.
type UnknownKeyIdentifier struct {
	ID TypeID
}

func (e UnknownKeyIdentifier) Error() string {
	return fmt.Sprintf("engine: unknown key identifier %q", e.ID)
}

// UnexpectedValueType reports that decoding a CAS object under a
// requested value type failed to match what was actually stored there.
type UnexpectedValueType struct {
	Expected, Actual TypeID
}

func (e UnexpectedValueType) Error() string {
	return fmt.Sprintf("engine: unexpected value type, expected %q got %q", e.Expected, e.Actual)
}

// ValueComputationError wraps any error returned by a user Key.Compute,
// carrying the requesting chain up to this key for diagnostics.
type ValueComputationError struct {
	Key       TypeID
	Cause     error
	PathToKey []Fingerprint
}

func (e ValueComputationError) Error() string {
	return fmt.Sprintf("engine: computing %q: %v", e.Key, e.Cause)
}

func (e ValueComputationError) Unwrap() error {
	return e.Cause
}
