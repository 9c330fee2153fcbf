package cas

import "fmt"

/***************************************
 * CAS error taxonomy (spec §7)
 *
 * Transient wraps a retryable transport error (the import path reacts to it
 * by reducing network concurrency, §4.3); Permanent wraps anything else.
 * Backends should never return a bare error from Put/Get/Contains -- wrap it
 * with one of these two so callers can tell the difference without sniffing
 * error strings.
 ***************************************/

type TransientError struct {
	Cause error
}

func (x TransientError) Error() string {
	return fmt.Sprintf("cas: transient failure: %v", x.Cause)
}
func (x TransientError) Unwrap() error { return x.Cause }

func Transient(cause error) error {
	if cause == nil {
		return nil
	}
	return TransientError{Cause: cause}
}

type PermanentError struct {
	Cause error
}

func (x PermanentError) Error() string {
	return fmt.Sprintf("cas: permanent failure: %v", x.Cause)
}
func (x PermanentError) Unwrap() error { return x.Cause }

func Permanent(cause error) error {
	if cause == nil {
		return nil
	}
	return PermanentError{Cause: cause}
}

func IsTransient(err error) bool {
	_, ok := err.(TransientError)
	return ok
}

// NotFoundError marks a store miss distinct from a storage failure: Get
// returns (nil, nil) on absence, so backends never return this type; callers
// that require an object to be present (the file-tree codec's FetchAndParse
// and chunk reads) report its absence with it.
type NotFoundError struct {
	ID DataID
}

func (x NotFoundError) Error() string {
	return fmt.Sprintf("cas: object %s not found", x.ID.ShortString())
}
