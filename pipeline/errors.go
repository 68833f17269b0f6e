package pipeline

import "fmt"

// InputError reports invalid caller input. It is never worth retrying.
type InputError struct {
	Err error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %v", e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// ExternalError reports a failed call to an external collaborator (embedding
// or answer generation). The caller may retry; the pipeline does not, to
// avoid amplifying load against a rate-limited API.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("external %s call failed: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error {
	return e.Err
}

// PersistenceError reports that an operation succeeded in memory but its
// durable snapshot could not be written. Data is queryable but would be lost
// on restart.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("index is updated but not durable: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
