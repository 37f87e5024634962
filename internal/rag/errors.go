package rag

import "errors"

// ErrOracle marks a generation failure: the oracle timed out, errored, or
// returned nothing usable. No interaction is logged for a failed generation.
var ErrOracle = errors.New("oracle generation failed")

// ErrLogWrite marks an interaction-log persistence failure. The generated
// answer is still returned to the caller; only the record of it was lost.
var ErrLogWrite = errors.New("interaction log write failed")
