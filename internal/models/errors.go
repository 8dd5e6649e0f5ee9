package models

import "errors"

// Error kinds surfaced by the pipeline and the lineage repository. Callers
// classify with errors.Is; wrapped messages carry the detail.
var (
	ErrMalformedInput = errors.New("malformed input")
	ErrNotFound       = errors.New("not found")
	ErrStageFailure   = errors.New("stage failure")
	ErrStoreFailure   = errors.New("store failure")
)
