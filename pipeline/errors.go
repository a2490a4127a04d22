package pipeline

import "errors"

var (
	// ErrNoMaterial wraps windowing failures: the corpus cannot feed training.
	ErrNoMaterial  = errors.New("no training material")
	ErrUnknownMode = errors.New("unknown mode")
)
