//go:build netlib

package main

import (
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

// Routes gonum's matrix products through a native CBLAS when built with
// `-tags netlib`. Point CGO_LDFLAGS at the library, e.g.
// "-framework Accelerate" on macOS or "-lopenblas" on Linux.
func init() {
	blas64.Use(netlib.Implementation{})
}
