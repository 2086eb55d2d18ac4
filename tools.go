//go:build tools
// +build tools

// Package tools pins code generators used by `go generate` (mockgen) so they
// are tracked in go.mod alongside runtime dependencies.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
