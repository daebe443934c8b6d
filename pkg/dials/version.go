// Package dials holds project-wide constants.
package dials

// Version is the dials release version.
const Version = "0.1.0"

// ModulePath is the Go module path.
const ModulePath = "github.com/mesh-intelligence/dials"
