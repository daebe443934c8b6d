// Package types defines the Entry and Container abstractions, the Property
// entry with its closed set of value kinds, the Payload wire shape, the
// Store interface, and the standard errors shared by every side of a
// synchronization.
package types
