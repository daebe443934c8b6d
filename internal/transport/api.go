// Package transport carries payloads between dials processes over HTTP.
// The server owns canonical state through a Backend; clients fetch
// snapshots, push payloads, and subscribe to the payloads applied by
// others over a WebSocket.
package transport

import (
	"github.com/wI2L/jsondiff"

	"github.com/mesh-intelligence/dials/pkg/types"
)

// Route paths.
const (
	pathHealth    = "/healthz"
	pathMetrics   = "/metrics"
	pathLocations = "/v1/locations"
	pathLocation  = "/v1/locations/{location}"
	pathPayload   = "/v1/locations/{location}/payload"
	pathSubscribe = "/v1/locations/{location}/subscribe"
)

// PushResult is the server's answer to a pushed payload.
type PushResult struct {
	// Applied lists the names the server applied, in payload order.
	Applied []string `json:"applied"`

	// Errors lists the fields the server skipped.
	Errors []FieldReport `json:"errors"`

	// Changes is the JSON Patch from the location's displayed values before
	// the push to those after it.
	Changes jsondiff.Patch `json:"changes,omitempty"`
}

// AppliedSet returns Applied as a set.
func (r PushResult) AppliedSet() map[string]bool {
	set := make(map[string]bool, len(r.Applied))
	for _, name := range r.Applied {
		set[name] = true
	}
	return set
}

// FieldReport is a FieldError in wire form.
type FieldReport struct {
	Name    string          `json:"name"`
	Kind    types.ErrorKind `json:"kind"`
	Message string          `json:"message,omitempty"`
}

// FieldReports converts field errors to their wire form.
func FieldReports(errs []types.FieldError) []FieldReport {
	reports := make([]FieldReport, len(errs))
	for i, e := range errs {
		reports[i] = FieldReport{Name: e.Name, Kind: e.Kind}
		if e.Err != nil {
			reports[i].Message = e.Err.Error()
		}
	}
	return reports
}

type errorBody struct {
	Error string `json:"error"`
}
