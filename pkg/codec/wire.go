package codec

import (
	"encoding/json"
	"fmt"
	"mime"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/mesh-intelligence/dials/pkg/types"
)

// Format selects the outer payload encoding.
type Format string

// Supported wire formats.
const (
	FormatCBOR Format = "cbor"
	FormatJSON Format = "json"
)

// Content types for each format.
const (
	ContentTypeCBOR = "application/cbor"
	ContentTypeJSON = "application/json"
)

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}

// ParseFormat converts a configuration value into a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCBOR, "":
		return FormatCBOR, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown wire format %q", s)
}

// ContentType returns the MIME type for f.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return ContentTypeJSON
	}
	return ContentTypeCBOR
}

// FormatFromContentType maps a request Content-Type onto a Format. An
// empty header means CBOR.
func FormatFromContentType(ct string) (Format, error) {
	if ct == "" {
		return FormatCBOR, nil
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", fmt.Errorf("content type %q: %w", ct, err)
	}
	switch mt {
	case ContentTypeCBOR:
		return FormatCBOR, nil
	case ContentTypeJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported content type %q", mt)
}

// Marshal encodes any wire value (a Payload, Snapshot, or response) in f.
// CBOR output is deterministic.
func Marshal(f Format, v any) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.Marshal(v)
	case FormatCBOR, "":
		return encMode.Marshal(v)
	}
	return nil, fmt.Errorf("unknown wire format %q", f)
}

// Unmarshal decodes data in f into v.
func Unmarshal(f Format, data []byte, v any) error {
	switch f {
	case FormatJSON:
		return json.Unmarshal(data, v)
	case FormatCBOR, "":
		return cbor.Unmarshal(data, v)
	}
	return fmt.Errorf("unknown wire format %q", f)
}

// MarshalPayload is Marshal for a Payload.
func MarshalPayload(f Format, p types.Payload) ([]byte, error) {
	return Marshal(f, p)
}

// UnmarshalPayload decodes a Payload. A missing field list decodes as an
// empty payload.
func UnmarshalPayload(f Format, data []byte) (types.Payload, error) {
	var p types.Payload
	if err := Unmarshal(f, data, &p); err != nil {
		return types.Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}
