package types

import "errors"

// Field-level synchronization errors. The codec records them per field and
// never aborts a batch because of them.
var (
	ErrValidationRejected = errors.New("validation rejected")
	ErrEncodeEntryFailed  = errors.New("encode entry failed")
	ErrUnknownEntryName   = errors.New("unknown entry name")
	ErrDecodeEntryFailed  = errors.New("decode entry failed")
)

// Entry and declaration errors.
var (
	ErrInvalidKind        = errors.New("invalid entry kind")
	ErrInvalidName        = errors.New("invalid name")
	ErrDuplicateName      = errors.New("duplicate entry name")
	ErrInvalidDeclaration = errors.New("invalid declaration")
	ErrUnknownValidator   = errors.New("unknown validator")
	ErrOutOfRange         = errors.New("value out of range")
	ErrUnknownOption      = errors.New("unknown option")
	ErrKindMismatch       = errors.New("kind mismatch")
	ErrInvalidData        = errors.New("invalid entry data")
	ErrInvalidLocation    = errors.New("invalid location")
)

// Store errors.
var (
	ErrLocationNotFound = errors.New("location not found")
	ErrStoreDetached    = errors.New("store is detached")
	ErrAlreadyAttached  = errors.New("store is already attached")
)

// ErrorKind classifies a FieldError.
type ErrorKind string

// Field error kinds.
const (
	ValidationRejected ErrorKind = "ValidationRejected"
	EncodeEntryFailed  ErrorKind = "EncodeEntryFailed"
	UnknownEntryName   ErrorKind = "UnknownEntryName"
	DecodeEntryFailed  ErrorKind = "DecodeEntryFailed"
)

// kindSentinels maps each kind to the sentinel a FieldError unwraps to.
var kindSentinels = map[ErrorKind]error{
	ValidationRejected: ErrValidationRejected,
	EncodeEntryFailed:  ErrEncodeEntryFailed,
	UnknownEntryName:   ErrUnknownEntryName,
	DecodeEntryFailed:  ErrDecodeEntryFailed,
}

// FieldError reports a failure isolated to one named field.
type FieldError struct {
	Name string    `json:"name"`
	Kind ErrorKind `json:"kind"`
	Err  error     `json:"-"`
}

// NewFieldError builds a FieldError.
func NewFieldError(name string, kind ErrorKind, cause error) FieldError {
	return FieldError{Name: name, Kind: kind, Err: cause}
}

func (e FieldError) Error() string {
	msg := string(e.Kind) + " " + e.Name
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind sentinel and the underlying cause, so
// errors.Is matches either.
func (e FieldError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s, ok := kindSentinels[e.Kind]; ok {
		errs = append(errs, s)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// CountKind returns how many errors in errs have the given kind.
func CountKind(errs []FieldError, kind ErrorKind) int {
	n := 0
	for _, e := range errs {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
