package types

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Validator is a predicate over candidate editor text. A rejected text
// never reaches the entry's value.
type Validator func(text string) bool

// Built-in validator names usable in declarations.
const (
	ValidatorNumeric    = "numeric"
	ValidatorInteger    = "integer"
	ValidatorNonEmpty   = "nonempty"
	ValidatorIdentifier = "identifier"

	// Parameterised forms: "maxlen:<n>" and "pattern:<regexp>".
	validatorMaxLenPrefix  = "maxlen:"
	validatorPatternPrefix = "pattern:"
)

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LookupValidator resolves a validator by name. An empty name yields a nil
// validator and no error. Unknown names return ErrUnknownValidator.
func LookupValidator(name string) (Validator, error) {
	switch {
	case name == "":
		return nil, nil
	case name == ValidatorNumeric:
		return func(text string) bool {
			_, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
			return err == nil
		}, nil
	case name == ValidatorInteger:
		return func(text string) bool {
			_, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
			return err == nil
		}, nil
	case name == ValidatorNonEmpty:
		return func(text string) bool {
			return strings.TrimSpace(text) != ""
		}, nil
	case name == ValidatorIdentifier:
		return identifierRE.MatchString, nil
	case strings.HasPrefix(name, validatorMaxLenPrefix):
		n, err := strconv.Atoi(strings.TrimPrefix(name, validatorMaxLenPrefix))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownValidator, name)
		}
		return func(text string) bool {
			return utf8.RuneCountInString(text) <= n
		}, nil
	case strings.HasPrefix(name, validatorPatternPrefix):
		re, err := regexp.Compile(strings.TrimPrefix(name, validatorPatternPrefix))
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrUnknownValidator, name, err)
		}
		return re.MatchString, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownValidator, name)
	}
}
