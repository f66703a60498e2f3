package argstruct

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Arity describes how many value tokens an argument consumes. Negative values are the symbolic
// arities; zero and above mean exactly N values.
type Arity int

const (
	ArityOne        Arity = -1 // exactly one value
	ArityOptional   Arity = -2 // zero or one value
	ArityZeroOrMore Arity = -3 // any number of values
	ArityOneOrMore  Arity = -4 // at least one value
)

func (a Arity) String() string {
	switch a {
	case ArityOne:
		return "1"
	case ArityOptional:
		return "?"
	case ArityZeroOrMore:
		return "*"
	case ArityOneOrMore:
		return "+"
	default:
		return strconv.Itoa(int(a))
	}
}

func parseArity(s string) (Arity, error) {
	switch s {
	case "?":
		return ArityOptional, nil
	case "*":
		return ArityZeroOrMore, nil
	case "+":
		return ArityOneOrMore, nil
	default:
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return 0, fmt.Errorf("must be '?', '*', '+' or a positive integer")
		}
		return Arity(n), nil
	}
}

func (a Arity) isMulti() bool {
	return a == ArityZeroOrMore || a == ArityOneOrMore || a > 1
}

// validCount reports whether n resolved values satisfy this arity.
func (a Arity) validCount(n int) bool {
	switch a {
	case ArityOne:
		return n == 1
	case ArityOptional:
		return n <= 1
	case ArityZeroOrMore:
		return true
	case ArityOneOrMore:
		return n >= 1
	default:
		return n == int(a)
	}
}

// Arg is a hand-built argument specification, returned from [ArgProvider.ArgSpecs] to override or
// complete the specification derived from a field's type and tags. Nil/empty attributes keep the
// derived value; the element type is always re-derived from the field's Go type.
type Arg struct {
	Aliases     []string
	Arity       *Arity
	Choices     []string
	Convert     func(value string) (any, error)
	Transform   func(values []any) (any, error)
	Default     *string
	Desc        string
	EnvVar      string
	Placeholder string
	Required    *bool
	Secret      bool
}

// ArgProvider may be implemented by a schema struct (on its pointer type) to hand-construct
// argument specifications for some of its fields, keyed by Go field name. A key that names no
// known field is a schema definition error.
type ArgProvider interface {
	ArgSpecs() map[string]Arg
}

// argSpec is the canonical, resolved specification of one leaf value. It is produced once at
// schema resolution time and never mutated afterwards; per-parse state (effective defaults, raw
// occurrences) lives in bindings.
type argSpec struct {
	Name        string   // primary flag name, kebab-case, prefixed for grouped fields
	Aliases     []string // extra flag names
	ConfigKey   string   // key used for config lookup (unprefixed)
	FieldName   string   // Go field name
	Desc        string
	Placeholder string
	Choices     []string
	Arity       Arity
	Secret      bool
	Required    bool
	Positional  bool

	// Compiled-in default: exactly one of these may be set. Nil/nil means no default.
	DefaultRaw *string
	DefaultSeq []string

	EnvVar *string // explicit env var name; auto-prefix derivation happens per parse

	shape     shapeInfo
	fieldType reflect.Type
	index     []int // field index path within the owning schema/group struct

	convert   converter                      // per-element converter derived from the element type
	custom    func(string) (any, error)      // user converter; takes precedence over convert
	transform func(values []any) (any, error) // user whole-result transform

	storeVal bool // for presence flags: the value stored when the flag appears

	// Config-loading fields (shapeMapping) only:
	configFormat string
	configPaths  []string
}

// hasDefault reports whether the spec carries any compiled-in default.
func (a *argSpec) hasDefault() bool {
	return a.DefaultRaw != nil || a.DefaultSeq != nil
}

// hasValue reports whether the flag takes a value token on the command line. Presence flags
// (plain booleans) do not.
func (a *argSpec) hasValue() bool {
	return a.shape.kind != shapeBool
}

// valueKind is the config-value kind the precedence resolver requests for this argument.
func (a *argSpec) valueKind() ValueKind {
	if a.shape.isMultiValued() {
		return KindSequence
	}
	if a.shape.kind == shapeBool || a.shape.kind == shapeTriBool {
		return KindBool
	}
	return KindString
}

// defaultDisplay is the default as rendered in help text; secrets are never displayed.
func (a *argSpec) defaultDisplay() string {
	if a.Secret {
		return ""
	}
	if a.DefaultSeq != nil {
		return "[" + strings.Join(a.DefaultSeq, ", ") + "]"
	}
	return defaultIfNil(a.DefaultRaw, "")
}

// checkChoices validates a raw element against the declared choices restriction.
func (a *argSpec) checkChoices(raw string) error {
	if len(a.Choices) == 0 {
		return nil
	}
	for _, c := range a.Choices {
		if c == raw {
			return nil
		}
	}
	return &ErrInvalidChoice{Value: raw, Flag: a.Name, Choices: a.Choices}
}

// convertOne converts one raw element, preferring the user converter.
func (a *argSpec) convertOne(raw string) (reflect.Value, error) {
	if a.custom != nil {
		v, err := a.custom(raw)
		if err != nil {
			return reflect.Value{}, &ErrInvalidValue{Cause: err, Value: raw, Flag: a.Name}
		}
		rv := reflect.ValueOf(v)
		if !rv.IsValid() || !rv.Type().AssignableTo(a.shape.elem) {
			if rv.IsValid() && rv.Type().ConvertibleTo(a.shape.elem) {
				return rv.Convert(a.shape.elem), nil
			}
			return reflect.Value{}, &ErrInvalidValue{
				Cause: fmt.Errorf("converter returned %T, want %s", v, a.shape.elem),
				Value: raw,
				Flag:  a.Name,
			}
		}
		return rv, nil
	}
	return a.convert(raw)
}
