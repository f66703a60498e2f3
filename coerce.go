package argstruct

import (
	"encoding"
	"encoding/csv"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ErrInvalidValue is returned when a raw value (from the CLI, the environment or a config file)
// cannot be converted to the declared element type of its flag.
type ErrInvalidValue struct {
	Cause error
	Value string
	Flag  string
}

func (e *ErrInvalidValue) Error() string {
	return fmt.Sprintf("invalid value '%s' for flag '%s': %s", e.Value, e.Flag, e.Cause)
}

func (e *ErrInvalidValue) Unwrap() error {
	return e.Cause
}

// ErrInvalidChoice is returned when a value is not one of the declared choices for its flag.
type ErrInvalidChoice struct {
	Value   string
	Flag    string
	Choices []string
}

func (e *ErrInvalidChoice) Error() string {
	return fmt.Sprintf("invalid choice '%s' for flag '%s': must be one of %s", e.Value, e.Flag, strings.Join(e.Choices, ", "))
}

// truthyValues is the fixed vocabulary of strings parsed as true; everything else is false.
var truthyValues = map[string]bool{
	"y": true, "yes": true, "true": true, "t": true,
	"enable": true, "enabled": true, "1": true, "on": true,
}

// parseTruthy parses a boolean token case-insensitively against the truthy vocabulary.
func parseTruthy(s string) bool {
	return truthyValues[strings.ToLower(strings.TrimSpace(s))]
}

// converter converts one raw string token into a value of the declared element type.
type converter func(s string) (reflect.Value, error)

// converterFor builds the per-element converter for the given element type. The flag name is
// captured for error reporting only.
func converterFor(flagName string, t reflect.Type) (converter, error) {
	if t == durationType {
		return func(s string) (reflect.Value, error) {
			d, err := time.ParseDuration(s)
			if err != nil {
				return reflect.Value{}, &ErrInvalidValue{Cause: err, Value: s, Flag: flagName}
			}
			return reflect.ValueOf(d), nil
		}, nil
	}
	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return func(s string) (reflect.Value, error) {
			v := reflect.New(t)
			if err := v.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
				return reflect.Value{}, &ErrInvalidValue{Cause: err, Value: s, Flag: flagName}
			}
			return v.Elem(), nil
		}, nil
	}

	switch t.Kind() {
	case reflect.String:
		return func(s string) (reflect.Value, error) {
			return reflect.ValueOf(s).Convert(t), nil
		}, nil
	case reflect.Bool:
		return func(s string) (reflect.Value, error) {
			return reflect.ValueOf(parseTruthy(s)).Convert(t), nil
		}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(s string) (reflect.Value, error) {
			i, err := strconv.ParseInt(s, 10, t.Bits())
			if err != nil {
				return reflect.Value{}, &ErrInvalidValue{Cause: numErrCause(err), Value: s, Flag: flagName}
			}
			return reflect.ValueOf(i).Convert(t), nil
		}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return func(s string) (reflect.Value, error) {
			ui, err := strconv.ParseUint(s, 10, t.Bits())
			if err != nil {
				return reflect.Value{}, &ErrInvalidValue{Cause: numErrCause(err), Value: s, Flag: flagName}
			}
			return reflect.ValueOf(ui).Convert(t), nil
		}, nil
	case reflect.Float32, reflect.Float64:
		return func(s string) (reflect.Value, error) {
			f, err := strconv.ParseFloat(s, t.Bits())
			if err != nil {
				return reflect.Value{}, &ErrInvalidValue{Cause: numErrCause(err), Value: s, Flag: flagName}
			}
			return reflect.ValueOf(f).Convert(t), nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: no converter for type %s", errors.ErrUnsupported, t)
	}
}

func numErrCause(err error) error {
	var ne *strconv.NumError
	if errors.As(err, &ne) {
		return ne.Err
	}
	return err
}

// splitCompound splits a compound flag value ("a,b,c") into its elements, honoring CSV quoting so
// elements may themselves contain commas.
func splitCompound(flagName, s string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(s))
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	rec, err := r.Read()
	if err != nil {
		return nil, &ErrInvalidValue{Cause: err, Value: s, Flag: flagName}
	}
	return rec, nil
}

// parseLiteralList parses a literal sequence written as a JSON array ('["a", "b"]' or '[1, 2]'),
// the syntax required for sequence values in INI files and environment variables. Elements are
// returned as raw strings for the regular per-element converter.
func parseLiteralList(s string) ([]string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, err
	}
	elements := make([]string, 0, len(raw))
	for _, rm := range raw {
		var sv string
		if err := json.Unmarshal(rm, &sv); err == nil {
			elements = append(elements, sv)
		} else {
			elements = append(elements, strings.TrimSpace(string(rm)))
		}
	}
	return elements, nil
}

// scalarToString renders a natively-typed config value (JSON/TOML/YAML scalars) as the raw string
// handed to the per-element converter.
func scalarToString(v any) (string, bool) {
	switch tv := v.(type) {
	case string:
		return tv, true
	case bool:
		return strconv.FormatBool(tv), true
	case int:
		return strconv.Itoa(tv), true
	case int64:
		return strconv.FormatInt(tv, 10), true
	case uint64:
		return strconv.FormatUint(tv, 10), true
	case float64:
		return strconv.FormatFloat(tv, 'g', -1, 64), true
	case json.Number:
		return tv.String(), true
	default:
		return "", false
	}
}

// buildContainer rebuilds a converted element sequence into the declared container kind: a slice
// for lists, a deduplicating map for sets, a fixed-length array for tuples. This is the
// post-conversion transform of multi-valued arguments.
func buildContainer(flagName string, si shapeInfo, containerType reflect.Type, elements []reflect.Value) (reflect.Value, error) {
	switch si.kind {
	case shapeList:
		out := reflect.MakeSlice(containerType, len(elements), len(elements))
		for i, e := range elements {
			out.Index(i).Set(e)
		}
		return out, nil

	case shapeSet:
		out := reflect.MakeMapWithSize(containerType, len(elements))
		for _, e := range elements {
			if containerType.Elem().Kind() == reflect.Bool {
				out.SetMapIndex(e, reflect.ValueOf(true).Convert(containerType.Elem()))
			} else {
				out.SetMapIndex(e, reflect.Zero(containerType.Elem()))
			}
		}
		return out, nil

	case shapeTuple:
		if len(elements) != si.tupleLen {
			return reflect.Value{}, &ErrInvalidValue{
				Cause: fmt.Errorf("expected exactly %d values, got %d", si.tupleLen, len(elements)),
				Value: fmt.Sprintf("%d values", len(elements)),
				Flag:  flagName,
			}
		}
		out := reflect.New(containerType).Elem()
		for i, e := range elements {
			out.Index(i).Set(e)
		}
		return out, nil

	default:
		return reflect.Value{}, fmt.Errorf("%w: not a container shape", errors.ErrUnsupported)
	}
}
