package argstruct

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

type ErrUnknownFlag struct {
	Cause error
	Flag  string
}

func (e *ErrUnknownFlag) Error() string {
	return fmt.Sprintf("unknown flag: --%s", e.Flag)
}

func (e *ErrUnknownFlag) Unwrap() error {
	return e.Cause
}

type ErrRequiredFlagMissing struct {
	Cause error
	Flag  string
}

func (e *ErrRequiredFlagMissing) Error() string {
	return fmt.Sprintf("required flag is missing: --%s", e.Flag)
}

func (e *ErrRequiredFlagMissing) Unwrap() error {
	return e.Cause
}

// binding is the per-parse copy of an argument specification: the spec itself (never mutated),
// the destinations it routes to, and the raw value layers gathered from each source. A fresh
// binding set is built for every parse call, so repeated parses are idempotent.
type binding struct {
	spec        *argSpec
	section     string // config section for grouped fields, empty for top-level fields
	configLayer bool   // whether the config mapping participates in this binding's precedence

	dests      []reflect.Value
	envVarName *string

	envRaw    *string
	configVal any // string, []string or bool, already kind-checked by Mapping.lookup
	cliRaw    []string
	seen      bool // the flag appeared on the command line
}

// hasSource reports whether any source (CLI, env, config, compiled-in default) can produce a
// value for this binding. Required flags without a source fail the post-parse check.
func (b *binding) hasSource() bool {
	return b.seen || len(b.cliRaw) > 0 || b.envRaw != nil || b.configVal != nil || b.spec.hasDefault()
}

func (b *binding) isMissing() bool {
	return b.spec.Required && !b.hasSource()
}

// merge folds another specification resolving to the same flag name into this binding. Two
// destinations may legitimately share a flag (e.g. a root schema and a sub-schema both declare
// "verbose"), but only when their shapes agree.
func (b *binding) merge(spec *argSpec, dest reflect.Value) error {
	cur := b.spec
	if cur.hasValue() != spec.hasValue() {
		return fmt.Errorf("flag '%s' is defined both with and without a value", spec.Name)
	}
	if cur.shape.elem != spec.shape.elem {
		return fmt.Errorf("flag '%s' has incompatible element types: %s vs %s", spec.Name, cur.shape.elem, spec.shape.elem)
	}
	if cur.Arity != spec.Arity {
		return fmt.Errorf("flag '%s' has incompatible arities: '%s' vs '%s'", spec.Name, cur.Arity, spec.Arity)
	}
	if !slices.Equal(cur.Choices, spec.Choices) {
		return fmt.Errorf("flag '%s' has incompatible choice lists: [%s] vs [%s]",
			spec.Name, strings.Join(cur.Choices, ", "), strings.Join(spec.Choices, ", "))
	}
	if cur.defaultDisplay() != spec.defaultDisplay() {
		return fmt.Errorf("flag '%s' has incompatible default values: '%s' vs '%s'", spec.Name, cur.defaultDisplay(), spec.defaultDisplay())
	}
	if cur.Secret != spec.Secret {
		return fmt.Errorf("flag '%s' has incompatible secret status", spec.Name)
	}
	if cur.EnvVar != nil && spec.EnvVar != nil && *cur.EnvVar != *spec.EnvVar {
		return fmt.Errorf("flag '%s' has incompatible environment variable names: '%s' vs '%s'", spec.Name, *cur.EnvVar, *spec.EnvVar)
	}
	b.dests = append(b.dests, dest)
	return nil
}

// bindingSet is the flattened public CLI surface of one parse attempt: every flag and positional
// of the selected schema chain, merged by name.
type bindingSet struct {
	flags       []*binding
	byName      map[string]*binding
	positionals []*binding
}

func newBindingSet() *bindingSet {
	return &bindingSet{byName: map[string]*binding{}}
}

func (bs *bindingSet) add(spec *argSpec, section string, configLayer bool, dest reflect.Value) error {
	if spec.Positional {
		bs.positionals = append(bs.positionals, &binding{spec: spec, section: section, configLayer: configLayer, dests: []reflect.Value{dest}})
		return nil
	}
	if existing, ok := bs.byName[spec.Name]; ok {
		return existing.merge(spec, dest)
	}
	b := &binding{spec: spec, section: section, configLayer: configLayer, dests: []reflect.Value{dest}}
	bs.flags = append(bs.flags, b)
	bs.byName[spec.Name] = b
	for _, alias := range spec.Aliases {
		if other, ok := bs.byName[alias]; ok && other != b {
			return fmt.Errorf("flag alias '%s' collides with flag '%s'", alias, other.spec.Name)
		}
		bs.byName[alias] = b
	}
	return nil
}

// setDest writes a converted value to a destination field, allocating optional (pointer)
// destinations on demand and converting assignment-compatible types (e.g. string to Secret).
func setDest(fv reflect.Value, v reflect.Value) error {
	t := fv.Type()
	switch {
	case v.Type().AssignableTo(t):
		fv.Set(v)
	case v.Type().ConvertibleTo(t) && t.Kind() != reflect.Pointer:
		fv.Set(v.Convert(t))
	case t.Kind() == reflect.Pointer && v.Type().AssignableTo(t.Elem()):
		p := reflect.New(t.Elem())
		p.Elem().Set(v)
		fv.Set(p)
	case t.Kind() == reflect.Pointer && v.Type().ConvertibleTo(t.Elem()):
		p := reflect.New(t.Elem())
		p.Elem().Set(v.Convert(t.Elem()))
		fv.Set(p)
	default:
		return fmt.Errorf("%w: cannot assign %s to %s", errors.ErrUnsupported, v.Type(), t)
	}
	return nil
}

// resolve computes the binding's final value under the source precedence (CLI > env > config >
// compiled-in default), applies the converter and container transform, and routes the result to
// every destination. A binding with no source at all leaves its destinations untouched.
func (b *binding) resolve() error {
	spec := b.spec

	switch spec.shape.kind {
	case shapeBool:
		var value bool
		switch {
		case b.seen:
			value = spec.storeVal
		case b.envRaw != nil:
			value = parseTruthy(*b.envRaw)
		case b.configVal != nil:
			value = b.configVal.(bool)
		default:
			value = *b.DefaultBool()
		}
		return b.write(reflect.ValueOf(value))

	case shapeTriBool:
		var raw *string
		switch {
		case len(b.cliRaw) > 0:
			raw = ptrOf(b.cliRaw[len(b.cliRaw)-1])
		case b.envRaw != nil:
			raw = b.envRaw
		case b.configVal != nil:
			if v, ok := b.configVal.(bool); ok {
				return b.write(reflect.ValueOf(v))
			}
		case spec.DefaultRaw != nil:
			raw = spec.DefaultRaw
		}
		if raw == nil {
			return nil // absent: the tri-state stays nil
		}
		return b.write(reflect.ValueOf(parseTruthy(*raw)))

	default:
		if spec.shape.isMultiValued() {
			return b.resolveSequence()
		}
		return b.resolveScalar()
	}
}

// DefaultBool parses the compiled-in default of a presence flag. Schema resolution guarantees it
// is always set for plain booleans.
func (b *binding) DefaultBool() *bool {
	if b.spec.DefaultRaw == nil {
		return nil
	}
	return ptrOf(*b.spec.DefaultRaw == "true")
}

func (b *binding) resolveScalar() error {
	spec := b.spec
	var raw *string
	switch {
	case len(b.cliRaw) > 0:
		raw = ptrOf(b.cliRaw[len(b.cliRaw)-1])
	case b.envRaw != nil:
		raw = b.envRaw
	case b.configVal != nil:
		if s, ok := b.configVal.(string); ok {
			raw = &s
		}
	case spec.DefaultRaw != nil:
		raw = spec.DefaultRaw
	}
	if raw == nil {
		return nil
	}
	if err := spec.checkChoices(*raw); err != nil {
		return err
	}
	value, err := spec.convertOne(*raw)
	if err != nil {
		return err
	}
	return b.write(value)
}

func (b *binding) resolveSequence() error {
	spec := b.spec

	var elements []string
	switch {
	case len(b.cliRaw) > 0 && spec.Positional:
		elements = b.cliRaw
	case len(b.cliRaw) > 0:
		for _, occurrence := range b.cliRaw {
			parts, err := splitCompound(spec.Name, occurrence)
			if err != nil {
				return err
			}
			elements = append(elements, parts...)
		}
	case b.envRaw != nil:
		parsed, err := parseLiteralList(*b.envRaw)
		if err != nil {
			return &ErrInvalidValue{Cause: err, Value: *b.envRaw, Flag: spec.Name}
		}
		elements = parsed
	case b.configVal != nil:
		elements = b.configVal.([]string)
	case spec.DefaultSeq != nil:
		elements = spec.DefaultSeq
	default:
		return nil
	}

	if !spec.Arity.validCount(len(elements)) {
		return &ErrInvalidValue{
			Cause: fmt.Errorf("expected %s values, got %d", spec.Arity, len(elements)),
			Value: fmt.Sprintf("%v", elements),
			Flag:  spec.Name,
		}
	}

	converted := make([]reflect.Value, 0, len(elements))
	for _, raw := range elements {
		if err := spec.checkChoices(raw); err != nil {
			return err
		}
		value, err := spec.convertOne(raw)
		if err != nil {
			return err
		}
		converted = append(converted, value)
	}

	if spec.transform != nil {
		asAny := make([]any, len(converted))
		for i, v := range converted {
			asAny[i] = v.Interface()
		}
		result, err := spec.transform(asAny)
		if err != nil {
			return &ErrInvalidValue{Cause: err, Value: fmt.Sprintf("%v", elements), Flag: spec.Name}
		}
		return b.write(reflect.ValueOf(result))
	}

	for _, dest := range b.dests {
		container, err := buildContainer(spec.Name, spec.shape, dest.Type(), converted)
		if err != nil {
			return err
		}
		if err := setDest(dest, container); err != nil {
			return err
		}
	}
	return nil
}

func (b *binding) write(v reflect.Value) error {
	for _, dest := range b.dests {
		if err := setDest(dest, v); err != nil {
			return err
		}
	}
	return nil
}
