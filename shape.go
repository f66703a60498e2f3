package argstruct

import (
	"encoding"
	"fmt"
	"reflect"
	"time"
)

// ErrUnsupportedFieldType is returned at schema resolution time for field types that cannot be
// expressed as an argument in short form (multi-level pointers, interfaces, channels, arbitrary
// maps, and so on). Such fields need an explicit [Arg] with a converter, or a "name:\"-\"" tag.
type ErrUnsupportedFieldType struct {
	Field string
	Type  reflect.Type
}

func (e *ErrUnsupportedFieldType) Error() string {
	return fmt.Sprintf("unsupported field type for '%s': %s", e.Field, e.Type)
}

// shapeKind is the closed set of declared element shapes. Every schema field resolves to exactly
// one of these, once, during New - parsing never re-inspects types.
type shapeKind uint8

const (
	shapeScalar   shapeKind = iota // string, numbers, time.Duration
	shapeBool                      // presence flag
	shapeTriBool                   // *bool: absent=nil, otherwise an explicit truthy/falsy token
	shapeText                      // encoding.TextUnmarshaler scalar (enum-like)
	shapeList                      // []T
	shapeSet                       // map[T]struct{} or map[T]bool, deduplicated
	shapeTuple                     // [N]T, exactly N values
	shapeSecret                    // Secret
	shapeMapping                   // Mapping: a config-loading flag
	shapeGroup                     // named nested struct
	shapeSubschema                 // *struct tagged as a sub-command
)

// shapeInfo describes a classified field: its shape kind, the per-element type (the container
// element type for list/set/tuple, the scalar type otherwise), and whether the field type was an
// optional (pointer) scalar.
type shapeInfo struct {
	kind     shapeKind
	elem     reflect.Type
	optional bool
	tupleLen int // only for shapeTuple
}

var (
	textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()
	secretType          = reflect.TypeOf(Secret(""))
	mappingType         = reflect.TypeOf(Mapping(nil))
	durationType        = reflect.TypeOf(time.Duration(0))
)

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// classifyElem classifies a container element or optional-unwrapped type. Only scalar-ish types
// are allowed at this level; nesting containers inside containers is not supported in short form.
func classifyElem(field string, t reflect.Type) (reflect.Type, error) {
	if reflect.PointerTo(t).Implements(textUnmarshalerType) || t.Implements(textUnmarshalerType) {
		return t, nil
	}
	if t == durationType || isScalarKind(t.Kind()) {
		return t, nil
	}
	return nil, &ErrUnsupportedFieldType{Field: field, Type: t}
}

// classify resolves the declared element shape of a single schema field. isSubschema reports
// whether the field carried a "cmd" tag (a pointer-to-struct without it is an optional group
// error, with it a subschema).
func classify(field string, t reflect.Type, isSubschema bool) (shapeInfo, error) {
	switch {
	case t == secretType:
		return shapeInfo{kind: shapeSecret, elem: reflect.TypeOf("")}, nil

	case t == mappingType:
		return shapeInfo{kind: shapeMapping, elem: t}, nil

	case t == durationType:
		return shapeInfo{kind: shapeScalar, elem: t}, nil

	case reflect.PointerTo(t).Implements(textUnmarshalerType):
		return shapeInfo{kind: shapeText, elem: t}, nil

	case t.Kind() == reflect.Bool:
		return shapeInfo{kind: shapeBool, elem: t}, nil

	case isScalarKind(t.Kind()):
		return shapeInfo{kind: shapeScalar, elem: t}, nil

	case t.Kind() == reflect.Pointer:
		inner := t.Elem()
		if inner.Kind() == reflect.Struct {
			if isSubschema {
				return shapeInfo{kind: shapeSubschema, elem: inner}, nil
			}
			return shapeInfo{}, &ErrUnsupportedFieldType{Field: field, Type: t}
		}
		if inner.Kind() == reflect.Bool {
			return shapeInfo{kind: shapeTriBool, elem: inner, optional: true}, nil
		}
		elem, err := classifyElem(field, inner)
		if err != nil {
			return shapeInfo{}, err
		}
		info, err := classify(field, elem, false)
		if err != nil {
			return shapeInfo{}, err
		}
		info.optional = true
		return info, nil

	case t.Kind() == reflect.Slice:
		elem, err := classifyElem(field, t.Elem())
		if err != nil {
			return shapeInfo{}, err
		}
		return shapeInfo{kind: shapeList, elem: elem}, nil

	case t.Kind() == reflect.Array:
		elem, err := classifyElem(field, t.Elem())
		if err != nil {
			return shapeInfo{}, err
		}
		return shapeInfo{kind: shapeTuple, elem: elem, tupleLen: t.Len()}, nil

	case t.Kind() == reflect.Map:
		// Only set-shaped maps are supported: map[T]struct{} or map[T]bool
		vt := t.Elem()
		if vt.Kind() != reflect.Bool && !(vt.Kind() == reflect.Struct && vt.NumField() == 0) {
			return shapeInfo{}, &ErrUnsupportedFieldType{Field: field, Type: t}
		}
		elem, err := classifyElem(field, t.Key())
		if err != nil {
			return shapeInfo{}, err
		}
		return shapeInfo{kind: shapeSet, elem: elem}, nil

	case t.Kind() == reflect.Struct:
		return shapeInfo{kind: shapeGroup, elem: t}, nil

	default:
		return shapeInfo{}, &ErrUnsupportedFieldType{Field: field, Type: t}
	}
}

// isMultiValued reports whether the shape consumes a sequence of values rather than a single one.
func (si shapeInfo) isMultiValued() bool {
	switch si.kind {
	case shapeList, shapeSet, shapeTuple:
		return true
	default:
		return false
	}
}
