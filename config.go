package argstruct

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

var ErrUnsupportedFormat = errors.New("unsupported config format")

// ErrConfigDecode is returned (in strict mode) or logged (otherwise) when a config file exists and
// is readable but its content cannot be decoded.
type ErrConfigDecode struct {
	Cause error
	Path  string
}

func (e *ErrConfigDecode) Error() string {
	return fmt.Sprintf("malformed config file '%s': %s", e.Path, e.Cause)
}

func (e *ErrConfigDecode) Unwrap() error {
	return e.Cause
}

// ErrUnexpectedValueKind is returned when a config value has the wrong kind for its declared
// field, e.g. a bare scalar where a sequence was declared. Always fatal, regardless of strictness.
type ErrUnexpectedValueKind struct {
	Key      string
	Expected ValueKind
	Value    any
}

func (e *ErrUnexpectedValueKind) Error() string {
	return fmt.Sprintf("config key '%s' expected %s, got %T: %v", e.Key, e.Expected, e.Value, e.Value)
}

// ErrRequiredConfigMissing is returned when a required config-loading flag found zero readable
// files.
type ErrRequiredConfigMissing struct {
	Flag  string
	Paths []string
}

func (e *ErrRequiredConfigMissing) Error() string {
	return fmt.Sprintf("flag '--%s' is required but no config file could be loaded from %v", e.Flag, e.Paths)
}

// ValueKind is the expected kind of a config value, requested by the precedence resolver when it
// looks a field up in the merged mapping.
type ValueKind uint8

const (
	KindString ValueKind = iota
	KindSequence
	KindBool
)

func (k ValueKind) String() string {
	switch k {
	case KindSequence:
		return "sequence"
	case KindBool:
		return "boolean"
	default:
		return "string"
	}
}

// Mapping is the merged result of reading zero or more config files: a string-keyed mapping where
// a value is either a scalar (a top-level argument) or a nested Mapping (a group section).
type Mapping map[string]any

// Section returns the nested mapping under the given key, or nil when the key is absent or holds
// a scalar.
func (m Mapping) Section(name string) Mapping {
	switch v := m[name].(type) {
	case Mapping:
		return v
	case map[string]any:
		return v
	default:
		return nil
	}
}

// Get returns the raw value of the given top-level key.
func (m Mapping) Get(key string) (any, bool) {
	v, ok := m[key]
	return v, ok
}

// Decode projects the mapping onto the given target struct, weakly typed, with string-to-duration
// and comma-separated string-to-slice conversions applied.
func (m Mapping) Decode(target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]any(m))
}

// lookup retrieves a value by key (optionally within a section) with kind validation. String
// values (the INI native form) are coerced: sequence kind parses a literal list, boolean kind
// matches the truthy vocabulary. Natively-typed values (JSON/TOML/YAML) are validated directly.
func (m Mapping) lookup(section, key string, kind ValueKind) (any, bool, error) {
	source := m
	if section != "" {
		if source = m.Section(section); source == nil {
			return nil, false, nil
		}
	}
	value, ok := source[key]
	if !ok || value == nil {
		return nil, false, nil
	}

	if s, isString := value.(string); isString {
		switch kind {
		case KindSequence:
			elements, err := parseLiteralList(s)
			if err != nil {
				return nil, false, &ErrUnexpectedValueKind{Key: key, Expected: kind, Value: s}
			}
			return elements, true, nil
		case KindBool:
			return parseTruthy(s), true, nil
		default:
			return s, true, nil
		}
	}

	switch kind {
	case KindSequence:
		switch seq := value.(type) {
		case []any:
			elements := make([]string, 0, len(seq))
			for _, e := range seq {
				es, ok := scalarToString(e)
				if !ok {
					return nil, false, &ErrUnexpectedValueKind{Key: key, Expected: kind, Value: value}
				}
				elements = append(elements, es)
			}
			return elements, true, nil
		case []string:
			return seq, true, nil
		default:
			return nil, false, &ErrUnexpectedValueKind{Key: key, Expected: kind, Value: value}
		}
	case KindBool:
		b, isBool := value.(bool)
		if !isBool {
			return nil, false, &ErrUnexpectedValueKind{Key: key, Expected: kind, Value: value}
		}
		return b, true, nil
	default:
		s, ok := scalarToString(value)
		if !ok {
			return nil, false, &ErrUnexpectedValueKind{Key: key, Expected: kind, Value: value}
		}
		return s, true, nil
	}
}

// Decoder decodes one config file's content into a nested mapping: flat keys are top-level
// arguments, nested maps are groups.
type Decoder interface {
	Format() string
	Decode(data []byte) (Mapping, error)
}

// DecoderFor returns the decoder registered for the given format name.
func DecoderFor(format string) (Decoder, error) {
	switch format {
	case "ini", "":
		return iniDecoder{}, nil
	case "json":
		return jsonDecoder{}, nil
	case "toml":
		return tomlDecoder{}, nil
	case "yaml", "yml":
		return yamlDecoder{}, nil
	default:
		return nil, fmt.Errorf("%w: '%s' (supported: ini, json, toml, yaml)", ErrUnsupportedFormat, format)
	}
}

// iniDecoder decodes INI content: the unnamed default section maps to top-level fields, named
// sections map to groups. All values are raw strings; coercion happens at lookup time.
type iniDecoder struct{}

func (iniDecoder) Format() string { return "ini" }

func (iniDecoder) Decode(data []byte) (Mapping, error) {
	f, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, data)
	if err != nil {
		return nil, err
	}
	result := Mapping{}
	for _, key := range f.Section(ini.DefaultSection).Keys() {
		result[key.Name()] = key.Value()
	}
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		section := map[string]any{}
		for _, key := range sec.Keys() {
			section[key.Name()] = key.Value()
		}
		result[sec.Name()] = section
	}
	return result, nil
}

// jsonDecoder decodes a JSON object document. Numbers are kept as json.Number to avoid float
// round-tripping.
type jsonDecoder struct{}

func (jsonDecoder) Format() string { return "json" }

func (jsonDecoder) Decode(data []byte) (Mapping, error) {
	var result map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return nil, err
	}
	return result, nil
}

type tomlDecoder struct{}

func (tomlDecoder) Format() string { return "toml" }

func (tomlDecoder) Decode(data []byte) (Mapping, error) {
	var result map[string]any
	if err := toml.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

type yamlDecoder struct{}

func (yamlDecoder) Format() string { return "yaml" }

func (yamlDecoder) Decode(data []byte) (Mapping, error) {
	var result map[string]any
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mergeMappings merges src into dst at the leaf-key level: a nested section present in both is
// merged key-by-key rather than replaced, so a key absent from a later file keeps the earlier
// file's value.
func mergeMappings(dst Mapping, src Mapping) {
	for k, v := range src {
		srcSection, srcIsMap := toStringMap(v)
		dstSection, dstIsMap := toStringMap(dst[k])
		if srcIsMap && dstIsMap {
			merged := map[string]any{}
			for dk, dv := range dstSection {
				merged[dk] = dv
			}
			for sk, sv := range srcSection {
				merged[sk] = sv
			}
			dst[k] = merged
		} else {
			dst[k] = v
		}
	}
}

func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Mapping:
		return m, true
	default:
		return nil, false
	}
}

// loadConfig reads every candidate path that exists and is readable, decodes it, and merges the
// results in order (later files win, key by key). Unreadable paths are skipped silently; malformed
// files are fatal in strict mode and reported as warnings otherwise. The returned loaded list
// names exactly the files that were incorporated.
func loadConfig(paths []string, dec Decoder, strict bool) (mapping Mapping, loaded []string, warnings []string, err error) {
	mapping = Mapping{}
	for _, path := range paths {
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			continue
		}
		fileMapping, decodeErr := dec.Decode(data)
		if decodeErr != nil {
			if strict {
				return nil, nil, nil, &ErrConfigDecode{Cause: decodeErr, Path: path}
			}
			warnings = append(warnings, (&ErrConfigDecode{Cause: decodeErr, Path: path}).Error())
			continue
		}
		mergeMappings(mapping, fileMapping)
		loaded = append(loaded, path)
	}
	return mapping, loaded, warnings, nil
}
