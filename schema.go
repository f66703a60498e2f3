package argstruct

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

type Tag string

const (
	TagName        Tag = "name"
	TagAlias       Tag = "alias"
	TagEnv         Tag = "env"
	TagDescription Tag = "desc"
	TagPlaceholder Tag = "placeholder"
	TagRequired    Tag = "required"
	TagSecret      Tag = "secret"
	TagChoices     Tag = "choices"
	TagDefault     Tag = "default"
	TagArity       Tag = "arity"
	TagArgs        Tag = "args"
	TagTitle       Tag = "title"
	TagPrefix      Tag = "prefix"
	TagDefaults    Tag = "defaults"
	TagCmd         Tag = "cmd"
	TagFormat      Tag = "format"
	TagPaths       Tag = "paths"
)

type ErrInvalidTag struct {
	Cause error
	Tag   Tag
	Value string
}

func (e *ErrInvalidTag) Error() string {
	return fmt.Sprintf("invalid tag '%s=%s': %s", e.Tag, e.Value, e.Cause)
}

func (e *ErrInvalidTag) Unwrap() error {
	return e.Cause
}

// ErrUnknownField is returned when an [ArgProvider] names a field that does not exist on the
// schema struct.
type ErrUnknownField struct {
	Field  string
	Struct reflect.Type
}

func (e *ErrUnknownField) Error() string {
	return fmt.Sprintf("unknown field '%s' referenced for struct %s", e.Field, e.Struct)
}

var argProviderType = reflect.TypeOf((*ArgProvider)(nil)).Elem()

// group is a named, prefixed bundle of argument specifications sharing a title and an optional
// per-field default-override map. Groups do not nest.
type group struct {
	Name     string // config section name
	Title    string
	Desc     string
	prefix   string // flag name prefix; may legitimately be empty
	defaults map[string]string
	args     []*argSpec
	index    []int // field index path of the group struct within its owner
}

// schema is the resolved declaration of one parser level: its leaf arguments, its groups, and its
// sub-schemas, each holding a parent link forming the chain used for scoping and help text.
type schema struct {
	name       string // discriminator token; empty for the root
	desc       string
	parent     *schema
	structType reflect.Type
	args       []*argSpec
	groups     []*group
	subs       []*schema
	holder     []int // for sub-schemas: index path of the pointer field within the parent struct
}

// chain returns the schemas from the root down to (and including) this one.
func (s *schema) chain() []*schema {
	var chain []*schema
	for cur := s; cur != nil; cur = cur.parent {
		chain = append([]*schema{cur}, chain...)
	}
	return chain
}

// fullName composes the discriminator tokens from the root to this schema, prefixed with the
// given program name.
func (s *schema) fullName(programName string) string {
	parts := []string{programName}
	for _, sc := range s.chain() {
		if sc.name != "" {
			parts = append(parts, sc.name)
		}
	}
	return strings.Join(parts, " ")
}

func (s *schema) findSub(name string) *schema {
	for _, sub := range s.subs {
		if sub.name == name {
			return sub
		}
	}
	return nil
}

// resolveSchema resolves the given struct type into a schema. The instance (when valid) supplies
// the compiled-in defaults; sub-schemas whose pointer fields are nil are resolved from a scratch
// value instead. All schema definition failures surface here, before any input is read.
func resolveSchema(name, desc string, t reflect.Type, instance reflect.Value, parent *schema) (*schema, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: schema must be a struct, got %s", errors.ErrUnsupported, t)
	}
	s := &schema{name: name, desc: desc, parent: parent, structType: t}
	if err := s.readFields(t, instance, nil); err != nil {
		return nil, err
	}
	if err := s.applyProvidedSpecs(t); err != nil {
		return nil, err
	}
	return s, nil
}

// fieldTags is the parsed tag surface of one schema field.
type fieldTags struct {
	name        *string
	aliases     []string
	env         *string
	desc        string
	placeholder string
	required    *bool
	secret      bool
	choices     []string
	defaultRaw  *string
	arity       *Arity
	positional  bool
	title       string
	prefix      *string
	defaults    map[string]string
	cmd         *string
	format      string
	paths       []string
}

func parseBoolTag(tag Tag, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		var ne *strconv.NumError
		if errors.As(err, &ne) {
			err = ne.Err
		}
		return false, &ErrInvalidTag{Cause: err, Tag: tag, Value: value}
	}
	return v, nil
}

func parseFieldTags(sf reflect.StructField) (*fieldTags, error) {
	ft := &fieldTags{}
	if tag, ok := sf.Tag.Lookup(string(TagName)); ok {
		if tag == "" {
			return nil, &ErrInvalidTag{Cause: fmt.Errorf("must not be empty"), Tag: TagName, Value: tag}
		}
		ft.name = &tag
	}
	if tag, ok := sf.Tag.Lookup(string(TagAlias)); ok {
		for _, alias := range strings.Split(tag, ",") {
			if alias = strings.TrimSpace(alias); alias != "" {
				ft.aliases = append(ft.aliases, alias)
			}
		}
	}
	if tag, ok := sf.Tag.Lookup(string(TagEnv)); ok {
		if tag == "" {
			return nil, &ErrInvalidTag{Cause: fmt.Errorf("must not be empty"), Tag: TagEnv, Value: tag}
		}
		ft.env = ptrOf(strings.ToUpper(tag))
	}
	if tag, ok := sf.Tag.Lookup(string(TagDescription)); ok {
		ft.desc = tag
	}
	if tag, ok := sf.Tag.Lookup(string(TagPlaceholder)); ok {
		if tag == "" {
			return nil, &ErrInvalidTag{Cause: fmt.Errorf("must not be empty"), Tag: TagPlaceholder, Value: tag}
		}
		ft.placeholder = tag
	}
	if tag, ok := sf.Tag.Lookup(string(TagRequired)); ok {
		v, err := parseBoolTag(TagRequired, tag)
		if err != nil {
			return nil, err
		}
		ft.required = &v
	}
	if tag, ok := sf.Tag.Lookup(string(TagSecret)); ok {
		v, err := parseBoolTag(TagSecret, tag)
		if err != nil {
			return nil, err
		}
		ft.secret = v
	}
	if tag, ok := sf.Tag.Lookup(string(TagChoices)); ok {
		for _, c := range strings.Split(tag, ",") {
			if c = strings.TrimSpace(c); c != "" {
				ft.choices = append(ft.choices, c)
			}
		}
		if len(ft.choices) == 0 {
			return nil, &ErrInvalidTag{Cause: fmt.Errorf("must name at least one choice"), Tag: TagChoices, Value: tag}
		}
	}
	if tag, ok := sf.Tag.Lookup(string(TagDefault)); ok {
		ft.defaultRaw = &tag
	}
	if tag, ok := sf.Tag.Lookup(string(TagArity)); ok {
		a, err := parseArity(tag)
		if err != nil {
			return nil, &ErrInvalidTag{Cause: err, Tag: TagArity, Value: tag}
		}
		ft.arity = &a
	}
	if tag, ok := sf.Tag.Lookup(string(TagArgs)); ok {
		v, err := parseBoolTag(TagArgs, tag)
		if err != nil {
			return nil, err
		}
		ft.positional = v
	}
	if tag, ok := sf.Tag.Lookup(string(TagTitle)); ok {
		ft.title = tag
	}
	if tag, ok := sf.Tag.Lookup(string(TagPrefix)); ok {
		ft.prefix = &tag
	}
	if tag, ok := sf.Tag.Lookup(string(TagDefaults)); ok {
		ft.defaults = map[string]string{}
		for _, pair := range strings.Split(tag, ",") {
			k, v, found := strings.Cut(pair, "=")
			if !found || strings.TrimSpace(k) == "" {
				return nil, &ErrInvalidTag{Cause: fmt.Errorf("must be a comma-separated list of key=value pairs"), Tag: TagDefaults, Value: tag}
			}
			ft.defaults[strings.TrimSpace(k)] = v
		}
	}
	if tag, ok := sf.Tag.Lookup(string(TagCmd)); ok {
		ft.cmd = &tag
	}
	if tag, ok := sf.Tag.Lookup(string(TagFormat)); ok {
		ft.format = tag
	}
	if tag, ok := sf.Tag.Lookup(string(TagPaths)); ok {
		for _, p := range strings.Split(tag, ",") {
			if p = strings.TrimSpace(p); p != "" {
				ft.paths = append(ft.paths, p)
			}
		}
	}
	return ft, nil
}

// readFields walks the struct's fields in declaration order, inlining anonymous embedded structs
// (ancestors) at their position. A later field resolving to the same flag name as an earlier one
// overrides the earlier specification, preserving its position.
func (s *schema) readFields(st reflect.Type, inst reflect.Value, idxPrefix []int) error {
	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		if !sf.IsExported() {
			continue
		}
		index := append(append([]int{}, idxPrefix...), i)

		if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
			var fieldInst reflect.Value
			if inst.IsValid() {
				fieldInst = inst.Field(i)
			}
			if err := s.readFields(sf.Type, fieldInst, index); err != nil {
				return err
			}
			continue
		}

		if err := s.readField(st, sf, inst, index); err != nil {
			return fmt.Errorf("invalid field '%s.%s': %w", st, sf.Name, err)
		}
	}
	return nil
}

func (s *schema) readField(st reflect.Type, sf reflect.StructField, inst reflect.Value, index []int) error {
	if sf.Tag.Get(string(TagName)) == "-" {
		return nil
	}
	ft, err := parseFieldTags(sf)
	if err != nil {
		return err
	}

	var fieldInst reflect.Value
	if inst.IsValid() {
		fieldInst = inst.Field(index[len(index)-1])
	}

	// Sub-command: a pointer-to-struct field tagged with "cmd"
	if ft.cmd != nil {
		if sf.Type.Kind() != reflect.Pointer || sf.Type.Elem().Kind() != reflect.Struct {
			return &ErrInvalidTag{Cause: fmt.Errorf("requires a pointer-to-struct field"), Tag: TagCmd, Value: *ft.cmd}
		}
		name := *ft.cmd
		if name == "" {
			name = fieldNameToFlagName(sf.Name)
		}
		var subInst reflect.Value
		if fieldInst.IsValid() && !fieldInst.IsNil() {
			subInst = fieldInst.Elem()
		}
		sub, err := resolveSchema(name, ft.desc, sf.Type.Elem(), subInst, s)
		if err != nil {
			return err
		}
		sub.holder = index
		s.subs = append(s.subs, sub)
		return nil
	}

	info, err := classify(sf.Name, sf.Type, false)
	if err != nil {
		return err
	}

	switch info.kind {
	case shapeGroup:
		g := &group{
			Name:     defaultIfNil(ft.name, fieldNameToFlagName(sf.Name)),
			Title:    ft.title,
			Desc:     ft.desc,
			prefix:   defaultIfNil(ft.prefix, fieldNameToFlagName(sf.Name)),
			defaults: ft.defaults,
			index:    index,
		}
		if err := s.readGroupFields(g, sf.Type, fieldInst, nil); err != nil {
			return err
		}
		s.groups = append(s.groups, g)
		return nil

	case shapeMapping:
		spec, err := s.buildArgSpec(sf, ft, info, fieldInst, "", index)
		if err != nil {
			return err
		}
		spec.configFormat = ft.format
		spec.configPaths = ft.paths
		if _, err := DecoderFor(ft.format); err != nil {
			return err
		}
		s.addArg(spec)
		return nil

	default:
		spec, err := s.buildArgSpec(sf, ft, info, fieldInst, "", index)
		if err != nil {
			return err
		}
		s.addArg(spec)
		return nil
	}
}

// readGroupFields resolves a group's member fields. Anonymous embedded structs are inlined at
// their position, as in readFields. Beyond that, groups hold leaf arguments only: nested groups,
// sub-commands, positionals and config-loading fields are schema definition errors.
func (s *schema) readGroupFields(g *group, st reflect.Type, inst reflect.Value, idxPrefix []int) error {
	for i := 0; i < st.NumField(); i++ {
		sf := st.Field(i)
		if !sf.IsExported() || sf.Tag.Get(string(TagName)) == "-" {
			continue
		}
		index := append(append([]int{}, idxPrefix...), i)

		if sf.Anonymous && sf.Type.Kind() == reflect.Struct {
			var fieldInst reflect.Value
			if inst.IsValid() {
				fieldInst = inst.Field(i)
			}
			if err := s.readGroupFields(g, sf.Type, fieldInst, index); err != nil {
				return err
			}
			continue
		}

		ft, err := parseFieldTags(sf)
		if err != nil {
			return fmt.Errorf("invalid field '%s.%s': %w", st, sf.Name, err)
		}
		if ft.cmd != nil {
			return fmt.Errorf("invalid field '%s.%s': %w", st, sf.Name,
				&ErrInvalidTag{Cause: fmt.Errorf("not supported inside a group"), Tag: TagCmd, Value: *ft.cmd})
		}
		if ft.positional {
			return fmt.Errorf("invalid field '%s.%s': %w", st, sf.Name,
				&ErrInvalidTag{Cause: fmt.Errorf("not supported inside a group"), Tag: TagArgs, Value: "true"})
		}
		info, err := classify(sf.Name, sf.Type, false)
		if err != nil {
			return fmt.Errorf("invalid field '%s.%s': %w", st, sf.Name, err)
		}
		if info.kind == shapeGroup || info.kind == shapeMapping {
			return fmt.Errorf("invalid field '%s.%s': groups cannot nest further groups or config fields", st, sf.Name)
		}
		var fieldInst reflect.Value
		if inst.IsValid() {
			fieldInst = inst.Field(i)
		}
		spec, err := s.buildArgSpec(sf, ft, info, fieldInst, g.prefix, index)
		if err != nil {
			return fmt.Errorf("invalid field '%s.%s': %w", st, sf.Name, err)
		}
		if override, ok := g.defaults[spec.ConfigKey]; ok && ft.defaultRaw == nil {
			if spec.shape.isMultiValued() {
				seq, err := parseLiteralList(override)
				if err != nil {
					return fmt.Errorf("invalid field '%s.%s': %w", st, sf.Name,
						&ErrInvalidTag{Cause: err, Tag: TagDefaults, Value: override})
				}
				spec.DefaultSeq = seq
			} else {
				spec.DefaultRaw = &override
			}
			spec.Required = false
		}
		g.addArg(spec)
	}
	return nil
}

// addArg appends a spec, or overrides an earlier spec carrying the same flag name (derived
// declarations shadow inlined ones while keeping the earlier position).
func (g *group) addArg(spec *argSpec) {
	for i, existing := range g.args {
		if existing.Name == spec.Name {
			g.args[i] = spec
			return
		}
	}
	g.args = append(g.args, spec)
}

// addArg appends a spec, or overrides an earlier spec carrying the same flag name (derived
// declarations shadow base ones while keeping the base position).
func (s *schema) addArg(spec *argSpec) {
	for i, existing := range s.args {
		if existing.Name == spec.Name {
			s.args[i] = spec
			return
		}
	}
	s.args = append(s.args, spec)
}

// buildArgSpec produces the canonical argument specification for one classified leaf field.
func (s *schema) buildArgSpec(sf reflect.StructField, ft *fieldTags, info shapeInfo, fieldInst reflect.Value, prefix string, index []int) (*argSpec, error) {
	baseName := defaultIfNil(ft.name, fieldNameToFlagName(sf.Name))
	name := baseName
	if prefix != "" {
		name = prefix + "-" + baseName
	}

	spec := &argSpec{
		Name:        name,
		Aliases:     ft.aliases,
		ConfigKey:   baseName,
		FieldName:   sf.Name,
		Desc:        ft.desc,
		Placeholder: ft.placeholder,
		Choices:     ft.choices,
		Secret:      ft.secret || info.kind == shapeSecret,
		Positional:  ft.positional,
		EnvVar:      ft.env,
		shape:       info,
		fieldType:   sf.Type,
		index:       index,
	}

	// Arity
	switch {
	case ft.arity != nil:
		spec.Arity = *ft.arity
	case info.kind == shapeTuple:
		spec.Arity = Arity(info.tupleLen)
	case info.kind == shapeList || info.kind == shapeSet:
		spec.Arity = ArityOneOrMore // demoted to zero-or-more below when a default exists
	case info.optional:
		spec.Arity = ArityOptional
	default:
		spec.Arity = ArityOne
	}

	// Compiled-in default, from the explicit tag or from the field's preset value
	switch info.kind {
	case shapeBool:
		preset := fieldInst.IsValid() && fieldInst.Bool()
		if ft.defaultRaw != nil {
			preset = parseTruthy(*ft.defaultRaw)
		}
		spec.DefaultRaw = ptrOf(strconv.FormatBool(preset))
		spec.storeVal = !preset
		if ft.required != nil && *ft.required {
			return nil, fmt.Errorf("bool fields cannot be required; use *bool for a tri-state flag")
		}
	case shapeTriBool:
		if ft.defaultRaw != nil {
			spec.DefaultRaw = ft.defaultRaw
		} else if fieldInst.IsValid() && !fieldInst.IsNil() {
			spec.DefaultRaw = ptrOf(strconv.FormatBool(fieldInst.Elem().Bool()))
		}
	case shapeList, shapeSet, shapeTuple:
		if ft.defaultRaw != nil {
			seq, err := parseLiteralList(*ft.defaultRaw)
			if err != nil {
				return nil, &ErrInvalidTag{Cause: err, Tag: TagDefault, Value: *ft.defaultRaw}
			}
			spec.DefaultSeq = seq
		} else if fieldInst.IsValid() && !fieldInst.IsZero() {
			spec.DefaultSeq = formatSequence(fieldInst, info)
		}
	case shapeMapping:
		// config-loading flags have no scalar default; the merged mapping is the value
	default:
		if ft.defaultRaw != nil {
			spec.DefaultRaw = ft.defaultRaw
		} else if info.optional {
			if fieldInst.IsValid() && !fieldInst.IsNil() {
				spec.DefaultRaw = ptrOf(formatScalar(fieldInst.Elem()))
			}
		} else if fieldInst.IsValid() && (ft.required == nil || !*ft.required) {
			spec.DefaultRaw = ptrOf(formatScalar(fieldInst))
		}
	}

	// Required-ness: explicit tag wins; otherwise a list with no default is required, an optional
	// field never is, and plain scalars keep their preset as the default.
	switch {
	case ft.required != nil:
		spec.Required = *ft.required
	case info.optional:
		spec.Required = false
	case (info.kind == shapeList || info.kind == shapeSet) && spec.DefaultSeq == nil:
		spec.Required = true
	default:
		spec.Required = false
	}
	if (info.kind == shapeList || info.kind == shapeSet) && ft.arity == nil && !spec.Required {
		spec.Arity = ArityZeroOrMore
	}

	// Per-element converter (the second resolution pass re-derives it from the type even when a
	// user spec later overrides other attributes)
	if info.kind != shapeMapping {
		convert, err := converterFor(spec.Name, info.elem)
		if err != nil {
			return nil, err
		}
		spec.convert = convert
	}

	return spec, nil
}

// applyProvidedSpecs merges hand-built [Arg] specifications from an [ArgProvider] implementation
// into the resolved arguments, by Go field name.
func (s *schema) applyProvidedSpecs(t reflect.Type) error {
	if !reflect.PointerTo(t).Implements(argProviderType) {
		return nil
	}
	provided := reflect.New(t).Interface().(ArgProvider).ArgSpecs()
	for fieldName, arg := range provided {
		spec := s.findByFieldName(fieldName)
		if spec == nil {
			return &ErrUnknownField{Field: fieldName, Struct: t}
		}
		if len(arg.Aliases) > 0 {
			spec.Aliases = arg.Aliases
		}
		if arg.Arity != nil {
			spec.Arity = *arg.Arity
		}
		if len(arg.Choices) > 0 {
			spec.Choices = arg.Choices
		}
		if arg.Convert != nil {
			spec.custom = arg.Convert
		}
		if arg.Transform != nil {
			spec.transform = arg.Transform
		}
		if arg.Default != nil {
			if spec.shape.isMultiValued() {
				seq, err := parseLiteralList(*arg.Default)
				if err != nil {
					return fmt.Errorf("invalid default for field '%s': %w", fieldName, err)
				}
				spec.DefaultSeq = seq
			} else {
				spec.DefaultRaw = arg.Default
			}
			spec.Required = false
		}
		if arg.Desc != "" {
			spec.Desc = arg.Desc
		}
		if arg.EnvVar != "" {
			spec.EnvVar = ptrOf(strings.ToUpper(arg.EnvVar))
		}
		if arg.Placeholder != "" {
			spec.Placeholder = arg.Placeholder
		}
		if arg.Required != nil {
			spec.Required = *arg.Required
		}
		if arg.Secret {
			spec.Secret = true
		}
	}
	return nil
}

func (s *schema) findByFieldName(fieldName string) *argSpec {
	for _, spec := range s.args {
		if spec.FieldName == fieldName {
			return spec
		}
	}
	for _, g := range s.groups {
		for _, spec := range g.args {
			if spec.FieldName == fieldName {
				return spec
			}
		}
	}
	return nil
}

func formatScalar(v reflect.Value) string {
	if v.Type() == durationType {
		return v.Interface().(interface{ String() string }).String()
	}
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

func formatSequence(v reflect.Value, info shapeInfo) []string {
	var out []string
	switch info.kind {
	case shapeSet:
		iter := v.MapRange()
		for iter.Next() {
			out = append(out, formatScalar(iter.Key()))
		}
	default:
		for i := 0; i < v.Len(); i++ {
			out = append(out, formatScalar(v.Index(i)))
		}
	}
	return out
}
