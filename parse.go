package argstruct

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
)

var ErrInvalidSchema = errors.New("invalid schema")

// ErrNotParsed is returned by [Parser.Value] for fields owned by a sub-schema that was not
// selected during the last parse (or when no parse ran at all). Such fields are never written, so
// their in-struct value would be stale rather than resolved.
type ErrNotParsed struct {
	Path string
}

func (e *ErrNotParsed) Error() string {
	return fmt.Sprintf("attribute '%s' was not parsed", e.Path)
}

// Spec configures a [Parser].
type Spec struct {
	// Name is the program name used in help and usage text; defaults to the base name of the
	// executable.
	Name             string
	ShortDescription string
	LongDescription  string

	// ConfigFiles are candidate config file paths, read in order with later files overriding
	// earlier ones key-by-key. Missing or unreadable files are skipped silently.
	ConfigFiles []string
	// ConfigFormat selects the decoder: "ini" (default), "json", "toml" or "yaml".
	ConfigFormat string
	// StrictConfig makes a malformed config file fatal instead of a logged warning.
	StrictConfig bool

	// AutoEnvVarPrefix, when non-empty, derives an environment variable for every flag that has
	// no explicit "env" tag: prefix + uppercased flag name with dashes replaced by underscores.
	AutoEnvVarPrefix string

	// Epilog is appended to the help screen, after the automatically generated config-files
	// appendix.
	Epilog string
}

// Parser derives a full command-line/config-file/environment-variable parsing specification from
// an annotated struct, resolves final values by merging the sources under strict precedence
// (CLI > environment > config file > compiled-in default), and routes them back onto the struct.
//
// A Parser is not safe for concurrent Parse calls: it accumulates the set of environment
// variables it consumed, for the explicit [Parser.SanitizeEnv] step.
type Parser struct {
	spec        Spec
	root        *schema
	target      reflect.Value
	config      Mapping
	loadedFiles []string

	helpSpec  *argSpec
	helpValue bool

	parsed   bool
	selected []*schema
	targets  map[*schema]reflect.Value

	usedEnvVars       map[string]struct{}
	usedSecretEnvVars map[string]struct{}
}

// MustNew creates a new parser using [New], panicking on error.
//
//goland:noinspection GoUnusedExportedFunction
func MustNew(target any, spec Spec) *Parser {
	p, err := New(target, spec)
	if err != nil {
		panic(err)
	}
	return p
}

// New resolves the given target struct into a parsing specification and reads the configured
// config files. All schema definition errors and strict-mode config errors surface here, before
// any command line is seen.
func New(target any, spec Spec) (*Parser, error) {
	tv := reflect.ValueOf(target)
	if !tv.IsValid() || tv.Kind() != reflect.Pointer || tv.IsNil() || tv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: target must be a non-nil pointer to a struct, got %T", ErrInvalidSchema, target)
	}
	if spec.Name == "" {
		spec.Name = filepath.Base(os.Args[0])
	}

	decoder, err := DecoderFor(spec.ConfigFormat)
	if err != nil {
		return nil, err
	}
	config, loaded, warnings, err := loadConfig(spec.ConfigFiles, decoder, spec.StrictConfig)
	if err != nil {
		return nil, err
	}
	for _, warning := range warnings {
		slog.Warn("skipping config file", "reason", warning)
	}

	root, err := resolveSchema("", spec.ShortDescription, tv.Elem().Type(), tv.Elem(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	p := &Parser{
		spec:              spec,
		root:              root,
		target:            tv.Elem(),
		config:            config,
		loadedFiles:       loaded,
		usedEnvVars:       map[string]struct{}{},
		usedSecretEnvVars: map[string]struct{}{},
	}
	p.helpSpec = &argSpec{
		Name:       "help",
		ConfigKey:  "help",
		FieldName:  "Help",
		Desc:       "Show this help screen and exit.",
		Arity:      ArityOne,
		DefaultRaw: ptrOf("false"),
		storeVal:   true,
		shape:      shapeInfo{kind: shapeBool, elem: reflect.TypeOf(false)},
	}
	return p, nil
}

// LoadedConfigFiles returns the config files that were actually read and merged.
func (p *Parser) LoadedConfigFiles() []string {
	return append([]string{}, p.loadedFiles...)
}

// Config returns the merged config mapping.
func (p *Parser) Config() Mapping {
	return p.config
}

// HelpRequested reports whether the last parse saw the --help flag.
func (p *Parser) HelpRequested() bool {
	return p.helpRequested()
}

func (p *Parser) helpRequested() bool {
	return p.parsed && p.helpValue
}

// Selected returns the discriminator tokens of the sub-schema chain selected by the last parse,
// from the outermost sub-command inwards.
func (p *Parser) Selected() []string {
	var names []string
	for _, sc := range p.selected {
		if sc.name != "" {
			names = append(names, sc.name)
		}
	}
	return names
}

// inferChain splits the raw arguments into flag tokens and positional tokens, descending into
// sub-schemas for every leading positional that matches a discriminator. Everything after a "--"
// separator is positional regardless of shape.
func (p *Parser) inferChain(args []string) (flags, positionals []string, selected []*schema) {
	current := p.root
	selected = []*schema{current}
	onlyPositionals := false
	for _, arg := range args {
		switch {
		case onlyPositionals:
			positionals = append(positionals, arg)
		case arg == "--":
			onlyPositionals = true
		case strings.HasPrefix(arg, "-"):
			flags = append(flags, arg)
		default:
			if sub := current.findSub(arg); sub != nil {
				current = sub
				selected = append(selected, sub)
			} else {
				positionals = append(positionals, arg)
			}
		}
	}
	return
}

// allocTargets binds each schema of the selected chain to its concrete struct value, allocating
// sub-schema pointers on demand. Pointers of unselected sub-schemas are never touched.
func (p *Parser) allocTargets(selected []*schema) map[*schema]reflect.Value {
	targets := map[*schema]reflect.Value{p.root: p.target}
	for _, sub := range selected[1:] {
		holder := targets[sub.parent].FieldByIndex(sub.holder)
		if holder.IsNil() {
			holder.Set(reflect.New(sub.structType))
		}
		targets[sub] = holder.Elem()
	}
	return targets
}

func (p *Parser) buildBindings(selected []*schema, targets map[*schema]reflect.Value) (*bindingSet, error) {
	bs := newBindingSet()
	if err := bs.add(p.helpSpec, "", false, reflect.ValueOf(&p.helpValue).Elem()); err != nil {
		return nil, err
	}
	for _, sc := range selected {
		target := targets[sc]
		for _, spec := range sc.args {
			dest := target.FieldByIndex(spec.index)
			if err := bs.add(spec, "", sc == p.root, dest); err != nil {
				return nil, err
			}
		}
		for _, g := range sc.groups {
			groupTarget := target.FieldByIndex(g.index)
			for _, spec := range g.args {
				dest := groupTarget.FieldByIndex(spec.index)
				// Like leaf args, grouped args read config sections only on the root schema.
				if err := bs.add(spec, g.Name, sc == p.root, dest); err != nil {
					return nil, err
				}
			}
		}
	}
	return bs, nil
}

// applyLayers seeds each binding's config and environment layers: the config value (by field
// name, or section + field name for grouped fields) forms the effective default, and a present
// environment variable sits above it. Consumed (and secret-sourced) variable names are recorded
// for SanitizeEnv.
func (p *Parser) applyLayers(bs *bindingSet, envVars map[string]string) error {
	all := append(append([]*binding{}, bs.flags...), bs.positionals...)
	for _, b := range all {
		spec := b.spec

		if b.configLayer && spec.shape.kind != shapeMapping {
			value, found, err := p.config.lookup(b.section, spec.ConfigKey, spec.valueKind())
			if err != nil {
				return err
			}
			if found {
				b.configVal = value
			}
		}

		b.envVarName = spec.EnvVar
		if b.envVarName == nil && p.spec.AutoEnvVarPrefix != "" {
			b.envVarName = ptrOf(p.spec.AutoEnvVarPrefix + flagNameToEnvVarName(spec.Name))
		}
		if b.envVarName != nil {
			if value, found := envVars[*b.envVarName]; found {
				b.envRaw = &value
				p.usedEnvVars[*b.envVarName] = struct{}{}
				if spec.Secret {
					p.usedSecretEnvVars[*b.envVarName] = struct{}{}
				}
			}
		}
	}
	return nil
}

var unknownFlagRE = regexp.MustCompile(`^flag provided but not defined: -(.+)$`)

// Parse resolves final values for every field of the selected schema chain from the given
// command-line arguments and environment snapshot. The environment is never read implicitly;
// pass [EnvVarsArrayToMap](os.Environ()) for the real one.
func (p *Parser) Parse(args []string, envVars map[string]string) error {
	if envVars == nil {
		envVars = map[string]string{}
	}
	p.helpValue = false
	p.parsed = false

	flagTokens, positionalTokens, selected := p.inferChain(args)
	targets := p.allocTargets(selected)

	bs, err := p.buildBindings(selected, targets)
	if err != nil {
		return err
	}
	if err := p.applyLayers(bs, envVars); err != nil {
		return err
	}

	// One pass of the underlying tokenizer over the flag tokens
	stdFs := flag.NewFlagSet("", flag.ContinueOnError)
	stdFs.SetOutput(io.Discard)
	for _, b := range bs.flags {
		b := b
		names := append([]string{b.spec.Name}, b.spec.Aliases...)
		for _, name := range names {
			if b.spec.hasValue() {
				stdFs.Func(name, "", func(v string) error {
					b.cliRaw = append(b.cliRaw, v)
					b.seen = true
					return nil
				})
			} else {
				stdFs.BoolFunc(name, "", func(string) error {
					b.seen = true
					return nil
				})
			}
		}
	}
	// An explicit terminator keeps "-"-prefixed positionals out of the tokenizer
	tokens := append(flagTokens, "--")
	tokens = append(tokens, positionalTokens...)
	if err := stdFs.Parse(tokens); err != nil {
		if matches := unknownFlagRE.FindStringSubmatch(err.Error()); matches != nil {
			return &ErrUnknownFlag{Cause: err, Flag: matches[1]}
		}
		return err
	}

	p.selected = selected
	p.targets = targets
	p.parsed = true
	if p.helpValue {
		return nil
	}

	if err := allocatePositionals(stdFs.Args(), bs.positionals); err != nil {
		return err
	}

	// All source layers are gathered by now, so missing required flags must fail before any
	// binding writes to the target: a failed parse leaves preset field values intact.
	for _, b := range bs.flags {
		if b.spec.shape.kind != shapeMapping && b.isMissing() {
			return &ErrRequiredFlagMissing{Flag: b.spec.Name}
		}
	}
	for _, b := range bs.positionals {
		if b.isMissing() {
			return &ErrRequiredFlagMissing{Flag: b.spec.Name}
		}
	}

	for _, b := range append(append([]*binding{}, bs.flags...), bs.positionals...) {
		if b.spec.shape.kind == shapeMapping {
			if err := p.resolveMapping(b); err != nil {
				return err
			}
		} else if err := b.resolve(); err != nil {
			return err
		}
	}
	return nil
}

// resolveMapping loads a config-loading flag: the path given on the command line (if any) is
// prepended to the declared search paths, every readable file is decoded and merged, and the
// merged mapping is written to the field.
func (p *Parser) resolveMapping(b *binding) error {
	spec := b.spec
	paths := spec.configPaths
	if len(b.cliRaw) > 0 {
		paths = append([]string{b.cliRaw[len(b.cliRaw)-1]}, paths...)
	} else if b.envRaw != nil {
		paths = append([]string{*b.envRaw}, paths...)
	}
	decoder, err := DecoderFor(spec.configFormat)
	if err != nil {
		return err
	}
	mapping, loaded, warnings, err := loadConfig(paths, decoder, p.spec.StrictConfig)
	if err != nil {
		return err
	}
	for _, warning := range warnings {
		slog.Warn("skipping config file", "flag", spec.Name, "reason", warning)
	}
	if spec.Required && len(loaded) == 0 {
		return &ErrRequiredConfigMissing{Flag: spec.Name, Paths: paths}
	}
	return b.write(reflect.ValueOf(mapping))
}

// allocatePositionals distributes leftover positional tokens to positional bindings in
// declaration order. Variable arities consume greedily, leaving just enough tokens to satisfy the
// minimum needs of later positionals; tokens left over after all bindings are an error.
func allocatePositionals(tokens []string, positionals []*binding) error {
	minNeed := func(a Arity) int {
		switch a {
		case ArityOne, ArityOneOrMore:
			return 1
		case ArityOptional, ArityZeroOrMore:
			return 0
		default:
			return int(a)
		}
	}
	remainingMin := 0
	for _, b := range positionals {
		remainingMin += minNeed(b.spec.Arity)
	}

	for _, b := range positionals {
		remainingMin -= minNeed(b.spec.Arity)
		var take int
		switch b.spec.Arity {
		case ArityOne:
			take = 1
		case ArityOptional:
			take = min(1, len(tokens)-remainingMin)
		case ArityZeroOrMore, ArityOneOrMore:
			take = len(tokens) - remainingMin
		default:
			take = int(b.spec.Arity)
		}
		if take < 0 {
			take = 0
		}
		if take > len(tokens) {
			take = len(tokens)
		}
		if take > 0 {
			b.cliRaw = append([]string{}, tokens[:take]...)
			b.seen = true
			tokens = tokens[take:]
		}
	}
	if len(tokens) > 0 {
		return fmt.Errorf("unexpected positional arguments: %s", strings.Join(tokens, " "))
	}
	return nil
}

// SanitizeEnv removes the environment variables the parser consumed during its parse calls from
// the process environment: only the ones that sourced secret fields when onlySecrets is true, all
// of them otherwise. This is a discrete, re-enterable step and never runs implicitly.
func (p *Parser) SanitizeEnv(onlySecrets bool) {
	if onlySecrets {
		for name := range p.usedSecretEnvVars {
			_ = os.Unsetenv(name)
		}
		p.usedSecretEnvVars = map[string]struct{}{}
		return
	}
	for name := range p.usedEnvVars {
		_ = os.Unsetenv(name)
	}
	p.usedEnvVars = map[string]struct{}{}
	p.usedSecretEnvVars = map[string]struct{}{}
}

// Value returns the resolved value at the given dotted path: "port" for a top-level field,
// "db.host" for a grouped field, "push.force" for a sub-schema field. Fields of sub-schemas that
// were not selected by the last parse yield [ErrNotParsed].
func (p *Parser) Value(path string) (any, error) {
	parts := strings.Split(path, ".")
	current := p.root
	target := p.target

	for i, part := range parts {
		last := i == len(parts)-1
		if !last {
			if sub := current.findSub(part); sub != nil {
				if !p.parsed || !p.isSelected(sub) {
					return nil, &ErrNotParsed{Path: path}
				}
				target = p.targets[sub]
				current = sub
				continue
			}
			if g := current.findGroup(part); g != nil && i == len(parts)-2 {
				for _, spec := range g.args {
					if spec.ConfigKey == parts[i+1] || spec.FieldName == parts[i+1] {
						return target.FieldByIndex(g.index).FieldByIndex(spec.index).Interface(), nil
					}
				}
				return nil, fmt.Errorf("unknown field '%s' in group '%s'", parts[i+1], part)
			}
			return nil, fmt.Errorf("unknown path element '%s' in '%s'", part, path)
		}
		for _, spec := range current.args {
			if spec.Name == part || spec.ConfigKey == part || spec.FieldName == part {
				return target.FieldByIndex(spec.index).Interface(), nil
			}
		}
		return nil, fmt.Errorf("unknown field '%s' in '%s'", part, path)
	}
	return nil, fmt.Errorf("empty path")
}

func (p *Parser) isSelected(sub *schema) bool {
	for _, sc := range p.selected {
		if sc == sub {
			return true
		}
	}
	return false
}

func (s *schema) findGroup(name string) *group {
	for _, g := range s.groups {
		if g.Name == name {
			return g
		}
	}
	return nil
}

// deepestTarget returns the struct value of the deepest selected schema, used by Execute to
// locate the action to run.
func (p *Parser) deepestTarget() reflect.Value {
	if len(p.selected) == 0 {
		return p.target
	}
	return p.targets[p.selected[len(p.selected)-1]]
}
