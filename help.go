package argstruct

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

func (p *Parser) envNameFor(spec *argSpec) *string {
	if spec.EnvVar != nil {
		return spec.EnvVar
	}
	if p.spec.AutoEnvVarPrefix != "" {
		return ptrOf(p.spec.AutoEnvVarPrefix + flagNameToEnvVarName(spec.Name))
	}
	return nil
}

// helpChain returns the schemas whose flags the help screen should show: the chain selected by
// the last parse, or just the root before any parse.
func (p *Parser) helpChain() []*schema {
	if len(p.selected) > 0 {
		return p.selected
	}
	return []*schema{p.root}
}

// collectHelpFlags flattens the chain's flag surface for display, merged by name and sorted.
// Positionals are returned separately, in declaration order.
func (p *Parser) collectHelpFlags(chain []*schema) (flags []*argSpec, positionals []*argSpec) {
	seen := map[string]bool{}
	add := func(spec *argSpec) {
		if spec.Positional {
			positionals = append(positionals, spec)
			return
		}
		if !seen[spec.Name] {
			seen[spec.Name] = true
			flags = append(flags, spec)
		}
	}
	add(p.helpSpec)
	for _, sc := range chain {
		for _, spec := range sc.args {
			add(spec)
		}
		for _, g := range sc.groups {
			for _, spec := range g.args {
				add(spec)
			}
		}
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })
	return
}

func (spec *argSpec) usageToken() string {
	valueName := ""
	if spec.hasValue() {
		valueName = spec.Placeholder
		if valueName == "" {
			valueName = "VALUE"
		}
	}
	var token string
	if valueName != "" {
		token = fmt.Sprintf("--%s=%s", spec.Name, valueName)
	} else {
		token = fmt.Sprintf("--%s", spec.Name)
	}
	if !spec.Required {
		token = "[" + token + "]"
	}
	return token
}

func (p *Parser) printFlagsSingleLine(w io.Writer, chain []*schema) {
	flags, positionals := p.collectHelpFlags(chain)
	space := false
	for _, spec := range flags {
		if space {
			_, _ = fmt.Fprint(w, " ")
		}
		space = true
		_, _ = fmt.Fprint(w, spec.usageToken())
	}
	for _, spec := range positionals {
		if space {
			_, _ = fmt.Fprint(w, " ")
		}
		space = true
		name := flagNameToEnvVarName(spec.Name)
		if spec.Arity.isMulti() {
			_, _ = fmt.Fprintf(w, "[%s...]", name)
		} else if spec.Required {
			_, _ = fmt.Fprint(w, name)
		} else {
			_, _ = fmt.Fprintf(w, "[%s]", name)
		}
	}
}

// printFlagsMultiLine renders the flag table: one row per flag, the description followed by
// "(default: ...)" unless the flag is secret, and "[ENV: NAME]" when an environment variable is
// bound.
func (p *Parser) printFlagsMultiLine(ww *WrappingWriter, chain []*schema, basePrefix string) {
	flags, _ := p.collectHelpFlags(chain)

	flagsColWidth := 0
	for _, spec := range flags {
		if l := len(spec.usageToken()); l > flagsColWidth {
			flagsColWidth = l
		}
	}
	descriptionStartColumn := flagsColWidth + (10 - flagsColWidth%10)

	for _, spec := range flags {
		token := spec.usageToken()
		_, _ = fmt.Fprint(ww, token)
		_, _ = fmt.Fprint(ww, strings.Repeat(" ", descriptionStartColumn-len(token)))
		_ = ww.SetLinePrefix(basePrefix + strings.Repeat(" ", descriptionStartColumn))

		sep := ""
		if spec.Desc != "" {
			_, _ = fmt.Fprint(ww, spec.Desc)
			sep = " "
		}
		if d := spec.defaultDisplay(); d != "" {
			_, _ = fmt.Fprintf(ww, "%s(default: %s)", sep, d)
			sep = " "
		}
		if len(spec.Choices) > 0 {
			_, _ = fmt.Fprintf(ww, "%s(choices: %s)", sep, strings.Join(spec.Choices, ", "))
			sep = " "
		}
		if envVar := p.envNameFor(spec); envVar != nil {
			_, _ = fmt.Fprintf(ww, "%s[ENV: %s]", sep, *envVar)
		}

		_ = ww.SetLinePrefix(basePrefix)
		_, _ = fmt.Fprintln(ww)
	}
}

// PrintHelp writes the full help screen for the currently selected schema chain.
func (p *Parser) PrintHelp(w io.Writer, width int) error {
	ww, err := NewWrappingWriter(width)
	if err != nil {
		return err
	}

	prefix4 := strings.Repeat(" ", 4)
	chain := p.helpChain()
	deepest := chain[len(chain)-1]
	fullName := deepest.fullName(p.spec.Name)

	shortDesc := p.spec.ShortDescription
	if deepest != p.root {
		shortDesc = deepest.desc
	}
	if shortDesc != "" {
		_, _ = fmt.Fprint(ww, fullName)
		_, _ = fmt.Fprint(ww, ": ")
		_ = ww.SetLinePrefix(prefix4)
		_, _ = fmt.Fprintln(ww, shortDesc)
		_ = ww.SetLinePrefix("")
	} else {
		_, _ = fmt.Fprintln(ww, fullName)
	}
	_, _ = fmt.Fprintln(ww)

	if deepest == p.root && p.spec.LongDescription != "" {
		_, _ = fmt.Fprint(ww, "Description: ")
		_ = ww.SetLinePrefix(prefix4)
		_, _ = fmt.Fprintln(ww, p.spec.LongDescription)
		_ = ww.SetLinePrefix("")
		_, _ = fmt.Fprintln(ww)
	}

	_, _ = fmt.Fprintln(ww, "Usage:")
	_ = ww.SetLinePrefix(prefix4)
	_, _ = fmt.Fprint(ww, fullName+" ")
	_ = ww.SetLinePrefix(strings.Repeat(" ", 8))
	p.printFlagsSingleLine(ww, chain)
	_ = ww.SetLinePrefix("")
	_, _ = fmt.Fprintln(ww)
	_, _ = fmt.Fprintln(ww)

	_, _ = fmt.Fprintln(ww, "Flags:")
	_ = ww.SetLinePrefix(prefix4)
	p.printFlagsMultiLine(ww, chain, prefix4)
	_ = ww.SetLinePrefix("")
	_, _ = fmt.Fprintln(ww)

	if len(deepest.subs) > 0 {
		_, _ = fmt.Fprintln(ww, "Available sub-commands:")

		longest := 0
		for _, sub := range deepest.subs {
			if len(sub.name) > longest {
				longest = len(sub.name)
			}
		}
		descCol := longest + (10 - longest%10)

		for _, sub := range deepest.subs {
			_ = ww.SetLinePrefix(prefix4)
			_, _ = fmt.Fprint(ww, sub.name)
			_, _ = fmt.Fprint(ww, strings.Repeat(" ", descCol-len(sub.name)))
			_ = ww.SetLinePrefix(strings.Repeat(" ", len(prefix4)+descCol))
			_, _ = fmt.Fprintln(ww, sub.desc)
		}
		_ = ww.SetLinePrefix("")
		_, _ = fmt.Fprintln(ww)
	}

	if appendix := p.configAppendix(); appendix != "" {
		_, _ = fmt.Fprintln(ww, appendix)
	}
	if p.spec.Epilog != "" {
		_, _ = fmt.Fprintln(ww, p.spec.Epilog)
	}

	if _, err = w.Write([]byte(ww.String())); err != nil {
		return err
	}
	return nil
}

// configAppendix describes the configured config files and which of them were actually applied.
func (p *Parser) configAppendix() string {
	if len(p.spec.ConfigFiles) == 0 {
		return ""
	}
	format := p.spec.ConfigFormat
	if format == "" {
		format = "ini"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Default values are read from the following %s configuration files: %s.",
		format, strings.Join(p.spec.ConfigFiles, ", "))
	if len(p.loadedFiles) > 0 {
		fmt.Fprintf(&b, " Currently applied: %s.", strings.Join(p.loadedFiles, ", "))
	} else {
		b.WriteString(" None of them exist at the moment.")
	}
	return b.String()
}

// PrintUsageLine writes the single-line usage summary, used when a parse fails.
func (p *Parser) PrintUsageLine(w io.Writer, width int) error {
	ww, err := NewWrappingWriter(width)
	if err != nil {
		return err
	}

	chain := p.helpChain()
	deepest := chain[len(chain)-1]

	_, _ = fmt.Fprint(ww, "Usage: ")
	_ = ww.SetLinePrefix(strings.Repeat(" ", 4))
	_, _ = fmt.Fprint(ww, deepest.fullName(p.spec.Name)+" ")
	p.printFlagsSingleLine(ww, chain)
	_ = ww.SetLinePrefix("")
	_, _ = fmt.Fprintln(ww)

	if _, err = w.Write([]byte(ww.String())); err != nil {
		return err
	}
	return nil
}
