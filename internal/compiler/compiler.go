// Package compiler turns a declarative policy definition into an ordered,
// idempotent remediation manifest for agents.
//
// Compilation is a pure function: identical input always produces
// byte-identical output. The distribution endpoint relies on this for its
// conditional-fetch correctness, so nothing here may depend on time, map
// iteration order, or ambient state.
package compiler

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"go_lpp/internal/model"
)

// Compile renders a policy into its manifest text.
//
// Rule order is fixed: a pkg.ensure rule first when PackageName is set, with
// every args entry rendered as a nested parameter, then a bash rule when the
// script is non-blank. A policy with neither compiles to a header with an
// empty rule list, which is valid.
func Compile(p *model.Policy) string {
	var rules []string

	if p.PackageName != "" {
		rules = append(rules, pkgRule(p))
	}
	if strings.TrimSpace(p.Bash) != "" {
		rules = append(rules, bashRule(p))
	}

	version := p.Version
	if version < 1 {
		version = 1
	}

	var b strings.Builder
	b.WriteString("policy:\n")
	b.WriteString("  id: " + p.ID + "\n")
	b.WriteString("  name: " + p.Name + "\n")
	b.WriteString("  version: " + strconv.Itoa(version) + "\n")
	b.WriteString("\nrules:\n")
	if len(rules) > 0 {
		b.WriteString(strings.Join(rules, "\n") + "\n")
	}
	return b.String()
}

func pkgRule(p *model.Policy) string {
	var b strings.Builder
	b.WriteString("  - id: " + p.ID + "-pkg\n")
	b.WriteString("    type: pkg.ensure\n")
	b.WriteString("    name: " + p.PackageName)

	// Args keys render in sorted order so output is reproducible.
	keys := make([]string, 0, len(p.Args))
	for k := range p.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString("\n    " + k + ": " + scalar(p.Args[k]))
	}
	return b.String()
}

func bashRule(p *model.Policy) string {
	var b strings.Builder
	b.WriteString("  - id: " + p.ID + "-bash\n")
	b.WriteString("    type: bash\n")
	b.WriteString("    code: |\n")
	b.WriteString(indentBlock(p.Bash, 6))
	return b.String()
}

// scalar renders a parameter value as a literal token: strings quoted,
// numbers and booleans bare, nil as null, nested maps and arrays as inline
// JSON (encoding/json sorts map keys, keeping nested output stable).
func scalar(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(raw)
}

func indentBlock(text string, spaces int) string {
	pad := strings.Repeat(" ", spaces)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return pad + strings.ReplaceAll(text, "\n", "\n"+pad)
}
