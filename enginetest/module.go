package enginetest

import (
	"fmt"
	"strings"

	scriptmodules "github.com/wippyai/script-modules"
)

// Module is one engine-side module record. Handles crossing the engine
// boundary are *Module pointers.
type Module struct {
	specifier string
	source    string
	synthetic bool

	directives []directive
	steps      scriptmodules.EvaluationSteps
	declared   map[string]struct{}

	status    scriptmodules.ModuleStatus
	exports   map[string]any
	exception any

	evalResolver resolver
	evalPromise  scriptmodules.Promise
}

// Specifier returns the URL string the module was created under.
func (m *Module) Specifier() string { return m.specifier }

// Synthetic reports whether the module was created through
// CreateSynthetic.
func (m *Module) Synthetic() bool { return m.synthetic }

const (
	dirImport = iota
	dirExport
	dirDefault
	dirThrow
	dirAwait
)

type directive struct {
	kind         int
	spec         string
	attributes   map[string]string
	name         string
	value        string
	awaitSettles bool
	resolved     *Module
}

// parseSource compiles the line-oriented directive language standing
// in for real script source:
//
//	import <specifier> [with k=v ...]
//	export <name> <value>
//	default <value>
//	throw <message>
//	await
//	await resolved
//	compile-error <message>
//
// Blank lines and lines starting with # are ignored. A compile-error
// line fails compilation with the given message.
func parseSource(source string) ([]directive, error) {
	var dirs []directive
	for ln, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		word, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)
		switch word {
		case "import":
			spec, attrText, _ := strings.Cut(rest, " with ")
			spec = strings.TrimSpace(spec)
			if spec == "" {
				return nil, fmt.Errorf("line %d: import needs a specifier", ln+1)
			}
			d := directive{kind: dirImport, spec: spec}
			if attrText = strings.TrimSpace(attrText); attrText != "" {
				d.attributes = make(map[string]string)
				for _, pair := range strings.Fields(attrText) {
					k, v, ok := strings.Cut(pair, "=")
					if !ok {
						return nil, fmt.Errorf("line %d: malformed import attribute %q", ln+1, pair)
					}
					d.attributes[k] = v
				}
			}
			dirs = append(dirs, d)
		case "export":
			name, value, ok := strings.Cut(rest, " ")
			if !ok {
				return nil, fmt.Errorf("line %d: export needs a name and a value", ln+1)
			}
			dirs = append(dirs, directive{kind: dirExport, name: name, value: strings.TrimSpace(value)})
		case "default":
			dirs = append(dirs, directive{kind: dirDefault, value: rest})
		case "throw":
			dirs = append(dirs, directive{kind: dirThrow, value: rest})
		case "await":
			dirs = append(dirs, directive{kind: dirAwait, awaitSettles: rest == "resolved"})
		case "compile-error":
			return nil, fmt.Errorf("%s", rest)
		default:
			return nil, fmt.Errorf("line %d: unknown directive %q", ln+1, word)
		}
	}
	return dirs, nil
}
