package binding

import "strings"

// nodeBuiltins lists the top-level Node.js builtin module names
// recognized in node compatibility mode. Subpath imports such as
// fs/promises match through their base name.
var nodeBuiltins = map[string]struct{}{
	"assert":              {},
	"async_hooks":         {},
	"buffer":              {},
	"child_process":       {},
	"cluster":             {},
	"console":             {},
	"constants":           {},
	"crypto":              {},
	"dgram":               {},
	"diagnostics_channel": {},
	"dns":                 {},
	"domain":              {},
	"events":              {},
	"fs":                  {},
	"http":                {},
	"http2":               {},
	"https":               {},
	"inspector":           {},
	"module":              {},
	"net":                 {},
	"os":                  {},
	"path":                {},
	"perf_hooks":          {},
	"process":             {},
	"punycode":            {},
	"querystring":         {},
	"readline":            {},
	"repl":                {},
	"stream":              {},
	"string_decoder":      {},
	"sys":                 {},
	"timers":              {},
	"tls":                 {},
	"trace_events":        {},
	"tty":                 {},
	"url":                 {},
	"util":                {},
	"v8":                  {},
	"vm":                  {},
	"wasi":                {},
	"worker_threads":      {},
	"zlib":                {},
}

// isNodeBuiltin reports whether name is a Node builtin, checking the
// base module name before any subpath separator.
func isNodeBuiltin(name string) bool {
	if i := strings.IndexByte(name, '/'); i >= 0 {
		name = name[:i]
	}
	_, ok := nodeBuiltins[name]
	return ok
}

// rewriteNodeSpecifier maps bare Node builtin names to node: URLs and,
// when processV2 is set, routes node:process to the internal process
// implementation. Specifiers it does not recognize pass through
// unchanged.
func rewriteNodeSpecifier(specifier string, processV2 bool) string {
	name, prefixed := strings.CutPrefix(specifier, "node:")
	if !prefixed {
		if !isNodeBuiltin(name) {
			return specifier
		}
	}
	if processV2 && name == "process" {
		return "node-internal:public_process"
	}
	return "node:" + name
}
