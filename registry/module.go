package registry

import (
	"context"
	"net/url"

	scriptmodules "github.com/wippyai/script-modules"
	"github.com/wippyai/script-modules/errors"
)

// ModuleType tells which bundle kind a module belongs to, which in
// turn determines who may see it during resolution.
type ModuleType int

const (
	// TypeBundle is application code, visible to application imports.
	TypeBundle ModuleType = iota
	// TypeBuiltin is runtime-provided code importable by applications.
	TypeBuiltin
	// TypeBuiltinOnly is runtime-internal code, never importable by
	// applications.
	TypeBuiltinOnly
	// TypeFallback marks modules produced by a fallback bundle's
	// resolver callback.
	TypeFallback
)

func (t ModuleType) String() string {
	switch t {
	case TypeBundle:
		return "bundle"
	case TypeBuiltin:
		return "builtin"
	case TypeBuiltinOnly:
		return "builtin-only"
	case TypeFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Flags carries per-module behavior bits.
type Flags int

const (
	FlagNone Flags = 0
	// FlagESM marks a module subject to strict ECMAScript circular
	// import rules under require.
	FlagESM Flags = 1 << 0
	// FlagMain marks the entry module; import.meta.main is true there.
	FlagMain Flags = 1 << 1
	// FlagEval routes evaluation through the registry's eval callback.
	FlagEval Flags = 1 << 2
)

// Has reports whether all bits of f are set.
func (fl Flags) Has(f Flags) bool {
	return fl&f == f
}

// ResolveType restricts which bundle kinds a resolution may see.
type ResolveType int

const (
	ResolveBundle ResolveType = iota
	ResolveBuiltin
	ResolveBuiltinOnly
)

func (t ResolveType) String() string {
	switch t {
	case ResolveBundle:
		return "bundle"
	case ResolveBuiltin:
		return "builtin"
	case ResolveBuiltinOnly:
		return "builtin-only"
	default:
		return "unknown"
	}
}

// ResolveTypeFor maps a referrer's module type to the resolve type its
// imports are entitled to. Fallback-produced modules import like
// application code.
func ResolveTypeFor(t ModuleType) ResolveType {
	switch t {
	case TypeBuiltin:
		return ResolveBuiltin
	case TypeBuiltinOnly:
		return ResolveBuiltinOnly
	default:
		return ResolveBundle
	}
}

// ResolveSource tells which protocol initiated a resolution.
type ResolveSource int

const (
	SourceStaticImport ResolveSource = iota
	SourceDynamicImport
	SourceRequire
	// SourceInternal marks registry-initiated resolutions, such as
	// redirect restarts. Fallback bundles never see these.
	SourceInternal
)

func (s ResolveSource) String() string {
	switch s {
	case SourceStaticImport:
		return "static-import"
	case SourceDynamicImport:
		return "dynamic-import"
	case SourceRequire:
		return "require"
	case SourceInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Module is one loadable unit known to the registry. Implementations
// are immutable and safe to share across engine contexts; any engine
// state lives behind the Handle the module describes into a context.
type Module interface {
	Specifier() *url.URL
	Type() ModuleType
	Flags() Flags
	IsESM() bool
	IsEval() bool
	IsMain() bool

	// Describe compiles or creates the module inside one engine
	// context and returns its handle. instance is the URL the engine
	// module is named after; it carries the requesting specifier's
	// query and fragment, so one registry module can back several
	// engine modules that differ only in query. The binding calls
	// Describe once per context and instance.
	Describe(ctx context.Context, eng scriptmodules.Engine, instance *url.URL,
		obs CompilationObserver) (scriptmodules.Handle, error)

	// Evaluate drives the module to evaluation inside one engine
	// context, instantiating first when needed. Modules flagged
	// FlagEval route through evalCb when one is configured.
	Evaluate(ctx context.Context, eng scriptmodules.Engine, h scriptmodules.Handle,
		link scriptmodules.LinkFunc, obs CompilationObserver, evalCb EvalCallback) (scriptmodules.Promise, error)
}

type moduleBase struct {
	specifier *url.URL
	typ       ModuleType
	flags     Flags
}

func (m *moduleBase) Specifier() *url.URL { return m.specifier }
func (m *moduleBase) Type() ModuleType    { return m.typ }
func (m *moduleBase) Flags() Flags        { return m.flags }
func (m *moduleBase) IsESM() bool         { return m.flags.Has(FlagESM) }
func (m *moduleBase) IsEval() bool        { return m.flags.Has(FlagEval) }
func (m *moduleBase) IsMain() bool        { return m.flags.Has(FlagMain) }

// ensureInstantiated links the module graph if this context has not
// done so yet.
func ensureInstantiated(ctx context.Context, eng scriptmodules.Engine, h scriptmodules.Handle,
	link scriptmodules.LinkFunc, specifier *url.URL) error {
	switch eng.Status(h) {
	case scriptmodules.StatusUninstantiated:
		if err := eng.Instantiate(ctx, h, link); err != nil {
			return errors.Instantiation(Href(specifier), err)
		}
	}
	return nil
}
