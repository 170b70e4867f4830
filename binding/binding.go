package binding

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	scriptmodules "github.com/wippyai/script-modules"
	"github.com/wippyai/script-modules/errors"
	"github.com/wippyai/script-modules/registry"
)

// Options configures a binding.
type Options struct {
	// NodeCompat rewrites bare Node builtin names to node: URLs before
	// resolution, on both static and dynamic import paths.
	NodeCompat bool

	// NodeProcessV2 routes node:process to the node-internal process
	// implementation. Only meaningful with NodeCompat.
	NodeProcessV2 bool

	// Logger overrides the package logger for this binding.
	Logger *zap.Logger
}

// DefaultOptions returns the default binding options: no node
// compatibility, package logger.
func DefaultOptions() *Options {
	return &Options{}
}

// entry binds one registry module to one engine module. A registry
// module can back several entries in the same context when requests
// differ in resolve type or in query/fragment.
type entry struct {
	module registry.Module
	handle scriptmodules.Handle
	typ    registry.ResolveType

	// instance is the URL the engine module is named after: the
	// module's own specifier carrying the requesting specifier's query
	// and fragment.
	instance *url.URL
}

// specKey indexes entries by resolve type and full specifier href,
// query and fragment included.
type specKey struct {
	typ  registry.ResolveType
	href string
}

// Binding connects one registry to one running engine context. It
// lives in the context's slot for its entire lifetime and installs the
// dynamic-import and import-meta hooks at attach time.
//
// An engine context executes single-threaded, so the entry table is
// deliberately unlocked; the registry consulted on misses is itself
// safe to share across contexts.
type Binding struct {
	eng    scriptmodules.Engine
	reg    *registry.Registry
	obs    registry.CompilationObserver
	opts   Options
	logger *zap.Logger

	entries     []*entry
	byHandle    map[scriptmodules.Handle]*entry
	bySpecifier map[specKey]*entry
	byURL       map[string]*entry
}

// Attach wires a registry into an engine context and returns the
// binding. One binding per context; attaching replaces any previous
// slot value and hooks.
func Attach(eng scriptmodules.Engine, reg *registry.Registry,
	obs registry.CompilationObserver, opts *Options) *Binding {
	if obs == nil {
		obs = registry.NopCompilationObserver{}
	}
	var o Options
	if opts != nil {
		o = *opts
	}
	logger := o.Logger
	if logger == nil {
		logger = Logger()
	}
	b := &Binding{
		eng:         eng,
		reg:         reg,
		obs:         obs,
		opts:        o,
		logger:      logger,
		byHandle:    make(map[scriptmodules.Handle]*entry),
		bySpecifier: make(map[specKey]*entry),
		byURL:       make(map[string]*entry),
	}
	eng.SetSlot(b)
	eng.SetDynamicImport(b.dynamicImport)
	eng.SetImportMeta(b.importMeta)
	return b
}

// Engine returns the bound engine context.
func (b *Binding) Engine() scriptmodules.Engine { return b.eng }

// Registry returns the bound registry.
func (b *Binding) Registry() *registry.Registry { return b.reg }

// Observer returns the compilation observer engine-invoked callbacks
// recover through the context slot.
func (b *Binding) Observer() registry.CompilationObserver { return b.obs }

// resolve finds or creates the entry for a specifier. The registry is
// probed with query and fragment stripped, but the entry is cached
// under the full specifier, so imports distinguished only by query get
// distinct engine modules backed by the same registry module. Misses
// are not cached: a later resolution may succeed once a fallback
// learns the specifier.
func (b *Binding) resolve(ctx context.Context, typ registry.ResolveType,
	source registry.ResolveSource, specifier, referrer *url.URL,
	rawSpecifier string) (*entry, error) {
	key := specKey{typ: typ, href: registry.Href(specifier)}
	if e, ok := b.bySpecifier[key]; ok {
		return e, nil
	}

	rc := &registry.ResolveContext{
		Type:         typ,
		Source:       source,
		Specifier:    registry.CanonicalURL(specifier),
		Referrer:     referrer,
		RawSpecifier: rawSpecifier,
	}
	m, err := b.reg.Resolve(ctx, rc)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.NotFound(registry.Href(specifier))
	}

	instance := instanceURL(m.Specifier(), specifier)
	ikey := specKey{typ: typ, href: registry.Href(instance)}
	if e, ok := b.bySpecifier[ikey]; ok {
		// An alias of an already-described module; share the entry.
		b.bySpecifier[key] = e
		return e, nil
	}

	h, err := m.Describe(ctx, b.eng, instance, b.obs)
	if err != nil {
		return nil, err
	}

	e := &entry{module: m, handle: h, typ: typ, instance: instance}
	b.entries = append(b.entries, e)
	b.byHandle[h] = e
	b.bySpecifier[ikey] = e
	if key != ikey {
		b.bySpecifier[key] = e
	}
	if urlKey := registry.CanonicalKey(instance); b.byURL[urlKey] == nil {
		b.byURL[urlKey] = e
	}
	return e, nil
}

// instanceURL names the engine module: the registry module's specifier
// carrying the request's query and fragment. Resolving an alias yields
// the aliased module's own name.
func instanceURL(module, requested *url.URL) *url.URL {
	u := *module
	u.RawQuery = requested.RawQuery
	u.ForceQuery = requested.ForceQuery
	u.Fragment = requested.Fragment
	u.RawFragment = requested.RawFragment
	return &u
}

// link is the static-import resolver handed to Engine.Instantiate.
func (b *Binding) link(ctx context.Context, referrer scriptmodules.Handle,
	specifier string, attributes map[string]string) (scriptmodules.Handle, error) {
	if len(attributes) > 0 {
		return nil, errors.UnsupportedAttributes(errors.PhaseLink, specifier)
	}

	base := b.reg.BundleBase()
	typ := registry.ResolveBundle
	var refURL *url.URL
	if e, ok := b.byHandle[referrer]; ok {
		base = e.instance
		refURL = e.instance
		typ = registry.ResolveTypeFor(e.module.Type())
	}

	u, err := registry.ResolveSpecifier(base, b.rewriteSpecifier(specifier))
	if err != nil {
		return nil, err
	}
	e, err := b.resolve(ctx, typ, registry.SourceStaticImport, u, refURL, specifier)
	if err != nil {
		return nil, err
	}
	return e.handle, nil
}

func (b *Binding) rewriteSpecifier(specifier string) string {
	if !b.opts.NodeCompat {
		return specifier
	}
	return rewriteNodeSpecifier(specifier, b.opts.NodeProcessV2)
}
