package registry

import (
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"
)

// ResolveContext describes one resolution request.
type ResolveContext struct {
	// Type restricts which bundle kinds may answer.
	Type ResolveType
	// Source tells which protocol initiated the request.
	Source ResolveSource
	// Specifier is the canonical URL being resolved (query and
	// fragment already stripped).
	Specifier *url.URL
	// Referrer is the URL of the requesting module, when known.
	Referrer *url.URL
	// RawSpecifier is the specifier as written in source, when known.
	RawSpecifier string
	// Attributes carries import attributes. Supported resolution paths
	// reject requests with attributes before reaching bundles, and
	// registry-initiated requests always construct empty attributes.
	Attributes map[string]string
}

// Resolution is a bundle's answer. Exactly one of Module and Redirect
// is set: a module ends the resolution, a redirect restarts it under
// the target specifier.
type Resolution struct {
	Module   Module
	Redirect string
}

// ModuleFactory produces a module (or a redirect) on demand. Factories
// run without any bundle lock held in fallback bundles and under the
// bundle lock in static bundles, where they are builder-generated and
// cheap.
type ModuleFactory func(ctx context.Context, rc *ResolveContext) (*Resolution, error)

// Bundle is an ordered collection of modules within a registry. A nil
// Resolution with nil error means the bundle does not know the
// specifier and the registry should keep scanning.
type Bundle interface {
	Type() ModuleType
	Resolve(ctx context.Context, rc *ResolveContext) (*Resolution, error)
}

// staticBundle serves a fixed table built ahead of time. Aliases and
// factories never change after Finish; only the realized-module cache
// mutates, guarded by mu.
type staticBundle struct {
	typ       ModuleType
	base      *url.URL
	aliases   map[string]string
	factories map[string]ModuleFactory

	mu      sync.RWMutex
	modules map[string]Module
}

func newStaticBundle(typ ModuleType, base *url.URL, aliases map[string]string,
	factories map[string]ModuleFactory) *staticBundle {
	return &staticBundle{
		typ:       typ,
		base:      base,
		aliases:   aliases,
		factories: factories,
		modules:   make(map[string]Module),
	}
}

func (b *staticBundle) Type() ModuleType { return b.typ }

// Base returns the URL specifiers of this bundle resolve against, nil
// for builtin bundles.
func (b *staticBundle) Base() *url.URL { return b.base }

func (b *staticBundle) Resolve(ctx context.Context, rc *ResolveContext) (*Resolution, error) {
	key := CanonicalKey(rc.Specifier)

	if target, ok := b.aliases[key]; ok {
		return &Resolution{Redirect: target}, nil
	}

	b.mu.RLock()
	m, ok := b.modules[key]
	b.mu.RUnlock()
	if ok {
		return &Resolution{Module: m}, nil
	}

	factory, ok := b.factories[key]
	if !ok {
		return nil, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.modules[key]; ok {
		return &Resolution{Module: m}, nil
	}
	res, err := factory(ctx, rc)
	if err != nil || res == nil {
		return nil, err
	}
	if res.Module != nil {
		if CanonicalKey(res.Module.Specifier()) != key {
			Logger().Debug("factory produced a module under a different specifier",
				zap.String("requested", key),
				zap.String("produced", Href(res.Module.Specifier())))
			return nil, nil
		}
		b.modules[key] = res.Module
	}
	return res, nil
}

// fallbackBundle delegates every miss to a single host callback,
// typically backed by disk or another slow source. Results are cached
// so the callback sees each specifier once per registry lifetime.
type fallbackBundle struct {
	callback ModuleFactory

	mu      sync.RWMutex
	modules map[string]Module
	aliases map[string]string
}

// NewFallbackBundle creates a bundle that resolves unknown specifiers
// through callback. The callback runs without bundle locks held and
// may therefore be invoked concurrently for the same specifier; the
// first result inserted wins and the rest are discarded. Modules the
// callback returns should carry TypeFallback so their imports resolve
// with application visibility.
func NewFallbackBundle(callback ModuleFactory) Bundle {
	return &fallbackBundle{
		callback: callback,
		modules:  make(map[string]Module),
		aliases:  make(map[string]string),
	}
}

func (b *fallbackBundle) Type() ModuleType { return TypeFallback }

func (b *fallbackBundle) Resolve(ctx context.Context, rc *ResolveContext) (*Resolution, error) {
	key := CanonicalKey(rc.Specifier)

	b.mu.RLock()
	if m, ok := b.modules[key]; ok {
		b.mu.RUnlock()
		return &Resolution{Module: m}, nil
	}
	if target, ok := b.aliases[key]; ok {
		if m, ok := b.modules[target]; ok {
			b.mu.RUnlock()
			return &Resolution{Module: m}, nil
		}
	}
	b.mu.RUnlock()

	res, err := b.callback(ctx, rc)
	if err != nil {
		Logger().Debug("fallback resolver failed",
			zap.String("specifier", Href(rc.Specifier)),
			zap.Error(err))
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	if res.Module == nil {
		// Redirects pass through uncached; the registry restarts and
		// the redirected request lands back here if nothing else
		// claims it.
		return res, nil
	}

	return &Resolution{Module: b.insert(key, res.Module)}, nil
}

// insert stores a callback-produced module under the requested key and
// indexes the module's own specifier as an alias when it differs.
// First insert wins; a racing duplicate is dropped in favor of the
// already-cached module.
func (b *fallbackBundle) insert(key string, m Module) Module {
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.modules[key]; ok {
		return existing
	}
	b.modules[key] = m
	own := CanonicalKey(m.Specifier())
	if own != key {
		if _, ok := b.aliases[own]; !ok {
			b.aliases[own] = key
		}
	}
	return m
}
