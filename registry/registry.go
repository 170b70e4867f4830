package registry

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	scriptmodules "github.com/wippyai/script-modules"
	"github.com/wippyai/script-modules/errors"
)

// EvalCallback overrides module evaluation for eligible modules. It is
// configured once per registry and shared by every module resolved
// through it.
type EvalCallback func(ctx context.Context, eng scriptmodules.Engine, mod Module,
	h scriptmodules.Handle, obs CompilationObserver) (scriptmodules.Promise, error)

// maxRedirectHops bounds redirect chains within one resolution. The
// visited set catches cycles; the hop bound catches pathological
// acyclic chains.
const maxRedirectHops = 32

// Registry is the ordered composition of bundles, optionally delegating
// misses to a parent. It is immutable after Finish and safe to share
// across engine contexts running on different goroutines; it owns no
// module storage itself and only reads through its bundles.
type Registry struct {
	bundle      []Bundle
	builtin     []Bundle
	builtinOnly []Bundle
	fallback    []Bundle

	parent     *Registry
	observer   ResolveObserver
	bundleBase *url.URL
	attached   any
	evalCb     EvalCallback
}

// BundleBase returns the URL bare and relative specifiers resolve
// against when no referrer is known.
func (r *Registry) BundleBase() *url.URL { return r.bundleBase }

// AttachedData returns the host value attached at build time, nil when
// none was attached.
func (r *Registry) AttachedData() any { return r.attached }

// EvalCallback returns the configured evaluation override, nil when
// none was configured.
func (r *Registry) EvalCallback() EvalCallback { return r.evalCb }

// Resolve finds the module for rc or returns (nil, nil) when no bundle
// in this registry or its parent chain knows the specifier. The
// observer is notified exactly once per call, regardless of redirect
// hops and parent delegation.
func (r *Registry) Resolve(ctx context.Context, rc *ResolveContext) (Module, error) {
	metrics := r.observer.OnResolveModule(rc.Specifier, rc.Type, rc.Source)
	m, err := r.resolve(ctx, *rc)
	if m != nil && err == nil {
		metrics.Found()
	} else {
		metrics.NotFound()
	}
	return m, err
}

func (r *Registry) resolve(ctx context.Context, rc ResolveContext) (Module, error) {
	visited := make(map[string]struct{})
	for hop := 0; ; hop++ {
		if hop >= maxRedirectHops {
			return nil, errors.RedirectLoop(Href(rc.Specifier))
		}
		key := CanonicalKey(rc.Specifier)
		if _, ok := visited[key]; ok {
			return nil, errors.RedirectLoop(key)
		}
		visited[key] = struct{}{}

		res, err := r.scan(ctx, &rc)
		if err != nil {
			return nil, err
		}
		if res == nil {
			if r.parent != nil {
				return r.parent.resolve(ctx, rc)
			}
			return nil, nil
		}
		if res.Module != nil {
			return res.Module, nil
		}

		target, perr := ParseSpecifier(res.Redirect)
		if perr != nil {
			Logger().Debug("redirect target is not an absolute URL",
				zap.String("from", key),
				zap.String("target", res.Redirect))
			return nil, nil
		}
		// Restart under the redirect target, preserving the original
		// type, source and referrer.
		rc.Specifier = CanonicalURL(target)
		rc.RawSpecifier = res.Redirect
		rc.Attributes = cloneAttributes(rc.Attributes)
	}
}

func (r *Registry) scan(ctx context.Context, rc *ResolveContext) (*Resolution, error) {
	switch rc.Type {
	case ResolveBundle:
		if res, err := scanBundles(ctx, r.bundle, rc); res != nil || err != nil {
			return res, err
		}
		if res, err := scanBundles(ctx, r.builtin, rc); res != nil || err != nil {
			return res, err
		}
		if rc.Source != SourceInternal {
			return scanBundles(ctx, r.fallback, rc)
		}
		return nil, nil
	case ResolveBuiltin:
		if res, err := scanBundles(ctx, r.builtin, rc); res != nil || err != nil {
			return res, err
		}
		return scanBundles(ctx, r.builtinOnly, rc)
	case ResolveBuiltinOnly:
		return scanBundles(ctx, r.builtinOnly, rc)
	default:
		return nil, nil
	}
}

func scanBundles(ctx context.Context, bundles []Bundle, rc *ResolveContext) (*Resolution, error) {
	for _, b := range bundles {
		res, err := b.Resolve(ctx, rc)
		if err != nil {
			return nil, err
		}
		if res != nil {
			return res, nil
		}
	}
	return nil, nil
}

func cloneAttributes(attrs map[string]string) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	clone := make(map[string]string, len(attrs))
	for k, v := range attrs {
		clone[k] = v
	}
	return clone
}

// Builder assembles a Registry.
type Builder struct {
	observer      ResolveObserver
	bundleBase    *url.URL
	parent        *Registry
	attached      any
	evalCb        EvalCallback
	allowFallback bool
	bundles       []Bundle
	err           error
}

// NewBuilder creates a registry builder. A nil observer records
// nothing; a nil bundleBase means file:///.
func NewBuilder(obs ResolveObserver, bundleBase *url.URL) *Builder {
	if obs == nil {
		obs = NopResolveObserver{}
	}
	if bundleBase == nil {
		bundleBase = DefaultBundleBase()
	}
	return &Builder{observer: obs, bundleBase: bundleBase}
}

// Add registers a bundle. Bundles of the same kind are scanned in the
// order they were added.
func (b *Builder) Add(bundle Bundle) *Builder {
	if b.err == nil && bundle.Type() == TypeFallback && !b.allowFallback {
		b.err = errors.New(errors.PhaseBuild, errors.KindConfiguration).
			Detail("fallback bundles require AllowFallback").
			Build()
		return b
	}
	b.bundles = append(b.bundles, bundle)
	return b
}

// AllowFallback permits registering fallback bundles. Call it before
// adding one.
func (b *Builder) AllowFallback() *Builder {
	b.allowFallback = true
	return b
}

// SetParent chains a parent registry consulted when this one misses.
// The parent must outlive the built registry.
func (b *Builder) SetParent(parent *Registry) *Builder {
	b.parent = parent
	return b
}

// AttachData attaches an arbitrary host value retrievable through
// Registry.AttachedData.
func (b *Builder) AttachData(v any) *Builder {
	b.attached = v
	return b
}

// SetEvalCallback configures the evaluation override shared by all
// modules resolved through the registry.
func (b *Builder) SetEvalCallback(cb EvalCallback) *Builder {
	b.evalCb = cb
	return b
}

// Finish builds the registry, partitioning bundles by kind.
func (b *Builder) Finish() (*Registry, error) {
	if b.err != nil {
		return nil, b.err
	}
	r := &Registry{
		parent:     b.parent,
		observer:   b.observer,
		bundleBase: b.bundleBase,
		attached:   b.attached,
		evalCb:     b.evalCb,
	}
	for _, bundle := range b.bundles {
		switch bundle.Type() {
		case TypeBundle:
			r.bundle = append(r.bundle, bundle)
		case TypeBuiltin:
			r.builtin = append(r.builtin, bundle)
		case TypeBuiltinOnly:
			r.builtinOnly = append(r.builtinOnly, bundle)
		case TypeFallback:
			r.fallback = append(r.fallback, bundle)
		}
	}
	return r, nil
}
