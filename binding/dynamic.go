package binding

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	scriptmodules "github.com/wippyai/script-modules"
	"github.com/wippyai/script-modules/errors"
	"github.com/wippyai/script-modules/registry"
)

// dynamicImport is the engine's dynamic-import hook. Failures of any
// kind become a rejected promise; the hook never throws into the
// engine.
func (b *Binding) dynamicImport(ctx context.Context, referrerURL, specifier string,
	attributes map[string]string) scriptmodules.Promise {
	if len(attributes) > 0 {
		return b.rejected(ctx, errors.UnsupportedAttributes(errors.PhaseResolve, specifier))
	}

	base := b.reg.BundleBase()
	var referrer *url.URL
	if referrerURL != "" {
		if u, err := registry.ParseSpecifier(referrerURL); err == nil {
			referrer = u
			base = u
		}
	}

	u, err := registry.ResolveSpecifier(base, b.rewriteSpecifier(specifier))
	if err != nil {
		return b.rejected(ctx, err)
	}
	return b.DynamicResolve(ctx, u, referrer, specifier)
}

// DynamicResolve resolves, evaluates, and settles with the namespace
// of a dynamically imported module. A non-nil referrer must already be
// cached in this context; dynamic imports can only originate from a
// module that was itself loaded here. Every failure converts to a
// rejected promise.
func (b *Binding) DynamicResolve(ctx context.Context, specifier, referrer *url.URL,
	rawSpecifier string) scriptmodules.Promise {
	typ := registry.ResolveBundle
	var refURL *url.URL
	if referrer != nil {
		re, ok := b.byURL[registry.CanonicalKey(referrer)]
		if !ok {
			return b.rejected(ctx, errors.New(errors.PhaseResolve, errors.KindInvalidSpecifier).
				Specifier(registry.Href(referrer)).
				Detail("referring module not found").
				Build())
		}
		typ = registry.ResolveTypeFor(re.module.Type())
		refURL = re.instance
	}

	e, err := b.resolve(ctx, typ, registry.SourceDynamicImport, specifier, refURL, rawSpecifier)
	if err != nil {
		return b.rejected(ctx, err)
	}
	return b.evaluateToNamespace(ctx, e)
}

// evaluateToNamespace evaluates an entry and chains the evaluation
// promise to the module's namespace.
func (b *Binding) evaluateToNamespace(ctx context.Context, e *entry) scriptmodules.Promise {
	p, err := e.module.Evaluate(ctx, b.eng, e.handle, b.link, b.obs, b.reg.EvalCallback())
	if err != nil {
		return b.rejected(ctx, err)
	}
	resolver, err := b.eng.NewResolver(ctx)
	if err != nil {
		return b.rejected(ctx, errors.Engine(errors.PhaseEvaluate, "create resolver", err))
	}
	p.Then(func(any) {
		ns, nerr := b.eng.Namespace(e.handle)
		if nerr != nil {
			resolver.Reject(errors.Engine(errors.PhaseEvaluate, "module namespace", nerr))
			return
		}
		resolver.Resolve(ns)
	}, func(reason any) {
		resolver.Reject(reason)
	})
	return resolver.Promise()
}

// rejected builds a promise rejected with reason. A context that
// cannot even allocate a resolver is beyond use; that case logs and
// returns nil.
func (b *Binding) rejected(ctx context.Context, reason error) scriptmodules.Promise {
	r, err := b.eng.NewResolver(ctx)
	if err != nil {
		b.logger.Error("create resolver for rejection",
			zap.Error(err),
			zap.NamedError("reason", reason))
		return nil
	}
	r.Reject(reason)
	return r.Promise()
}
