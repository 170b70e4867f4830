package binding

import (
	"context"
	"net/url"

	scriptmodules "github.com/wippyai/script-modules"
	"github.com/wippyai/script-modules/errors"
	"github.com/wippyai/script-modules/registry"
)

// RequireOption adjusts how Require reports a missing module.
type RequireOption int

const (
	// RequireDefault treats a missing module as an error.
	RequireDefault RequireOption = iota

	// RequireReturnEmpty reports a missing module as (nil, nil).
	RequireReturnEmpty
)

// Require synchronously loads a module and returns its namespace. The
// module must complete evaluation within one microtask drain; bodies
// that stay pending fail rather than block.
func (b *Binding) Require(ctx context.Context, specifier *url.URL) (scriptmodules.Namespace, error) {
	return b.RequireOr(ctx, specifier, RequireDefault)
}

// RequireOr is Require with an explicit missing-module policy.
//
// A module that already failed evaluation replays its stored
// exception. Requiring a module currently evaluating is an error for
// source modules (the graph is circular through an ESM edge) but
// returns the partially populated namespace for synthetic modules,
// matching CommonJS circular-require semantics.
func (b *Binding) RequireOr(ctx context.Context, specifier *url.URL,
	opt RequireOption) (scriptmodules.Namespace, error) {
	e, err := b.resolve(ctx, registry.ResolveBundle, registry.SourceRequire,
		specifier, nil, registry.Href(specifier))
	if err != nil {
		if opt == RequireReturnEmpty && errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	switch b.eng.Status(e.handle) {
	case scriptmodules.StatusErrored:
		return nil, errors.Evaluation(registry.Href(specifier), b.eng.Exception(e.handle))
	case scriptmodules.StatusEvaluating:
		if e.module.IsESM() {
			return nil, errors.CircularDependency(registry.Href(specifier))
		}
		return b.namespace(e)
	case scriptmodules.StatusEvaluated:
		return b.namespace(e)
	}

	p, err := e.module.Evaluate(ctx, b.eng, e.handle, b.link, b.obs, b.reg.EvalCallback())
	if err != nil {
		return nil, err
	}
	b.eng.RunMicrotasks(ctx)
	switch p.State() {
	case scriptmodules.PromiseFulfilled:
		return b.namespace(e)
	case scriptmodules.PromiseRejected:
		return nil, errors.Evaluation(registry.Href(specifier), p.Result())
	default:
		return nil, errors.TopLevelAwait(registry.Href(specifier))
	}
}

func (b *Binding) namespace(e *entry) (scriptmodules.Namespace, error) {
	ns, err := b.eng.Namespace(e.handle)
	if err != nil {
		return nil, errors.Engine(errors.PhaseRequire, "module namespace", err)
	}
	return ns, nil
}

// ResolveNamespace loads a module through the host-internal path and
// returns its namespace, or (nil, nil) when no registry knows the
// specifier. Evaluation is drained synchronously, so modules with
// unsettled top-level awaits fail.
func (b *Binding) ResolveNamespace(ctx context.Context, specifier *url.URL) (scriptmodules.Namespace, error) {
	e, err := b.resolve(ctx, registry.ResolveBundle, registry.SourceInternal,
		specifier, nil, registry.Href(specifier))
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	p := b.evaluateToNamespace(ctx, e)
	if p == nil {
		return nil, errors.Engine(errors.PhaseEvaluate, "create resolver", nil)
	}
	b.eng.RunMicrotasks(ctx)
	switch p.State() {
	case scriptmodules.PromiseFulfilled:
		ns, _ := p.Result().(scriptmodules.Namespace)
		return ns, nil
	case scriptmodules.PromiseRejected:
		if err, ok := p.Result().(error); ok {
			return nil, err
		}
		return nil, errors.Evaluation(registry.Href(specifier), p.Result())
	default:
		return nil, errors.TopLevelAwait(registry.Href(specifier))
	}
}

// ResolveExport loads a module and returns one export from its
// namespace. A missing module or a missing export both return nil.
func (b *Binding) ResolveExport(ctx context.Context, specifier *url.URL,
	exportName string) (any, error) {
	ns, err := b.ResolveNamespace(ctx, specifier)
	if err != nil || ns == nil {
		return nil, err
	}
	return ns.Get(exportName), nil
}
