package registry

import (
	"context"
	"net/url"
	"sort"

	scriptmodules "github.com/wippyai/script-modules"
	"github.com/wippyai/script-modules/errors"
)

// EvaluateCallback produces the exports of a synthetic module. The
// callback MUST be idempotent and safe to call from any goroutine: a
// module shared across engine contexts is evaluated once per context,
// and a require-driven evaluation may re-enter it.
type EvaluateCallback func(ctx context.Context, specifier *url.URL, ns *ModuleNamespace, obs CompilationObserver) error

// EngineBinding is the contract the per-context binding satisfies.
// Engine-invoked callbacks recover it from the engine slot to reach
// context-wide collaborators without global state.
type EngineBinding interface {
	Observer() CompilationObserver
}

// ModuleNamespace gives an evaluate callback write access to its
// module's declared exports.
type ModuleNamespace struct {
	eng       scriptmodules.Engine
	handle    scriptmodules.Handle
	specifier *url.URL
	declared  map[string]struct{}
}

func newModuleNamespace(eng scriptmodules.Engine, h scriptmodules.Handle,
	specifier *url.URL, declared map[string]struct{}) *ModuleNamespace {
	return &ModuleNamespace{eng: eng, handle: h, specifier: specifier, declared: declared}
}

// Set assigns a declared export. Assigning a name the module never
// declared is an error and does not reach the engine.
func (n *ModuleNamespace) Set(ctx context.Context, name string, value any) error {
	if _, ok := n.declared[name]; !ok {
		return errors.New(errors.PhaseEvaluate, errors.KindUndeclaredExport).
			Specifier(Href(n.specifier)).
			Detail("export %q is not declared by this module", name).
			Build()
	}
	return n.eng.SetExport(ctx, n.handle, name, value)
}

// SetDefault assigns the default export.
func (n *ModuleNamespace) SetDefault(ctx context.Context, value any) error {
	return n.Set(ctx, "default", value)
}

// Declared reports whether the module declares the named export.
func (n *ModuleNamespace) Declared(name string) bool {
	_, ok := n.declared[name]
	return ok
}

// Names returns the declared export names in sorted order.
func (n *ModuleNamespace) Names() []string {
	names := make([]string, 0, len(n.declared))
	for name := range n.declared {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// syntheticModule is a host-synthesized module whose exports come from
// an evaluate callback rather than compiled source.
type syntheticModule struct {
	moduleBase
	callback    EvaluateCallback
	exportNames []string
	declared    map[string]struct{}
}

// NewSyntheticModule creates a synthetic module. cb must be non-nil.
// "default" is always declared; listing it in namedExports is allowed
// and has no additional effect. Synthetic modules are never ESM and
// never the entry module, so FlagESM and FlagMain are stripped.
func NewSyntheticModule(specifier *url.URL, typ ModuleType, cb EvaluateCallback,
	namedExports []string, flags Flags) Module {
	flags &^= FlagESM | FlagMain
	declared := make(map[string]struct{}, len(namedExports)+1)
	names := make([]string, 0, len(namedExports)+1)
	for _, name := range namedExports {
		if _, dup := declared[name]; dup || name == "default" {
			continue
		}
		declared[name] = struct{}{}
		names = append(names, name)
	}
	declared["default"] = struct{}{}
	names = append(names, "default")
	return &syntheticModule{
		moduleBase:  moduleBase{specifier: specifier, typ: typ, flags: flags},
		callback:    cb,
		exportNames: names,
		declared:    declared,
	}
}

func (m *syntheticModule) Describe(ctx context.Context, eng scriptmodules.Engine, instance *url.URL,
	obs CompilationObserver) (scriptmodules.Handle, error) {
	if instance == nil {
		instance = m.specifier
	}
	spec := scriptmodules.SyntheticSpec{
		Specifier:   Href(instance),
		ExportNames: append([]string(nil), m.exportNames...),
		Steps:       m.evaluationSteps,
	}
	h, err := eng.CreateSynthetic(ctx, spec)
	if err != nil {
		return nil, errors.New(errors.PhaseCompile, errors.KindEngine).
			Specifier(Href(instance)).
			Cause(err).
			Detail("create synthetic module").
			Build()
	}
	return h, nil
}

func (m *syntheticModule) Evaluate(ctx context.Context, eng scriptmodules.Engine, h scriptmodules.Handle,
	link scriptmodules.LinkFunc, obs CompilationObserver, evalCb EvalCallback) (scriptmodules.Promise, error) {
	if err := ensureInstantiated(ctx, eng, h, link, m.specifier); err != nil {
		return nil, err
	}
	if m.IsEval() && evalCb != nil {
		return evalCb(ctx, eng, m, h, obs)
	}
	// Evaluation goes through the engine so it tracks module status;
	// the engine calls back into evaluationSteps.
	p, err := eng.Evaluate(ctx, h)
	if err != nil {
		return nil, errors.Engine(errors.PhaseEvaluate, "evaluate "+Href(m.specifier), err)
	}
	return p, nil
}

// evaluationSteps is the engine-invoked body. The engine calls it when
// the module evaluates as part of a graph, so the observer must be
// recovered from the context's binding rather than passed in.
func (m *syntheticModule) evaluationSteps(ctx context.Context, eng scriptmodules.Engine, h scriptmodules.Handle) (scriptmodules.Promise, error) {
	var obs CompilationObserver = NopCompilationObserver{}
	if b, ok := eng.Slot().(EngineBinding); ok {
		obs = b.Observer()
	}
	return m.runEvaluation(ctx, eng, h, obs)
}

// runEvaluation invokes the evaluate callback. Success resolves the
// returned promise with nil; failure rejects it with the error. The
// promise settles before this function returns.
func (m *syntheticModule) runEvaluation(ctx context.Context, eng scriptmodules.Engine,
	h scriptmodules.Handle, obs CompilationObserver) (scriptmodules.Promise, error) {
	resolver, err := eng.NewResolver(ctx)
	if err != nil {
		return nil, errors.Engine(errors.PhaseEvaluate, "create resolver", err)
	}
	ns := newModuleNamespace(eng, h, m.specifier, m.declared)
	if err := m.callback(ctx, m.specifier, ns, obs); err != nil {
		resolver.Reject(err)
	} else {
		resolver.Resolve(nil)
	}
	return resolver.Promise(), nil
}
