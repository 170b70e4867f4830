package enginetest

import (
	"context"
	"fmt"
	"sort"
	"strings"

	scriptmodules "github.com/wippyai/script-modules"
)

// Engine is an in-memory engine context for tests and examples. Module
// source is the directive language described at parseSource; evaluation
// follows depth-first graph order with a microtask queue, circular
// import tolerance, and stored exceptions, so the loading protocols
// behave as they would against a real script engine.
type Engine struct {
	// CacheVersion namespaces code-cache bytes; CacheCompatible accepts
	// only bytes generated under the same version.
	CacheVersion string

	// RejectCodeCache makes CompileSource refuse cached data that
	// passed the CacheCompatible pre-check, mimicking an engine whose
	// authoritative validation is stricter than the cheap one.
	RejectCodeCache bool

	// FailCodeCache makes CreateCodeCache fail.
	FailCodeCache bool

	modules    []*Module
	slot       any
	dynamic    scriptmodules.DynamicImportFunc
	importMeta scriptmodules.ImportMetaFunc

	microtasks []func()
	evalStack  []*Module
}

// New returns an empty engine context.
func New() *Engine {
	return &Engine{CacheVersion: "v1"}
}

func (e *Engine) cachePrefix() string { return "cache/" + e.CacheVersion + ":" }

func (e *Engine) module(h scriptmodules.Handle) *Module {
	m, ok := h.(*Module)
	if !ok {
		panic(fmt.Sprintf("enginetest: foreign module handle %T", h))
	}
	return m
}

// ModuleBySpecifier returns the first module created under the given
// specifier string, nil when none exists.
func (e *Engine) ModuleBySpecifier(specifier string) scriptmodules.Handle {
	for _, m := range e.modules {
		if m.specifier == specifier {
			return m
		}
	}
	return nil
}

// ModuleCount reports how many engine modules were created under the
// given specifier string.
func (e *Engine) ModuleCount(specifier string) int {
	n := 0
	for _, m := range e.modules {
		if m.specifier == specifier {
			n++
		}
	}
	return n
}

func (e *Engine) CompileSource(ctx context.Context, spec scriptmodules.SourceSpec) (scriptmodules.Handle, bool, error) {
	dirs, err := parseSource(spec.Source)
	if err != nil {
		return nil, false, err
	}
	accepted := spec.CachedData != nil && e.CacheCompatible(spec.CachedData) && !e.RejectCodeCache
	m := &Module{
		specifier:  spec.Specifier,
		source:     spec.Source,
		directives: dirs,
		exports:    make(map[string]any),
	}
	e.modules = append(e.modules, m)
	return m, accepted, nil
}

func (e *Engine) CreateSynthetic(ctx context.Context, spec scriptmodules.SyntheticSpec) (scriptmodules.Handle, error) {
	declared := make(map[string]struct{}, len(spec.ExportNames))
	for _, name := range spec.ExportNames {
		declared[name] = struct{}{}
	}
	m := &Module{
		specifier: spec.Specifier,
		synthetic: true,
		steps:     spec.Steps,
		declared:  declared,
		exports:   make(map[string]any),
	}
	e.modules = append(e.modules, m)
	return m, nil
}

func (e *Engine) CacheCompatible(data []byte) bool {
	return strings.HasPrefix(string(data), e.cachePrefix())
}

func (e *Engine) CreateCodeCache(ctx context.Context, module scriptmodules.Handle) ([]byte, error) {
	if e.FailCodeCache {
		return nil, fmt.Errorf("code cache generation disabled")
	}
	return []byte(e.cachePrefix() + e.module(module).specifier), nil
}

func (e *Engine) Instantiate(ctx context.Context, module scriptmodules.Handle, link scriptmodules.LinkFunc) error {
	return e.instantiate(ctx, e.module(module), link)
}

func (e *Engine) instantiate(ctx context.Context, m *Module, link scriptmodules.LinkFunc) error {
	// Anything past uninstantiated is done or in progress; revisiting
	// an in-progress module is how import cycles terminate.
	if m.status != scriptmodules.StatusUninstantiated {
		return nil
	}
	m.status = scriptmodules.StatusInstantiating
	for i := range m.directives {
		d := &m.directives[i]
		if d.kind != dirImport {
			continue
		}
		dep, err := link(ctx, m, d.spec, d.attributes)
		if err != nil {
			m.status = scriptmodules.StatusUninstantiated
			return err
		}
		d.resolved = e.module(dep)
		if err := e.instantiate(ctx, d.resolved, link); err != nil {
			m.status = scriptmodules.StatusUninstantiated
			return err
		}
	}
	m.status = scriptmodules.StatusInstantiated
	return nil
}

// Evaluate drives a module to completion. Calling it again returns the
// same evaluation promise regardless of outcome.
func (e *Engine) Evaluate(ctx context.Context, module scriptmodules.Handle) (scriptmodules.Promise, error) {
	m := e.module(module)
	if m.evalPromise != nil {
		return m.evalPromise, nil
	}
	if m.status != scriptmodules.StatusInstantiated {
		return nil, fmt.Errorf("module %s is %s, not instantiated", m.specifier, m.status)
	}
	r := e.newResolver()
	m.evalResolver = r
	m.evalPromise = r.Promise()
	m.status = scriptmodules.StatusEvaluating

	if m.synthetic {
		e.evaluateSynthetic(ctx, m)
	} else {
		e.runBody(ctx, m, 0)
	}
	return m.evalPromise, nil
}

func (e *Engine) evaluateSynthetic(ctx context.Context, m *Module) {
	p, err := m.steps(ctx, e, m)
	if err != nil {
		e.settleErrored(m, err)
		return
	}
	p.Then(func(any) {
		m.status = scriptmodules.StatusEvaluated
		m.evalResolver.Resolve(nil)
	}, func(reason any) {
		e.settleErrored(m, reason)
	})
}

// runBody executes a source module's directives starting at from.
// Imports evaluate depth-first; an import of a module currently on the
// evaluation stack is a cycle edge and proceeds with whatever bindings
// exist. An await suspends the body, resuming from the microtask queue
// when the awaited value settles.
func (e *Engine) runBody(ctx context.Context, m *Module, from int) {
	e.evalStack = append(e.evalStack, m)
	defer func() { e.evalStack = e.evalStack[:len(e.evalStack)-1] }()

	for i := from; i < len(m.directives); i++ {
		d := &m.directives[i]
		switch d.kind {
		case dirImport:
			dep := d.resolved
			if dep == nil {
				e.settleErrored(m, fmt.Errorf("import %s was never linked", d.spec))
				return
			}
			if e.onStack(dep) {
				continue
			}
			p, err := e.Evaluate(ctx, dep)
			if err != nil {
				e.settleErrored(m, err)
				return
			}
			switch p.State() {
			case scriptmodules.PromiseFulfilled:
			case scriptmodules.PromiseRejected:
				e.settleErrored(m, p.Result())
				return
			default:
				next := i + 1
				p.Then(func(any) { e.runBody(ctx, m, next) },
					func(reason any) { e.settleErrored(m, reason) })
				return
			}
		case dirExport:
			m.exports[d.name] = d.value
		case dirDefault:
			m.exports["default"] = d.value
		case dirThrow:
			e.settleErrored(m, d.value)
			return
		case dirAwait:
			if d.awaitSettles {
				next := i + 1
				e.enqueue(func() { e.runBody(ctx, m, next) })
			}
			return
		}
	}
	m.status = scriptmodules.StatusEvaluated
	m.evalResolver.Resolve(nil)
}

func (e *Engine) onStack(m *Module) bool {
	for _, s := range e.evalStack {
		if s == m {
			return true
		}
	}
	return false
}

func (e *Engine) settleErrored(m *Module, reason any) {
	m.status = scriptmodules.StatusErrored
	m.exception = reason
	m.evalResolver.Reject(reason)
}

func (e *Engine) Status(module scriptmodules.Handle) scriptmodules.ModuleStatus {
	return e.module(module).status
}

// namespaceView is a live read view over a module's exports; during a
// circular require it reflects whatever has been populated so far.
type namespaceView struct{ m *Module }

func (v namespaceView) Get(name string) any { return v.m.exports[name] }

// Names returns the populated export names in sorted order.
func (v namespaceView) Names() []string {
	names := make([]string, 0, len(v.m.exports))
	for name := range v.m.exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) Namespace(module scriptmodules.Handle) (scriptmodules.Namespace, error) {
	m := e.module(module)
	if m.status == scriptmodules.StatusUninstantiated {
		return nil, fmt.Errorf("module %s has no namespace before instantiation", m.specifier)
	}
	return namespaceView{m: m}, nil
}

func (e *Engine) Exception(module scriptmodules.Handle) any {
	return e.module(module).exception
}

func (e *Engine) SetExport(ctx context.Context, module scriptmodules.Handle, name string, value any) error {
	m := e.module(module)
	if !m.synthetic {
		return fmt.Errorf("module %s is not synthetic", m.specifier)
	}
	if _, ok := m.declared[name]; !ok {
		return fmt.Errorf("module %s does not declare export %q", m.specifier, name)
	}
	m.exports[name] = value
	return nil
}

func (e *Engine) NewResolver(ctx context.Context) (scriptmodules.Resolver, error) {
	return e.newResolver(), nil
}

func (e *Engine) newResolver() resolver {
	return resolver{s: &promiseState{eng: e}}
}

// RunMicrotasks drains the queue until it is empty, including tasks
// enqueued while draining.
func (e *Engine) RunMicrotasks(ctx context.Context) {
	for len(e.microtasks) > 0 {
		task := e.microtasks[0]
		e.microtasks = e.microtasks[1:]
		task()
	}
}

func (e *Engine) enqueue(task func()) { e.microtasks = append(e.microtasks, task) }

func (e *Engine) SetDynamicImport(fn scriptmodules.DynamicImportFunc) { e.dynamic = fn }
func (e *Engine) SetImportMeta(fn scriptmodules.ImportMetaFunc)       { e.importMeta = fn }
func (e *Engine) SetSlot(v any)                                       { e.slot = v }
func (e *Engine) Slot() any                                           { return e.slot }

// DynamicImport invokes the installed dynamic-import hook the way a
// script's import() expression would.
func (e *Engine) DynamicImport(ctx context.Context, referrerURL, specifier string,
	attributes map[string]string) scriptmodules.Promise {
	if e.dynamic == nil {
		panic("enginetest: no dynamic-import hook installed")
	}
	return e.dynamic(ctx, referrerURL, specifier, attributes)
}

// InitImportMeta invokes the installed import-meta hook for a module
// and returns the populated meta object.
func (e *Engine) InitImportMeta(ctx context.Context, module scriptmodules.Handle) (MetaMap, error) {
	if e.importMeta == nil {
		panic("enginetest: no import-meta hook installed")
	}
	meta := make(MetaMap)
	if err := e.importMeta(ctx, module, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// MetaMap is a map-backed import.meta object.
type MetaMap map[string]any

func (m MetaMap) Set(name string, value any) error {
	m[name] = value
	return nil
}
