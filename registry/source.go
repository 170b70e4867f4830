package registry

import (
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"

	scriptmodules "github.com/wippyai/script-modules"
	"github.com/wippyai/script-modules/errors"
)

// sourceModule is a source-text module. The source compiles separately
// into every engine context; compile-cache bytes are shared across
// contexts through the module itself, so the first context to compile
// pays for cache generation and the rest reuse it.
type sourceModule struct {
	moduleBase
	source string

	// mu guards cachedData and warned. Reads take the shared lock;
	// generation takes the exclusive lock and re-checks, losers of the
	// race discard their work.
	mu         sync.RWMutex
	cachedData []byte
	warned     bool
}

// NewSourceModule creates a source-text module. Source modules always
// carry FlagESM and FlagEval, making them eligible for the registry's
// eval override.
func NewSourceModule(specifier *url.URL, typ ModuleType, source string, flags Flags) Module {
	return &sourceModule{
		moduleBase: moduleBase{specifier: specifier, typ: typ, flags: flags | FlagESM | FlagEval},
		source:     source,
	}
}

// NewSourceModuleCached is NewSourceModule with previously generated
// compile-cache bytes. Incompatible bytes are tolerated: the module
// compiles from source and logs once.
func NewSourceModuleCached(specifier *url.URL, typ ModuleType, source string, cachedData []byte, flags Flags) Module {
	return &sourceModule{
		moduleBase: moduleBase{specifier: specifier, typ: typ, flags: flags | FlagESM | FlagEval},
		source:     source,
		cachedData: cachedData,
	}
}

func (m *sourceModule) Describe(ctx context.Context, eng scriptmodules.Engine, instance *url.URL,
	obs CompilationObserver) (scriptmodules.Handle, error) {
	if instance == nil {
		instance = m.specifier
	}
	spec := scriptmodules.SourceSpec{
		Specifier: Href(instance),
		Source:    m.source,
	}

	m.mu.RLock()
	data := m.cachedData
	m.mu.RUnlock()

	if data != nil {
		if eng.CacheCompatible(data) {
			spec.CachedData = data
			obs.OnCompileCacheFound(instance)
		} else {
			m.warnIncompatible()
			obs.OnCompileCacheRejected(instance)
		}
	}

	obs.OnSourceCompileStart(instance, m.typ)
	h, cacheAccepted, err := eng.CompileSource(ctx, spec)
	if err != nil {
		return nil, errors.New(errors.PhaseCompile, errors.KindEngine).
			Specifier(Href(instance)).
			Cause(err).
			Detail("compile module source").
			Build()
	}

	if spec.CachedData != nil && !cacheAccepted {
		// The compiler rejected data the cheap pre-check let through.
		m.warnIncompatible()
		obs.OnCompileCacheRejected(instance)
	}

	if spec.CachedData == nil || !cacheAccepted {
		m.maybeGenerateCache(ctx, eng, h, instance, obs)
	}

	return h, nil
}

func (m *sourceModule) Evaluate(ctx context.Context, eng scriptmodules.Engine, h scriptmodules.Handle,
	link scriptmodules.LinkFunc, obs CompilationObserver, evalCb EvalCallback) (scriptmodules.Promise, error) {
	if err := ensureInstantiated(ctx, eng, h, link, m.specifier); err != nil {
		return nil, err
	}
	if m.IsEval() && evalCb != nil {
		return evalCb(ctx, eng, m, h, obs)
	}
	p, err := eng.Evaluate(ctx, h)
	if err != nil {
		return nil, errors.Engine(errors.PhaseEvaluate, "evaluate "+Href(m.specifier), err)
	}
	return p, nil
}

// maybeGenerateCache serializes the compile cache once per module.
// Generation failure is not an error; the module simply keeps
// compiling from source.
func (m *sourceModule) maybeGenerateCache(ctx context.Context, eng scriptmodules.Engine,
	h scriptmodules.Handle, instance *url.URL, obs CompilationObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cachedData != nil {
		// Another context won the race, or incompatible bytes are
		// pinned; either way there is nothing to do.
		return
	}
	data, err := eng.CreateCodeCache(ctx, h)
	if err != nil || len(data) == 0 {
		obs.OnCompileCacheGenerationFailed(instance)
		Logger().Debug("compile cache generation failed",
			zap.String("specifier", Href(instance)),
			zap.Error(err))
		return
	}
	m.cachedData = data
	obs.OnCompileCacheGenerated(instance)
}

func (m *sourceModule) warnIncompatible() {
	m.mu.Lock()
	if m.warned {
		m.mu.Unlock()
		return
	}
	m.warned = true
	m.mu.Unlock()
	Logger().Warn("compile cache is incompatible with this engine, compiling from source",
		zap.String("specifier", Href(m.specifier)))
}
