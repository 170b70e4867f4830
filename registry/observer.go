package registry

import "net/url"

// ResolveObserver receives one event per top-level registry resolution.
// Redirect restarts and parent delegation within a single resolution do
// not re-emit.
type ResolveObserver interface {
	OnResolveModule(specifier *url.URL, typ ResolveType, source ResolveSource) ResolveMetrics
}

// ResolveMetrics completes one resolution event. Exactly one of Found
// or NotFound is called.
type ResolveMetrics interface {
	Found()
	NotFound()
}

// CompilationObserver receives compilation and cache events while a
// module is described into an engine context. Implementations must be
// safe for concurrent use; evaluation callbacks may fire from any
// context.
type CompilationObserver interface {
	OnSourceCompileStart(specifier *url.URL, typ ModuleType)
	OnCompileCacheFound(specifier *url.URL)
	OnCompileCacheRejected(specifier *url.URL)
	OnCompileCacheGenerated(specifier *url.URL)
	OnCompileCacheGenerationFailed(specifier *url.URL)
	OnJSONParseStart(specifier *url.URL, size int)
	OnWasmCompileStart(specifier *url.URL, size int)
	OnWasmCompileFromCache(specifier *url.URL)
}

// NopResolveObserver is a ResolveObserver that records nothing. Embed
// it to implement only the events of interest.
type NopResolveObserver struct{}

func (NopResolveObserver) OnResolveModule(*url.URL, ResolveType, ResolveSource) ResolveMetrics {
	return NopResolveMetrics{}
}

// NopResolveMetrics discards resolution outcomes.
type NopResolveMetrics struct{}

func (NopResolveMetrics) Found()    {}
func (NopResolveMetrics) NotFound() {}

// NopCompilationObserver is a CompilationObserver that records nothing.
type NopCompilationObserver struct{}

func (NopCompilationObserver) OnSourceCompileStart(*url.URL, ModuleType)      {}
func (NopCompilationObserver) OnCompileCacheFound(*url.URL)                   {}
func (NopCompilationObserver) OnCompileCacheRejected(*url.URL)                {}
func (NopCompilationObserver) OnCompileCacheGenerated(*url.URL)               {}
func (NopCompilationObserver) OnCompileCacheGenerationFailed(*url.URL)        {}
func (NopCompilationObserver) OnJSONParseStart(*url.URL, int)                 {}
func (NopCompilationObserver) OnWasmCompileStart(*url.URL, int)               {}
func (NopCompilationObserver) OnWasmCompileFromCache(*url.URL)                {}
