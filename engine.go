package scriptmodules

import "context"

// Handle identifies a module inside an engine context. Handles are
// engine-owned opaque values; they must be comparable so the binding
// can index them.
type Handle any

// ModuleStatus mirrors the engine's module lifecycle states.
type ModuleStatus int

const (
	StatusUninstantiated ModuleStatus = iota
	StatusInstantiating
	StatusInstantiated
	StatusEvaluating
	StatusEvaluated
	StatusErrored
)

func (s ModuleStatus) String() string {
	switch s {
	case StatusUninstantiated:
		return "uninstantiated"
	case StatusInstantiating:
		return "instantiating"
	case StatusInstantiated:
		return "instantiated"
	case StatusEvaluating:
		return "evaluating"
	case StatusEvaluated:
		return "evaluated"
	case StatusErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// PromiseState is the settlement state of an engine promise.
type PromiseState int

const (
	PromisePending PromiseState = iota
	PromiseFulfilled
	PromiseRejected
)

func (s PromiseState) String() string {
	switch s {
	case PromisePending:
		return "pending"
	case PromiseFulfilled:
		return "fulfilled"
	case PromiseRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Promise is the read side of an engine promise. Callbacks registered
// with Then run on the engine's microtask queue.
type Promise interface {
	State() PromiseState

	// Result returns the fulfillment value or rejection reason once the
	// promise is settled, nil while pending.
	Result() any

	Then(onFulfilled, onRejected func(v any))
}

// Resolver is the write side of an engine promise.
type Resolver interface {
	Promise() Promise
	Resolve(v any)
	Reject(reason any)
}

// Namespace is a module namespace object. Get returns nil for exports
// the module does not provide.
type Namespace interface {
	Get(name string) any
}

// MetaObject is the import.meta object of one module, exposed to the
// import-meta hook for population.
type MetaObject interface {
	Set(name string, value any) error
}

// LinkFunc resolves a single static import request during module
// instantiation. referrer is the handle of the importing module.
// attributes carries import attributes as written in source.
type LinkFunc func(ctx context.Context, referrer Handle, specifier string, attributes map[string]string) (Handle, error)

// DynamicImportFunc handles a dynamic import() expression. referrerURL
// is the URL of the importing module, empty when unknown. The returned
// promise settles with the imported module's namespace or the failure
// reason; implementations never return nil.
type DynamicImportFunc func(ctx context.Context, referrerURL, specifier string, attributes map[string]string) Promise

// ImportMetaFunc populates import.meta for a module the first time the
// module evaluates.
type ImportMetaFunc func(ctx context.Context, module Handle, meta MetaObject) error

// EvaluationSteps is the engine-invoked body of a synthetic module.
// The returned promise reports completion of the steps.
type EvaluationSteps func(ctx context.Context, eng Engine, module Handle) (Promise, error)

// SourceSpec describes a source-text module for compilation.
type SourceSpec struct {
	// Specifier is the module's full URL, used as the resource name.
	Specifier string

	Source string

	// CachedData is previously generated compile-cache bytes, nil when
	// none are available. The engine may reject stale data.
	CachedData []byte
}

// SyntheticSpec describes a host-synthesized module.
type SyntheticSpec struct {
	Specifier string

	// ExportNames lists every export the module declares, always
	// including "default".
	ExportNames []string

	Steps EvaluationSteps
}

// Engine is the boundary to a script engine context. One Engine value
// represents one engine context; all methods must be called from the
// goroutine driving that context unless noted otherwise.
type Engine interface {
	// CompileSource compiles a source-text module. cacheAccepted
	// reports whether spec.CachedData was consumed by the compiler;
	// rejected data never fails compilation.
	CompileSource(ctx context.Context, spec SourceSpec) (h Handle, cacheAccepted bool, err error)

	// CreateSynthetic creates a synthetic module whose evaluation runs
	// spec.Steps.
	CreateSynthetic(ctx context.Context, spec SyntheticSpec) (Handle, error)

	// CacheCompatible reports whether compile-cache bytes were produced
	// by a compatible engine version and flag set. It is a cheap
	// pre-check; CompileSource performs the authoritative validation.
	CacheCompatible(data []byte) bool

	// CreateCodeCache serializes the compile cache of a compiled
	// module.
	CreateCodeCache(ctx context.Context, module Handle) ([]byte, error)

	// Instantiate links the module graph rooted at module, calling link
	// for every static import request. Already-instantiated modules are
	// a no-op.
	Instantiate(ctx context.Context, module Handle, link LinkFunc) error

	// Evaluate evaluates an instantiated module and returns the
	// evaluation promise. Script failures settle the promise; the error
	// return is reserved for engine-level faults.
	Evaluate(ctx context.Context, module Handle) (Promise, error)

	Status(module Handle) ModuleStatus

	Namespace(module Handle) (Namespace, error)

	// Exception returns the stored evaluation error of a module whose
	// Status is StatusErrored.
	Exception(module Handle) any

	// SetExport assigns a declared export of a synthetic module.
	SetExport(ctx context.Context, module Handle, name string, value any) error

	NewResolver(ctx context.Context) (Resolver, error)

	// RunMicrotasks drains the context's microtask queue.
	RunMicrotasks(ctx context.Context)

	SetDynamicImport(fn DynamicImportFunc)
	SetImportMeta(fn ImportMetaFunc)

	// SetSlot stores one host value on the context; Slot retrieves it.
	// The binding keeps itself here so engine-invoked callbacks can
	// recover it without global state.
	SetSlot(v any)
	Slot() any
}
