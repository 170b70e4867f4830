// Package binding connects a module registry to a running engine
// context. It implements the three resolution entry points the engine
// calls into (static imports during instantiation, dynamic import(),
// and synchronous require) plus the import.meta hook, and it owns the
// per-context cache of already-resolved modules.
//
// # Main Types
//
//   - Binding: per-context state, created with Attach
//   - Options: node compatibility switches and logging
//   - MetaResolver: the import.meta.resolve function type
//
// # Lifecycle
//
// Attach stores the binding in the engine context's slot and installs
// the dynamic-import and import-meta hooks. The binding lives exactly
// as long as the context; nothing about it is global.
//
// # Thread Safety
//
// An engine context executes single-threaded, so Binding methods must
// be called from the context's owning goroutine and the internal entry
// table carries no locks. The registry behind the binding is shared
// and thread-safe.
//
// # Example
//
//	reg, err := registry.NewBuilder(nil, nil).Add(bundle).Finish()
//	if err != nil {
//		return err
//	}
//	b := binding.Attach(eng, reg, nil, binding.DefaultOptions())
//	ns, err := b.Require(ctx, registry.MustParseSpecifier("file:///main.js"))
package binding
