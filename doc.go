// Package scriptmodules manages module loading for embedded script
// engines.
//
// The library does not execute scripts itself. It supplies the layer a
// host application puts between its module sources and a script engine:
// modules are described once, grouped into bundles with distinct trust
// levels, registered in an immutable registry, and resolved on demand
// through static imports, dynamic import() and synchronous require.
// The engine is reached exclusively through the Engine interface in
// this package.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	scriptmodules/       Root package with the Engine boundary interfaces
//	├── registry/        Modules, bundles, builders and the resolution registry
//	├── binding/         Per-engine-context binding: caching, protocols, hooks
//	├── payload/         Evaluation callbacks for text, data, JSON and wasm payloads
//	├── errors/          Structured error types for debugging
//	└── enginetest/      In-process reference engine for tests and examples
//
// # Quick Start
//
// Build a bundle, register it, attach a binding and require a module:
//
//	bb := registry.NewBundleBuilder(nil)
//	bb.AddSourceModule("main.js", source, registry.FlagESM|registry.FlagMain)
//	bundle, err := bb.Finish()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	reg, err := registry.NewBuilder(nil, nil).Add(bundle).Finish()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	b := binding.Attach(eng, reg, nil, nil)
//	ns, err := b.Require(ctx, registry.MustParseSpecifier("file:///main.js"))
//	fmt.Println(ns.Get("default"))
//
// # Resolution Model
//
// Specifiers are URLs. A registry holds bundles of four kinds and scans
// them in a fixed order that depends on who is asking: application
// bundle modules see bundle, then builtin, then fallback bundles;
// builtin modules see builtin, then builtin-only bundles; privileged
// internal resolutions see builtin-only bundles alone. Bundles may
// answer with a redirect, which restarts the scan under the new
// specifier.
//
// # Thread Safety
//
// Registry and all bundle types are safe for concurrent use across
// engine contexts. Binding is NOT thread-safe; it belongs to a single
// engine context and must be driven by that context's goroutine, which
// is the contract engine contexts already impose.
package scriptmodules
