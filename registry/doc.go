// Package registry implements module description, bundling and
// specifier resolution.
//
// # Main Types
//
//   - Module: one resolvable unit, source-backed or synthetic
//   - Bundle: a collection of modules answering resolve requests
//   - Registry: the ordered composition of bundles with parent delegation
//   - BundleBuilder / BuiltinBuilder: bundle construction with build-time validation
//
// # Thread Safety
//
// Registry, Bundle and Module are safe for concurrent use across
// engine contexts. Builders are NOT safe for concurrent use.
//
// # Resolution Order
//
//  1. Application resolutions: bundle, builtin, then fallback bundles
//  2. Builtin resolutions: builtin, then builtin-only bundles
//  3. Builtin-only resolutions: builtin-only bundles
//  4. On a full miss, the parent registry, when one is chained
//
// # Example
//
//	bundle, _ := registry.NewBundleBuilder(nil).
//		AddSourceModule("main.js", source, registry.FlagMain).
//		Finish()
//	reg, _ := registry.NewBuilder(nil, nil).Add(bundle).Finish()
//	mod, _ := reg.Resolve(ctx, &registry.ResolveContext{
//		Type:      registry.ResolveBundle,
//		Source:    registry.SourceStaticImport,
//		Specifier: registry.MustParseSpecifier("file:///main.js"),
//	})
package registry
