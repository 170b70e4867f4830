// Package enginetest provides an in-memory implementation of the
// engine boundary for tests and examples.
//
// Module source is a line-oriented directive language instead of real
// script text:
//
//	import <specifier> [with k=v ...]
//	export <name> <value>
//	default <value>
//	throw <message>
//	await
//	await resolved
//	compile-error <message>
//
// import declares a static edge, optionally carrying import
// attributes. export and default populate the namespace at evaluation
// time. throw fails evaluation with the message, compile-error fails
// compilation. A bare await suspends the body forever; await resolved
// suspends for one microtask, standing in for a settling top-level
// await.
//
// The engine evaluates graphs depth-first with genuine module
// statuses, a microtask queue, stored exceptions, and idempotent
// re-evaluation, so the resolution, require, and dynamic-import
// protocols can be exercised without a script engine.
package enginetest
