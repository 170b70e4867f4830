// Package payload provides ready-made evaluate callbacks for common
// synthetic module payloads and a table format for declaring builtin
// modules as data.
//
// # Callbacks
//
// Each New*Callback constructor returns a registry.EvaluateCallback
// exposing its payload as the module's default export:
//
//   - NewTextCallback: a string
//   - NewDataCallback: a fresh copy of a byte slice per evaluation
//   - NewJSONCallback: the parsed JSON value
//   - NewWasmCallback: a wazero compiled module, compiled at most once
//
// # Module Tables
//
// A table is a JSON array of records, each naming a module, its kind
// ("builtin" or "internal") and exactly one payload. LoadTable feeds
// the records matching a builder's type into it:
//
//	records, err := payload.ParseTable(tableJSON)
//	if err != nil {
//		return err
//	}
//	b := registry.NewBuiltinBuilder(registry.TypeBuiltin)
//	if err := payload.LoadTable(b, records, nil); err != nil {
//		return err
//	}
//	bundle, err := b.Finish()
package payload
