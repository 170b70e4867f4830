package payload

import (
	"encoding/json"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/script-modules/errors"
	"github.com/wippyai/script-modules/registry"
)

// Kind selects which builtin bundle a table record loads into.
type Kind string

const (
	// KindBuiltin records are importable by application code.
	KindBuiltin Kind = "builtin"

	// KindInternal records are importable only by other builtins.
	KindInternal Kind = "internal"
)

// Record is one module in a table. Exactly one of Source, Data, JSON,
// or Wasm carries the payload: Source registers a source-text module,
// the others register synthetic modules exposing the value as the
// default export.
type Record struct {
	Name   string `json:"name"`
	Kind   Kind   `json:"kind"`
	Source string `json:"source,omitempty"`
	Data   []byte `json:"data,omitempty"`
	JSON   string `json:"json,omitempty"`
	Wasm   []byte `json:"wasm,omitempty"`
}

// TableOptions configures LoadTable.
type TableOptions struct {
	// WasmRuntime compiles wasm records. Required when the table
	// carries any.
	WasmRuntime wazero.Runtime
}

// ParseTable decodes a JSON module table.
func ParseTable(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(errors.PhaseBuild, errors.KindConfiguration, err, "parse module table")
	}
	return records, nil
}

// LoadTable registers the records matching the builder's module type:
// "builtin" records for TypeBuiltin builders, "internal" records for
// TypeBuiltinOnly. Other records are skipped, so one table can feed
// both bundles.
func LoadTable(b *registry.BuiltinBuilder, records []Record, opts *TableOptions) error {
	if opts == nil {
		opts = &TableOptions{}
	}
	want := KindBuiltin
	if b.Type() == registry.TypeBuiltinOnly {
		want = KindInternal
	}
	for _, rec := range records {
		if rec.Kind != KindBuiltin && rec.Kind != KindInternal {
			return errors.New(errors.PhaseBuild, errors.KindConfiguration).
				Specifier(rec.Name).
				Detail("unknown module kind %q", rec.Kind).
				Build()
		}
		if rec.Kind != want {
			continue
		}
		if err := loadRecord(b, rec, opts); err != nil {
			return err
		}
	}
	return nil
}

func loadRecord(b *registry.BuiltinBuilder, rec Record, opts *TableOptions) error {
	n := 0
	if rec.Source != "" {
		n++
	}
	if rec.Data != nil {
		n++
	}
	if rec.JSON != "" {
		n++
	}
	if rec.Wasm != nil {
		n++
	}
	if n != 1 {
		return errors.New(errors.PhaseBuild, errors.KindConfiguration).
			Specifier(rec.Name).
			Detail("record must carry exactly one payload, got %d", n).
			Build()
	}

	switch {
	case rec.Source != "":
		b.AddSourceModule(rec.Name, rec.Source, registry.FlagNone)
	case rec.Data != nil:
		b.AddSyntheticModule(rec.Name, NewDataCallback(rec.Data), nil, registry.FlagNone)
	case rec.JSON != "":
		b.AddSyntheticModule(rec.Name, NewJSONCallback(rec.JSON), nil, registry.FlagNone)
	case rec.Wasm != nil:
		if opts.WasmRuntime == nil {
			return errors.New(errors.PhaseBuild, errors.KindConfiguration).
				Specifier(rec.Name).
				Detail("wasm record requires a runtime").
				Build()
		}
		b.AddSyntheticModule(rec.Name, NewWasmCallback(opts.WasmRuntime, rec.Wasm), nil, registry.FlagNone)
	}
	return nil
}
