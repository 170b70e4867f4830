package payload_test

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/script-modules/binding"
	"github.com/wippyai/script-modules/enginetest"
	"github.com/wippyai/script-modules/errors"
	"github.com/wippyai/script-modules/payload"
	"github.com/wippyai/script-modules/registry"
)

// Smallest valid wasm payload: magic number plus version, no sections.
var emptyWasm = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func syntheticRegistry(t *testing.T, name string, cb registry.EvaluateCallback) *registry.Registry {
	t.Helper()
	bundle, err := registry.NewBuiltinBuilder(registry.TypeBuiltin).
		AddSyntheticModule(name, cb, nil, registry.FlagNone).
		Finish()
	if err != nil {
		t.Fatalf("bundle Finish failed: %v", err)
	}
	reg, err := registry.NewBuilder(nil, nil).Add(bundle).Finish()
	if err != nil {
		t.Fatalf("registry Finish failed: %v", err)
	}
	return reg
}

func requireDefault(t *testing.T, reg *registry.Registry, obs registry.CompilationObserver, name string) any {
	t.Helper()
	b := binding.Attach(enginetest.New(), reg, obs, nil)
	ns, err := b.Require(context.Background(), registry.MustParseSpecifier(name))
	if err != nil {
		t.Fatalf("Require(%q) failed: %v", name, err)
	}
	return ns.Get("default")
}

func TestTextCallback(t *testing.T) {
	reg := syntheticRegistry(t, "wippy:motd", payload.NewTextCallback("hello"))
	if got := requireDefault(t, reg, nil, "wippy:motd"); got != "hello" {
		t.Errorf("got default %v, want %q", got, "hello")
	}
}

func TestDataCallbackCopies(t *testing.T) {
	data := []byte("abc")
	reg := syntheticRegistry(t, "wippy:blob", payload.NewDataCallback(data))

	first, ok := requireDefault(t, reg, nil, "wippy:blob").([]byte)
	if !ok {
		t.Fatal("default export is not []byte")
	}
	if string(first) != "abc" {
		t.Fatalf("got %q, want %q", first, "abc")
	}
	first[0] = 'x'

	// A second engine context evaluates the same registry module and
	// must see the payload untouched by the first context's mutation.
	second, ok := requireDefault(t, reg, nil, "wippy:blob").([]byte)
	if !ok {
		t.Fatal("default export is not []byte")
	}
	if string(second) != "abc" {
		t.Errorf("second context sees %q, want %q", second, "abc")
	}
	if string(data) != "abc" {
		t.Errorf("source payload mutated to %q", data)
	}
}

func TestJSONCallback(t *testing.T) {
	obs := &enginetest.RecordingCompilationObserver{}
	reg := syntheticRegistry(t, "wippy:config", payload.NewJSONCallback(`{"port": 8080, "tags": ["a"]}`))

	v, ok := requireDefault(t, reg, obs, "wippy:config").(map[string]any)
	if !ok {
		t.Fatal("default export is not a JSON object")
	}
	if got := v["port"]; got != float64(8080) {
		t.Errorf("got port=%v, want 8080", got)
	}
	tags, ok := v["tags"].([]any)
	if !ok || len(tags) != 1 || tags[0] != "a" {
		t.Errorf("got tags=%v, want [a]", v["tags"])
	}
	if got := obs.Count("json-parse"); got != 1 {
		t.Errorf("got %d json-parse events, want 1", got)
	}
}

func TestJSONCallbackInvalid(t *testing.T) {
	reg := syntheticRegistry(t, "wippy:broken", payload.NewJSONCallback("{"))
	b := binding.Attach(enginetest.New(), reg, nil, nil)

	_, err := b.Require(context.Background(), registry.MustParseSpecifier("wippy:broken"))
	if err == nil {
		t.Fatal("Require succeeded for invalid JSON, want error")
	}
	if !errors.IsKind(err, errors.KindEvaluationFailed) {
		t.Errorf("got %v, want evaluation failure", err)
	}
}

func TestWasmCallbackCompilesOnce(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	obs := &enginetest.RecordingCompilationObserver{}
	reg := syntheticRegistry(t, "wippy:lib.wasm", payload.NewWasmCallback(rt, emptyWasm))

	first, ok := requireDefault(t, reg, obs, "wippy:lib.wasm").(wazero.CompiledModule)
	if !ok || first == nil {
		t.Fatal("default export is not a compiled module")
	}
	if got := obs.Count("wasm-compile"); got != 1 {
		t.Errorf("got %d wasm-compile events, want 1", got)
	}
	if got := obs.Count("wasm-cached"); got != 0 {
		t.Errorf("got %d wasm-cached events, want 0", got)
	}

	// The second engine context reuses the compiled module.
	second, ok := requireDefault(t, reg, obs, "wippy:lib.wasm").(wazero.CompiledModule)
	if !ok || second == nil {
		t.Fatal("default export is not a compiled module")
	}
	if second != first {
		t.Error("second context compiled its own module, want the shared one")
	}
	if got := obs.Count("wasm-compile"); got != 1 {
		t.Errorf("got %d wasm-compile events after reuse, want 1", got)
	}
	if got := obs.Count("wasm-cached"); got != 1 {
		t.Errorf("got %d wasm-cached events, want 1", got)
	}
}

func TestWasmCallbackCompileFailure(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	reg := syntheticRegistry(t, "wippy:bad.wasm", payload.NewWasmCallback(rt, []byte{0xde, 0xad}))
	b := binding.Attach(enginetest.New(), reg, nil, nil)

	_, err := b.Require(ctx, registry.MustParseSpecifier("wippy:bad.wasm"))
	if err == nil {
		t.Fatal("Require succeeded for invalid wasm, want error")
	}
	if !errors.IsKind(err, errors.KindEvaluationFailed) {
		t.Errorf("got %v, want evaluation failure", err)
	}
}
