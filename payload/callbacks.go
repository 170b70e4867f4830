package payload

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"

	"github.com/tetratelabs/wazero"

	"github.com/wippyai/script-modules/errors"
	"github.com/wippyai/script-modules/registry"
)

// NewTextCallback returns an evaluate callback exposing text as the
// default export.
func NewTextCallback(text string) registry.EvaluateCallback {
	return func(ctx context.Context, specifier *url.URL, ns *registry.ModuleNamespace,
		obs registry.CompilationObserver) error {
		return ns.SetDefault(ctx, text)
	}
}

// NewDataCallback returns an evaluate callback exposing a copy of data
// as the default export. Each evaluation gets its own copy so one
// context cannot mutate what another sees.
func NewDataCallback(data []byte) registry.EvaluateCallback {
	return func(ctx context.Context, specifier *url.URL, ns *registry.ModuleNamespace,
		obs registry.CompilationObserver) error {
		buf := make([]byte, len(data))
		copy(buf, data)
		return ns.SetDefault(ctx, buf)
	}
}

// NewJSONCallback returns an evaluate callback exposing the parsed JSON
// value as the default export. Parse failures fail evaluation.
func NewJSONCallback(src string) registry.EvaluateCallback {
	return func(ctx context.Context, specifier *url.URL, ns *registry.ModuleNamespace,
		obs registry.CompilationObserver) error {
		obs.OnJSONParseStart(specifier, len(src))
		var v any
		if err := json.Unmarshal([]byte(src), &v); err != nil {
			return errors.New(errors.PhaseEvaluate, errors.KindEvaluationFailed).
				Specifier(registry.Href(specifier)).
				Cause(err).
				Detail("parse JSON module").
				Build()
		}
		return ns.SetDefault(ctx, v)
	}
}

// NewWasmCallback returns an evaluate callback exposing a compiled
// wasm module as the default export. The payload compiles at most once
// per callback: the compiled module is cached behind a reader/writer
// lock and shared across every engine context that evaluates it. A
// racing compilation is discarded in favor of the first stored result.
func NewWasmCallback(rt wazero.Runtime, wasm []byte) registry.EvaluateCallback {
	var mu sync.RWMutex
	var compiled wazero.CompiledModule

	return func(ctx context.Context, specifier *url.URL, ns *registry.ModuleNamespace,
		obs registry.CompilationObserver) error {
		mu.RLock()
		c := compiled
		mu.RUnlock()
		if c != nil {
			obs.OnWasmCompileFromCache(specifier)
			return ns.SetDefault(ctx, c)
		}

		obs.OnWasmCompileStart(specifier, len(wasm))
		mod, err := rt.CompileModule(ctx, wasm)
		if err != nil {
			return errors.New(errors.PhaseEvaluate, errors.KindEvaluationFailed).
				Specifier(registry.Href(specifier)).
				Cause(err).
				Detail("compile wasm module").
				Build()
		}

		mu.Lock()
		if compiled == nil {
			compiled = mod
		} else {
			// Lost the race; drop our work and keep the winner.
			_ = mod.Close(ctx)
		}
		c = compiled
		mu.Unlock()
		return ns.SetDefault(ctx, c)
	}
}
