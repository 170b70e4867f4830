package binding_test

import (
	"context"
	"net/url"
	"testing"

	scriptmodules "github.com/wippyai/script-modules"
	"github.com/wippyai/script-modules/binding"
	"github.com/wippyai/script-modules/enginetest"
	"github.com/wippyai/script-modules/errors"
	"github.com/wippyai/script-modules/registry"
)

func spec(t *testing.T, s string) *url.URL {
	t.Helper()
	return registry.MustParseSpecifier(s)
}

func appBundle(t *testing.T, b *registry.BundleBuilder) registry.Bundle {
	t.Helper()
	bundle, err := b.Finish()
	if err != nil {
		t.Fatalf("bundle Finish failed: %v", err)
	}
	return bundle
}

func builtinBundle(t *testing.T, b *registry.BuiltinBuilder) registry.Bundle {
	t.Helper()
	bundle, err := b.Finish()
	if err != nil {
		t.Fatalf("builtin Finish failed: %v", err)
	}
	return bundle
}

func finishRegistry(t *testing.T, b *registry.Builder) *registry.Registry {
	t.Helper()
	reg, err := b.Finish()
	if err != nil {
		t.Fatalf("registry Finish failed: %v", err)
	}
	return reg
}

func TestAttach(t *testing.T) {
	eng := enginetest.New()
	reg := finishRegistry(t, registry.NewBuilder(nil, nil))

	b := binding.Attach(eng, reg, nil, nil)
	if eng.Slot() != b {
		t.Error("binding not installed in the engine slot")
	}
	if b.Engine() != eng {
		t.Error("Engine accessor does not return the bound engine")
	}
	if b.Registry() != reg {
		t.Error("Registry accessor does not return the bound registry")
	}
	if b.Observer() == nil {
		t.Error("nil observer was not defaulted")
	}
}

func TestRequireSourceModule(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	reg := finishRegistry(t, registry.NewBuilder(nil, nil).
		Add(appBundle(t, registry.NewBundleBuilder(nil).
			AddSourceModule("main.js", "import ./dep.js\nexport ready yes", registry.FlagNone).
			AddSourceModule("dep.js", "default dep-value", registry.FlagNone))))
	b := binding.Attach(eng, reg, nil, nil)

	ns, err := b.Require(ctx, spec(t, "file:///main.js"))
	if err != nil {
		t.Fatalf("Require failed: %v", err)
	}
	if got := ns.Get("ready"); got != "yes" {
		t.Errorf("got export %v, want %q", got, "yes")
	}

	dep := eng.ModuleBySpecifier("file:///dep.js")
	if dep == nil {
		t.Fatal("dependency was not loaded")
	}
	if got := eng.Status(dep); got != scriptmodules.StatusEvaluated {
		t.Errorf("got dependency status %s, want %s", got, scriptmodules.StatusEvaluated)
	}
}

func TestRequireSyntheticModule(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	reg := finishRegistry(t, registry.NewBuilder(nil, nil).
		Add(builtinBundle(t, registry.NewBuiltinBuilder(registry.TypeBuiltin).
			AddSyntheticModule("wippy:env", func(ctx context.Context, specifier *url.URL,
				ns *registry.ModuleNamespace, obs registry.CompilationObserver) error {
				if err := ns.Set(ctx, "version", "2.0"); err != nil {
					return err
				}
				return ns.SetDefault(ctx, "env")
			}, []string{"version"}, registry.FlagNone))))
	b := binding.Attach(eng, reg, nil, nil)

	ns, err := b.Require(ctx, spec(t, "wippy:env"))
	if err != nil {
		t.Fatalf("Require failed: %v", err)
	}
	if got := ns.Get("version"); got != "2.0" {
		t.Errorf("got version %v, want %q", got, "2.0")
	}
}

func TestRequireMissing(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	reg := finishRegistry(t, registry.NewBuilder(nil, nil))
	b := binding.Attach(eng, reg, nil, nil)

	_, err := b.Require(ctx, spec(t, "file:///ghost.js"))
	if err == nil {
		t.Fatal("Require succeeded, want not-found error")
	}
	if !errors.IsNotFound(err) {
		t.Errorf("got %v, want not-found", err)
	}

	ns, err := b.RequireOr(ctx, spec(t, "file:///ghost.js"), binding.RequireReturnEmpty)
	if err != nil || ns != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", ns, err)
	}
}

func TestRequireReturnEmptyDoesNotMaskFailures(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	reg := finishRegistry(t, registry.NewBuilder(nil, nil).
		Add(appBundle(t, registry.NewBundleBuilder(nil).
			AddSourceModule("boom.js", "throw boom", registry.FlagNone))))
	b := binding.Attach(eng, reg, nil, nil)

	_, err := b.RequireOr(ctx, spec(t, "file:///boom.js"), binding.RequireReturnEmpty)
	if err == nil {
		t.Fatal("RequireOr succeeded, want evaluation error")
	}
	if !errors.IsKind(err, errors.KindEvaluationFailed) {
		t.Errorf("got %v, want kind %s", err, errors.KindEvaluationFailed)
	}
}

func TestEntryCacheIdempotent(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	reg := finishRegistry(t, registry.NewBuilder(nil, nil).
		Add(appBundle(t, registry.NewBundleBuilder(nil).
			AddSourceModule("main.js", "export a 1", registry.FlagNone))))
	b := binding.Attach(eng, reg, nil, nil)

	for i := 0; i < 3; i++ {
		if _, err := b.Require(ctx, spec(t, "file:///main.js")); err != nil {
			t.Fatalf("Require %d failed: %v", i, err)
		}
	}
	p := eng.DynamicImport(ctx, "", "file:///main.js", nil)
	eng.RunMicrotasks(ctx)
	if got := p.State(); got != scriptmodules.PromiseFulfilled {
		t.Fatalf("got dynamic import state %s, want %s", got, scriptmodules.PromiseFulfilled)
	}

	if got := eng.ModuleCount("file:///main.js"); got != 1 {
		t.Errorf("engine holds %d modules for the specifier, want 1", got)
	}
}

func TestQueryDistinctInstances(t *testing.T) {
	// Imports of the same module that differ in query are distinct
	// engine modules backed by one registry module.
	ctx := context.Background()
	eng := enginetest.New()
	reg := finishRegistry(t, registry.NewBuilder(nil, nil).
		Add(appBundle(t, registry.NewBundleBuilder(nil).
			AddSourceModule("main.js", "import ./dep.js?v=1\nimport ./dep.js?v=2\nexport done yes", registry.FlagNone).
			AddSourceModule("dep.js", "export v marker", registry.FlagNone))))
	b := binding.Attach(eng, reg, nil, nil)

	if _, err := b.Require(ctx, spec(t, "file:///main.js")); err != nil {
		t.Fatalf("Require failed: %v", err)
	}

	if got := eng.ModuleCount("file:///dep.js?v=1"); got != 1 {
		t.Errorf("got %d modules for ?v=1, want 1", got)
	}
	if got := eng.ModuleCount("file:///dep.js?v=2"); got != 1 {
		t.Errorf("got %d modules for ?v=2, want 1", got)
	}
	if got := eng.ModuleCount("file:///dep.js"); got != 0 {
		t.Errorf("got %d modules for the bare specifier, want 0", got)
	}
}

func TestAliasSharesEngineModule(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	reg := finishRegistry(t, registry.NewBuilder(nil, nil).
		Add(appBundle(t, registry.NewBundleBuilder(nil).
			AddSourceModule("real.js", "default real-value", registry.FlagNone).
			Alias("old.js", "real.js"))))
	b := binding.Attach(eng, reg, nil, nil)

	viaAlias, err := b.Require(ctx, spec(t, "file:///old.js"))
	if err != nil {
		t.Fatalf("Require via alias failed: %v", err)
	}
	direct, err := b.Require(ctx, spec(t, "file:///real.js"))
	if err != nil {
		t.Fatalf("Require direct failed: %v", err)
	}
	if viaAlias.Get("default") != "real-value" || direct.Get("default") != "real-value" {
		t.Error("alias and direct namespaces disagree")
	}

	// One engine module, named after the target.
	if got := eng.ModuleCount("file:///real.js"); got != 1 {
		t.Errorf("got %d modules for the target, want 1", got)
	}
	if got := eng.ModuleCount("file:///old.js"); got != 0 {
		t.Errorf("got %d modules for the alias, want 0", got)
	}
}

func TestStaticImportAttributesRejected(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	reg := finishRegistry(t, registry.NewBuilder(nil, nil).
		Add(appBundle(t, registry.NewBundleBuilder(nil).
			AddSourceModule("main.js", "import ./dep.js with type=json", registry.FlagNone).
			AddSourceModule("dep.js", "default 1", registry.FlagNone))))
	b := binding.Attach(eng, reg, nil, nil)

	_, err := b.Require(ctx, spec(t, "file:///main.js"))
	if err == nil {
		t.Fatal("Require succeeded, want unsupported-attributes error")
	}
	if !errors.IsKind(err, errors.KindUnsupportedAttributes) {
		t.Errorf("got %v, want kind %s", err, errors.KindUnsupportedAttributes)
	}
	if !errors.IsKind(err, errors.KindInstantiation) {
		t.Errorf("got %v, want instantiation context", err)
	}
}

func TestBuiltinVisibility(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	reg := finishRegistry(t, registry.NewBuilder(nil, nil).
		Add(builtinBundle(t, registry.NewBuiltinBuilder(registry.TypeBuiltin).
			AddSourceModule("node:outer", "import node-internal:helper\nexport ok yes", registry.FlagNone))).
		Add(builtinBundle(t, registry.NewBuiltinBuilder(registry.TypeBuiltinOnly).
			AddSourceModule("node-internal:helper", "export h 1", registry.FlagNone))))
	b := binding.Attach(eng, reg, nil, nil)

	t.Run("hidden from application requires", func(t *testing.T) {
		_, err := b.Require(ctx, spec(t, "node-internal:helper"))
		if !errors.IsNotFound(err) {
			t.Errorf("got %v, want not-found", err)
		}
	})

	t.Run("visible to builtin importers", func(t *testing.T) {
		ns, err := b.Require(ctx, spec(t, "node:outer"))
		if err != nil {
			t.Fatalf("Require failed: %v", err)
		}
		if got := ns.Get("ok"); got != "yes" {
			t.Errorf("got export %v, want %q", got, "yes")
		}
	})
}

func TestResolveNamespaceAndExport(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	reg := finishRegistry(t, registry.NewBuilder(nil, nil).
		Add(appBundle(t, registry.NewBundleBuilder(nil).
			AddSourceModule("handler.js", "export handle on-request", registry.FlagNone))))
	b := binding.Attach(eng, reg, nil, nil)

	ns, err := b.ResolveNamespace(ctx, spec(t, "file:///handler.js"))
	if err != nil {
		t.Fatalf("ResolveNamespace failed: %v", err)
	}
	if ns == nil {
		t.Fatal("got nil namespace, want module namespace")
	}
	if got := ns.Get("handle"); got != "on-request" {
		t.Errorf("got export %v, want %q", got, "on-request")
	}

	v, err := b.ResolveExport(ctx, spec(t, "file:///handler.js"), "handle")
	if err != nil {
		t.Fatalf("ResolveExport failed: %v", err)
	}
	if v != "on-request" {
		t.Errorf("got %v, want %q", v, "on-request")
	}

	v, err = b.ResolveExport(ctx, spec(t, "file:///handler.js"), "absent")
	if err != nil || v != nil {
		t.Errorf("got (%v, %v) for an absent export, want (nil, nil)", v, err)
	}

	ns, err = b.ResolveNamespace(ctx, spec(t, "file:///ghost.js"))
	if err != nil || ns != nil {
		t.Errorf("got (%v, %v) for a missing module, want (nil, nil)", ns, err)
	}
}

func TestResolveNamespaceSkipsFallback(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	calls := 0
	fb := registry.NewFallbackBundle(func(ctx context.Context, rc *registry.ResolveContext) (*registry.Resolution, error) {
		calls++
		return &registry.Resolution{
			Module: registry.NewSourceModule(rc.Specifier, registry.TypeFallback, "export x 1", registry.FlagNone),
		}, nil
	})
	reg := finishRegistry(t, registry.NewBuilder(nil, nil).AllowFallback().Add(fb))
	b := binding.Attach(eng, reg, nil, nil)

	ns, err := b.ResolveNamespace(ctx, spec(t, "file:///anything.js"))
	if err != nil || ns != nil {
		t.Errorf("got (%v, %v), want (nil, nil)", ns, err)
	}
	if calls != 0 {
		t.Errorf("fallback ran %d times for an internal request, want 0", calls)
	}

	// The same specifier through require does reach the fallback.
	if _, err := b.Require(ctx, spec(t, "file:///anything.js")); err != nil {
		t.Fatalf("Require failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("fallback ran %d times, want 1", calls)
	}
}

func TestFallbackEndToEnd(t *testing.T) {
	// The fallback answers a request for foo with a module naming
	// itself bar; afterwards both names must reach one engine module
	// and the callback must not run again.
	ctx := context.Background()
	eng := enginetest.New()
	calls := 0
	fb := registry.NewFallbackBundle(func(ctx context.Context, rc *registry.ResolveContext) (*registry.Resolution, error) {
		calls++
		if registry.CanonicalKey(rc.Specifier) != "https://fb.example/foo" {
			return nil, nil
		}
		actual := registry.MustParseSpecifier("https://fb.example/bar")
		return &registry.Resolution{
			Module: registry.NewSourceModule(actual, registry.TypeFallback, "default served", registry.FlagNone),
		}, nil
	})
	reg := finishRegistry(t, registry.NewBuilder(nil, nil).AllowFallback().Add(fb))
	b := binding.Attach(eng, reg, nil, nil)

	nsFoo, err := b.Require(ctx, spec(t, "https://fb.example/foo"))
	if err != nil {
		t.Fatalf("Require foo failed: %v", err)
	}
	nsBar, err := b.Require(ctx, spec(t, "https://fb.example/bar"))
	if err != nil {
		t.Fatalf("Require bar failed: %v", err)
	}
	if nsFoo.Get("default") != "served" || nsBar.Get("default") != "served" {
		t.Error("namespaces disagree across the alias")
	}
	if calls != 1 {
		t.Errorf("fallback ran %d times, want 1", calls)
	}
	if got := eng.ModuleCount("https://fb.example/bar"); got != 1 {
		t.Errorf("got %d engine modules for bar, want 1", got)
	}
	if got := eng.ModuleCount("https://fb.example/foo"); got != 0 {
		t.Errorf("got %d engine modules for foo, want 0", got)
	}
}

func TestRequireEvalOverride(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	calls := 0
	override := func(ctx context.Context, e scriptmodules.Engine, mod registry.Module,
		h scriptmodules.Handle, obs registry.CompilationObserver) (scriptmodules.Promise, error) {
		calls++
		return e.Evaluate(ctx, h)
	}
	reg := finishRegistry(t, registry.NewBuilder(nil, nil).
		SetEvalCallback(override).
		Add(appBundle(t, registry.NewBundleBuilder(nil).
			AddSourceModule("main.js", "export a 1", registry.FlagNone))))
	b := binding.Attach(eng, reg, nil, nil)

	if _, err := b.Require(ctx, spec(t, "file:///main.js")); err != nil {
		t.Fatalf("Require failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("eval override ran %d times, want 1", calls)
	}
}
