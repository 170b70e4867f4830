package registry_test

import (
	"context"
	"net/url"
	"testing"

	scriptmodules "github.com/wippyai/script-modules"
	"github.com/wippyai/script-modules/enginetest"
	"github.com/wippyai/script-modules/errors"
	"github.com/wippyai/script-modules/registry"
)

// slotBinding is the minimal engine-slot contract; engine-driven
// evaluation recovers the observer through it.
type slotBinding struct {
	obs registry.CompilationObserver
}

func (s slotBinding) Observer() registry.CompilationObserver { return s.obs }

func TestSyntheticModuleDescribe(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	m := registry.NewSyntheticModule(registry.MustParseSpecifier("wippy:env"),
		registry.TypeBuiltin, func(ctx context.Context, specifier *url.URL,
			ns *registry.ModuleNamespace, obs registry.CompilationObserver) error {
			return nil
		}, []string{"version"}, registry.FlagNone)

	if _, err := m.Describe(ctx, eng, nil, registry.NopCompilationObserver{}); err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if eng.ModuleBySpecifier("wippy:env") == nil {
		t.Error("engine module not registered under the module specifier")
	}

	instance := registry.MustParseSpecifier("wippy:env?ctx=worker")
	if _, err := m.Describe(ctx, eng, instance, registry.NopCompilationObserver{}); err != nil {
		t.Fatalf("Describe with instance failed: %v", err)
	}
	if eng.ModuleBySpecifier("wippy:env?ctx=worker") == nil {
		t.Error("engine module not registered under the instance URL")
	}
}

func TestSyntheticModuleEvaluate(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	m := registry.NewSyntheticModule(registry.MustParseSpecifier("wippy:env"),
		registry.TypeBuiltin, func(ctx context.Context, specifier *url.URL,
			ns *registry.ModuleNamespace, obs registry.CompilationObserver) error {
			if err := ns.Set(ctx, "version", "1.2.3"); err != nil {
				return err
			}
			return ns.SetDefault(ctx, "env")
		}, []string{"version"}, registry.FlagNone)

	h, err := m.Describe(ctx, eng, nil, registry.NopCompilationObserver{})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	p, err := m.Evaluate(ctx, eng, h, nil, registry.NopCompilationObserver{}, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	eng.RunMicrotasks(ctx)

	if got := p.State(); got != scriptmodules.PromiseFulfilled {
		t.Fatalf("got promise state %s, want %s", got, scriptmodules.PromiseFulfilled)
	}
	if got := eng.Status(h); got != scriptmodules.StatusEvaluated {
		t.Errorf("got status %s, want %s", got, scriptmodules.StatusEvaluated)
	}
	ns, err := eng.Namespace(h)
	if err != nil {
		t.Fatalf("Namespace failed: %v", err)
	}
	if got := ns.Get("version"); got != "1.2.3" {
		t.Errorf("got version export %v, want %q", got, "1.2.3")
	}
	if got := ns.Get("default"); got != "env" {
		t.Errorf("got default export %v, want %q", got, "env")
	}
}

func TestSyntheticModuleUndeclaredExport(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	m := registry.NewSyntheticModule(registry.MustParseSpecifier("wippy:env"),
		registry.TypeBuiltin, func(ctx context.Context, specifier *url.URL,
			ns *registry.ModuleNamespace, obs registry.CompilationObserver) error {
			return ns.Set(ctx, "surprise", 1)
		}, []string{"version"}, registry.FlagNone)

	h, err := m.Describe(ctx, eng, nil, registry.NopCompilationObserver{})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	p, err := m.Evaluate(ctx, eng, h, nil, registry.NopCompilationObserver{}, nil)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	eng.RunMicrotasks(ctx)

	if got := p.State(); got != scriptmodules.PromiseRejected {
		t.Fatalf("got promise state %s, want %s", got, scriptmodules.PromiseRejected)
	}
	if got := eng.Status(h); got != scriptmodules.StatusErrored {
		t.Errorf("got status %s, want %s", got, scriptmodules.StatusErrored)
	}
	reason, ok := p.Result().(error)
	if !ok {
		t.Fatalf("rejection reason is %T, want error", p.Result())
	}
	if !errors.IsKind(reason, errors.KindUndeclaredExport) {
		t.Errorf("got %v, want kind %s", reason, errors.KindUndeclaredExport)
	}
}

func TestSyntheticModuleCallbackFailureReplays(t *testing.T) {
	// A failed evaluation is sticky: re-evaluating reports the stored
	// exception instead of running the callback again.
	ctx := context.Background()
	eng := enginetest.New()
	calls := 0
	m := registry.NewSyntheticModule(registry.MustParseSpecifier("wippy:flaky"),
		registry.TypeBuiltin, func(ctx context.Context, specifier *url.URL,
			ns *registry.ModuleNamespace, obs registry.CompilationObserver) error {
			calls++
			return errors.New(errors.PhaseEvaluate, errors.KindEvaluationFailed).
				Specifier(registry.Href(specifier)).
				Detail("backing store unavailable").
				Build()
		}, nil, registry.FlagNone)

	h, err := m.Describe(ctx, eng, nil, registry.NopCompilationObserver{})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	p1, err := m.Evaluate(ctx, eng, h, nil, registry.NopCompilationObserver{}, nil)
	if err != nil {
		t.Fatalf("first Evaluate failed: %v", err)
	}
	eng.RunMicrotasks(ctx)

	p2, err := m.Evaluate(ctx, eng, h, nil, registry.NopCompilationObserver{}, nil)
	if err != nil {
		t.Fatalf("second Evaluate failed: %v", err)
	}
	eng.RunMicrotasks(ctx)

	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
	if p1.State() != scriptmodules.PromiseRejected || p2.State() != scriptmodules.PromiseRejected {
		t.Errorf("got states %s and %s, want both rejected", p1.State(), p2.State())
	}
	if eng.Exception(h) == nil {
		t.Error("no stored exception after failed evaluation")
	}
}

func TestSyntheticModuleObserverFromSlot(t *testing.T) {
	// When the engine itself triggers evaluation, the callback's
	// observer comes from the context binding in the engine slot.
	ctx := context.Background()
	eng := enginetest.New()
	rec := &enginetest.RecordingCompilationObserver{}
	eng.SetSlot(slotBinding{obs: rec})

	m := registry.NewSyntheticModule(registry.MustParseSpecifier("wippy:data"),
		registry.TypeBuiltin, func(ctx context.Context, specifier *url.URL,
			ns *registry.ModuleNamespace, obs registry.CompilationObserver) error {
			obs.OnJSONParseStart(specifier, 2)
			return ns.SetDefault(ctx, map[string]any{})
		}, nil, registry.FlagNone)

	h, err := m.Describe(ctx, eng, nil, registry.NopCompilationObserver{})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if err := eng.Instantiate(ctx, h, nil); err != nil {
		t.Fatalf("Instantiate failed: %v", err)
	}
	if _, err := eng.Evaluate(ctx, h); err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	eng.RunMicrotasks(ctx)

	if got := rec.Count("json-parse"); got != 1 {
		t.Errorf("slot observer saw %d json-parse events, want 1", got)
	}
}
