package registry

import (
	"context"
	"fmt"
	"net/url"

	"github.com/wippyai/script-modules/errors"
)

// builderCore carries the add/alias state shared by the bundle builder
// kinds. The first configuration error sticks and is reported by
// finish; later adds become no-ops so call sites can chain freely.
type builderCore struct {
	typ       ModuleType
	base      *url.URL
	aliases   map[string]string
	factories map[string]ModuleFactory
	err       error
}

func newBuilderCore(typ ModuleType, base *url.URL) builderCore {
	return builderCore{
		typ:       typ,
		base:      base,
		aliases:   make(map[string]string),
		factories: make(map[string]ModuleFactory),
	}
}

func (c *builderCore) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *builderCore) taken(key string) bool {
	if _, ok := c.aliases[key]; ok {
		return true
	}
	_, ok := c.factories[key]
	return ok
}

func (c *builderCore) register(u *url.URL, m Module) {
	if c.err != nil {
		return
	}
	key := CanonicalKey(u)
	if c.taken(key) {
		c.fail(errors.DuplicateRegistration(key))
		return
	}
	c.factories[key] = func(context.Context, *ResolveContext) (*Resolution, error) {
		return &Resolution{Module: m}, nil
	}
}

func (c *builderCore) registerAlias(u, target *url.URL) {
	if c.err != nil {
		return
	}
	key := CanonicalKey(u)
	if c.taken(key) {
		c.fail(errors.DuplicateRegistration(key))
		return
	}
	c.aliases[key] = CanonicalKey(target)
}

// validateAliases rejects alias chains that cycle inside this bundle.
// Chains are free to end at a module or leave the bundle entirely;
// cross-bundle loops can only be caught at resolve time.
func (c *builderCore) validateAliases() error {
	for start := range c.aliases {
		seen := make(map[string]struct{})
		key := start
		for {
			if _, ok := seen[key]; ok {
				return errors.AliasCycle(start)
			}
			seen[key] = struct{}{}
			target, ok := c.aliases[key]
			if !ok {
				break
			}
			key = target
		}
	}
	return nil
}

func (c *builderCore) finish() (Bundle, error) {
	if c.err != nil {
		return nil, c.err
	}
	if err := c.validateAliases(); err != nil {
		return nil, err
	}
	return newStaticBundle(c.typ, c.base, c.aliases, c.factories), nil
}

// BundleBuilder assembles an application bundle. Module names resolve
// against the bundle base, so plain relative names like "lib/util.js"
// work naturally.
type BundleBuilder struct {
	core builderCore
}

// NewBundleBuilder creates a builder for an application bundle. A nil
// base means file:///.
func NewBundleBuilder(base *url.URL) *BundleBuilder {
	if base == nil {
		base = DefaultBundleBase()
	}
	return &BundleBuilder{core: newBuilderCore(TypeBundle, base)}
}

// AddSourceModule registers a source-text module under name.
func (b *BundleBuilder) AddSourceModule(name, source string, flags Flags) *BundleBuilder {
	if u := b.resolveName(name); u != nil {
		b.core.register(u, NewSourceModule(u, TypeBundle, source, flags))
	}
	return b
}

// AddSyntheticModule registers a synthetic module under name.
func (b *BundleBuilder) AddSyntheticModule(name string, cb EvaluateCallback,
	namedExports []string, flags Flags) *BundleBuilder {
	if u := b.resolveName(name); u != nil {
		b.core.register(u, NewSyntheticModule(u, TypeBundle, cb, namedExports, flags))
	}
	return b
}

// Alias maps name to target. Both resolve against the bundle base.
// Aliases may point at modules in other bundles; in-bundle chains are
// validated for cycles at Finish.
func (b *BundleBuilder) Alias(name, target string) *BundleBuilder {
	u := b.resolveName(name)
	t := b.resolveName(target)
	if u != nil && t != nil {
		b.core.registerAlias(u, t)
	}
	return b
}

// Finish validates and returns the bundle. The first configuration
// error encountered during building is returned instead.
func (b *BundleBuilder) Finish() (Bundle, error) {
	return b.core.finish()
}

func (b *BundleBuilder) resolveName(name string) *url.URL {
	if b.core.err != nil {
		return nil
	}
	u, err := ResolveSpecifier(b.core.base, name)
	if err != nil {
		b.core.fail(err)
		return nil
	}
	return u
}

// BuiltinBuilder assembles a builtin or builtin-only bundle. Module
// names must be absolute URLs outside the file: scheme, which is
// reserved for application code.
type BuiltinBuilder struct {
	core builderCore
}

// NewBuiltinBuilder creates a builder for a builtin bundle. typ must be
// TypeBuiltin or TypeBuiltinOnly.
func NewBuiltinBuilder(typ ModuleType) *BuiltinBuilder {
	b := &BuiltinBuilder{core: newBuilderCore(typ, nil)}
	if typ != TypeBuiltin && typ != TypeBuiltinOnly {
		b.core.fail(errors.New(errors.PhaseBuild, errors.KindConfiguration).
			Detail("builtin builder requires TypeBuiltin or TypeBuiltinOnly, got %s", typ).
			Build())
	}
	return b
}

// Type reports the module type this builder registers.
func (b *BuiltinBuilder) Type() ModuleType {
	return b.core.typ
}

// AddSourceModule registers a source-text module under name.
func (b *BuiltinBuilder) AddSourceModule(name, source string, flags Flags) *BuiltinBuilder {
	if u := b.parseName(name); u != nil {
		b.core.register(u, NewSourceModule(u, b.core.typ, source, flags))
	}
	return b
}

// AddSyntheticModule registers a synthetic module under name.
func (b *BuiltinBuilder) AddSyntheticModule(name string, cb EvaluateCallback,
	namedExports []string, flags Flags) *BuiltinBuilder {
	if u := b.parseName(name); u != nil {
		b.core.register(u, NewSyntheticModule(u, b.core.typ, cb, namedExports, flags))
	}
	return b
}

// Alias maps name to target, both absolute URLs.
func (b *BuiltinBuilder) Alias(name, target string) *BuiltinBuilder {
	u := b.parseName(name)
	t := b.parseName(target)
	if u != nil && t != nil {
		b.core.registerAlias(u, t)
	}
	return b
}

// Finish validates and returns the bundle. The first configuration
// error encountered during building is returned instead.
func (b *BuiltinBuilder) Finish() (Bundle, error) {
	return b.core.finish()
}

func (b *BuiltinBuilder) parseName(name string) *url.URL {
	if b.core.err != nil {
		return nil
	}
	u, err := ParseSpecifier(name)
	if err != nil {
		b.core.fail(err)
		return nil
	}
	if u.Scheme == "file" {
		b.core.fail(errors.InvalidSpecifier(name,
			fmt.Errorf("file: specifiers are reserved for application bundle modules")))
		return nil
	}
	return u
}
