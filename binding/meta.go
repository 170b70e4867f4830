package binding

import (
	"context"

	scriptmodules "github.com/wippyai/script-modules"
	"github.com/wippyai/script-modules/errors"
	"github.com/wippyai/script-modules/registry"
)

// MetaResolver is the import.meta.resolve function installed on every
// module: pure URL resolution against the module's own URL, with dot
// segments normalized and no registry consultation. The result is the
// resolved URL string, or nil when the input does not resolve.
type MetaResolver func(specifier string) any

// importMeta is the engine's import-meta hook. It populates main, url,
// and resolve on the module's meta object.
func (b *Binding) importMeta(ctx context.Context, module scriptmodules.Handle,
	meta scriptmodules.MetaObject) error {
	e, ok := b.byHandle[module]
	if !ok {
		return errors.New(errors.PhaseLink, errors.KindEngine).
			Detail("import.meta requested for an unknown module").
			Build()
	}
	if err := meta.Set("main", e.module.IsMain()); err != nil {
		return err
	}
	if err := meta.Set("url", registry.Href(e.instance)); err != nil {
		return err
	}
	base := e.instance
	resolve := MetaResolver(func(specifier string) any {
		u, err := registry.ResolveSpecifier(base, specifier)
		if err != nil {
			return nil
		}
		return registry.Href(u)
	})
	return meta.Set("resolve", resolve)
}
