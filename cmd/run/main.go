package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/tetratelabs/wazero"
	"golang.org/x/term"

	scriptmodules "github.com/wippyai/script-modules"
	"github.com/wippyai/script-modules/binding"
	"github.com/wippyai/script-modules/enginetest"
	"github.com/wippyai/script-modules/payload"
	"github.com/wippyai/script-modules/registry"
)

func main() {
	var (
		tableFile   = flag.String("table", "", "Path to a JSON module table loaded as builtins")
		dirPath     = flag.String("dir", "", "Directory registered as the application bundle")
		entry       = flag.String("entry", "", "Module specifier to require (optional)")
		nodeCompat  = flag.Bool("node", false, "Enable Node.js specifier rewriting")
		list        = flag.Bool("list", false, "List registered modules and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *tableFile == "" && *dirPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: run -dir <path> [-entry specifier] [-node]")
		fmt.Fprintln(os.Stderr, "       run -table <modules.json> [-entry specifier]")
		fmt.Fprintln(os.Stderr, "       run -dir <path> -list")
		fmt.Fprintln(os.Stderr, "       run -dir <path> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*tableFile, *dirPath, *nodeCompat); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*tableFile, *dirPath, *entry, *nodeCompat, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(tableFile, dirPath, entry string, nodeCompat, listOnly bool) error {
	ctx := context.Background()

	reg, names, cleanup, err := buildRegistry(ctx, tableFile, dirPath)
	defer cleanup()
	if err != nil {
		return err
	}

	// Show what got registered
	fmt.Printf("Registered modules: %d\n", len(names))
	for _, name := range names {
		fmt.Printf("  %s\n", name)
	}

	if listOnly {
		return nil
	}

	// If no entry specified, try common entry points
	if entry == "" {
		for _, candidate := range []string{"file:///main.js", "file:///index.js"} {
			for _, name := range names {
				if name == candidate {
					entry = candidate
					break
				}
			}
			if entry != "" {
				break
			}
		}
		if entry == "" && len(names) == 1 {
			entry = names[0]
		}
		if entry == "" {
			fmt.Printf("\nNo entry specified and no main.js or index.js registered.\n")
			fmt.Printf("Use -entry to pick a module to require.\n")
			return nil
		}
	}

	spec, err := parseEntry(entry)
	if err != nil {
		return fmt.Errorf("parse entry: %w", err)
	}

	eng := enginetest.New()
	obs := &enginetest.RecordingCompilationObserver{}
	bind := binding.Attach(eng, reg, obs, &binding.Options{NodeCompat: nodeCompat})

	fmt.Printf("\nRequiring %s...\n", registry.Href(spec))
	ns, err := bind.Require(ctx, spec)
	if err != nil {
		return fmt.Errorf("require: %w", err)
	}

	fmt.Printf("\nExports:\n")
	for _, line := range formatNamespace(ns) {
		fmt.Printf("  %s\n", line)
	}

	if n := obs.Count("compile"); n > 0 {
		fmt.Printf("\nCompiled %d module(s)\n", n)
	}
	return nil
}

// buildRegistry assembles a registry from the CLI inputs: every file
// under dirPath becomes an application-bundle source module named by
// its relative path, and tableFile records load into builtin bundles
// at both visibility levels, so one table can carry internals too. The
// returned cleanup closes the wazero runtime backing wasm records.
func buildRegistry(ctx context.Context, tableFile, dirPath string) (*registry.Registry, []string, func(), error) {
	cleanup := func() {}
	b := registry.NewBuilder(nil, nil)
	var names []string

	if dirPath != "" {
		app := registry.NewBundleBuilder(nil)
		err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(dirPath, path)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			name := filepath.ToSlash(rel)
			app.AddSourceModule(name, string(data), registry.FlagNone)
			names = append(names, "file:///"+name)
			return nil
		})
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("read dir: %w", err)
		}
		bundle, err := app.Finish()
		if err != nil {
			return nil, nil, cleanup, err
		}
		b.Add(bundle)
	}

	if tableFile != "" {
		data, err := os.ReadFile(tableFile)
		if err != nil {
			return nil, nil, cleanup, fmt.Errorf("read table: %w", err)
		}
		records, err := payload.ParseTable(data)
		if err != nil {
			return nil, nil, cleanup, err
		}

		rt := wazero.NewRuntime(ctx)
		cleanup = func() { _ = rt.Close(ctx) }
		opts := &payload.TableOptions{WasmRuntime: rt}

		for _, typ := range []registry.ModuleType{registry.TypeBuiltin, registry.TypeBuiltinOnly} {
			bb := registry.NewBuiltinBuilder(typ)
			if err := payload.LoadTable(bb, records, opts); err != nil {
				return nil, nil, cleanup, err
			}
			bundle, err := bb.Finish()
			if err != nil {
				return nil, nil, cleanup, err
			}
			b.Add(bundle)
		}
		for _, rec := range records {
			names = append(names, rec.Name)
		}
	}

	reg, err := b.Finish()
	if err != nil {
		return nil, nil, cleanup, err
	}
	sort.Strings(names)
	return reg, names, cleanup, nil
}

// parseEntry accepts a full URL or a name relative to the default
// bundle base, so "-entry main.js" works alongside "-entry wippy:env".
func parseEntry(entry string) (*url.URL, error) {
	if u, err := registry.ParseSpecifier(entry); err == nil {
		return u, nil
	}
	return registry.ResolveSpecifier(registry.DefaultBundleBase(), entry)
}

func formatNamespace(ns scriptmodules.Namespace) []string {
	names, ok := ns.(interface{ Names() []string })
	if !ok {
		return []string{fmt.Sprintf("default = %v", ns.Get("default"))}
	}
	var lines []string
	for _, name := range names.Names() {
		lines = append(lines, fmt.Sprintf("%s = %v", name, ns.Get(name)))
	}
	if len(lines) == 0 {
		lines = append(lines, "(no exports)")
	}
	return lines
}
