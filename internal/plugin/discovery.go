package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// pluginConstructorPrefix is the exported symbol name convention a
// discovered file must follow: a zero-argument function returning `any`,
// named New<Something>Plugin. Grounded on codenerd's YaegiExecutor
// (internal/autopoiesis/yaegi_executor.go), generalized from a single
// sandboxed RunTool entry point to the registry's discovery scan.
const pluginConstructorPrefix = "New"

// Discover reads the top level of dir (subdirectories are not searched;
// a missing dir is not an error), interprets every *.go file there with a fresh
// yaegi interpreter, and registers whatever its exported New*Plugin
// constructor returns. Per spec.md §4.1 ("Failures ... are fatal with a
// clear path/cause; silent skipping is forbidden"), any error — parse,
// eval, missing or mis-typed constructor — aborts discovery immediately
// and names the offending file.
func (r *Registry) Discover(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("plugin: reading plugins directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".go") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := loadOne(path)
		if err != nil {
			return fmt.Errorf("plugin: loading %s: %w", path, err)
		}
		r.Register(p)
	}
	return nil
}

func loadOne(path string) (any, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("loading stdlib symbols: %w", err)
	}

	if _, err := i.Eval(string(src)); err != nil {
		return nil, fmt.Errorf("evaluating source: %w", err)
	}

	ctor, err := findConstructor(i, string(src))
	if err != nil {
		return nil, err
	}

	fn, ok := ctor.Interface().(func() any)
	if !ok {
		return nil, fmt.Errorf("constructor does not have signature func() any")
	}
	return fn(), nil
}

// findConstructor locates the file's New*Plugin symbol by scanning the
// source for a top-level `func New...Plugin(` declaration, then
// evaluating its qualified name. Yaegi always registers evaluated
// top-level declarations under the "main" package unless the source
// declares its own package name.
func findConstructor(i *interp.Interpreter, src string) (reflect.Value, error) {
	pkg := "main"
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			pkg = strings.TrimSpace(strings.TrimPrefix(trimmed, "package"))
			break
		}
	}

	name := ""
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "func "+pluginConstructorPrefix) {
			continue
		}
		rest := strings.TrimPrefix(trimmed, "func ")
		if idx := strings.Index(rest, "("); idx > 0 {
			candidate := rest[:idx]
			if strings.HasSuffix(candidate, "Plugin") {
				name = candidate
				break
			}
		}
	}
	if name == "" {
		return reflect.Value{}, fmt.Errorf("no exported New...Plugin() constructor found")
	}

	v, err := i.Eval(pkg + "." + name)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("resolving constructor %s.%s: %w", pkg, name, err)
	}
	return v, nil
}
