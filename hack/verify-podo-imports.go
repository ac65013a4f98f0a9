//go:build ignore
// +build ignore

/*
Copyright 2026 The Podo Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// verify-podo-imports checks the package layering under pkg/podo. The
// components (activator, proxy, reaper, controller) only meet in
// pkg/podo/server, and nothing below the server reaches back up into it or
// into cmd/.
//
//	go run hack/verify-podo-imports.go [--allow pkg/podo/x] [--include-tests]
package main

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

const (
	rootPath   = "./pkg/podo"
	repoModule = "github.com/podo-dev/podo"
)

var (
	additionalAllowed []string
	includeTests      bool
)

// components may not import one another.
var components = []string{
	"pkg/podo/activator",
	"pkg/podo/controller",
	"pkg/podo/proxy",
	"pkg/podo/reaper",
}

// wiring is only importable from cmd/.
var wiring = []string{
	"pkg/podo/server",
	"cmd/",
}

func init() {
	pflag.StringSliceVar(&additionalAllowed, "allow", []string{}, "Import paths exempt from the layering rules (can be specified multiple times)")
	pflag.BoolVar(&includeTests, "include-tests", false, "Also check _test.go files")
}

func main() {
	pflag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type violation struct {
	filePath   string
	importPath string
	reason     string
}

func (v violation) String() string {
	return fmt.Sprintf("%s: imports %s (%s)", v.filePath, v.importPath, v.reason)
}

func componentOf(path string) string {
	for _, c := range components {
		if strings.HasPrefix(path, c+"/") || path == c {
			return c
		}
	}
	return ""
}

func allowed(importPath string) bool {
	for _, a := range additionalAllowed {
		if strings.HasPrefix(importPath, a) {
			return true
		}
	}
	return false
}

// check returns why pkg may not import importPath, or "" when it may.
func check(pkg, importPath string) string {
	if allowed(importPath) {
		return ""
	}
	if !strings.HasPrefix(pkg, "pkg/podo/server") {
		for _, w := range wiring {
			if strings.HasPrefix(importPath, w) {
				return "wiring package"
			}
		}
	}
	from, to := componentOf(pkg), componentOf(importPath)
	if from != "" && to != "" && from != to {
		return "cross-component import"
	}
	return ""
}

func run() error {
	violations := []violation{}

	fmt.Printf("Validating imports in %s\n", rootPath)
	if len(additionalAllowed) > 0 {
		fmt.Printf("Additional allowed paths (via flags): %v\n", additionalAllowed)
	}

	err := filepath.Walk(rootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		if !includeTests && strings.HasSuffix(path, "_test.go") {
			return nil
		}

		relPath, err := filepath.Rel(".", path)
		if err != nil {
			relPath = path
		}
		pkg := filepath.ToSlash(filepath.Dir(relPath))

		fset := token.NewFileSet()
		node, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		for _, imp := range node.Imports {
			importPath := strings.Trim(imp.Path.Value, `"`)
			if !strings.HasPrefix(importPath, repoModule+"/") {
				continue
			}
			relImportPath := strings.TrimPrefix(importPath, repoModule+"/")
			if reason := check(pkg, relImportPath); reason != "" {
				violations = append(violations, violation{filePath: relPath, importPath: relImportPath, reason: reason})
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk directory: %w", err)
	}

	if len(violations) > 0 {
		sort.Slice(violations, func(i, j int) bool { return violations[i].filePath < violations[j].filePath })
		fmt.Printf("\n[ERROR] Found %d import violations:\n", len(violations))
		for _, v := range violations {
			fmt.Println("  " + v.String())
		}
		return fmt.Errorf("import validation failed: %d violations found", len(violations))
	}

	fmt.Printf("\n[PASS] All imports in %s are valid!\n", rootPath)
	return nil
}
