//go:build mage

// Package main provides build targets for the dials project using Mage.
//
// Usage:
//
//	mage build          Compile the dials binary to bin/
//	mage test:all       Run all tests
//	mage test:short     Run tests without the HTTP and WebSocket round trips
//	mage test:race      Run all tests with the race detector
//	mage lint           Run golangci-lint
//	mage vet            Run go vet
//	mage clean          Remove build artifacts
//	mage install        Install dials to GOPATH/bin
//	mage stats          Print line counts per package
package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "dials"
	binaryDir  = "bin"
	cmdDir     = "./cmd/dials"
)

// Build compiles the dials binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test groups test targets.
type Test mg.Namespace

// All runs every test.
func (Test) All() error {
	return sh.RunV(binGo, "test", "./...")
}

// Short runs the tests of packages that do not start servers.
func (Test) Short() error {
	pkgs, err := sh.Output(binGo, "list", "./...")
	if err != nil {
		return err
	}
	var short []string
	for _, pkg := range strings.Split(pkgs, "\n") {
		if pkg == "" || strings.HasSuffix(pkg, "/internal/transport") ||
			strings.HasSuffix(pkg, "/internal/mirror") || strings.HasSuffix(pkg, "/internal/cli") {
			continue
		}
		short = append(short, pkg)
	}
	if len(short) == 0 {
		fmt.Println("No test packages found.")
		return nil
	}
	args := append([]string{"test"}, short...)
	return sh.RunV(binGo, args...)
}

// Race runs every test with the race detector.
func (Test) Race() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}

// Stats prints production and test line counts per package.
func Stats() error {
	out, err := sh.Output(binGo, "list", "-f", "{{.ImportPath}}|{{.Dir}}|{{join .GoFiles \",\"}}|{{join .TestGoFiles \",\"}}", "./...")
	if err != nil {
		return err
	}
	var total packageStats
	fmt.Printf("%-44s %8s %8s\n", "package", "prod", "test")
	for _, line := range strings.Split(out, "\n") {
		parts := strings.Split(line, "|")
		if len(parts) != 4 {
			continue
		}
		st, err := countPackage(parts[1], parts[2], parts[3])
		if err != nil {
			return err
		}
		total.prod += st.prod
		total.test += st.test
		fmt.Printf("%-44s %8d %8d\n", strings.TrimPrefix(parts[0], modulePath+"/"), st.prod, st.test)
	}
	fmt.Printf("%-44s %8d %8d\n", "total", total.prod, total.test)
	return nil
}

const modulePath = "github.com/mesh-intelligence/dials"

type packageStats struct {
	prod, test int
}

func countPackage(dir, goFiles, testFiles string) (packageStats, error) {
	var st packageStats
	for _, f := range splitList(goFiles) {
		n, err := countLines(filepath.Join(dir, f))
		if err != nil {
			return st, err
		}
		st.prod += n
	}
	for _, f := range splitList(testFiles) {
		n, err := countLines(filepath.Join(dir, f))
		if err != nil {
			return st, err
		}
		st.test += n
	}
	return st, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// countLines counts non-blank lines.
func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			count++
		}
	}
	return count, scanner.Err()
}
