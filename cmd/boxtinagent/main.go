// Command boxtinagent is a demo harness: it activates the agent package
// in-process (no real instrumentation host) and drives Transform over
// every .class file found under a directory, writing the rewritten bytes
// to an output directory mirroring the input's layout.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/cojen/boxtin/agent"
	"github.com/cojen/boxtin/boxtincfg"
	"github.com/cojen/boxtin/boxtinlog"
	"github.com/cojen/boxtin/policy"
	"github.com/cojen/boxtin/stdlib"
)

func main() {
	var (
		policyPath   = flag.String("policy", "", "path to a YAML policy rule file (required)")
		inputDir     = flag.String("dir", "", "directory to scan for .class files (required)")
		outputDir    = flag.String("out", "", "directory to write rewritten .class files into (required)")
		callerModule = flag.String("module", "app", "caller module identity to transform classes as")
		useStdlib    = flag.Bool("stdlib", false, "validate and resolve against the built-in standard-library catalog")
		logLevel     = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	if *policyPath == "" || *inputDir == "" || *outputDir == "" {
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*policyPath, *inputDir, *outputDir, *callerModule, *useStdlib, *logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(policyPath, inputDir, outputDir, callerModule string, useStdlib bool, logLevel string) error {
	data, err := os.ReadFile(policyPath)
	if err != nil {
		return fmt.Errorf("reading policy file: %w", err)
	}

	var catalog policy.Catalog
	if useStdlib {
		catalog = stdlib.Catalog()
	}

	rules, err := boxtincfg.LoadRules(data, catalog)
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}

	if err := agent.Premain("default"); err != nil {
		return fmt.Errorf("premain: %w", err)
	}
	if err := agent.Activate(nil, &fileController{rules: rules, catalog: catalog}); err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	boxtinlog.Init()
	boxtinlog.SetLevel(boxtincfg.ParseLogLevel(logLevel))

	if err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".class") {
			return nil
		}
		return transformOne(inputDir, outputDir, path, callerModule)
	}); err != nil {
		return err
	}

	return writeHelperClasses(outputDir)
}

// writeHelperClasses persists every generated CustomActions class next to
// the rewritten callers, so a reader can inspect what C6 produced without
// a real host class loader resolving it on demand.
func writeHelperClasses(outputDir string) error {
	classes, err := agent.Default().EmitHelperClasses()
	if err != nil {
		return fmt.Errorf("emitting helper classes: %w", err)
	}
	for internalName, data := range classes {
		destPath := filepath.Join(outputDir, filepath.FromSlash(internalName)+".class")
		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return fmt.Errorf("creating output directory for %s: %w", destPath, err)
		}
		if err := os.WriteFile(destPath, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", destPath, err)
		}
		fmt.Printf("(generated) -> %s (%d bytes)\n", destPath, len(data))
	}
	return nil
}

// transformOne reads one .class file, derives its internal (JVM-style)
// class name from its path relative to inputDir, runs it through the
// active agent, and writes the result (or the original bytes, for an
// untouched class) to the mirrored location under outputDir.
func transformOne(inputDir, outputDir, path, callerModule string) error {
	rel, err := filepath.Rel(inputDir, path)
	if err != nil {
		return err
	}
	internalName := strings.TrimSuffix(filepath.ToSlash(rel), ".class")

	original, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	rewritten, err := agent.Default().Transform(callerModule, internalName, original)
	if err != nil {
		return fmt.Errorf("transforming %s: %w", internalName, err)
	}
	if rewritten == nil {
		rewritten = original // unchanged: spec §6 transform() returns null for "leave as-is"
	}

	destPath := filepath.Join(outputDir, rel)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("creating output directory for %s: %w", destPath, err)
	}
	if err := os.WriteFile(destPath, rewritten, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	fmt.Printf("%s -> %s (%d bytes)\n", internalName, destPath, len(rewritten))
	return nil
}
