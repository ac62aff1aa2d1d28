package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cojen/boxtin/classfile"
	"github.com/cojen/boxtin/instruction"
)

// buildCallerClassBytes constructs a minimal class whose sole method invokes
// java/io/File.delete()Z via invokevirtual, serialized to real .class bytes
// (mirrors planner_test.go's buildClassWithOneCall, one package over).
func buildCallerClassBytes(t *testing.T) []byte {
	t.Helper()
	cp := classfile.NewConstantPool()
	thisClass := cp.InternClass("com/acme/Caller")
	methodref := cp.InternMethodref("java/io/File", "delete", "()Z")

	code := []byte{
		byte(instruction.Invokevirtual), byte(methodref >> 8), byte(methodref),
		byte(instruction.Pop),
		byte(instruction.Return),
	}
	nameIdx := cp.InternUtf8("run")
	descIdx := cp.InternUtf8("()V")

	pc := &classfile.ParsedClass{
		MajorVersion: 61,
		ConstantPool: cp,
		ThisClass:    thisClass,
		Methods: []classfile.Method{
			{
				NameIndex: nameIdx,
				DescIndex: descIdx,
				Code: &classfile.CodeAttribute{
					MaxStack:  2,
					MaxLocals: 1,
					Code:      code,
				},
			},
		},
	}
	out, err := classfile.Redefine(pc)
	if err != nil {
		t.Fatalf("Redefine() error: %v", err)
	}
	return out
}

const denyDeletePolicy = `
modules:
  java.base:
    packages:
      java/io:
        classes:
          File:
            methods:
              delete:
                action: {kind: standard}
`

func TestRunRejectsMissingPolicyFile(t *testing.T) {
	dir := t.TempDir()
	err := run(filepath.Join(dir, "no-such-policy.yaml"), dir, dir, "app", false, "info")
	if err == nil {
		t.Fatal("expected an error for a missing policy file")
	}
}

func TestRunRewritesDeniedCallSite(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()

	original := buildCallerClassBytes(t)
	if err := os.WriteFile(filepath.Join(inputDir, "Caller.class"), original, 0o644); err != nil {
		t.Fatalf("writing input class: %v", err)
	}

	policyPath := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(policyPath, []byte(denyDeletePolicy), 0o644); err != nil {
		t.Fatalf("writing policy file: %v", err)
	}

	if err := run(policyPath, inputDir, outputDir, "app", true, "debug"); err != nil {
		t.Fatalf("run() error: %v", err)
	}

	rewritten, err := os.ReadFile(filepath.Join(outputDir, "Caller.class"))
	if err != nil {
		t.Fatalf("reading rewritten output: %v", err)
	}
	if bytes.Equal(rewritten, original) {
		t.Error("expected the denied call site to be rewritten, but output matches the original bytes")
	}
}
