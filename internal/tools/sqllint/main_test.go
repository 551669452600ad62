package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const markedSource = "package q\n\nconst QSelect = `--sql 8a8e0d52-7f5d-4f21-8b7d-f7d4b821eed7\nselect 1;\n`\n"

func TestMarkedQueryPasses(t *testing.T) {
	l := newLinter()
	if err := l.file("a.go", markedSource); err != nil {
		t.Fatalf("file: %v", err)
	}
	if vs := l.finish(); len(vs) != 0 {
		t.Fatalf("unexpected violations: %v", vs)
	}
}

func TestMissingMarker(t *testing.T) {
	src := "package q\n\nconst (\n\tLabel = \"kiosk\"\n\tQCreate = `create table t (id int);`\n)\n"
	l := newLinter()
	if err := l.file("b.go", src); err != nil {
		t.Fatalf("file: %v", err)
	}
	vs := l.finish()
	if len(vs) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(vs), vs)
	}
	if vs[0].name != "QCreate" || vs[0].line != 5 {
		t.Fatalf("violation = %+v, want QCreate on line 5", vs[0])
	}
}

func TestDuplicateMarker(t *testing.T) {
	l := newLinter()
	if err := l.file("a.go", markedSource); err != nil {
		t.Fatalf("file a: %v", err)
	}
	dup := strings.Replace(markedSource, "QSelect", "QSelectAgain", 1)
	if err := l.file("b.go", dup); err != nil {
		t.Fatalf("file b: %v", err)
	}
	vs := l.finish()
	if len(vs) != 1 {
		t.Fatalf("got %d violations, want 1: %v", len(vs), vs)
	}
	if !strings.Contains(vs[0].message, "already used by QSelect at a.go:3") {
		t.Fatalf("message = %q", vs[0].message)
	}
}

func TestRunWalksDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ok.go"), []byte(markedSource), 0o644); err != nil {
		t.Fatal(err)
	}
	var stderr bytes.Buffer
	if code := run([]string{dir}, &stderr); code != 0 {
		t.Fatalf("exit = %d, stderr %s", code, stderr.String())
	}

	bad := "package q\n\nconst QDelete = `delete from t;`\n"
	if err := os.WriteFile(filepath.Join(dir, "bad.go"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	stderr.Reset()
	if code := run([]string{dir}, &stderr); code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "QDelete") {
		t.Fatalf("stderr %q does not name QDelete", stderr.String())
	}
}
