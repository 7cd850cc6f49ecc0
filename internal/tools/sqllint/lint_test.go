package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func writeGo(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("package q\n\n"+body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLintReportsMissingMarker(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "q.go", "const QBad = `\nselect 1\n`\n\nconst label = \"the job will update later\"\n")

	vs, err := lintTargets([]string{dir})
	if err != nil {
		t.Fatalf("lintTargets: %v", err)
	}
	if len(vs) != 1 {
		t.Fatalf("violations = %d, want 1: %+v", len(vs), vs)
	}
	if vs[0].name != "QBad" || vs[0].line != 3 {
		t.Fatalf("violation = %+v", vs[0])
	}
}

func TestLintAcceptsMarkedStatements(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "q.go", "const QOk = `--sql "+uuid.NewString()+"\ninsert into jobs default values`\n")

	vs, err := lintTargets([]string{dir})
	if err != nil {
		t.Fatalf("lintTargets: %v", err)
	}
	if len(vs) != 0 {
		t.Fatalf("violations = %+v, want none", vs)
	}
}

func TestLintReportsDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	id := uuid.NewString()
	writeGo(t, dir, "a.go", "const QA = `--sql "+id+"\nselect 1`\n")
	writeGo(t, dir, "b.go", "const QB = `--sql "+id+"\nselect 2`\n")

	vs, err := lintTargets([]string{dir})
	if err != nil {
		t.Fatalf("lintTargets: %v", err)
	}
	if len(vs) != 1 {
		t.Fatalf("violations = %d, want 1: %+v", len(vs), vs)
	}
	if vs[0].name != "QB" || !strings.Contains(vs[0].message, "QA") {
		t.Fatalf("violation = %+v", vs[0])
	}
}

func TestLintSkipsUnderscoreDirsAndTests(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "_examples/q.go", "const QBad = `select 1`\n")
	writeGo(t, dir, "q_test.go", "const QBad = `select 1`\n")

	vs, err := lintTargets([]string{dir})
	if err != nil {
		t.Fatalf("lintTargets: %v", err)
	}
	if len(vs) != 0 {
		t.Fatalf("violations = %+v, want none", vs)
	}
}
