package bioinfoflow

import (
	"compress/gzip"
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	base := t.TempDir()
	wf := testWorkflow(t)
	ws, err := NewWorkspace(wf, base, nil, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

func TestStageInputsSymlinksSingleMatch(t *testing.T) {
	ws := newTestWorkspace(t)
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "reads.fq")
	if err := os.WriteFile(src, []byte("ACGT"), 0o640); err != nil {
		t.Fatal(err)
	}

	m := NewIOManager(ws)
	resolved, err := m.StageInputs(map[string]string{"reads": src}, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := resolved["reads"].(string)
	if !ok {
		t.Fatalf("expected single string, got %T: %v", resolved["reads"], resolved["reads"])
	}
	target, err := os.Readlink(got)
	if err != nil {
		t.Fatalf("expected symlink, got error: %v", err)
	}
	if target != src {
		t.Errorf("symlink target = %q, want %q", target, src)
	}
}

func TestStageInputsOverrideWins(t *testing.T) {
	ws := newTestWorkspace(t)
	dir := t.TempDir()
	original := filepath.Join(dir, "a.txt")
	override := filepath.Join(dir, "b.txt")
	os.WriteFile(original, []byte("a"), 0o640)
	os.WriteFile(override, []byte("b"), 0o640)

	m := NewIOManager(ws)
	resolved, err := m.StageInputs(map[string]string{"reads": original}, map[string]string{"reads": override})
	if err != nil {
		t.Fatal(err)
	}
	got := resolved["reads"].(string)
	target, _ := os.Readlink(got)
	if target != override {
		t.Errorf("expected override to win, got target %q", target)
	}
}

func TestValidateInputsFailsOnEmptyMatch(t *testing.T) {
	err := ValidateInputs(map[string]any{"reads": []string{}})
	if err == nil {
		t.Fatal("expected error for empty match")
	}
}

func TestStageInputsMultiMatchResolvesToFirstPath(t *testing.T) {
	ws := newTestWorkspace(t)
	srcDir := t.TempDir()
	a := filepath.Join(srcDir, "a.fq")
	b := filepath.Join(srcDir, "b.fq")
	if err := os.WriteFile(a, []byte("A"), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("B"), 0o640); err != nil {
		t.Fatal(err)
	}

	m := NewIOManager(ws)
	resolved, err := m.StageInputs(map[string]string{"reads": filepath.Join(srcDir, "*.fq")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	staged, ok := resolved["reads"].([]string)
	if !ok || len(staged) != 2 {
		t.Fatalf("expected two staged paths, got %T: %v", resolved["reads"], resolved["reads"])
	}

	ctx := NewContext(ws.Run.Dir)
	ctx.Set("inputs.reads", resolved["reads"])
	got := ctx.Resolve("${inputs.reads}")
	if got != staged[0] {
		t.Errorf("multi-match placeholder resolved to %q, want first staged path %q", got, staged[0])
	}
}

func TestStepOutputsLexicalOrder(t *testing.T) {
	ws := newTestWorkspace(t)
	stepDir := filepath.Join(ws.Run.Dir, "outputs", "a")
	os.MkdirAll(stepDir, 0o750)
	os.WriteFile(filepath.Join(stepDir, "z.txt"), []byte("z"), 0o640)
	os.WriteFile(filepath.Join(stepDir, "a.txt"), []byte("a"), 0o640)

	m := NewIOManager(ws)
	files, err := m.StepOutputs("a")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "a.txt" || filepath.Base(files[1]) != "z.txt" {
		t.Errorf("files = %v, want lexically sorted [a.txt z.txt]", files)
	}
}

func TestStepOutputsMissingDirIsEmpty(t *testing.T) {
	ws := newTestWorkspace(t)
	m := NewIOManager(ws)
	files, err := m.StepOutputs("never-ran")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}

func TestArchiveProducesReadableTarGz(t *testing.T) {
	ws := newTestWorkspace(t)
	stepDir := filepath.Join(ws.Run.Dir, "outputs", "a")
	os.MkdirAll(stepDir, 0o750)
	os.WriteFile(filepath.Join(stepDir, "out.txt"), []byte("hello"), 0o640)

	m := NewIOManager(ws)
	path, err := m.Archive("outputs")
	if err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		t.Fatal(err)
	}
	tr := tar.NewReader(gz)
	found := false
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		if hdr.Name == filepath.Join("a", "out.txt") {
			found = true
		}
	}
	if !found {
		t.Error("expected a/out.txt inside archive")
	}
}
