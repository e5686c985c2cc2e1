package bioinfoflow

import (
	"path/filepath"
	"testing"
)

func TestContextResolveSimple(t *testing.T) {
	c := NewContext("/run")
	c.Set("run_dir", "/run")
	c.Set("step.name", "align")
	got := c.Resolve("echo ${step.name} in ${run_dir}")
	want := "echo align in /run"
	if got != want {
		t.Errorf("Resolve() = %q, want %q", got, want)
	}
}

func TestContextResolveMissingLeavesPlaceholder(t *testing.T) {
	c := NewContext("/run")
	got := c.Resolve("echo ${nope.missing}")
	if got != "echo ${nope.missing}" {
		t.Errorf("Resolve() = %q, want placeholder preserved", got)
	}
}

func TestContextResolveMultiplePerPass(t *testing.T) {
	c := NewContext("/run")
	c.Set("a", "1")
	c.Set("b", "2")
	got := c.Resolve("${a}-${b}")
	if got != "1-2" {
		t.Errorf("Resolve() = %q, want 1-2", got)
	}
}

func TestContextUpdateDeepMerge(t *testing.T) {
	c := NewContext("/run")
	c.Update(map[string]any{"steps": map[string]any{"a": map[string]any{"status": "COMPLETED"}}})
	c.Update(map[string]any{"steps": map[string]any{"b": map[string]any{"status": "RUNNING"}}})
	if v, ok := c.Get("steps.a.status"); !ok || v != "COMPLETED" {
		t.Errorf("steps.a.status = %v, %v", v, ok)
	}
	if v, ok := c.Get("steps.b.status"); !ok || v != "RUNNING" {
		t.Errorf("steps.b.status = %v, %v", v, ok)
	}
}

func TestResolvePathClassification(t *testing.T) {
	c := NewContext("/run")
	tests := []struct {
		in   string
		want string
	}{
		{"/abs/path", "/abs/path"},
		{"inputs/reads.fq", filepath.Join("/run", "inputs/reads.fq")},
		{"outputs/x.bam", filepath.Join("/run", "outputs/x.bam")},
		{"steps/align/out.bam", filepath.Join("/run", "outputs", "align", "out.bam")},
	}
	for _, tt := range tests {
		if got := c.ResolvePath(tt.in); got != tt.want {
			t.Errorf("ResolvePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResolvePathWithPlaceholderThenClassify(t *testing.T) {
	c := NewContext("/run")
	c.Set("step.name", "align")
	got := c.ResolvePath("steps/${step.name}/out.bam")
	want := filepath.Join("/run", "outputs", "align", "out.bam")
	if got != want {
		t.Errorf("ResolvePath() = %q, want %q", got, want)
	}
}
