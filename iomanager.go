package bioinfoflow

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// IOManager stages declared inputs into a run's inputs/ directory and
// enumerates the files a completed step produced under outputs/<step>/.
type IOManager struct {
	ws *Workspace
}

// NewIOManager returns an IOManager bound to ws.
func NewIOManager(ws *Workspace) *IOManager {
	return &IOManager{ws: ws}
}

// StageInputs resolves each declared input (workflow inputs overlaid by
// overrides — overrides win) by expanding it with filepath.Glob,
// symlinking (falling back to copying) each match into inputs/, and
// recording every staged path under the input's name. Patterns are not
// matched recursively: "**" has the same meaning as "*" and matches
// within a single directory level only. It returns the
// resolved map, ready to merge into a Context.
//
// Per §4.4 step 5, a pattern with no matches still records an empty
// list rather than failing immediately — ValidateInputs is the actual
// gate, run separately so setup can report every missing input at once.
//
// A single match resolves to that bare path; multiple matches resolve
// to the first staged path when later substituted into a command
// string (see stringifyValue in pathresolver.go) — the full match list
// stays available under the same key for callers that want it.
func (m *IOManager) StageInputs(inputs map[string]string, overrides map[string]string) (map[string]any, error) {
	merged := make(map[string]string, len(inputs))
	for k, v := range inputs {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	resolved := make(map[string]any, len(merged))
	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, name)
	}
	sort.Strings(names)

	inputsDir := filepath.Join(m.ws.Run.Dir, "inputs")
	for _, name := range names {
		pattern := merged[name]
		if !filepath.IsAbs(pattern) {
			abs, err := filepath.Abs(pattern)
			if err != nil {
				return nil, &SetupError{Stage: "inputs", Message: fmt.Sprintf("resolve pattern for %q", name), Cause: err}
			}
			pattern = abs
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, &SetupError{Stage: "inputs", Message: fmt.Sprintf("glob pattern for %q", name), Cause: err}
		}

		var staged []string
		for _, src := range matches {
			dst := filepath.Join(inputsDir, filepath.Base(src))
			if err := linkOrCopy(src, dst); err != nil {
				return nil, &SetupError{Stage: "inputs", Message: fmt.Sprintf("stage %q", src), Cause: err}
			}
			staged = append(staged, dst)
		}

		switch len(staged) {
		case 0:
			resolved[name] = []string{}
		case 1:
			resolved[name] = staged[0]
		default:
			resolved[name] = staged
		}
	}
	return resolved, nil
}

// linkOrCopy creates dst as a symlink to src, skipping if dst is already
// a symlink pointing at src, removing any pre-existing dst otherwise,
// and falling back to a content copy if symlinking fails (e.g. across
// filesystems that don't support it).
func linkOrCopy(src, dst string) error {
	if target, err := os.Readlink(dst); err == nil && target == src {
		return nil
	}
	if _, err := os.Lstat(dst); err == nil {
		if err := os.Remove(dst); err != nil {
			return fmt.Errorf("remove existing target %s: %w", dst, err)
		}
	}
	if err := os.Symlink(src, dst); err == nil {
		return nil
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// ValidateInputs requires that every input name present in resolved has
// at least one existing path behind it. Called once, after StageInputs,
// so the run fails before any step executes rather than mid-flight.
func ValidateInputs(resolved map[string]any) error {
	names := make([]string, 0, len(resolved))
	for name := range resolved {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var paths []string
		switch v := resolved[name].(type) {
		case string:
			paths = []string{v}
		case []string:
			paths = v
		}
		if len(paths) == 0 {
			return &SetupError{Stage: "inputs", Message: fmt.Sprintf("input %q matched no files", name)}
		}
		for _, p := range paths {
			if _, err := os.Stat(p); err != nil {
				return &SetupError{Stage: "inputs", Message: fmt.Sprintf("input %q path %q does not exist", name, p), Cause: err}
			}
		}
	}
	return nil
}

// StepOutputs enumerates all regular files under outputs/<step>/ in
// lexical order.
func (m *IOManager) StepOutputs(step string) ([]string, error) {
	dir := filepath.Join(m.ws.Run.Dir, "outputs", step)
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate outputs for %s: %w", step, err)
	}
	sort.Strings(files)
	return files, nil
}

// OutputSize sums the byte size of every file under outputs/<step>/.
func (m *IOManager) OutputSize(step string) (int64, error) {
	files, err := m.StepOutputs(step)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			return 0, err
		}
		total += fi.Size()
	}
	return total, nil
}

// Archive writes a gzip-compressed tar of a run's outputs/ tree to
// <run>/<name>.tar.gz and returns its path. This supplements the core
// spec with the original implementation's output-archival feature.
func (m *IOManager) Archive(name string) (string, error) {
	outputsDir := filepath.Join(m.ws.Run.Dir, "outputs")
	archivePath := filepath.Join(m.ws.Run.Dir, name+".tar.gz")

	f, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	err = filepath.WalkDir(outputsDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(outputsDir, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = rel
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		data, err := os.Open(path)
		if err != nil {
			return err
		}
		defer data.Close()
		_, err = io.Copy(tw, data)
		return err
	})
	if err != nil {
		tw.Close()
		gz.Close()
		return "", fmt.Errorf("archive outputs: %w", err)
	}
	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	return archivePath, nil
}
