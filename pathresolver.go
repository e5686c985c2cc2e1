package bioinfoflow

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// placeholderRegexp matches "${dot.separated.path}" expressions. Nested
// placeholders ("${${x}}") are not supported, matching §4.2.
var placeholderRegexp = regexp.MustCompile(`\$\{([^}]*)\}`)

// Context is the hierarchical, mutex-guarded mapping that command
// strings are resolved against: inputs, run directory, config, and
// prior steps' outputs. It generalizes the teacher's flat
// WorkflowContext.Resolve("{{key}}") to the dot-path lookup §4.2
// requires, with the same "one mutex guards the whole tree" discipline
// that document calls for under concurrent step execution.
type Context struct {
	mu     sync.RWMutex
	values map[string]any
	runDir string
}

// NewContext returns an empty Context rooted at runDir (used to classify
// relative paths in ResolvePath).
func NewContext(runDir string) *Context {
	return &Context{values: make(map[string]any), runDir: runDir}
}

// Get performs a dot-path lookup, trying map-key lookup at each
// component. Returns the leaf value and true, or nil and false if any
// component is missing.
func (c *Context) Get(path string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lookup(c.values, strings.Split(path, "."))
}

func lookup(node any, parts []string) (any, bool) {
	if len(parts) == 0 {
		return node, true
	}
	m, ok := node.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[parts[0]]
	if !ok {
		return nil, false
	}
	return lookup(v, parts[1:])
}

// Set assigns a single dot-path, creating intermediate maps as needed.
func (c *Context) Set(path string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	parts := strings.Split(path, ".")
	node := c.values
	for _, p := range parts[:len(parts)-1] {
		next, ok := node[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[p] = next
		}
		node = next
	}
	node[parts[len(parts)-1]] = value
}

// Update deep-merges new into the context: nested maps recurse
// key-by-key, any other value type overwrites the existing leaf. This
// mirrors the original's update_context/_deep_update recursive merge.
func (c *Context) Update(new map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	deepMerge(c.values, new)
}

func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				deepMerge(dstMap, srcMap)
				continue
			}
			merged := make(map[string]any)
			deepMerge(merged, srcMap)
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}

// Resolve substitutes every "${path}" expression in s in a single pass.
// A missing path leaves the original placeholder text in place; the
// caller (the executor) does not treat this as fatal — an unresolved
// placeholder reaching the container is the intended failure signal.
func (c *Context) Resolve(s string) string {
	return placeholderRegexp.ReplaceAllStringFunc(s, func(match string) string {
		path := match[2 : len(match)-1] // strip "${" and "}"
		v, ok := c.Get(path)
		if !ok {
			return match
		}
		return stringifyValue(v)
	})
}

// stringifyValue renders a Context leaf as the text substituted into a
// command string. A glob input that matched multiple files resolves to
// the first matched path, per §4.2 ("the resolved input path, or the
// first path if multiple matched") — the full match list remains
// available through Get for callers that want every path; Resolve
// always substitutes only the first element of a list.
func stringifyValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		if len(t) == 0 {
			return ""
		}
		return t[0]
	case []any:
		if len(t) == 0 {
			return ""
		}
		return stringifyValue(t[0])
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ResolvePath substitutes placeholders in p, then classifies the result:
// absolute paths pass through; "inputs/", "outputs/", "tmp/", "logs/"
// prefixes and "steps/<name>/<rest>" (rewritten to
// "<run>/outputs/<name>/<rest>") join under the run directory; any other
// relative path joins under the run directory when one is set, otherwise
// under the process working directory.
func (c *Context) ResolvePath(p string) string {
	resolved := c.Resolve(p)
	if filepath.IsAbs(resolved) {
		return resolved
	}

	if rest, ok := cutPrefix(resolved, "steps/"); ok {
		if name, tail, ok := strings.Cut(rest, "/"); ok {
			return filepath.Join(c.runDir, "outputs", name, tail)
		}
	}
	for _, prefix := range []string{"inputs/", "outputs/", "tmp/", "logs/"} {
		if strings.HasPrefix(resolved, prefix) {
			if c.runDir != "" {
				return filepath.Join(c.runDir, resolved)
			}
			return resolved
		}
	}

	if c.runDir != "" {
		return filepath.Join(c.runDir, resolved)
	}
	wd, err := filepathAbs(resolved)
	if err != nil {
		return resolved
	}
	return wd
}

func cutPrefix(s, prefix string) (string, bool) {
	if !strings.HasPrefix(s, prefix) {
		return "", false
	}
	return s[len(prefix):], true
}

func filepathAbs(p string) (string, error) {
	return filepath.Abs(p)
}
