package bioinfoflow

import (
	"fmt"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

// nameRegexp matches a workflow or step identifier: alphanumerics, '_', '-'.
var nameRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// semverRegexp accepts MAJOR.MINOR.PATCH with optional pre-release and
// build metadata, per https://semver.org's reference grammar.
var semverRegexp = regexp.MustCompile(
	`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
		`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?` +
		`(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`,
)

// memoryRegexp matches a memory quantity like "512M", "2G", "1T".
var memoryRegexp = regexp.MustCompile(`^\d+[MGT]$`)

// Resources bounds a step's CPU, memory, and wall-clock consumption.
type Resources struct {
	CPU       int    `yaml:"cpu"`
	Memory    string `yaml:"memory"`
	TimeLimit string `yaml:"time_limit,omitempty"`
}

// Step is a single unit of work in a Workflow: a command run inside a
// container image, bounded by Resources, gated by After dependencies. A
// Step owns no mutable state of its own — runtime state lives in a
// sibling StepState keyed by the same name.
type Step struct {
	Name      string    `yaml:"-"`
	Container string    `yaml:"container"`
	Command   string    `yaml:"command"`
	Resources Resources `yaml:"resources"`
	After     []string  `yaml:"after,omitempty"`
}

// Config is the workflow-document-embedded filesystem layout: a base
// directory plus three subdirectory names. Distinct from the process-
// level engine configuration in internal/config.
type Config struct {
	BaseDir   string `yaml:"base_dir"`
	Refs      string `yaml:"refs,omitempty"`
	Workflows string `yaml:"workflows,omitempty"`
	Runs      string `yaml:"runs,omitempty"`
}

// Metadata carries optional descriptive fields with no effect on
// execution semantics.
type Metadata struct {
	Author  string   `yaml:"author,omitempty"`
	Tags    []string `yaml:"tags,omitempty"`
	License string   `yaml:"license,omitempty"`
}

// rawWorkflow mirrors the YAML document shape (§6); steps are keyed by
// name in a map, which Parse flattens into Workflow.Steps with Name set.
type rawWorkflow struct {
	Name        string                 `yaml:"name"`
	Version     string                 `yaml:"version"`
	Description string                 `yaml:"description,omitempty"`
	Config      Config                 `yaml:"config,omitempty"`
	Inputs      map[string]string      `yaml:"inputs,omitempty"`
	Steps       map[string]rawStep     `yaml:"steps"`
	Metadata    Metadata               `yaml:"metadata,omitempty"`
}

type rawStep struct {
	Container string    `yaml:"container"`
	Command   string    `yaml:"command"`
	Resources Resources `yaml:"resources,omitempty"`
	After     []string  `yaml:"after,omitempty"`
}

// Workflow is the immutable, validated representation of a workflow
// document. Construct one with Parse.
type Workflow struct {
	Name        string
	Version     string
	Description string
	Config      Config
	Inputs      map[string]string
	Steps       map[string]*Step
	Metadata    Metadata

	// stepOrder preserves the document's step iteration order, used to
	// break ties deterministically during topological sort.
	stepOrder []string
	// dependents is the reverse adjacency of After: dependents[s] lists
	// steps that name s in their own After list.
	dependents map[string][]string

	source []byte // original document bytes, for SaveCopy
}

// Parse validates a workflow document and returns the resulting Workflow.
// Validation is eager: it rejects with a ValidationError or
// CircularDependencyError citing the failing field before returning.
func Parse(doc []byte) (*Workflow, error) {
	var raw rawWorkflow
	if err := yaml.Unmarshal(doc, &raw); err != nil {
		return nil, &ValidationError{Field: "document", Message: err.Error()}
	}

	if raw.Name == "" || !nameRegexp.MatchString(raw.Name) {
		return nil, &ValidationError{Field: "name", Message: fmt.Sprintf("must match %s", nameRegexp)}
	}
	if raw.Version == "" || !semverRegexp.MatchString(raw.Version) {
		return nil, &ValidationError{Field: "version", Message: "must be a valid SemVer string"}
	}
	if len(raw.Steps) == 0 {
		return nil, &ValidationError{Field: "steps", Message: "workflow must declare at least one step"}
	}

	cfg := raw.Config
	if cfg.Refs == "" {
		cfg.Refs = "refs"
	}
	if cfg.Workflows == "" {
		cfg.Workflows = "workflows"
	}
	if cfg.Runs == "" {
		cfg.Runs = "runs"
	}

	// yaml.v3 does not preserve map key order; decode into a yaml.Node
	// first so step iteration order matches the document for stable
	// tie-breaking in topological sort.
	order, err := stepOrderFromDocument(doc)
	if err != nil {
		return nil, &ValidationError{Field: "steps", Message: err.Error()}
	}

	steps := make(map[string]*Step, len(raw.Steps))
	for name, rs := range raw.Steps {
		if !nameRegexp.MatchString(name) {
			return nil, &ValidationError{Field: "steps." + name, Message: fmt.Sprintf("step name must match %s", nameRegexp)}
		}
		if rs.Container == "" {
			return nil, &ValidationError{Field: "steps." + name + ".container", Message: "must be non-empty"}
		}
		if rs.Command == "" {
			return nil, &ValidationError{Field: "steps." + name + ".command", Message: "must be non-empty"}
		}
		res := rs.Resources
		if res.CPU == 0 {
			res.CPU = 1
		}
		if res.CPU < 1 {
			return nil, &ValidationError{Field: "steps." + name + ".resources.cpu", Message: "must be >= 1"}
		}
		if res.Memory == "" {
			res.Memory = "1G"
		}
		if !memoryRegexp.MatchString(res.Memory) {
			return nil, &ValidationError{Field: "steps." + name + ".resources.memory", Message: fmt.Sprintf("must match %s", memoryRegexp)}
		}
		if res.TimeLimit != "" {
			if _, err := ParseTimeLimit(res.TimeLimit); err != nil {
				return nil, &ValidationError{Field: "steps." + name + ".resources.time_limit", Message: err.Error()}
			}
		}
		steps[name] = &Step{
			Name:      name,
			Container: rs.Container,
			Command:   rs.Command,
			Resources: res,
			After:     rs.After,
		}
	}

	// Dependency closure: every After entry names a defined step.
	for name, s := range steps {
		for _, dep := range s.After {
			if _, ok := steps[dep]; !ok {
				return nil, &ValidationError{Field: "steps." + name + ".after", Message: fmt.Sprintf("unknown dependency %q", dep)}
			}
		}
	}

	dependents := make(map[string][]string, len(steps))
	for name, s := range steps {
		for _, dep := range s.After {
			dependents[dep] = append(dependents[dep], name)
		}
	}

	wf := &Workflow{
		Name:        raw.Name,
		Version:     raw.Version,
		Description: raw.Description,
		Config:      cfg,
		Inputs:      raw.Inputs,
		Steps:       steps,
		Metadata:    raw.Metadata,
		stepOrder:   order,
		dependents:  dependents,
		source:      doc,
	}

	// Acyclicity + topological order in one DFS pass (§4.1).
	if _, err := wf.ExecutionOrder(); err != nil {
		return nil, err
	}

	return wf, nil
}

// stepOrderFromDocument recovers the declaration order of the `steps`
// mapping by walking the raw YAML node tree, since map[string]T decoding
// loses key order.
func stepOrderFromDocument(doc []byte) ([]string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, err
	}
	if len(root.Content) == 0 {
		return nil, nil
	}
	mapping := root.Content[0]
	var order []string
	for i := 0; i < len(mapping.Content)-1; i += 2 {
		key := mapping.Content[i]
		if key.Value == "steps" {
			stepsNode := mapping.Content[i+1]
			for j := 0; j < len(stepsNode.Content)-1; j += 2 {
				order = append(order, stepsNode.Content[j].Value)
			}
			break
		}
	}
	return order, nil
}

// ExecutionOrder returns a topological ordering of steps: for every edge
// u -> v (v.After contains u), u precedes v. Ties among independent
// steps are broken by the order they first become independent during a
// depth-first traversal seeded in document order, matching §4.1 exactly
// (ties broken by the order steps first become independent during DFS).
//
// Implementation note: this single pass replaces two inconsistent
// algorithms present in the source material this engine is modeled on,
// one of which reversed a post-order DFS list and one of which did not;
// only the non-reversing form produces a correct topological order, so
// that is the one kept (see DESIGN.md).
func (w *Workflow) ExecutionOrder() ([]string, error) {
	const (
		white = iota // unvisited
		gray         // in progress
		black        // done
	)
	color := make(map[string]int, len(w.Steps))
	order := make([]string, 0, len(w.Steps))

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return &CircularDependencyError{Step: name}
		}
		color[name] = gray
		for _, dep := range w.Steps[name].After {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		order = append(order, name)
		return nil
	}

	for _, name := range w.orderedNames() {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// orderedNames returns step names in document order when known, falling
// back to a sorted order for determinism if the document order wasn't
// recovered (e.g. a Workflow built directly rather than via Parse).
func (w *Workflow) orderedNames() []string {
	if len(w.stepOrder) == len(w.Steps) {
		return w.stepOrder
	}
	names := make([]string, 0, len(w.Steps))
	for name := range w.Steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dependents returns the steps that directly depend on the given step
// (the reverse of Step.After), in no particular order.
func (w *Workflow) Dependents(step string) []string {
	return w.dependents[step]
}

// Levels groups steps by dependency depth: level 0 holds steps with no
// dependencies, level k holds steps whose dependencies are all in levels
// < k. Two steps in the same level may run concurrently.
func (w *Workflow) Levels() [][]string {
	remaining := make(map[string]bool, len(w.Steps))
	for name := range w.Steps {
		remaining[name] = true
	}

	var levels [][]string
	for len(remaining) > 0 {
		var level []string
		for _, name := range w.orderedNames() {
			if !remaining[name] {
				continue
			}
			ready := true
			for _, dep := range w.Steps[name].After {
				if remaining[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, name)
			}
		}
		if len(level) == 0 {
			// Unreachable once Parse has validated acyclicity.
			break
		}
		levels = append(levels, level)
		for _, name := range level {
			delete(remaining, name)
		}
	}
	return levels
}

// Source returns the original document bytes, used by Workspace to save
// a copy of the definition alongside a run.
func (w *Workflow) Source() []byte {
	return w.source
}
