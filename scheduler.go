package bioinfoflow

// Scheduler computes ready-set and completion predicates over a
// Workflow's dependency graph (§4.6). It holds no mutable state of its
// own — completed is threaded through by the Executor, which owns the
// run's actual progress.
type Scheduler struct {
	wf *Workflow
}

// NewScheduler returns a Scheduler over wf.
func NewScheduler(wf *Workflow) *Scheduler {
	return &Scheduler{wf: wf}
}

// Ready returns every step not in completed whose After dependencies are
// all in completed, in document order for deterministic dispatch.
func (s *Scheduler) Ready(completed map[string]bool) []string {
	var ready []string
	for _, name := range s.wf.orderedNames() {
		if completed[name] {
			continue
		}
		step := s.wf.Steps[name]
		satisfied := true
		for _, dep := range step.After {
			if !completed[dep] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, name)
		}
	}
	return ready
}

// IsComplete reports whether every step in the workflow is in completed.
func (s *Scheduler) IsComplete(completed map[string]bool) bool {
	return len(completed) >= len(s.wf.Steps)
}

// Levels groups the DAG by dependency depth, delegating to the
// Workflow's own computation so both expose one consistent answer.
func (s *Scheduler) Levels() [][]string {
	return s.wf.Levels()
}
