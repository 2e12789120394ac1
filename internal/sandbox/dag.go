package sandbox

import "fmt"

// dag indexes TestConfigs by name for dependency resolution.
type dag struct {
	configs map[string]TestConfig
	order   []string
}

func newDAG(configs []TestConfig) *dag {
	d := &dag{configs: make(map[string]TestConfig, len(configs))}
	for _, c := range configs {
		d.configs[c.Name] = c
		d.order = append(d.order, c.Name)
	}
	return d
}

// detectCycle returns the name of a test participating in a dependency
// cycle, or "" if the DAG is acyclic.
func (d *dag) detectCycle() string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(d.order))

	var visit func(name string) bool
	visit = func(name string) bool {
		switch color[name] {
		case gray:
			return true
		case black:
			return false
		}
		color[name] = gray
		for _, dep := range d.configs[name].DependsOn {
			if visit(dep) {
				return true
			}
		}
		color[name] = black
		return false
	}

	for _, name := range d.order {
		if color[name] == white && visit(name) {
			return name
		}
	}
	return ""
}

// ready returns the names, in input order, whose dependencies are all done
// (present in done) — regardless of whether those dependencies passed.
// Callers separate "ready" from "ready to actually run" by checking
// blockedDependency for a non-passing ancestor.
func (d *dag) ready(done map[string]Result, started map[string]bool) []string {
	var out []string
	for _, name := range d.order {
		if started[name] {
			continue
		}
		allDone := true
		for _, dep := range d.configs[name].DependsOn {
			if _, ok := done[dep]; !ok {
				allDone = false
				break
			}
		}
		if allDone {
			out = append(out, name)
		}
	}
	return out
}

// blockedDependency returns the name of the first dependency of name that
// is not PASSED, or "" if every dependency passed (or there are none).
func (d *dag) blockedDependency(name string, done map[string]Result) string {
	for _, dep := range d.configs[name].DependsOn {
		if r, ok := done[dep]; !ok || r.Status != Passed {
			return dep
		}
	}
	return ""
}

func cycleErrorMessage(name string) string {
	return fmt.Sprintf("dependency cycle detected involving test %q", name)
}
