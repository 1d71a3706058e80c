// Package play defines the play data model, the YAML playbook loader, and
// the per-play host iteration state consumed by scheduling strategies.
package play

import (
	"fmt"

	"github.com/aatumaykin/playq/internal/task"
)

// Play is one scheduling pass: an ordered set of tasks applied to a set of
// target hosts.
type Play struct {
	Name     string       `yaml:"name"`
	Hosts    []string     `yaml:"hosts"`
	Strategy string       `yaml:"strategy"`
	Tasks    []*task.Task `yaml:"tasks"`
}

// DefaultStrategy is used when a play names none.
const DefaultStrategy = "linear"

// Validate normalizes the play and reports structural problems.
func (p *Play) Validate() error {
	if p.Name == "" {
		p.Name = "unnamed play"
	}
	if len(p.Hosts) == 0 {
		return fmt.Errorf("play %q has no hosts", p.Name)
	}
	if len(p.Tasks) == 0 {
		return fmt.Errorf("play %q has no tasks", p.Name)
	}
	if p.Strategy == "" {
		p.Strategy = DefaultStrategy
	}

	seen := map[string]struct{}{}
	for _, host := range p.Hosts {
		if _, dup := seen[host]; dup {
			return fmt.Errorf("play %q lists host %q twice", p.Name, host)
		}
		seen[host] = struct{}{}
	}

	for i, t := range p.Tasks {
		if t.Action == "" {
			return fmt.Errorf("play %q task %d has no action", p.Name, i)
		}
		if t.Name == "" {
			t.Name = t.Action
		}
		t.EnsureUUID()
	}
	return nil
}
