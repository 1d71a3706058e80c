package worker

import (
	"fmt"

	"github.com/wasilibs/go-re2"
)

// CommandValidator rejects shell commands matching any configured deny
// pattern before they reach the shell.
type CommandValidator struct {
	patterns []*re2.Regexp
	sources  []string
}

// NewCommandValidator compiles the deny patterns.
func NewCommandValidator(patterns []string) (*CommandValidator, error) {
	v := &CommandValidator{}
	for _, p := range patterns {
		compiled, err := re2.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", p, err)
		}
		v.patterns = append(v.patterns, compiled)
		v.sources = append(v.sources, p)
	}
	return v, nil
}

// Validate returns an error naming the matched pattern when the command is
// denied.
func (v *CommandValidator) Validate(command string) error {
	for i, p := range v.patterns {
		if p.MatchString(command) {
			return fmt.Errorf("command denied by pattern %q", v.sources[i])
		}
	}
	return nil
}
