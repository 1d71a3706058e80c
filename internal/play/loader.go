package play

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Playbook is an ordered list of plays run by one coordinator.
type Playbook []*Play

// LoadPlaybook reads and validates a YAML playbook file.
func LoadPlaybook(path string) (Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook: %w", err)
	}
	return ParsePlaybook(data)
}

// ParsePlaybook parses playbook YAML.
func ParsePlaybook(data []byte) (Playbook, error) {
	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("failed to parse playbook: %w", err)
	}
	if len(pb) == 0 {
		return nil, fmt.Errorf("playbook contains no plays")
	}

	for _, p := range pb {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	return pb, nil
}
