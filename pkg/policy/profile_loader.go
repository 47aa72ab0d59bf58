package policy

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chronicler-labs/chronicler/core/pkg/contracts"
)

// Profile is a named policy definition in a seed file, with optional subject
// assignments applied once the policy is created.
type Profile struct {
	Name            string   `yaml:"name" json:"name"`
	DailyLimit      int64    `yaml:"daily_limit" json:"daily_limit"`
	MaxResourceCost int64    `yaml:"max_resource_cost" json:"max_resource_cost"`
	MaxRisk         int64    `yaml:"max_risk" json:"max_risk"`
	CooldownSeconds int64    `yaml:"cooldown_seconds" json:"cooldown_seconds"`
	Agents          []string `yaml:"agents,omitempty" json:"agents,omitempty"`
	Tools           []string `yaml:"tools,omitempty" json:"tools,omitempty"`
}

// ProfileFile is the on-disk shape of a policy seed file.
type ProfileFile struct {
	Profiles []Profile `yaml:"profiles" json:"profiles"`
}

// LoadProfiles reads a YAML seed file and creates one policy per profile,
// assigning it to each listed agent and tool. Returns the created policy ids
// keyed by profile name.
func (s *Service) LoadProfiles(ctx context.Context, path string) (map[string]int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: reading profile file: %w", err)
	}

	var file ProfileFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("policy: parsing profile file: %w", err)
	}

	created := make(map[string]int64, len(file.Profiles))
	for _, prof := range file.Profiles {
		if prof.Name == "" {
			return created, fmt.Errorf("%w: profile without a name", contracts.ErrInvalidParameter)
		}
		id, err := s.CreatePolicy(ctx, prof.DailyLimit, prof.MaxResourceCost, prof.MaxRisk, prof.CooldownSeconds)
		if err != nil {
			return created, fmt.Errorf("policy: profile %q: %w", prof.Name, err)
		}
		created[prof.Name] = id

		for _, agentID := range prof.Agents {
			if err := s.AssignPolicy(ctx, contracts.SubjectAgent, agentID, id); err != nil {
				return created, fmt.Errorf("policy: profile %q agent %q: %w", prof.Name, agentID, err)
			}
		}
		for _, toolID := range prof.Tools {
			if err := s.AssignPolicy(ctx, contracts.SubjectTool, toolID, id); err != nil {
				return created, fmt.Errorf("policy: profile %q tool %q: %w", prof.Name, toolID, err)
			}
		}
	}
	return created, nil
}
