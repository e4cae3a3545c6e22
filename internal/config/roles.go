package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hiveworks/hivemind/pkg/models"
)

// RoleProfile customizes a single worker role from roles.yaml.
type RoleProfile struct {
	// Role is the role name (researcher, executor, reasoner, planner).
	Role string `yaml:"role"`
	// SystemPrompt overrides the built-in system prompt when set.
	SystemPrompt string `yaml:"system_prompt"`
	// Model overrides the default model for this role when set.
	Model string `yaml:"model"`
	// Timeout overrides the role deadline when set.
	Timeout time.Duration `yaml:"timeout"`
}

// RoleProfiles maps role name to its profile.
type RoleProfiles map[string]*RoleProfile

// Get returns the profile for a role, or nil when none is defined.
func (p RoleProfiles) Get(role models.Role) *RoleProfile {
	return p[string(role)]
}

// ApplyTimeouts overwrites per-role deadlines with profile overrides.
func (p RoleProfiles) ApplyTimeouts(t *TimeoutsConfig) {
	for name, rp := range p {
		if rp.Timeout <= 0 {
			continue
		}
		switch name {
		case "researcher":
			t.Researcher = rp.Timeout
		case "executor":
			t.Executor = rp.Timeout
		case "reasoner":
			t.Reasoner = rp.Timeout
		case "planner":
			t.Planner = rp.Timeout
		}
	}
}

// DefaultRoleProfilesPath returns the roles.yaml path under the user
// config directory.
func DefaultRoleProfilesPath() string {
	return filepath.Join(getUserConfigDir(), "roles.yaml")
}

// LoadRoleProfiles reads role customizations from a YAML file. A
// missing file is not an error; it yields an empty profile set.
func LoadRoleProfiles(path string) (RoleProfiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RoleProfiles{}, nil
		}
		return nil, fmt.Errorf("read role profiles: %w", err)
	}

	var doc struct {
		Roles []*RoleProfile `yaml:"roles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse role profiles: %w", err)
	}

	profiles := make(RoleProfiles, len(doc.Roles))
	for _, rp := range doc.Roles {
		if rp == nil || rp.Role == "" {
			return nil, fmt.Errorf("role profile missing role name")
		}
		if !models.Role(rp.Role).Valid() {
			return nil, fmt.Errorf("unknown role %q in profiles", rp.Role)
		}
		if _, dup := profiles[rp.Role]; dup {
			return nil, fmt.Errorf("duplicate role profile %q", rp.Role)
		}
		profiles[rp.Role] = rp
	}
	return profiles, nil
}
