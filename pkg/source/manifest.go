package source

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Spec names one secret a run deploys: the secret name written to each
// repository and the source key its value is resolved from.
type Spec struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key,omitempty"` // defaults to Name
}

// SourceKey returns the key used for resolution.
func (s Spec) SourceKey() string {
	if s.Key != "" {
		return s.Key
	}
	return s.Name
}

type manifest struct {
	Secrets []Spec `yaml:"secrets"`
}

// LoadManifest reads a YAML manifest of secret specs from path.
func LoadManifest(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	if len(m.Secrets) == 0 {
		return nil, fmt.Errorf("manifest %s names no secrets", path)
	}

	if err := ValidateSpecs(m.Secrets); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return m.Secrets, nil
}

// ParseList builds specs from plain secret names, each resolving from the
// source key equal to its name.
func ParseList(names []string) ([]Spec, error) {
	specs := make([]Spec, 0, len(names))
	for _, name := range names {
		specs = append(specs, Spec{Name: strings.TrimSpace(name)})
	}
	if err := ValidateSpecs(specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// ValidateSpecs checks that every spec carries a valid secret name and that
// no name repeats. GitHub secret names are alphanumeric plus underscore,
// must not start with a digit, and the GITHUB_ prefix is reserved.
func ValidateSpecs(specs []Spec) error {
	if len(specs) == 0 {
		return fmt.Errorf("no secrets specified")
	}

	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if err := validateSecretName(spec.Name); err != nil {
			return err
		}
		if seen[spec.Name] {
			return fmt.Errorf("duplicate secret name %q", spec.Name)
		}
		seen[spec.Name] = true
	}
	return nil
}

func validateSecretName(name string) error {
	if name == "" {
		return fmt.Errorf("secret name cannot be empty")
	}
	if strings.HasPrefix(strings.ToUpper(name), "GITHUB_") {
		return fmt.Errorf("secret name %q uses the reserved GITHUB_ prefix", name)
	}
	if name[0] >= '0' && name[0] <= '9' {
		return fmt.Errorf("secret name %q cannot start with a digit", name)
	}
	for _, r := range name {
		valid := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
		if !valid {
			return fmt.Errorf("secret name %q contains invalid character %q", name, r)
		}
	}
	return nil
}
