package citation

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// DomainFile is the optional YAML file that extends the built-in allow-lists.
//
//	trusted:
//	  - kidshealth.org
//	review:
//	  - birdeye.com
type DomainFile struct {
	Trusted []string `yaml:"trusted"`
	Review  []string `yaml:"review"`
}

// LoadDomainFile reads and parses a DomainFile.
func LoadDomainFile(path string) (DomainFile, error) {
	var df DomainFile
	data, err := os.ReadFile(path)
	if err != nil {
		return df, fmt.Errorf("failed to read domain file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &df); err != nil {
		return df, fmt.Errorf("failed to parse domain file %s: %w", path, err)
	}
	slog.Debug("citation.LoadDomainFile: loaded", "path", path, "trusted", len(df.Trusted), "review", len(df.Review))
	return df, nil
}

// MergeDomains appends extra to base, skipping entries already present.
func MergeDomains(base, extra []string) []string {
	out := append([]string(nil), base...)
	seen := make(map[string]struct{}, len(out))
	for _, d := range out {
		seen[d] = struct{}{}
	}
	for _, d := range extra {
		if _, ok := seen[d]; ok || d == "" {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}
