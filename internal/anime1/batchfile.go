package anime1

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BatchEntry is one page of an anime1 batch file. OutputDir overrides the
// download directory for that page.
type BatchEntry struct {
	OutputDir string `yaml:"op,omitempty"`
	Link      string `yaml:"link"`
}

// LoadBatchFile reads a YAML list of pages. Entries without a link are
// dropped.
func LoadBatchFile(path string) ([]BatchEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading YAML file: %v", err)
	}
	var entries []BatchEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing YAML file: %v", err)
	}
	var valid []BatchEntry
	for _, e := range entries {
		if e.Link != "" {
			valid = append(valid, e)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("no valid entries found in %s", path)
	}
	return valid, nil
}
