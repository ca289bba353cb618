package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/solatis/linekeeper/internal/types"
)

// ruleFile is the on-disk layout of a dependency rule file.
type ruleFile struct {
	Rules []types.RuleDefinition `yaml:"rules"`
}

// LoadDefinitions reads rule definitions from a YAML file.
func LoadDefinitions(path string) ([]types.RuleDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}
	return ParseDefinitions(data)
}

// ParseDefinitions decodes rule definitions from YAML. Unknown keys are rejected.
// An empty document yields no definitions.
func ParseDefinitions(data []byte) ([]types.RuleDefinition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f ruleFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: invalid rule file: %v", types.ErrConfiguration, err)
	}
	return f.Rules, nil
}
