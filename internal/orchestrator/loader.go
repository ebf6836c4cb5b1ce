// File: internal/orchestrator/loader.go
package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/specter-cli/api/schemas"
)

// suiteDoc is the on-disk YAML shape of a test suite. Hooks are executable
// code and cannot be declared in YAML; file-loaded suites run hook-free.
type suiteDoc struct {
	Name    string    `yaml:"name"`
	BaseURL string    `yaml:"base_url"`
	Tests   []testDoc `yaml:"tests"`
}

type testDoc struct {
	Name    string         `yaml:"name"`
	Steps   []string       `yaml:"steps"`
	Payload map[string]any `yaml:"payload"`
	Direct  bool           `yaml:"direct"`
}

// LoadSuiteFile parses a declarative YAML suite. The suite name defaults to
// the file's base name.
func LoadSuiteFile(path string) (*schemas.TestSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite file: %w", err)
	}

	var doc suiteDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse suite file %q: %w", path, err)
	}

	if doc.Name == "" {
		doc.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if len(doc.Tests) == 0 {
		return nil, fmt.Errorf("suite %q declares no tests", doc.Name)
	}

	suite := &schemas.TestSuite{
		Name:    doc.Name,
		BaseURL: doc.BaseURL,
	}

	for i, td := range doc.Tests {
		if td.Name == "" {
			return nil, fmt.Errorf("suite %q: test %d has no name", doc.Name, i)
		}
		if td.Direct {
			return nil, fmt.Errorf("suite %q: test %q: direct tests need a code-defined callback and cannot be declared in YAML", doc.Name, td.Name)
		}
		if len(td.Steps) == 0 {
			return nil, fmt.Errorf("suite %q: test %q has no steps", doc.Name, td.Name)
		}

		test := schemas.TestDefinition{
			Name:  td.Name,
			Steps: td.Steps,
		}
		if len(td.Payload) > 0 {
			payload, err := json.Marshal(td.Payload)
			if err != nil {
				return nil, fmt.Errorf("suite %q: test %q: encode payload: %w", doc.Name, td.Name, err)
			}
			test.Payload = payload
		}
		suite.Tests = append(suite.Tests, test)
	}

	return suite, nil
}
