package eval

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type suiteFile struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Tasks       []taskFile `yaml:"tasks"`
}

type taskFile struct {
	ID          string  `yaml:"id"`
	Description string  `yaml:"description"`
	Goal        string  `yaml:"goal"`
	Criteria    string  `yaml:"criteria"`
	MaxSteps    int     `yaml:"max_steps"`
	TimeoutS    float64 `yaml:"timeout_s"`
}

// LoadSuite reads a suite from a YAML file
func LoadSuite(path string) (Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Suite{}, fmt.Errorf("failed to read suite file: %w", err)
	}
	return ParseSuite(data)
}

// ParseSuite decodes and validates a YAML suite. Every criteria
// expression is compiled so mistakes surface before any task runs.
func ParseSuite(data []byte) (Suite, error) {
	var file suiteFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Suite{}, fmt.Errorf("failed to parse YAML suite: %w", err)
	}
	if file.Name == "" {
		return Suite{}, fmt.Errorf("%w: name is required", ErrInvalidSuite)
	}

	suite := Suite{Name: file.Name, Description: file.Description, Tasks: make([]Task, 0, len(file.Tasks))}
	seen := make(map[string]bool, len(file.Tasks))
	for i, t := range file.Tasks {
		if t.ID == "" {
			return Suite{}, fmt.Errorf("%w: task %d has no id", ErrInvalidSuite, i)
		}
		if seen[t.ID] {
			return Suite{}, fmt.Errorf("%w: duplicate task id %s", ErrInvalidSuite, t.ID)
		}
		seen[t.ID] = true
		if t.Goal == "" {
			return Suite{}, fmt.Errorf("%w: task %s has no goal", ErrInvalidSuite, t.ID)
		}
		if t.Criteria != "" {
			if _, err := CompileCriteria(t.Criteria); err != nil {
				return Suite{}, fmt.Errorf("task %s: %w", t.ID, err)
			}
		}

		task := Task{
			ID:          t.ID,
			Description: t.Description,
			Goal:        t.Goal,
			Criteria:    t.Criteria,
			MaxSteps:    t.MaxSteps,
			Timeout:     defaultTimeout,
		}
		if task.MaxSteps <= 0 {
			task.MaxSteps = defaultMaxSteps
		}
		if t.TimeoutS > 0 {
			task.Timeout = time.Duration(t.TimeoutS * float64(time.Second))
		}
		suite.Tasks = append(suite.Tasks, task)
	}
	return suite, nil
}
