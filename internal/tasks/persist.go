package tasks

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"aptoswarm/internal/models"
)

// ErrModuleMismatch is returned when a config file belongs to another module
var ErrModuleMismatch = errors.New("config belongs to another module")

type header struct {
	ModuleName models.ModuleKind `yaml:"module_name"`
}

// Bundle is a saved batch: the task list plus the run settings
type Bundle struct {
	Actions     []*models.Task     `yaml:"actions"`
	RunSettings models.RunSettings `yaml:"run_settings_config"`
}

// LoadTask reads a single task config. expected may be empty to accept any module.
func LoadTask(path string, expected models.ModuleKind) (*models.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task config: %w", err)
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse task config: %w", err)
	}
	if len(node.Content) == 0 {
		return nil, fmt.Errorf("task config %s is empty", path)
	}
	return decodeTask(node.Content[0], expected)
}

// SaveTask writes a single task config
func SaveTask(path string, task *models.Task) error {
	return writeYAML(path, task)
}

// LoadBundle reads a batch bundle
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle: %w", err)
	}

	var raw struct {
		Actions     []yaml.Node        `yaml:"actions"`
		RunSettings models.RunSettings `yaml:"run_settings_config"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}

	bundle := &Bundle{RunSettings: raw.RunSettings}
	var errs error
	for i := range raw.Actions {
		task, err := decodeTask(&raw.Actions[i], "")
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("action %d: %w", i, err))
			continue
		}
		bundle.Actions = append(bundle.Actions, task)
	}
	errs = multierr.Append(errs, raw.RunSettings.Validate())

	if errs != nil {
		return nil, errs
	}
	return bundle, nil
}

// SaveBundle writes a batch bundle
func SaveBundle(path string, bundle *Bundle) error {
	return writeYAML(path, bundle)
}

// decodeTask decodes a task over the defaults of its module and validates it
func decodeTask(node *yaml.Node, expected models.ModuleKind) (*models.Task, error) {
	var h header
	if err := node.Decode(&h); err != nil {
		return nil, fmt.Errorf("failed to decode module name: %w", err)
	}
	if h.ModuleName == "" {
		return nil, fmt.Errorf("module_name is missing")
	}
	if expected != "" && h.ModuleName != expected {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrModuleMismatch, expected, h.ModuleName)
	}

	task := models.NewTask(h.ModuleName)
	if err := node.Decode(task); err != nil {
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	if task.TaskID == uuid.Nil {
		task.TaskID = uuid.New()
	}
	task.Status = models.TaskStatusCreated

	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

func writeYAML(path string, v interface{}) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
