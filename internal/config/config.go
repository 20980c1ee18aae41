// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"replaylab/internal/models"
	"replaylab/internal/replay"
)

// Settings are the global knobs from the fork configuration file
type Settings struct {
	MaxTurns       int    `yaml:"max_turns" json:"max_turns"`
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	SaveResults    bool   `yaml:"save_results" json:"save_results"`
	OutputDir      string `yaml:"output_dir" json:"output_dir"`
}

// DefaultSettings returns the documented defaults
func DefaultSettings() Settings {
	return Settings{
		MaxTurns:       5,
		TimeoutSeconds: 300,
		SaveResults:    true,
		OutputDir:      "./results",
	}
}

// File is a validated fork configuration: at least one branch plus global
// settings
type File struct {
	Branches []replay.BranchConfig `yaml:"branches" json:"branches"`
	Settings Settings              `yaml:"settings" json:"settings"`
}

// Error is a structured configuration failure: a top-level message plus
// per-field detail strings
type Error struct {
	Message string
	Details []string
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return e.Message + "\n  - " + strings.Join(e.Details, "\n  - ")
}

// raw shapes use pointers so unset fields can be told apart from zeros
// before defaults are applied
type rawFile struct {
	Branches []rawBranch  `yaml:"branches"`
	Settings *rawSettings `yaml:"settings"`
}

type rawBranch struct {
	Name          string `yaml:"name"`
	Model         string `yaml:"model"`
	InjectMessage string `yaml:"inject_message"`
	SystemPrompt  string `yaml:"system_prompt"`
	MaxTurns      *int   `yaml:"max_turns"`
}

type rawSettings struct {
	MaxTurns       *int    `yaml:"max_turns"`
	TimeoutSeconds *int    `yaml:"timeout_seconds"`
	SaveResults    *bool   `yaml:"save_results"`
	OutputDir      *string `yaml:"output_dir"`
}

// envVarPattern matches ${VAR} and ${VAR:-default}
var envVarPattern = regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)(?::-([^}]*))?\}`)

// substituteEnv expands environment variable references in a string.
// A reference with no value and no default is left untouched.
func substituteEnv(value string) string {
	return envVarPattern.ReplaceAllStringFunc(value, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if env, ok := os.LookupEnv(groups[1]); ok {
			return env
		}
		if strings.Contains(match, ":-") {
			return groups[2]
		}
		return match
	})
}

// substituteEnvNode walks a decoded YAML tree and expands env references in
// every string scalar. Substitution happens before schema validation.
func substituteEnvNode(node *yaml.Node) {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!str" {
		node.Value = substituteEnv(node.Value)
		return
	}
	for _, child := range node.Content {
		substituteEnvNode(child)
	}
}

// Load reads, env-substitutes and validates a fork configuration file.
// All failures come back as *Error.
func Load(path string, registry *models.Registry) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Message: fmt.Sprintf("configuration file not found: %s", path)}
		}
		return nil, &Error{Message: fmt.Sprintf("cannot read configuration file %s", path), Details: []string{err.Error()}}
	}
	if info.IsDir() {
		return nil, &Error{Message: fmt.Sprintf("path is not a file: %s", path)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Message: fmt.Sprintf("cannot read configuration file %s", path), Details: []string{err.Error()}}
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Message: fmt.Sprintf("invalid YAML syntax in %s", path), Details: []string{err.Error()}}
	}
	if len(doc.Content) == 0 {
		return nil, &Error{Message: fmt.Sprintf("configuration file is empty: %s", path)}
	}
	if doc.Content[0].Kind != yaml.MappingNode {
		return nil, &Error{Message: "configuration must be a YAML mapping"}
	}

	substituteEnvNode(&doc)

	var raw rawFile
	if err := doc.Decode(&raw); err != nil {
		return nil, &Error{Message: fmt.Sprintf("invalid configuration in %s", path), Details: []string{err.Error()}}
	}

	return validate(&raw, path, registry)
}

// validate applies defaults and checks every field, collecting all problems
// into one structured error rather than stopping at the first
func validate(raw *rawFile, path string, registry *models.Registry) (*File, error) {
	if len(raw.Branches) == 0 {
		return nil, &Error{
			Message: "missing required field 'branches'",
			Details: []string{"configuration must define at least one branch"},
		}
	}

	settings := DefaultSettings()
	if raw.Settings != nil {
		if raw.Settings.MaxTurns != nil {
			settings.MaxTurns = *raw.Settings.MaxTurns
		}
		if raw.Settings.TimeoutSeconds != nil {
			settings.TimeoutSeconds = *raw.Settings.TimeoutSeconds
		}
		if raw.Settings.SaveResults != nil {
			settings.SaveResults = *raw.Settings.SaveResults
		}
		if raw.Settings.OutputDir != nil {
			settings.OutputDir = *raw.Settings.OutputDir
		}
	}

	var details []string
	if settings.MaxTurns < 1 || settings.MaxTurns > 100 {
		details = append(details, fmt.Sprintf("settings.max_turns: must be between 1 and 100, got %d", settings.MaxTurns))
	}
	if settings.TimeoutSeconds < 1 || settings.TimeoutSeconds > 3600 {
		details = append(details, fmt.Sprintf("settings.timeout_seconds: must be between 1 and 3600, got %d", settings.TimeoutSeconds))
	}

	branches := make([]replay.BranchConfig, 0, len(raw.Branches))
	seen := make(map[string]bool)
	var unknownModels []string

	for i, b := range raw.Branches {
		if b.Name == "" {
			details = append(details, fmt.Sprintf("branches[%d].name: field required", i))
		} else if seen[b.Name] {
			details = append(details, fmt.Sprintf("branches[%d].name: duplicate branch name '%s'", i, b.Name))
		}
		seen[b.Name] = true

		if b.Model == "" {
			details = append(details, fmt.Sprintf("branches[%d].model: field required", i))
		} else if !registry.IsKnown(b.Model) {
			unknownModels = append(unknownModels, fmt.Sprintf("branches[%d].model: unknown model '%s'", i, b.Model))
		}

		maxTurns := settings.MaxTurns
		if b.MaxTurns != nil {
			maxTurns = *b.MaxTurns
		}
		if maxTurns < 1 || maxTurns > 100 {
			details = append(details, fmt.Sprintf("branches[%d].max_turns: must be between 1 and 100, got %d", i, maxTurns))
		}

		branches = append(branches, replay.BranchConfig{
			Name:          b.Name,
			Model:         b.Model,
			InjectMessage: b.InjectMessage,
			SystemPrompt:  b.SystemPrompt,
			MaxTurns:      maxTurns,
		})
	}

	if len(unknownModels) > 0 {
		unknownModels = append(unknownModels, "Valid models: "+strings.Join(registry.IDs(), ", "))
		return nil, &Error{Message: "invalid model specified", Details: unknownModels}
	}
	if len(details) > 0 {
		return nil, &Error{Message: fmt.Sprintf("invalid configuration in %s", path), Details: details}
	}

	return &File{Branches: branches, Settings: settings}, nil
}
