// Package config provides configuration loading functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/runoshun/magicbin/internal/domain"
)

// Ensure Loader implements the domain config ports.
var (
	_ domain.ConfigOpener = (*Loader)(nil)
	_ domain.ConfigFinder = (*Loader)(nil)
)

// validate checks raw configurations. Initialized in init() with custom validators.
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("regexp", func(fl validator.FieldLevel) bool {
		_, err := regexp.Compile(fl.Field().String())
		return err == nil
	})
}

// ValidationError lists every problem found in a configuration file.
type ValidationError struct {
	Path     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration file found in %s\n\n%s", e.Path, strings.Join(e.Problems, "\n"))
}

// Unwrap makes ValidationError match domain.ErrInvalidConfig.
func (e *ValidationError) Unwrap() error {
	return domain.ErrInvalidConfig
}

// Loader reads namespace configuration files (TOML or YAML).
type Loader struct{}

// NewLoader creates a new Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Open loads and validates the configuration stored at path.
func (l *Loader) Open(path string) (*domain.Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	data, err := os.ReadFile(abs) //nolint:gosec // reading the user's own config file
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, abs)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	raw, err := decode(abs, data)
	if err != nil {
		return nil, &ValidationError{Path: abs, Problems: []string{err.Error()}}
	}

	return convertRawToDomainConfig(abs, raw)
}

// Find walks up from dir and loads the first configuration file found.
func (l *Loader) Find(dir string) (*domain.Config, error) {
	path, err := FindPath(dir)
	if err != nil {
		return nil, err
	}
	return l.Open(path)
}

// FindPath walks up from dir and returns the first configuration file found.
func FindPath(dir string) (string, error) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve directory: %w", err)
	}

	for {
		for _, name := range domain.ConfigFileNames() {
			candidate := filepath.Join(current, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("%w: no magicbin configuration file found", domain.ErrConfigNotFound)
		}
		current = parent
	}
}

func decode(path string, data []byte) (map[string]any, error) {
	var raw map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// rawConfig mirrors the file layout before defaults are applied.
type rawConfig struct {
	Tasks           map[string]rawTask `validate:"dive"`
	Namespace       string             `validate:"required"`
	Description     *string
	DescriptionFile string
}

// rawTask mirrors a [tasks.<id>] section. Pointers distinguish unset keys.
// Fields are ordered to minimize memory padding.
type rawTask struct {
	Fence           *bool
	BackBufferRows  *int `validate:"omitempty,min=1"`
	RebootInterval  *int `validate:"omitempty,min=1"` // milliseconds
	RebootOnSuccess *bool
	RebootOnFailure *bool
	Shell           string `validate:"required"`
	Cwd             string
	Name            string
	DependsOn       []string `validate:"dive,required"`
	Confirmation    rawConfirmation
	RebootDisabled  bool
}

type rawConfirmation struct {
	Type    string `validate:"omitempty,oneof=none modern grep"`
	Pattern string `validate:"required_if=Type grep,regexp"`
}

// convertRawToDomainConfig converts the raw map to a validated domain config
// and collects warnings about unknown keys.
func convertRawToDomainConfig(path string, raw map[string]any) (*domain.Config, error) {
	var rc rawConfig
	var problems, warnings []string

	for key, value := range raw {
		switch key {
		case "namespace":
			rc.Namespace, problems = asString(value, "namespace", problems)
		case "description":
			var desc string
			desc, problems = asString(value, "description", problems)
			rc.Description = &desc
		case "description_file":
			rc.DescriptionFile, problems = asString(value, "description_file", problems)
		case "tasks":
			m, ok := value.(map[string]any)
			if !ok {
				problems = append(problems, "tasks: expected a table")
				continue
			}
			rc.Tasks = make(map[string]rawTask, len(m))
			for id, v := range m {
				section, ok := v.(map[string]any)
				if !ok {
					problems = append(problems, fmt.Sprintf("tasks.%s: expected a table", id))
					continue
				}
				var task rawTask
				task, problems, warnings = parseTaskSection(id, section, problems, warnings)
				rc.Tasks[id] = task
			}
		default:
			warnings = append(warnings, fmt.Sprintf("unknown key: %s", key))
		}
	}

	if err := validate.Struct(rc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, describeFieldError(fe))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, &ValidationError{Path: path, Problems: problems}
	}

	sort.Strings(warnings)
	return buildConfig(path, rc, warnings), nil
}

// parseTaskSection parses one [tasks.<id>] table.
func parseTaskSection(id string, m map[string]any, problems, warnings []string) (rawTask, []string, []string) {
	var task rawTask
	at := func(k string) string { return fmt.Sprintf("tasks.%s.%s", id, k) }

	for k, v := range m {
		switch k {
		case "shell":
			task.Shell, problems = asString(v, at(k), problems)
		case "cwd":
			task.Cwd, problems = asString(v, at(k), problems)
		case "name":
			task.Name, problems = asString(v, at(k), problems)
		case "fence":
			task.Fence, problems = asBool(v, at(k), problems)
		case "reboot_on_success":
			task.RebootOnSuccess, problems = asBool(v, at(k), problems)
		case "reboot_on_failure":
			task.RebootOnFailure, problems = asBool(v, at(k), problems)
		case "back_buffer_rows":
			n, ok := asInt(v)
			if !ok {
				problems = append(problems, at(k)+": expected an integer")
				continue
			}
			task.BackBufferRows = &n
		case "reboot_interval":
			switch val := v.(type) {
			case nil:
				task.RebootDisabled = true
			case bool:
				if val {
					problems = append(problems, at(k)+": expected a duration in milliseconds or false")
					continue
				}
				task.RebootDisabled = true
			default:
				n, ok := asInt(v)
				if !ok {
					problems = append(problems, at(k)+": expected a duration in milliseconds or false")
					continue
				}
				task.RebootInterval = &n
			}
		case "depends_on":
			switch val := v.(type) {
			case string:
				task.DependsOn = []string{val}
			case []any:
				for _, item := range val {
					s, ok := item.(string)
					if !ok {
						problems = append(problems, at(k)+": expected a list of task ids")
						break
					}
					task.DependsOn = append(task.DependsOn, s)
				}
			default:
				problems = append(problems, at(k)+": expected a task id or a list of task ids")
			}
		case "confirmation_mode":
			switch val := v.(type) {
			case string:
				task.Confirmation.Type = val
			case map[string]any:
				for ck, cv := range val {
					switch ck {
					case "type":
						task.Confirmation.Type, problems = asString(cv, at(k)+".type", problems)
					case "pattern":
						task.Confirmation.Pattern, problems = asString(cv, at(k)+".pattern", problems)
					default:
						warnings = append(warnings, fmt.Sprintf("unknown key in [tasks.%s.confirmation_mode]: %s", id, ck))
					}
				}
			default:
				problems = append(problems, at(k)+`: expected "none", "modern" or a grep table`)
			}
		default:
			warnings = append(warnings, fmt.Sprintf("unknown key in [tasks.%s]: %s", id, k))
		}
	}
	return task, problems, warnings
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "rawConfig.")
	switch fe.Tag() {
	case "required":
		return field + ": required"
	case "required_if":
		return field + ": required for grep confirmation"
	case "min":
		return fmt.Sprintf("%s: must be at least %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s: must be one of %s", field, fe.Param())
	case "regexp":
		return field + ": invalid regular expression"
	default:
		return fmt.Sprintf("%s: failed %s", field, fe.Tag())
	}
}

func buildConfig(path string, rc rawConfig, warnings []string) *domain.Config {
	dir := filepath.Dir(path)
	cfg := &domain.Config{
		Namespace:       rc.Namespace,
		Description:     rc.Description,
		DescriptionFile: rc.DescriptionFile,
		Path:            path,
		Tasks:           make(map[string]domain.TaskConfig, len(rc.Tasks)),
		Warnings:        warnings,
	}

	for id, rt := range rc.Tasks {
		cwd := rt.Cwd
		switch {
		case cwd == "":
			cwd = dir
		case !filepath.IsAbs(cwd):
			cwd = filepath.Join(dir, cwd)
		}

		task := domain.NewShellTaskConfig(rt.Shell, cwd)
		if rt.Fence != nil {
			task.Shell.Fence = *rt.Fence
		}
		task.Name = rt.Name
		if rt.BackBufferRows != nil {
			task.BackBufferRows = *rt.BackBufferRows
		}
		switch {
		case rt.RebootDisabled:
			task.RebootInterval = nil
		case rt.RebootInterval != nil:
			interval := time.Duration(*rt.RebootInterval) * time.Millisecond
			task.RebootInterval = &interval
		}
		if rt.RebootOnSuccess != nil {
			task.RebootOnSuccess = *rt.RebootOnSuccess
		}
		if rt.RebootOnFailure != nil {
			task.RebootOnFailure = *rt.RebootOnFailure
		}
		task.DependsOn = rt.DependsOn

		switch domain.ConfirmationType(rt.Confirmation.Type) {
		case domain.ConfirmationModern:
			task.ConfirmationMode = domain.ConfirmationMode{Type: domain.ConfirmationModern}
		case domain.ConfirmationGrep:
			task.ConfirmationMode = domain.ConfirmationMode{
				Type:    domain.ConfirmationGrep,
				Pattern: regexp.MustCompile(rt.Confirmation.Pattern),
			}
		}

		cfg.Tasks[id] = task
	}
	return cfg
}

func asString(v any, key string, problems []string) (string, []string) {
	s, ok := v.(string)
	if !ok {
		return "", append(problems, key+": expected a string")
	}
	return s, problems
}

func asBool(v any, key string, problems []string) (*bool, []string) {
	b, ok := v.(bool)
	if !ok {
		return nil, append(problems, key+": expected a boolean")
	}
	return &b, problems
}

// asInt accepts the integer types produced by the TOML and YAML decoders.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true //nolint:gosec // config values are small
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}
