package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator that reports fields by their json names
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{validate: v}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"trace", "debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateHeartbeat checks that spec is a cron expression or descriptor such as "@every 30s"
func (v *Validator) ValidateHeartbeat(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid events.heartbeat %q: %w", spec, err)
	}
	return nil
}

// ValidateStorage checks the settings the selected backend needs
func (v *Validator) ValidateStorage(s StorageConfig) error {
	switch s.Backend {
	case BackendFS:
		if strings.TrimSpace(s.FS.Root) == "" {
			return fmt.Errorf("storage.fs.root is required for the fs backend")
		}
	case BackendBolt:
		if strings.TrimSpace(s.Bolt.Path) == "" {
			return fmt.Errorf("storage.bolt.path is required for the bolt backend")
		}
	}
	return nil
}

// ValidateConfig performs comprehensive validation and returns every problem found
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if err := v.validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return []error{err}
		}
		for _, fe := range fieldErrs {
			errs = append(errs, describeFieldError(fe))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if cfg.Events.Enabled && cfg.Events.Heartbeat != "" {
		if err := v.ValidateHeartbeat(cfg.Events.Heartbeat); err != nil {
			errs = append(errs, err)
		}
	}
	if err := v.ValidateStorage(cfg.Storage); err != nil {
		errs = append(errs, err)
	}

	return errs
}

// Validate joins the result of ValidateConfig into one error
func (v *Validator) Validate(cfg *Config) error {
	return errors.Join(v.ValidateConfig(cfg)...)
}

func describeFieldError(fe validator.FieldError) error {
	// Namespace is "Config.server.port"; drop the root type name.
	_, field, _ := strings.Cut(fe.Namespace(), ".")

	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Errorf("%s is required", field)
	case "oneof":
		return fmt.Errorf("%s must be one of: %s (got %v)", field, strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value())
	case "min":
		return fmt.Errorf("%s must be >= %s (got %v)", field, fe.Param(), fe.Value())
	case "max":
		return fmt.Errorf("%s must be <= %s (got %v)", field, fe.Param(), fe.Value())
	default:
		return fmt.Errorf("%s failed %q validation (got %v)", field, fe.Tag(), fe.Value())
	}
}
