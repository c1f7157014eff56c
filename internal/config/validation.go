package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate checks the configuration using struct tags plus the rules that
// span several sections.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if cfg.Staging.Type == "filesystem" && cfg.Staging.MaxSize > 0 &&
		cfg.Staging.MemoryThreshold > cfg.Staging.MaxSize {
		return fmt.Errorf("staging: memory_threshold %d exceeds max_size %d",
			cfg.Staging.MemoryThreshold, cfg.Staging.MaxSize)
	}
	if cfg.Staging.Type == "memory" && cfg.Staging.MaxSize == 0 {
		return fmt.Errorf("staging: memory staging needs a positive max_size")
	}

	return nil
}

// formatValidationError reports the first failing field.
func formatValidationError(err error) error {
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		e := errs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
