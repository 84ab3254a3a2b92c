package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/Sternrassler/lims-resolver/pkg/entity"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their configuration key names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks cfg against the struct tags and the cross-field rules the
// tags cannot express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	u, err := url.Parse(cfg.Backend.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("backend.base_url must be an http or https URL (got %q)", cfg.Backend.BaseURL)
	}

	for name := range cfg.Backend.Endpoints {
		if _, err := entity.ParseType(name); err != nil {
			return fmt.Errorf("backend.endpoints: %w", err)
		}
	}

	return nil
}

// Warnings reports settings that are valid but work against each other.
func Warnings(cfg *Config) []string {
	if cfg == nil {
		return nil
	}

	var warnings []string
	budget := cfg.Backend.ToClient().Retry.Budget(cfg.Backend.Timeout)
	if cfg.Resolver.ChunkTimeout < budget {
		warnings = append(warnings, fmt.Sprintf(
			"resolver.chunk_timeout (%s) is shorter than the backend retry budget (%s); late retries will be cut off",
			cfg.Resolver.ChunkTimeout, budget))
	}
	return warnings
}

// formatValidationErrors turns validator errors into one readable error
// using the mapstructure key names.
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", field, fe.Tag(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
