package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	mlerrors "github.com/JoseManu96/ml.school/pkg/errors"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	flowNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	bucketSchemes   = map[string]struct{}{"mem": {}, "file": {}, "s3": {}}
)

// validatorInstance configures and returns the shared validator used across
// the config package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("flow_name", func(fl validator.FieldLevel) bool {
			return flowNamePattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("fraction", func(fl validator.FieldLevel) bool {
			value := fl.Field().Float()
			return value >= 0 && value <= 1
		})

		_ = v.RegisterValidation("bucket_url", func(fl validator.FieldLevel) bool {
			parsed, err := url.Parse(fl.Field().String())
			if err != nil {
				return false
			}
			_, ok := bucketSchemes[strings.ToLower(parsed.Scheme)]
			return ok
		})

		validateInst = v
	})

	return validateInst
}

// Validate performs schema validation on a configuration, typically after
// flag overrides have been applied on top of a loaded file.
func Validate(cfg *Config) error {
	if cfg == nil {
		return mlerrors.NewValidationError("config", "configuration is nil", nil)
	}

	if err := validatorInstance().Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	return nil
}

func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	if ves, ok := err.(validator.ValidationErrors); ok {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		return mlerrors.NewValidationError(field, msg, err)
	}

	return mlerrors.NewValidationError("config", err.Error(), err)
}

func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	lowered := make([]string, 0, len(parts))
	for _, part := range parts {
		lowered = append(lowered, strings.ToLower(part))
	}
	return strings.Join(lowered, ".")
}
