package reliability

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"reliaudit/internal/errs"
)

var (
	modelNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)
	fieldNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

	validatorOnce sync.Once
	validatorInst *validator.Validate
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return field.Name
			}
			return name
		})
		_ = v.RegisterValidation("modelname", func(fl validator.FieldLevel) bool {
			return IsModelName(fl.Field().String())
		})
		_ = v.RegisterValidation("fieldname", func(fl validator.FieldLevel) bool {
			return IsFieldName(fl.Field().String())
		})
		_ = v.RegisterValidation("source", func(fl validator.FieldLevel) bool {
			return Source(fl.Field().String()).Valid()
		})
		validatorInst = v
	})
	return validatorInst
}

// IsModelName reports whether name is an alphanumeric model tag of at most 20 characters.
func IsModelName(name string) bool {
	return len(name) <= 20 && modelNamePattern.MatchString(name)
}

// IsFieldName reports whether name is a snake_case field identifier.
func IsFieldName(name string) bool {
	return len(name) <= 64 && fieldNamePattern.MatchString(name)
}

// Validate checks struct tags and returns the first violation as *errs.ValidationError.
func Validate(input any) error {
	err := validatorInstance().Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errs.Wrap(err, "validate input")
	}
	fe := fieldErrs[0]
	return &errs.ValidationError{Field: fe.Field(), Message: describe(fe)}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a UUID"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must have at least " + fe.Param() + " entries"
	case "unique":
		return "must not repeat " + strings.ToLower(fe.Param())
	case "modelname":
		return "must be alphanumeric, start with a letter and be at most 20 characters"
	case "fieldname":
		return "must be a snake_case field name"
	case "source":
		return fmt.Sprintf("must be one of %s", joinSources())
	default:
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
}

func joinSources() string {
	names := make([]string, 0, len(ValidSources))
	for _, s := range ValidSources {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}
