package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Echo compatible validator that reports field names the way clients and config files spell them
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	return cv.validator.Struct(i)
}

// First non-empty name out of the `param`, `form`, `json` and `mapstructure` tags, in that order
func tagName(field reflect.StructField) string {
	for _, tag := range []string{"param", "form", "json", "mapstructure"} {
		raw, ok := field.Tag.Lookup(tag)
		if !ok {
			continue
		}

		name := strings.SplitN(raw, ",", 2)[0]
		switch name {
		case "":
			continue
		case "-":
			return ""
		}
		return name
	}

	return field.Name
}

func Create() CustomValidator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(tagName)

	return CustomValidator{validator: validate}
}
