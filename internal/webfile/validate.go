package webfile

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	if err := validate.RegisterValidation("itemname", validItemName); err != nil {
		panic(err)
	}
}

// validItemName rejects names that cannot be shown as a single path segment.
func validItemName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if strings.TrimSpace(name) != name || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/\\\x00")
}

// validateStruct runs tag validation and reports the first failure as
// ErrInvalidInput.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return fmt.Errorf("%w: %s failed on '%s'", ErrInvalidInput, e.Field(), e.Tag())
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, err)
}

// validateName checks a bare folder or file name.
func validateName(name string) error {
	return validateStruct(struct {
		Name string `validate:"required,max=255,itemname"`
	}{Name: name})
}
