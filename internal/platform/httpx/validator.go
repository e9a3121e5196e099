// Package httpx holds small echo helpers shared by the HTTP handlers.
package httpx

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medstock/medstock/internal/platform/apperror"
)

// Validator adapts go-playground/validator to echo.Validator.
type Validator struct {
	v *validator.Validate
}

// NewValidator reports fields by their json names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return strings.ToLower(f.Name)
		}
		return name
	})
	return &Validator{v: v}
}

// Validate returns an InvalidArgument error describing the first failing field.
func (cv *Validator) Validate(i any) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.InvalidArgument("invalid request: %v", err)
	}
	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return apperror.InvalidArgument("%s is required", field)
	case "gt", "gte", "min":
		return apperror.InvalidArgument("%s must be %s %s", field, describe(fe.Tag()), fe.Param())
	case "oneof":
		return apperror.InvalidArgument("%s must be one of: %s", field, fe.Param())
	}
	return apperror.InvalidArgument("%s failed %s validation", field, fe.Tag())
}

func describe(tag string) string {
	if tag == "gt" {
		return "greater than"
	}
	return "at least"
}

// BindAndValidate binds the request body into dst and validates it.
func BindAndValidate(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperror.InvalidArgument("invalid request body")
	}
	if err := c.Validate(dst); err != nil {
		return err
	}
	return nil
}

// ParseID reads a UUID path parameter.
func ParseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperror.InvalidArgument("invalid %s", name)
	}
	return id, nil
}

// UUID parses an identifier carried in a request body.
func UUID(field, s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, apperror.InvalidArgument("%s must be a valid id", field)
	}
	return id, nil
}
