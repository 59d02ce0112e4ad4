// Package validation configures the struct validator shared by catalog
// records and feeding plans.
package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// New returns a validator that compares decimal.Decimal fields numerically
// and understands the "dp2" tag (at most two decimal places).
func New() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	mustRegister(v, "dp2", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return math.Abs(f*100-math.Round(f*100)) < 1e-6
	})
	return v
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %q: %v", tag, err))
	}
}

// Describe turns the first validation failure into a short message such as
// `price_per_gram fails "gt"`. Other errors are returned as text unchanged.
func Describe(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Sprintf("%s fails %q (%s)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag())
	}
	return err.Error()
}
