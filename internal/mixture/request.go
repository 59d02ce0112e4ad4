package mixture

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/shopspring/decimal"
)

// NewRequest coerces the four inputs into a Request. Integer, floating-point,
// decimal.Decimal and json.Number values are accepted; any other type, or a
// NaN or infinite value, yields ErrInvalidArgument.
func NewRequest(nitrogen, phosphorus, potassium, totalMass any) (Request, error) {
	var req Request
	inputs := []struct {
		name  string
		value any
		dest  *float64
	}{
		{name: "nitrogen", value: nitrogen, dest: &req.Nitrogen},
		{name: "phosphorus", value: phosphorus, dest: &req.Phosphorus},
		{name: "potassium", value: potassium, dest: &req.Potassium},
		{name: "totalMass", value: totalMass, dest: &req.TotalMass},
	}

	for _, in := range inputs {
		f, err := toFloat(in.value)
		if err != nil {
			return Request{}, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, in.name, err)
		}
		*in.dest = f
	}
	return req, nil
}

func toFloat(v any) (float64, error) {
	var f float64
	switch x := v.(type) {
	case decimal.Decimal:
		f = x.InexactFloat64()
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", x.String())
		}
		f = parsed
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
			f = float64(rv.Uint())
		case reflect.Float32, reflect.Float64:
			f = rv.Float()
		default:
			return 0, fmt.Errorf("unsupported type %T", v)
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", f)
	}
	return f, nil
}
