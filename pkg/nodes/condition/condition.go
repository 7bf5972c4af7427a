// Package condition implements the comparison operators shared by the IF and SWITCH processors.
package condition

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/try-flowforge/backend/pkg/template"
)

// Operator names a comparison.
type Operator string

const (
	Equals         Operator = "eq"
	NotEquals      Operator = "ne"
	GreaterThan    Operator = "gt"
	GreaterOrEqual Operator = "gte"
	LessThan       Operator = "lt"
	LessOrEqual    Operator = "lte"
	Contains       Operator = "contains"
	NotContains    Operator = "not_contains"
	StartsWith     Operator = "starts_with"
	EndsWith       Operator = "ends_with"
	IsEmpty        Operator = "is_empty"
	IsNotEmpty     Operator = "is_not_empty"
)

// Operators lists every supported operator.
var Operators = []Operator{
	Equals, NotEquals, GreaterThan, GreaterOrEqual, LessThan, LessOrEqual,
	Contains, NotContains, StartsWith, EndsWith, IsEmpty, IsNotEmpty,
}

// OperatorNames returns Operators as strings, for JSON schema enums.
func OperatorNames() []string {
	names := make([]string, len(Operators))
	for i, op := range Operators {
		names[i] = string(op)
	}

	return names
}

var ErrUnknownOperator = errors.New("unknown operator")

// IsValid reports whether op is supported.
func (op Operator) IsValid() bool {
	return slices.Contains(Operators, op)
}

// Evaluate applies op to left and right. Ordering and equality compare
// numerically when both sides parse as numbers and as strings otherwise.
func Evaluate(left any, op Operator, right any) (bool, error) {
	switch op {
	case Equals:
		return compare(left, right) == 0, nil
	case NotEquals:
		return compare(left, right) != 0, nil
	case GreaterThan:
		return compare(left, right) > 0, nil
	case GreaterOrEqual:
		return compare(left, right) >= 0, nil
	case LessThan:
		return compare(left, right) < 0, nil
	case LessOrEqual:
		return compare(left, right) <= 0, nil
	case Contains:
		return contains(left, right), nil
	case NotContains:
		return !contains(left, right), nil
	case StartsWith:
		return strings.HasPrefix(template.Stringify(left), template.Stringify(right)), nil
	case EndsWith:
		return strings.HasSuffix(template.Stringify(left), template.Stringify(right)), nil
	case IsEmpty:
		return isEmpty(left), nil
	case IsNotEmpty:
		return !isEmpty(left), nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, op)
	}
}

func compare(left, right any) int {
	leftNumber, leftOK := ToNumber(left)
	rightNumber, rightOK := ToNumber(right)

	if leftOK && rightOK {
		switch {
		case leftNumber < rightNumber:
			return -1
		case leftNumber > rightNumber:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(template.Stringify(left), template.Stringify(right))
}

func contains(left, right any) bool {
	if items, ok := left.([]any); ok {
		needle := template.Stringify(right)
		for _, item := range items {
			if compare(item, needle) == 0 {
				return true
			}
		}

		return false
	}

	return strings.Contains(template.Stringify(left), template.Stringify(right))
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}

	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return v.Len() == 0
	default:
		return false
	}
}

// ToNumber converts numeric values and numeric strings to float64.
func ToNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()

		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)

		return f, err == nil
	default:
		return 0, false
	}
}
