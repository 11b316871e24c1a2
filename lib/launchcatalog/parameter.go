// Copyright 2026 The Mission Control Authors
// SPDX-License-Identifier: Apache-2.0

package launchcatalog

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
)

// ParameterType is the type of a launch parameter's value.
type ParameterType string

const (
	Integer ParameterType = "integer"
	Float   ParameterType = "float"
	String  ParameterType = "string"
	Boolean ParameterType = "boolean"
)

// Convert returns value as the Go type backing t: int64 for Integer,
// float64 for Float, string for String and bool for Boolean. Numbers
// convert between integer and float only without loss.
func (t ParameterType) Convert(value any) (any, error) {
	switch t {
	case Integer:
		return toInt64(value)
	case Float:
		return toFloat64(value)
	case String:
		if s, ok := value.(string); ok {
			return s, nil
		}
	case Boolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
	default:
		return nil, fmt.Errorf("unknown parameter type %q", t)
	}
	return nil, fmt.Errorf("%v (%T) is not a %s", value, value, t)
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("%d overflows an integer", v)
		}
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || v > math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		return int64(v), nil
	case json.Number:
		if i, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			return i, nil
		}
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%s is not an integer", v)
		}
		return toInt64(f)
	}
	return 0, fmt.Errorf("%v (%T) is not an integer", value, value)
}

func toFloat64(value any) (float64, error) {
	var f float64
	switch v := value.(type) {
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint64:
		f = float64(v)
	case float64:
		f = v
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%s is not a number", v)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("%v (%T) is not a number", value, value)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%v is not a finite number", f)
	}
	return f, nil
}

// Parameter is a value a launchable can be configured with.
type Parameter struct {
	Name        string        `json:"name,omitempty"`
	Group       string        `json:"group,omitempty"`
	ID          string        `json:"id"`
	Description string        `json:"description,omitempty"`
	Type        ParameterType `json:"type"`
	Constraint  *Constraint   `json:"constraint,omitempty"`

	// DefaultValue is an int64, float64, string or bool matching Type.
	DefaultValue any `json:"defaultValue"`

	// ToBeRevisedByCapcom marks values the capcom launchable adjusts
	// before launch.
	ToBeRevisedByCapcom bool `json:"toBeRevisedByCapcom,omitempty"`
	Hidden              bool `json:"hidden,omitempty"`
}

// Accepts reports whether value is a valid value for the parameter:
// convertible to its type and satisfying its constraint.
func (p *Parameter) Accepts(value any) error {
	converted, err := p.Type.Convert(value)
	if err != nil {
		return err
	}
	if p.Constraint != nil && !p.Constraint.Allows(converted) {
		return fmt.Errorf("%v violates %s", converted, p.Constraint)
	}
	return nil
}

// ConstraintType selects which fields of a Constraint apply.
type ConstraintType string

const (
	Range             ConstraintType = "range"
	List              ConstraintType = "list"
	RegularExpression ConstraintType = "regularExpression"
)

// Constraint restricts the values of a parameter.
type Constraint struct {
	Type ConstraintType `json:"type"`

	// Range bounds. A nil bound is open.
	Min          *float64 `json:"min,omitempty"`
	MinExclusive bool     `json:"minExclusive,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	MaxExclusive bool     `json:"maxExclusive,omitempty"`

	// List choices.
	Choices []string `json:"choices,omitempty"`

	RegularExpression string `json:"regularExpression,omitempty"`

	// ErrorMessage is shown to users entering a value that does not
	// match RegularExpression.
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// check reports a constraint that cannot be evaluated.
func (c *Constraint) check() error {
	switch c.Type {
	case Range:
		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			return fmt.Errorf("range minimum %v above maximum %v", *c.Min, *c.Max)
		}
	case List:
		if len(c.Choices) == 0 {
			return fmt.Errorf("list constraint without choices")
		}
	case RegularExpression:
		if _, err := regexp.Compile(c.RegularExpression); err != nil {
			return fmt.Errorf("regular expression: %w", err)
		}
	default:
		return fmt.Errorf("unknown constraint type %q", c.Type)
	}
	return nil
}

// Allows reports whether a value, already converted to its parameter
// type, satisfies the constraint.
func (c *Constraint) Allows(value any) bool {
	switch c.Type {
	case Range:
		number, err := toFloat64(value)
		if err != nil {
			return false
		}
		if c.Min != nil && (number < *c.Min || (c.MinExclusive && number == *c.Min)) {
			return false
		}
		if c.Max != nil && (number > *c.Max || (c.MaxExclusive && number == *c.Max)) {
			return false
		}
		return true
	case List:
		text, ok := value.(string)
		if !ok {
			text = fmt.Sprint(value)
		}
		return slices.Contains(c.Choices, text)
	case RegularExpression:
		text, ok := value.(string)
		if !ok {
			return false
		}
		pattern, err := regexp.Compile(c.RegularExpression)
		return err == nil && pattern.MatchString(text)
	}
	return false
}

func (c *Constraint) String() string {
	switch c.Type {
	case Range:
		lower, upper := "(-inf", "+inf)"
		if c.Min != nil {
			lower = fmt.Sprintf("[%v", *c.Min)
			if c.MinExclusive {
				lower = fmt.Sprintf("(%v", *c.Min)
			}
		}
		if c.Max != nil {
			upper = fmt.Sprintf("%v]", *c.Max)
			if c.MaxExclusive {
				upper = fmt.Sprintf("%v)", *c.Max)
			}
		}
		return "range " + lower + ", " + upper
	case List:
		return fmt.Sprintf("choices %q", c.Choices)
	case RegularExpression:
		if c.ErrorMessage != "" {
			return fmt.Sprintf("pattern %q (%s)", c.RegularExpression, c.ErrorMessage)
		}
		return fmt.Sprintf("pattern %q", c.RegularExpression)
	}
	return string(c.Type)
}
