package datasheet

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// Acceptance rules
//
// A field definition may carry a Rule: a boolean expression deciding whether an
// Offered or AsBuilt value satisfies the Requirement value. The expression sees
// two strings, requirement and value, and a num() helper that parses a string
// as a float. Example: num(value) >= num(requirement) * 0.95
//
// Fields without a rule deviate whenever the two values differ.

var rulePrograms sync.Map // rule text -> *exprvm.Program

func ruleOptions() []exprlang.Option {
	return []exprlang.Option{
		exprlang.Env(map[string]any{
			"requirement": "",
			"value":       "",
		}),
		exprlang.Function("num", parseRuleNumber, new(func(string) float64)),
		exprlang.AsBool(),
	}
}

func parseRuleNumber(params ...any) (any, error) {
	if len(params) != 1 {
		return nil, fmt.Errorf("num expects one argument, got %d", len(params))
	}
	s, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("num expects a string, got %T", params[0])
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("num: %q is not a number", s)
	}
	return f, nil
}

// CompileRule checks that rule is a valid boolean acceptance expression.
func CompileRule(rule string) error {
	_, err := loadRule(rule)
	return err
}

func loadRule(rule string) (*exprvm.Program, error) {
	if cached, ok := rulePrograms.Load(rule); ok {
		return cached.(*exprvm.Program), nil
	}
	program, err := exprlang.Compile(rule, ruleOptions()...)
	if err != nil {
		return nil, fmt.Errorf("invalid rule %q: %w", rule, err)
	}
	rulePrograms.Store(rule, program)
	return program, nil
}

// Deviates reports whether value deviates from requirement for the given field.
// A missing value on either side never deviates. A rule that fails at runtime
// (for example num() on a non-number) counts as a deviation.
func Deviates(def FieldDefinition, requirement, value *string) bool {
	if requirement == nil || value == nil {
		return false
	}
	if def.Rule == "" {
		return *requirement != *value
	}
	program, err := loadRule(def.Rule)
	if err != nil {
		return true
	}
	out, err := exprlang.Run(program, map[string]any{
		"requirement": *requirement,
		"value":       *value,
	})
	if err != nil {
		return true
	}
	accepted, ok := out.(bool)
	return !ok || !accepted
}
