package steps

import (
	"strings"
	"time"
)

// Config option helpers shared by the step executors. Step configuration
// arrives as a decoded JSON map, so numbers are float64 and nested
// structures are map[string]any / []any.

// StringOption returns the string value under key, or "" when absent or
// of the wrong type.
func StringOption(config map[string]any, key string) string {
	value, _ := config[key].(string)

	return value
}

// BoolOption returns the boolean value under key, defaulting to false.
func BoolOption(config map[string]any, key string) bool {
	value, _ := config[key].(bool)

	return value
}

// IntOption returns the integer value under key, accepting JSON numbers.
func IntOption(config map[string]any, key string, fallback int) int {
	switch value := config[key].(type) {
	case int:
		return value
	case float64:
		return int(value)
	default:
		return fallback
	}
}

// DurationOption parses a duration string under key, falling back when
// absent or unparseable.
func DurationOption(config map[string]any, key string, fallback time.Duration) time.Duration {
	raw, ok := config[key].(string)
	if !ok || raw == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return parsed
}

// MapOption returns the nested map under key, or nil.
func MapOption(config map[string]any, key string) map[string]any {
	value, _ := config[key].(map[string]any)

	return value
}

// StringMapOption returns the nested map under key with its values
// coerced to strings, dropping entries of other types.
func StringMapOption(config map[string]any, key string) map[string]string {
	nested := MapOption(config, key)
	if nested == nil {
		return nil
	}

	result := make(map[string]string, len(nested))

	for k, v := range nested {
		if s, ok := v.(string); ok {
			result[k] = s
		}
	}

	return result
}

// ResolveBindings turns configured input bindings into a parameter map. A
// binding value of the form "$name" references a workflow variable;
// anything else is passed through as a literal.
func ResolveBindings(bindings, variables map[string]any) map[string]any {
	params := make(map[string]any, len(bindings))

	for name, binding := range bindings {
		if ref, ok := binding.(string); ok && strings.HasPrefix(ref, "$") {
			params[name] = variables[strings.TrimPrefix(ref, "$")]

			continue
		}

		params[name] = binding
	}

	return params
}

// SliceOption returns the list under key, or nil.
func SliceOption(config map[string]any, key string) []any {
	value, _ := config[key].([]any)

	return value
}
