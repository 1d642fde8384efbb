package risk

import "github.com/berkguzel/iamrisk/pkg/types"

type statement struct {
	effect     types.Effect
	actions    []string
	resources  []string
	conditions map[string]interface{}
}

func normalizeStatement(stmt types.Statement) statement {
	return statement{
		effect:     types.ParseEffect(stmt.Effect),
		actions:    StringList(stmt.Action),
		resources:  StringList(stmt.Resource),
		conditions: Conditions(stmt.Condition),
	}
}

// StringList handles both the string and list forms of Action and Resource.
// List order and duplicates are kept; non-string members become "".
func StringList(value interface{}) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, len(v))
		for i, item := range v {
			if s, ok := item.(string); ok {
				out[i] = s
			}
		}
		return out
	}
	return []string{}
}

// Conditions returns the condition block as a map. Any other shape is empty.
func Conditions(value interface{}) map[string]interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return v
	case map[string]map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, inner := range v {
			out[k] = inner
		}
		return out
	}
	return map[string]interface{}{}
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}

func matching(items []string, match func(string) bool) []string {
	var out []string
	for _, item := range items {
		if match(item) {
			out = append(out, item)
		}
	}
	return out
}
