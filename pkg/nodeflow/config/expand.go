package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// refPattern matches ${NAME}. A reference may give a fallback after ":-",
// as in ${NAME:-default}.
var refPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)(?::-([^}]*))?\}`)

// UnresolvedError lists references that had neither a value nor a fallback.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("unresolved reference: %s", strings.Join(e.Names, ", "))
}

// Expand returns a copy of c with ${NAME} references in string values
// replaced by lookup(NAME). Lists and nested sections are expanded too; keys
// and other values are left alone. A reference lookup cannot resolve uses
// its fallback if it has one, otherwise it is reported in an
// *UnresolvedError.
//
//	cfg, err := cfg.Expand(os.LookupEnv)
func (c Config) Expand(lookup func(string) (string, bool)) (Config, error) {
	x := expander{lookup: lookup}
	out, _ := x.value(c.data).(map[string]any)
	if len(x.missing) > 0 {
		slices.Sort(x.missing)
		return c, &UnresolvedError{Names: slices.Compact(x.missing)}
	}
	return New(out), nil
}

type expander struct {
	lookup  func(string) (string, bool)
	missing []string
}

func (x *expander) value(v any) any {
	switch val := v.(type) {
	case string:
		return x.string(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = x.value(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = x.value(item)
		}
		return out
	default:
		return v
	}
}

func (x *expander) string(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return refPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := refPattern.FindStringSubmatch(match)
		if v, ok := x.lookup(sub[1]); ok {
			return v
		}
		if strings.Contains(match, ":-") {
			return sub[2]
		}
		x.missing = append(x.missing, sub[1])
		return match
	})
}
