package config

import (
	"os"
	"regexp"
)

// varRefRegexp matches ${VAR} references shared by ResolveCommandEnv, ResolveEnvObject, and
// ports.go's template-port resolution.
var varRefRegexp = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// lookup resolves a single variable name against commandEnv first, then the process environment.
// It reports whether the name was found anywhere, so callers can distinguish "resolved to empty
// string" from "undefined".
func lookup(name string, commandEnv map[string]string) (string, bool) {
	if commandEnv != nil {
		if v, ok := commandEnv[name]; ok {
			return v, true
		}
	}
	return os.LookupEnv(name)
}

// ResolveCommandEnv expands every ${VAR} occurrence in commandString. Lookup order is
// commandEnv, then the process environment. An undefined name resolves to the empty string and
// produces a warning string in the returned slice (the caller decides whether to print it).
func ResolveCommandEnv(commandString string, commandEnv map[string]string) (string, []string) {
	var warnings []string
	resolved := varRefRegexp.ReplaceAllStringFunc(commandString, func(match string) string {
		name := varRefRegexp.FindStringSubmatch(match)[1]
		value, ok := lookup(name, commandEnv)
		if !ok {
			warnings = append(warnings, "warning: ${"+name+"} is undefined, resolving to empty string")
			return ""
		}
		return value
	})
	return resolved, warnings
}

// ResolveEnvObject expands ${VAR} references inside every value of commandEnv, using the same
// lookup order as ResolveCommandEnv. Substitution is single-pass: a value that resolves to a
// string containing another ${VAR} reference is NOT recursively re-expanded.
func ResolveEnvObject(commandEnv map[string]string) (map[string]string, []string) {
	if commandEnv == nil {
		return nil, nil
	}

	var warnings []string
	resolved := make(map[string]string, len(commandEnv))
	for key, value := range commandEnv {
		expanded, w := ResolveCommandEnv(value, commandEnv)
		resolved[key] = expanded
		warnings = append(warnings, w...)
	}
	return resolved, warnings
}
