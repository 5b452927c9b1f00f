package config

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/mmr-tortoise/portmux/internal/model"
)

var plainDigitsRegexp = regexp.MustCompile(`^\d+$`)

// ResolveCommandPorts maps each element of a Command's Ports field to a positive integer.
// Elements may be a JSON number, a digit-only string, or a string containing one or more
// ${VAR} templates. context names the offending command/group in error messages.
func ResolveCommandPorts(ports []any, commandEnv map[string]string, context string) ([]int, error) {
	resolved := make([]int, 0, len(ports))

	for _, raw := range ports {
		port, err := resolveOnePort(raw, commandEnv, context)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, port)
	}

	return resolved, nil
}

func resolveOnePort(raw any, commandEnv map[string]string, context string) (int, error) {
	switch v := raw.(type) {
	case float64:
		return validatePositivePort(int(v), context)
	case int:
		return validatePositivePort(v, context)
	case string:
		if plainDigitsRegexp.MatchString(v) {
			n, err := strconv.Atoi(v)
			if err != nil {
				return 0, model.WrapCLIError(model.ExitPortResolution,
					fmt.Sprintf("%s: invalid port literal %q", context, v), err)
			}
			return validatePositivePort(n, context)
		}
		if varRefRegexp.MatchString(v) {
			expanded, warnings := ResolveCommandEnv(v, commandEnv)
			_ = warnings // env-template warnings are non-fatal for general env; ports are stricter below
			if !plainDigitsRegexp.MatchString(expanded) {
				return 0, model.NewCLIError(model.ExitPortResolution,
					fmt.Sprintf("%s: port template %q did not resolve to a positive integer (got %q)", context, v, expanded))
			}
			n, err := strconv.Atoi(expanded)
			if err != nil {
				return 0, model.WrapCLIError(model.ExitPortResolution,
					fmt.Sprintf("%s: invalid resolved port %q", context, expanded), err)
			}
			return validatePositivePort(n, context)
		}
		return 0, model.NewCLIError(model.ExitPortResolution,
			fmt.Sprintf("%s: port value %q is neither a number nor a ${VAR} template", context, v))
	default:
		return 0, model.NewCLIError(model.ExitPortResolution,
			fmt.Sprintf("%s: port value %v has unsupported type %T", context, v, v))
	}
}

func validatePositivePort(n int, context string) (int, error) {
	if n <= 0 {
		return 0, model.NewCLIError(model.ExitPortResolution,
			fmt.Sprintf("%s: port %d must be a positive integer", context, n))
	}
	return n, nil
}
