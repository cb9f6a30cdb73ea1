// Package cliargs splits a single command line string into an argument vector.
//
// The rules are a small subset of shell quoting:
//   - unquoted spaces separate arguments, runs of spaces collapse
//   - double quotes group text containing spaces and are dropped
//   - a backslash is kept literally and protects the next character from
//     being read as a quote or another escape
//
// Backslashes never escape a space, so Windows paths such as
// C:\Program Files\x.exe must be quoted, but otherwise pass through untouched.
package cliargs

import "strings"

// escapeState tracks whether the current character follows an unescaped backslash.
type escapeState int

const (
	stateNormal escapeState = iota
	stateEscaped
)

// Split turns s into an argument vector. The result is never empty: an input
// without any argument yields a single empty string so that there is always
// an executable slot at index 0.
func Split(s string) []string {
	var (
		args    []string
		current strings.Builder
		state   = stateNormal
		quoted  bool
	)

	for _, r := range s {
		escaped := state == stateEscaped
		state = stateNormal

		switch {
		case r == ' ' && !quoted:
			if current.Len() > 0 {
				args = append(args, current.String())
				current.Reset()
			}
		case r == '\\' && !escaped:
			current.WriteRune(r)
			state = stateEscaped
		case r == '"' && !escaped:
			quoted = !quoted
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 || len(args) == 0 {
		args = append(args, current.String())
	}

	return args
}

// Join renders args as one line, quoting arguments that contain spaces or
// are empty. Intended for logs and diagnostics.
func Join(args []string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t") {
			parts[i] = `"` + a + `"`
			continue
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}
