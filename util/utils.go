package util

import "strings"

// Cascade returns the first non-nil error, so multi-step setup can be
// written as a single expression.
func Cascade(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// ShellEscape single-quotes a value for safe interpolation into a shell
// command or environment assignment.
func ShellEscape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
