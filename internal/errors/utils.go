package errors

import (
	"errors"
	"fmt"
	"strings"
)

// As and Is re-export the standard library helpers so callers importing
// this package under its own name keep a single errors import.
func As(err error, target any) bool { return errors.As(err, target) }

func Is(err, target error) bool { return errors.Is(err, target) }

// Wrap wraps an error with additional context, keeping location and context
// from a wrapped StudioError.
func Wrap(err error, errType ErrorType, code, message string) *StudioError {
	if err == nil {
		return nil
	}

	wrapped := &StudioError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeManifest,
	}

	var se *StudioError
	if errors.As(err, &se) {
		wrapped.FilePath = se.FilePath
		if len(se.Context) > 0 {
			wrapped.Context = make(map[string]interface{}, len(se.Context))
			for k, v := range se.Context {
				wrapped.Context[k] = v
			}
		}
	}

	return wrapped
}

// GetErrorChain returns all errors in the chain from outermost to innermost
func GetErrorChain(err error) []error {
	var chain []error
	for err != nil {
		chain = append(chain, err)
		err = errors.Unwrap(err)
	}
	return chain
}

// GetRootCause returns the deepest underlying error in the chain
func GetRootCause(err error) error {
	chain := GetErrorChain(err)
	if len(chain) == 0 {
		return nil
	}
	return chain[len(chain)-1]
}

// FormatError renders err for terminal output followed by any suggestions
// known for its code.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Error: %v\n", err)

	if suggestions := Suggestions(err); len(suggestions) > 0 {
		b.WriteString(FormatSuggestions("", suggestions))
	}

	return b.String()
}
