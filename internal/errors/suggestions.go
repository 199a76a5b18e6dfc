package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// RouteConflictSuggestions explains how to resolve two route files that
// map to the same path.
func RouteConflictSuggestions(path string, files []string) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Remove or rename one of the files",
			Description: "Only one file may serve " + path,
		},
		{
			Title:       "Move the file into a private group",
			Description: "Folders named (_name) are skipped during route registration",
			Example:     "routes/(_drafts)/" + strings.TrimPrefix(path, "routes/"),
		},
	}

	if len(files) > 0 {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Conflicting files",
			Description: strings.Join(files, ", "),
		})
	}

	return suggestions
}

// ManifestStaleSuggestions is used by `manifest --check`.
func ManifestStaleSuggestions(manifestPath string) []ErrorSuggestion {
	return []ErrorSuggestion{
		{
			Title:       "Regenerate the manifest",
			Description: manifestPath + " does not match the routes and islands on disk",
			Command:     "buttonstudio manifest",
		},
	}
}

// ServerStartError generates suggestions for server startup failures
func ServerStartError(err error, port int) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{}

	errStr := err.Error()

	if strings.Contains(errStr, "address already in use") || strings.Contains(errStr, "bind") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Port already in use",
			Description: fmt.Sprintf("Port %d is already being used by another process", port),
			Command:     fmt.Sprintf("lsof -i :%d", port),
		})

		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Use a different port",
			Description: "Start the server on a different port",
			Command:     fmt.Sprintf("buttonstudio serve --port %d", port+1),
		})
	}

	if strings.Contains(errStr, "permission denied") && port < 1024 {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Use unprivileged port",
			Description: "Ports below 1024 require root privileges",
			Command:     "buttonstudio serve --port 8000",
		})
	}

	return suggestions
}

// ConfigurationError generates suggestions for configuration issues
func ConfigurationError(configError string, configPath string) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Check configuration file",
			Description: "Verify your .buttonstudio.yml file exists and has valid syntax",
			Command:     "cat " + configPath,
		},
	}

	if strings.Contains(configError, "yaml") || strings.Contains(configError, "unmarshal") ||
		strings.Contains(configError, "decoding") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Fix YAML syntax",
			Description: "There's a syntax error in your YAML configuration",
			Example:     "Use proper indentation and avoid tabs",
		})
	}

	if strings.Contains(configError, "path") || strings.Contains(configError, "manifest") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check project paths",
			Description: "project.manifest must be a relative path inside the project root",
			Example:     "project:\n  manifest: fresh.gen.ts",
		})
	}

	return suggestions
}

// Suggestions picks suggestions for a StudioError by code.
func Suggestions(err error) []ErrorSuggestion {
	var se *StudioError
	if !errors.As(err, &se) {
		return nil
	}

	switch se.Code {
	case ErrCodeRouteConflict:
		path, _ := se.Context["path"].(string)
		files, _ := se.Context["files"].([]string)
		return RouteConflictSuggestions(path, files)
	case ErrCodeManifestStale:
		return ManifestStaleSuggestions(se.FilePath)
	case ErrCodeConfigInvalid:
		return ConfigurationError(se.Error(), ".buttonstudio.yml")
	}

	return nil
}

// FormatSuggestions formats suggestions into a user-friendly string
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var output strings.Builder
	output.WriteString(title + "\n\n")
	output.WriteString("Suggestions:\n")

	for i, suggestion := range suggestions {
		output.WriteString(fmt.Sprintf("  %d. %s\n", i+1, suggestion.Title))
		if suggestion.Description != "" {
			output.WriteString(fmt.Sprintf("     %s\n", suggestion.Description))
		}
		if suggestion.Command != "" {
			output.WriteString(fmt.Sprintf("     Run: %s\n", suggestion.Command))
		}
		if suggestion.Example != "" {
			output.WriteString(fmt.Sprintf("     Example: %s\n", suggestion.Example))
		}
		output.WriteString("\n")
	}

	return output.String()
}

// EnhancedError wraps an error with suggestions
type EnhancedError struct {
	OriginalError error
	Title         string
	Suggestions   []ErrorSuggestion
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	return FormatSuggestions(e.Title, e.Suggestions)
}

// Unwrap returns the original error
func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

// NewEnhancedError creates a new enhanced error with suggestions
func NewEnhancedError(title string, originalError error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{
		OriginalError: originalError,
		Title:         title,
		Suggestions:   suggestions,
	}
}

// Enhance wraps err with the suggestions known for its code. Errors without
// suggestions are returned unchanged.
func Enhance(title string, err error) error {
	suggestions := Suggestions(err)
	if len(suggestions) == 0 {
		return err
	}

	return NewEnhancedError(title+": "+err.Error(), err, suggestions)
}
