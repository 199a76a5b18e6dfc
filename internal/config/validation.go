package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string      `json:"field" yaml:"field"`
	Value       interface{} `json:"value" yaml:"value"`
	Message     string      `json:"message" yaml:"message"`
	Suggestions []string    `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool              `json:"valid" yaml:"valid"`
	Errors   []ValidationError `json:"errors" yaml:"errors"`
	Warnings []ValidationError `json:"warnings" yaml:"warnings"`
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	section := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + "\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	section("❌ Validation Errors:", vr.Errors)
	section("⚠️  Validation Warnings:", vr.Warnings)

	return builder.String()
}

func (vr *ValidationResult) addError(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

func (vr *ValidationResult) addWarning(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

// ValidateConfigWithDetails reports every problem in config, including
// warnings that Load lets through.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateServerConfigDetails(&config.Server, result)
	validateProjectConfigDetails(&config.Project, result)
	validateDevelopmentConfigDetails(&config.Development, result)
	validateStudioConfigDetails(&config.Studio, result)
	validateLogConfigDetails(&config.Log, result)

	result.Valid = !result.HasErrors()
	return result
}

func validateServerConfigDetails(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.addError("server.port", config.Port,
			fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port between 1024-65535 for non-privileged access",
			"Port 0 allows system to assign an available port")
	} else if config.Port > 0 && config.Port < 1024 {
		result.addWarning("server.port", config.Port,
			"port below 1024 requires elevated privileges",
			"Consider using a port above 1024 for development")
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.addError("server.host", config.Host, err.Error(),
				"Use 'localhost' for local development",
				"Use '0.0.0.0' to bind to all interfaces")
		}
	}

	switch config.Environment {
	case "", "development", "production", "testing":
	default:
		result.addWarning("server.environment", config.Environment, "unknown environment type",
			"Use 'development', 'production' or 'testing'")
	}

	for _, origin := range config.AllowedOrigins {
		scheme, host, ok := strings.Cut(origin, "://")
		if !ok || (scheme != "http" && scheme != "https") || host == "" {
			result.addError("server.allowed_origins", origin, "origin must be an http or https URL",
				"Example: https://studio.example.com or http://localhost:*")
		}
	}
}

func validateProjectConfigDetails(config *ProjectConfig, result *ValidationResult) {
	if err := validateProjectConfig(config); err != nil {
		result.addError("project", config, err.Error(),
			"project.manifest must be a relative .ts or .js path, e.g. fresh.gen.ts")
		return
	}

	if info, err := os.Stat(config.Root); err != nil || !info.IsDir() {
		result.addError("project.root", config.Root, "project root is not a directory")
	} else if _, err := os.Stat(filepath.Join(config.Root, "routes")); err != nil {
		result.addWarning("project.root", config.Root, "no routes/ directory found",
			"Run buttonstudio in the project root or pass it as an argument")
	}

	for _, pattern := range config.Ignore {
		if !doublestar.ValidatePattern(pattern) {
			result.addError("project.ignore", pattern, "invalid glob pattern",
				"Patterns are matched against root-relative paths, e.g. routes/legacy/**")
		}
	}
}

func validateDevelopmentConfigDetails(config *DevelopmentConfig, result *ValidationResult) {
	switch {
	case config.Debounce < 0:
		result.addError("development.debounce", config.Debounce, "debounce must not be negative")
	case config.HotReload && config.Debounce == 0:
		result.addWarning("development.debounce", config.Debounce,
			"hot reload without debounce regenerates on every file event",
			fmt.Sprintf("The default is %s", DefaultDebounce))
	case config.Debounce > 5*time.Second:
		result.addWarning("development.debounce", config.Debounce, "reloads will feel slow",
			"Use a debounce below one second")
	}
}

func validateStudioConfigDetails(config *StudioConfig, result *ValidationResult) {
	if strings.TrimSpace(config.Title) == "" {
		result.addWarning("studio.title", config.Title, "empty page title",
			fmt.Sprintf("The default is %q", DefaultTitle))
	}
}

func validateLogConfigDetails(config *LogConfig, result *ValidationResult) {
	switch strings.ToLower(config.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		result.addError("log.level", config.Level, "unknown log level",
			"Use debug, info, warn or error")
	}
	switch config.Format {
	case "", "text", "json":
	default:
		result.addError("log.format", config.Format, "unsupported format", "Use text or json")
	}
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

func validateHostname(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil {
		return nil
	}
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}
	return nil
}
