// Package config provides configuration management for ButtonStudio using
// Viper for loading from files, environment variables and command-line
// flags.
//
// The configuration covers the HTTP server, the project layout scanned by
// the route/island classifier, development options such as hot reload, the
// studio page itself and logging. Environment variables use the
// BUTTONSTUDIO_ prefix; a .env file in the working directory is loaded
// first so it can supply those variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. BUTTONSTUDIO_SERVER_PORT.
const EnvPrefix = "BUTTONSTUDIO"

type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Project     ProjectConfig     `mapstructure:"project" yaml:"project"`
	Development DevelopmentConfig `mapstructure:"development" yaml:"development"`
	Studio      StudioConfig      `mapstructure:"studio" yaml:"studio"`
	Log         LogConfig         `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port" yaml:"port"`
	Host           string   `mapstructure:"host" yaml:"host"`
	Environment    string   `mapstructure:"environment" yaml:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type ProjectConfig struct {
	// Root is the directory holding routes/ and islands/.
	Root string `mapstructure:"root" yaml:"root"`
	// Manifest is the generated manifest file, relative to Root.
	Manifest string `mapstructure:"manifest" yaml:"manifest"`
	// Ignore holds doublestar globs, relative to Root, excluded from the walk.
	Ignore []string `mapstructure:"ignore" yaml:"ignore"`
}

type DevelopmentConfig struct {
	HotReload bool          `mapstructure:"hot_reload" yaml:"hot_reload"`
	Debounce  time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

type StudioConfig struct {
	Title        string `mapstructure:"title" yaml:"title"`
	CounterStart int    `mapstructure:"counter_start" yaml:"counter_start"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Defaults applied when a value is not set anywhere.
const (
	DefaultPort         = 8000
	DefaultHost         = "localhost"
	DefaultManifest     = "fresh.gen.ts"
	DefaultDebounce     = 200 * time.Millisecond
	DefaultTitle        = "ButtonStudio"
	DefaultCounterStart = 3
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already present in the environment are left untouched and a
// missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Keys lists every configuration key, in file order.
var Keys = []string{
	"server.port",
	"server.host",
	"server.environment",
	"server.allowed_origins",
	"project.root",
	"project.manifest",
	"project.ignore",
	"development.hot_reload",
	"development.debounce",
	"studio.title",
	"studio.counter_start",
	"log.level",
	"log.format",
}

// BindEnv enables BUTTONSTUDIO_ environment overrides on the global viper.
func BindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// AutomaticEnv only answers for keys viper already knows about; binding
	// each one lets a variable stand in for a key absent from the file.
	for _, key := range Keys {
		_ = viper.BindEnv(key)
	}
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// AutomaticEnv only answers Get calls for keys viper already knows, so
	// slices and bools supplied purely through the environment are read
	// back explicitly.
	if viper.IsSet("server.allowed_origins") && len(config.Server.AllowedOrigins) == 0 {
		config.Server.AllowedOrigins = viper.GetStringSlice("server.allowed_origins")
	}
	if viper.IsSet("project.ignore") && len(config.Project.Ignore) == 0 {
		config.Project.Ignore = viper.GetStringSlice("project.ignore")
	}
	if viper.IsSet("development.hot_reload") {
		config.Development.HotReload = viper.GetBool("development.hot_reload")
	} else {
		config.Development.HotReload = true
	}

	if config.Server.Port == 0 && !viper.IsSet("server.port") {
		config.Server.Port = DefaultPort
	}
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}
	if config.Server.Environment == "" {
		config.Server.Environment = "development"
	}
	if config.Project.Root == "" {
		config.Project.Root = "."
	}
	if config.Project.Manifest == "" {
		config.Project.Manifest = DefaultManifest
	}
	if config.Development.Debounce == 0 && !viper.IsSet("development.debounce") {
		config.Development.Debounce = DefaultDebounce
	}
	if config.Studio.Title == "" {
		config.Studio.Title = DefaultTitle
	}
	if !viper.IsSet("studio.counter_start") {
		config.Studio.CounterStart = DefaultCounterStart
	}
	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// ManifestPath returns the manifest location joined onto the project root.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.Project.Root, c.Project.Manifest)
}

// Addr returns host:port for the HTTP listener.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateProjectConfig(&config.Project); err != nil {
		return fmt.Errorf("project config: %w", err)
	}

	if config.Development.Debounce < 0 {
		return fmt.Errorf("development config: debounce must not be negative: %s", config.Development.Debounce)
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log config: unsupported format %q (text, json)", config.Log.Format)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// 0 lets the OS pick a port, which tests rely on.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(config.Host, char) {
			return fmt.Errorf("host contains dangerous character: %s", char)
		}
	}

	return nil
}

func validateProjectConfig(config *ProjectConfig) error {
	if err := validatePath(config.Root); err != nil {
		return fmt.Errorf("invalid root '%s': %w", config.Root, err)
	}

	manifest := filepath.Clean(config.Manifest)
	if filepath.IsAbs(manifest) {
		return fmt.Errorf("manifest should be a relative path: %s", config.Manifest)
	}
	if manifest == ".." || strings.HasPrefix(manifest, ".."+string(filepath.Separator)) {
		return fmt.Errorf("manifest path contains traversal: %s", config.Manifest)
	}
	switch filepath.Ext(manifest) {
	case ".ts", ".js":
	default:
		return fmt.Errorf("manifest must be a .ts or .js file: %s", config.Manifest)
	}

	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(path, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
