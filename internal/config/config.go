package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"github.com/harrison/specrunner/internal/command"
	"github.com/harrison/specrunner/internal/presenter"
)

// RSpec visible-terminal formats as they appear in configuration.
const (
	RSpecFormatProgress      = "Progress"
	RSpecFormatDocumentation = "Documentation"
)

// Config represents specrunner configuration options
type Config struct {
	// RSpecCommand is the base command line used to run specs
	RSpecCommand string `yaml:"rspec_command"`

	// MinitestCommand is the base command line used to run tests
	MinitestCommand string `yaml:"minitest_command"`

	// Environment variables prefixed to runner commands
	RSpecEnv      map[string]string `yaml:"rspec_env"`
	MinitestEnv   map[string]string `yaml:"minitest_env"`
	RSpecDebugEnv map[string]string `yaml:"rspec_debug_env"`

	// EnvFile is a dotenv file whose variables apply to every runner;
	// the env maps above take precedence over it
	EnvFile string `yaml:"env_file"`

	// ChangeDirectoryToWorkspaceRoot runs commands from the project root
	ChangeDirectoryToWorkspaceRoot bool `yaml:"change_directory_to_workspace_root"`

	// ProjectPath overrides the workspace root; empty uses the workspace
	ProjectPath string `yaml:"project_path"`

	// RSpecFormat is Progress or Documentation
	RSpecFormat string `yaml:"rspec_format"`

	// Shell is posix, powershell or bash (bash on Windows); empty picks by OS
	Shell string `yaml:"shell"`

	RSpecDecorateEditorWithResults         bool `yaml:"rspec_decorate_editor_with_results"`
	MinitestDecorateEditorWithResults      bool `yaml:"minitest_decorate_editor_with_results"`
	RSpecDecorateEditorWithStaleResults    bool `yaml:"rspec_decorate_editor_with_stale_results"`
	MinitestDecorateEditorWithStaleResults bool `yaml:"minitest_decorate_editor_with_stale_results"`

	// RubyDebugger is rdbg or ruby_lsp
	RubyDebugger string `yaml:"ruby_debugger"`

	// RewriteTestPaths maps local paths to the paths the runner sees
	RewriteTestPaths []command.RemapRule `yaml:"rewrite_test_paths"`

	// LogLevel sets the logging verbosity (trace, debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// LogDir is the directory where logs will be written
	LogDir string `yaml:"log_dir"`

	// HistoryDB is the run history database; empty disables history
	HistoryDB string `yaml:"history_db"`

	// SnapshotPath persists results between invocations; empty disables it
	SnapshotPath string `yaml:"snapshot_path"`

	// SinkDir holds capture sinks; empty uses the system temp directory
	SinkDir string `yaml:"sink_dir"`
}

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		RSpecCommand:                           "bundle exec rspec",
		MinitestCommand:                        "bundle exec rails t",
		ChangeDirectoryToWorkspaceRoot:         false,
		RSpecFormat:                            RSpecFormatProgress,
		RSpecDecorateEditorWithResults:         true,
		MinitestDecorateEditorWithResults:      true,
		RSpecDecorateEditorWithStaleResults:    true,
		MinitestDecorateEditorWithStaleResults: true,
		RubyDebugger:                           string(command.DebuggerRdbg),
		LogLevel:                               "info",
		LogDir:                                 ".specrunner/logs",
		HistoryDB:                              ".specrunner/history.db",
		SnapshotPath:                           ".specrunner/results.json",
	}
}

// LoadConfig loads configuration from the specified file path
// If the file doesn't exist, returns default configuration without error
// If the file exists but is malformed, returns an error
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileCfg Config
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Booleans and explicitly empty strings are only applied when the key
	// is present, so an absent key keeps its default.
	var rawMap map[string]interface{}
	if err := yaml.Unmarshal(data, &rawMap); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	has := func(key string) bool {
		_, exists := rawMap[key]
		return exists
	}

	if fileCfg.RSpecCommand != "" {
		cfg.RSpecCommand = strings.TrimSpace(fileCfg.RSpecCommand)
	}
	if fileCfg.MinitestCommand != "" {
		cfg.MinitestCommand = strings.TrimSpace(fileCfg.MinitestCommand)
	}
	if fileCfg.RSpecEnv != nil {
		cfg.RSpecEnv = fileCfg.RSpecEnv
	}
	if fileCfg.MinitestEnv != nil {
		cfg.MinitestEnv = fileCfg.MinitestEnv
	}
	if fileCfg.RSpecDebugEnv != nil {
		cfg.RSpecDebugEnv = fileCfg.RSpecDebugEnv
	}
	if fileCfg.EnvFile != "" {
		cfg.EnvFile = fileCfg.EnvFile
	}
	if has("change_directory_to_workspace_root") {
		cfg.ChangeDirectoryToWorkspaceRoot = fileCfg.ChangeDirectoryToWorkspaceRoot
	}
	if fileCfg.ProjectPath != "" {
		cfg.ProjectPath = fileCfg.ProjectPath
	}
	if fileCfg.RSpecFormat != "" {
		cfg.RSpecFormat = fileCfg.RSpecFormat
	}
	if fileCfg.Shell != "" {
		cfg.Shell = fileCfg.Shell
	}
	if has("rspec_decorate_editor_with_results") {
		cfg.RSpecDecorateEditorWithResults = fileCfg.RSpecDecorateEditorWithResults
	}
	if has("minitest_decorate_editor_with_results") {
		cfg.MinitestDecorateEditorWithResults = fileCfg.MinitestDecorateEditorWithResults
	}
	if has("rspec_decorate_editor_with_stale_results") {
		cfg.RSpecDecorateEditorWithStaleResults = fileCfg.RSpecDecorateEditorWithStaleResults
	}
	if has("minitest_decorate_editor_with_stale_results") {
		cfg.MinitestDecorateEditorWithStaleResults = fileCfg.MinitestDecorateEditorWithStaleResults
	}
	if fileCfg.RubyDebugger != "" {
		cfg.RubyDebugger = fileCfg.RubyDebugger
	}
	if fileCfg.RewriteTestPaths != nil {
		cfg.RewriteTestPaths = fileCfg.RewriteTestPaths
	}
	if fileCfg.LogLevel != "" {
		cfg.LogLevel = fileCfg.LogLevel
	}
	if fileCfg.LogDir != "" {
		cfg.LogDir = fileCfg.LogDir
	}
	if has("history_db") {
		cfg.HistoryDB = fileCfg.HistoryDB
	}
	if has("snapshot_path") {
		cfg.SnapshotPath = fileCfg.SnapshotPath
	}
	if fileCfg.SinkDir != "" {
		cfg.SinkDir = fileCfg.SinkDir
	}

	return cfg, nil
}

// LoadConfigFromDir loads configuration from .specrunner/config.yaml in the specified directory
// If the directory or file doesn't exist, returns default configuration without error
func LoadConfigFromDir(dir string) (*Config, error) {
	configPath := filepath.Join(dir, HomeDirName, "config.yaml")
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	cfg.ResolvePaths(dir)
	return cfg, nil
}

// ResolvePaths makes relative file settings absolute against base.
func (c *Config) ResolvePaths(base string) {
	resolve := func(path *string) {
		if *path != "" && !filepath.IsAbs(*path) {
			*path = filepath.Join(base, *path)
		}
	}
	resolve(&c.EnvFile)
	resolve(&c.LogDir)
	resolve(&c.HistoryDB)
	resolve(&c.SnapshotPath)
	resolve(&c.SinkDir)
}

// Flags holds CLI flag values; nil fields were not given.
type Flags struct {
	ProjectPath  *string
	Shell        *string
	RubyDebugger *string
	LogLevel     *string
	LogDir       *string
	NoHistory    *bool
}

// MergeWithFlags merges CLI flags into the configuration
// Non-nil flag values override configuration values
// This allows CLI flags to take precedence over config file settings
func (c *Config) MergeWithFlags(flags Flags) {
	if flags.ProjectPath != nil {
		c.ProjectPath = *flags.ProjectPath
	}
	if flags.Shell != nil {
		c.Shell = *flags.Shell
	}
	if flags.RubyDebugger != nil {
		c.RubyDebugger = *flags.RubyDebugger
	}
	if flags.LogLevel != nil {
		c.LogLevel = *flags.LogLevel
	}
	if flags.LogDir != nil {
		c.LogDir = *flags.LogDir
	}
	if flags.NoHistory != nil && *flags.NoHistory {
		c.HistoryDB = ""
	}
}

// Validate validates the configuration values
// Returns an error if any values are invalid
func (c *Config) Validate() error {
	commands := []struct{ key, value string }{
		{"rspec_command", c.RSpecCommand},
		{"minitest_command", c.MinitestCommand},
	}
	for _, cmd := range commands {
		words, err := shellquote.Split(cmd.value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", cmd.key, cmd.value, err)
		}
		if len(words) == 0 {
			return fmt.Errorf("%s cannot be empty", cmd.key)
		}
	}

	switch c.RSpecFormat {
	case RSpecFormatProgress, RSpecFormatDocumentation:
	default:
		return fmt.Errorf("invalid rspec_format %q, must be one of: %s, %s", c.RSpecFormat, RSpecFormatProgress, RSpecFormatDocumentation)
	}

	if _, err := command.ParseShell(c.Shell); err != nil {
		return err
	}

	// An unknown ruby_debugger only fails debug launches, when they are built.

	for i, rule := range c.RewriteTestPaths {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("rewrite_test_paths[%d]: %w", i, err)
		}
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level %q, must be one of: trace, debug, info, warn, error", c.LogLevel)
	}

	return nil
}

// environment merges the env file under overlay.
func (c *Config) environment(overlay map[string]string) (map[string]string, error) {
	if c.EnvFile == "" {
		return overlay, nil
	}

	fileEnv, err := godotenv.Read(c.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read env_file %s: %w", c.EnvFile, err)
	}
	for key, value := range overlay {
		fileEnv[key] = value
	}
	return fileEnv, nil
}

// CommandOptions converts the configuration into builder options. Output is
// only captured for frameworks whose results are drawn.
func (c *Config) CommandOptions() (command.Options, error) {
	shell, err := command.ParseShell(c.Shell)
	if err != nil {
		return command.Options{}, err
	}

	rspecEnv, err := c.environment(c.RSpecEnv)
	if err != nil {
		return command.Options{}, err
	}
	minitestEnv, err := c.environment(c.MinitestEnv)
	if err != nil {
		return command.Options{}, err
	}

	format := command.FormatProgress
	if c.RSpecFormat == RSpecFormatDocumentation {
		format = command.FormatDocumentation
	}

	return command.Options{
		RSpecCommand:     c.RSpecCommand,
		MinitestCommand:  c.MinitestCommand,
		RSpecEnv:         rspecEnv,
		RSpecDebugEnv:    c.RSpecDebugEnv,
		MinitestEnv:      minitestEnv,
		RSpecFormat:      format,
		Shell:            shell,
		Debugger:         command.Debugger(c.RubyDebugger),
		ChangeDirectory:  c.ChangeDirectoryToWorkspaceRoot,
		ProjectPath:      c.ProjectPath,
		RSpecCapture:     c.RSpecDecorateEditorWithResults,
		MinitestCapture:  c.MinitestDecorateEditorWithResults,
		RewriteTestPaths: c.RewriteTestPaths,
	}, nil
}

// PresenterOptions converts the decoration toggles.
func (c *Config) PresenterOptions() presenter.Options {
	return presenter.Options{
		DecorateRSpec:    c.RSpecDecorateEditorWithResults,
		DecorateMinitest: c.MinitestDecorateEditorWithResults,
		StaleRSpec:       c.RSpecDecorateEditorWithStaleResults,
		StaleMinitest:    c.MinitestDecorateEditorWithStaleResults,
	}
}
