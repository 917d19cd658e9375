// Package config loads and validates gitsync configuration.
//
// Repository path, remote, branch, commit message and reconciliation policy
// are all explicit settings. Values are layered, later layers winning:
//
//  1. Built-in defaults (Default)
//  2. A config file in the repository: .gitsync.yaml, .gitsync.yml,
//     .gitsync.jsonc or .gitsync.json
//  3. Environment variables (ApplyEnv)
//  4. Command-line flags (applied by the cli package)
//
// YAML files are parsed with gopkg.in/yaml.v3. JSON files may contain
// comments and trailing commas; github.com/tidwall/jsonc strips them before
// decoding with encoding/json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/gitsync/internal/model"
)

// Default values.
const (
	DefaultRemote    = "origin"
	DefaultBranch    = "main"
	DefaultMessage   = "Sync local changes"
	DefaultGitBinary = "git"
)

// FileNames lists the config file names searched for in the repository
// directory, in priority order.
var FileNames = []string{".gitsync.yaml", ".gitsync.yml", ".gitsync.jsonc", ".gitsync.json"}

// Config holds the complete gitsync configuration.
type Config struct {
	// Dir is the repository working directory. Relative paths in a config
	// file are resolved against the directory containing the file.
	Dir string `yaml:"dir" json:"dir"`

	// Remote is the single remote that is fetched from and pushed to.
	Remote string `yaml:"remote" json:"remote"`

	// Branch is the branch that is synchronized and published.
	Branch string `yaml:"branch" json:"branch"`

	// Policy selects hard-reset or merge reconciliation.
	Policy model.Policy `yaml:"policy" json:"policy"`

	// Message is the commit message used for local work.
	Message string `yaml:"message" json:"message"`

	// GitBinary is the git executable name or path.
	GitBinary string `yaml:"git_binary" json:"git_binary"`

	// ConfirmForce asks for confirmation before force-pushing after a
	// merge conflict was resolved.
	ConfirmForce bool `yaml:"confirm_force" json:"confirm_force"`

	Log   LogConfig   `yaml:"log" json:"log"`
	Trace TraceConfig `yaml:"trace" json:"trace"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // text or json
	Output string `yaml:"output" json:"output"` // stderr, stdout or a file path
}

// TraceConfig controls OpenTelemetry tracing of workflow steps.
type TraceConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Default returns a Config populated with built-in defaults.
func Default() *Config {
	return &Config{
		Remote:    DefaultRemote,
		Branch:    DefaultBranch,
		Policy:    model.PolicyHardReset,
		Message:   DefaultMessage,
		GitBinary: DefaultGitBinary,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// LoadResult holds the parsed config and the file it came from.
type LoadResult struct {
	Config *Config
	Path   string // empty when no config file was found
}

// Load builds a Config from defaults and, when present, a config file.
//
// If path is non-empty that file must exist. Otherwise dir is searched
// for one of FileNames; finding none is not an error. dir is used as the
// repository directory unless the file sets one.
func Load(dir, path string) (*LoadResult, error) {
	cfg := Default()
	cfg.Dir = dir

	if path == "" {
		path = findConfigFile(dir)
		if path == "" {
			return &LoadResult{Config: cfg}, nil
		}
	}

	if err := loadFile(path, cfg); err != nil {
		return nil, err
	}

	// Accept the same spellings as --policy and GITSYNC_POLICY.
	if cfg.Policy == "" {
		cfg.Policy = model.PolicyHardReset
	}
	policy, err := model.ParsePolicy(string(cfg.Policy))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, fmt.Sprintf("invalid policy in config file %s", path), err)
	}
	cfg.Policy = policy

	if cfg.Dir == "" {
		cfg.Dir = dir
	} else if !filepath.IsAbs(cfg.Dir) {
		cfg.Dir = filepath.Join(filepath.Dir(path), cfg.Dir)
	}

	return &LoadResult{Config: cfg, Path: path}, nil
}

// findConfigFile returns the first of FileNames present in dir.
func findConfigFile(dir string) string {
	if dir == "" {
		dir = "."
	}
	for _, name := range FileNames {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

// loadFile decodes the file at path onto cfg. Fields absent from the file
// keep their current values.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, fmt.Sprintf("failed to read config file %s", path), err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// Strip JSONC comments (// and /* */) and trailing commas before
		// handing the data to encoding/json.
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return model.WrapCLIError(model.ExitConfigError, fmt.Sprintf("failed to parse config file %s", path), err)
		}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return model.WrapCLIError(model.ExitConfigError, fmt.Sprintf("failed to parse config file %s", path), err)
		}
	}
	return nil
}

// Environment variable names read by ApplyEnv.
const (
	EnvDir       = "GITSYNC_DIR"
	EnvRemote    = "GITSYNC_REMOTE"
	EnvBranch    = "GITSYNC_BRANCH"
	EnvPolicy    = "GITSYNC_POLICY"
	EnvMessage   = "GITSYNC_MESSAGE"
	EnvLogLevel  = "GITSYNC_LOG_LEVEL"
	EnvLogFormat = "GITSYNC_LOG_FORMAT"
	EnvTrace     = "GITSYNC_TRACE"
	EnvDebug     = "GITSYNC_DEBUG"
	EnvGitBinary = "GIT_EXECUTABLE"
)

// ApplyEnv overrides fields from environment variables. lookup is usually
// os.LookupEnv; tests pass a map-backed function.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str(EnvDir, &c.Dir)
	str(EnvRemote, &c.Remote)
	str(EnvBranch, &c.Branch)
	str(EnvMessage, &c.Message)
	str(EnvGitBinary, &c.GitBinary)
	str(EnvLogLevel, &c.Log.Level)
	str(EnvLogFormat, &c.Log.Format)

	if v, ok := lookup(EnvPolicy); ok && v != "" {
		policy, err := model.ParsePolicy(v)
		if err != nil {
			return model.WrapCLIError(model.ExitConfigError, "invalid "+EnvPolicy, err)
		}
		c.Policy = policy
	}

	if v, ok := lookup(EnvTrace); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return model.WrapCLIError(model.ExitConfigError, "invalid "+EnvTrace, err)
		}
		c.Trace.Enabled = enabled
	}

	// GITSYNC_DEBUG=true is a shorthand for debug logging.
	if v, ok := lookup(EnvDebug); ok {
		if debug, err := strconv.ParseBool(v); err == nil && debug {
			c.Log.Level = "debug"
		}
	}

	return nil
}

// Validate checks that the configuration can drive a sync run.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Remote) == "" {
		problems = append(problems, "remote must not be empty")
	}
	if strings.TrimSpace(c.Branch) == "" {
		problems = append(problems, "branch must not be empty")
	}
	if strings.TrimSpace(c.Message) == "" {
		problems = append(problems, "commit message must not be empty")
	}
	if !c.Policy.IsValid() {
		problems = append(problems, fmt.Sprintf("invalid policy %q (valid: hard-reset, merge)", c.Policy))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("invalid log format %q (valid: text, json)", c.Log.Format))
	}

	if len(problems) > 0 {
		return model.NewCLIError(model.ExitConfigError, "invalid configuration: "+strings.Join(problems, "; "))
	}
	return nil
}
