package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/gitsync/internal/model"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoad_NoFile(t *testing.T) {
	dir := t.TempDir()

	res, err := Load(dir, "")
	require.NoError(t, err)
	assert.Empty(t, res.Path)
	assert.Equal(t, dir, res.Config.Dir)
	assert.Equal(t, DefaultRemote, res.Config.Remote)
	assert.Equal(t, DefaultBranch, res.Config.Branch)
	assert.Equal(t, model.PolicyHardReset, res.Config.Policy)
	assert.Equal(t, DefaultMessage, res.Config.Message)
	assert.Equal(t, "info", res.Config.Log.Level)
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, ".gitsync.yaml", `
remote: upstream
policy: merge
message: |
  Complete database integration

  - unified access layer
confirm_force: true
log:
  format: json
trace:
  enabled: true
`)

	res, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)

	cfg := res.Config
	assert.Equal(t, "upstream", cfg.Remote)
	assert.Equal(t, DefaultBranch, cfg.Branch, "unset fields keep defaults")
	assert.Equal(t, model.PolicyMerge, cfg.Policy)
	assert.Equal(t, "Complete database integration\n\n- unified access layer\n", cfg.Message)
	assert.True(t, cfg.ConfirmForce)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Trace.Enabled)
}

// TestLoad_JSONC verifies that comments and trailing commas are accepted.
func TestLoad_JSONC(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ".gitsync.jsonc", `{
  // publish to the release branch
  "branch": "release",
  /* keep local work on conflict */
  "policy": "merge",
  "git_binary": "/usr/bin/git",
}`)

	res, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "release", res.Config.Branch)
	assert.Equal(t, model.PolicyMerge, res.Config.Policy)
	assert.Equal(t, "/usr/bin/git", res.Config.GitBinary)
}

// TestLoad_Priority verifies that YAML wins over JSONC when both exist.
func TestLoad_Priority(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ".gitsync.jsonc", `{"remote": "from-json"}`)
	writeConfig(t, dir, ".gitsync.yaml", "remote: from-yaml\n")

	res, err := Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "from-yaml", res.Config.Remote)
}

// TestLoad_PolicySpelling verifies that the config file accepts the same
// policy spellings as the flag and the environment.
func TestLoad_PolicySpelling(t *testing.T) {
	tests := []struct {
		value string
		want  model.Policy
	}{
		{"Merge", model.PolicyMerge},
		{"reset", model.PolicyHardReset},
		{"HARD-RESET", model.PolicyHardReset},
		{`""`, model.PolicyHardReset},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, ".gitsync.yaml", "policy: "+tt.value+"\n")

			res, err := Load(dir, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Config.Policy)
			assert.NoError(t, res.Config.Validate())
		})
	}
}

func TestLoad_InvalidPolicy(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ".gitsync.jsonc", `{"policy": "rebase"}`)

	_, err := Load(dir, "")

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigError, cliErr.Code)
}

func TestLoad_RelativeDir(t *testing.T) {
	root := t.TempDir()
	cfgDir := filepath.Join(root, "conf")
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	path := writeConfig(t, cfgDir, "sync.yaml", "dir: ../project\n")

	res, err := Load(root, path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "project"), res.Config.Dir)
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	_, err := Load(t.TempDir(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitConfigError, cliErr.Code)
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, ".gitsync.yml", "remote: [unterminated\n")

	_, err := Load(dir, "")
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		EnvDir:       "/work/repo",
		EnvRemote:    "upstream",
		EnvBranch:    "develop",
		EnvPolicy:    "MERGE",
		EnvMessage:   "wip",
		EnvGitBinary: "/opt/homebrew/bin/git",
		EnvTrace:     "true",
		EnvDebug:     "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/work/repo", cfg.Dir)
	assert.Equal(t, "upstream", cfg.Remote)
	assert.Equal(t, "develop", cfg.Branch)
	assert.Equal(t, model.PolicyMerge, cfg.Policy)
	assert.Equal(t, "wip", cfg.Message)
	assert.Equal(t, "/opt/homebrew/bin/git", cfg.GitBinary)
	assert.True(t, cfg.Trace.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestApplyEnv_EmptyValuesIgnored(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(envMap(map[string]string{EnvRemote: "", EnvDebug: "false"})))
	assert.Equal(t, DefaultRemote, cfg.Remote)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestApplyEnv_InvalidPolicy(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{EnvPolicy: "rebase"}))
	assert.Error(t, err)
}

func TestApplyEnv_InvalidTrace(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{EnvTrace: "sometimes"}))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Default().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty remote", func(c *Config) { c.Remote = "" }, "remote must not be empty"},
		{"empty branch", func(c *Config) { c.Branch = " " }, "branch must not be empty"},
		{"empty message", func(c *Config) { c.Message = "" }, "commit message must not be empty"},
		{"bad policy", func(c *Config) { c.Policy = "rebase" }, "invalid policy"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "invalid log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
