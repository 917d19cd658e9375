package cli

import (
	"log/slog"
	"os"

	"github.com/shinji-kodama/gitsync/internal/config"
	"github.com/shinji-kodama/gitsync/internal/model"
	"github.com/shinji-kodama/gitsync/internal/repo"
	"github.com/shinji-kodama/gitsync/internal/telemetry"
)

// loadConfig resolves the layered configuration for a command: defaults,
// then the config file, then environment variables. Command flags are
// applied by the caller. dirFlag, when set, names the repository directory
// and wins over GITSYNC_DIR.
func loadConfig(dirFlag string) (*config.Config, error) {
	searchDir := dirFlag
	if searchDir == "" {
		searchDir = os.Getenv(config.EnvDir)
	}
	if searchDir == "" {
		searchDir = "."
	}

	res, err := config.Load(searchDir, configPath)
	if err != nil {
		return nil, err
	}
	if res.Path != "" {
		VerboseLog("Loaded config from %s", res.Path)
	}

	cfg := res.Config
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if dirFlag != "" {
		cfg.Dir = dirFlag
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the structured logger for a command. The returned
// function closes a log file, if one was opened.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	logger, closer, err := telemetry.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, model.WrapCLIError(model.ExitConfigError, "failed to set up logging", err)
	}
	return logger, func() { _ = closer() }, nil
}

// newRunner resolves the git binary and creates a runner that logs each
// invocation at debug level.
func newRunner(cfg *config.Config, logger *slog.Logger) (*repo.ExecRunner, error) {
	binary, err := repo.ResolveBinary(cfg.GitBinary)
	if err != nil {
		return nil, err
	}
	VerboseLog("Using git binary %s", binary)
	return repo.NewExecRunner(binary, logger), nil
}
