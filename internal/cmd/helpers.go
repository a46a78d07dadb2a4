package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/harrison/projsort/internal/config"
	"github.com/harrison/projsort/internal/logger"
	"github.com/harrison/projsort/internal/models"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// env is what every command needs once flags are parsed: the workspace,
// the merged configuration and the loggers.
type env struct {
	ws      *config.Workspace
	cfg     *config.Config
	log     logger.Logger
	out     io.Writer
	fileLog *logger.FileLogger
	color   bool
}

// setup resolves the workspace, loads and validates configuration with the
// command's flags applied, and opens the console and run-file loggers.
func setup(cmd *cobra.Command) (*env, error) {
	wsDir, _ := cmd.Flags().GetString("workspace")
	ws, err := config.OpenWorkspace(wsDir)
	if err != nil {
		return nil, err
	}

	configPath, _ := cmd.Flags().GetString("config")
	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = ws.LoadConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	cfg.MergeWithFlags(flagOverrides(cmd))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	e := &env{ws: ws, cfg: cfg, out: out, color: colorEnabled(out)}

	console := logger.NewConsoleLogger(out, cfg.LogLevel)
	loggers := []logger.Logger{console}
	if noFile, _ := cmd.Flags().GetBool("no-log-file"); !noFile {
		fileLog, err := logger.NewFileLoggerWithLevel(ws.LogDir(cfg), cfg.LogLevel)
		if err != nil {
			console.Warnf("run log disabled: %v", err)
		} else {
			e.fileLog = fileLog
			loggers = append(loggers, fileLog)
		}
	}
	e.log = logger.NewMultiLogger(loggers...)

	for _, w := range cfg.SchemaWarnings() {
		e.log.Warnf("%s", w)
	}
	e.log.Debugf("workspace %s", ws.Root)
	return e, nil
}

// Close releases the run log.
func (e *env) Close() {
	if e.fileLog != nil {
		e.fileLog.Close()
	}
}

// stage brackets fn with start and result lines. A failed result is an
// error; a partial one is only reported.
func (e *env) stage(name, detail string, fn func() (models.StageResult, error)) error {
	start := time.Now()
	e.log.LogStageStart(name, detail)

	res, err := fn()
	if res.Stage != "" {
		e.log.LogStageResult(res, time.Since(start))
	}
	if err != nil {
		return err
	}
	if res.Status == models.StatusFailure {
		return fmt.Errorf("%s failed", name)
	}
	return nil
}

// commandContext is cancelled on SIGINT or SIGTERM so stages can stop at
// their next batch boundary.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func colorEnabled(w io.Writer) bool {
	if color.NoColor {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// flagOverrides collects only the flags the user actually set.
func flagOverrides(cmd *cobra.Command) config.FlagOverrides {
	f := config.FlagOverrides{
		LogLevel:     stringFlag(cmd, "log-level"),
		MaxDepth:     intFlag(cmd, "max-depth"),
		MaxFileSize:  int64Flag(cmd, "max-file-size"),
		Timeout:      durationFlag(cmd, "timeout"),
		BatchTimeout: durationFlag(cmd, "batch-timeout"),
		Workers:      intFlag(cmd, "workers"),
		RulesPath:    stringFlag(cmd, "rules"),
		RulesMode:    stringFlag(cmd, "rules-mode"),
		ClusterMode:  stringFlag(cmd, "cluster-mode"),
		Seed:         int64Flag(cmd, "seed"),
		Target:       stringFlag(cmd, "target"),
		Conflict:     stringFlag(cmd, "conflict"),
	}
	// cluster spells its strategy flag --mode; organize's --mode is the
	// move mode and is not a config setting.
	if cmd.Name() == "cluster" {
		f.ClusterMode = stringFlag(cmd, "mode")
	}
	if changed(cmd, "include") {
		f.Include, _ = cmd.Flags().GetStringSlice("include")
	}
	if changed(cmd, "exclude") {
		f.Exclude, _ = cmd.Flags().GetStringSlice("exclude")
	}
	return f
}

func changed(cmd *cobra.Command, name string) bool {
	fl := cmd.Flags().Lookup(name)
	return fl != nil && fl.Changed
}

func stringFlag(cmd *cobra.Command, name string) *string {
	if !changed(cmd, name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

func intFlag(cmd *cobra.Command, name string) *int {
	if !changed(cmd, name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt(name)
	return &v
}

func int64Flag(cmd *cobra.Command, name string) *int64 {
	if !changed(cmd, name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt64(name)
	return &v
}

func durationFlag(cmd *cobra.Command, name string) *time.Duration {
	if !changed(cmd, name) {
		return nil
	}
	v, _ := cmd.Flags().GetDuration(name)
	return &v
}
