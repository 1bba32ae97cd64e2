// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/skjsjhb/LCAP/internal/browser"
	"github.com/skjsjhb/LCAP/internal/capture"
	"github.com/skjsjhb/LCAP/internal/config"
	"github.com/skjsjhb/LCAP/internal/observability"
	"github.com/skjsjhb/LCAP/internal/orchestrator"
	"github.com/skjsjhb/LCAP/internal/output"
	"github.com/skjsjhb/LCAP/internal/session"
)

// Seams for tests.
var (
	initLogger      = observability.InitializeLogger
	newFs           = afero.NewOsFs
	cacheRootFor    = session.CacheRoot
	newLauncher     = browser.ChromeLauncher
	newOrchestrator = orchestrator.New
)

// ExitError carries a non-zero exit code out of the command. Err is nil when
// the code is an ordinary result, such as a captured error or a closed window.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// flagBindings maps CLI flags onto configuration keys.
var flagBindings = map[string]string{
	"part-id":   "capture.part_id",
	"start-url": "capture.start_url",
	"title":     "capture.title",
	"code-tag":  "capture.code_tag",
	"error-tag": "capture.error_tag",
	"file":      "capture.file",
	"log-level": "logger.level",
}

// NewRootCommand builds a fresh root command with its own viper instance.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "lcap",
		Short: "Capture an OAuth authorization code through a browser window.",
		Long: `lcap opens a browser window on an authorization page and waits for the
redirect that carries the authorization code or an error. The result is
printed as LCAP:CODE=<code> or LCAP:ERR=<error>.

Exit status is 0 when a code was captured and 1 otherwise.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(v, cfgFile, cmd.Flags()); err != nil {
				return err
			}
			return runCapture(cmd.Context(), cmd, v)
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "lcap version %s\n" .Version}}`)

	flags := rootCmd.Flags()
	flags.StringP("part-id", "p", "", "session partition UUID; a random one is used when empty or invalid")
	flags.StringP("start-url", "s", config.DefaultStartURL, "URL to open first")
	flags.StringP("title", "t", "LCAP", "window title")
	flags.StringP("code-tag", "c", "code", "query parameter carrying the authorization code")
	flags.StringP("error-tag", "e", "error", "query parameter carrying the error")
	flags.StringP("file", "f", "", "write the result to this file instead of stdout")
	flags.IntP("wait-timeout", "w", 5000, "milliseconds to keep a window for a known session hidden")
	flags.StringVar(&cfgFile, "config", "", "optional YAML config file")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")

	return rootCmd
}

// initializeConfig layers defaults, the config file, LCAP_* environment
// variables and explicitly set flags, in increasing priority.
func initializeConfig(v *viper.Viper, cfgFile string, flags *pflag.FlagSet) error {
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("LCAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagBindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}

	// The flag is in milliseconds, the config key is a duration.
	if flags.Changed("wait-timeout") {
		ms, err := flags.GetInt("wait-timeout")
		if err != nil {
			return err
		}
		v.Set("capture.wait_timeout", time.Duration(ms)*time.Millisecond)
	}
	return nil
}

func runCapture(ctx context.Context, cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		return err
	}

	initLogger(cfg.Logger)
	logger := observability.GetLogger()
	logger.Debug("Starting LCAP.", zap.String("version", Version))

	partition, generated := session.ResolvePartition(cfg.Capture.PartID)
	if generated && cfg.Capture.PartID != "" {
		logger.Debug("Invalid partition id, using a fresh one.", zap.String("given", cfg.Capture.PartID))
	}
	cacheRoot := cacheRootFor(partition)
	logger.Debug("Partition resolved.", zap.Stringer("partition", partition), zap.String("cache_root", cacheRoot))

	target := output.Stdout()
	if cfg.Capture.File != "" {
		target = output.File(cfg.Capture.File)
	}

	fs := newFs()
	sink := output.NewSink(target, fs, cmd.OutOrStdout())

	orch, err := newOrchestrator(orchestrator.Config{
		StartURL: cfg.Capture.StartURL,
		Title:    cfg.Capture.Title,
		Rules: capture.Config{
			CodeParam:  cfg.Capture.CodeTag,
			ErrorParam: cfg.Capture.ErrorTag,
		},
		Output:            target,
		VisibilityTimeout: cfg.Capture.WaitTimeout,
	}, cacheRoot, newLauncher(cfg.Browser, logger), fs, sink, logger)
	if err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("failed to initialize: %w", err)}
	}

	code, err := orch.Run(ctx)
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

// Execute runs the root command and returns the process exit status.
func Execute(ctx context.Context) int {
	return execute(ctx, NewRootCommand())
}

func execute(ctx context.Context, rootCmd *cobra.Command) int {
	err := rootCmd.ExecuteContext(ctx)
	defer observability.Sync()
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Err != nil {
			observability.GetLogger().Error("Capture failed.", zap.Error(exitErr.Err))
		}
		return exitErr.Code
	}

	// Flag and configuration problems surface before the logger exists.
	fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
	return 1
}
