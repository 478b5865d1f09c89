package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gookit/color"
	"github.com/goplus/kiln/internal/config"
	"github.com/goplus/kiln/internal/ctxlog"
	"github.com/goplus/kiln/internal/env"
	"github.com/spf13/cobra"
)

// Exit codes of the kiln command.
const (
	exitOK       = 0
	exitResolve  = 1
	exitFailures = 2
)

var (
	colInfo    = color.Info
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
	colNote    = color.Tag("notice")
)

var (
	configFile string
	verbose    bool

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "kiln builds native packages from recipes",
	Long: `kiln resolves the requirement graph of one or more recipes, propagates
option values across it and builds every package in dependency order.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (default <user cache>/.kiln/config.hcl)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCode maps err to the exit code of the process.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return exitResolve
}

func setup(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))

	path, required := configFile, configFile != ""
	if path == "" {
		var err error
		if path, err = env.ConfigFile(); err != nil {
			return err
		}
	}
	c, err := config.Load(path, required)
	if err != nil {
		return err
	}
	cfg = c
	return nil
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		var ee *ExitError
		if !errors.As(err, &ee) || ee.Err != nil {
			fmt.Fprintln(os.Stderr, colError.Sprint("error:"), err)
		}
	}
	return exitCode(err)
}
