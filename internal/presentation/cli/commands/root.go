// Package commands implements the CLI commands for flowctl.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/speckit/flowctl/internal/application"
	"github.com/speckit/flowctl/internal/infrastructure/config"
	"github.com/speckit/flowctl/internal/infrastructure/feature"
	"github.com/speckit/flowctl/internal/infrastructure/git"
	"github.com/speckit/flowctl/internal/presentation/cli/output"
)

// Version information - set at build time via ldflags.
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// GlobalFlags holds the global CLI flags.
type GlobalFlags struct {
	ConfigFile string
	Output     string
	Verbose    bool
}

// AppContext holds the application runtime context.
type AppContext struct {
	Config    *config.Config
	Formatter *output.Formatter
	Flags     *GlobalFlags
	Container *application.Container
	Ctx       context.Context
	cancel    context.CancelFunc
}

var (
	globalFlags GlobalFlags
	appCtx      *AppContext
	appCtxMu    sync.RWMutex // Protects appCtx for thread-safe access
)

// NewRootCmd creates the root command for the flowctl CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "flowctl",
		Short: "Orchestrate multiple concurrent AI coding-agent sessions over one repository",
		Long: `flowctl drives several AI coding-agent sessions in parallel against one
git repository: it splits a task list into a dependency graph, assigns
tasks to sessions, runs each topological phase while sessions work in
isolated worktrees, checkpoints progress after every phase, and merges
each session's branch sequentially once work is done.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" {
				return nil
			}
			return initializeApp()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&globalFlags.ConfigFile, "config", "c", "", "config file path (default: .speckit/speckit-flow.yaml)")
	rootCmd.PersistentFlags().StringVarP(&globalFlags.Output, "output", "o", "text", "output format: text, json")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.AddCommand(NewVersionCmd())
	rootCmd.AddCommand(NewInitCmd())
	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewStatusCmd())
	rootCmd.AddCommand(NewMergeCmd())
	rootCmd.AddCommand(NewAbortCmd())

	return rootCmd
}

// initializeApp resolves the repository root, loads configuration, and
// builds the application container every command but help/version/completion
// depends on.
func initializeApp() error {
	format := output.FormatText
	if globalFlags.Output == "json" {
		format = output.FormatJSON
	}

	formatter := output.NewFormatter(
		output.WithFormat(format),
		output.WithColor(format != output.FormatJSON && output.IsColorSupported()),
	)

	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	gitMgr, err := git.NewWorktreeManager()
	if err != nil {
		return err
	}

	repoRoot, err := feature.RepoRoot(gitMgr, cwd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(repoRoot, globalFlags.ConfigFile)
	if err != nil {
		if globalFlags.Verbose {
			formatter.Warning("could not load config: %v, using defaults", err)
		}
		cfg = config.NewDefaultConfig()
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	container, err := application.NewContainer(ctx, repoRoot, cfg, formatter)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	appCtxMu.Lock()
	appCtx = &AppContext{
		Config:    cfg,
		Formatter: formatter,
		Flags:     &globalFlags,
		Container: container,
		Ctx:       ctx,
		cancel:    cancel,
	}
	appCtxMu.Unlock()

	return nil
}

// loadConfig loads configuration from repoRoot's .speckit directory, or
// configPath if given.
func loadConfig(repoRoot, configPath string) (*config.Config, error) {
	loader, err := config.NewLoader(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}
	return loader.Load(configPath)
}

// GetAppContext returns the current application context, or nil if the
// app hasn't been initialized.
func GetAppContext() *AppContext {
	appCtxMu.RLock()
	defer appCtxMu.RUnlock()
	return appCtx
}

// GetFormatter returns the output formatter, or a default one if the app
// context is not initialized.
func GetFormatter() *output.Formatter {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Formatter
	}
	return output.NewFormatter()
}

// GetContainer returns the application container, or nil if the app
// hasn't been initialized.
func GetContainer() *application.Container {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Container
	}
	return nil
}

// GetRunContext returns the cancellable context commands should propagate
// into blocking operations, so a signal can interrupt them cooperatively.
func GetRunContext() context.Context {
	appCtxMu.RLock()
	ctx := appCtx
	appCtxMu.RUnlock()

	if ctx != nil {
		return ctx.Ctx
	}
	return context.Background()
}

// Shutdown cancels the application context and flushes the tracer.
func Shutdown() {
	appCtxMu.Lock()
	ctx := appCtx
	appCtxMu.Unlock()

	if ctx == nil {
		return
	}
	if ctx.cancel != nil {
		ctx.cancel()
	}
	if ctx.Container != nil {
		_ = ctx.Container.Shutdown(context.Background())
	}
}

// Execute runs the root command with cooperative-cancellation signal
// handling: SIGINT/SIGTERM cancel the run context. An in-progress Run then
// ends its current phase wait, or does not start its next phase, with the
// state it has already saved left in place for a later resume.
func Execute() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		rootCmd := NewRootCmd()
		errChan <- rootCmd.Execute()
	}()

	select {
	case err := <-errChan:
		Shutdown()
		if err != nil {
			formatter := GetFormatter()
			formatter.Error("%s", err.Error())
			os.Exit(1)
		}
	case sig := <-sigChan:
		formatter := GetFormatter()
		formatter.Warning("received signal %v, stopping...", sig)
		Shutdown()
		if err := <-errChan; err != nil {
			formatter.Error("%s", err.Error())
		}
		os.Exit(130)
	}
}
