// Package cli builds the focus command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kingrea/focus/internal/config"
	"github.com/kingrea/focus/internal/logging"
	"github.com/kingrea/focus/internal/service"
)

// Version information, set from main.
var (
	version = "dev"
	commit  = "unknown"
)

// SetVersion records build information for the version command.
func SetVersion(v, c string) {
	version, commit = v, c
}

type globals struct {
	home    string
	verbose bool
	json    bool
	runtime []service.RuntimeOption
}

// NewRootCommand creates the root command. Runtime options are passed to
// every service the commands open.
func NewRootCommand(opts ...service.RuntimeOption) *cobra.Command {
	g := &globals{runtime: opts}
	cmd := &cobra.Command{
		Use:   "focus",
		Short: "focus - composable focus-session modules",
		Long: `focus loads capability modules (timers, blockers, music, lighting) from
plugin directories and runs them together as a focus session described by a
preset.

Run 'focus presets import <file>' to add a preset, then 'focus run <preset>'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&g.home, "home", "", "Data directory containing .focus (default: $FOCUS_HOME or the user home)")
	cmd.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Mirror logs to stderr")
	cmd.PersistentFlags().BoolVar(&g.json, "json", false, "Output in JSON format")

	cmd.AddCommand(
		newServeCommand(g),
		newRunCommand(g),
		newModulesCommand(g),
		newPresetsCommand(g),
		newRootsCommand(g),
		newTUICommand(g),
		newVersionCommand(),
	)
	return cmd
}

func (g *globals) loadConfig() (*config.Config, error) {
	home := g.home
	if home == "" {
		var err error
		if home, err = config.DefaultHome(); err != nil {
			return nil, err
		}
	}
	if err := config.InitFocusDir(home); err != nil {
		return nil, fmt.Errorf("init .focus directory: %w", err)
	}
	return config.NewConfig(home)
}

func (g *globals) newLogger(cfg *config.Config, stderr io.Writer) (*logging.Logger, error) {
	opts := []logging.Option{logging.WithLevel(cfg.Project.Log.Level)}
	if g.verbose {
		opts = append(opts, logging.WithConsole(stderr))
	}
	return logging.New(cfg.HomeDir, opts...)
}

// runtime bundles an opened service with what it was built from.
type runtime struct {
	cfg    *config.Config
	logger *logging.Logger
	svc    *service.Service
}

func (r *runtime) Close() {
	_ = r.svc.Close(context.Background())
	_ = r.logger.Close()
}

func (g *globals) open(cmd *cobra.Command) (*runtime, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := g.newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	svc, err := service.Open(cmd.Context(), cfg, logger, g.runtime...)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, svc: svc}, nil
}

func (g *globals) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "focus %s (%s)\n", version, commit)
		},
	}
}

// Execute runs the root command and exits non-zero on failure.
func Execute(ctx context.Context, root *cobra.Command) {
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
