package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/kingrea/focus/internal/bridge"
	"github.com/kingrea/focus/internal/eventbridge"
	"github.com/kingrea/focus/internal/logbook"
	"github.com/kingrea/focus/internal/session"
	"github.com/kingrea/focus/internal/tui"
	"github.com/kingrea/focus/internal/watch"
)

func newServeCommand(g *globals) *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP bridge and re-scan plugins as they change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			ctx := cmd.Context()
			log := rt.logger.Component("serve")

			server := bridge.NewServer(bridge.SettingsFromConfig(rt.cfg), rt.svc,
				bridge.WithLogger(rt.logger.Zerolog()))
			switch err := server.Start(ctx); {
			case errors.Is(err, bridge.ErrDisabled):
				log.Info().Msg("bridge disabled in config")
			case err != nil:
				return err
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "bridge listening on %s\n", server.BaseURL())
			}

			if !noWatch {
				watcher, err := watch.New(rt.cfg.SearchRoots(), rt.svc, watch.WithLogger(rt.logger.Zerolog()))
				if err != nil {
					return err
				}
				watcher.Start(ctx)
				defer watcher.Stop()
			}

			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not re-scan plugin directories on change")
	return cmd
}

func newRunCommand(g *globals) *cobra.Command {
	var (
		duration time.Duration
		follow   bool
	)
	cmd := &cobra.Command{
		Use:   "run <preset>",
		Short: "Start a preset and keep it running until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			out := cmd.OutOrStdout()

			active, err := rt.svc.StartSession(cmd.Context(), args[0])
			if err != nil {
				var startErr *session.StartError
				if errors.As(err, &startErr) && startErr.Field != "" {
					return fmt.Errorf("%s: setting %q is invalid: %w", startErr.InstanceID, startErr.Field, startErr.Cause)
				}
				return err
			}
			fmt.Fprintf(out, "session %s running preset %s\n", active.ID, args[0])
			for _, info := range active.Info() {
				fmt.Fprintf(out, "  %s (%s)\n", info.Label, info.Module)
			}

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			if follow {
				updates := rt.svc.SubscribeSettings(eventbridge.Wildcard)
				defer updates.Close()
				go func() {
					for update := range updates.Events {
						fmt.Fprintf(out, "  %s.%s %s = %s\n", update.InstanceID, update.Key, update.Property, update.Value.String())
					}
				}()
			}
			<-ctx.Done()

			stopErr := rt.svc.StopSession(context.WithoutCancel(ctx))
			fmt.Fprintln(out, "session stopped")
			return stopErr
		},
	}
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop the session after this long")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Print setting changes as they happen")
	return cmd
}

func newTUICommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the terminal monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			history, err := logbook.New(filepath.Join(rt.cfg.StateDir(), "history.log"))
			if err != nil {
				return err
			}
			app := tui.NewApp(rt.svc, tui.WithLogbook(history))
			defer app.Close()
			program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("run monitor: %w", err)
			}
			return nil
		},
	}
}
