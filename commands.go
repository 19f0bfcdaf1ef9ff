package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"centris_importer/api"
	"centris_importer/config"
	"centris_importer/logging"
	"centris_importer/scheduler"
	"centris_importer/services"
	"centris_importer/storage"
)

type commandContext struct {
	cfg     *config.Config
	logFile *logging.RotatingWriter
}

func (c *commandContext) load() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg

	rw, err := logging.Setup(cfg.LogFile, cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		slog.Warn("could not set up file logging", "error", err)
	}
	c.logFile = rw
	return nil
}

func (c *commandContext) close() {
	if c.logFile != nil {
		c.logFile.Close()
	}
}

func newRootCommand() (*cobra.Command, *commandContext) {
	cc := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "centris-importer",
		Short:         "Import real-estate listings into application storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cc.load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCommand(cc))
	rootCmd.AddCommand(newImportCommand(cc))
	rootCmd.AddCommand(newRunsCommand(cc))
	return rootCmd, cc
}

func newServeCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and run-log retention",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			logger := slog.Default()

			a, err := newApp(ctx, cc.cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := scheduler.New(cc.cfg.Retention, a.runs, logger)
			if err := sched.Start(ctx); err != nil {
				return err
			}
			defer sched.Stop()

			srv := api.NewServer(cc.cfg.Server, a.importer, a.authenticator(), logger)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Stop(shutdownCtx)
		},
	}
}

func newImportCommand(cc *commandContext) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "import <url>",
		Short: "Import one listing and print the stored record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if cc.cfg.Server.ImportTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cc.cfg.Server.ImportTimeout)
				defer cancel()
			}

			a, err := newApp(ctx, cc.cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.importer.Import(ctx, services.ImportRequest{URL: args[0], UserID: userID})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result.Listing)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "Owner user id for the imported listing")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newRunsCommand(cc *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent import runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			runs, err := storage.NewRunLog(cc.cfg.DBPath)
			if err != nil {
				return err
			}
			defer runs.Close()

			recent, err := runs.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(recent) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No import runs recorded.")
				return nil
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"ID", "Started", "Status", "Images", "Errors", "URL", "Error"})
			for _, r := range recent {
				tw.AppendRow(table.Row{
					strconv.FormatInt(r.ID, 10),
					r.StartedAt.Local().Format("2006-01-02 15:04"),
					string(r.Status),
					fmt.Sprintf("%d/%d", r.ImagesSaved, r.CandidatesFound),
					r.ImageErrors,
					r.URL,
					truncate(r.ErrorMessage, 60),
				})
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	return cmd
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
