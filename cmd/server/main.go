package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"panelqa-runner/internal/config"
	"panelqa-runner/internal/logging"
)

// Keys overridable from flags or PANELQA_* environment variables.
var overrides = []struct {
	key  string
	flag string
}{
	{"browser.debugger_url", "debugger-url"},
	{"workspace.work_dir", "work-dir"},
	{"logger.level", "log-level"},
	{"logger.file", "log-file"},
	{"mcp.sse_port", "sse-port"},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(viper.New())
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logging.Sync()
		os.Exit(1)
	}
	logging.Sync()
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	root := &cobra.Command{
		Use:           "panelqa",
		Short:         "Executes QA action plans against a live admin panel in Chrome.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "explicit config file layered over the workspace config")
	flags.String("workspace-dir", "", "use this directory as workspace root instead of discovering .panelqa/")
	flags.Bool("no-workspace", false, "skip workspace discovery")
	flags.String("debugger-url", "", "Chrome remote debugging endpoint (http://host:port or ws://...)")
	flags.String("work-dir", "", "working-file directory for CSVs, uploads and downloads")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "rotating log file")

	serve := newServeCmd(v)
	root.AddCommand(serve, newRunCmd(v), newInitCmd())

	v.SetEnvPrefix("PANELQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, name := range []string{"config", "workspace-dir", "no-workspace"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}
	for _, o := range overrides {
		if f := flags.Lookup(o.flag); f != nil {
			_ = v.BindPFlag(o.key, f)
		} else if f := serve.Flags().Lookup(o.flag); f != nil {
			_ = v.BindPFlag(o.key, f)
		}
	}
	return root
}

// loadConfig layers defaults, the workspace config, the explicit config and
// finally flags and environment.
func loadConfig(v *viper.Viper) (config.Config, string, error) {
	cfg, wsDir, err := config.LoadWithWorkspace(v.GetString("config"), config.WorkspaceOptions{
		Disable:     v.GetBool("no-workspace"),
		ExplicitDir: v.GetString("workspace-dir"),
	})
	if err != nil {
		return cfg, wsDir, err
	}
	if v.IsSet("browser.debugger_url") && v.GetString("browser.debugger_url") != "" {
		cfg.Browser.DebuggerURL = v.GetString("browser.debugger_url")
	}
	if v.IsSet("workspace.work_dir") && v.GetString("workspace.work_dir") != "" {
		cfg.Workspace.WorkDir = v.GetString("workspace.work_dir")
	}
	if v.IsSet("logger.level") && v.GetString("logger.level") != "" {
		cfg.Logger.Level = v.GetString("logger.level")
	}
	if v.IsSet("logger.file") && v.GetString("logger.file") != "" {
		cfg.Logger.File = v.GetString("logger.file")
	}
	if v.IsSet("mcp.sse_port") && v.GetInt("mcp.sse_port") > 0 {
		cfg.MCP.SSEPort = v.GetInt("mcp.sse_port")
	}
	return cfg, wsDir, cfg.Validate()
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the plan engine as MCP tools over stdio or SSE.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, wsDir, err := loadConfig(v)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := logging.Initialize(cfg.Logger, cfg.Server.Name)
			if wsDir != "" {
				log.Info("workspace", zap.String("dir", wsDir))
			}

			a, err := newApp(cfg, nil, log)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			ctx := cmd.Context()
			var startErr error
			if cfg.MCP.SSEPort > 0 {
				log.Info("starting MCP SSE server", zap.Int("port", cfg.MCP.SSEPort))
				startErr = a.server.StartSSE(ctx, cfg.MCP.SSEPort)
			} else {
				log.Info("starting MCP stdio server")
				startErr = a.server.Start(ctx)
			}
			if startErr != nil && !errors.Is(startErr, context.Canceled) {
				return fmt.Errorf("server exited: %w", startErr)
			}
			return nil
		},
	}
	cmd.Flags().Int("sse-port", 0, "serve over SSE on this port instead of stdio")
	return cmd
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Execute a plan file once against the active tab and print the log.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(v)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.Logger.Console = cfg.Logger.File == ""
			log := logging.Initialize(cfg.Logger, cfg.Server.Name)

			a, err := newApp(cfg, nil, log)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			return runPlanFile(cmd.Context(), a, args[0], cmd.OutOrStdout(), jsonOut)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the report as JSON")
	return cmd
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Create a .panelqa workspace with a template config.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			if err := config.InitWorkspace(root); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized workspace in %s\n", root)
			return nil
		},
	}
}

func runPlanFile(ctx context.Context, a *app, path string, out io.Writer, jsonOut bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read plan: %w", err)
	}
	report, err := a.engine.ExecuteText(ctx, string(raw))
	if err != nil {
		return err
	}
	if jsonOut {
		enc, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(enc))
		return err
	}
	if report.RunID != "" {
		fmt.Fprintf(out, "run %s (%s)\n", report.RunID, report.Took)
	}
	for i, e := range report.Logs {
		fmt.Fprintf(out, "%3d  %-8s %-24s %s\n", i+1, e.Status, e.Step, e.Details)
	}
	return nil
}
