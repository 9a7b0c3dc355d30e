package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dispatchd/internal/common/fsutil"
	"dispatchd/internal/config"
	"dispatchd/pkg/types"
)

// cliOptions collects every flag of the command tree.
type cliOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string

	addr  string
	spawn bool

	mode   string
	task   string
	model  string
	stream bool

	maxRetries int
}

// Swappable for tests.
var (
	fnServe        = serve
	fnDispatch     = runDispatch
	fnPortsStatus  = portsStatus
	fnPortsResolve = portsResolve
)

// buildRootCmd wires the command tree to opts. Results go to out, logs to
// errOut.
func buildRootCmd(opts *cliOptions, out, errOut io.Writer) *cobra.Command {
	var (
		cfg config.Config
		log zerolog.Logger
	)
	root := &cobra.Command{
		Use:           "dispatchd",
		Short:         "Dispatch generation requests across local Ollama backends",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (.yaml, .yml, .json or .toml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Dotenv file loaded before DISPATCHD_* overrides")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults DISPATCHD_LOG_LEVEL or info)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: console|json")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		c, err := loadConfig(cmd, opts)
		if err != nil {
			return err
		}
		cfg = c
		log = newLogger(cfg.LogLevel, cfg.LogFormat, errOut)
		return nil
	}

	serveCmd := &cobra.Command{Use: "serve", Short: "Run the HTTP API", Example: "  dispatchd serve --addr :8080 --spawn", RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return fnServe(ctx, cfg, log)
	}}
	serveCmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address, e.g. :8080")
	serveCmd.Flags().BoolVar(&opts.spawn, "spawn", false, "Launch backends on free pool ports at startup")

	dispatchCmd := &cobra.Command{Use: "dispatch <prompt>", Short: "Dispatch one prompt in-process and print the result as JSON", Example: "  dispatchd dispatch --mode race \"write a haiku\"\n  dispatchd dispatch --mode pooled --stream \"hello\"", Args: cobra.MinimumNArgs(1), RunE: func(cmd *cobra.Command, args []string) error {
		req := types.DispatchRequest{
			Prompt:          strings.Join(args, " "),
			TaskDescription: opts.task,
			Mode:            opts.mode,
			Model:           opts.model,
			Stream:          opts.stream,
		}
		return fnDispatch(cmd.Context(), cfg, log, req, out)
	}}
	dispatchCmd.Flags().StringVar(&opts.mode, "mode", "race", "Dispatch mode: pooled|race (a|b)")
	dispatchCmd.Flags().StringVar(&opts.task, "task", "", "Task description used by the local strategies")
	dispatchCmd.Flags().StringVar(&opts.model, "model", "", "Model for pooled mode (defaults to the configured model)")
	dispatchCmd.Flags().BoolVar(&opts.stream, "stream", false, "Print progress events as NDJSON before the result")

	portsCmd := &cobra.Command{Use: "ports", Short: "Inspect and resolve backend ports", RunE: func(cmd *cobra.Command, args []string) error {
		return fmt.Errorf("ports requires a subcommand: status|resolve")
	}}
	portsStatusCmd := &cobra.Command{Use: "status", Short: "Check the managed port range", RunE: func(cmd *cobra.Command, args []string) error {
		return fnPortsStatus(cmd.Context(), cfg, log, out)
	}}
	portsResolveCmd := &cobra.Command{Use: "resolve", Short: "Obtain a usable port; a launched backend runs until interrupted", RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return fnPortsResolve(ctx, cfg, log, opts.maxRetries, out)
	}}
	portsResolveCmd.Flags().IntVar(&opts.maxRetries, "max-retries", 0, "Attempts before giving up (0 uses max_retries from config)")
	portsCmd.AddCommand(portsStatusCmd, portsResolveCmd)

	root.AddCommand(serveCmd, dispatchCmd, portsCmd)
	return root
}

// loadConfig layers the config file, the dotenv file, DISPATCHD_* variables
// and finally explicitly set flags.
func loadConfig(cmd *cobra.Command, opts *cliOptions) (config.Config, error) {
	envFile, err := fsutil.ExpandHome(opts.envFile)
	if err != nil {
		return config.Config{}, err
	}
	if err := config.LoadEnvFile(envFile); err != nil {
		return config.Config{}, fmt.Errorf("env file: %w", err)
	}
	var cfg config.Config
	if opts.configPath != "" {
		path, err := fsutil.ExpandHome(opts.configPath)
		if err != nil {
			return config.Config{}, err
		}
		c, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = c
	}
	if err := cfg.ApplyEnv(); err != nil {
		return config.Config{}, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.LogFormat = opts.logFormat
	}
	if f := cmd.Flags().Lookup("addr"); f != nil && f.Changed {
		cfg.Addr = opts.addr
	}
	if f := cmd.Flags().Lookup("spawn"); f != nil && f.Changed {
		cfg.Spawn = opts.spawn
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// MainWithArgs runs the CLI and returns the process exit code: 0 on
// success, 1 on error, 2 when no command is given.
func MainWithArgs(args []string) int {
	return mainWith(args, os.Stdout, os.Stderr)
}

func mainWith(args []string, out, errOut io.Writer) int {
	root := buildRootCmd(&cliOptions{}, out, errOut)
	root.SetOut(out)
	root.SetErr(errOut)
	if len(args) == 0 {
		_ = root.Usage()
		return 2
	}
	root.SetArgs(args)
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(errOut, "Error:", err.Error())
		return 1
	}
	return 0
}
