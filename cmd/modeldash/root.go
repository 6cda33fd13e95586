package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"modeldash/internal/config"
)

// options holds flag values. Only flags the user set override the config.
type options struct {
	configPath      string
	addr            string
	refreshInterval time.Duration
	logLevel        string
	logFormat       string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "modeldash [backend-url]",
		Short: "Operator dashboard for a local model daemon",
		Long: `modeldash mirrors the installed and running models of an Ollama-style
daemon, keeps them fresh by polling, and serves a JSON API with a live event
stream for deleting, pulling and creating models.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		Version:      version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, args)
		},
	}
	root.SetVersionTemplate(`{{printf "modeldash version %s\n" .Version}}`)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "config file (.yaml, .json, .toml); default "+config.DefaultPath+" if present")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: console or json")
	pf.Var((*intervalFlag)(&opts.refreshInterval), "refresh-interval", "poll interval as a duration (90s, 2m) or whole seconds (60) (default 60s)")

	root.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default :8080)")

	root.AddCommand(newServeCmd(opts), newLsCmd(opts))
	return root
}

func newServeCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "serve [backend-url]",
		Short:        "Poll the daemon and serve the dashboard API",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts, args)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default :8080)")
	return cmd
}

// resolveConfig applies, in increasing precedence: defaults, MODELDASH_*
// environment, the config file, flags and the positional backend URL.
func resolveConfig(cmd *cobra.Command, opts *options, args []string, lookup func(string) (string, bool)) (config.Config, error) {
	cfg := config.Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		return cfg, err
	}
	var file config.Config
	var err error
	if opts.configPath != "" {
		file, err = config.Load(opts.configPath)
	} else {
		file, err = config.LoadDefault()
	}
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	cfg = cfg.Merge(file)

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = opts.addr
	}
	if flags.Changed("refresh-interval") {
		cfg.RefreshInterval = config.Duration(opts.refreshInterval)
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = opts.logFormat
	}
	if len(args) > 0 {
		cfg.BackendURL = args[0]
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func lookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

// intervalFlag is a duration flag that also takes a bare number of seconds.
type intervalFlag time.Duration

func (f *intervalFlag) String() string { return time.Duration(*f).String() }

func (f *intervalFlag) Type() string { return "duration" }

func (f *intervalFlag) Set(s string) error {
	if n, err := strconv.Atoi(s); err == nil {
		*f = intervalFlag(time.Duration(n) * time.Second)
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("want a duration or whole seconds: %w", err)
	}
	*f = intervalFlag(d)
	return nil
}
