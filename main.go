package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ezenkico/indi-stack/interfaces"
	"github.com/ezenkico/indi-stack/models"
	"github.com/ezenkico/indi-stack/services/docker"
	"github.com/ezenkico/indi-stack/services/readiness"
	"github.com/ezenkico/indi-stack/services/topology"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "indi-stack"
)

type globalOptions struct {
	configPath   string
	topologyPath string
	projectDir   string
	platform     string
	logLevel     string
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Deploy the INDI sandbox (device server + client) on Docker",
		Long: `indi-stack builds and runs a two-service INDI sandbox: an indiserver with
simulator drivers on 7624 and a client on 8888 that mounts the project
directory and waits for the server before serving health checks.

Without a subcommand, --config runs the action in a JSON configuration file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogger(opts.logLevel)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath == "" {
				return cmd.Help()
			}
			cfg, err := loadConfiguration(opts.configPath)
			if err != nil {
				return err
			}
			return runAction(opts, cfg)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Configuration file path (JSON)")
	flags.StringVarP(&opts.topologyPath, "topology", "f", "", "Topology file (YAML); the built-in sandbox when empty")
	flags.StringVar(&opts.projectDir, "project-dir", ".", "Base directory for build contexts and bind mounts")
	flags.StringVar(&opts.platform, "platform", "docker", "Container platform")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		validateCmd(opts),
		renderCmd(opts),
		buildCmd(opts),
		upCmd(opts),
		downCmd(opts),
		statusCmd(opts),
		logsCmd(opts),
		raceCmd(opts),
		probeCmd(),
		clientCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("%s version %s\n", appName, Version)
			},
		},
	)

	return cmd
}

func setupLogger(level string) {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func loadConfiguration(path string) (models.Configuration, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return models.Configuration{}, fmt.Errorf("read config file %q: %w", path, err)
	}

	var cfg models.Configuration
	if err := json.Unmarshal(b, &cfg); err != nil {
		return models.Configuration{}, fmt.Errorf("parse config json %q: %w", path, err)
	}

	return cfg, nil
}

// loadTopology resolves the topology in precedence order: inline in the
// configuration, the configuration's file, the --topology flag, built-in.
func loadTopology(opts *globalOptions, cfg models.Configuration) (models.Topology, error) {
	if cfg.Spec != nil {
		t := *cfg.Spec
		topology.ApplyDefaults(&t)
		return t, nil
	}
	path := cfg.Topology
	if path == "" {
		path = opts.topologyPath
	}
	if path == "" {
		return topology.Default(), nil
	}
	return topology.Load(path)
}

func selectPlatform(platform string) (interfaces.Platform, error) {
	switch platform {
	case "docker":
		p, err := newDockerPlatform()
		if err != nil {
			return nil, err
		}
		return p, nil
	// case "k8s":
	//     return k8s.New(...), nil
	default:
		return nil, fmt.Errorf("%q is not a valid platform", platform)
	}
}

func newDockerPlatform() (*docker.DockerPlatform, error) {
	return docker.NewDockerPlatform(slog.Default(), readiness.NewProber(slog.Default(), nil))
}

func runAction(opts *globalOptions, cfg models.Configuration) error {
	ctx, cancel := signalContext()
	defer cancel()

	t, err := loadTopology(opts, cfg)
	if err != nil {
		return err
	}
	cfg.Spec = &t
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = opts.projectDir
	}

	p, err := selectPlatform(opts.platform)
	if err != nil {
		return err
	}
	defer p.Close()

	return p.Run(ctx, cfg)
}
