package main

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ezenkico/indi-stack/models"
	"github.com/ezenkico/indi-stack/services/client"
	"github.com/ezenkico/indi-stack/services/docker"
	"github.com/ezenkico/indi-stack/services/readiness"
	"github.com/ezenkico/indi-stack/services/recipe"
	"github.com/ezenkico/indi-stack/services/topology"
	"github.com/spf13/cobra"
)

func servicesArg(args []string) *[]string {
	if len(args) == 0 {
		return nil
	}
	return &args
}

func validateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the topology without contacting Docker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := loadTopology(opts, models.Configuration{})
			if err != nil {
				return err
			}
			if err := docker.CheckTopology(t); err != nil {
				return err
			}
			slog.Info("Topology is valid", "project", t.Name, "services", len(t.Services))
			return nil
		},
	}
}

func renderCmd(opts *globalOptions) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "render [compose|dockerfile SERVICE|topology]",
		Short: "Print the equivalent compose file, a Dockerfile or the resolved topology",
		Args:  cobra.RangeArgs(0, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := loadTopology(opts, models.Configuration{})
			if err != nil {
				return err
			}

			if outDir != "" {
				written, err := topology.WriteFiles(t, outDir)
				if err != nil {
					return err
				}
				for _, p := range written {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			}

			what := "compose"
			if len(args) > 0 {
				what = args[0]
			}

			var out []byte
			switch what {
			case "compose":
				out, err = topology.RenderCompose(t)
			case "topology":
				out, err = topology.Marshal(t)
			case "dockerfile":
				if len(args) != 2 {
					return fmt.Errorf("render dockerfile needs a service name")
				}
				svc, ok := t.Services[args[1]]
				if !ok {
					return fmt.Errorf("service %q does not exist", args[1])
				}
				if svc.Build == nil {
					return fmt.Errorf("service %q has no build recipe", args[1])
				}
				var s string
				s, err = recipe.RenderDockerfile(*svc.Build)
				out = []byte(s)
			default:
				return fmt.Errorf("unknown render target %q", what)
			}
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Write docker-compose.yml and Dockerfiles into this directory")
	return cmd
}

func buildCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "build [SERVICE...]",
		Short: "Build service images",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts, models.Configuration{
				Action:   models.ActionBuild,
				Services: servicesArg(args),
			})
		},
	}
}

func upCmd(opts *globalOptions) *cobra.Command {
	var (
		skipReadiness bool
		probeHost     string
	)

	cmd := &cobra.Command{
		Use:   "up [SERVICE...]",
		Short: "Build missing images and start services in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts, models.Configuration{
				Action:        models.ActionUp,
				SkipReadiness: skipReadiness,
				ProbeHost:     probeHost,
				Services:      servicesArg(args),
			})
		},
	}

	cmd.Flags().BoolVar(&skipReadiness, "skip-readiness", false, "Start dependents as soon as dependencies are started")
	cmd.Flags().StringVar(&probeHost, "probe-host", "", "Host that published ports are probed on (default 127.0.0.1)")
	return cmd
}

func downCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "down [SERVICE...]",
		Short: "Stop and remove the project's containers and networks, or only the named services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(opts, models.Configuration{
				Action:   models.ActionDown,
				Services: servicesArg(args),
			})
		},
	}
}

func statusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List the project's containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			t, err := loadTopology(opts, models.Configuration{})
			if err != nil {
				return err
			}
			p, err := newDockerPlatform()
			if err != nil {
				return err
			}
			defer p.Close()
			p.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())

			return p.PrintStatus(ctx, t.Name)
		},
	}
}

func logsCmd(opts *globalOptions) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs SERVICE",
		Short: "Print a service's container logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			t, err := loadTopology(opts, models.Configuration{})
			if err != nil {
				return err
			}
			p, err := newDockerPlatform()
			if err != nil {
				return err
			}
			defer p.Close()
			p.SetOutput(cmd.OutOrStdout(), cmd.ErrOrStderr())

			return p.Logs(ctx, t, args[0], follow)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	return cmd
}

func raceCmd(opts *globalOptions) *cobra.Command {
	var raceOpts docker.RaceOptions

	cmd := &cobra.Command{
		Use:   "race [SERVICE]",
		Short: "Restart a running service and dial its port the moment the container starts",
		Long: `race measures how often a freshly started container refuses connections
on its readiness port. Any refusal means a dependent started in plain
dependency order can race the server.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			t, err := loadTopology(opts, models.Configuration{})
			if err != nil {
				return err
			}
			service := topology.ServerService
			if len(args) == 1 {
				service = args[0]
			}

			p, err := newDockerPlatform()
			if err != nil {
				return err
			}
			defer p.Close()

			report, err := p.RaceCheck(ctx, t, service, raceOpts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), report.String())
			return nil
		},
	}

	cmd.Flags().IntVar(&raceOpts.Cycles, "cycles", 5, "Restart cycles")
	cmd.Flags().DurationVar(&raceOpts.Window, "window", 10*time.Second, "How long to wait for the port each cycle")
	cmd.Flags().StringVar(&raceOpts.ProbeHost, "probe-host", "", "Host that published ports are probed on (default 127.0.0.1)")
	return cmd
}

func probeCmd() *cobra.Command {
	policy := readiness.DefaultPolicy()

	cmd := &cobra.Command{
		Use:   "probe ENDPOINT",
		Short: "Wait until an endpoint (tcp://host:port, host:port, unix:///path) accepts connections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			ep, err := readiness.ParseEndpoint(args[0])
			if err != nil {
				return err
			}
			res, err := readiness.NewProber(slog.Default(), nil).Probe(ctx, ep, policy)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ready after %d attempts (%s)\n",
				res.Endpoint, res.Attempts, res.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().DurationVar(&policy.Timeout, "timeout", policy.Timeout, "Give up after this long")
	cmd.Flags().DurationVar(&policy.MaxInterval, "max-interval", policy.MaxInterval, "Longest wait between attempts")
	return cmd
}

func clientCmd() *cobra.Command {
	var (
		listenAddr string
		server     string
		watchDir   string
		ignore     []string
		noWait     bool
		policy     = readiness.DefaultPolicy()
	)

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Run the client: wait for the device server, then serve /health and /metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			var (
				ep  readiness.Endpoint
				err error
			)
			if server != "" {
				ep, err = readiness.ParseEndpoint(server)
			} else {
				ep, err = readiness.EndpointFromEnv("INDI_SERVER", client.DefaultServer)
			}
			if err != nil {
				return err
			}

			if listenAddr == "" {
				listenAddr = envOr("LISTEN_ADDR", client.DefaultListenAddr)
			}
			if watchDir == "" {
				watchDir = os.Getenv("WATCH_DIR")
			}
			if !cmd.Flags().Changed("watch-ignore") {
				ignore = nil
			}

			c := client.New(client.Config{
				ListenAddr:    listenAddr,
				Server:        ep,
				WaitForServer: !noWait,
				Policy:        policy,
				WatchDir:      watchDir,
				WatchIgnore:   ignore,
			}, slog.Default())

			return c.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "HTTP listen address (env LISTEN_ADDR, default "+client.DefaultListenAddr+")")
	cmd.Flags().StringVar(&server, "server", "", "Device server endpoint (env INDI_SERVER, default "+client.DefaultServer+")")
	cmd.Flags().StringVar(&watchDir, "watch", "", "Source directory to watch for changes (env WATCH_DIR)")
	cmd.Flags().StringSliceVar(&ignore, "watch-ignore", sortedCopy(client.DefaultWatchIgnore), "Doublestar patterns ignored by the watcher")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "Serve immediately without waiting for the device server")
	cmd.Flags().DurationVar(&policy.Timeout, "wait-timeout", policy.Timeout, "How long to wait for the device server")
	return cmd
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
