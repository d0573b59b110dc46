package hermes

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/SoftKiwiGames/hermes/hermes/ctxlog"
	"github.com/SoftKiwiGames/hermes/hermes/loader"
	"github.com/SoftKiwiGames/hermes/hermes/rest"
	"github.com/SoftKiwiGames/hermes/hermes/schema"
	"github.com/SoftKiwiGames/hermes/hermes/ui"
	"github.com/SoftKiwiGames/hermes/hermes/utils"
	"github.com/spf13/cobra"
)

type Hermes struct {
	stdout *os.File
	stderr *os.File
	loader *loader.Loader
	ui     *ui.Output

	configPath string
	logLevel   string
	logFormat  string
}

func New(stdout, stderr *os.File) *Hermes {
	return &Hermes{
		stdout: stdout,
		stderr: stderr,
		loader: loader.New(),
		ui:     ui.NewOutput(stdout, stderr),
	}
}

func (h *Hermes) Run() {
	rootCmd := &cobra.Command{
		Use:     "hermes",
		Short:   "Hermes - Eureka service discovery client",
		Long:    "Hermes registers services with a Eureka server, keeps their leases alive and resolves peers from a local registry cache.",
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&h.configPath, "config", "c", "", "Path to hermes.yaml (default: search current directory)")
	rootCmd.PersistentFlags().StringVar(&h.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&h.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(
		h.buildRegisterCommand(),
		h.buildAppsCommand(),
		h.buildResolveCommand(),
		h.buildStatusCommand(),
		h.buildMetadataCommand(),
		h.buildDeregisterCommand(),
		h.buildInitCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		h.ui.Error("%v", err)
		os.Exit(1)
	}
}

func (h *Hermes) buildRegisterCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "register",
		Short:         "Register the configured instance and maintain its lease until interrupted",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, err := h.buildClient()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if client.lease == nil {
				h.ui.Warning("Registration is disabled in config, only polling the registry")
			}
			h.ui.Info("Maintaining lease for %s (Ctrl+C to deregister and exit)", client.cfg.Instance.App)
			if err := client.Run(ctx); err != nil {
				return fmt.Errorf("lease maintenance failed: %w", err)
			}
			h.ui.Success("Deregistered %s", client.cfg.Instance.App)
			return nil
		},
	}
}

func (h *Hermes) buildAppsCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "apps",
		Short:         "List all apps and instances known to the Eureka server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, err := h.buildClient()
			if err != nil {
				return err
			}

			if err := client.Registry().Refresh(ctx); err != nil {
				return fmt.Errorf("failed to fetch registry: %w", err)
			}

			h.ui.Header("Eureka registry")
			h.ui.InstanceTable(client.Registry().Snapshot())
			return nil
		},
	}
}

func (h *Hermes) buildResolveCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "resolve [app]",
		Short:         "Print the address of a healthy instance of an app",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, err := h.buildClient()
			if err != nil {
				return err
			}

			if err := client.Registry().Refresh(ctx); err != nil {
				return fmt.Errorf("failed to fetch registry: %w", err)
			}

			addr, err := client.Resolve(args[0])
			if err != nil {
				return err
			}
			h.ui.Info("%s", addr)
			return nil
		},
	}
}

func (h *Hermes) buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "status [app] [instance] [status]",
		Short:         "Override an instance status (UP, DOWN, STARTING, OUT_OF_SERVICE, UNKNOWN)",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := rest.ParseStatus(args[2])
			if err != nil {
				return err
			}

			client, ctx, err := h.buildClient()
			if err != nil {
				return err
			}

			if err := client.REST().SetStatus(ctx, args[0], args[1], status); err != nil {
				return fmt.Errorf("failed to set status: %w", err)
			}
			h.ui.Success("%s/%s -> %s", args[0], args[1], status)
			return nil
		},
	}
}

func (h *Hermes) buildMetadataCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "metadata [app] [instance] [KEY=VALUE]",
		Short:         "Set one metadata key on an instance",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			parts := strings.SplitN(args[2], "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("invalid metadata format: %s (expected KEY=VALUE)", args[2])
			}

			client, ctx, err := h.buildClient()
			if err != nil {
				return err
			}

			if err := client.REST().SetMetadata(ctx, args[0], args[1], parts[0], parts[1]); err != nil {
				return fmt.Errorf("failed to set metadata: %w", err)
			}
			h.ui.Success("%s/%s %s=%s", args[0], args[1], parts[0], parts[1])
			return nil
		},
	}
}

func (h *Hermes) buildDeregisterCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "deregister [app] [instance]",
		Short:         "Remove an instance lease from the Eureka server",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, err := h.buildClient()
			if err != nil {
				return err
			}

			if err := client.REST().Deregister(ctx, args[0], args[1]); err != nil {
				return fmt.Errorf("failed to deregister: %w", err)
			}
			h.ui.Success("Deregistered %s/%s", args[0], args[1])
			return nil
		},
	}
}

// buildClient loads the config, wires the logger into a fresh context and
// constructs the client.
func (h *Hermes) buildClient() (*Client, context.Context, error) {
	cfg, err := h.loadConfig()
	if err != nil {
		return nil, nil, err
	}

	client, err := NewClient(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build client: %w", err)
	}

	ctx := ctxlog.WithLogger(context.Background(), newLogger(h.logLevel, h.logFormat, h.stderr))
	return client, ctx, nil
}

func (h *Hermes) loadConfig() (*schema.Config, error) {
	path := h.configPath
	if path == "" {
		found, err := h.loader.FindConfig(".")
		if err != nil {
			return nil, err
		}
		path = found
	}

	if !utils.FileHasValidExtension(path) {
		return nil, fmt.Errorf("unsupported config file extension: %s (expected .yaml or .yml)", path)
	}

	expanded, err := utils.ExpandPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	cfg, err := h.loader.LoadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
