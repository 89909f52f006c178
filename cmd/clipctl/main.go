package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mateer-t1/music-moments-api/pkg/clips/config"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clipctl",
		Short: "Administrative tool for the music moments clip store",
		Long: `clipctl operates on the same record store and object store as the API
server, configured through the same environment variables.

Environment:
` + config.Usage(),
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringSlice("env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(NewReconcileCommand())
	rootCmd.AddCommand(NewGrantCommand())
	rootCmd.AddCommand(NewUploadCommand())

	return rootCmd
}

// buildComponents loads configuration the way the server does and wires the stores
func buildComponents(cmd *cobra.Command) (*config.ServerConfig, *config.Components, error) {
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(config.WithDotEnv(envFiles...), config.WithEnv())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}

	comps, err := cfg.BuildComponents(cmd.Context(), config.NewLogger(cfg.Environment, level))
	if err != nil {
		return nil, nil, err
	}
	return cfg, comps, nil
}
