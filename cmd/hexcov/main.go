// Command hexcov loads hexagonal population and coverage snapshots and
// answers radius queries, coverage aggregations and boundary extractions.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to read .env", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var flags globalFlags
	rootCmd := &cobra.Command{
		Use:           "hexcov",
		Short:         "Population and signal coverage over H3 hexagons",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.population, "population", "", "population snapshot (overrides POPULATION_FILE)")
	rootCmd.PersistentFlags().StringVar(&flags.output, "output", "", "output directory (overrides OUTPUT_DIR)")

	rootCmd.AddCommand(serveCmd(&flags))
	rootCmd.AddCommand(radiusCmd(&flags))
	rootCmd.AddCommand(aggregateCmd(&flags))
	rootCmd.AddCommand(statesCmd(&flags))
	rootCmd.AddCommand(worstCmd(&flags))
	rootCmd.AddCommand(boundaryCmd(&flags))
	rootCmd.AddCommand(locationsCmd(&flags))
	rootCmd.AddCommand(enrichCmd(&flags))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}
