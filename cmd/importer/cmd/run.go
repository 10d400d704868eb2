package cmd

import (
	"github.com/spf13/cobra"
	"k8s.io/utils/clock"

	"github.com/flowlens/flowlens/internal/common"
	"github.com/flowlens/flowlens/internal/common/app"
	"github.com/flowlens/flowlens/internal/common/logging"
	"github.com/flowlens/flowlens/internal/importer"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs the importer until it receives SIGINT or SIGTERM",
		RunE:  runImporter,
	}
	return cmd
}

func runImporter(_ *cobra.Command, _ []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := app.CreateContextWithShutdown()

	shutdownMetrics := common.ServeMetrics(config.MetricsPort)
	defer shutdownMetrics()

	i, err := importer.New(ctx, config, clock.RealClock{})
	if err != nil {
		return err
	}
	defer func() {
		if err := i.Close(); err != nil {
			logging.WithStacktrace(ctx.Log, err).Warn("Failed to close importer stores")
		}
	}()

	ctx.Log.Infof("Starting import from %d engines", len(config.Engines))
	return i.Run(ctx)
}
