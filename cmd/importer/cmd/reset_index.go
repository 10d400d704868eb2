package cmd

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"github.com/flowlens/flowlens/internal/common/flowlenscontext"
	"github.com/flowlens/flowlens/internal/common/flowlenserrors"
	"github.com/flowlens/flowlens/internal/importer"
	"github.com/flowlens/flowlens/internal/importer/checkpoint"
)

func resetIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resetIndex",
		Short: "resets the import progress of one entity type so that it is imported again; the importer must be stopped",
		RunE:  resetIndex,
	}
	cmd.Flags().String(
		"entityType",
		"",
		"Entity type whose progress is reset, e.g. process-definition or zeebe-variable")
	cmd.Flags().String(
		"dataSource",
		"",
		"Engine alias, or <zeebe name>-partition-<n> for a zeebe partition")
	_ = cmd.MarkFlagRequired("entityType")
	_ = cmd.MarkFlagRequired("dataSource")
	return cmd
}

func resetIndex(cmd *cobra.Command, _ []string) error {
	entityType, err := cmd.Flags().GetString("entityType")
	if err != nil {
		return errors.WithStack(err)
	}
	dataSource, err := cmd.Flags().GetString("dataSource")
	if err != nil {
		return errors.WithStack(err)
	}

	config, err := loadConfig()
	if err != nil {
		return err
	}
	if !slices.Contains(importer.DataSourceIds(config), dataSource) {
		return errors.WithStack(&flowlenserrors.ErrNotFound{
			Type:    "data source",
			Value:   dataSource,
			Message: "not an engine alias or zeebe partition of the configuration",
		})
	}
	ctx := flowlenscontext.Background()
	store, err := checkpoint.NewStore(ctx, config.Checkpoint)
	if err != nil {
		return errors.WithMessage(err, "failed to open checkpoint store")
	}
	defer store.Close()

	return importer.ResetIndex(ctx, store, entityType, dataSource)
}
