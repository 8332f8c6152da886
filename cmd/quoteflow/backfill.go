package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/quoteflow-backend/internal/app"
)

var backfillLimit int

var backfillSegmentsCmd = &cobra.Command{
	Use:   "backfill-segments",
	Short: "Parse transcript segments for uploads stored before segmenting existed",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signalContext()
		defer stop()

		a, err := app.New(ctx, cfg, version)
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Services.Uploads.BackfillSegments(ctx, backfillLimit)
		if err != nil {
			return fmt.Errorf("backfill segments: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "segmented %d uploads\n", n)
		return nil
	},
}

func init() {
	backfillSegmentsCmd.Flags().IntVar(&backfillLimit, "limit", 0, "max uploads to process in this pass (default 100)")
}
