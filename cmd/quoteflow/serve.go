package main

import (
	"github.com/spf13/cobra"

	"github.com/yungbote/quoteflow-backend/internal/app"
)

var withWorker bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job worker only",
	Long:  `Executes queued extraction and document jobs, through Temporal when temporal.address is set and otherwise by polling the job table.`,
	RunE:  runWorker,
}

func init() {
	serveCmd.Flags().BoolVar(&withWorker, "with-worker", true, "also execute jobs in this process")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	if withWorker {
		if err := a.StartWorker(ctx); err != nil {
			stop()
			return err
		}
	}
	err = a.Serve(ctx)
	stop()
	return err
}

func runWorker(cmd *cobra.Command, args []string) error {
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

	if err := a.StartWorker(ctx); err != nil {
		return err
	}
	a.Log.Info("Worker running; waiting for shutdown signal")
	<-ctx.Done()
	return nil
}
